package domain

import (
	"crypto/rsa"
	"fmt"
	"math/big"
	"sync"

	"apwire/internal/util/memzero"
)

// Sizes mandated by the wire layout in spec.md §3/§4.4.
const (
	ClientRandomSize  = 16
	ServerRandomSize  = 16
	DHPublicSize      = 96
	RSAModulusSize    = 128
	ServerBlobSize    = 256
	SaltSize          = 10
	PuzzleSolutionLen = 8
	AuthHMACSize      = 20
	CacheHashSize     = 20
	SessionKeySize    = 32
)

// Cipher is the contract the transport layer needs from the keyed stream
// cipher (spec.md §4.1). Nonce resets all internal packet-level state;
// Encrypt/Decrypt mutate buf in place; Finish yields the packet MAC.
type Cipher interface {
	Nonce(nonce [4]byte)
	Encrypt(buf []byte)
	Decrypt(buf []byte)
	Finish() [4]byte
}

// Session is the root entity of one connection attempt. It is a
// single-owner value during the handshake (Design Note 3): nothing
// outside internal/protocol/handshake should mutate it concurrently.
// Once the handshake completes, the ciphers keyed from the derived key
// material go to the transport layer, split into a mutex-guarded
// SendState and an exclusive RecvState.
type Session struct {
	Username []byte

	ClientID       [4]byte
	ClientRevision [4]byte
	ClientRandom   [ClientRandomSize]byte
	ServerRandom   [ServerRandomSize]byte

	DHPrivate   *big.Int
	DHPublic    [DHPublicSize]byte
	DHServerPub [DHPublicSize]byte
	RSAModulus  [RSAModulusSize]byte
	RSAPrivate  *rsa.PrivateKey
	ServerBlob  [ServerBlobSize]byte
	Salt        [SaltSize]byte

	PuzzleDenominator byte
	PuzzleMagic       uint32
	PuzzleSolution    [PuzzleSolutionLen]byte

	InitialClientPacket []byte
	InitialServerPacket []byte

	AuthHMAC [AuthHMACSize]byte

	SendKey [SessionKeySize]byte
	RecvKey [SessionKeySize]byte
	HMACKey [AuthHMACSize]byte

	CacheHash [CacheHashSize]byte

	mu      sync.Mutex
	sendSet bool
	recvSet bool
	hmacSet bool
}

// NewSession constructs a Session with the caller-supplied identity
// fields. ClientRandom must already be 16 random bytes; Session does not
// generate entropy itself so that callers control the rand source (and
// tests can supply fixed fixtures, per spec.md §8 scenario S1).
func NewSession(username []byte, clientID, clientRevision [4]byte, clientRandom [ClientRandomSize]byte, cacheHash [CacheHashSize]byte) *Session {
	return &Session{
		Username:       append([]byte(nil), username...),
		ClientID:       clientID,
		ClientRevision: clientRevision,
		ClientRandom:   clientRandom,
		CacheHash:      cacheHash,
	}
}

// SetServerKeys stores the derived send/receive/HMAC keys exactly once.
// A second call is a programming error: the handshake engine must never
// re-derive keys for a session that already has them (spec.md §3
// invariant: "keys are set exactly once").
func (s *Session) SetServerKeys(sendKey, recvKey [SessionKeySize]byte, hmacKey [AuthHMACSize]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendSet || s.recvSet || s.hmacSet {
		return fmt.Errorf("domain: session keys already set")
	}
	s.SendKey, s.RecvKey, s.HMACKey = sendKey, recvKey, hmacKey
	s.sendSet, s.recvSet, s.hmacSet = true, true, true
	return nil
}

// KeysSet reports whether SetServerKeys has been called.
func (s *Session) KeysSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendSet && s.recvSet && s.hmacSet
}

// Transcript concatenates the handshake transcript exactly as spec.md
// §4.4 Step H3 requires: initial_client_packet || initial_server_packet
// || salt || username.
func (s *Session) Transcript() []byte {
	out := make([]byte, 0, len(s.InitialClientPacket)+len(s.InitialServerPacket)+SaltSize+len(s.Username))
	out = append(out, s.InitialClientPacket...)
	out = append(out, s.InitialServerPacket...)
	out = append(out, s.Salt[:]...)
	out = append(out, s.Username...)
	return out
}

// Wipe zeroes every buffer of key material this Session owns (spec.md §5
// Resources: "Cipher state, keys, and buffers are zeroed on teardown").
// It does not zero InitialClientPacket/InitialServerPacket, which are
// plaintext transcripts with no confidentiality requirement.
func (s *Session) Wipe() {
	memzero.Zero(s.SendKey[:])
	memzero.Zero(s.RecvKey[:])
	memzero.Zero(s.HMACKey[:])
	memzero.Zero(s.AuthHMAC[:])
	memzero.Zero(s.PuzzleSolution[:])
	if s.DHPrivate != nil {
		s.DHPrivate.SetInt64(0)
	}
}

// SendState is the send-side half of a connected session: exactly one
// writer may hold mu at a time, per spec.md §5's "the send path is
// atomic" rule. keySendIV and the cipher instance are jointly protected
// by the same mutex.
type SendState struct {
	mu        sync.Mutex
	cipher    Cipher
	keySendIV uint32
}

// NewSendState wraps a keyed cipher for the send direction.
func NewSendState(c Cipher) *SendState {
	return &SendState{cipher: c}
}

// Locked runs fn while holding the send mutex, passing the cipher and the
// current IV, then increments the IV by exactly 1 (spec.md §3 invariant
// 1) before releasing the lock. fn must not retain the cipher reference
// beyond the call.
func (s *SendState) Locked(fn func(c Cipher, iv uint32)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.cipher, s.keySendIV)
	s.keySendIV++
}

// IV returns the current send IV without advancing it (for tests).
func (s *SendState) IV() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keySendIV
}

// RecvState is the receive-side half: it has exactly one consumer (the
// reader goroutine), so it needs no mutex of its own (spec.md §5: "The
// receive path owns key_recv_iv and shannon_recv without contention").
type RecvState struct {
	cipher    Cipher
	keyRecvIV uint32
}

// NewRecvState wraps a keyed cipher for the receive direction.
func NewRecvState(c Cipher) *RecvState {
	return &RecvState{cipher: c}
}

// Advance runs fn with the cipher and current IV, then increments the IV.
func (r *RecvState) Advance(fn func(c Cipher, iv uint32)) {
	fn(r.cipher, r.keyRecvIV)
	r.keyRecvIV++
}

// IV returns the current receive IV (for tests).
func (r *RecvState) IV() uint32 { return r.keyRecvIV }

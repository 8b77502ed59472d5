package handshake_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math/big"
	"testing"

	"apwire/internal/crypto/dh"
	"apwire/internal/crypto/kdf"
	"apwire/internal/crypto/rsakeys"
	"apwire/internal/domain"
	"apwire/internal/protocol/handshake"
	"apwire/internal/protocol/puzzle"
)

// loopback is an io.ReadWriter that lets a test pre-seed server bytes
// to read and capture everything the client writes, without any real
// socket or goroutine.
type loopback struct {
	toClient *bytes.Buffer
	written  bytes.Buffer
}

func (l *loopback) Read(p []byte) (int, error)  { return l.toClient.Read(p) }
func (l *loopback) Write(p []byte) (int, error) { return l.written.Write(p) }

func fixedDH(t *testing.T) dh.KeyPair {
	t.Helper()
	return dh.KeyPair{Private: big.NewInt(12345), Public: [dh.PublicSize]byte{1, 2, 3}}
}

func fixedRSA(t *testing.T) rsakeys.KeyPair {
	t.Helper()
	kp, err := rsakeys.Generate()
	if err != nil {
		t.Fatalf("rsakeys.Generate: %v", err)
	}
	return kp
}

// buildServerHello assembles a well-formed H2 response from the given
// fields; the caller picks a puzzle denominator small enough that H3
// succeeds within the bounded search.
func buildServerHello(serverRandom [16]byte, dhServerPub [96]byte, denominator byte, magic uint32, username []byte) []byte {
	var buf bytes.Buffer
	buf.Write(serverRandom[0:2])
	buf.Write(serverRandom[2:])
	buf.Write(dhServerPub[:])
	buf.Write(make([]byte, domain.ServerBlobSize))
	buf.Write(make([]byte, domain.SaltSize))
	buf.WriteByte(1) // padding_length
	buf.WriteByte(byte(len(username)))

	lens := make([]byte, 8)
	binary.BigEndian.PutUint16(lens[0:2], 6) // puzzle_challenge_len
	buf.Write(lens)

	buf.WriteByte(0xAA) // 1 byte padding
	buf.Write(username)

	buf.WriteByte(0x01) // puzzle marker
	buf.WriteByte(denominator)
	magicBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(magicBytes, magic)
	buf.Write(magicBytes)

	return buf.Bytes()
}

func newTestSession(username string) *domain.Session {
	var clientRandom [16]byte
	for i := range clientRandom {
		clientRandom[i] = byte(i)
	}
	return domain.NewSession([]byte(username), [4]byte{1, 0, 0, 0}, [4]byte{0, 0, 0, 1}, clientRandom, [20]byte{})
}

func TestRunSuccessfulHandshake(t *testing.T) {
	sess := newTestSession("alice")
	serverRandom := [16]byte{}
	for i := range serverRandom {
		serverRandom[i] = byte(0x20 + i)
	}
	// byte[0] doubles as the H2 status flag: it must be 0 for the
	// success path, so server_random[0] is always 0 in practice.
	serverRandom[0] = 0
	var dhServerPub [96]byte
	for i := range dhServerPub {
		dhServerPub[i] = byte(i)
	}

	denominator := byte(0) // always-accept predicate so the test is fast and deterministic
	magic := uint32(0x01020304)

	hello := buildServerHello(serverRandom, dhServerPub, denominator, magic, []byte("alice"))

	// H5 auth-ok response appended after H2's bytes; Run reads them in
	// sequence off the same loopback buffer.
	authOK := []byte{0x00, 0x01, 0x00}
	lb := &loopback{toClient: bytes.NewBuffer(append(append([]byte(nil), hello...), authOK...))}

	result, err := handshake.Run(lb, sess, fixedDH(t), fixedRSA(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result == nil {
		t.Fatal("Run returned nil result")
	}
	if !sess.KeysSet() {
		t.Fatal("session keys not set after successful handshake")
	}
	if len(sess.InitialClientPacket) == 0 || len(sess.InitialServerPacket) == 0 {
		t.Fatal("transcripts not recorded")
	}

	// Invariant 1: patched length at offset 2 equals the packet length.
	gotLen := binary.BigEndian.Uint16(sess.InitialClientPacket[2:4])
	if int(gotLen) != len(sess.InitialClientPacket) {
		t.Fatalf("patched length %d != actual %d", gotLen, len(sess.InitialClientPacket))
	}

	// Invariant 5: auth_hmac matches the transcript HMAC under hmac_key.
	transcript := sess.Transcript()
	// Re-derive hmac_key the same way Run does, to check invariant 5
	// without exposing it from the package.
	shared := dh.SharedSecret(sess.DHPrivate, sess.DHServerPub)
	pool := make([]byte, 0, 100)
	for counter := byte(1); counter <= 5; counter++ {
		msg := append(append([]byte(nil), transcript...), counter)
		block := kdf.HMACSHA1(shared[:], msg)
		pool = append(pool, block[:]...)
	}
	wantHMAC := kdf.HMACSHA1(pool[0:20], transcript)
	if sess.AuthHMAC != wantHMAC {
		t.Fatalf("auth_hmac mismatch: got %x want %x", sess.AuthHMAC, wantHMAC)
	}

	// Invariant 6: puzzle solution satisfies the acceptance predicate.
	if !puzzle.Accepts(sess.ServerRandom[:], sess.PuzzleDenominator, sess.PuzzleMagic, sess.PuzzleSolution) {
		t.Fatal("stored puzzle solution does not satisfy the acceptance predicate")
	}
}

func TestRunHandshakeRejectionAccountDisabled(t *testing.T) {
	sess := newTestSession("bob")
	lb := &loopback{toClient: bytes.NewBuffer([]byte{0x04, 0x04})}

	_, err := handshake.Run(lb, sess, fixedDH(t), fixedRSA(t))
	if err == nil {
		t.Fatal("expected handshake-rejected error")
	}
	var derr *domain.Error
	if !errors.As(err, &derr) || derr.Kind != domain.KindHandshakeRejected {
		t.Fatalf("got %v, want KindHandshakeRejected", err)
	}
}

func TestRunShortReadIsConnectionLost(t *testing.T) {
	sess := newTestSession("carol")
	lb := &loopback{toClient: bytes.NewBuffer([]byte{0x00})}

	_, err := handshake.Run(lb, sess, fixedDH(t), fixedRSA(t))
	if err == nil {
		t.Fatal("expected an error on truncated server hello")
	}
	var derr *domain.Error
	if !errors.As(err, &derr) {
		t.Fatalf("got %v, want *domain.Error", err)
	}
	if derr.Kind != domain.KindConnectionLost && derr.Kind != domain.KindIOShort {
		t.Fatalf("got kind %v, want connection-lost or io-short", derr.Kind)
	}
}

var _ io.ReadWriter = (*loopback)(nil)

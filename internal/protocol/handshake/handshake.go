// Package handshake drives the four-step sequence that turns a freshly
// dialed connection into a keyed session (spec.md §4.4, Steps H1–H5).
// It owns the session exclusively for the duration of the handshake
// (Design Note 3): nothing else touches the Session until Run returns.
package handshake

import (
	"io"

	"apwire/internal/crypto/dh"
	"apwire/internal/crypto/kdf"
	"apwire/internal/crypto/rsakeys"
	"apwire/internal/crypto/shannon"
	"apwire/internal/domain"
	"apwire/internal/protocol/framing"
	"apwire/internal/protocol/puzzle"
)

// clientHelloReserved mirrors Protocol.java's fixed constants at the
// offsets spec.md §4.4 Step H1 documents.
const (
	protocolVersion   = 3
	reservedBuildInfo = 0x00030C00
	reservedTopVer    = 0x01000000
	trailerByte       = 0x40
	authPacketLen     = 51 // Step H4's packet size, zero-filled after the solution
)

// MaxPuzzleTries bounds the brute-force search in Step H3; at
// denominator 8 expected work is 2^8 hashes, so this comfortably covers
// every denominator the server is expected to issue while still failing
// fast on a corrupt challenge.
const MaxPuzzleTries = 1 << 24

// Result carries everything the transport layer needs once the
// handshake completes: the two keyed ciphers (not yet nonced; the
// transport sets the nonce before every packet) and the session they
// were derived from.
type Result struct {
	Session     *domain.Session
	ShannonSend *shannon.Cipher
	ShannonRecv *shannon.Cipher
}

// Run executes Steps H1 through H5 against conn, mutating sess in
// place and returning the keyed ciphers on success. Any failure is a
// *domain.Error; per spec.md §7 the session is left unusable and the
// only recovery is to construct a new one.
func Run(conn io.ReadWriter, sess *domain.Session, dhPriv dh.KeyPair, rsaPriv rsakeys.KeyPair) (*Result, error) {
	sess.DHPublic = dhPriv.Public
	sess.DHPrivate = dhPriv.Private
	sess.RSAModulus = rsaPriv.Modulus
	sess.RSAPrivate = rsaPriv.Private

	if err := sendClientHello(conn, sess); err != nil {
		return nil, err
	}
	if err := receiveServerHello(conn, sess); err != nil {
		return nil, err
	}
	hmacKey, sendKey, recvKey, err := deriveKeysAndSolvePuzzle(sess)
	if err != nil {
		return nil, err
	}
	if err := sendAuthentication(conn, sess, hmacKey); err != nil {
		return nil, err
	}
	if err := receiveAuthStatus(conn); err != nil {
		return nil, err
	}
	if err := sess.SetServerKeys(sendKey, recvKey, hmacKey); err != nil {
		return nil, domain.Errf(domain.KindInvalidArgument, "handshake.Run", err)
	}

	return &Result{
		Session:     sess,
		ShannonSend: shannon.NewCipher(sendKey[:]),
		ShannonRecv: shannon.NewCipher(recvKey[:]),
	}, nil
}

// sendClientHello implements Step H1.
func sendClientHello(conn io.ReadWriter, sess *domain.Session) error {
	w := framing.NewWriter(512)
	w.PutU16(protocolVersion)
	w.PutU16(0) // length, patched below
	w.PutU32(0)
	w.PutU32(reservedBuildInfo)
	w.PutBytes(sess.ClientRevision[:])
	w.PutU32(0)
	w.PutU32(reservedTopVer)
	w.PutBytes(sess.ClientID[:])
	w.PutU32(0)
	w.PutBytes(sess.ClientRandom[:])
	w.PutBytes(sess.DHPublic[:])
	w.PutBytes(sess.RSAModulus[:])
	w.PutU8(0) // random_length
	w.PutU8(byte(len(sess.Username)))
	w.PutU16(0x0100)
	w.PutBytes(sess.Username)
	w.PutU8(trailerByte)

	w.PatchU16At(2, uint16(w.Len()))
	packet := w.Bytes()

	if _, err := conn.Write(packet); err != nil {
		return domain.Errf(domain.KindConnectionLost, "handshake.sendClientHello", err)
	}
	sess.InitialClientPacket = append([]byte(nil), packet...)
	return nil
}

// statusCause maps an H2 sub-status byte to its human-readable cause,
// restoring the 0x09 "region mismatch" case the Design Notes flag as a
// REDESIGN FLAG fix for the source's duplicated 0x06 comparison.
func statusCause(sub byte) string {
	switch sub {
	case 0x01:
		return "client upgrade required"
	case 0x03:
		return "unknown user"
	case 0x04:
		return "account disabled"
	case 0x06:
		return "profile incomplete"
	case 0x09:
		return "region mismatch"
	default:
		return "unknown"
	}
}

// receiveServerHello implements Step H2.
func receiveServerHello(conn io.ReadWriter, sess *domain.Session) error {
	rd := framing.NewReader(conn)
	rd.StartTranscript()

	status, err := rd.ReadFull(2)
	if err != nil {
		return err
	}
	if status[0] != 0 {
		if status[0] == 0x01 {
			region, err := rd.ReadFull(282)
			if err != nil {
				return err
			}
			if tailLen := region[len(region)-1]; tailLen > 0 {
				if _, err := rd.ReadFull(int(tailLen)); err != nil {
					return err
				}
			}
		}
		return domain.Errf(domain.KindHandshakeRejected, "handshake.receiveServerHello",
			errStatus{sub: status[1], cause: statusCause(status[1])})
	}

	// status[0]==0 means no error; those same 2 bytes are the first 2
	// bytes of server_random, per spec.md §4.4 Step H2.2 ("total 16,
	// first 2 already consumed").
	copy(sess.ServerRandom[0:2], status)
	rest, err := rd.ReadFull(domain.ServerRandomSize - 2)
	if err != nil {
		return err
	}
	copy(sess.ServerRandom[2:], rest)

	dhServerPub, err := rd.ReadFull(domain.DHPublicSize)
	if err != nil {
		return err
	}
	copy(sess.DHServerPub[:], dhServerPub)

	blob, err := rd.ReadFull(domain.ServerBlobSize)
	if err != nil {
		return err
	}
	copy(sess.ServerBlob[:], blob)

	salt, err := rd.ReadFull(domain.SaltSize)
	if err != nil {
		return err
	}
	copy(sess.Salt[:], salt)

	paddingLen, err := rd.ReadU8()
	if err != nil {
		return err
	}
	if paddingLen == 0 {
		return framing.Malformed("handshake.receiveServerHello", errZeroPadding{})
	}

	usernameLen, err := rd.ReadU8()
	if err != nil {
		return err
	}

	lenBytes, err := rd.ReadFull(8)
	if err != nil {
		return err
	}
	puzzleLen := u16be(lenBytes[0:2])
	unknown1 := u16be(lenBytes[2:4])
	unknown2 := u16be(lenBytes[4:6])
	unknown3 := u16be(lenBytes[6:8])

	if _, err := rd.ReadFull(int(paddingLen)); err != nil {
		return err
	}

	username, err := rd.ReadFull(int(usernameLen))
	if err != nil {
		return err
	}
	sess.Username = append([]byte(nil), username...)

	puzzleBlock, err := rd.ReadFull(int(puzzleLen) + int(unknown1) + int(unknown2) + int(unknown3))
	if err != nil {
		return err
	}
	if len(puzzleBlock) < 6 || puzzleBlock[0] != 0x01 {
		return framing.Malformed("handshake.receiveServerHello", errBadPuzzleMarker{})
	}
	sess.PuzzleDenominator = puzzleBlock[1]
	sess.PuzzleMagic = u32be(puzzleBlock[2:6])

	sess.InitialServerPacket = rd.Transcript()
	return nil
}

// deriveKeysAndSolvePuzzle implements Step H3.
func deriveKeysAndSolvePuzzle(sess *domain.Session) (hmacKey [domain.AuthHMACSize]byte, sendKey, recvKey [domain.SessionKeySize]byte, err error) {
	shared := dh.SharedSecret(sess.DHPrivate, sess.DHServerPub)
	transcript := sess.Transcript()

	pool := make([]byte, 0, 5*kdf.Size)
	for counter := byte(1); counter <= 5; counter++ {
		msg := make([]byte, len(transcript)+1)
		copy(msg, transcript)
		msg[len(transcript)] = counter
		block := kdf.HMACSHA1(shared[:], msg)
		pool = append(pool, block[:]...)
	}

	copy(hmacKey[:], pool[0:20])
	copy(sendKey[:], pool[20:52])
	copy(recvKey[:], pool[52:84])

	solution, ok := puzzle.Solve(sess.ServerRandom[:], sess.PuzzleDenominator, sess.PuzzleMagic, MaxPuzzleTries)
	if !ok {
		return hmacKey, sendKey, recvKey, domain.Errf(domain.KindMalformed, "handshake.deriveKeysAndSolvePuzzle", errPuzzleUnsolved{})
	}
	sess.PuzzleSolution = solution

	return hmacKey, sendKey, recvKey, nil
}

// sendAuthentication implements Step H4.
func sendAuthentication(conn io.ReadWriter, sess *domain.Session, hmacKey [domain.AuthHMACSize]byte) error {
	authHMAC := kdf.HMACSHA1(hmacKey[:], sess.Transcript())
	sess.AuthHMAC = authHMAC

	w := framing.NewWriter(authPacketLen)
	w.PutBytes(authHMAC[:])
	w.PutU8(0) // random length
	w.PutU8(0) // reserved
	w.PutU16(domain.PuzzleSolutionLen)
	w.PutU32(0)
	w.PutBytes(sess.PuzzleSolution[:])
	w.PutBytes(make([]byte, authPacketLen-w.Len())) // zero fill to 51 bytes

	if _, err := conn.Write(w.Bytes()); err != nil {
		return domain.Errf(domain.KindConnectionLost, "handshake.sendAuthentication", err)
	}
	return nil
}

// receiveAuthStatus implements Step H5.
func receiveAuthStatus(conn io.ReadWriter) error {
	rd := framing.NewReader(conn)
	status, err := rd.ReadFull(2)
	if err != nil {
		return err
	}
	if status[0] != 0 {
		return domain.Errf(domain.KindAuthFailed, "handshake.receiveAuthStatus", errStatus{sub: status[1], cause: "auth rejected"})
	}
	payloadLen := status[1]
	if payloadLen == 0 {
		return framing.Malformed("handshake.receiveAuthStatus", errZeroAuthPayload{})
	}
	if _, err := rd.ReadFull(int(payloadLen)); err != nil {
		return err
	}
	return nil
}

func u16be(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
func u32be(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

type errStatus struct {
	sub   byte
	cause string
}

func (e errStatus) Error() string { return e.cause }

type errZeroPadding struct{}

func (errZeroPadding) Error() string { return "padding_length must be > 0" }

type errZeroAuthPayload struct{}

func (errZeroAuthPayload) Error() string { return "auth status payload length must be > 0" }

type errBadPuzzleMarker struct{}

func (errBadPuzzleMarker) Error() string { return "puzzle block marker != 0x01" }

type errPuzzleUnsolved struct{}

func (errPuzzleUnsolved) Error() string { return "no puzzle solution found within search bound" }

// Package transport implements the keyed packet framing that every
// command exchange uses once the handshake completes (spec.md §4.5,
// §5 Concurrency). Sender serializes concurrent writers behind a
// single mutex; Receiver has exactly one consumer and needs none.
package transport

import (
	"encoding/binary"
	"io"

	"apwire/internal/domain"
	"apwire/internal/protocol/framing"
)

const (
	headerLen = 3 // command + u16 payload length
	macLen    = 4
)

// Sender is the mutex-guarded send half of a connected session
// (spec.md §5: "the send path is atomic"). It owns the socket writer;
// domain.SendState owns the cipher and IV.
type Sender struct {
	w     io.Writer
	state *domain.SendState
}

// NewSender wraps w for the send direction, using state for the
// cipher and monotonic IV.
func NewSender(w io.Writer, state *domain.SendState) *Sender {
	return &Sender{w: w, state: state}
}

// Send builds, encrypts and writes one packet, then advances the send
// IV, all under state's mutex so no two packets can interleave on the
// wire (spec.md §4.5 Send, steps 1-6).
func (s *Sender) Send(command byte, payload []byte) error {
	var sendErr error
	s.state.Locked(func(c domain.Cipher, iv uint32) {
		var nonce [4]byte
		binary.BigEndian.PutUint32(nonce[:], iv)
		c.Nonce(nonce)

		buf := make([]byte, headerLen+len(payload))
		buf[0] = command
		binary.BigEndian.PutUint16(buf[1:3], uint16(len(payload)))
		copy(buf[3:], payload)

		c.Encrypt(buf)
		mac := c.Finish()
		buf = append(buf, mac[:]...)

		if _, err := s.w.Write(buf); err != nil {
			sendErr = domain.Errf(domain.KindConnectionLost, "transport.Send", err)
		}
	})
	return sendErr
}

// Packet is one dispatched (command, payload) pair delivered to the
// receive loop's consumer.
type Packet struct {
	Command byte
	Payload []byte
}

// Receiver is the single-consumer receive half of a connected session.
type Receiver struct {
	rd    *framing.Reader
	state *domain.RecvState
}

// NewReceiver wraps r for the receive direction, using state for the
// cipher and monotonic IV.
func NewReceiver(r io.Reader, state *domain.RecvState) *Receiver {
	return &Receiver{rd: framing.NewReader(r), state: state}
}

// ReceiveOne reads exactly one packet off the wire, decrypts it and
// advances the receive IV (spec.md §4.5 Receive, steps 1-6). It blocks
// until a full frame arrives or the connection is lost.
func (r *Receiver) ReceiveOne() (Packet, error) {
	header, err := r.rd.ReadFull(headerLen)
	if err != nil {
		return Packet{}, err
	}

	var command byte
	var payloadLen uint16
	var body []byte
	var innerErr error
	r.state.Advance(func(c domain.Cipher, iv uint32) {
		var nonce [4]byte
		binary.BigEndian.PutUint32(nonce[:], iv)
		c.Nonce(nonce)
		c.Decrypt(header)
		command = header[0]
		payloadLen = binary.BigEndian.Uint16(header[1:3])

		body, innerErr = r.rd.ReadFull(int(payloadLen) + macLen)
		if innerErr != nil {
			return
		}
		c.Decrypt(body)
	})
	if innerErr != nil {
		return Packet{}, innerErr
	}

	payload := body[:payloadLen]
	return Packet{Command: command, Payload: payload}, nil
}

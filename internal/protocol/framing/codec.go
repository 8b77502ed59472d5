// Package framing builds and parses the big-endian, exact-width binary
// records every handshake and session packet uses (spec.md §4.3). There
// is no alignment padding anywhere in this wire format, so the codec is
// a thin, explicit wrapper over encoding/binary rather than anything
// struct-tag-driven.
package framing

import (
	"io"

	"apwire/internal/domain"
)

// Writer builds a record by appending fixed-width big-endian fields.
// It has no fallible operations: Bytes() always succeeds, matching the
// teacher's preference for simple value types over the sprawling error
// handling a streaming encoder would need.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with an empty buffer, optionally
// pre-sized via the capacity hint.
func NewWriter(capacityHint int) *Writer {
	return &Writer{buf: make([]byte, 0, capacityHint)}
}

func (w *Writer) PutU8(v byte) *Writer {
	w.buf = append(w.buf, v)
	return w
}

func (w *Writer) PutU16(v uint16) *Writer {
	w.buf = append(w.buf, byte(v>>8), byte(v))
	return w
}

func (w *Writer) PutU32(v uint32) *Writer {
	w.buf = append(w.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	return w
}

func (w *Writer) PutI32(v int32) *Writer { return w.PutU32(uint32(v)) }

func (w *Writer) PutBytes(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// Len reports the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// PatchU16At overwrites the two bytes at offset with v, used by the
// client hello's back-patched length field (spec.md §4.4 offset 2).
func (w *Writer) PatchU16At(offset int, v uint16) {
	w.buf[offset] = byte(v >> 8)
	w.buf[offset+1] = byte(v)
}

// Bytes returns the accumulated record. The returned slice aliases the
// Writer's internal buffer; callers that need to keep it past further
// writes should copy it.
func (w *Writer) Bytes() []byte { return w.buf }

// Reader parses fixed-width big-endian fields off an io.Reader,
// accumulating every byte read into a transcript buffer when Transcript
// recording is enabled — the handshake needs this to build
// initial_server_packet (spec.md §4.4 Step H2: "concatenating every read
// byte").
type Reader struct {
	r          io.Reader
	transcript []byte
	recording  bool
}

// NewReader wraps r for fixed-width reads.
func NewReader(r io.Reader) *Reader { return &Reader{r: r} }

// StartTranscript begins accumulating every subsequently read byte.
func (rd *Reader) StartTranscript() { rd.recording = true }

// Transcript returns everything accumulated since StartTranscript.
func (rd *Reader) Transcript() []byte { return rd.transcript }

// ReadFull reads exactly n bytes or returns a domain.Error of
// KindConnectionLost (EOF) or KindIOShort (any other short read).
func (rd *Reader) ReadFull(n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(rd.r, buf)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, domain.Errf(domain.KindConnectionLost, "framing.ReadFull", err)
		}
		return nil, domain.Errf(domain.KindIOShort, "framing.ReadFull", err)
	}
	if read != n {
		return nil, domain.Errf(domain.KindIOShort, "framing.ReadFull", io.ErrShortBuffer)
	}
	if rd.recording {
		rd.transcript = append(rd.transcript, buf...)
	}
	return buf, nil
}

func (rd *Reader) ReadU8() (byte, error) {
	b, err := rd.ReadFull(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (rd *Reader) ReadU16() (uint16, error) {
	b, err := rd.ReadFull(2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

func (rd *Reader) ReadU32() (uint32, error) {
	b, err := rd.ReadFull(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

func (rd *Reader) ReadI32() (int32, error) {
	v, err := rd.ReadU32()
	return int32(v), err
}

// Malformed builds a KindMalformed domain.Error for a field that failed
// a declared constraint (e.g. the puzzle marker byte).
func Malformed(op string, reason error) error {
	return domain.Errf(domain.KindMalformed, op, reason)
}

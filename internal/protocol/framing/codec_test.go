package framing_test

import (
	"bytes"
	"errors"
	"testing"

	"apwire/internal/domain"
	"apwire/internal/protocol/framing"
)

func TestWriterPatchU16At(t *testing.T) {
	w := framing.NewWriter(16)
	w.PutU16(3) // version
	w.PutU16(0) // length placeholder
	w.PutBytes([]byte("payload"))
	w.PatchU16At(2, uint16(w.Len()))

	got := w.Bytes()
	want := []byte{0x00, 0x03, 0x00, byte(w.Len())}
	if !bytes.Equal(got[:4], want) {
		t.Fatalf("header = % x, want % x", got[:4], want)
	}
}

func TestReaderRoundTrip(t *testing.T) {
	w := framing.NewWriter(0)
	w.PutU8(7).PutU16(1234).PutU32(0xdeadbeef).PutBytes([]byte("tail"))

	rd := framing.NewReader(bytes.NewReader(w.Bytes()))
	u8, err := rd.ReadU8()
	if err != nil || u8 != 7 {
		t.Fatalf("ReadU8 = %d, %v", u8, err)
	}
	u16, err := rd.ReadU16()
	if err != nil || u16 != 1234 {
		t.Fatalf("ReadU16 = %d, %v", u16, err)
	}
	u32, err := rd.ReadU32()
	if err != nil || u32 != 0xdeadbeef {
		t.Fatalf("ReadU32 = %x, %v", u32, err)
	}
	tail, err := rd.ReadFull(4)
	if err != nil || string(tail) != "tail" {
		t.Fatalf("ReadFull = %q, %v", tail, err)
	}
}

func TestReaderShortReadIsConnectionLost(t *testing.T) {
	rd := framing.NewReader(bytes.NewReader([]byte{0x01}))
	_, err := rd.ReadFull(4)
	if err == nil {
		t.Fatal("expected error on short read")
	}
	var derr *domain.Error
	if !errors.As(err, &derr) || derr.Kind != domain.KindConnectionLost {
		t.Fatalf("got %v, want KindConnectionLost", err)
	}
}

func TestReaderTranscriptAccumulates(t *testing.T) {
	rd := framing.NewReader(bytes.NewReader([]byte{0x01, 0x02, 0x03, 0x04}))
	rd.StartTranscript()
	if _, err := rd.ReadFull(2); err != nil {
		t.Fatal(err)
	}
	if _, err := rd.ReadU16(); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(rd.Transcript(), []byte{0x01, 0x02, 0x03, 0x04}) {
		t.Fatalf("transcript = % x", rd.Transcript())
	}
}

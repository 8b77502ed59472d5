package command_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"apwire/internal/domain"
	"apwire/internal/protocol/command"
)

func TestSearchOffsetZeroLimitUnlimitedEncodes(t *testing.T) {
	payload, err := command.SearchPayload(5, "test", 0, -1)
	if err != nil {
		t.Fatalf("SearchPayload: %v", err)
	}
	id, ok := command.ChannelIDOf(payload)
	if !ok || id != 5 {
		t.Fatalf("ChannelIDOf = %d,%v want 5,true", id, ok)
	}
}

func TestSearchLimitZeroRejected(t *testing.T) {
	_, err := command.SearchPayload(5, "test", 0, 0)
	assertInvalidArgument(t, err)
}

func TestSearchNegativeOffsetRejected(t *testing.T) {
	_, err := command.SearchPayload(5, "test", -1, -1)
	assertInvalidArgument(t, err)
}

func TestSubstreamAlignedOffsetEncodes(t *testing.T) {
	var fileID [20]byte
	payload, err := command.GetSubstreamPayload(7, fileID, 4096, 4096)
	if err != nil {
		t.Fatalf("GetSubstreamPayload: %v", err)
	}
	// offset/4 = 1024 sits right after channel id(2)+10 unknown(10)+u32(4)+fileid(20) = 36 bytes in.
	start := binary.BigEndian.Uint32(payload[36:40])
	if start != 1024 {
		t.Fatalf("start = %d, want 1024", start)
	}
}

func TestSubstreamUnalignedOffsetRejected(t *testing.T) {
	var fileID [20]byte
	_, err := command.GetSubstreamPayload(7, fileID, 4095, 4096)
	assertInvalidArgument(t, err)
}

// TestSubstreamScenarioS4 matches spec.md §8 scenario S4: offset=8192,
// length=16384 encodes offset/4=2048, (offset+length)/4=6144.
func TestSubstreamScenarioS4(t *testing.T) {
	var fileID [20]byte
	payload, err := command.GetSubstreamPayload(1, fileID, 8192, 16384)
	if err != nil {
		t.Fatalf("GetSubstreamPayload: %v", err)
	}
	start := binary.BigEndian.Uint32(payload[36:40])
	end := binary.BigEndian.Uint32(payload[40:44])
	if start != 2048 || end != 6144 {
		t.Fatalf("start/end = %d/%d, want 2048/6144", start, end)
	}
}

func TestBrowseArtistWithTwoIdsRejected(t *testing.T) {
	_, err := command.BrowsePayload(3, command.BrowseArtist, [][16]byte{{}, {}})
	assertInvalidArgument(t, err)
}

func TestBrowseTrackWithManyIdsAccepted(t *testing.T) {
	payload, err := command.BrowsePayload(3, command.BrowseTrack, [][16]byte{{}, {}, {}})
	if err != nil {
		t.Fatalf("BrowsePayload: %v", err)
	}
	if len(payload) != 3+16*3 {
		t.Fatalf("len = %d, want %d", len(payload), 3+48)
	}
}

func TestBrowseInvalidTypeRejected(t *testing.T) {
	_, err := command.BrowsePayload(3, 9, [][16]byte{{}})
	assertInvalidArgument(t, err)
}

func TestChannelBearingPayloadsRoundTripChannelID(t *testing.T) {
	cases := []struct {
		name    string
		payload []byte
	}{
		{"image", command.ImagePayload(42, [20]byte{})},
		{"pong-like-ad", command.RequestADPayload(42, 1)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			id, ok := command.ChannelIDOf(c.payload)
			if !ok || id != 42 {
				t.Fatalf("ChannelIDOf = %d,%v want 42,true", id, ok)
			}
		})
	}
}

// TestReqKeyPayloadChannelIDIsTrailing covers REQKEY's documented
// exception to the leading-channel-id convention: its channel id sits
// in the last two bytes, after fileID and trackID, per spec.md §6's
// REQKEY row.
func TestReqKeyPayloadChannelIDIsTrailing(t *testing.T) {
	payload := command.ReqKeyPayload(42, [20]byte{}, [16]byte{})
	got := binary.BigEndian.Uint16(payload[len(payload)-2:])
	if got != 42 {
		t.Fatalf("trailing channel id = %d, want 42", got)
	}
}

func TestCacheHashPayloadVerbatim(t *testing.T) {
	var hash [20]byte
	for i := range hash {
		hash[i] = byte(i)
	}
	payload := command.CacheHashPayload(hash)
	if !bytes.Equal(payload, hash[:]) {
		t.Fatalf("payload = %x, want %x", payload, hash)
	}
}

func assertInvalidArgument(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error")
	}
	var derr *domain.Error
	if !errors.As(err, &derr) || derr.Kind != domain.KindInvalidArgument {
		t.Fatalf("got %v, want KindInvalidArgument", err)
	}
}

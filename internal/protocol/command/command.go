// Package command builds and validates the payloads spec.md §6 defines
// for each outbound request, grounded on Protocol.java's sendXxx family
// (sendCacheHash, sendAdRequest, sendSearchQuery, sendAesKeyRequest,
// sendSubstreamRequest, sendBrowseRequest, sendPlaylistRequest,
// sendChangePlaylist, sendPong). Channel allocation itself lives in
// internal/protocol/channel; this package only builds wire payloads and
// enforces the preconditions spec.md §6 and §8 name.
package command

import (
	"encoding/binary"

	"apwire/internal/domain"
	"apwire/internal/protocol/framing"
)

// Byte values are this client's canonical command assignments; a
// server-compatible deployment must cross-check them against a live
// reference implementation (spec.md §6: "consult server-compatible
// reference").
const (
	CacheHash      byte = 0x0F
	RequestAD      byte = 0x06
	Image          byte = 0x19
	Search         byte = 0x1B
	TokenNotify    byte = 0x31
	ReqKey         byte = 0x0C
	RequestPlay    byte = 0x4F
	GetSubstream   byte = 0x08
	Browse         byte = 0x30
	GetPlaylist    byte = 0x35
	ChangePlaylist byte = 0x36
	Pong           byte = 0x49
)

// BrowseArtist, BrowseAlbum and BrowseTrack are the type codes BROWSE's
// payload accepts (spec.md §6: "type ∈ {1,2,3}").
const (
	BrowseArtist = 1
	BrowseAlbum  = 2
	BrowseTrack  = 3
)

func invalidArg(op string, reason error) error {
	return domain.Errf(domain.KindInvalidArgument, op, reason)
}

type errMsg string

func (e errMsg) Error() string { return string(e) }

// CacheHashPayload builds the CACHEHASH payload: the 20-byte client
// cache digest, verbatim.
func CacheHashPayload(hash [domain.CacheHashSize]byte) []byte {
	return append([]byte(nil), hash[:]...)
}

// RequestADPayload builds the REQUESTAD payload for channel channelID.
func RequestADPayload(channelID uint16, adType byte) []byte {
	w := framing.NewWriter(3)
	w.PutU16(channelID).PutU8(adType)
	return w.Bytes()
}

// ImagePayload builds the IMAGE payload for channel channelID.
func ImagePayload(channelID uint16, imageID [20]byte) []byte {
	w := framing.NewWriter(22)
	w.PutU16(channelID).PutBytes(imageID[:])
	return w.Bytes()
}

// SearchPayload builds the SEARCH payload. offset must be >= 0; limit
// must be > 0 or exactly -1 (unlimited), per spec.md §6.
func SearchPayload(channelID uint16, query string, offset int32, limit int32) ([]byte, error) {
	if offset < 0 {
		return nil, invalidArg("command.SearchPayload", errMsg("offset must be >= 0"))
	}
	if limit == 0 || (limit < 0 && limit != -1) {
		return nil, invalidArg("command.SearchPayload", errMsg("limit must be > 0 or -1"))
	}
	if len(query) > 0xFF {
		return nil, invalidArg("command.SearchPayload", errMsg("query too long"))
	}

	w := framing.NewWriter(13 + len(query))
	w.PutU16(channelID)
	w.PutI32(offset)
	w.PutI32(limit)
	w.PutU16(0)
	w.PutU8(byte(len(query)))
	w.PutBytes([]byte(query))
	return w.Bytes(), nil
}

// TokenNotifyPayload builds the (empty) TOKENNOTIFY payload.
func TokenNotifyPayload() []byte { return nil }

// ReqKeyPayload builds the REQKEY payload requesting the AES key for
// fileID/trackID on channel channelID.
func ReqKeyPayload(channelID uint16, fileID [20]byte, trackID [16]byte) []byte {
	w := framing.NewWriter(40)
	w.PutBytes(fileID[:])
	w.PutBytes(trackID[:])
	w.PutU16(0)
	w.PutU16(channelID)
	return w.Bytes()
}

// RequestPlayPayload builds the (empty) REQUESTPLAY payload.
func RequestPlayPayload() []byte { return nil }

// GetSubstreamPayload builds the GETSUBSTREAM payload for the byte
// range [offset, offset+length). Both offset and length must be
// multiples of 4096, per spec.md §6.
func GetSubstreamPayload(channelID uint16, fileID [20]byte, offset, length uint32) ([]byte, error) {
	if offset%4096 != 0 || length%4096 != 0 {
		return nil, invalidArg("command.GetSubstreamPayload", errMsg("offset and length must be multiples of 4096"))
	}

	start := offset / 4
	end := (offset + length) / 4

	w := framing.NewWriter(44)
	w.PutU16(channelID)
	w.PutU16(0x0800)
	w.PutU16(0)
	w.PutU16(0)
	w.PutU16(0)
	w.PutU16(0x4e20)
	w.PutU32(200000)
	w.PutBytes(fileID[:])
	w.PutU32(start)
	w.PutU32(end)
	return w.Bytes(), nil
}

// BrowsePayload builds the BROWSE payload. Types 1 (artist) and 2
// (album) require exactly one id, per spec.md §6 and §8's boundary
// test ("type = 1 and |ids| = 2 rejected").
func BrowsePayload(channelID uint16, browseType byte, ids [][16]byte) ([]byte, error) {
	switch browseType {
	case BrowseArtist, BrowseAlbum, BrowseTrack:
	default:
		return nil, invalidArg("command.BrowsePayload", errMsg("type must be 1, 2 or 3"))
	}
	if (browseType == BrowseArtist || browseType == BrowseAlbum) && len(ids) != 1 {
		return nil, invalidArg("command.BrowsePayload", errMsg("types 1 and 2 require exactly one id"))
	}

	w := framing.NewWriter(3 + 16*len(ids) + 4)
	w.PutU16(channelID)
	w.PutU8(browseType)
	for _, id := range ids {
		w.PutBytes(id[:])
	}
	if browseType == BrowseArtist || browseType == BrowseAlbum {
		w.PutU32(0)
	}
	return w.Bytes(), nil
}

// GetPlaylistPayload builds the GETPLAYLIST payload for playlistID.
func GetPlaylistPayload(channelID uint16, playlistID [17]byte) []byte {
	w := framing.NewWriter(28)
	w.PutU16(channelID)
	w.PutBytes(playlistID[:])
	w.PutI32(-1)
	w.PutU32(0)
	w.PutI32(-1)
	w.PutU8(0x01)
	return w.Bytes()
}

// ChangePlaylistPayload builds the CHANGEPLAYLIST payload describing a
// new playlist state and the XML diff to apply.
func ChangePlaylistPayload(channelID uint16, playlistID [17]byte, revision, trackCount, checksum uint32, collaborative bool, xml []byte) []byte {
	w := framing.NewWriter(32 + len(xml))
	w.PutU16(channelID)
	w.PutBytes(playlistID[:])
	w.PutU32(revision)
	w.PutU32(trackCount)
	w.PutU32(checksum)
	if collaborative {
		w.PutU8(0x01)
	} else {
		w.PutU8(0x00)
	}
	w.PutU8(0x03)
	w.PutBytes(xml)
	return w.Bytes()
}

// PongPayload builds the PONG payload.
func PongPayload() []byte {
	w := framing.NewWriter(4)
	w.PutU32(0)
	return w.Bytes()
}

// ChannelIDOf reads the leading u16 channel id off a channel-bearing
// payload, the round-trip law spec.md §8 names ("encoding a payload and
// parsing the first two bytes yields the original channel id").
func ChannelIDOf(payload []byte) (uint16, bool) {
	if len(payload) < 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(payload[:2]), true
}

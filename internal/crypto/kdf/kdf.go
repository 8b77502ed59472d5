// Package kdf implements the handshake's key-derivation primitives:
// HMAC-SHA1, SHA-1, and the HMAC-SHA1 counter-mode KDF spec.md §4.4 Step
// H3 describes abstractly and §9's Open Question leaves unpinned. This
// module fixes the construction as
//
//	pool = HMAC-SHA1(secret, transcript || 0x01)
//	     || HMAC-SHA1(secret, transcript || 0x02)
//	     || ...
//	     || HMAC-SHA1(secret, transcript || 0xNN)
//
// concatenated until at least the requested length is produced, which is
// the despotify/libspotify reference client's "shn_" key-expansion
// convention named in spec.md's Design Notes.
package kdf

import (
	"crypto/hmac"
	"crypto/sha1"
)

// Size is the output width of HMAC-SHA1 / SHA-1.
const Size = sha1.Size

// HMACSHA1 returns HMAC-SHA1(key, msg).
func HMACSHA1(key, msg []byte) [Size]byte {
	h := hmac.New(sha1.New, key)
	h.Write(msg)
	var out [Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SHA1 returns the SHA-1 digest of msg.
func SHA1(msg []byte) [Size]byte {
	var out [Size]byte
	sum := sha1.Sum(msg)
	copy(out[:], sum[:])
	return out
}

// CounterKDF expands secret and transcript into exactly n bytes of key
// material using the counter-mode construction documented above. The
// counter starts at 1, matching the convention the comment block
// describes.
func CounterKDF(secret, transcript []byte, n int) []byte {
	out := make([]byte, 0, n+Size)
	for counter := byte(1); len(out) < n; counter++ {
		msg := make([]byte, len(transcript)+1)
		copy(msg, transcript)
		msg[len(transcript)] = counter
		block := HMACSHA1(secret, msg)
		out = append(out, block[:]...)
	}
	return out[:n]
}

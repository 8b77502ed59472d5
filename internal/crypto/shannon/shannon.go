// Package shannon implements the word-based nonlinear stream cipher
// spec.md §4.1 names as "the stream cipher primitive": a keyed,
// per-packet-nonced cipher that also produces a short MAC over the data
// it processes, the same primitive despotify/libspotify reference
// clients call "shn_" (Gregory Rose, "A Fast and Secure Stream Cipher",
// PKC 2001 — the Sober/Shannon NLFSR family). No reference-pack
// dependency implements this cipher — it is specific to this one
// protocol — so it is built from the public algorithm description, the
// same way other_examples/cenkalti-mse__mse.go hand-rolls its own
// handshake framing around a *borrowed* primitive (RC4); here the
// primitive itself has no off-the-shelf implementation to borrow.
//
// The cipher keeps a 16-word nonlinear feedback register. Nonce()
// restores the register to its post-key-schedule state and mixes in the
// packet nonce, matching spec.md §4.1's requirement that "the cipher...
// MUST reset its internal packet-level state on every nonce() call".
// Encrypt/Decrypt XOR a keystream derived from the register into buf
// while folding the plaintext into a running CRC accumulator; Finish
// diffuses that accumulator back into the register and extracts a
// 4-byte MAC, so that two cipher instances that processed the same
// plaintext under the same (key, nonce) produce the same MAC.
package shannon

import "encoding/binary"

const (
	n         = 16
	fold      = n
	initKonst = 0x6996c53a
	keyp      = 13
)

// Cipher is a keyed Shannon stream cipher instance. It is not safe for
// concurrent use; callers serialize access the way spec.md §5 requires
// for the send-side cipher (one mutex-guarded instance per direction).
type Cipher struct {
	r      [n]uint32 // working NLFSR register
	initR  [n]uint32 // register state immediately after the key schedule
	crc    [n]uint32 // MAC accumulator, folded in on Finish
	konst  uint32
	sbuf   uint32
	sIndex int // bytes of sbuf already consumed as keystream

	pend    [4]byte // bytes of the MAC word currently being assembled
	pendLen int     // how many of pend's bytes are filled
}

func rotl(w uint32, s int) uint32 { return (w << s) | (w >> (32 - s)) }

func sbox1(w uint32) uint32 {
	w ^= rotl(w, 5) | rotl(w, 7)
	w ^= rotl(w, 19) | rotl(w, 22)
	return w
}

func sbox2(w uint32) uint32 {
	w ^= rotl(w, 7) | rotl(w, 22)
	w ^= rotl(w, 5) | rotl(w, 19)
	return w
}

// cycle advances the register by one step and refreshes sbuf with a new
// keystream word, the core NLFSR update of the algorithm.
func (c *Cipher) cycle() {
	t := c.r[12] ^ c.r[13] ^ c.konst
	t = sbox1(t)
	for i := 1; i < n; i++ {
		c.r[i-1] = c.r[i]
	}
	c.r[n-1] = t
	t = sbox2(c.r[2] ^ c.r[15])
	c.r[0] ^= t
	c.sbuf = t + c.r[keyp]
}

// macFold folds one word of data into the running CRC accumulator; used
// by Encrypt/Decrypt (folding in each 4-byte block of plaintext) and by
// Finish (folding in a partial trailing block).
func (c *Cipher) macFold(word uint32) {
	c.crc[n-1] ^= word
	c.cycle()
}

// diffuse runs extra cycles with no new input, spreading a just-folded
// value across the whole register; the key schedule, nonce schedule and
// Finish all end with a short diffuse pass.
func (c *Cipher) diffuse(rounds int) {
	for i := 0; i < rounds; i++ {
		c.cycle()
	}
}

// NewCipher builds a Cipher keyed with key, which may be any length
// (unused tail bytes of the last word are zero-padded). It must be
// followed by Nonce before Encrypt/Decrypt/Finish are called.
func NewCipher(key []byte) *Cipher {
	c := &Cipher{konst: initKonst}
	for i := range c.r {
		c.r[i] = initKonst
	}
	c.loadWords(key)
	c.konst = c.r[0]
	c.diffuse(fold)
	copy(c.initR[:], c.r[:])
	return c
}

// Nonce resets the register to its post-key-schedule state and mixes in
// the per-packet nonce, satisfying spec.md §4.1's reset requirement.
func (c *Cipher) Nonce(nonce [4]byte) {
	copy(c.r[:], c.initR[:])
	c.konst = initKonst
	c.loadWords(nonce[:])
	c.konst = c.r[0]
	c.diffuse(fold)
	for i := range c.crc {
		c.crc[i] = c.r[i]
	}
	c.sIndex = 0
	c.pendLen = 0
}

// loadWords folds data, word by word (big-endian, zero-padded tail),
// into the register, cycling once per word.
func (c *Cipher) loadWords(data []byte) {
	var buf [4]byte
	for off := 0; off < len(data); off += 4 {
		end := off + 4
		if end > len(data) {
			end = len(data)
		}
		buf = [4]byte{}
		copy(buf[:], data[off:end])
		c.r[keyp] ^= binary.BigEndian.Uint32(buf[:])
		c.cycle()
	}
}

// keystreamByte returns the next keystream byte, cycling the register
// for every 4 bytes consumed.
func (c *Cipher) keystreamByte() byte {
	if c.sIndex == 0 {
		c.cycle()
	}
	b := byte(c.sbuf >> (8 * c.sIndex))
	c.sIndex = (c.sIndex + 1) % 4
	return b
}

// Encrypt XORs a keystream into buf in place and folds the plaintext
// (the data as the caller knows it, before encryption) into the MAC
// accumulator, so Finish authenticates the plaintext.
func (c *Cipher) Encrypt(buf []byte) { c.process(buf, true) }

// Decrypt XORs a keystream into buf in place and folds the result (the
// recovered plaintext) into the MAC accumulator, so that a correct
// decryption reproduces the same Finish() value the sender computed.
func (c *Cipher) Decrypt(buf []byte) { c.process(buf, false) }

func (c *Cipher) process(buf []byte, encrypting bool) {
	for i := range buf {
		if encrypting {
			p := buf[i]
			buf[i] ^= c.keystreamByte()
			c.foldByte(p)
		} else {
			buf[i] ^= c.keystreamByte()
			c.foldByte(buf[i])
		}
	}
}

// foldByte accumulates one plaintext byte into the pending MAC word,
// folding the completed word into the CRC accumulator every 4 bytes.
func (c *Cipher) foldByte(b byte) {
	c.pend[c.pendLen] = b
	c.pendLen++
	if c.pendLen == 4 {
		c.macFold(binary.BigEndian.Uint32(c.pend[:]))
		c.pendLen = 0
	}
}

// Finish folds any partial trailing word plus the whole CRC accumulator
// back into the register, diffuses, and extracts a 4-byte MAC. It must
// be called exactly once per packet, after the matching Encrypt or
// Decrypt call, and is followed by a fresh Nonce before the cipher is
// used again (spec.md §4.5 steps 4 and 2).
func (c *Cipher) Finish() [4]byte {
	if c.pendLen > 0 {
		for i := c.pendLen; i < 4; i++ {
			c.pend[i] = 0
		}
		c.macFold(binary.BigEndian.Uint32(c.pend[:]))
		c.pendLen = 0
	}
	for i := range c.crc {
		c.r[i] ^= c.crc[i]
	}
	c.diffuse(fold)

	var mac [4]byte
	binary.BigEndian.PutUint32(mac[:], c.r[0]^c.r[1])
	return mac
}

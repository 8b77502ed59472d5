// Package puzzle solves the server-issued proof-of-work challenge from
// spec.md §4.4 Step H3 and §3 (puzzle_denominator, puzzle_magic,
// puzzle_solution).
//
// The spec deliberately describes the acceptance predicate only
// abstractly — "the low puzzle_denominator bits of sha1(server_random ||
// s)... folded with puzzle_magic" — leaving the exact fold to the
// implementer, the same way spec.md's Design Notes flag the KDF counter
// construction as needing a concrete choice. This package fixes the
// predicate as: take the first four bytes of the digest as a big-endian
// uint32, XOR it with puzzle_magic, and require the top denominator bits
// of the result to be zero. That is the standard hashcash-style
// leading-zero-bits predicate, it bounds expected work at 2^denominator
// hashes as spec.md promises, and it is symmetric in client and server
// (either side can verify a candidate solution with one SHA-1 call).
package puzzle

import (
	"encoding/binary"

	"apwire/internal/crypto/kdf"
)

// MaxDenominator is the widest predicate this package supports: the
// fold operates on a 32-bit word, so denominators beyond that width
// would always be satisfied (or, at 0, trivially satisfied by s=0).
const MaxDenominator = 32

// Accepts reports whether solution satisfies the puzzle defined by
// serverRandom, denominator and magic.
func Accepts(serverRandom []byte, denominator byte, magic uint32, solution [8]byte) bool {
	digest := kdf.SHA1(append(append([]byte(nil), serverRandom...), solution[:]...))
	word := binary.BigEndian.Uint32(digest[:4]) ^ magic
	return leadingBitsZero(word, denominator)
}

func leadingBitsZero(word uint32, denominator byte) bool {
	n := denominator
	if n > MaxDenominator {
		n = MaxDenominator
	}
	if n == 0 {
		return true
	}
	return word>>(32-n) == 0
}

// Solve brute-forces an 8-byte solution satisfying Accepts, trying
// sequential candidates starting from 0. ok is false if it exhausts
// maxTries without success; callers pick maxTries generously since
// expected work is bounded by 2^denominator (spec.md §4.4).
func Solve(serverRandom []byte, denominator byte, magic uint32, maxTries uint64) (solution [8]byte, ok bool) {
	for candidate := uint64(0); candidate < maxTries; candidate++ {
		binary.BigEndian.PutUint64(solution[:], candidate)
		if Accepts(serverRandom, denominator, magic, solution) {
			return solution, true
		}
	}
	return [8]byte{}, false
}

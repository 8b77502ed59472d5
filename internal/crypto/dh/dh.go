// Package dh implements the fixed-group, finite-field Diffie–Hellman key
// agreement the handshake needs (spec.md §4.1, §3 dh_client_keypair /
// dh_server_public).
//
// The group shape — a 768-bit safe prime, generator 2, 96-byte
// big-endian public values — mirrors the one BitTorrent's Message Stream
// Encryption extension uses (see other_examples/cenkalti-mse__mse.go):
// a fixed hex prime parsed once at init, Y = g^X mod p, and the shared
// secret computed with big.Int.Exp. No reference-pack dependency
// implements classic (non-curve) DH, so this stays on math/big rather
// than reaching for a library that doesn't speak this group.
package dh

import (
	"crypto/rand"
	"math/big"
)

// PublicSize is the wire width of a serialized public value (spec.md §3).
const PublicSize = 96

// pHex is a 768-bit safe prime, exactly PublicSize bytes wide when
// serialized; g is the conventional generator 2.
const pHex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C42E9A63A3620FFFFFFFFFFFFFFFF"

var (
	p = mustPrime(pHex)
	g = big.NewInt(2)
)

func mustPrime(hexStr string) *big.Int {
	n := new(big.Int)
	if _, ok := n.SetString(hexStr, 16); !ok {
		panic("dh: invalid prime literal")
	}
	return n
}

// KeyPair is a client-side DH keypair: Private is kept only for the
// lifetime of the handshake; Public is the 96-byte big-endian Y sent to
// the peer in the client hello.
type KeyPair struct {
	Private *big.Int
	Public  [PublicSize]byte
}

// Generate produces a fresh keypair using crypto/rand for the exponent.
func Generate() (KeyPair, error) {
	// A private exponent the width of the modulus is standard practice
	// for this kind of fixed-group DH (matches mse.go's Xa generation).
	max := new(big.Int).Sub(p, big.NewInt(1))
	x, err := rand.Int(rand.Reader, max)
	if err != nil {
		return KeyPair{}, err
	}
	if x.Sign() == 0 {
		x.SetInt64(1)
	}
	y := new(big.Int).Exp(g, x, p)
	var kp KeyPair
	kp.Private = x
	putBigBE(kp.Public[:], y)
	return kp, nil
}

// SharedSecret computes (peerPublic)^priv mod p and serializes it to
// PublicSize bytes, as the handshake engine needs for the key-derivation
// input in spec.md §4.4 Step H3.
func SharedSecret(priv *big.Int, peerPublic [PublicSize]byte) [PublicSize]byte {
	yb := new(big.Int).SetBytes(peerPublic[:])
	s := new(big.Int).Exp(yb, priv, p)
	var out [PublicSize]byte
	putBigBE(out[:], s)
	return out
}

// putBigBE writes n into dst as big-endian bytes, left-padded with
// zeros, truncating from the left if n somehow needs more bytes than
// dst provides (it should not, for a well-formed group member).
func putBigBE(dst []byte, n *big.Int) {
	b := n.Bytes()
	if len(b) >= len(dst) {
		copy(dst, b[len(b)-len(dst):])
		return
	}
	for i := range dst {
		dst[i] = 0
	}
	copy(dst[len(dst)-len(b):], b)
}

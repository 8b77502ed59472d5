// Package rsakeys generates the client's RSA keypair and exports its
// public modulus in the 128-byte wire form the client hello carries
// (spec.md §3 rsa_client_keypair, §4.4 offset 144).
//
// Verifying the server_blob signature is out of the core's scope (spec.md
// §1: the server blob's "verification... is out of scope here" per the
// GLOSSARY); this package only needs to produce the client's own keypair.
// No reference-pack dependency wraps RSA key generation — it is a
// one-call stdlib operation with no domain-specific behavior to adapt,
// so crypto/rsa is used directly rather than introducing a dependency
// for it.
package rsakeys

import (
	"crypto/rand"
	"crypto/rsa"
)

// ModulusSize is the wire width of the serialized public modulus.
const ModulusSize = 128

// KeyPair is the client's RSA keypair plus its serialized public modulus.
type KeyPair struct {
	Private *rsa.PrivateKey
	Modulus [ModulusSize]byte
}

// Generate produces an RSA-1024 keypair (ModulusSize*8 bits), matching
// the 128-byte modulus width the wire layout fixes.
func Generate() (KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, ModulusSize*8)
	if err != nil {
		return KeyPair{}, err
	}
	var kp KeyPair
	kp.Private = priv
	putBE(kp.Modulus[:], priv.N.Bytes())
	return kp, nil
}

func putBE(dst, src []byte) {
	if len(src) >= len(dst) {
		copy(dst, src[len(src)-len(dst):])
		return
	}
	for i := range dst {
		dst[i] = 0
	}
	copy(dst[len(dst)-len(src):], src)
}

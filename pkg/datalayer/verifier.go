package datalayer

import (
	"crypto/ed25519"
	"encoding/hex"
)

// Ed25519Verifier verifies key-ownership signatures as ed25519 signatures
// over the raw nonce bytes (the hex nonce decoded).
type Ed25519Verifier struct{}

// NewEd25519Verifier returns the default signature verifier.
func NewEd25519Verifier() *Ed25519Verifier {
	return &Ed25519Verifier{}
}

// VerifyKeyOwnership implements KeyVerifier.
func (v *Ed25519Verifier) VerifyKeyOwnership(nonce, sigHex, publicKeyHex string) bool {
	msg, err := hex.DecodeString(nonce)
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

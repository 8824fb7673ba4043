package common

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const (
	Ed25519PubkeySize    = ed25519.PublicKeySize
	Ed25519SignatureSize = ed25519.SignatureSize
	Ed25519SeedSize      = ed25519.SeedSize
)

// KeyPair is an ed25519 signing key.
type KeyPair struct {
	priv ed25519.PrivateKey
}

// GenerateKeyPair creates a key pair from the system random source.
func GenerateKeyPair() (*KeyPair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return &KeyPair{priv: priv}, nil
}

// KeyPairFromSeed builds the key pair for a 32-byte ed25519 seed.
func KeyPairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != Ed25519SeedSize {
		return nil, fmt.Errorf("seed length must be %d bytes, got %d", Ed25519SeedSize, len(seed))
	}
	return &KeyPair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// DeriveKeyPair derives a key pair from blake2b(label || secret), so one
// secret can yield independent keys per purpose.
func DeriveKeyPair(label string, secret []byte) (*KeyPair, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("empty secret")
	}
	seed := blake2b.Sum256(append([]byte(label), secret...))
	return KeyPairFromSeed(seed[:])
}

// PublicKey returns a copy of the 32-byte public key.
func (kp *KeyPair) PublicKey() []byte {
	pub := kp.priv.Public().(ed25519.PublicKey)
	out := make([]byte, len(pub))
	copy(out, pub)
	return out
}

// Seed returns a copy of the 32-byte private seed.
func (kp *KeyPair) Seed() []byte {
	return append([]byte(nil), kp.priv.Seed()...)
}

// Address is the ledger address owned by this key.
func (kp *KeyPair) Address() Address {
	return AddressFromPublicKey(kp.PublicKey())
}

// Sign returns the 64-byte signature of message.
func (kp *KeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(kp.priv, message)
}

// VerifySignature reports whether signature is a valid ed25519 signature of
// message under publicKey. Malformed keys or signatures never verify.
func VerifySignature(publicKey, message, signature []byte) bool {
	if len(publicKey) != Ed25519PubkeySize || len(signature) != Ed25519SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature)
}

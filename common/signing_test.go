package common

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err, "Error generating key pair")

	msg := []byte("hello world")
	sig := kp.Sign(msg)
	assert.Len(t, sig, Ed25519SignatureSize)
	assert.True(t, VerifySignature(kp.PublicKey(), msg, sig))

	assert.False(t, VerifySignature(kp.PublicKey(), []byte("hello world!"), sig), "tampered message must not verify")
	assert.False(t, VerifySignature(kp.PublicKey()[:31], msg, sig), "short key must not verify")
	assert.False(t, VerifySignature(kp.PublicKey(), msg, sig[:63]), "short signature must not verify")
}

func TestKeyPairFromSeed(t *testing.T) {
	seed := bytes.Repeat([]byte{0x07}, Ed25519SeedSize)
	a, err := KeyPairFromSeed(seed)
	require.NoError(t, err)
	b, err := KeyPairFromSeed(seed)
	require.NoError(t, err)
	assert.Equal(t, a.PublicKey(), b.PublicKey())
	assert.Equal(t, seed, a.Seed())

	_, err = KeyPairFromSeed(seed[:16])
	assert.Error(t, err)
}

func TestDeriveKeyPair(t *testing.T) {
	secret := []byte("validator-0")
	a, err := DeriveKeyPair("zyth_validator", secret)
	require.NoError(t, err)
	b, err := DeriveKeyPair("zyth_validator", secret)
	require.NoError(t, err)
	c, err := DeriveKeyPair("zyth_other", secret)
	require.NoError(t, err)

	assert.Equal(t, a.Address(), b.Address())
	assert.NotEqual(t, a.Address(), c.Address(), "label must separate derived keys")

	_, err = DeriveKeyPair("zyth_validator", nil)
	assert.Error(t, err)
}

func TestAddressFromPublicKey(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	addr := AddressFromPublicKey(kp.PublicKey())
	assert.Equal(t, kp.Address(), addr)
	assert.Len(t, addr.String(), len(AddressPrefix)+40)
	assert.Equal(t, AddressPrefix+HashHex(kp.PublicKey())[:40], addr.String())

	other, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.NotEqual(t, addr, other.Address())
}

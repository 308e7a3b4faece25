// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package identity

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ochra/core/crypto/hashing"
)

func TestSignVerify(t *testing.T) {
	require := require.New(t)

	kp, err := GenerateSigningKeyPair()
	require.NoError(err)

	msg := []byte("attest this")
	sig := kp.Sign(msg)
	require.True(Verify(kp.PublicKeyBytes(), msg, sig))

	msg[0] ^= 0xFF
	require.False(Verify(kp.PublicKeyBytes(), msg, sig))
}

func TestVerifyBytesLengths(t *testing.T) {
	require := require.New(t)

	require.ErrorIs(VerifyBytes(make([]byte, 31), nil, make([]byte, 64)), ErrInvalidPublicKey)
	require.ErrorIs(VerifyBytes(make([]byte, 32), nil, make([]byte, 63)), ErrInvalidSignature)
}

func TestSigningKeyPairFromSeedDeterministic(t *testing.T) {
	require := require.New(t)

	seed := [32]byte{1, 2, 3}
	kp1 := SigningKeyPairFromSeed(seed)
	kp2 := SigningKeyPairFromSeed(seed)
	require.Equal(kp1.PublicKeyBytes(), kp2.PublicKeyBytes())
	require.Equal(kp1.NodeID(), kp2.NodeID())
}

func TestNodeIDIsHashOfPublicKey(t *testing.T) {
	require := require.New(t)

	kp, err := GenerateSigningKeyPair()
	require.NoError(err)

	pk := kp.PublicKeyBytes()
	expected := hashing.Hash(pk[:])
	require.Equal(expected[:], kp.NodeID().Bytes())
}

func TestDHSharedSecretAgreement(t *testing.T) {
	require := require.New(t)

	a, err := GenerateDHKeyPair()
	require.NoError(err)
	b, err := GenerateDHKeyPair()
	require.NoError(err)

	sab, err := a.SharedSecret(b.PublicKeyBytes())
	require.NoError(err)
	sba, err := b.SharedSecret(a.PublicKeyBytes())
	require.NoError(err)
	require.Equal(sab, sba)

	c, err := GenerateDHKeyPair()
	require.NoError(err)
	sac, err := a.SharedSecret(c.PublicKeyBytes())
	require.NoError(err)
	require.NotEqual(sab, sac)
}

func TestZeroize(t *testing.T) {
	require := require.New(t)

	kp, err := GenerateDHKeyPair()
	require.NoError(err)
	kp.Zeroize()
	require.Equal([32]byte{}, kp.private)
}

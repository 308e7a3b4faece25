// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hashing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMerkleLeafPrefixed(t *testing.T) {
	require := require.New(t)

	leaf := MerkleLeaf([]byte("test"))
	plain := Hash([]byte("test"))
	require.NotEqual(plain, leaf)

	prefixed := append([]byte{0x00}, []byte("test")...)
	require.Equal(Hash(prefixed), leaf)
}

func TestMerkleInnerMatchesManual(t *testing.T) {
	require := require.New(t)

	left := Hash([]byte("left"))
	right := Hash([]byte("right"))
	inner := MerkleInner(left, right)

	kInner := DeriveKey(ContextMerkleInnerNode, nil)
	var msg [64]byte
	copy(msg[:32], left[:])
	copy(msg[32:], right[:])
	require.Equal(KeyedHash(kInner, msg[:]), inner)
}

func TestMerkleLeafInnerSeparation(t *testing.T) {
	require := require.New(t)

	var data [32]byte
	leaf := MerkleLeaf(data[:])
	inner := MerkleInner(data, data)
	require.NotEqual(leaf, inner)
}

func TestInclusionProof(t *testing.T) {
	require := require.New(t)

	// Four-leaf tree built by hand.
	leaves := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}
	var hashes [4][HashLen]byte
	for i, l := range leaves {
		hashes[i] = MerkleLeaf(l)
	}
	n01 := MerkleInner(hashes[0], hashes[1])
	n23 := MerkleInner(hashes[2], hashes[3])
	root := MerkleInner(n01, n23)

	// Proof for leaf "c": sibling d on the right, then n01 on the left.
	proof := []ProofStep{
		{Sibling: hashes[3], IsLeft: false},
		{Sibling: n01, IsLeft: true},
	}
	require.True(VerifyInclusion(hashes[2], proof, root))

	// Wrong root fails.
	require.False(VerifyInclusion(hashes[2], proof, n01))

	// Flipped direction fails.
	bad := []ProofStep{
		{Sibling: hashes[3], IsLeft: true},
		{Sibling: n01, IsLeft: true},
	}
	require.False(VerifyInclusion(hashes[2], bad, root))
}

func TestInclusionProofEmpty(t *testing.T) {
	require := require.New(t)

	leaf := MerkleLeaf([]byte("solo"))
	require.True(VerifyInclusion(leaf, nil, leaf))
}

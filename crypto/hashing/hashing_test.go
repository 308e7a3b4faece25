// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hashing

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashDeterministic(t *testing.T) {
	require := require.New(t)

	h1 := Hash([]byte("Ochra test vector 1"))
	h2 := Hash([]byte("Ochra test vector 1"))
	require.Equal(h1, h2)

	require.NotEqual(Hash([]byte("input1")), Hash([]byte("input2")))
}

func TestHashXOFPrefixMatchesHash(t *testing.T) {
	require := require.New(t)

	out := make([]byte, 64)
	HashXOF([]byte("test"), out)

	h := Hash([]byte("test"))
	require.Equal(h[:], out[:32])
}

func TestAllContextsRegistered(t *testing.T) {
	require := require.New(t)

	require.GreaterOrEqual(len(registeredContexts), 39)
	for ctx := range registeredContexts {
		require.True(strings.HasPrefix(ctx, "Ochra v1 "), "context %q has wrong prefix", ctx)
		require.NotContains(ctx, "\x00")
	}
}

func TestIsRegisteredContext(t *testing.T) {
	require := require.New(t)

	require.True(IsRegisteredContext("Ochra v1 profile-encryption-key"))
	require.False(IsRegisteredContext("Ochra v1 made-up-context"))
}

func TestDeriveKeyDeterministic(t *testing.T) {
	require := require.New(t)

	material := make([]byte, 32)
	k1 := DeriveKey(ContextProfileEncryptionKey, material)
	k2 := DeriveKey(ContextProfileEncryptionKey, material)
	require.Equal(k1, k2)

	k3 := DeriveKey(ContextHandleLookup, material)
	require.NotEqual(k1, k3)
}

func TestDeriveKeyUnregisteredPanics(t *testing.T) {
	require := require.New(t)

	require.Panics(func() {
		DeriveKey("Ochra v1 made-up-context", []byte("material"))
	})
}

func TestKeyedHashDeterministic(t *testing.T) {
	require := require.New(t)

	key := DeriveKey(ContextMerkleInnerNode, nil)
	msg := make([]byte, 64)
	require.Equal(KeyedHash(key, msg), KeyedHash(key, msg))
}

func TestEncodeFields(t *testing.T) {
	require := require.New(t)

	encoded := EncodeFields([]byte("hello"), []byte("world"))
	require.Len(encoded, 4+5+4+5)
	require.Equal(uint32(5), binary.LittleEndian.Uint32(encoded[0:4]))
	require.Equal([]byte("hello"), encoded[4:9])
	require.Equal(uint32(5), binary.LittleEndian.Uint32(encoded[9:13]))
	require.Equal([]byte("world"), encoded[13:18])
}

func TestEncodeFieldsEmpty(t *testing.T) {
	require := require.New(t)

	require.Empty(EncodeFields())
	require.Equal([]byte{0, 0, 0, 0}, EncodeFields(nil))
}

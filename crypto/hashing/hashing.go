// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hashing provides the domain-separated BLAKE3 key schedule.
//
// BLAKE3 serves several distinct purposes across the protocol; cross-domain
// collisions are prevented by mandatory domain separation using the hash's
// built-in mode flags:
//
//   - Hash: pure hashing for content addressing and Merkle leaves
//   - DeriveKey: subkey derivation from a registered context string
//   - KeyedHash: MAC / PRF operations
//
// The context-string registry is closed. Deriving a key under an
// unregistered context is a protocol violation and panics.
package hashing

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/blake3"
)

// HashLen is the output length of all fixed-size digests.
const HashLen = 32

// Hash computes the BLAKE3 hash of data.
func Hash(data []byte) [HashLen]byte {
	return blake3.Sum256(data)
}

// HashXOF fills out with extendable-output bytes of the BLAKE3 hash of data.
// The first 32 bytes equal Hash(data).
func HashXOF(data []byte, out []byte) {
	h := blake3.New()
	_, _ = h.Write(data)
	d := h.Digest()
	_, _ = d.Read(out)
}

// DeriveKey derives a 32-byte subkey from material under the given context
// string using BLAKE3's key-derivation mode.
//
// The context must be registered; an unregistered context is a protocol
// violation and panics.
func DeriveKey(context string, material []byte) [HashLen]byte {
	if !IsRegisteredContext(context) {
		panic(fmt.Sprintf("hashing: unregistered derivation context %q", context))
	}
	var out [HashLen]byte
	blake3.DeriveKey(context, material, out[:])
	return out
}

// KeyedHash computes the keyed BLAKE3 hash (MAC/PRF) of msg under a 32-byte
// key, typically one produced by DeriveKey.
func KeyedHash(key [HashLen]byte, msg []byte) [HashLen]byte {
	h, err := blake3.NewKeyed(key[:])
	if err != nil {
		// NewKeyed only fails on a wrong-length key, which the array
		// type rules out.
		panic(err)
	}
	_, _ = h.Write(msg)
	var out [HashLen]byte
	copy(out[:], h.Sum(nil))
	return out
}

// EncodeFields length-prefixes and concatenates multiple dynamic fields:
//
//	LE32(len(f1)) || f1 || LE32(len(f2)) || f2 || ...
//
// This canonical encoding is mandatory whenever more than one dynamic field
// feeds a single derivation.
func EncodeFields(fields ...[]byte) []byte {
	total := 0
	for _, f := range fields {
		total += 4 + len(f)
	}
	out := make([]byte, 0, total)
	var lenBuf [4]byte
	for _, f := range fields {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(f)))
		out = append(out, lenBuf[:]...)
		out = append(out, f...)
	}
	return out
}

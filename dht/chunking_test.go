// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dht

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitSmallValue(t *testing.T) {
	require := require.New(t)

	value := []byte("hello, small value")
	chunks := SplitRecord(value)
	require.Len(chunks, 1)
	require.Equal(uint32(0), chunks[0].Index)
	require.Equal(uint32(1), chunks[0].Total)
	require.Equal(value, chunks[0].Data)
}

func TestSplitEmptyValue(t *testing.T) {
	require := require.New(t)

	chunks := SplitRecord(nil)
	require.Len(chunks, 1)
	require.Empty(chunks[0].Data)
}

func TestSplitExactBoundary(t *testing.T) {
	require := require.New(t)

	chunks := SplitRecord(make([]byte, ChunkDataSize))
	require.Len(chunks, 1)
	require.Len(chunks[0].Data, ChunkDataSize)
}

func TestSplitMultipleChunks(t *testing.T) {
	require := require.New(t)

	chunks := SplitRecord(make([]byte, ChunkDataSize*3+100))
	require.Len(chunks, 4)
	for i, c := range chunks {
		require.Equal(uint32(i), c.Index)
		require.Equal(uint32(4), c.Total)
	}
	require.Len(chunks[0].Data, ChunkDataSize)
	require.Len(chunks[3].Data, 100)
}

// Chunk round-trip scenario: 5000 distinct bytes split into 6 chunks,
// reassembled from a permutation, with every single-chunk drop detected.
func TestChunkRoundTripScenario(t *testing.T) {
	require := require.New(t)

	value := make([]byte, 5000)
	for i := range value {
		value[i] = byte(i * 31)
	}

	chunks := SplitRecord(value)
	require.Len(chunks, 6)
	require.Len(chunks[5].Data, 5000-5*ChunkDataSize)

	manifest := BuildManifest(chunks, uint64(len(value)))
	require.Equal(uint32(6), manifest.TotalChunks)
	require.Len(manifest.ChunkHashes, 6)

	// Reassembly works from any permutation.
	permuted := []Chunk{chunks[4], chunks[0], chunks[5], chunks[2], chunks[1], chunks[3]}
	reassembled, err := AssembleRecord(manifest, permuted)
	require.NoError(err)
	require.Equal(value, reassembled)

	// Dropping any one chunk reports exactly that index.
	for drop := uint32(0); drop < 6; drop++ {
		partial := make([]Chunk, 0, 5)
		for _, c := range chunks {
			if c.Index != drop {
				partial = append(partial, c)
			}
		}
		_, err := AssembleRecord(manifest, partial)
		var missing *MissingChunkError
		require.ErrorAs(err, &missing)
		require.Equal(drop, missing.Index)
		require.Equal(uint32(6), missing.Total)
	}
}

func TestAssembleTamperedChunk(t *testing.T) {
	require := require.New(t)

	value := make([]byte, ChunkDataSize*2)
	chunks := SplitRecord(value)
	manifest := BuildManifest(chunks, uint64(len(value)))

	chunks[0].Data[0] ^= 0xFF
	_, err := AssembleRecord(manifest, chunks)
	var mismatch *ChunkMismatchError
	require.ErrorAs(err, &mismatch)
}

func TestNeedsChunking(t *testing.T) {
	require := require.New(t)

	require.False(NeedsChunking(make([]byte, 100)))
	require.False(NeedsChunking(make([]byte, ChunkDataSize)))
	require.True(NeedsChunking(make([]byte, ChunkDataSize+1)))
}

func TestManifestFitsInRecord(t *testing.T) {
	require := require.New(t)

	// A manifest for a handful of chunks must itself be storable as one
	// record.
	chunks := SplitRecord(make([]byte, ChunkDataSize*6))
	manifest := BuildManifest(chunks, uint64(ChunkDataSize*6))

	encoded, err := MarshalManifest(manifest)
	require.NoError(err)
	require.LessOrEqual(len(encoded), MaxRecordSize)

	decoded, err := UnmarshalManifest(encoded)
	require.NoError(err)
	require.Equal(manifest.TotalChunks, decoded.TotalChunks)
	require.Equal(manifest.ChunkHashes, decoded.ChunkHashes)
}

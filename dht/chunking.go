// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dht

import (
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"github.com/ochra/core/crypto/hashing"
)

// chunkOverhead is the framing margin reserved per chunk so the encoded
// chunk record stays within MaxRecordSize.
const chunkOverhead = 48

// ChunkDataSize is the maximum data payload per chunk.
const ChunkDataSize = MaxRecordSize - chunkOverhead

// Chunk is one piece of a split value.
type Chunk struct {
	Index uint32 `cbor:"1,keyasint"`
	Total uint32 `cbor:"2,keyasint"`
	Data  []byte `cbor:"3,keyasint"`
}

// ChunkManifest lists the chunks of a split value. The manifest itself is
// stored as a record and must fit within MaxRecordSize.
type ChunkManifest struct {
	TotalChunks uint32     `cbor:"1,keyasint"`
	TotalSize   uint64     `cbor:"2,keyasint"`
	ChunkHashes [][32]byte `cbor:"3,keyasint"`
}

// MarshalManifest encodes a manifest for storage as a record value.
func MarshalManifest(m *ChunkManifest) ([]byte, error) {
	return cbor.Marshal(m)
}

// UnmarshalManifest decodes a manifest record value.
func UnmarshalManifest(data []byte) (*ChunkManifest, error) {
	var m ChunkManifest
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// NeedsChunking reports whether a value exceeds the single-chunk size.
func NeedsChunking(value []byte) bool {
	return len(value) > ChunkDataSize
}

// SplitRecord splits a value into chunks of at most ChunkDataSize bytes.
// An empty value yields a single empty chunk.
func SplitRecord(value []byte) []Chunk {
	if len(value) == 0 {
		return []Chunk{{Index: 0, Total: 1}}
	}

	total := uint32((len(value) + ChunkDataSize - 1) / ChunkDataSize)
	chunks := make([]Chunk, 0, total)
	for i := uint32(0); i < total; i++ {
		start := int(i) * ChunkDataSize
		end := start + ChunkDataSize
		if end > len(value) {
			end = len(value)
		}
		chunks = append(chunks, Chunk{
			Index: i,
			Total: total,
			Data:  append([]byte(nil), value[start:end]...),
		})
	}
	return chunks
}

// BuildManifest hashes each chunk to produce the reassembly manifest.
func BuildManifest(chunks []Chunk, totalSize uint64) *ChunkManifest {
	hashes := make([][32]byte, 0, len(chunks))
	for _, c := range chunks {
		hashes = append(hashes, hashing.Hash(c.Data))
	}
	return &ChunkManifest{
		TotalChunks: uint32(len(chunks)),
		TotalSize:   totalSize,
		ChunkHashes: hashes,
	}
}

// AssembleRecord reassembles the original value from chunks, in any order.
// Each chunk's hash must match its manifest slot and the reassembled size
// must equal the manifest total.
func AssembleRecord(manifest *ChunkManifest, chunks []Chunk) ([]byte, error) {
	sorted := append([]Chunk(nil), chunks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	if uint32(len(sorted)) != manifest.TotalChunks {
		for i := uint32(0); i < manifest.TotalChunks; i++ {
			found := false
			for _, c := range sorted {
				if c.Index == i {
					found = true
					break
				}
			}
			if !found {
				return nil, &MissingChunkError{Index: i, Total: manifest.TotalChunks}
			}
		}
	}

	result := make([]byte, 0, manifest.TotalSize)
	for i, c := range sorted {
		if i >= len(manifest.ChunkHashes) {
			return nil, &MissingChunkError{Index: c.Index, Total: manifest.TotalChunks}
		}
		if hashing.Hash(c.Data) != manifest.ChunkHashes[i] {
			return nil, &ChunkMismatchError{
				Reason: fmt.Sprintf("chunk %d hash does not match manifest", i),
			}
		}
		result = append(result, c.Data...)
	}

	if uint64(len(result)) != manifest.TotalSize {
		return nil, &ChunkMismatchError{
			Reason: fmt.Sprintf("reassembled size %d does not match expected %d", len(result), manifest.TotalSize),
		}
	}
	return result, nil
}

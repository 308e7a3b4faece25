// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dht

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func seedNodes(n byte) []NodeInfo {
	nodes := make([]NodeInfo, 0, n)
	for i := byte(1); i <= n; i++ {
		var id ids.ID
		id[0] = i
		nodes = append(nodes, makeNodeWithID(id))
	}
	return nodes
}

func TestLookupBatches(t *testing.T) {
	require := require.New(t)

	var target ids.ID
	for i := range target {
		target[i] = 0xFF
	}
	lookup := NewFindNodeLookup(target, seedNodes(5))
	require.False(lookup.IsComplete())

	batch := lookup.NextQueries()
	require.Len(batch, Alpha)

	// Responses introduce new, closer nodes.
	responses := make([]NodeInfo, 0, 3)
	for i := byte(10); i <= 12; i++ {
		var id ids.ID
		for j := range id {
			id[j] = 0xF0
		}
		id[31] = i
		responses = append(responses, makeNodeWithID(id))
	}
	lookup.AddResponses(responses)

	batch2 := lookup.NextQueries()
	require.NotEmpty(batch2)
	// The new nodes are closer to the target, so they lead the next batch.
	require.Equal(responses[0].NodeID[:31], batch2[0].NodeID[:31])
}

func TestLookupConvergence(t *testing.T) {
	require := require.New(t)

	var target ids.ID
	target[0] = 0x42
	lookup := NewFindNodeLookup(target, seedNodes(3))

	// Query all candidates without any new responses: must converge.
	for {
		batch := lookup.NextQueries()
		if len(batch) == 0 {
			break
		}
	}
	require.True(lookup.IsComplete())
	require.LessOrEqual(len(lookup.Results()), K)
}

func TestLookupDedupesResponses(t *testing.T) {
	require := require.New(t)

	var target ids.ID
	lookup := NewFindNodeLookup(target, seedNodes(3))

	// Re-adding seed nodes changes nothing.
	lookup.AddResponses(seedNodes(3))
	require.Len(lookup.Results(), 3)
}

func TestLookupCandidateCap(t *testing.T) {
	require := require.New(t)

	var target ids.ID
	lookup := NewFindNodeLookup(target, nil)

	many := make([]NodeInfo, 0, 4*K)
	for i := 0; i < 4*K; i++ {
		var id ids.ID
		id[0] = byte(i/250 + 1)
		id[1] = byte(i % 250)
		many = append(many, makeNodeWithID(id))
	}
	lookup.AddResponses(many)
	require.LessOrEqual(len(lookup.candidates), 3*K)
}

func TestLookupQueriedNeverRequeried(t *testing.T) {
	require := require.New(t)

	var target ids.ID
	lookup := NewFindNodeLookup(target, seedNodes(2))

	first := lookup.NextQueries()
	require.Len(first, 2)

	// The same nodes come back in a response; they stay queried.
	lookup.AddResponses(first)
	require.Empty(lookup.NextQueries())
	require.True(lookup.IsComplete())
}

// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package onion

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/ochra/core/utils/sampler"
	"github.com/ochra/core/utils/set"
)

func descriptor(idByte byte, addr string, asNum uint32, country [2]byte, score float32) RelayDescriptor {
	var nodeID ids.ID
	for i := range nodeID {
		nodeID[i] = idByte
	}
	return RelayDescriptor{
		NodeID:        nodeID,
		PoSrvScore:    score,
		Addr:          addr,
		ASNumber:      asNum,
		CountryCode:   country,
		BandwidthMbps: 100,
		UptimeEpochs:  100,
	}
}

func TestExtractSubnet24(t *testing.T) {
	require := require.New(t)

	subnet, ok := extractSubnet24("192.168.1.100:4433")
	require.True(ok)
	require.Equal([3]byte{192, 168, 1}, subnet)

	subnet, ok = extractSubnet24("10.0.0.1:4433")
	require.True(ok)
	require.Equal([3]byte{10, 0, 0}, subnet)

	_, ok = extractSubnet24("invalid")
	require.False(ok)

	_, ok = extractSubnet24("[::1]:4433")
	require.False(ok)
}

func TestRelayCacheOperations(t *testing.T) {
	require := require.New(t)

	cache := NewRelayCache()
	require.Zero(cache.Len())

	cache.Add(descriptor(1, "10.0.1.1:4433", 100, [2]byte{'U', 'S'}, 1.0))
	cache.Add(descriptor(2, "10.0.2.1:4433", 200, [2]byte{'D', 'E'}, 2.0))
	require.Equal(2, cache.Len())

	// Adding with the same node ID replaces.
	cache.Add(descriptor(1, "10.0.1.1:4433", 100, [2]byte{'U', 'S'}, 5.0))
	require.Equal(2, cache.Len())
	var found bool
	for _, r := range cache.All() {
		if r.NodeID[0] == 1 {
			require.InDelta(5.0, float64(r.PoSrvScore), 1e-6)
			found = true
		}
	}
	require.True(found)

	var removeID ids.ID
	for i := range removeID {
		removeID[i] = 1
	}
	cache.Remove(removeID)
	require.Equal(1, cache.Len())
}

func TestRelayCacheFilterByMinScore(t *testing.T) {
	require := require.New(t)

	cache := NewRelayCacheFromDescriptors([]RelayDescriptor{
		descriptor(1, "10.0.1.1:4433", 100, [2]byte{'U', 'S'}, 0.5),
		descriptor(2, "10.0.2.1:4433", 200, [2]byte{'D', 'E'}, 1.5),
		descriptor(3, "10.0.3.1:4433", 300, [2]byte{'J', 'P'}, 2.5),
	})
	require.Len(cache.FilterByMinScore(1.0), 2)
}

func TestSelectRelaysDistinct(t *testing.T) {
	require := require.New(t)

	cache := NewRelayCacheFromDescriptors([]RelayDescriptor{
		descriptor(1, "10.0.1.1:4433", 100, [2]byte{'U', 'S'}, 1.0),
		descriptor(2, "10.0.2.1:4433", 200, [2]byte{'D', 'E'}, 2.0),
		descriptor(3, "10.0.3.1:4433", 300, [2]byte{'J', 'P'}, 3.0),
	})

	selector := NewRelaySelector().WithSource(sampler.NewSource(1))
	selected, err := selector.SelectRelays(cache)
	require.NoError(err)
	require.Len(selected, CircuitHops)

	seen := set.NewSet[ids.ID](CircuitHops)
	for _, r := range selected {
		seen.Add(r.NodeID)
	}
	require.Equal(CircuitHops, seen.Len())
}

func TestSelectRelaysInsufficient(t *testing.T) {
	require := require.New(t)

	cache := NewRelayCacheFromDescriptors([]RelayDescriptor{
		descriptor(1, "10.0.1.1:4433", 100, [2]byte{'U', 'S'}, 1.0),
		descriptor(2, "10.0.2.1:4433", 200, [2]byte{'D', 'E'}, 2.0),
	})

	_, err := NewRelaySelector().SelectRelays(cache)
	var insufficient *InsufficientRelaysError
	require.ErrorAs(err, &insufficient)
	require.Equal(2, insufficient.Have)
}

func TestSelectRelaysSubnetConstraint(t *testing.T) {
	require := require.New(t)

	cache := NewRelayCacheFromDescriptors([]RelayDescriptor{
		descriptor(1, "10.0.1.1:4433", 100, [2]byte{'U', 'S'}, 1.0),
		descriptor(2, "10.0.1.2:4433", 200, [2]byte{'D', 'E'}, 2.0),
		descriptor(3, "10.0.2.1:4433", 300, [2]byte{'J', 'P'}, 3.0),
		descriptor(4, "10.0.3.1:4433", 400, [2]byte{'G', 'B'}, 4.0),
	})

	selector := NewRelaySelector().WithSource(sampler.NewSource(3))
	for trial := 0; trial < 20; trial++ {
		selected, err := selector.SelectRelays(cache)
		require.NoError(err)

		subnets := set.NewSet[[3]byte](CircuitHops)
		for _, r := range selected {
			subnet, ok := r.subnet24()
			require.True(ok)
			require.False(subnets.Contains(subnet), "duplicate /24 subnet in path")
			subnets.Add(subnet)
		}
	}
}

func TestSelectRelaysASConstraint(t *testing.T) {
	require := require.New(t)

	// Two relays share AS 100 in different subnets.
	cache := NewRelayCacheFromDescriptors([]RelayDescriptor{
		descriptor(1, "10.0.1.1:4433", 100, [2]byte{'U', 'S'}, 1.0),
		descriptor(2, "10.0.2.1:4433", 100, [2]byte{'D', 'E'}, 2.0),
		descriptor(3, "10.0.3.1:4433", 300, [2]byte{'J', 'P'}, 3.0),
		descriptor(4, "10.0.4.1:4433", 400, [2]byte{'G', 'B'}, 4.0),
	})

	selector := NewRelaySelector().WithSource(sampler.NewSource(5))
	for trial := 0; trial < 20; trial++ {
		selected, err := selector.SelectRelays(cache)
		require.NoError(err)

		asns := set.NewSet[uint32](CircuitHops)
		for _, r := range selected {
			require.False(asns.Contains(r.ASNumber), "duplicate AS in path")
			asns.Add(r.ASNumber)
		}
	}
}

func TestSelectRelaysExcludedAS(t *testing.T) {
	require := require.New(t)

	cache := NewRelayCacheFromDescriptors([]RelayDescriptor{
		descriptor(1, "10.0.1.1:4433", 100, [2]byte{'U', 'S'}, 1.0),
		descriptor(2, "10.0.2.1:4433", 200, [2]byte{'D', 'E'}, 2.0),
		descriptor(3, "10.0.3.1:4433", 300, [2]byte{'J', 'P'}, 3.0),
		descriptor(4, "10.0.4.1:4433", 400, [2]byte{'G', 'B'}, 4.0),
	})

	selector := NewRelaySelectorWithConstraints(SelectionConstraints{
		ExcludedAS: set.Of[uint32](100),
	}).WithSource(sampler.NewSource(9))

	selected, err := selector.SelectRelays(cache)
	require.NoError(err)
	for _, r := range selected {
		require.NotEqual(uint32(100), r.ASNumber)
	}
}

func TestSelectRelaysCountryDiversityFallback(t *testing.T) {
	require := require.New(t)

	// Only three candidates, all in the same country: the soft diversity
	// preference must relax rather than fail.
	cache := NewRelayCacheFromDescriptors([]RelayDescriptor{
		descriptor(1, "10.0.1.1:4433", 100, [2]byte{'U', 'S'}, 1.0),
		descriptor(2, "10.0.2.1:4433", 200, [2]byte{'U', 'S'}, 2.0),
		descriptor(3, "10.0.3.1:4433", 300, [2]byte{'U', 'S'}, 3.0),
	})

	selector := NewRelaySelectorWithConstraints(SelectionConstraints{
		PreferCountryDiversity: true,
	}).WithSource(sampler.NewSource(11))

	selected, err := selector.SelectRelays(cache)
	require.NoError(err)
	require.Len(selected, CircuitHops)
}

func TestSelectRelaysConstraintViolation(t *testing.T) {
	require := require.New(t)

	// Three relays, two in the same /24: no valid third pick.
	cache := NewRelayCacheFromDescriptors([]RelayDescriptor{
		descriptor(1, "10.0.1.1:4433", 100, [2]byte{'U', 'S'}, 1.0),
		descriptor(2, "10.0.1.2:4433", 200, [2]byte{'D', 'E'}, 2.0),
		descriptor(3, "10.0.2.1:4433", 300, [2]byte{'J', 'P'}, 3.0),
	})

	_, err := NewRelaySelector().WithSource(sampler.NewSource(13)).SelectRelays(cache)
	var violation *ConstraintViolationError
	require.ErrorAs(err, &violation)
}

func TestWeightedSelectionBias(t *testing.T) {
	require := require.New(t)

	// One relay dominates the weight; it should appear in nearly every
	// selected path.
	cache := NewRelayCacheFromDescriptors([]RelayDescriptor{
		descriptor(1, "10.0.1.1:4433", 100, [2]byte{'U', 'S'}, 100.0),
		descriptor(2, "10.0.2.1:4433", 200, [2]byte{'D', 'E'}, 0.001),
		descriptor(3, "10.0.3.1:4433", 300, [2]byte{'J', 'P'}, 0.001),
		descriptor(4, "10.0.4.1:4433", 400, [2]byte{'G', 'B'}, 0.001),
	})

	selector := NewRelaySelector().WithSource(sampler.NewSource(17))
	entryHits := 0
	for trial := 0; trial < 200; trial++ {
		selected, err := selector.SelectRelays(cache)
		require.NoError(err)
		if selected[0].NodeID[0] == 1 {
			entryHits++
		}
	}
	require.Greater(entryHits, 150)
}

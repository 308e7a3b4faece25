// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package onion implements the three-hop onion transport: circuit
// construction with per-hop key derivation, fixed-size Sphinx packets,
// PoSrv-weighted relay selection with diversity constraints, and Poisson
// cover traffic.
package onion

import (
	"net/netip"
	"sync"

	"github.com/luxfi/ids"

	"github.com/ochra/core/utils/sampler"
	"github.com/ochra/core/utils/set"
)

// CircuitHops is the fixed number of hops in a circuit.
const CircuitHops = 3

// minSelectionWeight floors each relay's sampling weight so zero-scored
// relays keep a nonzero selection probability.
const minSelectionWeight = 0.001

// RelayDescriptor is a relay's self-published, signed descriptor.
type RelayDescriptor struct {
	NodeID        ids.ID
	DHKey         [32]byte
	PoSrvScore    float32
	Addr          string // "ip:port"
	ASNumber      uint32
	CountryCode   [2]byte
	BandwidthMbps uint32
	UptimeEpochs  uint64
	Signature     [64]byte
}

// subnet24 returns the relay's /24 IPv4 prefix, or false when the address
// does not parse as IPv4.
func (r *RelayDescriptor) subnet24() ([3]byte, bool) {
	return extractSubnet24(r.Addr)
}

func extractSubnet24(addr string) ([3]byte, bool) {
	ap, err := netip.ParseAddrPort(addr)
	if err != nil {
		return [3]byte{}, false
	}
	ip := ap.Addr()
	if !ip.Is4() {
		return [3]byte{}, false
	}
	v4 := ip.As4()
	return [3]byte{v4[0], v4[1], v4[2]}, true
}

// RelayCache is a snapshot of known relay descriptors. Selection reads it;
// updates happen outside any selection call.
type RelayCache struct {
	mu     sync.RWMutex
	relays []RelayDescriptor
}

// NewRelayCache creates an empty relay cache.
func NewRelayCache() *RelayCache {
	return &RelayCache{}
}

// NewRelayCacheFromDescriptors creates a cache pre-populated with relays.
func NewRelayCacheFromDescriptors(relays []RelayDescriptor) *RelayCache {
	return &RelayCache{relays: append([]RelayDescriptor(nil), relays...)}
}

// Add inserts a descriptor, replacing any existing entry with the same
// node ID.
func (c *RelayCache) Add(relay RelayDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.relays {
		if c.relays[i].NodeID == relay.NodeID {
			c.relays[i] = relay
			return
		}
	}
	c.relays = append(c.relays, relay)
}

// Remove deletes a descriptor by node ID.
func (c *RelayCache) Remove(nodeID ids.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.relays[:0]
	for _, r := range c.relays {
		if r.NodeID != nodeID {
			kept = append(kept, r)
		}
	}
	c.relays = kept
}

// All returns a copy of the cached descriptors.
func (c *RelayCache) All() []RelayDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return append([]RelayDescriptor(nil), c.relays...)
}

// Len returns the number of cached relays.
func (c *RelayCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.relays)
}

// FilterByMinScore returns descriptors at or above a PoSrv score floor.
func (c *RelayCache) FilterByMinScore(minScore float32) []RelayDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []RelayDescriptor
	for _, r := range c.relays {
		if r.PoSrvScore >= minScore {
			out = append(out, r)
		}
	}
	return out
}

// SelectionConstraints restricts relay selection.
type SelectionConstraints struct {
	// ExcludedAS lists AS numbers that must not appear in the path
	// (typically the source and destination AS).
	ExcludedAS set.Set[uint32]

	// PreferCountryDiversity makes selection avoid repeating country
	// codes when enough candidates exist. Soft: relaxed in a fallback
	// pass when the hard constraints leave no eligible candidate.
	PreferCountryDiversity bool
}

// RelaySelector picks circuit paths by PoSrv-weighted random sampling
// under diversity constraints:
//
//   - all three relays distinct
//   - no two relays in the same /24 IPv4 subnet
//   - no two relays in the same AS
//   - different country codes when feasible (soft)
type RelaySelector struct {
	constraints SelectionConstraints
	source      sampler.Source
}

// NewRelaySelector creates a selector with default constraints and a
// CSPRNG-backed sampling source.
func NewRelaySelector() *RelaySelector {
	return &RelaySelector{source: sampler.NewCryptoSource()}
}

// NewRelaySelectorWithConstraints creates a selector with custom
// constraints.
func NewRelaySelectorWithConstraints(constraints SelectionConstraints) *RelaySelector {
	return &RelaySelector{
		constraints: constraints,
		source:      sampler.NewCryptoSource(),
	}
}

// WithSource swaps the sampling source (deterministic tests).
func (s *RelaySelector) WithSource(source sampler.Source) *RelaySelector {
	s.source = source
	return s
}

// SelectRelays picks CircuitHops relays from the cache, returned in path
// order [entry, middle, exit].
func (s *RelaySelector) SelectRelays(cache *RelayCache) ([]RelayDescriptor, error) {
	available := cache.All()
	if len(available) < CircuitHops {
		return nil, &InsufficientRelaysError{Need: CircuitHops, Have: len(available)}
	}

	candidates := available[:0]
	for _, r := range available {
		if !s.constraints.ExcludedAS.Contains(r.ASNumber) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) < CircuitHops {
		return nil, &InsufficientRelaysError{Need: CircuitHops, Have: len(candidates)}
	}

	selected := make([]RelayDescriptor, 0, CircuitHops)
	usedSubnets := set.NewSet[[3]byte](CircuitHops)
	usedAS := set.NewSet[uint32](CircuitHops)
	usedCountries := set.NewSet[[2]byte](CircuitHops)

	for hop := 0; hop < CircuitHops; hop++ {
		eligible := s.filterEligible(candidates, usedSubnets, usedAS, usedCountries, true, len(candidates))
		if len(eligible) == 0 {
			// Relax the country-diversity preference.
			eligible = s.filterEligible(candidates, usedSubnets, usedAS, usedCountries, false, len(candidates))
		}
		if len(eligible) == 0 {
			return nil, &ConstraintViolationError{Hop: hop}
		}

		chosen, err := s.weightedPick(eligible)
		if err != nil {
			return nil, err
		}

		if subnet, ok := chosen.subnet24(); ok {
			usedSubnets.Add(subnet)
		}
		usedAS.Add(chosen.ASNumber)
		usedCountries.Add(chosen.CountryCode)
		selected = append(selected, chosen)

		kept := candidates[:0]
		for _, r := range candidates {
			if r.NodeID != chosen.NodeID {
				kept = append(kept, r)
			}
		}
		candidates = kept
	}

	return selected, nil
}

func (s *RelaySelector) filterEligible(
	candidates []RelayDescriptor,
	usedSubnets set.Set[[3]byte],
	usedAS set.Set[uint32],
	usedCountries set.Set[[2]byte],
	applyDiversity bool,
	poolSize int,
) []RelayDescriptor {
	var eligible []RelayDescriptor
	for _, r := range candidates {
		if subnet, ok := r.subnet24(); ok && usedSubnets.Contains(subnet) {
			continue
		}
		if usedAS.Contains(r.ASNumber) {
			continue
		}
		if applyDiversity &&
			s.constraints.PreferCountryDiversity &&
			usedCountries.Contains(r.CountryCode) &&
			poolSize > CircuitHops {
			continue
		}
		eligible = append(eligible, r)
	}
	return eligible
}

// weightedPick samples one relay with probability proportional to
// max(posrvScore, minSelectionWeight).
func (s *RelaySelector) weightedPick(relays []RelayDescriptor) (RelayDescriptor, error) {
	if len(relays) == 0 {
		return RelayDescriptor{}, &InsufficientRelaysError{Need: 1, Have: 0}
	}

	weights := make([]float64, len(relays))
	for i, r := range relays {
		w := float64(r.PoSrvScore)
		if w < minSelectionWeight {
			w = minSelectionWeight
		}
		weights[i] = w
	}

	w := sampler.NewWeightedFloat(s.source)
	if err := w.Initialize(weights); err != nil {
		return RelayDescriptor{}, err
	}
	idx, err := w.Sample()
	if err != nil {
		return RelayDescriptor{}, err
	}
	return relays[idx], nil
}

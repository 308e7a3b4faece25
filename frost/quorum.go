// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package frost

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/luxfi/ids"

	"github.com/ochra/core/utils/set"
)

// QuorumConfig describes a threshold-signing committee.
type QuorumConfig struct {
	// Threshold is t in t-of-n.
	Threshold uint16 `yaml:"threshold"`

	// Members are the quorum member node IDs.
	Members []ids.ID `yaml:"members"`

	// MaxChurnPerEpoch caps membership changes (adds + removes) per
	// epoch, preventing wholesale replacement of the quorum in a single
	// rotation.
	MaxChurnPerEpoch int `yaml:"maxChurnPerEpoch"`
}

// NewQuorumConfig validates and builds a quorum configuration.
func NewQuorumConfig(threshold uint16, members []ids.ID, maxChurnPerEpoch int) (*QuorumConfig, error) {
	if len(members) == 0 {
		return nil, &QuorumError{Reason: "quorum must have at least one member"}
	}
	if threshold == 0 || int(threshold) > len(members) {
		return nil, &QuorumError{
			Reason: fmt.Sprintf("invalid threshold %d for %d members", threshold, len(members)),
		}
	}
	return &QuorumConfig{
		Threshold:        threshold,
		Members:          members,
		MaxChurnPerEpoch: maxChurnPerEpoch,
	}, nil
}

// Size returns the number of members.
func (q *QuorumConfig) Size() int {
	return len(q.Members)
}

// IsMember reports whether a node is in the quorum.
func (q *QuorumConfig) IsMember(nodeID ids.ID) bool {
	for _, m := range q.Members {
		if m == nodeID {
			return true
		}
	}
	return false
}

// EligibleNode pairs a node with its PoSrv composite score.
type EligibleNode struct {
	NodeID     ids.ID
	PoSrvScore float64
}

// SelectQuorum returns the requiredSize eligible nodes with the highest
// PoSrv scores. Ties break by ascending node ID, so every coordinator that
// sees the same eligible set selects the same quorum.
func SelectQuorum(eligibleNodes []EligibleNode, requiredSize int) ([]ids.ID, error) {
	if len(eligibleNodes) < requiredSize {
		return nil, &InsufficientSignersError{
			Required:  requiredSize,
			Available: len(eligibleNodes),
		}
	}

	sorted := append([]EligibleNode(nil), eligibleNodes...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].PoSrvScore != sorted[j].PoSrvScore {
			return sorted[i].PoSrvScore > sorted[j].PoSrvScore
		}
		return bytes.Compare(sorted[i].NodeID[:], sorted[j].NodeID[:]) < 0
	})

	selected := make([]ids.ID, 0, requiredSize)
	for _, n := range sorted[:requiredSize] {
		selected = append(selected, n.NodeID)
	}
	return selected, nil
}

// ComputeChurn returns the membership delta between the current quorum and
// a proposed member list as (added, removed).
func ComputeChurn(current *QuorumConfig, proposed []ids.ID) (int, int) {
	currentSet := set.Of(current.Members...)
	proposedSet := set.Of(proposed...)

	added := 0
	for id := range proposedSet {
		if !currentSet.Contains(id) {
			added++
		}
	}
	removed := 0
	for id := range currentSet {
		if !proposedSet.Contains(id) {
			removed++
		}
	}
	return added, removed
}

// CanRotate reports whether a proposed rotation stays within the per-epoch
// churn limit.
func CanRotate(current *QuorumConfig, proposed []ids.ID) bool {
	added, removed := ComputeChurn(current, proposed)
	return added+removed <= current.MaxChurnPerEpoch
}

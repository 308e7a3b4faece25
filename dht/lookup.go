// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dht

import (
	"sort"

	"github.com/luxfi/ids"

	"github.com/ochra/core/utils/set"
)

// FindNodeLookup is the iterative FIND_NODE state machine. Callers drive
// it: NextQueries hands out batches of Alpha un-queried candidates,
// AddResponses folds in discovered nodes, and the lookup converges once
// the top K candidates have all been queried.
//
// Convergence holds because queried candidates never re-enter the
// un-queried pool and the candidate list is capped at 3*K.
type FindNodeLookup struct {
	target     ids.ID
	queried    set.Set[ids.ID]
	candidates []lookupCandidate
	seen       set.Set[ids.ID]
}

type lookupCandidate struct {
	info     NodeInfo
	distance ids.ID
	queried  bool
}

// NewFindNodeLookup starts a lookup for target seeded with the local
// table's closest nodes.
func NewFindNodeLookup(target ids.ID, seedNodes []NodeInfo) *FindNodeLookup {
	l := &FindNodeLookup{
		target:  target,
		queried: set.NewSet[ids.ID](K),
		seen:    set.NewSet[ids.ID](len(seedNodes)),
	}
	for _, info := range seedNodes {
		if l.seen.Contains(info.NodeID) {
			continue
		}
		l.seen.Add(info.NodeID)
		l.candidates = append(l.candidates, lookupCandidate{
			info:     info,
			distance: XorDistance(info.NodeID, target),
		})
	}
	l.sortCandidates()
	return l
}

// NextQueries returns up to Alpha un-queried candidates and marks them
// queried. An empty batch means the lookup is complete.
func (l *FindNodeLookup) NextQueries() []NodeInfo {
	batch := make([]NodeInfo, 0, Alpha)
	for i := range l.candidates {
		if len(batch) >= Alpha {
			break
		}
		c := &l.candidates[i]
		if !c.queried {
			c.queried = true
			l.queried.Add(c.info.NodeID)
			batch = append(batch, c.info)
		}
	}
	return batch
}

// AddResponses folds nodes returned by a queried peer into the candidate
// list, re-sorts by distance, and caps the list at 3*K.
func (l *FindNodeLookup) AddResponses(newNodes []NodeInfo) {
	for _, info := range newNodes {
		if l.seen.Contains(info.NodeID) {
			continue
		}
		l.seen.Add(info.NodeID)
		l.candidates = append(l.candidates, lookupCandidate{
			info:     info,
			distance: XorDistance(info.NodeID, l.target),
		})
	}
	l.sortCandidates()
	if len(l.candidates) > 3*K {
		l.candidates = l.candidates[:3*K]
	}
}

// IsComplete reports whether the top K candidates have all been queried.
func (l *FindNodeLookup) IsComplete() bool {
	top := len(l.candidates)
	if top > K {
		top = K
	}
	for _, c := range l.candidates[:top] {
		if !c.queried {
			return false
		}
	}
	return true
}

// Results returns the K closest nodes found.
func (l *FindNodeLookup) Results() []NodeInfo {
	top := len(l.candidates)
	if top > K {
		top = K
	}
	out := make([]NodeInfo, 0, top)
	for _, c := range l.candidates[:top] {
		out = append(out, c.info)
	}
	return out
}

func (l *FindNodeLookup) sortCandidates() {
	sort.Slice(l.candidates, func(i, j int) bool {
		return distanceLess(l.candidates[i].distance, l.candidates[j].distance)
	})
}

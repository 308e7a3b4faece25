// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dht implements the Kademlia overlay: a 256-bucket XOR routing
// table, the iterative FIND_NODE lookup state machine, a signed record
// store with chunking for large values, and the bootstrap procedure.
package dht

import (
	"bytes"
	"math/bits"
	"sort"
	"sync"
	"time"

	"github.com/luxfi/ids"
)

const (
	// K is the maximum number of entries per k-bucket.
	K = 20

	// Alpha is the lookup concurrency factor.
	Alpha = 3

	// NumBuckets is the number of k-buckets (one per bit of the ID space).
	NumBuckets = 256
)

// NodeInfo describes a remote node: plain data only. Live connections are
// owned by the connection manager, keyed by node ID; the routing table
// never references sockets.
type NodeInfo struct {
	NodeID     ids.ID   `cbor:"1,keyasint"`
	Addr       string   `cbor:"2,keyasint"`
	SigningKey [32]byte `cbor:"3,keyasint"`
	DHKey      [32]byte `cbor:"4,keyasint"`
}

// XorDistance computes the XOR distance between two node IDs.
func XorDistance(a, b ids.ID) ids.ID {
	var out ids.ID
	for i := 0; i < len(a); i++ {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// distanceLess reports whether XOR distance a is less than b
// (lexicographic byte comparison is the correct order for XOR distances).
func distanceLess(a, b ids.ID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// leadingZeros counts leading zero bits of a 256-bit value. The second
// return is false when the value is all zeros (equal IDs).
func leadingZeros(v ids.ID) (int, bool) {
	for i, b := range v {
		if b != 0 {
			return i*8 + bits.LeadingZeros8(b), true
		}
	}
	return 0, false
}

// bucketEntry is a node entry plus its LRU metadata.
type bucketEntry struct {
	info        NodeInfo
	lastSeen    time.Time
	failedPings uint32
}

// kBucket holds up to K entries ordered by last-seen time: index 0 is the
// least-recently-seen entry.
type kBucket struct {
	entries     []bucketEntry
	lastRefresh time.Time
}

func (b *kBucket) findIndex(nodeID ids.ID) int {
	for i, e := range b.entries {
		if e.info.NodeID == nodeID {
			return i
		}
	}
	return -1
}

// AddResult reports how add was handled.
type AddResult struct {
	Kind AddResultKind

	// LeastRecentlySeen is set when Kind is AddBucketFull; the caller
	// should probe it and call EvictAndInsert on failure.
	LeastRecentlySeen NodeInfo
}

// AddResultKind enumerates routing-table add outcomes.
type AddResultKind uint8

const (
	// AddInserted means the node was newly inserted into a bucket.
	AddInserted AddResultKind = iota
	// AddUpdated means the node was already present and was moved to the
	// most-recently-seen position.
	AddUpdated
	// AddIgnored means the node was not added (e.g. it is the local node).
	AddIgnored
	// AddBucketFull means the target bucket is full; the LRS entry is
	// returned for a liveness probe.
	AddBucketFull
)

// RoutingTable is the Kademlia routing table: the local ID plus 256
// k-buckets indexed by the XOR distance prefix length.
type RoutingTable struct {
	mu      sync.Mutex
	localID ids.ID
	buckets [NumBuckets]kBucket
	now     func() time.Time
}

// NewRoutingTable creates a routing table for the given local node ID.
func NewRoutingTable(localID ids.ID) *RoutingTable {
	return NewRoutingTableWithClock(localID, time.Now)
}

// NewRoutingTableWithClock creates a routing table with an injected clock,
// for deterministic tests.
func NewRoutingTableWithClock(localID ids.ID, now func() time.Time) *RoutingTable {
	rt := &RoutingTable{
		localID: localID,
		now:     now,
	}
	start := now()
	for i := range rt.buckets {
		rt.buckets[i].lastRefresh = start
	}
	return rt
}

// LocalID returns the local node's ID.
func (rt *RoutingTable) LocalID() ids.ID {
	return rt.localID
}

// BucketIndex returns the bucket index for a node ID: the number of
// leading zero bits of the XOR distance from the local ID. The second
// return is false when the ID equals the local ID.
func (rt *RoutingTable) BucketIndex(nodeID ids.ID) (int, bool) {
	return leadingZeros(XorDistance(rt.localID, nodeID))
}

// Add inserts or refreshes a node entry per Kademlia rules:
//
//   - already present: moved to most-recently-seen, timestamp refreshed
//   - bucket has room: inserted at the most-recently-seen end
//   - bucket full: the least-recently-seen entry is returned so the
//     caller can probe it and decide whether to evict
func (rt *RoutingTable) Add(info NodeInfo) AddResult {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	idx, ok := rt.BucketIndex(info.NodeID)
	if !ok {
		return AddResult{Kind: AddIgnored}
	}
	bucket := &rt.buckets[idx]

	if i := bucket.findIndex(info.NodeID); i >= 0 {
		entry := bucket.entries[i]
		entry.lastSeen = rt.now()
		entry.failedPings = 0
		bucket.entries = append(bucket.entries[:i], bucket.entries[i+1:]...)
		bucket.entries = append(bucket.entries, entry)
		return AddResult{Kind: AddUpdated}
	}

	if len(bucket.entries) < K {
		bucket.entries = append(bucket.entries, bucketEntry{
			info:     info,
			lastSeen: rt.now(),
		})
		return AddResult{Kind: AddInserted}
	}

	return AddResult{
		Kind:              AddBucketFull,
		LeastRecentlySeen: bucket.entries[0].info,
	}
}

// EvictAndInsert removes a stale entry (after a failed liveness probe) and
// inserts the new node in its place.
func (rt *RoutingTable) EvictAndInsert(staleID ids.ID, newNode NodeInfo) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	idx, ok := rt.BucketIndex(staleID)
	if !ok {
		return ErrEntryNotFound
	}
	bucket := &rt.buckets[idx]
	i := bucket.findIndex(staleID)
	if i < 0 {
		return ErrEntryNotFound
	}
	bucket.entries = append(bucket.entries[:i], bucket.entries[i+1:]...)
	bucket.entries = append(bucket.entries, bucketEntry{
		info:     newNode,
		lastSeen: rt.now(),
	})
	return nil
}

// MarkFailedPing records a failed liveness probe against the
// least-recently-seen entry of the bucket owning nodeID.
func (rt *RoutingTable) MarkFailedPing(nodeID ids.ID) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	idx, ok := rt.BucketIndex(nodeID)
	if !ok {
		return
	}
	bucket := &rt.buckets[idx]
	if len(bucket.entries) > 0 {
		bucket.entries[0].failedPings++
	}
}

// Remove deletes a node entry, returning its info if present.
func (rt *RoutingTable) Remove(nodeID ids.ID) (NodeInfo, bool) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	idx, ok := rt.BucketIndex(nodeID)
	if !ok {
		return NodeInfo{}, false
	}
	bucket := &rt.buckets[idx]
	i := bucket.findIndex(nodeID)
	if i < 0 {
		return NodeInfo{}, false
	}
	info := bucket.entries[i].info
	bucket.entries = append(bucket.entries[:i], bucket.entries[i+1:]...)
	return info, true
}

// FindClosest returns up to count nodes ordered by ascending XOR distance
// to target.
func (rt *RoutingTable) FindClosest(target ids.ID, count int) []NodeInfo {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	type candidate struct {
		info     NodeInfo
		distance ids.ID
	}
	var all []candidate
	for i := range rt.buckets {
		for _, e := range rt.buckets[i].entries {
			all = append(all, candidate{
				info:     e.info,
				distance: XorDistance(e.info.NodeID, target),
			})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return distanceLess(all[i].distance, all[j].distance)
	})

	if count > len(all) {
		count = len(all)
	}
	out := make([]NodeInfo, 0, count)
	for _, c := range all[:count] {
		out = append(out, c.info)
	}
	return out
}

// Len returns the total number of entries across all buckets.
func (rt *RoutingTable) Len() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	n := 0
	for i := range rt.buckets {
		n += len(rt.buckets[i].entries)
	}
	return n
}

// StaleBuckets returns the indices of non-empty buckets that have not been
// refreshed within refreshInterval. Callers refresh them with a random
// lookup in the bucket's range.
func (rt *RoutingTable) StaleBuckets(refreshInterval time.Duration) []int {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	now := rt.now()
	var stale []int
	for i := range rt.buckets {
		b := &rt.buckets[i]
		if len(b.entries) > 0 && now.Sub(b.lastRefresh) > refreshInterval {
			stale = append(stale, i)
		}
	}
	return stale
}

// MarkBucketRefreshed records that a bucket was refreshed via a lookup.
func (rt *RoutingTable) MarkBucketRefreshed(bucketIdx int) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if bucketIdx >= 0 && bucketIdx < NumBuckets {
		rt.buckets[bucketIdx].lastRefresh = rt.now()
	}
}

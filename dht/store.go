// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dht

import (
	"sync"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// DefaultRecordTTL is the default record time-to-live.
const DefaultRecordTTL = 2 * time.Hour

// storeEntry wraps a record with its storage metadata.
type storeEntry struct {
	record   Record
	storedAt time.Time
	ttl      time.Duration
}

// Store is an in-memory record store with lazy expiration. Mutable records
// enforce strictly increasing sequence numbers per key.
type Store struct {
	mu      sync.Mutex
	entries map[ids.ID]storeEntry
	ttl     time.Duration
	now     func() time.Time
	log     log.Logger

	putsTotal    prometheus.Counter
	expiredTotal prometheus.Counter
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTTL overrides the default record TTL.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) { s.ttl = ttl }
}

// WithClock injects a clock for deterministic tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a record store. Metrics are registered on [reg] when it
// is non-nil.
func NewStore(logger log.Logger, reg prometheus.Registerer, opts ...StoreOption) (*Store, error) {
	s := &Store{
		entries: make(map[ids.ID]storeEntry),
		ttl:     DefaultRecordTTL,
		now:     time.Now,
		log:     logger,
		putsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ochra",
			Subsystem: "dht",
			Name:      "record_puts_total",
			Help:      "Number of records accepted into the store",
		}),
		expiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ochra",
			Subsystem: "dht",
			Name:      "records_expired_total",
			Help:      "Number of records removed by expiration",
		}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if reg != nil {
		if err := reg.Register(s.putsTotal); err != nil {
			return nil, err
		}
		if err := reg.Register(s.expiredTotal); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Put validates and stores a record. For mutable records the sequence
// number must be strictly greater than any non-expired record already
// stored under the same key; otherwise a StaleSequenceError is returned.
func (s *Store) Put(record Record) error {
	if err := record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := record.StorageKey()

	if mut, ok := record.(*MutableRecord); ok {
		if existing, found := s.entries[key]; found && !s.expired(existing) {
			if prev, isMut := existing.record.(*MutableRecord); isMut && mut.Seq <= prev.Seq {
				return &StaleSequenceError{Got: mut.Seq, Have: prev.Seq}
			}
		}
	}

	s.entries[key] = storeEntry{
		record:   record,
		storedAt: s.now(),
		ttl:      s.ttl,
	}
	s.putsTotal.Inc()
	return nil
}

// Get returns the record stored under key, or false if it is absent or
// expired. Expiry is sampled lazily at read time.
func (s *Store) Get(key ids.ID) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || s.expired(entry) {
		return nil, false
	}
	return entry.record, true
}

// Expire removes all expired entries and returns how many were removed.
func (s *Store) Expire() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if s.expired(entry) {
			delete(s.entries, key)
			removed++
		}
	}
	if removed > 0 {
		s.expiredTotal.Add(float64(removed))
		s.log.Debug("expired DHT records", zap.Int("removed", removed))
	}
	return removed
}

// Len returns the number of non-expired records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, entry := range s.entries {
		if !s.expired(entry) {
			n++
		}
	}
	return n
}

// Keys returns all non-expired storage keys.
func (s *Store) Keys() []ids.ID {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]ids.ID, 0, len(s.entries))
	for key, entry := range s.entries {
		if !s.expired(entry) {
			keys = append(keys, key)
		}
	}
	return keys
}

func (s *Store) expired(entry storeEntry) bool {
	return s.now().Sub(entry.storedAt) > entry.ttl
}

// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package onion

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/luxfi/ids"

	"github.com/ochra/core/crypto/hashing"
	"github.com/ochra/core/crypto/identity"
)

// CircuitLifetime is the maximum age of a circuit before it must be torn
// down and rebuilt with fresh relays.
const CircuitLifetime = 600 * time.Second

// HopKeys holds the per-hop symmetric material derived from one DH shared
// secret.
type HopKeys struct {
	// Key is the 32-byte AEAD key for this hop.
	Key [32]byte
	// MAC is the 32-byte keyed-hash key for header authentication.
	MAC [32]byte
	// Pad is the 32-byte key for deterministic padding streams.
	Pad [32]byte
	// Nonce is the 12-byte AEAD nonce for this hop.
	Nonce [12]byte
}

// DeriveHopKeys derives all per-hop keys from a shared secret using the
// four sphinx context strings.
func DeriveHopKeys(sharedSecret [32]byte) HopKeys {
	nonceFull := hashing.DeriveKey(hashing.ContextSphinxHopNonce, sharedSecret[:])
	keys := HopKeys{
		Key: hashing.DeriveKey(hashing.ContextSphinxHopKey, sharedSecret[:]),
		MAC: hashing.DeriveKey(hashing.ContextSphinxHopMAC, sharedSecret[:]),
		Pad: hashing.DeriveKey(hashing.ContextSphinxHopPad, sharedSecret[:]),
	}
	copy(keys.Nonce[:], nonceFull[:12])
	return keys
}

// Hop is one relay position in a built circuit.
type Hop struct {
	NodeID ids.ID
	DHKey  [32]byte
	Addr   string
	Keys   HopKeys
}

// Circuit is an active three-hop circuit. It owns its hop keys, shared
// secrets, and ephemeral DH secret; Close zeroizes all of them.
type Circuit struct {
	hops          [CircuitHops]Hop
	sharedSecrets [CircuitHops][32]byte
	ephemeral     *identity.DHKeyPair
	ephemeralPK   [32]byte
	circuitID     [16]byte
	createdAt     time.Time
	closed        bool
}

// CircuitID returns the random 16-byte circuit identifier.
func (c *Circuit) CircuitID() [16]byte {
	return c.circuitID
}

// EphemeralPublicKey returns the circuit's ephemeral X25519 public key.
func (c *Circuit) EphemeralPublicKey() [32]byte {
	return c.ephemeralPK
}

// Hops returns the three hops in path order.
func (c *Circuit) Hops() [CircuitHops]Hop {
	return c.hops
}

// EntryHop returns the first hop.
func (c *Circuit) EntryHop() Hop { return c.hops[0] }

// MiddleHop returns the second hop.
func (c *Circuit) MiddleHop() Hop { return c.hops[1] }

// ExitHop returns the third hop.
func (c *Circuit) ExitHop() Hop { return c.hops[2] }

// ExitSharedSecret returns the DH shared secret with the exit hop; the
// cover-traffic generator derives its token from it.
func (c *Circuit) ExitSharedSecret() [32]byte {
	return c.sharedSecrets[CircuitHops-1]
}

// Age returns the circuit's age at [now].
func (c *Circuit) Age(now time.Time) time.Duration {
	return now.Sub(c.createdAt)
}

// IsExpired reports whether the circuit has exceeded its lifetime.
func (c *Circuit) IsExpired(now time.Time) bool {
	return c.Age(now) >= CircuitLifetime
}

// NeedsRotation reports whether the circuit should be replaced.
func (c *Circuit) NeedsRotation(now time.Time) bool {
	return c.IsExpired(now)
}

// Remaining returns the circuit's remaining lifetime (zero if expired).
func (c *Circuit) Remaining(now time.Time) time.Duration {
	remaining := CircuitLifetime - c.Age(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Close zeroizes the circuit's key material. The circuit must not be used
// afterwards.
func (c *Circuit) Close() {
	if c.closed {
		return
	}
	c.closed = true
	for i := range c.hops {
		c.hops[i].Keys = HopKeys{}
	}
	for i := range c.sharedSecrets {
		c.sharedSecrets[i] = [32]byte{}
	}
	c.ephemeral.Zeroize()
}

// CircuitBuilder assembles a circuit from three relay descriptors added in
// path order: entry, middle, exit.
type CircuitBuilder struct {
	relays []RelayDescriptor
	now    func() time.Time
}

// NewCircuitBuilder creates a builder using the wall clock.
func NewCircuitBuilder() *CircuitBuilder {
	return &CircuitBuilder{now: time.Now}
}

// WithClock injects a clock for deterministic tests.
func (b *CircuitBuilder) WithClock(now func() time.Time) *CircuitBuilder {
	b.now = now
	return b
}

// AddRelay appends a relay to the path.
func (b *CircuitBuilder) AddRelay(relay RelayDescriptor) error {
	if len(b.relays) >= CircuitHops {
		return fmt.Errorf("circuit already has %d hops (maximum %d)", len(b.relays), CircuitHops)
	}
	b.relays = append(b.relays, relay)
	return nil
}

// Build performs the key exchange with each relay: one fresh ephemeral
// X25519 secret, a DH shared secret per hop, and the derived HopKeys. All
// hops must be distinct.
func (b *CircuitBuilder) Build() (*Circuit, error) {
	if len(b.relays) != CircuitHops {
		return nil, &InsufficientRelaysError{Need: CircuitHops, Have: len(b.relays)}
	}
	for i := 0; i < CircuitHops; i++ {
		for j := i + 1; j < CircuitHops; j++ {
			if b.relays[i].NodeID == b.relays[j].NodeID {
				return nil, fmt.Errorf("duplicate relay %s in circuit path", b.relays[i].NodeID)
			}
		}
	}

	ephemeral, err := identity.GenerateDHKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generate circuit ephemeral: %w", err)
	}

	circuit := &Circuit{
		ephemeral:   ephemeral,
		ephemeralPK: ephemeral.PublicKeyBytes(),
		createdAt:   b.now(),
	}

	for i, relay := range b.relays {
		shared, err := ephemeral.SharedSecret(relay.DHKey)
		if err != nil {
			return nil, fmt.Errorf("hop %d key exchange: %w", i, err)
		}
		circuit.sharedSecrets[i] = shared
		circuit.hops[i] = Hop{
			NodeID: relay.NodeID,
			DHKey:  relay.DHKey,
			Addr:   relay.Addr,
			Keys:   DeriveHopKeys(shared),
		}
	}

	if _, err := rand.Read(circuit.circuitID[:]); err != nil {
		return nil, fmt.Errorf("generate circuit id: %w", err)
	}
	return circuit, nil
}

// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package onion

import (
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ochra/core/crypto/hashing"
	"github.com/ochra/core/utils/sampler"
)

const (
	// DefaultCoverIntervalMs is the default mean interval between cover
	// packets.
	DefaultCoverIntervalMs = 500

	// MinCoverIntervalMs floors the inter-packet delay.
	MinCoverIntervalMs = 100

	// MaxCoverIntervalMs caps the inter-packet delay.
	MaxCoverIntervalMs = 5000

	// CoverTokenOffset is where the cover token sits in the payload; exit
	// hops check this offset and silently drop matching packets.
	CoverTokenOffset = 512
)

// CoverTrafficConfig configures cover packet generation.
type CoverTrafficConfig struct {
	// MeanIntervalMs is the mean of the exponential inter-packet
	// distribution, clamped to [MinCoverIntervalMs, MaxCoverIntervalMs].
	MeanIntervalMs uint64 `yaml:"meanIntervalMs"`

	// Enabled turns generation on or off.
	Enabled bool `yaml:"enabled"`
}

// DefaultCoverTrafficConfig returns the enabled default configuration.
func DefaultCoverTrafficConfig() CoverTrafficConfig {
	return CoverTrafficConfig{
		MeanIntervalMs: DefaultCoverIntervalMs,
		Enabled:        true,
	}
}

// NewCoverTrafficConfig returns an enabled config with the mean clamped to
// the valid range.
func NewCoverTrafficConfig(meanIntervalMs uint64) CoverTrafficConfig {
	if meanIntervalMs < MinCoverIntervalMs {
		meanIntervalMs = MinCoverIntervalMs
	}
	if meanIntervalMs > MaxCoverIntervalMs {
		meanIntervalMs = MaxCoverIntervalMs
	}
	return CoverTrafficConfig{MeanIntervalMs: meanIntervalMs, Enabled: true}
}

// DeriveCoverToken derives the 32-byte cover token from the exit hop's
// shared secret.
func DeriveCoverToken(exitSharedSecret [32]byte) [32]byte {
	return hashing.DeriveKey(hashing.ContextCoverTrafficToken, exitSharedSecret[:])
}

// IsCoverTraffic reports whether a decrypted payload carries the cover
// token at the expected offset.
func IsCoverTraffic(payload []byte, coverToken [32]byte, tokenOffset int) bool {
	if len(payload) < tokenOffset+32 {
		return false
	}
	var got [32]byte
	copy(got[:], payload[tokenOffset:tokenOffset+32])
	return got == coverToken
}

// NextCoverDelayMs maps a uniform random value in [0, 1) to an
// exponentially distributed delay with the given mean, clamped to the
// valid interval bounds.
func NextCoverDelayMs(meanMs uint64, uniform float64) uint64 {
	eps := math.Nextafter(0, 1)
	if uniform < eps {
		uniform = eps
	}
	if uniform > 1-1e-12 {
		uniform = 1 - 1e-12
	}
	delay := -float64(meanMs) * math.Log(1-uniform)
	if delay < MinCoverIntervalMs {
		delay = MinCoverIntervalMs
	}
	if delay > MaxCoverIntervalMs {
		delay = MaxCoverIntervalMs
	}
	return uint64(delay)
}

// CoverTrafficGenerator produces dummy Sphinx-sized packets at Poisson
// intervals. Packets are filled with an XOF stream derived from the cover
// token, so they are indistinguishable from real traffic on the wire;
// only the exit hop, holding the same token, can recognize and drop them.
type CoverTrafficGenerator struct {
	mu         sync.Mutex
	config     CoverTrafficConfig
	exitSecret [32]byte
	source     sampler.Source

	packetsTotal prometheus.Counter
}

// NewCoverTrafficGenerator creates a generator bound to the exit hop's
// shared secret. Metrics are registered on [reg] when it is non-nil.
func NewCoverTrafficGenerator(
	config CoverTrafficConfig,
	exitSharedSecret [32]byte,
	reg prometheus.Registerer,
) (*CoverTrafficGenerator, error) {
	g := &CoverTrafficGenerator{
		config:     config,
		exitSecret: exitSharedSecret,
		source:     sampler.NewCryptoSource(),
		packetsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ochra",
			Subsystem: "onion",
			Name:      "cover_packets_total",
			Help:      "Number of cover packets generated",
		}),
	}
	if reg != nil {
		if err := reg.Register(g.packetsTotal); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// WithSource swaps the randomness source (deterministic tests).
func (g *CoverTrafficGenerator) WithSource(source sampler.Source) *CoverTrafficGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.source = source
	return g
}

// IsEnabled reports whether generation is on.
func (g *CoverTrafficGenerator) IsEnabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.config.Enabled
}

// SetConfig replaces the timing configuration.
func (g *CoverTrafficGenerator) SetConfig(config CoverTrafficConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.config = config
}

// SetExitSecret updates the exit shared secret after circuit rotation,
// which rotates the cover token with it.
func (g *CoverTrafficGenerator) SetExitSecret(secret [32]byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.exitSecret = secret
}

// CoverToken returns the current cover token.
func (g *CoverTrafficGenerator) CoverToken() [32]byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	return DeriveCoverToken(g.exitSecret)
}

// NextDelay draws the next inter-packet delay from the exponential
// distribution.
func (g *CoverTrafficGenerator) NextDelay() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return time.Duration(NextCoverDelayMs(g.config.MeanIntervalMs, g.source.Float64())) * time.Millisecond
}

// GeneratePacket produces one 8192-byte cover packet with the token at
// CoverTokenOffset.
func (g *CoverTrafficGenerator) GeneratePacket() []byte {
	g.mu.Lock()
	token := DeriveCoverToken(g.exitSecret)
	g.mu.Unlock()

	packet := make([]byte, PacketSize)
	padKey := hashing.DeriveKey(hashing.ContextCoverPad, token[:])
	hashing.HashXOF(padKey[:], packet)
	copy(packet[CoverTokenOffset:CoverTokenOffset+32], token[:])

	g.packetsTotal.Inc()
	return packet
}

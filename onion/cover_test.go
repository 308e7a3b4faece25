// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package onion

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/ochra/core/utils/sampler"
)

func newTestGenerator(t *testing.T, config CoverTrafficConfig, secret [32]byte) *CoverTrafficGenerator {
	t.Helper()
	gen, err := NewCoverTrafficGenerator(config, secret, prometheus.NewRegistry())
	require.NoError(t, err)
	return gen
}

func TestDeriveCoverTokenDeterministic(t *testing.T) {
	require := require.New(t)

	secret := [32]byte{0xAA}
	require.Equal(DeriveCoverToken(secret), DeriveCoverToken(secret))
	require.NotEqual(DeriveCoverToken([32]byte{0x01}), DeriveCoverToken([32]byte{0x02}))
}

func TestIsCoverTraffic(t *testing.T) {
	require := require.New(t)

	token := DeriveCoverToken([32]byte{0xBB})

	payload := make([]byte, 600)
	copy(payload[CoverTokenOffset:], token[:])
	require.True(IsCoverTraffic(payload, token, CoverTokenOffset))

	require.False(IsCoverTraffic(make([]byte, 600), token, CoverTokenOffset))
	require.False(IsCoverTraffic(make([]byte, 16), token, CoverTokenOffset))
}

func TestCoverConfigClamped(t *testing.T) {
	require := require.New(t)

	require.Equal(uint64(MinCoverIntervalMs), NewCoverTrafficConfig(10).MeanIntervalMs)
	require.Equal(uint64(MaxCoverIntervalMs), NewCoverTrafficConfig(100_000).MeanIntervalMs)
	require.Equal(uint64(500), NewCoverTrafficConfig(500).MeanIntervalMs)

	def := DefaultCoverTrafficConfig()
	require.Equal(uint64(DefaultCoverIntervalMs), def.MeanIntervalMs)
	require.True(def.Enabled)
}

func TestNextCoverDelayBounds(t *testing.T) {
	require := require.New(t)

	for _, u := range []float64{0, 0.01, 0.5, 0.99, 0.999999} {
		delay := NextCoverDelayMs(500, u)
		require.GreaterOrEqual(delay, uint64(MinCoverIntervalMs))
		require.LessOrEqual(delay, uint64(MaxCoverIntervalMs))
	}

	// The exponential mapping is monotone in u.
	require.LessOrEqual(NextCoverDelayMs(500, 0.1), NextCoverDelayMs(500, 0.9))
}

func TestGeneratorPacket(t *testing.T) {
	require := require.New(t)

	secret := [32]byte{0xAA}
	gen := newTestGenerator(t, DefaultCoverTrafficConfig(), secret)
	require.True(gen.IsEnabled())

	packet := gen.GeneratePacket()
	require.Len(packet, PacketSize)

	// The token sits at the detection offset.
	token := DeriveCoverToken(secret)
	require.True(IsCoverTraffic(packet, token, CoverTokenOffset))
}

func TestGeneratorNextDelay(t *testing.T) {
	require := require.New(t)

	gen := newTestGenerator(t, NewCoverTrafficConfig(500), [32]byte{})
	gen.WithSource(sampler.NewSource(23))

	for i := 0; i < 50; i++ {
		delay := gen.NextDelay()
		require.GreaterOrEqual(delay, MinCoverIntervalMs*time.Millisecond)
		require.LessOrEqual(delay, MaxCoverIntervalMs*time.Millisecond)
	}
}

func TestGeneratorRotatesToken(t *testing.T) {
	require := require.New(t)

	gen := newTestGenerator(t, DefaultCoverTrafficConfig(), [32]byte{0x01})
	token1 := gen.CoverToken()

	// Circuit rotation updates the exit secret and with it the token.
	gen.SetExitSecret([32]byte{0x02})
	token2 := gen.CoverToken()
	require.NotEqual(token1, token2)

	packet := gen.GeneratePacket()
	require.True(IsCoverTraffic(packet, token2, CoverTokenOffset))
	require.False(IsCoverTraffic(packet, token1, CoverTokenOffset))
}

func TestGeneratorDisable(t *testing.T) {
	require := require.New(t)

	gen := newTestGenerator(t, DefaultCoverTrafficConfig(), [32]byte{})
	gen.SetConfig(CoverTrafficConfig{MeanIntervalMs: DefaultCoverIntervalMs, Enabled: false})
	require.False(gen.IsEnabled())
}

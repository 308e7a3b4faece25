// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sampler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWeightedFloatRejectsBadWeights(t *testing.T) {
	require := require.New(t)

	s := NewWeightedFloat(NewSource(0))
	require.ErrorIs(s.Initialize([]float64{1, 0, 2}), ErrInsufficientWeight)
	require.ErrorIs(s.Initialize([]float64{-1}), ErrInsufficientWeight)
	require.ErrorIs(s.Initialize(nil), ErrInsufficientWeight)
}

func TestWeightedFloatSampleInRange(t *testing.T) {
	require := require.New(t)

	s := NewWeightedFloat(NewSource(42))
	require.NoError(s.Initialize([]float64{1, 2, 3}))

	for i := 0; i < 100; i++ {
		idx, err := s.Sample()
		require.NoError(err)
		require.GreaterOrEqual(idx, 0)
		require.Less(idx, 3)
	}
}

func TestWeightedFloatBias(t *testing.T) {
	require := require.New(t)

	s := NewWeightedFloat(NewSource(7))
	require.NoError(s.Initialize([]float64{0.001, 100}))

	counts := [2]int{}
	for i := 0; i < 1000; i++ {
		idx, err := s.Sample()
		require.NoError(err)
		counts[idx]++
	}
	require.Greater(counts[1], 990)
}

func TestWeightedFloatUninitialized(t *testing.T) {
	require := require.New(t)

	s := NewWeightedFloat(NewSource(0))
	_, err := s.Sample()
	require.ErrorIs(err, ErrInsufficientWeight)
}

func TestCryptoSourceFloatRange(t *testing.T) {
	require := require.New(t)

	src := NewCryptoSource()
	for i := 0; i < 100; i++ {
		f := src.Float64()
		require.GreaterOrEqual(f, 0.0)
		require.Less(f, 1.0)
	}
}

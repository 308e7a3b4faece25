// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sampler

import "errors"

var ErrInsufficientWeight = errors.New("insufficient weight")

// WeightedFloat samples indices with probability proportional to float
// weights. Weights must be positive; Initialize rejects anything else.
type WeightedFloat interface {
	Initialize(weights []float64) error
	// Sample returns one index drawn proportionally to the weights.
	Sample() (int, error)
}

type weightedFloat struct {
	weights     []float64
	totalWeight float64
	source      Source
}

// NewWeightedFloat creates a weighted sampler over the given source.
func NewWeightedFloat(source Source) WeightedFloat {
	return &weightedFloat{source: source}
}

func (w *weightedFloat) Initialize(weights []float64) error {
	total := 0.0
	for _, weight := range weights {
		if weight <= 0 {
			return ErrInsufficientWeight
		}
		total += weight
	}
	if total <= 0 {
		return ErrInsufficientWeight
	}

	w.weights = make([]float64, len(weights))
	copy(w.weights, weights)
	w.totalWeight = total
	return nil
}

func (w *weightedFloat) Sample() (int, error) {
	if w.totalWeight <= 0 {
		return 0, ErrInsufficientWeight
	}

	threshold := w.source.Float64() * w.totalWeight
	cumulative := 0.0
	for i, weight := range w.weights {
		cumulative += weight
		if threshold < cumulative {
			return i, nil
		}
	}
	// Floating point edge case: fall back to the last index.
	return len(w.weights) - 1, nil
}

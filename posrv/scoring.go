// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package posrv computes the composite Proof-of-Service score:
//
//	score = 0.4*sigmoid(gbs/100) + 0.3*uptime + 0.2*zkporPassRate + 0.1*trustWeight
//
// Nodes at or above the quorum threshold are eligible for threshold-signing
// committee selection.
package posrv

import (
	"fmt"
	"math"
	"sort"
)

const (
	// WeightGBsServed is the weight of the gigabytes-served component.
	WeightGBsServed = 0.4

	// WeightUptime is the weight of the uptime component.
	WeightUptime = 0.3

	// WeightZKPoR is the weight of the zk-PoR pass-rate component.
	WeightZKPoR = 0.2

	// WeightTrust is the weight of the SybilGuard trust component.
	WeightTrust = 0.1

	// SigmoidDivisor normalizes gigabytes served before the sigmoid.
	SigmoidDivisor = 100.0

	// QuorumThreshold is the minimum composite score for quorum
	// eligibility.
	QuorumThreshold = 0.60
)

// OutOfRangeError reports an input metric outside its valid range.
type OutOfRangeError struct {
	Name  string
	Value float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("posrv input %s out of range: %v", e.Name, e.Value)
}

// Input holds the raw scoring metrics for one node.
type Input struct {
	// GBsServed is the gigabytes served during the scoring period.
	GBsServed float64

	// UptimeFraction is in [0, 1].
	UptimeFraction float64

	// ZKPoRPassRate is in [0, 1].
	ZKPoRPassRate float64

	// TrustWeight is in [0, 1].
	TrustWeight float64
}

// Breakdown is the per-component decomposition of a composite score.
type Breakdown struct {
	GBsServedNormalized float64
	UptimeScore         float64
	ZKPoRScore          float64
	TrustScore          float64
	Composite           float64
	QuorumEligible      bool
}

// Compute returns the composite score for the given input.
func Compute(input Input) (float64, error) {
	breakdown, err := ComputeBreakdown(input)
	if err != nil {
		return 0, err
	}
	return breakdown.Composite, nil
}

// ComputeBreakdown validates the input ranges and returns the full score
// decomposition.
func ComputeBreakdown(input Input) (Breakdown, error) {
	if err := validateFraction("uptimeFraction", input.UptimeFraction); err != nil {
		return Breakdown{}, err
	}
	if err := validateFraction("zkporPassRate", input.ZKPoRPassRate); err != nil {
		return Breakdown{}, err
	}
	if err := validateFraction("trustWeight", input.TrustWeight); err != nil {
		return Breakdown{}, err
	}
	if input.GBsServed < 0 {
		return Breakdown{}, &OutOfRangeError{Name: "gbsServed", Value: input.GBsServed}
	}

	normalized := sigmoid(input.GBsServed / SigmoidDivisor)
	composite := WeightGBsServed*normalized +
		WeightUptime*input.UptimeFraction +
		WeightZKPoR*input.ZKPoRPassRate +
		WeightTrust*input.TrustWeight

	return Breakdown{
		GBsServedNormalized: normalized,
		UptimeScore:         input.UptimeFraction,
		ZKPoRScore:          input.ZKPoRPassRate,
		TrustScore:          input.TrustWeight,
		Composite:           composite,
		QuorumEligible:      composite >= QuorumThreshold,
	}, nil
}

// RankNodes returns indices into scores sorted by composite, highest first.
func RankNodes(scores []Breakdown) []int {
	indices := make([]int, len(scores))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return scores[indices[a]].Composite > scores[indices[b]].Composite
	})
	return indices
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func validateFraction(name string, value float64) error {
	if value < 0 || value > 1 {
		return &OutOfRangeError{Name: name, Value: value}
	}
	return nil
}

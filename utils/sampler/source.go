// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sampler

import (
	"crypto/rand"
	"encoding/binary"
	mathrand "math/rand"
)

// Source represents a source of randomness
type Source interface {
	Uint64() uint64
	// Float64 returns a uniformly distributed value in [0, 1).
	Float64() float64
}

// source wraps a math/rand generator to implement Source
type source struct {
	*mathrand.Rand
}

// NewSource returns a deterministic Source with the given seed. Use this in
// tests or wherever reproducibility matters.
func NewSource(seed int64) Source {
	return &source{
		Rand: mathrand.New(mathrand.NewSource(seed)),
	}
}

// cryptoSource draws from crypto/rand.
type cryptoSource struct{}

// NewCryptoSource returns a Source backed by the operating system's CSPRNG.
func NewCryptoSource() Source {
	return cryptoSource{}
}

func (cryptoSource) Uint64() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err)
	}
	return binary.LittleEndian.Uint64(buf[:])
}

func (c cryptoSource) Float64() float64 {
	// 53 bits of precision, matching math/rand.
	return float64(c.Uint64()>>11) / (1 << 53)
}

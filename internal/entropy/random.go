// Package entropy provides the random sources used for stochastic events
// (slashing draws, contributor performance noise, demand shocks).
// Runs take a Source explicitly; nothing in the simulation reads global
// random state.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	mrand "math/rand"
)

// Source yields uniform and normal variates.
type Source interface {
	Float64() float64     // uniform in [0, 1)
	NormFloat64() float64 // standard normal
}

// Seeded is a reproducible Source. It is not safe for concurrent use; give
// each run its own.
type Seeded struct {
	rng  *mrand.Rand
	seed int64
}

// NewSeeded returns a Source whose sequence is fully determined by seed.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{rng: mrand.New(mrand.NewSource(seed)), seed: seed}
}

func (s *Seeded) Float64() float64     { return s.rng.Float64() }
func (s *Seeded) NormFloat64() float64 { return s.rng.NormFloat64() }

// Seed returns the seed the source was created with.
func (s *Seeded) Seed() int64 { return s.seed }

// Derive returns an independent seeded source for a sub-stream, so each
// mechanism of a run can draw without perturbing the others.
func (s *Seeded) Derive(offset int64) *Seeded {
	return NewSeeded(s.seed*7919 + offset)
}

// Crypto draws from crypto/rand. Runs that use it are not reproducible.
type Crypto struct{}

func (Crypto) Float64() float64 { return cryptoRandFloat() }

// NormFloat64 uses the Box-Muller transform over two crypto draws.
func (Crypto) NormFloat64() float64 {
	u1 := cryptoRandFloat()
	for u1 == 0 {
		u1 = cryptoRandFloat()
	}
	u2 := cryptoRandFloat()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}

// cryptoRandFloat generates a random float64 using crypto/rand.
func cryptoRandFloat() float64 {
	var buf [8]byte
	_, err := rand.Read(buf[:])
	if err != nil {
		// This should never happen but return 0.5 as a safe default.
		return 0.5
	}
	// Use only 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}

// Bernoulli reports whether an event with probability p occurred.
func Bernoulli(src Source, p float64) bool {
	if p <= 0 {
		return false
	}
	return src.Float64() < p
}

// Uniform returns a value in [lo, hi).
func Uniform(src Source, lo, hi float64) float64 {
	return lo + (hi-lo)*src.Float64()
}

// Normal returns a normal variate with the given mean and standard deviation.
func Normal(src Source, mean, stddev float64) float64 {
	return mean + stddev*src.NormFloat64()
}

// OrCrypto returns src, or a crypto-backed source when src is nil.
func OrCrypto(src Source) Source {
	if src == nil {
		return Crypto{}
	}
	return src
}

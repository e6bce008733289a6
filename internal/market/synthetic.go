package market

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// SyntheticConfig controls the generated market index.
type SyntheticConfig struct {
	Months     int
	Seed       int64
	Drift      float64 // mean monthly log-return
	Volatility float64 // scale of the noise-driven log-return
	Frequency  float64
	Octaves    int
}

// DefaultSyntheticConfig returns a crypto-like index: mild drift, large swings.
func DefaultSyntheticConfig(months int, seed int64) SyntheticConfig {
	return SyntheticConfig{
		Months:     months,
		Seed:       seed,
		Drift:      0.005,
		Volatility: 0.15,
		Frequency:  0.12,
		Octaves:    3,
	}
}

// SyntheticIndex produces a monthly index from layered simplex noise. It
// stands in for fetched market history so scenario runs need no network.
func SyntheticIndex(cfg SyntheticConfig) []float64 {
	noise := opensimplex.NewNormalized(cfg.Seed)
	index := make([]float64, cfg.Months)
	level := 100.0
	for t := 0; t < cfg.Months; t++ {
		if t > 0 {
			// Normalized noise is in [0, 1]; recentre to [-1, 1].
			n := octaveNoise(noise, float64(t), 0, cfg.Octaves, cfg.Frequency, 0.5)*2 - 1
			level *= math.Exp(cfg.Drift + cfg.Volatility*n)
		}
		index[t] = level
	}
	return index
}

// Synthetic returns the feature series of a synthetic index.
func Synthetic(cfg SyntheticConfig) Series {
	return Extract(SyntheticIndex(cfg))
}

func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	if maxVal == 0 {
		return 0.5
	}
	return total / maxVal
}

// Package market supplies the exogenous market signal that modulates demand:
// a monthly feature series (trend, regime, drawdown, extreme events), the
// scenarios that reshape it, and the demand-driver model the engines call
// once per month.
package market

import (
	"fmt"
	"math"
)

// Regime is the coarse market classification for a month.
type Regime uint8

const (
	RegimeSideways Regime = iota
	RegimeBull
	RegimeBear
)

func (r Regime) String() string {
	switch r {
	case RegimeBull:
		return "bull"
	case RegimeBear:
		return "bear"
	default:
		return "sideways"
	}
}

// ParseRegime converts a label back into a Regime.
func ParseRegime(s string) (Regime, error) {
	switch s {
	case "bull":
		return RegimeBull, nil
	case "bear":
		return RegimeBear, nil
	case "sideways", "":
		return RegimeSideways, nil
	}
	return RegimeSideways, fmt.Errorf("unknown regime %q", s)
}

// Thresholds used when deriving features from an index.
const (
	RegimeThreshold  = 0.05 // month-over-month change that flips bull/bear
	ExtremeThreshold = 0.10 // absolute monthly change flagged as extreme
	VolatilityWindow = 3
)

// Feature is one month of market signal.
type Feature struct {
	Index      float64 `json:"index"`
	Trend      float64 `json:"trend"`    // month-over-month fractional change
	Regime     Regime  `json:"regime"`
	Drawdown   float64 `json:"drawdown"` // (index - running peak) / running peak, <= 0
	Extreme    bool    `json:"extreme"`
	Volatility float64 `json:"volatility"`
}

// Series is a feature per absolute month; element 0 is month 1.
type Series []Feature

// At returns the feature for a 1-based absolute month.
func (s Series) At(absMonth int) (Feature, bool) {
	if absMonth < 1 || absMonth > len(s) {
		return Feature{}, false
	}
	return s[absMonth-1], true
}

// Trends returns the trend column.
func (s Series) Trends() []float64 {
	out := make([]float64, len(s))
	for i, f := range s {
		out[i] = f.Trend
	}
	return out
}

// Extract derives the feature series from a monthly trend index.
func Extract(index []float64) Series {
	out := make(Series, len(index))
	peak := 0.0
	for i, v := range index {
		f := Feature{Index: v}
		if i > 0 && index[i-1] != 0 {
			f.Trend = v/index[i-1] - 1
		}

		if v > peak {
			peak = v
		}
		if peak > 0 {
			f.Drawdown = (v - peak) / peak
		}

		switch {
		case i == 0:
			f.Regime = RegimeSideways
		case f.Trend > RegimeThreshold:
			f.Regime = RegimeBull
		case f.Trend < -RegimeThreshold:
			f.Regime = RegimeBear
		}
		f.Extreme = math.Abs(f.Trend) > ExtremeThreshold

		lo := i - VolatilityWindow + 1
		if lo < 1 {
			lo = 1
		}
		if i >= 1 {
			f.Volatility = stddev(trendsBetween(index, lo, i))
		}
		out[i] = f
	}
	return out
}

// FromTrends rebuilds an index from month-over-month changes (starting at
// 100) and extracts its features.
func FromTrends(trends []float64) Series {
	if len(trends) == 0 {
		return nil
	}
	index := make([]float64, len(trends))
	index[0] = 100
	for i := 1; i < len(trends); i++ {
		index[i] = math.Max(index[i-1]*(1+trends[i]), 1e-9)
	}
	return Extract(index)
}

func trendsBetween(index []float64, lo, hi int) []float64 {
	var out []float64
	for i := lo; i <= hi; i++ {
		if index[i-1] != 0 {
			out = append(out, index[i]/index[i-1]-1)
		}
	}
	return out
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	ss := 0.0
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

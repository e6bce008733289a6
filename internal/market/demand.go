package market

import (
	"github.com/talgya/token-sim/internal/entropy"
)

// DemandConfig sets how the market signal and random events move demand.
type DemandConfig struct {
	TrendImpact float64 `json:"trend_impact"` // growth *= 1 + trend*impact

	BullMultiplier float64 `json:"bull_multiplier"`
	BearMultiplier float64 `json:"bear_multiplier"`

	DrawdownThreshold       float64 `json:"drawdown_threshold"` // e.g. -0.3
	DrawdownGrowthFactor    float64 `json:"drawdown_growth_factor"`
	DrawdownChurnMultiplier float64 `json:"drawdown_churn_multiplier"`

	ExtremeShockMin float64 `json:"extreme_shock_min"`
	ExtremeShockMax float64 `json:"extreme_shock_max"`

	ChurnProbability float64 `json:"churn_probability"`
	ChurnMagnitude   float64 `json:"churn_magnitude"`
	ShockProbability float64 `json:"shock_probability"`
	ShockMagnitude   float64 `json:"shock_magnitude"`
}

// DefaultDemandConfig returns the market modulation constants with random
// churn and shocks switched off.
func DefaultDemandConfig() DemandConfig {
	return DemandConfig{
		TrendImpact:             0.5,
		BullMultiplier:          1.2,
		BearMultiplier:          0.8,
		DrawdownThreshold:       -0.3,
		DrawdownGrowthFactor:    0.5,
		DrawdownChurnMultiplier: 2,
		ExtremeShockMin:         0.7,
		ExtremeShockMax:         1.3,
	}
}

// DemandModel combines a feature series with the demand configuration.
// A nil or short series simply means no market modulation for those months.
type DemandModel struct {
	Config DemandConfig
	Series Series
}

// DemandStep is the outcome of one month's demand update, shared by every
// demand quantity of an engine.
type DemandStep struct {
	GrowthMultiplier float64 `json:"growth_multiplier"` // scales each base growth rate
	LevelMultiplier  float64 `json:"level_multiplier"`  // applied to the grown level
	Regime           Regime  `json:"regime"`
	Trend            float64 `json:"trend"`
	InDrawdown       bool    `json:"in_drawdown"`
	ExtremeShock     float64 `json:"extreme_shock"` // 1 when no extreme event
	ChurnEvent       bool    `json:"churn_event"`
	ShockEvent       float64 `json:"shock_event"` // signed magnitude, 0 when none
}

// Step computes the month's demand modulation. Random draws happen in a
// fixed order (extreme shock, churn, shock sign) so a seeded source replays
// exactly.
func (m DemandModel) Step(absMonth int, src entropy.Source) DemandStep {
	c := m.Config
	step := DemandStep{GrowthMultiplier: 1, LevelMultiplier: 1, ExtremeShock: 1}
	churnProb := c.ChurnProbability

	if f, ok := m.Series.At(absMonth); ok {
		step.Trend = f.Trend
		step.Regime = f.Regime
		step.GrowthMultiplier *= 1 + f.Trend*c.TrendImpact

		switch f.Regime {
		case RegimeBull:
			step.GrowthMultiplier *= c.BullMultiplier
		case RegimeBear:
			step.GrowthMultiplier *= c.BearMultiplier
		}

		if f.Drawdown < c.DrawdownThreshold {
			step.InDrawdown = true
			step.GrowthMultiplier *= c.DrawdownGrowthFactor
			if c.DrawdownChurnMultiplier > 0 {
				churnProb *= c.DrawdownChurnMultiplier
			}
		}

		if f.Extreme && src != nil {
			step.ExtremeShock = entropy.Uniform(src, c.ExtremeShockMin, c.ExtremeShockMax)
			step.LevelMultiplier *= step.ExtremeShock
		}
	}

	if src != nil && entropy.Bernoulli(src, churnProb) {
		step.ChurnEvent = true
		step.LevelMultiplier *= 1 - c.ChurnMagnitude
	}

	if src != nil && entropy.Bernoulli(src, c.ShockProbability) {
		step.ShockEvent = c.ShockMagnitude
		if src.Float64() < 0.5 {
			step.ShockEvent = -c.ShockMagnitude
		}
		step.LevelMultiplier *= 1 + step.ShockEvent
	}

	return step
}

// Grow advances one demand quantity by its base monthly growth rate under
// this month's modulation. Levels never go negative.
func (s DemandStep) Grow(level, baseRate float64) float64 {
	next := level * (1 + baseRate*s.GrowthMultiplier) * s.LevelMultiplier
	if next < 0 {
		return 0
	}
	return next
}

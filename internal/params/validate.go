package params

import (
	"github.com/talgya/token-sim/internal/economy"
	"github.com/talgya/token-sim/internal/market"
)

func validateVesting(c *checker, field string, s economy.VestingSchedule) {
	if s.CliffMonths < 0 {
		c.fail(field+".cliff_months", "must be >= 0, got %d", s.CliffMonths)
	}
	if s.LinearMonths < 0 {
		c.fail(field+".linear_months", "must be >= 0, got %d", s.LinearMonths)
	}
}

func validatePopulation(c *checker, field string, p economy.PopulationParams) {
	c.nonNegative(field+".sensitivity", p.Sensitivity)
	c.positive(field+".min_profit_usd", p.MinProfitUSD)
	c.nonNegative(field+".max_growth_rate", p.MaxGrowthRate)
	c.fraction(field+".max_decline_rate", p.MaxDeclineRate)
	if p.LagMonths < 1 {
		c.fail(field+".lag_months", "must be >= 1, got %g", p.LagMonths)
	}
	if p.Floor < 1 {
		c.fail(field+".floor", "must be >= 1, got %d", p.Floor)
	}
	if p.Ceiling != 0 && p.Ceiling < p.Floor {
		c.fail(field+".ceiling", "must be 0 or >= floor %d, got %d", p.Floor, p.Ceiling)
	}
}

func validateYield(c *checker, field string, y economy.AdaptiveYield) {
	c.nonNegative(field+".base", y.Base)
	c.nonNegative(field+".low_price", y.LowPrice)
	if y.HighPrice < y.LowPrice {
		c.fail(field+".high_price", "must be >= low_price %g, got %g", y.LowPrice, y.HighPrice)
	}
	c.nonNegative(field+".boost_factor", y.BoostFactor)
	c.nonNegative(field+".reduction_factor", y.ReductionFactor)
	c.nonNegative(field+".min", y.Min)
	if y.Max < y.Min {
		c.fail(field+".max", "must be >= min %g, got %g", y.Min, y.Max)
	}
}

func validatePrice(c *checker, field string, m economy.PriceModel) {
	c.nonNegative(field+".sensitivity", m.Sensitivity)
	c.positive(field+".floor", m.Floor)
	c.nonNegative(field+".max_change", m.MaxChange)
}

func validateDemand(c *checker, field string, d market.DemandConfig) {
	c.nonNegative(field+".trend_impact", d.TrendImpact)
	c.nonNegative(field+".bull_multiplier", d.BullMultiplier)
	c.nonNegative(field+".bear_multiplier", d.BearMultiplier)
	if d.DrawdownThreshold > 0 {
		c.fail(field+".drawdown_threshold", "must be <= 0, got %g", d.DrawdownThreshold)
	}
	c.nonNegative(field+".drawdown_growth_factor", d.DrawdownGrowthFactor)
	c.nonNegative(field+".drawdown_churn_multiplier", d.DrawdownChurnMultiplier)
	c.nonNegative(field+".extreme_shock_min", d.ExtremeShockMin)
	if d.ExtremeShockMax < d.ExtremeShockMin {
		c.fail(field+".extreme_shock_max", "must be >= extreme_shock_min %g, got %g", d.ExtremeShockMin, d.ExtremeShockMax)
	}
	c.fraction(field+".churn_probability", d.ChurnProbability)
	c.fraction(field+".churn_magnitude", d.ChurnMagnitude)
	c.fraction(field+".shock_probability", d.ShockProbability)
	c.fraction(field+".shock_magnitude", d.ShockMagnitude)
}

package economy

import "math"

// PopulationParams controls how a node population chases profitability.
type PopulationParams struct {
	Sensitivity    float64 `json:"sensitivity"`      // growth per unit of profit/threshold
	MinProfitUSD   float64 `json:"min_profit_usd"`   // monthly profit that separates growth from decline
	MaxGrowthRate  float64 `json:"max_growth_rate"`  // monthly cap on growth
	MaxDeclineRate float64 `json:"max_decline_rate"` // monthly cap on decline (positive number)
	LagMonths      float64 `json:"lag_months"`       // months to close the gap to target
	Floor          int     `json:"floor"`
	Ceiling        int     `json:"ceiling"` // 0 = unbounded
}

// GrowthRate maps monthly profit per node to a target growth rate. Above the
// threshold growth is capped at MaxGrowthRate; at or below it the (possibly
// negative) rate is capped at -MaxDeclineRate.
func GrowthRate(profitUSD float64, p PopulationParams) float64 {
	if p.MinProfitUSD <= 0 {
		return 0
	}
	ratio := profitUSD / p.MinProfitUSD
	if profitUSD > p.MinProfitUSD {
		return math.Min(p.Sensitivity*ratio, p.MaxGrowthRate)
	}
	return math.Max(p.Sensitivity*ratio, -p.MaxDeclineRate)
}

// AdjustPopulation moves current a 1/LagMonths step toward
// current*(1+growth), then bounds and rounds the result.
func AdjustPopulation(current int, profitUSD float64, p PopulationParams) (next int, growth float64) {
	growth = GrowthRate(profitUSD, p)
	lag := math.Max(p.LagMonths, 1)

	cur := float64(current)
	target := cur * (1 + growth)
	moved := cur + (target-cur)/lag

	next = int(math.Round(moved))
	next = AtLeast(next, p.Floor)
	if p.Ceiling > 0 {
		next = AtMost(next, p.Ceiling)
	}
	return next, growth
}

// ProfitPerNode converts a month's token revenue for a whole population into
// USD profit per node. A population of zero is treated as one node so the
// caller never divides by zero.
func ProfitPerNode(revenueTokens, price float64, nodes int, operatingCostUSD float64) float64 {
	n := AtLeast(nodes, 1)
	return revenueTokens*price/float64(n) - operatingCostUSD
}

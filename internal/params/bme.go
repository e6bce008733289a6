package params

import (
	"github.com/talgya/token-sim/internal/economy"
	"github.com/talgya/token-sim/internal/market"
)

// BME is the burn-and-mint equilibrium design: a flat monthly emission
// balanced against burns funded by USD income and token service fees.
type BME struct {
	MaxSupply          float64 `json:"max_supply"`
	FixedEmission      float64 `json:"fixed_emission"`
	EmissionPeriod     int     `json:"emission_period_months"` // informational; emission is unconditional
	USDBurnPercent     float64 `json:"usd_burn_percent"`
	FeeBurnPercent     float64 `json:"fee_burn_percent"`
	TokenDemandBuyRate float64 `json:"token_demand_buy_rate"`

	InitialNodes int                      `json:"initial_nodes"`
	Nodes        economy.PopulationParams `json:"nodes"`
	NodeCostUSD  float64                  `json:"node_cost_usd"`

	InitialUSDDemand   float64 `json:"initial_usd_demand"`
	InitialTokenDemand float64 `json:"initial_token_demand"`
	USDDemandGrowth    float64 `json:"usd_demand_growth"`
	TokenDemandGrowth  float64 `json:"token_demand_growth"`

	InitialPrice       float64             `json:"initial_price"`
	InitialCirculating float64             `json:"initial_circulating"`
	Price              economy.PriceModel  `json:"price"`
	Demand             market.DemandConfig `json:"demand"`
}

// DefaultBME returns the reference parameter values.
func DefaultBME() BME {
	return BME{
		MaxSupply:          1_000_000_000,
		FixedEmission:      2_000_000,
		EmissionPeriod:     120,
		USDBurnPercent:     1.0,
		FeeBurnPercent:     0.5,
		TokenDemandBuyRate: 0.1,

		InitialNodes: 30_000,
		Nodes: economy.PopulationParams{
			Sensitivity:    0.2,
			MinProfitUSD:   100,
			MaxGrowthRate:  0.2,
			MaxDeclineRate: 0.1,
			LagMonths:      3,
			Floor:          100,
		},
		NodeCostUSD: 50,

		InitialUSDDemand:   100_000,
		InitialTokenDemand: 200_000,
		USDDemandGrowth:    0.01,
		TokenDemandGrowth:  0.01,

		InitialPrice:       0.50,
		InitialCirculating: 1_000_000,
		Price:              economy.PriceModel{Sensitivity: 0.01, Floor: 0.001, MaxChange: 0.2},
		Demand:             market.DefaultDemandConfig(),
	}
}

// Clone returns a copy; BME holds no reference types.
func (p BME) Clone() BME { return p }

// Validate checks the set at load time.
func (p BME) Validate() error {
	c := &checker{prefix: "bme."}
	c.positive("max_supply", p.MaxSupply)
	c.nonNegative("fixed_emission", p.FixedEmission)
	if p.EmissionPeriod < 0 {
		c.fail("emission_period_months", "must be >= 0, got %d", p.EmissionPeriod)
	}
	c.fraction("usd_burn_percent", p.USDBurnPercent)
	c.fraction("fee_burn_percent", p.FeeBurnPercent)
	c.fraction("token_demand_buy_rate", p.TokenDemandBuyRate)

	if p.InitialNodes < 0 {
		c.fail("initial_nodes", "must be >= 0, got %d", p.InitialNodes)
	}
	validatePopulation(c, "nodes", p.Nodes)
	c.nonNegative("node_cost_usd", p.NodeCostUSD)

	c.nonNegative("initial_usd_demand", p.InitialUSDDemand)
	c.nonNegative("initial_token_demand", p.InitialTokenDemand)
	c.growth("usd_demand_growth", p.USDDemandGrowth)
	c.growth("token_demand_growth", p.TokenDemandGrowth)

	c.positive("initial_price", p.InitialPrice)
	c.nonNegative("initial_circulating", p.InitialCirculating)
	validatePrice(c, "price", p.Price)
	validateDemand(c, "demand", p.Demand)
	return c.err
}

package params

import (
	"fmt"

	"github.com/talgya/token-sim/internal/economy"
	"github.com/talgya/token-sim/internal/market"
)

// Original is the documented tokenomics: a capped node-rewards pool emitted
// on a yearly schedule scaled by network utilization, a quarterly ecosystem
// fund, USD/on-prem/oracle burns and APY-driven node adoption.
type Original struct {
	MaxSupply float64 `json:"max_supply"`

	RewardsPoolPercent   float64 `json:"rewards_pool_percent"`
	EcosystemFundPercent float64 `json:"ecosystem_fund_percent"`
	PrivateRoundPercent  float64 `json:"private_round_percent"`
	CurrentRoundPercent  float64 `json:"current_round_percent"`
	TeamPercent          float64 `json:"team_percent"`
	AdvisorsPercent      float64 `json:"advisors_percent"`

	TeamVesting         economy.VestingSchedule `json:"team_vesting"`
	AdvisorsVesting     economy.VestingSchedule `json:"advisors_vesting"`
	PrivateRoundVesting economy.VestingSchedule `json:"private_round_vesting"`
	CurrentRoundVesting economy.VestingSchedule `json:"current_round_vesting"`

	// YearlyEmission[y-1] is the absolute token budget for year y; later
	// years emit nothing.
	YearlyEmission         []float64 `json:"yearly_emission"`
	ScheduleEmissionFactor float64   `json:"schedule_emission_factor"`
	UsageEmissionFactor    float64   `json:"usage_emission_factor"`
	EmissionPerGFLOP       float64   `json:"emission_per_gflop"`
	TreasuryTaxRate        float64   `json:"treasury_tax_rate"`

	// FundQuarterlyRelease[y-1] is the share of the remaining fund released
	// per quarter in year y; later years use DefaultFundQuarterlyRelease.
	FundQuarterlyRelease        []float64 `json:"fund_quarterly_release"`
	DefaultFundQuarterlyRelease float64   `json:"default_fund_quarterly_release"`
	FundMonthlyFraction         float64   `json:"fund_monthly_fraction"`

	USDBurnPercent       float64 `json:"usd_burn_percent"`
	OnPremConversionRate float64 `json:"on_prem_conversion_rate"`
	OnPremBurnRate       float64 `json:"on_prem_burn_rate"`
	OracleCostPerRequest float64 `json:"oracle_cost_per_request"`
	OracleBurnRate       float64 `json:"oracle_burn_rate"`

	MinNodeStake         float64               `json:"min_node_stake"`
	Yield                economy.AdaptiveYield `json:"yield"`
	InitialNodeCount     int                   `json:"initial_node_count"`
	MinNodeCount         float64               `json:"min_node_count"`
	NodeOperatingCostUSD float64               `json:"node_operating_cost_usd"`
	GFLOPsPerNode        float64               `json:"gflops_per_node"` // 0 derives capacity/initial nodes

	APYWindowMonths      int     `json:"apy_window_months"`
	TargetAPYPercent     float64 `json:"target_apy_percent"`
	AdoptionSensitivity  float64 `json:"adoption_sensitivity"`
	MaxMonthlyNodeChange float64 `json:"max_monthly_node_change"`

	InitialUSDPurchase     float64 `json:"initial_usd_purchase"`
	InitialOnPremEarnings  float64 `json:"initial_on_prem_earnings"`
	InitialOracleRequests  float64 `json:"initial_oracle_requests"`
	InitialComputeDemand   float64 `json:"initial_compute_demand"`
	InitialNetworkCapacity float64 `json:"initial_network_capacity"`

	USDPurchaseGrowth   float64 `json:"usd_purchase_growth"`
	OnPremGrowth        float64 `json:"on_prem_growth"`
	OracleGrowth        float64 `json:"oracle_growth"`
	ComputeDemandGrowth float64 `json:"compute_demand_growth"`

	InitialPrice       float64             `json:"initial_price"`
	InitialCirculating float64             `json:"initial_circulating"`
	Price              economy.PriceModel  `json:"price"`
	Demand             market.DemandConfig `json:"demand"`
}

// DefaultOriginal returns the reference parameter values.
func DefaultOriginal() Original {
	return Original{
		MaxSupply: 1_000_000_000,

		RewardsPoolPercent:   0.35,
		EcosystemFundPercent: 0.30,
		PrivateRoundPercent:  0.16,
		CurrentRoundPercent:  0.05,
		TeamPercent:          0.09,
		AdvisorsPercent:      0.05,

		TeamVesting:         economy.VestingSchedule{CliffMonths: 12, LinearMonths: 36},
		AdvisorsVesting:     economy.VestingSchedule{CliffMonths: 12, LinearMonths: 24},
		PrivateRoundVesting: economy.VestingSchedule{CliffMonths: 6, LinearMonths: 36},
		CurrentRoundVesting: economy.VestingSchedule{CliffMonths: 6, LinearMonths: 36},

		YearlyEmission: []float64{
			49_000_000, 42_000_000, 35_000_000, 28_000_000, 24_500_000,
			21_000_000, 17_500_000, 14_000_000, 10_500_000, 7_000_000,
		},
		ScheduleEmissionFactor: 0.5,
		UsageEmissionFactor:    0.5,
		EmissionPerGFLOP:       0.0001,

		FundQuarterlyRelease:        []float64{0.001, 0.005},
		DefaultFundQuarterlyRelease: 0.05,
		FundMonthlyFraction:         1.0 / 3.0,

		USDBurnPercent:       1.0,
		OnPremConversionRate: 0.5,
		OnPremBurnRate:       0.02,
		OracleCostPerRequest: 0.5,
		OracleBurnRate:       0.0075,

		MinNodeStake: 100,
		Yield: economy.AdaptiveYield{
			Base:            0.10,
			LowPrice:        0.20,
			HighPrice:       0.60,
			BoostFactor:     1.5,
			ReductionFactor: 0.8,
			Min:             0.05,
			Max:             0.15,
		},
		InitialNodeCount:     35_000,
		MinNodeCount:         1,
		NodeOperatingCostUSD: 50,

		APYWindowMonths:      3,
		TargetAPYPercent:     15.0,
		AdoptionSensitivity:  0.002,
		MaxMonthlyNodeChange: 0.20,

		InitialUSDPurchase:     100_000,
		InitialOnPremEarnings:  200_000,
		InitialOracleRequests:  10_000,
		InitialComputeDemand:   1_000_000,
		InitialNetworkCapacity: 1_000_000,

		USDPurchaseGrowth:   0.01,
		OnPremGrowth:        0.005,
		OracleGrowth:        0.01,
		ComputeDemandGrowth: 0.015,

		InitialPrice:       0.431,
		InitialCirculating: 0,
		Price:              economy.PriceModel{Sensitivity: 0.01, Floor: 0.001},
		Demand:             market.DefaultDemandConfig(),
	}
}

// Pool sizes derived from MaxSupply.
func (p Original) RewardsPool() float64   { return p.MaxSupply * p.RewardsPoolPercent }
func (p Original) EcosystemFund() float64 { return p.MaxSupply * p.EcosystemFundPercent }

// Allocations returns the vesting buckets in ledger order: team, advisors,
// private round, current round.
func (p Original) Allocations() []economy.Allocation {
	return []economy.Allocation{
		{Name: "team", Total: p.MaxSupply * p.TeamPercent, Schedule: p.TeamVesting},
		{Name: "advisors", Total: p.MaxSupply * p.AdvisorsPercent, Schedule: p.AdvisorsVesting},
		{Name: "private_round", Total: p.MaxSupply * p.PrivateRoundPercent, Schedule: p.PrivateRoundVesting},
		{Name: "current_round", Total: p.MaxSupply * p.CurrentRoundPercent, Schedule: p.CurrentRoundVesting},
	}
}

// AnnualEmission returns the schedule budget for a 1-based year.
func (p Original) AnnualEmission(year int) float64 {
	if year < 1 || year > len(p.YearlyEmission) {
		return 0
	}
	return p.YearlyEmission[year-1]
}

// QuarterlyReleasePercent returns the fund release share for a 1-based year.
func (p Original) QuarterlyReleasePercent(year int) float64 {
	if year >= 1 && year <= len(p.FundQuarterlyRelease) {
		return p.FundQuarterlyRelease[year-1]
	}
	return p.DefaultFundQuarterlyRelease
}

// NodeGFLOPs returns the per-node capacity, derived from the initial network
// when not set explicitly.
func (p Original) NodeGFLOPs() float64 {
	if p.GFLOPsPerNode > 0 {
		return p.GFLOPsPerNode
	}
	if p.InitialNodeCount > 0 {
		return p.InitialNetworkCapacity / float64(p.InitialNodeCount)
	}
	return 0
}

// Clone returns a deep copy.
func (p Original) Clone() Original {
	p.YearlyEmission = append([]float64(nil), p.YearlyEmission...)
	p.FundQuarterlyRelease = append([]float64(nil), p.FundQuarterlyRelease...)
	return p
}

// Validate checks the set at load time.
func (p Original) Validate() error {
	c := &checker{prefix: "original."}
	c.positive("max_supply", p.MaxSupply)

	shares := []struct {
		name string
		v    float64
	}{
		{"rewards_pool_percent", p.RewardsPoolPercent},
		{"ecosystem_fund_percent", p.EcosystemFundPercent},
		{"private_round_percent", p.PrivateRoundPercent},
		{"current_round_percent", p.CurrentRoundPercent},
		{"team_percent", p.TeamPercent},
		{"advisors_percent", p.AdvisorsPercent},
	}
	total := 0.0
	for _, s := range shares {
		c.fraction(s.name, s.v)
		total += s.v
	}
	if total > 1+1e-9 {
		c.fail("allocations", "sum to %g, more than the max supply", total)
	}

	validateVesting(c, "team_vesting", p.TeamVesting)
	validateVesting(c, "advisors_vesting", p.AdvisorsVesting)
	validateVesting(c, "private_round_vesting", p.PrivateRoundVesting)
	validateVesting(c, "current_round_vesting", p.CurrentRoundVesting)

	for i, v := range p.YearlyEmission {
		c.nonNegative(fmt.Sprintf("yearly_emission[%d]", i+1), v)
	}
	c.fraction("schedule_emission_factor", p.ScheduleEmissionFactor)
	c.fraction("usage_emission_factor", p.UsageEmissionFactor)
	c.nonNegative("emission_per_gflop", p.EmissionPerGFLOP)
	c.fraction("treasury_tax_rate", p.TreasuryTaxRate)

	for i, v := range p.FundQuarterlyRelease {
		c.fraction(fmt.Sprintf("fund_quarterly_release[%d]", i+1), v)
	}
	c.fraction("default_fund_quarterly_release", p.DefaultFundQuarterlyRelease)
	c.fraction("fund_monthly_fraction", p.FundMonthlyFraction)

	c.fraction("usd_burn_percent", p.USDBurnPercent)
	c.fraction("on_prem_conversion_rate", p.OnPremConversionRate)
	c.fraction("on_prem_burn_rate", p.OnPremBurnRate)
	c.nonNegative("oracle_cost_per_request", p.OracleCostPerRequest)
	c.fraction("oracle_burn_rate", p.OracleBurnRate)

	c.nonNegative("min_node_stake", p.MinNodeStake)
	validateYield(c, "yield", p.Yield)
	if p.InitialNodeCount < 0 {
		c.fail("initial_node_count", "must be >= 0, got %d", p.InitialNodeCount)
	}
	c.nonNegative("min_node_count", p.MinNodeCount)
	c.nonNegative("node_operating_cost_usd", p.NodeOperatingCostUSD)
	c.nonNegative("gflops_per_node", p.GFLOPsPerNode)

	if p.APYWindowMonths < 1 {
		c.fail("apy_window_months", "must be >= 1, got %d", p.APYWindowMonths)
	}
	c.nonNegative("adoption_sensitivity", p.AdoptionSensitivity)
	c.fraction("max_monthly_node_change", p.MaxMonthlyNodeChange)

	c.nonNegative("initial_usd_purchase", p.InitialUSDPurchase)
	c.nonNegative("initial_on_prem_earnings", p.InitialOnPremEarnings)
	c.nonNegative("initial_oracle_requests", p.InitialOracleRequests)
	c.nonNegative("initial_compute_demand", p.InitialComputeDemand)
	c.nonNegative("initial_network_capacity", p.InitialNetworkCapacity)
	c.nonNegative("initial_circulating", p.InitialCirculating)
	c.growth("usd_purchase_growth", p.USDPurchaseGrowth)
	c.growth("on_prem_growth", p.OnPremGrowth)
	c.growth("oracle_growth", p.OracleGrowth)
	c.growth("compute_demand_growth", p.ComputeDemandGrowth)

	c.positive("initial_price", p.InitialPrice)
	validatePrice(c, "price", p.Price)
	validateDemand(c, "demand", p.Demand)
	return c.err
}

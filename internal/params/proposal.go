package params

import (
	"github.com/talgya/token-sim/internal/economy"
	"github.com/talgya/token-sim/internal/market"
)

// SlashRule is one independent per-node slashing event.
type SlashRule struct {
	Probability float64 `json:"probability"` // per node per month
	Fraction    float64 `json:"fraction"`    // share of the node's stake removed
}

// Proposal is the halving-emission design with performance-weighted
// contributor rewards, service fees, a treasury, validators and slashing.
type Proposal struct {
	MaxSupply float64 `json:"max_supply"`

	TeamPercent          float64 `json:"team_percent"`
	AdvisorsPercent      float64 `json:"advisors_percent"`
	InvestorsPercent     float64 `json:"investors_percent"`
	EcosystemFundPercent float64 `json:"ecosystem_fund_percent"`

	TeamVesting      economy.VestingSchedule `json:"team_vesting"`
	AdvisorsVesting  economy.VestingSchedule `json:"advisors_vesting"`
	InvestorsVesting economy.VestingSchedule `json:"investors_vesting"`
	FundReleaseYears int                     `json:"fund_release_years"`

	HalvingPeriodMonths        int     `json:"halving_period_months"`
	EmissionBufferPercent      float64 `json:"emission_buffer_percent"`
	TargetUtilization          float64 `json:"target_utilization"`
	TreasuryTaxFromEmissions   float64 `json:"treasury_tax_from_emissions"`
	TreasuryTaxFromFees        float64 `json:"treasury_tax_from_fees"`
	TreasuryOutflowRateMonthly float64 `json:"treasury_outflow_rate_monthly"`

	AvgUptime          float64 `json:"avg_uptime"`
	UptimeStdDev       float64 `json:"uptime_std_dev"`
	AvgGFLOPsMonthly   float64 `json:"avg_gflops_monthly"`
	GFLOPsStdDevFactor float64 `json:"gflops_std_dev_factor"`

	ContributorStake     float64   `json:"contributor_stake"`
	ValidatorStake       float64   `json:"validator_stake"`
	ValidatorDowntime    SlashRule `json:"validator_downtime"`
	ValidatorMalfeasance SlashRule `json:"validator_malfeasance"`
	ContributorFailure   SlashRule `json:"contributor_failure"`
	ValidatorYieldAnnual float64   `json:"validator_yield_annual"`

	AvgTxFee           float64 `json:"avg_tx_fee"`
	TxPerNode          float64 `json:"tx_per_node"`
	ServiceFeePercent  float64 `json:"service_fee_percent"`
	FeeBurnFraction    float64 `json:"fee_burn_fraction"`
	ValidatorFeeShare  float64 `json:"validator_fee_share"`
	USDBuyAndBurn      bool    `json:"usd_buy_and_burn"`
	USDToCreditFXFee   float64 `json:"usd_to_credit_fx_fee"`
	TokenDemandBuyRate float64 `json:"token_demand_buy_rate"` // share of token payments counted as buy pressure

	InitialContributors int                      `json:"initial_contributors"`
	InitialValidators   int                      `json:"initial_validators"`
	Contributors        economy.PopulationParams `json:"contributors"`
	Validators          economy.PopulationParams `json:"validators"`
	ContributorCostUSD  float64                  `json:"contributor_cost_usd"`
	ValidatorCostUSD    float64                  `json:"validator_cost_usd"`

	InitialUSDDemand   float64 `json:"initial_usd_demand"`
	InitialTokenDemand float64 `json:"initial_token_demand"`
	USDDemandGrowth    float64 `json:"usd_demand_growth"`
	TokenDemandGrowth  float64 `json:"token_demand_growth"`

	InitialPrice       float64             `json:"initial_price"`
	InitialCirculating float64             `json:"initial_circulating"`
	Price              economy.PriceModel  `json:"price"`
	Demand             market.DemandConfig `json:"demand"`
}

// DefaultProposal returns the reference parameter values.
func DefaultProposal() Proposal {
	demand := market.DefaultDemandConfig()
	demand.ChurnProbability = 0.05
	demand.ChurnMagnitude = 0.1
	demand.ShockProbability = 0.03
	demand.ShockMagnitude = 0.2

	return Proposal{
		MaxSupply: 100_000_000,

		TeamPercent:          0.15,
		AdvisorsPercent:      0.05,
		InvestorsPercent:     0.20,
		EcosystemFundPercent: 0.10,

		TeamVesting:      economy.VestingSchedule{CliffMonths: 12, LinearMonths: 36},
		AdvisorsVesting:  economy.VestingSchedule{CliffMonths: 12, LinearMonths: 24},
		InvestorsVesting: economy.VestingSchedule{CliffMonths: 6, LinearMonths: 30},
		FundReleaseYears: 10,

		HalvingPeriodMonths:        48,
		EmissionBufferPercent:      0.01,
		TargetUtilization:          0.8,
		TreasuryTaxFromEmissions:   0.05,
		TreasuryTaxFromFees:        0.10,
		TreasuryOutflowRateMonthly: 0.02,

		AvgUptime:          0.98,
		UptimeStdDev:       0.05,
		AvgGFLOPsMonthly:   5000,
		GFLOPsStdDevFactor: 0.1,

		ContributorStake:     100,
		ValidatorStake:       5000,
		ValidatorDowntime:    SlashRule{Probability: 0.01, Fraction: 0.005},
		ValidatorMalfeasance: SlashRule{Probability: 0.001, Fraction: 0.05},
		ContributorFailure:   SlashRule{Probability: 0.005, Fraction: 0.01},
		ValidatorYieldAnnual: 0.05,

		AvgTxFee:           0.01,
		TxPerNode:          10,
		ServiceFeePercent:  0.01,
		FeeBurnFraction:    0.5,
		ValidatorFeeShare:  0.3,
		USDBuyAndBurn:      true,
		USDToCreditFXFee:   0.015,
		TokenDemandBuyRate: 0.1,

		InitialContributors: 30_000,
		InitialValidators:   50,
		Contributors: economy.PopulationParams{
			Sensitivity:    0.1,
			MinProfitUSD:   100,
			MaxGrowthRate:  0.2,
			MaxDeclineRate: 0.1,
			LagMonths:      3,
			Floor:          100,
		},
		Validators: economy.PopulationParams{
			Sensitivity:    0.05,
			MinProfitUSD:   200,
			MaxGrowthRate:  0.1,
			MaxDeclineRate: 0.05,
			LagMonths:      6,
			Floor:          1,
		},
		ContributorCostUSD: 50,
		ValidatorCostUSD:   100,

		InitialUSDDemand:   100_000,
		InitialTokenDemand: 200_000,
		USDDemandGrowth:    0.01,
		TokenDemandGrowth:  0.01,

		InitialPrice:       0.50,
		InitialCirculating: 1_000_000,
		Price:              economy.PriceModel{Sensitivity: 0.01, Floor: 0.001, MaxChange: 0.2},
		Demand:             demand,
	}
}

// Allocation sizes derived from MaxSupply.
func (p Proposal) EcosystemFund() float64 { return p.MaxSupply * p.EcosystemFundPercent }

// EmissionPool is what remains of MaxSupply after the fixed allocations.
func (p Proposal) EmissionPool() float64 {
	locked := p.TeamPercent + p.AdvisorsPercent + p.InvestorsPercent + p.EcosystemFundPercent
	return economy.AtLeast(p.MaxSupply*(1-locked), 0)
}

// InitialMonthlyEmission is the first-period target whose infinite halving
// series sums to the emission pool.
func (p Proposal) InitialMonthlyEmission() float64 {
	if p.HalvingPeriodMonths <= 0 {
		return 0
	}
	return p.EmissionPool() / 2 / float64(p.HalvingPeriodMonths)
}

// MonthlyFundRelease is the constant linear ecosystem fund release.
func (p Proposal) MonthlyFundRelease() float64 {
	if p.FundReleaseYears <= 0 {
		return p.EcosystemFund()
	}
	return p.EcosystemFund() / float64(p.FundReleaseYears*12)
}

// Allocations returns the vesting buckets: team, advisors, investors.
func (p Proposal) Allocations() []economy.Allocation {
	return []economy.Allocation{
		{Name: "team", Total: p.MaxSupply * p.TeamPercent, Schedule: p.TeamVesting},
		{Name: "advisors", Total: p.MaxSupply * p.AdvisorsPercent, Schedule: p.AdvisorsVesting},
		{Name: "investors", Total: p.MaxSupply * p.InvestorsPercent, Schedule: p.InvestorsVesting},
	}
}

// TargetStake is the stake the given populations must lock.
func (p Proposal) TargetStake(contributors, validators int) float64 {
	return float64(contributors)*p.ContributorStake + float64(validators)*p.ValidatorStake
}

// Clone returns a copy; Proposal holds no reference types.
func (p Proposal) Clone() Proposal { return p }

// Validate checks the set at load time.
func (p Proposal) Validate() error {
	c := &checker{prefix: "proposal."}
	c.positive("max_supply", p.MaxSupply)

	total := 0.0
	for _, s := range []struct {
		name string
		v    float64
	}{
		{"team_percent", p.TeamPercent},
		{"advisors_percent", p.AdvisorsPercent},
		{"investors_percent", p.InvestorsPercent},
		{"ecosystem_fund_percent", p.EcosystemFundPercent},
	} {
		c.fraction(s.name, s.v)
		total += s.v
	}
	if total > 1+1e-9 {
		c.fail("allocations", "sum to %g, more than the max supply", total)
	}

	validateVesting(c, "team_vesting", p.TeamVesting)
	validateVesting(c, "advisors_vesting", p.AdvisorsVesting)
	validateVesting(c, "investors_vesting", p.InvestorsVesting)
	if p.FundReleaseYears < 0 {
		c.fail("fund_release_years", "must be >= 0, got %d", p.FundReleaseYears)
	}

	if p.HalvingPeriodMonths <= 0 {
		c.fail("halving_period_months", "must be > 0, got %d", p.HalvingPeriodMonths)
	}
	c.nonNegative("emission_buffer_percent", p.EmissionBufferPercent)
	c.nonNegative("target_utilization", p.TargetUtilization)
	c.fraction("treasury_tax_from_emissions", p.TreasuryTaxFromEmissions)
	c.fraction("treasury_tax_from_fees", p.TreasuryTaxFromFees)
	c.fraction("treasury_outflow_rate_monthly", p.TreasuryOutflowRateMonthly)

	c.fraction("avg_uptime", p.AvgUptime)
	c.nonNegative("uptime_std_dev", p.UptimeStdDev)
	c.nonNegative("avg_gflops_monthly", p.AvgGFLOPsMonthly)
	c.nonNegative("gflops_std_dev_factor", p.GFLOPsStdDevFactor)

	c.nonNegative("contributor_stake", p.ContributorStake)
	c.nonNegative("validator_stake", p.ValidatorStake)
	validateSlash(c, "validator_downtime", p.ValidatorDowntime)
	validateSlash(c, "validator_malfeasance", p.ValidatorMalfeasance)
	validateSlash(c, "contributor_failure", p.ContributorFailure)
	c.nonNegative("validator_yield_annual", p.ValidatorYieldAnnual)

	c.nonNegative("avg_tx_fee", p.AvgTxFee)
	c.nonNegative("tx_per_node", p.TxPerNode)
	c.fraction("service_fee_percent", p.ServiceFeePercent)
	c.fraction("fee_burn_fraction", p.FeeBurnFraction)
	c.fraction("validator_fee_share", p.ValidatorFeeShare)
	c.fraction("usd_to_credit_fx_fee", p.USDToCreditFXFee)
	c.fraction("token_demand_buy_rate", p.TokenDemandBuyRate)

	if p.InitialContributors < 0 {
		c.fail("initial_contributors", "must be >= 0, got %d", p.InitialContributors)
	}
	if p.InitialValidators < 0 {
		c.fail("initial_validators", "must be >= 0, got %d", p.InitialValidators)
	}
	validatePopulation(c, "contributors", p.Contributors)
	validatePopulation(c, "validators", p.Validators)
	c.nonNegative("contributor_cost_usd", p.ContributorCostUSD)
	c.nonNegative("validator_cost_usd", p.ValidatorCostUSD)

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

func validateSlash(c *checker, field string, r SlashRule) {
	c.fraction(field+".probability", r.Probability)
	c.fraction(field+".fraction", r.Fraction)
}

package engine

import (
	"fmt"

	"github.com/talgya/token-sim/internal/economy"
	"github.com/talgya/token-sim/internal/entropy"
	"github.com/talgya/token-sim/internal/market"
	"github.com/talgya/token-sim/internal/params"
)

// OriginalState is the full state of the documented tokenomics model.
type OriginalState struct {
	Year  int `json:"year"`
	Month int `json:"month"`

	Circulating  float64 `json:"circulating"`
	TotalBurned  float64 `json:"total_burned"`
	TotalEmitted float64 `json:"total_emitted"`
	Price        float64 `json:"price"`

	RewardsPool   float64 `json:"rewards_pool"`
	EcosystemFund float64 `json:"ecosystem_fund"`
	Treasury      float64 `json:"treasury"`

	// Vested[i] is cumulative for params.Original.Allocations()[i].
	Vested []float64 `json:"vested"`

	USDPurchase     float64 `json:"usd_purchase"`
	OnPremEarnings  float64 `json:"on_prem_earnings"`
	OracleRequests  float64 `json:"oracle_requests"`
	ComputeDemand   float64 `json:"compute_demand"`
	NetworkCapacity float64 `json:"network_capacity"`

	Nodes       float64           `json:"nodes"`
	TotalStaked float64           `json:"total_staked"`
	APY         economy.APYWindow `json:"apy"`

	QuarterTarget   float64 `json:"quarter_target"`
	QuarterReleased float64 `json:"quarter_released"`

	Flows OriginalFlows `json:"flows"`
}

// OriginalFlows are this month's movements, recomputed every step.
type OriginalFlows struct {
	Vested             float64 `json:"vested"`
	Emitted            float64 `json:"emitted"`
	EmissionToTreasury float64 `json:"emission_to_treasury"`
	FundReleased       float64 `json:"fund_released"`
	Utilization        float64 `json:"utilization"`

	NodeRevenueUSD   float64 `json:"node_revenue_usd"`
	ProfitPerNodeUSD float64 `json:"profit_per_node_usd"`
	APYPercent       float64 `json:"apy_percent"`
	AverageAPY       float64 `json:"average_apy"`
	BaseYield        float64 `json:"base_yield"`
	NodeGrowth       float64 `json:"node_growth"`
	NewlyStaked      float64 `json:"newly_staked"`

	BurnedUSD    float64 `json:"burned_usd"`
	BurnedOnPrem float64 `json:"burned_on_prem"`
	BurnedOracle float64 `json:"burned_oracle"`

	DemandPressure float64 `json:"demand_pressure"`
	SupplyPressure float64 `json:"supply_pressure"`

	Demand market.DemandStep `json:"demand"`
}

// NewOriginalState builds the launch state from p. The initial node stake is
// treated as locked before launch and does not come out of circulation.
func NewOriginalState(p params.Original) OriginalState {
	return OriginalState{
		Circulating:     p.InitialCirculating,
		Price:           p.InitialPrice,
		RewardsPool:     p.RewardsPool(),
		EcosystemFund:   p.EcosystemFund(),
		Vested:          make([]float64, len(p.Allocations())),
		USDPurchase:     p.InitialUSDPurchase,
		OnPremEarnings:  p.InitialOnPremEarnings,
		OracleRequests:  p.InitialOracleRequests,
		ComputeDemand:   p.InitialComputeDemand,
		NetworkCapacity: p.InitialNetworkCapacity,
		Nodes:           float64(p.InitialNodeCount),
		TotalStaked:     float64(p.InitialNodeCount) * p.MinNodeStake,
		APY:             economy.APYWindow{Size: p.APYWindowMonths},
		Flows:           OriginalFlows{BaseYield: p.Yield.Base},
	}
}

// Clone returns a deep copy.
func (s OriginalState) Clone() OriginalState {
	s.Vested = append([]float64(nil), s.Vested...)
	s.APY = s.APY.Clone()
	return s
}

func (s OriginalState) Summary() Summary {
	return Summary{
		Time:        Time{Abs: (s.Year-1)*MonthsPerYear + s.Month, Year: s.Year, Month: s.Month},
		Price:       s.Price,
		Circulating: s.Circulating,
		Nodes:       s.Nodes,
		Staked:      s.TotalStaked,
		Burned:      s.TotalBurned,
		Emitted:     s.TotalEmitted,
		Treasury:    s.Treasury,
		Utilization: s.Flows.Utilization,
		APY:         s.Flows.APYPercent,
	}
}

// Original steps the documented model.
type Original struct {
	p      params.Original
	allocs []economy.Allocation
	demand market.DemandModel
	src    entropy.Source
	s      OriginalState
}

// NewOriginal prepares an engine from a validated parameter set.
func NewOriginal(init OriginalState, p params.Original, env Env) (*Original, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	allocs := p.Allocations()
	if len(init.Vested) != len(allocs) {
		return nil, &StateError{Field: "vested", Reason: fmt.Sprintf("want %d allocations, got %d", len(allocs), len(init.Vested))}
	}
	if err := checkBalances(map[string]float64{
		"circulating":    init.Circulating,
		"rewards_pool":   init.RewardsPool,
		"ecosystem_fund": init.EcosystemFund,
		"treasury":       init.Treasury,
		"nodes":          init.Nodes,
		"total_staked":   init.TotalStaked,
		"price":          init.Price,
	}); err != nil {
		return nil, err
	}

	s := init.Clone()
	if s.APY.Size == 0 {
		s.APY.Size = p.APYWindowMonths
	}
	return &Original{
		p:      p.Clone(),
		allocs: allocs,
		demand: market.DemandModel{Config: p.Demand, Series: env.Market},
		src:    env.source(),
		s:      s,
	}, nil
}

// RunOriginal runs the documented model for years and returns one snapshot
// per month.
func RunOriginal(init OriginalState, p params.Original, years int, env Env) ([]OriginalState, error) {
	if err := checkYears(years); err != nil {
		return nil, err
	}
	e, err := NewOriginal(init, p, env)
	if err != nil {
		return nil, fmt.Errorf("original engine: %w", err)
	}
	return run[OriginalState](VariantOriginal, e, years, env.logger()), nil
}

// Snapshot returns a deep copy of the current state.
func (e *Original) Snapshot() OriginalState { return e.s.Clone() }

// Step advances one month.
func (e *Original) Step(t Time) {
	s := &e.s
	s.Year, s.Month = t.Year, t.Month
	s.Flows = OriginalFlows{}

	e.updateDemand(t)
	e.vest(t)
	e.emit(t)
	e.releaseFund(t)
	e.nodeEconomics()
	e.stake()
	e.burn()
	e.updatePrice()
}

func (e *Original) updateDemand(t Time) {
	s, p := &e.s, e.p
	step := e.demand.Step(t.Abs, e.src)
	s.Flows.Demand = step

	s.USDPurchase = step.Grow(s.USDPurchase, p.USDPurchaseGrowth)
	s.OnPremEarnings = step.Grow(s.OnPremEarnings, p.OnPremGrowth)
	s.OracleRequests = step.Grow(s.OracleRequests, p.OracleGrowth)
	s.ComputeDemand = step.Grow(s.ComputeDemand, p.ComputeDemandGrowth)
}

func (e *Original) vest(t Time) {
	unlocked := economy.VestAll(e.allocs, e.s.Vested, t.Abs)
	e.s.Circulating += unlocked
	e.s.Flows.Vested = unlocked
}

// scheduledEmission splits the month's slice of the yearly budget into a
// utilization-scaled share and a compute-usage share, never exceeding the
// budget or the remaining pool.
func scheduledEmission(p params.Original, year int, pool, computeDemand, capacity float64) (emitted, utilization float64) {
	budget := economy.AtMost(p.AnnualEmission(year)/MonthsPerYear, economy.AtLeast(pool, 0))
	if capacity > 0 {
		utilization = economy.AtMost(computeDemand/capacity, 1)
	}

	scheduled := budget * p.ScheduleEmissionFactor * utilization
	usage := economy.AtMost(computeDemand*p.EmissionPerGFLOP, budget*p.UsageEmissionFactor)
	return economy.AtMost(scheduled+usage, budget), utilization
}

func (e *Original) emit(t Time) {
	s, p := &e.s, e.p
	emitted, utilization := scheduledEmission(p, t.Year, s.RewardsPool, s.ComputeDemand, s.NetworkCapacity)
	s.Flows.Utilization = utilization
	if emitted <= 0 {
		return
	}

	tax := emitted * p.TreasuryTaxRate
	s.RewardsPool = economy.AtLeast(s.RewardsPool-emitted, 0)
	s.Treasury += tax
	s.Circulating += emitted - tax
	s.TotalEmitted += emitted

	s.Flows.Emitted = emitted - tax
	s.Flows.EmissionToTreasury = tax
}

// quarterlyFundRelease releases a third of the quarter's target each month.
// The target is fixed at the first month of the quarter as a share of the
// remaining fund; cumulative releases never exceed it or the fund itself.
func quarterlyFundRelease(p params.Original, t Time, s *OriginalState) float64 {
	if t.QuarterStart() {
		s.QuarterTarget = s.EcosystemFund * p.QuarterlyReleasePercent(t.Year)
		s.QuarterReleased = 0
	}

	var released float64
	if s.QuarterTarget > 0 {
		want := economy.AtMost(s.QuarterTarget*p.FundMonthlyFraction, s.QuarterTarget-s.QuarterReleased)
		released, s.EcosystemFund = economy.Draw(s.EcosystemFund, want)
		s.QuarterReleased += released
	}

	if t.QuarterEnd() {
		s.QuarterTarget = 0
		s.QuarterReleased = 0
	}
	return released
}

func (e *Original) releaseFund(t Time) {
	released := quarterlyFundRelease(e.p, t, &e.s)
	e.s.Circulating += released
	e.s.Flows.FundReleased = released
}

// nodeEconomics prices this month's node rewards and records the realized
// APY into the moving-average window.
func (e *Original) nodeEconomics() {
	s, p := &e.s, e.p
	f := &s.Flows

	f.NodeRevenueUSD = f.Emitted * s.Price
	if s.Nodes > 0 {
		f.ProfitPerNodeUSD = f.NodeRevenueUSD/s.Nodes - p.NodeOperatingCostUSD
	}
	f.BaseYield = p.Yield.At(s.Price)
	f.APYPercent = economy.StakingAPY(f.ProfitPerNodeUSD, p.MinNodeStake, s.Price, f.BaseYield)

	s.APY.Push(f.APYPercent)
	f.AverageAPY = s.APY.Mean()
}

// apyGrowth maps the gap between the averaged APY and its target into a
// monthly growth rate bounded by maxChange in both directions.
func apyGrowth(averageAPY, targetAPY, sensitivity, maxChange float64) float64 {
	return economy.Clamp((averageAPY-targetAPY)*sensitivity, -maxChange, maxChange)
}

// stake moves the node population toward the APY target and settles the
// resulting stake flow against circulating supply.
func (e *Original) stake() {
	s, p := &e.s, e.p
	f := &s.Flows

	if s.Nodes > 0 {
		f.NodeGrowth = apyGrowth(f.AverageAPY, p.TargetAPYPercent, p.AdoptionSensitivity, p.MaxMonthlyNodeChange)
		s.Nodes = economy.AtLeast(s.Nodes*(1+f.NodeGrowth), p.MinNodeCount)
	} else if f.AverageAPY > p.TargetAPYPercent {
		s.Nodes = economy.AtLeast(1, p.MinNodeCount)
	} else {
		s.Nodes = p.MinNodeCount
	}

	flow, circulating := economy.StakeFlow(s.TotalStaked, s.Nodes*p.MinNodeStake, s.Circulating)
	s.TotalStaked = economy.AtLeast(s.TotalStaked+flow, 0)
	s.Circulating = circulating
	f.NewlyStaked = flow

	s.NetworkCapacity = s.Nodes * p.NodeGFLOPs()
}

func (e *Original) burn() {
	s, p := &e.s, e.p
	f := &s.Flows
	ledger := economy.NewBurnLedger(s.Circulating)

	if s.Price > 0 {
		f.BurnedUSD = ledger.Burn(s.USDPurchase / s.Price * p.USDBurnPercent)
	}
	f.BurnedOnPrem = ledger.Burn(s.OnPremEarnings * p.OnPremConversionRate * p.OnPremBurnRate)
	f.BurnedOracle = ledger.Burn(s.OracleRequests * p.OracleCostPerRequest * p.OracleBurnRate)

	s.Circulating = ledger.Remaining()
	s.TotalBurned += ledger.Total()
}

// updatePrice weighs USD buy-and-burn plus oracle spending against newly
// liquid supply net of fresh staking.
func (e *Original) updatePrice() {
	s, p := &e.s, e.p
	f := &s.Flows

	f.DemandPressure = f.BurnedUSD + s.OracleRequests*p.OracleCostPerRequest
	f.SupplyPressure = f.Vested + f.Emitted + f.FundReleased - f.NewlyStaked
	s.Price = p.Price.Next(s.Price, f.DemandPressure, f.SupplyPressure)
}

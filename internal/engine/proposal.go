package engine

import (
	"fmt"
	"math"

	"github.com/talgya/token-sim/internal/economy"
	"github.com/talgya/token-sim/internal/entropy"
	"github.com/talgya/token-sim/internal/market"
	"github.com/talgya/token-sim/internal/params"
)

// ProposalState is the full state of the halving-emission model.
type ProposalState struct {
	Year  int `json:"year"`
	Month int `json:"month"`

	Circulating  float64 `json:"circulating"`
	TotalBurned  float64 `json:"total_burned"`
	TotalSlashed float64 `json:"total_slashed"`
	TotalEmitted float64 `json:"total_emitted"` // distributed plus treasury cut
	Price        float64 `json:"price"`

	EmissionPool  float64 `json:"emission_pool"`
	EcosystemFund float64 `json:"ecosystem_fund"`
	Treasury      float64 `json:"treasury"`

	// Vested[i] is cumulative for params.Proposal.Allocations()[i].
	Vested []float64 `json:"vested"`

	USDDemand   float64 `json:"usd_demand"`
	TokenDemand float64 `json:"token_demand"`

	Contributors int     `json:"contributors"`
	Validators   int     `json:"validators"`
	TotalStaked  float64 `json:"total_staked"`

	Halvings          int     `json:"halvings"`
	EpochRewardTarget float64 `json:"epoch_reward_target"` // pre-buffer target after halvings

	Flows ProposalFlows `json:"flows"`
}

// ProposalFlows are this month's movements, recomputed every step.
type ProposalFlows struct {
	Vested       float64 `json:"vested"`
	FundReleased float64 `json:"fund_released"`

	EmissionPotential   float64 `json:"emission_potential"` // buffered target capped by the pool
	EmissionToTreasury  float64 `json:"emission_to_treasury"`
	RewardsAfterScaling float64 `json:"rewards_after_scaling"`
	Distributed         float64 `json:"distributed"`
	MaxNodeReward       float64 `json:"max_node_reward"`
	AvailableGFLOPs     float64 `json:"available_gflops"`
	UtilizedGFLOPs      float64 `json:"utilized_gflops"`
	DemandRatio         float64 `json:"demand_ratio"`
	RewardScaling       float64 `json:"reward_scaling"`

	FeesGenerated      float64 `json:"fees_generated"`
	FeesToTreasury     float64 `json:"fees_to_treasury"`
	FeesToValidators   float64 `json:"fees_to_validators"`
	FeesToContributors float64 `json:"fees_to_contributors"`
	BurnedFees         float64 `json:"burned_fees"`
	BurnedUSD          float64 `json:"burned_usd"`
	Slashed            float64 `json:"slashed"`

	ValidatorYield       float64 `json:"validator_yield"`
	ContributorProfitUSD float64 `json:"contributor_profit_usd"`
	ValidatorProfitUSD   float64 `json:"validator_profit_usd"`
	ContributorGrowth    float64 `json:"contributor_growth"`
	ValidatorGrowth      float64 `json:"validator_growth"`
	NewlyStaked          float64 `json:"newly_staked"`

	BuyPressure     float64 `json:"buy_pressure"`
	SellPressure    float64 `json:"sell_pressure"`
	TreasuryOutflow float64 `json:"treasury_outflow"`

	Demand market.DemandStep `json:"demand"`
}

// NewProposalState builds the launch state from p. The initial stake of both
// populations is taken out of the launch float, clamped at zero.
func NewProposalState(p params.Proposal) ProposalState {
	stake := p.TargetStake(p.InitialContributors, p.InitialValidators)
	return ProposalState{
		Circulating:       economy.AtLeast(p.InitialCirculating-stake, 0),
		Price:             p.InitialPrice,
		EmissionPool:      p.EmissionPool(),
		EcosystemFund:     p.EcosystemFund(),
		Vested:            make([]float64, len(p.Allocations())),
		USDDemand:         p.InitialUSDDemand,
		TokenDemand:       p.InitialTokenDemand,
		Contributors:      p.InitialContributors,
		Validators:        p.InitialValidators,
		TotalStaked:       stake,
		EpochRewardTarget: p.InitialMonthlyEmission(),
	}
}

// Clone returns a deep copy.
func (s ProposalState) Clone() ProposalState {
	s.Vested = append([]float64(nil), s.Vested...)
	return s
}

func (s ProposalState) Summary() Summary {
	return Summary{
		Time:        Time{Abs: (s.Year-1)*MonthsPerYear + s.Month, Year: s.Year, Month: s.Month},
		Price:       s.Price,
		Circulating: s.Circulating,
		Nodes:       float64(s.Contributors + s.Validators),
		Staked:      s.TotalStaked,
		Burned:      s.TotalBurned,
		Emitted:     s.TotalEmitted,
		Slashed:     s.TotalSlashed,
		Treasury:    s.Treasury,
		Utilization: s.Flows.DemandRatio,
	}
}

// Proposal steps the halving-emission model.
type Proposal struct {
	p      params.Proposal
	allocs []economy.Allocation
	demand market.DemandModel
	src    entropy.Source
	s      ProposalState
}

// NewProposal prepares an engine from a validated parameter set.
func NewProposal(init ProposalState, p params.Proposal, env Env) (*Proposal, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	allocs := p.Allocations()
	if len(init.Vested) != len(allocs) {
		return nil, &StateError{Field: "vested", Reason: fmt.Sprintf("want %d allocations, got %d", len(allocs), len(init.Vested))}
	}
	if init.Contributors < 0 || init.Validators < 0 {
		return nil, &StateError{Field: "population", Reason: "node counts must be >= 0"}
	}
	if err := checkBalances(map[string]float64{
		"circulating":    init.Circulating,
		"emission_pool":  init.EmissionPool,
		"ecosystem_fund": init.EcosystemFund,
		"treasury":       init.Treasury,
		"total_staked":   init.TotalStaked,
		"price":          init.Price,
	}); err != nil {
		return nil, err
	}

	return &Proposal{
		p:      p,
		allocs: allocs,
		demand: market.DemandModel{Config: p.Demand, Series: env.Market},
		src:    env.source(),
		s:      init.Clone(),
	}, nil
}

// RunProposal runs the halving-emission model for years and returns one
// snapshot per month.
func RunProposal(init ProposalState, p params.Proposal, years int, env Env) ([]ProposalState, error) {
	if err := checkYears(years); err != nil {
		return nil, err
	}
	e, err := NewProposal(init, p, env)
	if err != nil {
		return nil, fmt.Errorf("proposal engine: %w", err)
	}
	return run[ProposalState](VariantProposal, e, years, env.logger()), nil
}

// Snapshot returns a deep copy of the current state.
func (e *Proposal) Snapshot() ProposalState { return e.s.Clone() }

// Step advances one month. Random draws happen in a fixed order (demand,
// contributor performance, slashing) so a seeded source replays exactly.
func (e *Proposal) Step(t Time) {
	s := &e.s
	s.Year, s.Month = t.Year, t.Month
	s.Flows = ProposalFlows{}

	e.updateDemand(t)
	e.vest(t)
	e.releaseFund()
	e.emit(t)

	ledger := e.collectFees()
	e.slash(ledger)
	s.Circulating = ledger.Remaining()

	e.nodeEconomics()
	e.stake()
	e.updatePrice()
	e.spendTreasury()
}

func (e *Proposal) updateDemand(t Time) {
	s, p := &e.s, e.p
	step := e.demand.Step(t.Abs, e.src)
	s.Flows.Demand = step

	s.USDDemand = step.Grow(s.USDDemand, p.USDDemandGrowth)
	s.TokenDemand = step.Grow(s.TokenDemand, p.TokenDemandGrowth)
}

func (e *Proposal) vest(t Time) {
	unlocked := economy.VestAll(e.allocs, e.s.Vested, t.Abs)
	e.s.Circulating += unlocked
	e.s.Flows.Vested = unlocked
}

func (e *Proposal) releaseFund() {
	released, rest := economy.Draw(e.s.EcosystemFund, e.p.MonthlyFundRelease())
	e.s.EcosystemFund = rest
	e.s.Circulating += released
	e.s.Flows.FundReleased = released
}

// halvingEmission returns the month's base target after halvings and the
// buffered amount that may be drawn from the pool.
func halvingEmission(p params.Proposal, t Time, pool float64) (target, potential float64, halvings int) {
	if p.HalvingPeriodMonths > 0 {
		halvings = (t.Abs - 1) / p.HalvingPeriodMonths
	}
	target = math.Ldexp(p.InitialMonthlyEmission(), -halvings)
	potential = economy.AtMost(target*(1+p.EmissionBufferPercent), economy.AtLeast(pool, 0))
	return target, potential, halvings
}

// emit draws the month's emission, sends the treasury cut aside and pays
// contributors by performance. The pool shrinks only by what was paid.
func (e *Proposal) emit(t Time) {
	s, p := &e.s, e.p
	f := &s.Flows

	target, potential, halvings := halvingEmission(p, t, s.EmissionPool)
	s.EpochRewardTarget = target
	s.Halvings = halvings
	f.EmissionPotential = potential

	tax := potential * p.TreasuryTaxFromEmissions
	distributed := e.distribute(potential - tax)

	paid, rest := economy.Draw(s.EmissionPool, distributed+tax)
	s.EmissionPool = rest
	if paid < distributed+tax {
		distributed = economy.AtLeast(paid-tax, 0)
		tax = paid - distributed
	}

	s.Treasury += tax
	s.Circulating += distributed
	s.TotalEmitted += paid

	f.EmissionToTreasury = tax
	f.Distributed = distributed
}

// distribute scores every contributor on sampled uptime and compute, scales
// the pool by how much of the available capacity was used, and returns the
// amount paid out.
func (e *Proposal) distribute(pool float64) float64 {
	s, p := &e.s, e.p
	f := &s.Flows

	var utilized, totalScore, maxScore float64
	for range s.Contributors {
		uptime := economy.Clamp(entropy.Normal(e.src, p.AvgUptime, p.UptimeStdDev), 0, 1)
		gflops := economy.AtLeast(entropy.Normal(e.src, p.AvgGFLOPsMonthly, p.AvgGFLOPsMonthly*p.GFLOPsStdDevFactor), 0)
		utilized += gflops

		score := uptime * 0.001
		if gflops > 0 {
			score = uptime * math.Log1p(gflops)
		}
		totalScore += score
		maxScore = math.Max(maxScore, score)
	}

	f.AvailableGFLOPs = float64(s.Contributors) * p.AvgGFLOPsMonthly
	f.UtilizedGFLOPs = utilized
	if f.AvailableGFLOPs > 0 {
		f.DemandRatio = utilized / f.AvailableGFLOPs
	}

	f.RewardScaling = 1
	if p.TargetUtilization > 0 {
		f.RewardScaling = math.Min(1, f.DemandRatio/p.TargetUtilization)
	}
	f.RewardsAfterScaling = pool * f.RewardScaling

	if totalScore <= 0 || f.RewardsAfterScaling <= 0 {
		return 0
	}
	f.MaxNodeReward = maxScore / totalScore * f.RewardsAfterScaling
	return f.RewardsAfterScaling
}

// collectFees charges service and transaction fees. Fees are paid out of
// circulating supply: the treasury cut leaves circulation, the burn share is
// destroyed, and the validator and contributor shares are transfers that
// stay liquid. USD payments optionally fund a buy-and-burn after the FX fee.
// The returned ledger carries this month's burns forward to slashing.
func (e *Proposal) collectFees() *economy.BurnLedger {
	s, p := &e.s, e.p
	f := &s.Flows

	var usdInTokens float64
	if s.Price > 0 {
		usdInTokens = s.USDDemand / s.Price
	}
	nodes := float64(s.Contributors + s.Validators)
	f.FeesGenerated = (usdInTokens+s.TokenDemand)*p.ServiceFeePercent + nodes*p.TxPerNode*p.AvgTxFee

	treasuryCut := f.FeesGenerated * p.TreasuryTaxFromFees
	toTreasury, rest := economy.Draw(s.Circulating, treasuryCut)
	s.Circulating = rest
	s.Treasury += toTreasury
	f.FeesToTreasury = toTreasury

	// The other shares scale with the fraction of the cut actually drawn.
	collected := 1.0
	if treasuryCut > 0 {
		collected = toTreasury / treasuryCut
	}
	afterTreasury := (f.FeesGenerated - treasuryCut) * collected
	f.FeesToValidators = afterTreasury * p.ValidatorFeeShare
	burnShare := (afterTreasury - f.FeesToValidators) * p.FeeBurnFraction
	f.FeesToContributors = afterTreasury - f.FeesToValidators - burnShare

	ledger := economy.NewBurnLedger(s.Circulating)
	f.BurnedFees = ledger.Burn(burnShare)
	if p.USDBuyAndBurn && s.Price > 0 {
		f.BurnedUSD = ledger.Burn(s.USDDemand * (1 - p.USDToCreditFXFee) / s.Price)
	}
	s.TotalBurned += f.BurnedFees + f.BurnedUSD
	return ledger
}

// slash runs an independent draw per node and rule. Slashed tokens are burned
// from circulation and removed from the staking pool.
func (e *Proposal) slash(ledger *economy.BurnLedger) {
	s, p := &e.s, e.p

	var want float64
	for range s.Validators {
		if entropy.Bernoulli(e.src, p.ValidatorDowntime.Probability) {
			want += p.ValidatorStake * p.ValidatorDowntime.Fraction
		}
		if entropy.Bernoulli(e.src, p.ValidatorMalfeasance.Probability) {
			want += p.ValidatorStake * p.ValidatorMalfeasance.Fraction
		}
	}
	for range s.Contributors {
		if entropy.Bernoulli(e.src, p.ContributorFailure.Probability) {
			want += p.ContributorStake * p.ContributorFailure.Fraction
		}
	}

	slashed := ledger.Burn(want)
	s.TotalSlashed += slashed
	s.TotalStaked = economy.AtLeast(s.TotalStaked-slashed, 0)
	s.Flows.Slashed = slashed
}

// nodeEconomics pays the validator base yield out of the treasury and moves
// both populations toward their profitability targets.
func (e *Proposal) nodeEconomics() {
	s, p := &e.s, e.p
	f := &s.Flows

	yieldWant := float64(s.Validators) * p.ValidatorStake * p.ValidatorYieldAnnual / MonthsPerYear
	f.ValidatorYield, s.Treasury = economy.Draw(s.Treasury, yieldWant)
	s.Circulating += f.ValidatorYield

	f.ContributorProfitUSD = economy.ProfitPerNode(f.Distributed+f.FeesToContributors, s.Price, s.Contributors, p.ContributorCostUSD)
	f.ValidatorProfitUSD = economy.ProfitPerNode(f.FeesToValidators+f.ValidatorYield, s.Price, s.Validators, p.ValidatorCostUSD)

	s.Contributors, f.ContributorGrowth = economy.AdjustPopulation(s.Contributors, f.ContributorProfitUSD, p.Contributors)
	s.Validators, f.ValidatorGrowth = economy.AdjustPopulation(s.Validators, f.ValidatorProfitUSD, p.Validators)
}

func (e *Proposal) stake() {
	s := &e.s
	flow, circulating := economy.StakeFlow(s.TotalStaked, e.p.TargetStake(s.Contributors, s.Validators), s.Circulating)
	s.TotalStaked = economy.AtLeast(s.TotalStaked+flow, 0)
	s.Circulating = circulating
	s.Flows.NewlyStaked = flow
}

// updatePrice weighs burns, slashing and a share of token service payments
// against newly liquid vesting, fund and reward supply.
func (e *Proposal) updatePrice() {
	s, p := &e.s, e.p
	f := &s.Flows

	f.BuyPressure = f.BurnedFees + f.BurnedUSD + f.Slashed + s.TokenDemand*p.TokenDemandBuyRate
	f.SellPressure = f.Vested + f.FundReleased + f.Distributed
	s.Price = p.Price.Next(s.Price, f.BuyPressure, f.SellPressure)
}

func (e *Proposal) spendTreasury() {
	s := &e.s
	out, rest := economy.Draw(s.Treasury, s.Treasury*e.p.TreasuryOutflowRateMonthly)
	s.Treasury = rest
	s.Circulating += out
	s.Flows.TreasuryOutflow = out
}

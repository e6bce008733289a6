package engine

import (
	"fmt"

	"github.com/talgya/token-sim/internal/economy"
	"github.com/talgya/token-sim/internal/entropy"
	"github.com/talgya/token-sim/internal/market"
	"github.com/talgya/token-sim/internal/params"
)

// BMEState is the full state of the burn-and-mint equilibrium model.
type BMEState struct {
	Year  int `json:"year"`
	Month int `json:"month"`

	Circulating float64 `json:"circulating"`
	Price       float64 `json:"price"`

	// The issuance ledger is kept in base units so emitted minus burned
	// reconciles exactly with the running net issuance. The float totals
	// mirror it for reporting.
	EmittedUnits     economy.Units `json:"emitted_units"`
	BurnedUnits      economy.Units `json:"burned_units"`
	NetIssuanceUnits economy.Units `json:"net_issuance_units"`
	TotalBurned      float64       `json:"total_burned"`
	TotalEmitted     float64       `json:"total_emitted"`
	NetIssuance      float64       `json:"net_issuance"` // running sum of monthly emitted minus burned

	USDDemand   float64 `json:"usd_demand"`
	TokenDemand float64 `json:"token_demand"`
	Nodes       int     `json:"nodes"`

	Flows BMEFlows `json:"flows"`
}

// BMEFlows are this month's movements, recomputed every step.
type BMEFlows struct {
	Emitted          float64       `json:"emitted"`
	BurnedUSD        float64       `json:"burned_usd"`
	BurnedFees       float64       `json:"burned_fees"`
	NetDelta         float64       `json:"net_delta"`
	NetDeltaUnits    economy.Units `json:"net_delta_units"`
	ProfitPerNodeUSD float64       `json:"profit_per_node_usd"`
	NodeGrowth       float64       `json:"node_growth"`
	BuyPressure      float64       `json:"buy_pressure"`
	SellPressure     float64       `json:"sell_pressure"`

	Demand market.DemandStep `json:"demand"`
}

// NewBMEState builds the launch state from p.
func NewBMEState(p params.BME) BMEState {
	return BMEState{
		Circulating: p.InitialCirculating,
		Price:       p.InitialPrice,
		USDDemand:   p.InitialUSDDemand,
		TokenDemand: p.InitialTokenDemand,
		Nodes:       p.InitialNodes,
	}
}

// Clone returns a copy; BMEState holds no reference types.
func (s BMEState) Clone() BMEState { return s }

// syncTotals derives the float totals from the unit ledger.
func (s *BMEState) syncTotals() {
	s.TotalEmitted = s.EmittedUnits.Tokens()
	s.TotalBurned = s.BurnedUnits.Tokens()
	s.NetIssuance = s.NetIssuanceUnits.Tokens()
}

func (s BMEState) Summary() Summary {
	return Summary{
		Time:        Time{Abs: (s.Year-1)*MonthsPerYear + s.Month, Year: s.Year, Month: s.Month},
		Price:       s.Price,
		Circulating: s.Circulating,
		Nodes:       float64(s.Nodes),
		Burned:      s.TotalBurned,
		Emitted:     s.TotalEmitted,
	}
}

// BME steps the burn-and-mint model.
type BME struct {
	p      params.BME
	demand market.DemandModel
	src    entropy.Source
	s      BMEState
}

// NewBME prepares an engine from a validated parameter set.
func NewBME(init BMEState, p params.BME, env Env) (*BME, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if init.Nodes < 0 {
		return nil, &StateError{Field: "nodes", Reason: fmt.Sprintf("must be >= 0, got %d", init.Nodes)}
	}
	if err := checkBalances(map[string]float64{
		"circulating":  init.Circulating,
		"usd_demand":   init.USDDemand,
		"token_demand": init.TokenDemand,
		"price":        init.Price,
	}); err != nil {
		return nil, err
	}
	if init.EmittedUnits < 0 || init.BurnedUnits < 0 {
		return nil, &StateError{Field: "ledger", Reason: "emitted and burned units must be >= 0"}
	}

	s := init
	s.syncTotals()
	return &BME{
		p:      p,
		demand: market.DemandModel{Config: p.Demand, Series: env.Market},
		src:    env.source(),
		s:      s,
	}, nil
}

// RunBME runs the burn-and-mint model for years and returns one snapshot
// per month.
func RunBME(init BMEState, p params.BME, years int, env Env) ([]BMEState, error) {
	if err := checkYears(years); err != nil {
		return nil, err
	}
	e, err := NewBME(init, p, env)
	if err != nil {
		return nil, fmt.Errorf("bme engine: %w", err)
	}
	return run[BMEState](VariantBME, e, years, env.logger()), nil
}

// Snapshot returns a copy of the current state.
func (e *BME) Snapshot() BMEState { return e.s.Clone() }

// Step advances one month: demand, flat emission, node economics, burns,
// then price.
func (e *BME) Step(t Time) {
	s, p := &e.s, e.p
	s.Year, s.Month = t.Year, t.Month
	s.Flows = BMEFlows{}
	f := &s.Flows

	f.Demand = e.demand.Step(t.Abs, e.src)
	s.USDDemand = f.Demand.Grow(s.USDDemand, p.USDDemandGrowth)
	s.TokenDemand = f.Demand.Grow(s.TokenDemand, p.TokenDemandGrowth)

	emitted := economy.ToUnits(p.FixedEmission)
	f.Emitted = emitted.Tokens()
	s.Circulating += f.Emitted

	f.ProfitPerNodeUSD = economy.ProfitPerNode(f.Emitted, s.Price, s.Nodes, p.NodeCostUSD)
	s.Nodes, f.NodeGrowth = economy.AdjustPopulation(s.Nodes, f.ProfitPerNodeUSD, p.Nodes)

	// Burns are rounded down to whole units, so they never exceed what the
	// ledger allowed.
	ledger := economy.NewBurnLedger(s.Circulating)
	var burnedUSD economy.Units
	if s.Price > 0 {
		burnedUSD = economy.ToUnits(ledger.Burn(s.USDDemand / s.Price * p.USDBurnPercent))
	}
	burnedFees := economy.ToUnits(ledger.Burn(s.TokenDemand * p.FeeBurnPercent))
	burned := burnedUSD + burnedFees
	f.BurnedUSD, f.BurnedFees = burnedUSD.Tokens(), burnedFees.Tokens()
	s.Circulating = economy.AtLeast(s.Circulating-burned.Tokens(), 0)

	f.NetDeltaUnits = emitted - burned
	f.NetDelta = f.NetDeltaUnits.Tokens()
	s.EmittedUnits += emitted
	s.BurnedUnits += burned
	s.NetIssuanceUnits += f.NetDeltaUnits
	s.syncTotals()

	f.BuyPressure = f.BurnedUSD + f.BurnedFees + s.TokenDemand*p.TokenDemandBuyRate
	f.SellPressure = f.Emitted
	s.Price = p.Price.Next(s.Price, f.BuyPressure, f.SellPressure)
}

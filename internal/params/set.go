package params

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultYears is the reference simulation horizon.
const DefaultYears = 10

// Set bundles the parameters of all three variants with the shared horizon.
type Set struct {
	Years    int      `json:"years"`
	Original Original `json:"original"`
	Proposal Proposal `json:"proposal"`
	BME      BME      `json:"bme"`
}

// DefaultSet returns every variant at its reference values.
func DefaultSet() Set {
	return Set{
		Years:    DefaultYears,
		Original: DefaultOriginal(),
		Proposal: DefaultProposal(),
		BME:      DefaultBME(),
	}
}

// Clone returns a deep copy safe to modify independently.
func (s Set) Clone() Set {
	s.Original = s.Original.Clone()
	s.Proposal = s.Proposal.Clone()
	s.BME = s.BME.Clone()
	return s
}

// Validate checks all variants.
func (s Set) Validate() error {
	if s.Years < 1 {
		return &ConfigError{Field: "years", Reason: fmt.Sprintf("must be >= 1, got %d", s.Years)}
	}
	if err := s.Original.Validate(); err != nil {
		return err
	}
	if err := s.Proposal.Validate(); err != nil {
		return err
	}
	return s.BME.Validate()
}

// binding points at one or more fields a registry name controls. Shared
// names fan out to every variant.
type binding struct {
	floats []*float64
	ints   []*int
	bools  []*bool
}

func floatField(ptrs ...*float64) binding { return binding{floats: ptrs} }
func intField(ptrs ...*int) binding     { return binding{ints: ptrs} }

// bindings maps registry names onto the fields of s.
func (s *Set) bindings() map[string]binding {
	o, p, b := &s.Original, &s.Proposal, &s.BME
	return map[string]binding{
		"SIMULATION_YEARS": intField(&s.Years),

		// Shared across variants.
		"INITIAL_PRICE_USD":                     floatField(&o.InitialPrice, &p.InitialPrice, &b.InitialPrice),
		"MIN_PRICE_USD":                         floatField(&o.Price.Floor, &p.Price.Floor, &b.Price.Floor),
		"PRICE_ADJUSTMENT_SENSITIVITY":          floatField(&o.Price.Sensitivity, &p.Price.Sensitivity, &b.Price.Sensitivity),
		"INITIAL_CIRCULATING_SUPPLY":            floatField(&o.InitialCirculating, &p.InitialCirculating, &b.InitialCirculating),
		"INITIAL_USD_CREDIT_PURCHASE_PER_MONTH": floatField(&o.InitialUSDPurchase, &p.InitialUSDDemand, &b.InitialUSDDemand),
		"INITIAL_TOKEN_PAYMENTS_PER_MONTH":      floatField(&p.InitialTokenDemand, &b.InitialTokenDemand),
		"BASE_USD_DEMAND_GROWTH_RATE_MONTHLY":   floatField(&o.USDPurchaseGrowth, &p.USDDemandGrowth, &b.USDDemandGrowth),
		"MARKET_TREND_IMPACT_FACTOR":            floatField(&o.Demand.TrendImpact, &p.Demand.TrendImpact, &b.Demand.TrendImpact),
		"USER_CHURN_PROBABILITY":                floatField(&o.Demand.ChurnProbability, &p.Demand.ChurnProbability, &b.Demand.ChurnProbability),
		"USER_CHURN_MAGNITUDE":                  floatField(&o.Demand.ChurnMagnitude, &p.Demand.ChurnMagnitude, &b.Demand.ChurnMagnitude),
		"DEMAND_SHOCK_PROBABILITY":              floatField(&o.Demand.ShockProbability, &p.Demand.ShockProbability, &b.Demand.ShockProbability),
		"DEMAND_SHOCK_MAGNITUDE":                floatField(&o.Demand.ShockMagnitude, &p.Demand.ShockMagnitude, &b.Demand.ShockMagnitude),
		"INITIAL_NODE_COUNT":                    intField(&o.InitialNodeCount, &p.InitialContributors, &b.InitialNodes),

		// Original.
		"ORIGINAL_MAX_SUPPLY":                     floatField(&o.MaxSupply),
		"ORIGINAL_TARGET_NODE_APY_PERCENTAGE":     floatField(&o.TargetAPYPercent),
		"ORIGINAL_APY_ADOPTION_SENSITIVITY":       floatField(&o.AdoptionSensitivity),
		"ORIGINAL_MAX_MONTHLY_NODE_CHANGE":        floatField(&o.MaxMonthlyNodeChange),
		"ORIGINAL_APY_WINDOW_MONTHS":              intField(&o.APYWindowMonths),
		"ORIGINAL_MIN_NODE_STAKE":                 floatField(&o.MinNodeStake),
		"ORIGINAL_BASE_STAKING_YIELD_RATE_ANNUAL": floatField(&o.Yield.Base),
		"ORIGINAL_NODE_OPERATING_COST_USD":        floatField(&o.NodeOperatingCostUSD),
		"ORIGINAL_EMISSION_RATE_PER_GFLOP":        floatField(&o.EmissionPerGFLOP),
		"ORIGINAL_SCHEDULE_EMISSION_FACTOR":       floatField(&o.ScheduleEmissionFactor),
		"ORIGINAL_USAGE_EMISSION_FACTOR":          floatField(&o.UsageEmissionFactor),
		"ORIGINAL_TREASURY_TAX_RATE":              floatField(&o.TreasuryTaxRate),
		"ORIGINAL_USD_BURN_PERCENT":               floatField(&o.USDBurnPercent),
		"ORIGINAL_ON_PREM_BURN_RATE":              floatField(&o.OnPremBurnRate),
		"ORIGINAL_ORACLE_BURN_RATE":               floatField(&o.OracleBurnRate),
		"ORIGINAL_INITIAL_COMPUTE_DEMAND":         floatField(&o.InitialComputeDemand),
		"ORIGINAL_COMPUTE_DEMAND_GROWTH_RATE":     floatField(&o.ComputeDemandGrowth),
		"ORIGINAL_INITIAL_NETWORK_CAPACITY":       floatField(&o.InitialNetworkCapacity),
		"ORIGINAL_ON_PREM_GROWTH_RATE":            floatField(&o.OnPremGrowth),
		"ORIGINAL_ORACLE_GROWTH_RATE":             floatField(&o.OracleGrowth),

		// Proposal.
		"PROPOSAL_MAX_SUPPLY":                   floatField(&p.MaxSupply),
		"PROPOSAL_HALVING_PERIOD_MONTHS":        intField(&p.HalvingPeriodMonths),
		"PROPOSAL_EMISSION_BUFFER_PERCENT":      floatField(&p.EmissionBufferPercent),
		"PROPOSAL_TARGET_UTILIZATION":           floatField(&p.TargetUtilization),
		"PROPOSAL_TREASURY_TAX_FROM_EMISSIONS":  floatField(&p.TreasuryTaxFromEmissions),
		"PROPOSAL_TREASURY_TAX_FROM_FEES":       floatField(&p.TreasuryTaxFromFees),
		"PROPOSAL_TREASURY_OUTFLOW_RATE":        floatField(&p.TreasuryOutflowRateMonthly),
		"PROPOSAL_SERVICE_FEE_PERCENT":          floatField(&p.ServiceFeePercent),
		"PROPOSAL_FEE_BURN_FRACTION":            floatField(&p.FeeBurnFraction),
		"PROPOSAL_VALIDATOR_FEE_SHARE":          floatField(&p.ValidatorFeeShare),
		"PROPOSAL_AVG_TX_FEE":                   floatField(&p.AvgTxFee),
		"PROPOSAL_CONTRIBUTOR_STAKE":            floatField(&p.ContributorStake),
		"PROPOSAL_VALIDATOR_STAKE":              floatField(&p.ValidatorStake),
		"PROPOSAL_INITIAL_VALIDATOR_NODES":      intField(&p.InitialValidators),
		"PROPOSAL_NODE_GROWTH_SENSITIVITY":      floatField(&p.Contributors.Sensitivity),
		"PROPOSAL_MIN_MONTHLY_PROFIT_USD":       floatField(&p.Contributors.MinProfitUSD),
		"PROPOSAL_NODE_ADJUSTMENT_LAG_MONTHS":   floatField(&p.Contributors.LagMonths),
		"PROPOSAL_VALIDATOR_GROWTH_SENSITIVITY": floatField(&p.Validators.Sensitivity),
		"PROPOSAL_VALIDATOR_LAG_MONTHS":         floatField(&p.Validators.LagMonths),
		"PROPOSAL_AVG_GFLOPS_PER_CONTRIBUTOR":   floatField(&p.AvgGFLOPsMonthly),
		"PROPOSAL_AVG_UPTIME":                   floatField(&p.AvgUptime),
		"PROPOSAL_USD_BUY_AND_BURN":             {bools: []*bool{&p.USDBuyAndBurn}},

		// BME.
		"BME_MAX_SUPPLY":                  floatField(&b.MaxSupply),
		"BME_FIXED_EMISSION_PER_MONTH":    floatField(&b.FixedEmission),
		"BME_BURN_PERCENT_OF_USD_INCOME":  floatField(&b.USDBurnPercent),
		"BME_BURN_PERCENT_OF_TOKEN_FEES":  floatField(&b.FeeBurnPercent),
		"BME_NODE_OPERATING_COST_USD":     floatField(&b.NodeCostUSD),
		"BME_MIN_MONTHLY_PROFIT_USD":      floatField(&b.Nodes.MinProfitUSD),
		"BME_NODE_ADJUSTMENT_LAG_MONTHS":  floatField(&b.Nodes.LagMonths),
		"BME_TOKEN_DEMAND_GROWTH_MONTHLY": floatField(&b.TokenDemandGrowth),
	}
}

// Names lists every registry name in sorted order.
func Names() []string {
	var s Set
	names := make([]string, 0, 96)
	for k := range s.bindings() {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Apply sets the named parameter. Integer parameters reject fractional values.
func (s *Set) Apply(name string, v float64) error {
	key := strings.ToUpper(strings.TrimSpace(name))
	bd, ok := s.bindings()[key]
	if !ok {
		return &ConfigError{Field: name, Reason: "unknown parameter"}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return &ConfigError{Field: key, Reason: "must be finite"}
	}
	if len(bd.ints) > 0 && v != math.Trunc(v) {
		return &ConfigError{Field: key, Reason: fmt.Sprintf("must be an integer, got %g", v)}
	}
	for _, ptr := range bd.floats {
		*ptr = v
	}
	for _, ptr := range bd.ints {
		*ptr = int(v)
	}
	for _, ptr := range bd.bools {
		*ptr = v != 0
	}
	return nil
}

// ApplyStrings applies textual overrides in sorted key order so the first
// reported error is stable.
func (s *Set) ApplyStrings(values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		raw := strings.ReplaceAll(strings.TrimSpace(values[k]), "_", "")
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return &ConfigError{Field: k, Reason: fmt.Sprintf("not a number: %q", values[k])}
		}
		if err := s.Apply(k, v); err != nil {
			return err
		}
	}
	return nil
}

// ApplyValues applies numeric overrides in sorted key order.
func (s *Set) ApplyValues(values map[string]float64) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := s.Apply(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

// LoadOverrides reads KEY=value pairs from a .env file and applies them.
func (s *Set) LoadOverrides(path string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("read overrides %s: %w", path, err)
	}
	if err := s.ApplyStrings(values); err != nil {
		return fmt.Errorf("apply overrides %s: %w", path, err)
	}
	return nil
}

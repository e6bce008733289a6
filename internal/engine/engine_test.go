package engine

import (
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/token-sim/internal/economy"
	"github.com/talgya/token-sim/internal/entropy"
	"github.com/talgya/token-sim/internal/market"
	"github.com/talgya/token-sim/internal/params"
)

func quietEnv(seed int64, series market.Series) Env {
	return Env{
		Source: entropy.NewSeeded(seed),
		Market: series,
		Logger: slog.New(slog.DiscardHandler),
	}
}

func testSeries(years int, seed int64) market.Series {
	return market.Synthetic(market.DefaultSyntheticConfig(years*MonthsPerYear, seed))
}

// smallProposal keeps populations bounded so per-node draws stay cheap.
func smallProposal() params.Proposal {
	p := params.DefaultProposal()
	p.InitialContributors = 300
	p.InitialValidators = 10
	p.Contributors.Ceiling = 2_000
	p.Validators.Ceiling = 100
	return p
}

func TestClockCallbacks(t *testing.T) {
	c := NewClock(2)
	var months, quarters, years int
	var last Time
	c.OnMonth = func(tm Time) {
		months++
		last = tm
	}
	c.OnQuarter = func(tm Time) {
		quarters++
		assert.True(t, tm.QuarterEnd())
	}
	c.OnYear = func(tm Time) {
		years++
		assert.Equal(t, MonthsPerYear, tm.Month)
	}
	c.Run()

	assert.Equal(t, 24, months)
	assert.Equal(t, 8, quarters)
	assert.Equal(t, 2, years)
	assert.Equal(t, Time{Abs: 24, Year: 2, Month: 12}, last)
	assert.Equal(t, 24, c.Elapsed)
}

func TestTimeAt(t *testing.T) {
	assert.Equal(t, Time{Abs: 1, Year: 1, Month: 1}, TimeAt(1))
	assert.Equal(t, Time{Abs: 13, Year: 2, Month: 1}, TimeAt(13))
	assert.True(t, TimeAt(4).QuarterStart())
	assert.False(t, TimeAt(5).QuarterStart())
	assert.True(t, TimeAt(6).QuarterEnd())
	assert.Equal(t, "Year 2 Month 01", TimeAt(13).String())
}

func TestParseVariants(t *testing.T) {
	all, err := ParseVariants("all")
	require.NoError(t, err)
	assert.Equal(t, Variants(), all)

	some, err := ParseVariants("BME, original,bme")
	require.NoError(t, err)
	assert.Equal(t, []Variant{VariantBME, VariantOriginal}, some)

	_, err = ParseVariants("original,nope")
	assert.Error(t, err)

	assert.Equal(t, int64(2), VariantBME.Stream())
}

func TestOriginalReplaysWithSeed(t *testing.T) {
	p := params.DefaultOriginal()
	p.Demand.ChurnProbability, p.Demand.ChurnMagnitude = 0.1, 0.1
	series := testSeries(3, 4)

	a, err := RunOriginal(NewOriginalState(p), p, 3, quietEnv(9, series))
	require.NoError(t, err)
	b, err := RunOriginal(NewOriginalState(p), p, 3, quietEnv(9, series))
	require.NoError(t, err)

	require.Len(t, a, 36)
	assert.Equal(t, a, b)
}

func TestProposalReplaysWithSeed(t *testing.T) {
	p := smallProposal()
	series := testSeries(2, 4)

	a, err := RunProposal(NewProposalState(p), p, 2, quietEnv(5, series))
	require.NoError(t, err)
	b, err := RunProposal(NewProposalState(p), p, 2, quietEnv(5, series))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := RunProposal(NewProposalState(p), p, 2, quietEnv(6, series))
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "a different seed draws different performance")
}

func TestBMEReplaysWithSeed(t *testing.T) {
	p := params.DefaultBME()
	p.Demand.ShockProbability, p.Demand.ShockMagnitude = 0.2, 0.2
	series := testSeries(2, 8)

	a, err := RunBME(NewBMEState(p), p, 2, quietEnv(1, series))
	require.NoError(t, err)
	b, err := RunBME(NewBMEState(p), p, 2, quietEnv(1, series))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSnapshotsAreIndependent(t *testing.T) {
	p := params.DefaultOriginal()
	h, err := RunOriginal(NewOriginalState(p), p, 3, quietEnv(1, nil))
	require.NoError(t, err)

	before := h[0].Vested[0]
	h[1].Vested[0] = -1
	assert.Equal(t, before, h[0].Vested[0])
	assert.NotSame(t, &h[0].Vested[0], &h[2].Vested[0])
}

func TestOriginalStaysInBounds(t *testing.T) {
	for _, sc := range market.Scenarios() {
		t.Run(sc.Name, func(t *testing.T) {
			p := params.DefaultOriginal()
			h, err := RunOriginal(NewOriginalState(p), p, 10, quietEnv(2, sc.Apply(testSeries(10, 2))))
			require.NoError(t, err)
			require.Len(t, h, 120)

			prev := NewOriginalState(p)
			for i, s := range h {
				require.GreaterOrEqual(t, s.Circulating, 0.0, "month %d", i+1)
				require.GreaterOrEqual(t, s.Price, p.Price.Floor, "month %d", i+1)
				require.GreaterOrEqual(t, s.Nodes, p.MinNodeCount, "month %d", i+1)
				require.GreaterOrEqual(t, s.TotalStaked, 0.0)
				require.LessOrEqual(t, s.RewardsPool, prev.RewardsPool, "rewards pool never grows")
				require.LessOrEqual(t, s.EcosystemFund, prev.EcosystemFund, "fund never grows")
				require.GreaterOrEqual(t, s.TotalBurned, prev.TotalBurned)
				require.GreaterOrEqual(t, s.RewardsPool, 0.0)
				require.GreaterOrEqual(t, s.EcosystemFund, 0.0)
				prev = s
			}

			allocs := p.Allocations()
			last := h[len(h)-1]
			for i, a := range allocs {
				assert.InDelta(t, a.Total, last.Vested[i], 1e-6, "%s fully vested", a.Name)
			}
		})
	}
}

func TestOriginalPriceFloorUnderCollapse(t *testing.T) {
	p := params.DefaultOriginal()
	p.Price.Sensitivity = 5
	p.InitialUSDPurchase = 0
	p.OracleCostPerRequest = 0
	p.AdoptionSensitivity = 0 // no staking flow, so emission is pure sell pressure

	h, err := RunOriginal(NewOriginalState(p), p, 3, quietEnv(1, nil))
	require.NoError(t, err)
	for _, s := range h {
		require.Positive(t, s.Flows.SupplyPressure)
		require.Equal(t, p.Price.Floor, s.Price)
	}
}

// requireStationary checks that circulating supply only moves by vested
// tokens and that price only moves in months where vesting adds supply.
func requireStationary(t *testing.T, circulating, price float64, months []Summary, vested []float64) {
	t.Helper()
	require.Len(t, vested, len(months))
	sawVesting := false
	for i, m := range months {
		circulating += vested[i]
		require.Equal(t, circulating, m.Circulating, "month %d", i+1)
		if vested[i] == 0 {
			require.Equal(t, price, m.Price, "month %d", i+1)
		} else {
			sawVesting = true
			require.LessOrEqual(t, m.Price, price, "month %d", i+1)
		}
		price = m.Price
	}
	require.True(t, sawVesting, "horizon should reach a vesting cliff")
}

func TestOriginalZeroGrowthIsStationary(t *testing.T) {
	p := params.DefaultOriginal()
	p.EcosystemFundPercent = 0
	p.YearlyEmission = nil
	p.InitialUSDPurchase, p.InitialOnPremEarnings, p.InitialOracleRequests = 0, 0, 0
	p.OracleCostPerRequest = 0
	p.USDPurchaseGrowth, p.OnPremGrowth, p.OracleGrowth, p.ComputeDemandGrowth = 0, 0, 0, 0
	p.AdoptionSensitivity = 0
	p.InitialCirculating = 5_000_000

	h, err := RunOriginal(NewOriginalState(p), p, 5, quietEnv(1, nil))
	require.NoError(t, err)

	vested := make([]float64, len(h))
	for i, s := range h {
		vested[i] = s.Flows.Vested
		require.Equal(t, float64(p.InitialNodeCount), s.Nodes)
		require.Zero(t, s.TotalBurned)
		require.Zero(t, s.TotalEmitted)
	}
	requireStationary(t, p.InitialCirculating, p.InitialPrice, Summaries(h), vested)
	assert.Equal(t, p.InitialPrice, h[5].Price, "no supply change before the first cliff")
}

func TestProposalZeroGrowthIsStationary(t *testing.T) {
	p := smallProposal()
	p.USDDemandGrowth, p.TokenDemandGrowth = 0, 0
	p.ServiceFeePercent, p.AvgTxFee = 0, 0
	p.USDBuyAndBurn = false
	p.TokenDemandBuyRate = 0
	p.ValidatorDowntime = params.SlashRule{}
	p.ValidatorMalfeasance = params.SlashRule{}
	p.ContributorFailure = params.SlashRule{}
	p.ValidatorYieldAnnual = 0
	p.Contributors.Sensitivity = 0
	p.Validators.Sensitivity = 0

	init := NewProposalState(p)
	init.EmissionPool = 0
	init.EcosystemFund = 0

	h, err := RunProposal(init, p, 3, quietEnv(1, nil))
	require.NoError(t, err)

	vested := make([]float64, len(h))
	for i, s := range h {
		vested[i] = s.Flows.Vested
		require.Equal(t, p.InitialContributors, s.Contributors)
		require.Equal(t, p.InitialValidators, s.Validators)
		require.Equal(t, init.TotalStaked, s.TotalStaked)
		require.Zero(t, s.TotalBurned)
		require.Zero(t, s.TotalEmitted)
		require.Zero(t, s.Treasury)
	}
	requireStationary(t, init.Circulating, init.Price, Summaries(h), vested)
}

func TestOriginalThousandNodes(t *testing.T) {
	p := params.DefaultOriginal()
	p.InitialNodeCount = 1000
	p.TargetAPYPercent = 15
	p.ComputeDemandGrowth = 0

	h, err := RunOriginal(NewOriginalState(p), p, 1, quietEnv(1, nil))
	require.NoError(t, err)
	require.Len(t, h, 12)

	lo, hi := 1000*math.Pow(0.8, 12), 1000*math.Pow(1.2, 12)
	prev := 1000.0
	for _, s := range h {
		require.GreaterOrEqual(t, s.Nodes, lo)
		require.LessOrEqual(t, s.Nodes, hi)
		require.LessOrEqual(t, math.Abs(s.Nodes/prev-1), p.MaxMonthlyNodeChange+1e-9)
		require.False(t, math.IsNaN(s.Flows.AverageAPY))
		prev = s.Nodes
	}

	first := math.Abs(h[0].Flows.AverageAPY - p.TargetAPYPercent)
	last := math.Abs(h[11].Flows.AverageAPY - p.TargetAPYPercent)
	assert.LessOrEqual(t, last, first, "average APY should move toward the target")
}

func TestQuarterlyFundRelease(t *testing.T) {
	p := params.DefaultOriginal()
	s := NewOriginalState(p)
	fund := s.EcosystemFund
	target := fund * p.QuarterlyReleasePercent(1)

	total := 0.0
	for abs := 1; abs <= 3; abs++ {
		total += quarterlyFundRelease(p, TimeAt(abs), &s)
	}
	assert.InDelta(t, target, total, 1e-6)
	assert.InDelta(t, fund-target, s.EcosystemFund, 1e-6)
	assert.Zero(t, s.QuarterTarget)
}

func TestScheduledEmission(t *testing.T) {
	p := params.DefaultOriginal()
	budget := p.AnnualEmission(1) / MonthsPerYear

	emitted, util := scheduledEmission(p, 1, p.RewardsPool(), 1e12, 1e6)
	assert.Equal(t, 1.0, util)
	assert.InDelta(t, budget, emitted, 1e-6, "full utilization and heavy usage emit the whole budget")

	emitted, _ = scheduledEmission(p, 1, 10, 1e12, 1e6)
	assert.LessOrEqual(t, emitted, 10.0, "never more than the pool")

	emitted, _ = scheduledEmission(p, 11, p.RewardsPool(), 1e12, 1e6)
	assert.Zero(t, emitted, "schedule ends after its last year")
}

func TestAPYGrowth(t *testing.T) {
	assert.InDelta(t, 0.01, apyGrowth(20, 15, 0.002, 0.2), 1e-12)
	assert.Equal(t, 0.2, apyGrowth(1e6, 15, 0.002, 0.2))
	assert.Equal(t, -0.2, apyGrowth(-1e6, 15, 0.002, 0.2))
}

func TestHalvingEmission(t *testing.T) {
	p := params.DefaultProposal()
	p.HalvingPeriodMonths = 48
	base := p.InitialMonthlyEmission()
	pool := p.EmissionPool()

	first, _, h := halvingEmission(p, TimeAt(1), pool)
	assert.Equal(t, base, first)
	assert.Zero(t, h)

	last, _, _ := halvingEmission(p, TimeAt(48), pool)
	assert.Equal(t, base, last)

	second, _, h := halvingEmission(p, TimeAt(49), pool)
	assert.Equal(t, first/2, second)
	assert.Equal(t, 1, h)

	third, _, h := halvingEmission(p, TimeAt(97), pool)
	assert.Equal(t, first/4, third)
	assert.Equal(t, 2, h)

	_, potential, _ := halvingEmission(p, TimeAt(1), 3)
	assert.Equal(t, 3.0, potential, "capped by the pool")
}

func TestProposalHalvingInRun(t *testing.T) {
	p := smallProposal()
	h, err := RunProposal(NewProposalState(p), p, 5, quietEnv(3, nil))
	require.NoError(t, err)

	assert.Equal(t, h[0].EpochRewardTarget/2, h[48].EpochRewardTarget)
	assert.Equal(t, 1, h[48].Halvings)
}

func TestProposalStaysInBounds(t *testing.T) {
	p := smallProposal()
	h, err := RunProposal(NewProposalState(p), p, 4, quietEnv(12, market.Bear.Apply(testSeries(4, 12))))
	require.NoError(t, err)

	prev := NewProposalState(p)
	for i, s := range h {
		require.GreaterOrEqual(t, s.Circulating, 0.0, "month %d", i+1)
		require.GreaterOrEqual(t, s.Price, p.Price.Floor)
		require.GreaterOrEqual(t, s.Treasury, 0.0)
		require.GreaterOrEqual(t, s.TotalStaked, 0.0)
		require.GreaterOrEqual(t, s.Contributors, p.Contributors.Floor)
		require.GreaterOrEqual(t, s.Validators, p.Validators.Floor)
		require.LessOrEqual(t, s.EmissionPool, prev.EmissionPool)
		require.LessOrEqual(t, s.EcosystemFund, prev.EcosystemFund)
		require.GreaterOrEqual(t, s.TotalSlashed, prev.TotalSlashed)
		require.LessOrEqual(t, s.Flows.Distributed, s.Flows.EmissionPotential+1e-6)
		require.LessOrEqual(t, s.Flows.RewardScaling, 1.0)
		prev = s
	}
}

func TestCollectFeesSplitsWhatWasCollected(t *testing.T) {
	p := smallProposal()
	p.ServiceFeePercent = 0
	p.USDBuyAndBurn = false

	// 310 nodes * 10 tx * 0.01 fee.
	const generated = 31.0
	cut := generated * p.TreasuryTaxFromFees
	after := generated - cut

	for _, tc := range []struct {
		name        string
		circulating float64
		collected   float64
	}{
		{"empty float", 0, 0},
		{"half the treasury cut", cut / 2, 0.5},
		{"fully covered", 1_000_000, 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			init := NewProposalState(p)
			init.Circulating = tc.circulating
			e, err := NewProposal(init, p, quietEnv(1, nil))
			require.NoError(t, err)

			e.collectFees()
			f := e.s.Flows
			assert.InDelta(t, generated, f.FeesGenerated, 1e-9)
			assert.InDelta(t, cut*tc.collected, f.FeesToTreasury, 1e-9)
			assert.InDelta(t, after*tc.collected*p.ValidatorFeeShare, f.FeesToValidators, 1e-9)

			rest := after * tc.collected * (1 - p.ValidatorFeeShare)
			assert.InDelta(t, rest*(1-p.FeeBurnFraction), f.FeesToContributors, 1e-9)
			assert.LessOrEqual(t, f.BurnedFees, rest*p.FeeBurnFraction+1e-9)
			assert.GreaterOrEqual(t, e.s.Circulating, 0.0)
		})
	}
}

func TestProposalSlashingBurns(t *testing.T) {
	p := smallProposal()
	p.ContributorFailure = params.SlashRule{Probability: 1, Fraction: 0.5}

	h, err := RunProposal(NewProposalState(p), p, 1, quietEnv(1, nil))
	require.NoError(t, err)
	first := h[0]
	assert.Positive(t, first.Flows.Slashed)
	assert.Equal(t, first.TotalSlashed, first.Flows.Slashed)
	assert.GreaterOrEqual(t, first.Flows.BuyPressure, first.Flows.Slashed)
}

func TestBMENetIssuance(t *testing.T) {
	p := params.DefaultBME()
	p.FixedEmission = 2_000_000

	for seed := int64(1); seed <= 5; seed++ {
		h, err := RunBME(NewBMEState(p), p, 1, quietEnv(seed, testSeries(1, seed)))
		require.NoError(t, err)
		require.Len(t, h, 12)

		var sum economy.Units
		for _, s := range h {
			sum += s.Flows.NetDeltaUnits
			require.Equal(t, s.Flows.NetDeltaUnits.Tokens(), s.Flows.NetDelta)
		}
		last := h[11]
		assert.Positive(t, last.NetIssuance, "seed %d", seed)
		assert.Equal(t, sum, last.NetIssuanceUnits, "seed %d", seed)
		assert.Equal(t, last.EmittedUnits-last.BurnedUnits, last.NetIssuanceUnits, "seed %d", seed)
		assert.Equal(t, last.NetIssuanceUnits.Tokens(), last.NetIssuance, "seed %d", seed)
		assert.Equal(t, 12*2_000_000.0, last.TotalEmitted)
	}
}

func TestBMEZeroGrowthIsStationary(t *testing.T) {
	p := params.DefaultBME()
	p.FixedEmission = 0
	p.USDBurnPercent, p.FeeBurnPercent = 0, 0
	p.TokenDemandBuyRate = 0
	p.USDDemandGrowth, p.TokenDemandGrowth = 0, 0
	p.Nodes.Sensitivity = 0

	h, err := RunBME(NewBMEState(p), p, 3, quietEnv(1, nil))
	require.NoError(t, err)
	for _, s := range h {
		require.Equal(t, p.InitialCirculating, s.Circulating)
		require.Equal(t, p.InitialPrice, s.Price)
		require.Equal(t, p.InitialNodes, s.Nodes)
		require.Zero(t, s.NetIssuanceUnits)
	}
}

func TestBMEStaysInBounds(t *testing.T) {
	p := params.DefaultBME()
	p.InitialUSDDemand = 5_000_000 // burns outrun emission
	h, err := RunBME(NewBMEState(p), p, 5, quietEnv(1, market.HighVol.Apply(testSeries(5, 1))))
	require.NoError(t, err)

	for _, s := range h {
		require.GreaterOrEqual(t, s.Circulating, 0.0)
		require.GreaterOrEqual(t, s.Price, p.Price.Floor)
		require.GreaterOrEqual(t, s.Nodes, p.Nodes.Floor)
	}
}

func TestRunRejectsBadInputs(t *testing.T) {
	p := params.DefaultOriginal()

	_, err := RunOriginal(NewOriginalState(p), p, 0, quietEnv(1, nil))
	var se *StateError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "years", se.Field)

	init := NewOriginalState(p)
	init.Circulating = -1
	_, err = RunOriginal(init, p, 1, quietEnv(1, nil))
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "circulating", se.Field)

	init = NewOriginalState(p)
	init.Vested = nil
	_, err = RunOriginal(init, p, 1, quietEnv(1, nil))
	require.True(t, errors.As(err, &se))

	bad := p
	bad.APYWindowMonths = 0
	_, err = RunOriginal(NewOriginalState(p), bad, 1, quietEnv(1, nil))
	assert.True(t, params.IsConfigError(err))

	bp := params.DefaultBME()
	bs := NewBMEState(bp)
	bs.Price = math.NaN()
	_, err = RunBME(bs, bp, 1, quietEnv(1, nil))
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "price", se.Field)
}

func TestRunVariant(t *testing.T) {
	set := params.DefaultSet()
	set.Years = 2
	set.Proposal = smallProposal()

	for _, v := range Variants() {
		out, err := RunVariant(v, set, quietEnv(v.Stream(), nil))
		require.NoError(t, err, v)
		assert.Equal(t, v, out.Variant)
		assert.Len(t, out.Summaries, 24)
		assert.Len(t, out.Snapshots, 24)
		assert.Equal(t, 24, out.Metrics.Months)
		assert.Equal(t, Time{Abs: 24, Year: 2, Month: 12}, out.Summaries[23].Time)
		assert.NotNil(t, VariantParams(v, set))
	}

	_, err := RunVariant("mystery", set, quietEnv(1, nil))
	assert.Error(t, err)
}

func TestMeasure(t *testing.T) {
	assert.Equal(t, Metrics{}, Measure(nil))

	m := Measure([]Summary{
		{Price: 1, Nodes: 10, Burned: 1, Emitted: 5, Utilization: 0.5, APY: 10},
		{Price: 3, Nodes: 16, Burned: 2, Emitted: 9, Utilization: 1.0, APY: 20},
	})
	assert.Equal(t, 2, m.Months)
	assert.Equal(t, 3.0, m.FinalPrice)
	assert.Equal(t, 1.0, m.LowestPrice)
	assert.InDelta(t, math.Sqrt2, m.PriceStdDev, 1e-12)
	assert.Equal(t, 16.0, m.PeakNodes)
	assert.Equal(t, 6.0, m.AvgNodeDelta)
	assert.Equal(t, 2.0, m.TotalBurned)
	assert.Equal(t, 9.0, m.TotalEmitted)
	assert.InDelta(t, 0.75, m.AvgUtilization, 1e-12)
	assert.InDelta(t, 15.0, m.AvgAPY, 1e-12)
}

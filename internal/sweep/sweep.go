// Package sweep runs every tokenomics variant over the Cartesian product of
// parameter axes and market scenarios. Members are independent: each gets a
// cloned parameter set, its own reshaped market series and its own seeded
// random source, so they run in parallel without sharing state.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/token-sim/internal/engine"
	"github.com/talgya/token-sim/internal/entropy"
	"github.com/talgya/token-sim/internal/market"
	"github.com/talgya/token-sim/internal/params"
)

// Axis is one swept parameter, named as in the params registry.
type Axis struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Setting is one axis value of a sweep point.
type Setting struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// DefaultAxes is the robustness grid over launch conditions.
func DefaultAxes() []Axis {
	return []Axis{
		{Name: "INITIAL_NODE_COUNT", Values: []float64{1000, 5000, 20000}},
		{Name: "BASE_USD_DEMAND_GROWTH_RATE_MONTHLY", Values: []float64{0.005, 0.01, 0.02}},
		{Name: "INITIAL_PRICE_USD", Values: []float64{0.25, 0.5, 1.0}},
		{Name: "MARKET_TREND_IMPACT_FACTOR", Values: []float64{0.25, 0.5, 0.75}},
		{Name: "INITIAL_USD_CREDIT_PURCHASE_PER_MONTH", Values: []float64{50_000, 100_000, 200_000}},
		{Name: "INITIAL_TOKEN_PAYMENTS_PER_MONTH", Values: []float64{100_000, 200_000, 400_000}},
		{Name: "SIMULATION_YEARS", Values: []float64{5, 10}},
	}
}

// QuickAxes is a small grid for smoke runs of the CLI and API.
func QuickAxes() []Axis {
	return []Axis{
		{Name: "INITIAL_NODE_COUNT", Values: []float64{1000, 5000}},
		{Name: "BASE_USD_DEMAND_GROWTH_RATE_MONTHLY", Values: []float64{0.005, 0.02}},
	}
}

// Points expands axes into their Cartesian product. The last axis varies
// fastest. No axes yields a single empty point.
func Points(axes []Axis) [][]Setting {
	points := [][]Setting{{}}
	for _, ax := range axes {
		next := make([][]Setting, 0, len(points)*len(ax.Values))
		for _, p := range points {
			for _, v := range ax.Values {
				pt := append(append([]Setting(nil), p...), Setting{Name: ax.Name, Value: v})
				next = append(next, pt)
			}
		}
		points = next
	}
	return points
}

// Config describes a sweep.
type Config struct {
	Base      params.Set
	Axes      []Axis
	Scenarios []market.Scenario // empty means Baseline only
	Variants  []engine.Variant  // empty means all
	Market    market.Series     // nil generates a synthetic series from Seed
	Seed      int64
	Workers   int          // <= 0 means GOMAXPROCS
	Logger    *slog.Logger // sweep progress; engines log nowhere

	// KeepHistory retains per-month summaries and snapshots in each outcome.
	// Off by default; large grids only need metrics.
	KeepHistory bool
}

// Member is one point × scenario of a sweep.
type Member struct {
	ID       uuid.UUID        `json:"id"`
	Index    int              `json:"index"`
	Scenario string           `json:"scenario"`
	Settings []Setting        `json:"settings"`
	Seed     int64            `json:"seed"`
	Outcomes []engine.Outcome `json:"outcomes"`
	Err      string           `json:"error,omitempty"`
	Elapsed  time.Duration    `json:"elapsed"`
}

// Outcome returns the member's result for v.
func (m Member) Outcome(v engine.Variant) (engine.Outcome, bool) {
	for _, o := range m.Outcomes {
		if o.Variant == v {
			return o, true
		}
	}
	return engine.Outcome{}, false
}

// Run executes the sweep. Results come back in point-major, scenario-minor
// order regardless of scheduling. A failing member records its error and
// does not stop the others; Run itself only fails on cancellation.
func Run(ctx context.Context, cfg Config) ([]Member, error) {
	scenarios := cfg.Scenarios
	if len(scenarios) == 0 {
		scenarios = []market.Scenario{market.Baseline}
	}
	variants := cfg.Variants
	if len(variants) == 0 {
		variants = engine.Variants()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	base := cfg.Market
	if base == nil {
		base = market.Synthetic(market.DefaultSyntheticConfig(maxYears(cfg)*engine.MonthsPerYear, cfg.Seed))
	}
	shaped := make([]market.Series, len(scenarios))
	for i, sc := range scenarios {
		shaped[i] = sc.Apply(base)
	}

	points := Points(cfg.Axes)
	members := make([]Member, len(points)*len(scenarios))
	for pi, pt := range points {
		for si, sc := range scenarios {
			i := pi*len(scenarios) + si
			members[i] = Member{
				ID:       uuid.New(),
				Index:    i,
				Scenario: sc.Name,
				Settings: pt,
				Seed:     cfg.Seed + int64(i),
			}
		}
	}

	log.Info("sweep started",
		"points", len(points),
		"scenarios", len(scenarios),
		"members", len(members),
		"workers", workers,
	)
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range members {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m := &members[i]
			runMember(m, cfg.Base, shaped[i%len(scenarios)], variants, cfg.KeepHistory)
			if m.Err != "" {
				log.Warn("sweep member failed", "index", m.Index, "scenario", m.Scenario, "error", m.Err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return members, fmt.Errorf("sweep: %w", err)
	}

	log.Info("sweep finished", "members", len(members), "elapsed", time.Since(start).Round(time.Millisecond))
	return members, nil
}

// runMember fills m in place. Each variant draws from its own derived
// stream.
func runMember(m *Member, base params.Set, series market.Series, variants []engine.Variant, keep bool) {
	start := time.Now()
	defer func() { m.Elapsed = time.Since(start) }()

	set := base.Clone()
	for _, st := range m.Settings {
		if err := set.Apply(st.Name, st.Value); err != nil {
			m.Err = err.Error()
			return
		}
	}
	if err := set.Validate(); err != nil {
		m.Err = err.Error()
		return
	}

	root := entropy.NewSeeded(m.Seed)
	for _, v := range variants {
		env := engine.Env{
			Source: root.Derive(v.Stream()),
			Market: series,
			Logger: slog.New(slog.DiscardHandler),
		}
		out, err := engine.RunVariant(v, set, env)
		if err != nil {
			m.Err = fmt.Sprintf("%s: %v", v, err)
			return
		}
		if !keep {
			out.Summaries, out.Snapshots = nil, nil
		}
		m.Outcomes = append(m.Outcomes, out)
	}
}

func maxYears(cfg Config) int {
	years := cfg.Base.Years
	for _, ax := range cfg.Axes {
		if ax.Name != "SIMULATION_YEARS" {
			continue
		}
		for _, v := range ax.Values {
			years = max(years, int(v))
		}
	}
	return max(years, 1)
}

// Failures returns the members whose run of v ended below either threshold.
func Failures(members []Member, v engine.Variant, minPrice, minNodes float64) []Member {
	var out []Member
	for _, m := range members {
		o, ok := m.Outcome(v)
		if !ok {
			continue
		}
		if o.Metrics.FinalPrice < minPrice || o.Metrics.FinalNodes < minNodes {
			out = append(out, m)
		}
	}
	return out
}

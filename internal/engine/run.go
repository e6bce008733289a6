package engine

import (
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/talgya/token-sim/internal/entropy"
	"github.com/talgya/token-sim/internal/market"
)

// Variant names one of the three tokenomics models.
type Variant string

const (
	VariantOriginal Variant = "original"
	VariantProposal Variant = "proposal"
	VariantBME      Variant = "bme"
)

// Variants lists every model in reporting order.
func Variants() []Variant {
	return []Variant{VariantOriginal, VariantProposal, VariantBME}
}

// ParseVariant accepts a variant name in any case.
func ParseVariant(s string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case VariantOriginal, VariantProposal, VariantBME:
		return v, nil
	}
	return "", fmt.Errorf("unknown variant %q", s)
}

// ParseVariants accepts a comma-separated list of variant names. Empty or
// "all" selects every variant.
func ParseVariants(s string) ([]Variant, error) {
	if strings.TrimSpace(s) == "" || strings.EqualFold(strings.TrimSpace(s), "all") {
		return Variants(), nil
	}
	var out []Variant
	for _, part := range strings.Split(s, ",") {
		v, err := ParseVariant(part)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out, nil
}

// Stream is v's fixed offset for deriving its random stream, so a variant
// draws the same numbers whether it runs alone or beside the others.
func (v Variant) Stream() int64 {
	return int64(slices.Index(Variants(), v))
}

// StateError reports an initial state a run cannot start from.
type StateError struct {
	Field  string
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state %s: %s", e.Field, e.Reason)
}

// Env carries the collaborators a run reads but does not own.
type Env struct {
	Source entropy.Source // nil draws from crypto/rand
	Market market.Series  // nil disables market modulation
	Logger *slog.Logger   // nil uses slog.Default()
}

func (env Env) source() entropy.Source { return entropy.OrCrypto(env.Source) }

func (env Env) logger() *slog.Logger {
	if env.Logger == nil {
		return slog.Default()
	}
	return env.Logger
}

// Summary is the variant-independent view of one month, used for metrics,
// logging and storage.
type Summary struct {
	Time        Time    `json:"time"`
	Price       float64 `json:"price"`
	Circulating float64 `json:"circulating"`
	Nodes       float64 `json:"nodes"`
	Staked      float64 `json:"staked"`
	Burned      float64 `json:"burned"`  // cumulative
	Emitted     float64 `json:"emitted"` // cumulative
	Slashed     float64 `json:"slashed"` // cumulative
	Treasury    float64 `json:"treasury"`
	Utilization float64 `json:"utilization"`
	APY         float64 `json:"apy"` // percent, 0 where the variant has none
}

// Summarizer is implemented by every state type.
type Summarizer interface {
	Summary() Summary
}

// Summaries maps a history onto its summaries.
func Summaries[S Summarizer](history []S) []Summary {
	out := make([]Summary, len(history))
	for i, s := range history {
		out[i] = s.Summary()
	}
	return out
}

// model is the contract the clock drives.
type model[S Summarizer] interface {
	Step(t Time)
	Snapshot() S
}

// run steps m across the horizon and collects one snapshot per month.
func run[S Summarizer](variant Variant, m model[S], years int, log *slog.Logger) []S {
	history := make([]S, 0, years*MonthsPerYear)

	clock := NewClock(years)
	clock.OnMonth = func(t Time) {
		m.Step(t)
		history = append(history, m.Snapshot())
	}
	clock.OnQuarter = func(t Time) {
		sum := history[len(history)-1].Summary()
		log.Debug("quarter complete",
			"variant", variant,
			"time", t.String(),
			"price", fmt.Sprintf("%.4f", sum.Price),
			"circulating", humanize.SIWithDigits(sum.Circulating, 2, ""),
			"nodes", fmt.Sprintf("%.0f", sum.Nodes),
		)
	}
	clock.OnYear = func(t Time) {
		sum := history[len(history)-1].Summary()
		log.Info("year complete",
			"variant", variant,
			"year", t.Year,
			"price", fmt.Sprintf("%.4f", sum.Price),
			"circulating", humanize.Commaf(math.Round(sum.Circulating)),
			"nodes", fmt.Sprintf("%.0f", sum.Nodes),
			"burned", humanize.SIWithDigits(sum.Burned, 2, ""),
			"emitted", humanize.SIWithDigits(sum.Emitted, 2, ""),
		)
	}
	clock.Run()

	return history
}

func checkYears(years int) error {
	if years < 1 {
		return &StateError{Field: "years", Reason: fmt.Sprintf("horizon must be at least 1 year, got %d", years)}
	}
	return nil
}

// checkBalances rejects negative or non-finite starting balances.
func checkBalances(fields map[string]float64) error {
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		v := fields[name]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &StateError{Field: name, Reason: "must be finite"}
		}
		if v < 0 {
			return &StateError{Field: name, Reason: fmt.Sprintf("must be >= 0, got %g", v)}
		}
	}
	return nil
}

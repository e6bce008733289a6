package engine

import (
	"fmt"

	"github.com/talgya/token-sim/internal/params"
)

// Outcome is one variant's run in variant-independent form.
type Outcome struct {
	Variant   Variant   `json:"variant"`
	Summaries []Summary `json:"summaries"`
	Metrics   Metrics   `json:"metrics"`

	// Snapshots holds the full per-month states (OriginalState,
	// ProposalState or BMEState) for storage.
	Snapshots []any `json:"-"`
}

// RunVariant runs one model from its default launch state under set.
func RunVariant(v Variant, set params.Set, env Env) (Outcome, error) {
	switch v {
	case VariantOriginal:
		h, err := RunOriginal(NewOriginalState(set.Original), set.Original, set.Years, env)
		return newOutcome(v, h, err)
	case VariantProposal:
		h, err := RunProposal(NewProposalState(set.Proposal), set.Proposal, set.Years, env)
		return newOutcome(v, h, err)
	case VariantBME:
		h, err := RunBME(NewBMEState(set.BME), set.BME, set.Years, env)
		return newOutcome(v, h, err)
	}
	return Outcome{}, fmt.Errorf("unknown variant %q", v)
}

// VariantParams returns the part of set that drives v.
func VariantParams(v Variant, set params.Set) any {
	switch v {
	case VariantOriginal:
		return set.Original
	case VariantProposal:
		return set.Proposal
	case VariantBME:
		return set.BME
	}
	return nil
}

func newOutcome[S Summarizer](v Variant, history []S, err error) (Outcome, error) {
	if err != nil {
		return Outcome{Variant: v}, err
	}
	sums := Summaries(history)
	snaps := make([]any, len(history))
	for i, s := range history {
		snaps[i] = s
	}
	return Outcome{
		Variant:   v,
		Summaries: sums,
		Metrics:   Measure(sums),
		Snapshots: snaps,
	}, nil
}

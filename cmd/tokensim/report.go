package main

import (
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/talgya/token-sim/internal/engine"
	"github.com/talgya/token-sim/internal/market"
	"github.com/talgya/token-sim/internal/sweep"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
}

func tokens(v float64) string {
	return humanize.SIWithDigits(v, 2, "")
}

// writeYearly prints the year-end state of one run.
func writeYearly(w io.Writer, o engine.Outcome) {
	fmt.Fprintf(w, "\n== %s ==\n", o.Variant)
	tw := newTable(w)
	fmt.Fprintln(tw, "Year\tPrice\tCirculating\tNodes\tStaked\tBurned\tEmitted\tTreasury\tAPY %\t")
	for _, s := range o.Summaries {
		if s.Time.Month != engine.MonthsPerYear {
			continue
		}
		fmt.Fprintf(tw, "%d\t%.4f\t%s\t%s\t%s\t%s\t%s\t%s\t%.2f\t\n",
			s.Time.Year, s.Price,
			tokens(s.Circulating),
			humanize.Comma(int64(math.Round(s.Nodes))),
			tokens(s.Staked), tokens(s.Burned), tokens(s.Emitted), tokens(s.Treasury),
			s.APY,
		)
	}
	tw.Flush()
}

// writeMetrics prints one column of run metrics per variant.
func writeMetrics(w io.Writer, outs []engine.Outcome) {
	if len(outs) == 0 {
		return
	}
	fmt.Fprintln(w, "\n== metrics ==")
	tw := newTable(w)

	header := []string{"Metric"}
	for _, o := range outs {
		header = append(header, string(o.Variant))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t")+"\t")

	rows := []struct {
		name string
		val  func(engine.Metrics) string
	}{
		{"final price", func(m engine.Metrics) string { return fmt.Sprintf("%.4f", m.FinalPrice) }},
		{"lowest price", func(m engine.Metrics) string { return fmt.Sprintf("%.4f", m.LowestPrice) }},
		{"price std-dev", func(m engine.Metrics) string { return fmt.Sprintf("%.4f", m.PriceStdDev) }},
		{"final nodes", func(m engine.Metrics) string { return humanize.Comma(int64(math.Round(m.FinalNodes))) }},
		{"peak nodes", func(m engine.Metrics) string { return humanize.Comma(int64(math.Round(m.PeakNodes))) }},
		{"avg node delta", func(m engine.Metrics) string { return fmt.Sprintf("%.2f", m.AvgNodeDelta) }},
		{"circulating", func(m engine.Metrics) string { return tokens(m.FinalCirculating) }},
		{"burned", func(m engine.Metrics) string { return tokens(m.TotalBurned) }},
		{"emitted", func(m engine.Metrics) string { return tokens(m.TotalEmitted) }},
		{"slashed", func(m engine.Metrics) string { return tokens(m.TotalSlashed) }},
		{"treasury", func(m engine.Metrics) string { return tokens(m.FinalTreasury) }},
		{"avg utilization", func(m engine.Metrics) string { return fmt.Sprintf("%.3f", m.AvgUtilization) }},
		{"avg APY %", func(m engine.Metrics) string { return fmt.Sprintf("%.2f", m.AvgAPY) }},
	}
	for _, r := range rows {
		cells := []string{r.name}
		for _, o := range outs {
			cells = append(cells, r.val(o.Metrics))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t")+"\t")
	}
	tw.Flush()
}

// writeSweep prints one row per variant and scenario aggregating its members.
func writeSweep(w io.Writer, members []sweep.Member, variants []engine.Variant, scenarios []market.Scenario, minPrice, minNodes float64) {
	errored := 0
	for _, m := range members {
		if m.Err != "" {
			errored++
		}
	}
	fmt.Fprintf(w, "\n== sweep: %s members, %d errored ==\n", humanize.Comma(int64(len(members))), errored)

	failed := make(map[engine.Variant]map[string]int, len(variants))
	for _, v := range variants {
		failed[v] = make(map[string]int)
		for _, m := range sweep.Failures(members, v, minPrice, minNodes) {
			failed[v][m.Scenario]++
		}
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "Variant\tScenario\tRuns\tFailed\tMean price\tMin price\tMean nodes\tMean burned\t")
	for _, v := range variants {
		for _, sc := range scenarios {
			var n int
			var sumPrice, sumNodes, sumBurned float64
			minFinal := math.Inf(1)
			for _, m := range members {
				if m.Scenario != sc.Name {
					continue
				}
				o, ok := m.Outcome(v)
				if !ok {
					continue
				}
				n++
				sumPrice += o.Metrics.FinalPrice
				sumNodes += o.Metrics.FinalNodes
				sumBurned += o.Metrics.TotalBurned
				minFinal = math.Min(minFinal, o.Metrics.FinalPrice)
			}
			if n == 0 {
				continue
			}
			fn := float64(n)
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.4f\t%.4f\t%s\t%s\t\n",
				v, sc.Name, n, failed[v][sc.Name],
				sumPrice/fn, minFinal,
				humanize.Comma(int64(math.Round(sumNodes/fn))),
				tokens(sumBurned/fn),
			)
		}
	}
	tw.Flush()
}

// writeScenarios summarizes base reshaped by every built-in scenario.
func writeScenarios(w io.Writer, base market.Series) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "Scenario\tMean trend\tBull\tBear\tSideways\tExtreme\tMax drawdown\tMean vol\tFinal index\t")
	for _, sc := range market.Scenarios() {
		s := sc.Apply(base)
		if len(s) == 0 {
			return fmt.Errorf("scenario %s: empty series", sc.Name)
		}
		var trend, vol, drawdown float64
		regimes := map[market.Regime]int{}
		extreme := 0
		for _, f := range s {
			trend += f.Trend
			vol += f.Volatility
			drawdown = math.Min(drawdown, f.Drawdown)
			regimes[f.Regime]++
			if f.Extreme {
				extreme++
			}
		}
		n := float64(len(s))
		fmt.Fprintf(tw, "%s\t%+.2f%%\t%d\t%d\t%d\t%d\t%.1f%%\t%.3f\t%.1f\t\n",
			sc.Name, trend/n*100,
			regimes[market.RegimeBull], regimes[market.RegimeBear], regimes[market.RegimeSideways],
			extreme, drawdown*100, vol/n, s[len(s)-1].Index,
		)
	}
	return tw.Flush()
}

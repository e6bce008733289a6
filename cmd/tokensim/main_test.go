package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/token-sim/internal/engine"
	"github.com/talgya/token-sim/internal/market"
	"github.com/talgya/token-sim/internal/params"
	"github.com/talgya/token-sim/internal/sweep"
)

func TestParsePairs(t *testing.T) {
	got, err := parsePairs([]string{"SIMULATION_YEARS=3", "INITIAL_PRICE_USD=0.5=x"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"SIMULATION_YEARS":  "3",
		"INITIAL_PRICE_USD": "0.5=x",
	}, got)

	_, err = parsePairs([]string{"NOVALUE"})
	assert.Error(t, err)
	_, err = parsePairs([]string{"=1"})
	assert.Error(t, err)
}

func TestParseScenarios(t *testing.T) {
	all, err := parseScenarios("all")
	require.NoError(t, err)
	assert.Equal(t, market.Scenarios(), all)

	some, err := parseScenarios("bear, HighVol")
	require.NoError(t, err)
	assert.Equal(t, []market.Scenario{market.Bear, market.HighVol}, some)

	_, err = parseScenarios("bear,crab")
	assert.Error(t, err)
}

func TestReports(t *testing.T) {
	set := params.DefaultSet()
	set.Years = 2
	out, err := engine.RunVariant(engine.VariantBME, set, engine.Env{Logger: slog.New(slog.DiscardHandler)})
	require.NoError(t, err)

	var buf bytes.Buffer
	writeYearly(&buf, out)
	writeMetrics(&buf, []engine.Outcome{out})
	text := buf.String()
	assert.Contains(t, text, "== bme ==")
	assert.Contains(t, text, "final price")
	assert.Contains(t, text, "Year")
	assert.Equal(t, 1, strings.Count(text, "== metrics =="))
}

func TestSweepReport(t *testing.T) {
	members := []sweep.Member{
		{Scenario: "Bear", Outcomes: []engine.Outcome{{
			Variant: engine.VariantBME,
			Metrics: engine.Metrics{FinalPrice: 0.001, FinalNodes: 5000, TotalBurned: 1e6},
		}}},
		{Scenario: "Bear", Outcomes: []engine.Outcome{{
			Variant: engine.VariantBME,
			Metrics: engine.Metrics{FinalPrice: 0.5, FinalNodes: 7000, TotalBurned: 3e6},
		}}},
		{Scenario: "Bear", Err: "bme: boom"},
	}

	var buf bytes.Buffer
	writeSweep(&buf, members, []engine.Variant{engine.VariantBME}, []market.Scenario{market.Bear}, 0.01, 100)
	text := buf.String()
	assert.Contains(t, text, "3 members, 1 errored")
	assert.Contains(t, text, "0.2505")
	assert.Contains(t, text, "6,000")
}

func TestScenarioReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeScenarios(&buf, market.Synthetic(market.DefaultSyntheticConfig(24, 1))))
	for _, sc := range market.Scenarios() {
		assert.Contains(t, buf.String(), sc.Name)
	}

	assert.Error(t, writeScenarios(&buf, nil))
}

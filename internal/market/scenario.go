package market

import (
	"fmt"
	"math"
	"strings"
)

// Scenario reshapes a trend series to stress the engines under a different
// market.
type Scenario struct {
	Name   string  `json:"name"`
	Factor float64 `json:"factor"`
	Abs    bool    `json:"abs"` // take |trend| before scaling
}

// Built-in scenarios.
var (
	Baseline = Scenario{Name: "Baseline", Factor: 1}
	Bull     = Scenario{Name: "Bull", Factor: 1, Abs: true}
	Bear     = Scenario{Name: "Bear", Factor: -1}
	HighVol  = Scenario{Name: "HighVol", Factor: 2}
)

// Scenarios lists the built-ins in sweep order.
func Scenarios() []Scenario {
	return []Scenario{Baseline, Bull, Bear, HighVol}
}

// ScenarioByName looks up a built-in scenario, case-insensitively.
func ScenarioByName(name string) (Scenario, error) {
	for _, s := range Scenarios() {
		if strings.EqualFold(s.Name, name) {
			return s, nil
		}
	}
	return Scenario{}, fmt.Errorf("unknown market scenario %q", name)
}

// Apply returns a new series whose trends are transformed by the scenario
// and whose derived features are recomputed from the reshaped index.
func (sc Scenario) Apply(s Series) Series {
	if len(s) == 0 {
		return nil
	}
	trends := s.Trends()
	for i, t := range trends {
		if sc.Abs {
			t = math.Abs(t)
		}
		trends[i] = t * sc.Factor
	}
	return FromTrends(trends)
}

// ScenarioSeries builds a synthetic series of the given length and reshapes
// it with the named scenario. An empty name means Baseline.
func ScenarioSeries(name string, months int, seed int64) (Series, Scenario, error) {
	sc := Baseline
	if name != "" {
		var err error
		if sc, err = ScenarioByName(name); err != nil {
			return nil, Scenario{}, err
		}
	}
	return sc.Apply(Synthetic(DefaultSyntheticConfig(months, seed))), sc, nil
}

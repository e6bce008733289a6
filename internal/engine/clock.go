// Package engine advances the three tokenomics models month by month.
// Each model owns its state type; shared mechanisms live in economy and
// market. A run is a pure function of initial state, parameters, horizon
// and random source.
package engine

import "fmt"

// Calendar constants for the monthly clock.
const (
	MonthsPerQuarter = 3
	MonthsPerYear    = 12
)

// Time is a position on the monthly clock.
type Time struct {
	Abs   int `json:"abs"`   // 1-based month since launch
	Year  int `json:"year"`  // 1-based
	Month int `json:"month"` // 1..12
}

// TimeAt converts an absolute 1-based month into calendar time.
func TimeAt(abs int) Time {
	return Time{
		Abs:   abs,
		Year:  (abs-1)/MonthsPerYear + 1,
		Month: (abs-1)%MonthsPerYear + 1,
	}
}

// QuarterStart reports whether t is the first month of a calendar quarter.
func (t Time) QuarterStart() bool { return (t.Month-1)%MonthsPerQuarter == 0 }

// QuarterEnd reports whether t is the last month of a calendar quarter.
func (t Time) QuarterEnd() bool { return t.Month%MonthsPerQuarter == 0 }

func (t Time) String() string {
	return fmt.Sprintf("Year %d Month %02d", t.Year, t.Month)
}

// Clock drives monthly callbacks across a fixed horizon.
type Clock struct {
	Elapsed int // months completed (monotonic)
	Horizon int // total months to run

	// Callbacks for each layer, populated during setup.
	OnMonth   func(t Time) // every month
	OnQuarter func(t Time) // after the last month of each quarter
	OnYear    func(t Time) // after month 12 of each year
}

// NewClock creates a clock for the given number of years.
func NewClock(years int) *Clock {
	return &Clock{Horizon: years * MonthsPerYear}
}

// Run steps the clock until the horizon is reached.
func (c *Clock) Run() {
	for c.Elapsed < c.Horizon {
		c.step()
	}
}

// step advances the clock by one month.
func (c *Clock) step() {
	c.Elapsed++
	t := TimeAt(c.Elapsed)

	if c.OnMonth != nil {
		c.OnMonth(t)
	}

	if t.QuarterEnd() && c.OnQuarter != nil {
		c.OnQuarter(t)
	}

	if t.Month == MonthsPerYear && c.OnYear != nil {
		c.OnYear(t)
	}
}

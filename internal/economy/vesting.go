// Package economy holds the token mechanisms shared by every simulation
// variant: vesting, burns, staking flow, price discovery, node population
// dynamics and yield bookkeeping. Everything here is a pure function of its
// inputs so the engines can compose them in whatever order their model needs.
package economy

// VestingSchedule describes a cliff followed by linear monthly unlocks.
// LinearMonths == 0 means the whole allocation unlocks the month after the cliff.
type VestingSchedule struct {
	CliffMonths  int `json:"cliff_months"`
	LinearMonths int `json:"linear_months"`
}

// End returns the last month (1-based) in which the schedule can unlock tokens.
func (s VestingSchedule) End() int {
	if s.LinearMonths <= 0 {
		return s.CliffMonths + 1
	}
	return s.CliffMonths + s.LinearMonths
}

// Unlock returns the tokens released in absMonth (1-based) for an allocation
// of total tokens, given what has already vested. The final month of the
// linear window releases exactly the remainder so cumulative vesting lands on
// total without floating-point overshoot or residue.
func Unlock(total float64, s VestingSchedule, absMonth int, vestedToDate float64) float64 {
	remaining := total - vestedToDate
	if remaining <= 0 || absMonth <= s.CliffMonths {
		return 0
	}

	if s.LinearMonths <= 0 {
		return remaining
	}

	if absMonth > s.CliffMonths+s.LinearMonths {
		return 0
	}

	perMonth := total / float64(s.LinearMonths)
	if absMonth == s.CliffMonths+s.LinearMonths || perMonth > remaining {
		return remaining
	}
	return perMonth
}

// Allocation is one time-locked token bucket (team, advisors, an investor round).
type Allocation struct {
	Name     string          `json:"name"`
	Total    float64         `json:"total"`
	Schedule VestingSchedule `json:"schedule"`
}

// VestAll applies Unlock to every allocation, adding each month's unlock to
// the matching entry of vested, and returns the sum unlocked this month.
func VestAll(allocs []Allocation, vested []float64, absMonth int) float64 {
	sum := 0.0
	for i, a := range allocs {
		u := Unlock(a.Total, a.Schedule, absMonth, vested[i])
		vested[i] += u
		sum += u
	}
	return sum
}

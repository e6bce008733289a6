package economy

import "math"

// PriceModel moves a scalar market price by the ratio of buy pressure to sell
// pressure each month.
type PriceModel struct {
	Sensitivity float64 `json:"sensitivity"`
	Floor       float64 `json:"floor"`
	MaxChange   float64 `json:"max_change"` // 0 disables the per-month cap
}

// Change returns the fractional price change for one month's pressures.
func (m PriceModel) Change(demand, supply float64) float64 {
	var change float64
	switch {
	case supply > 0:
		change = (demand/supply - 1) * m.Sensitivity
	case demand > 0:
		change = m.Sensitivity
	}
	if m.MaxChange > 0 {
		change = Clamp(change, -m.MaxChange, m.MaxChange)
	}
	return change
}

// Next returns the new price, never below the floor.
func (m PriceModel) Next(price, demand, supply float64) float64 {
	next := price * (1 + m.Change(demand, supply))
	if math.IsNaN(next) {
		next = m.Floor
	}
	return AtLeast(next, m.Floor)
}

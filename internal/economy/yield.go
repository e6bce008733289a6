package economy

// APYWindow keeps the trailing realized APY values used for node decisions.
type APYWindow struct {
	Size   int       `json:"size"`
	Values []float64 `json:"values"`
}

// Push appends v and drops the oldest entries beyond Size.
func (w *APYWindow) Push(v float64) {
	w.Values = append(w.Values, v)
	if w.Size > 0 && len(w.Values) > w.Size {
		w.Values = append(w.Values[:0:0], w.Values[len(w.Values)-w.Size:]...)
	}
}

// Mean returns the average of the window, 0 when empty.
func (w APYWindow) Mean() float64 {
	if len(w.Values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range w.Values {
		sum += v
	}
	return sum / float64(len(w.Values))
}

// Clone returns a copy that shares no memory with w.
func (w APYWindow) Clone() APYWindow {
	return APYWindow{Size: w.Size, Values: append([]float64(nil), w.Values...)}
}

// AdaptiveYield is a two-sided deadband on price: the base staking yield is
// boosted below LowPrice and reduced above HighPrice.
type AdaptiveYield struct {
	Base            float64 `json:"base"`
	LowPrice        float64 `json:"low_price"`
	HighPrice       float64 `json:"high_price"`
	BoostFactor     float64 `json:"boost_factor"`
	ReductionFactor float64 `json:"reduction_factor"`
	Min             float64 `json:"min"`
	Max             float64 `json:"max"`
}

// At returns the annual base yield for the given price.
func (y AdaptiveYield) At(price float64) float64 {
	switch {
	case price < y.LowPrice:
		return AtMost(y.Base*y.BoostFactor, y.Max)
	case price > y.HighPrice:
		return AtLeast(y.Base*y.ReductionFactor, y.Min)
	default:
		return y.Base
	}
}

// StakingAPY returns the annual percentage yield a node perceives: profit
// annualized against the USD value of its stake, plus the base yield.
func StakingAPY(profitPerNodeUSD, stakePerNode, price, baseYield float64) float64 {
	stakeValue := stakePerNode * price
	compute := 0.0
	if stakeValue > 0 {
		compute = profitPerNodeUSD * 12 / stakeValue * 100
	}
	return compute + baseYield*100
}

package engine

import "math"

// Metrics condenses a run into the figures compared across scenarios.
type Metrics struct {
	Months           int     `json:"months"`
	FinalPrice       float64 `json:"final_price"`
	LowestPrice      float64 `json:"lowest_price"`
	PriceStdDev      float64 `json:"price_std_dev"` // sample standard deviation
	FinalNodes       float64 `json:"final_nodes"`
	PeakNodes        float64 `json:"peak_nodes"`
	AvgNodeDelta     float64 `json:"avg_node_delta"` // mean month-over-month change
	FinalCirculating float64 `json:"final_circulating"`
	TotalBurned      float64 `json:"total_burned"`
	TotalEmitted     float64 `json:"total_emitted"`
	TotalSlashed     float64 `json:"total_slashed"`
	FinalTreasury    float64 `json:"final_treasury"`
	AvgUtilization   float64 `json:"avg_utilization"`
	AvgAPY           float64 `json:"avg_apy"`
}

// Measure computes Metrics from a run's summaries. An empty history yields
// zero metrics.
func Measure(history []Summary) Metrics {
	if len(history) == 0 {
		return Metrics{}
	}

	last := history[len(history)-1]
	m := Metrics{
		Months:           len(history),
		FinalPrice:       last.Price,
		LowestPrice:      math.Inf(1),
		FinalNodes:       last.Nodes,
		FinalCirculating: last.Circulating,
		TotalBurned:      last.Burned,
		TotalEmitted:     last.Emitted,
		TotalSlashed:     last.Slashed,
		FinalTreasury:    last.Treasury,
	}

	var priceSum, utilSum, apySum float64
	for i, s := range history {
		m.LowestPrice = math.Min(m.LowestPrice, s.Price)
		m.PeakNodes = math.Max(m.PeakNodes, s.Nodes)
		priceSum += s.Price
		utilSum += s.Utilization
		apySum += s.APY
		if i > 0 {
			m.AvgNodeDelta += s.Nodes - history[i-1].Nodes
		}
	}

	n := float64(len(history))
	mean := priceSum / n
	var sq float64
	for _, s := range history {
		sq += (s.Price - mean) * (s.Price - mean)
	}
	m.AvgUtilization = utilSum / n
	m.AvgAPY = apySum / n
	if len(history) > 1 {
		m.PriceStdDev = math.Sqrt(sq / (n - 1))
		m.AvgNodeDelta /= n - 1
	}
	return m
}

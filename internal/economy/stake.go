package economy

// StakeFlow moves tokens between circulating supply and the staking pool so
// that the pool reaches target. Net staking is clamped to the circulating
// supply available; net unstaking returns tokens to circulation. It returns
// the signed flow actually applied and the updated circulating supply.
func StakeFlow(previous, target, circulating float64) (flow, newCirculating float64) {
	delta := target - previous
	switch {
	case delta > 0:
		taken, rest := Draw(circulating, delta)
		return taken, rest
	case delta < 0:
		return delta, circulating - delta
	default:
		return 0, circulating
	}
}

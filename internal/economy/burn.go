package economy

// BurnLedger applies several burn sources against one month's circulating
// supply. Sources are clamped sequentially: each burn can only take what the
// earlier burns of the same month left behind, so application order matters
// near depletion.
type BurnLedger struct {
	available float64
	total     float64
}

// NewBurnLedger starts a ledger over the given circulating supply.
func NewBurnLedger(circulating float64) *BurnLedger {
	return &BurnLedger{available: AtLeast(circulating, 0)}
}

// Burn destroys up to amount tokens and returns the amount actually burned.
func (b *BurnLedger) Burn(amount float64) float64 {
	taken, rest := Draw(b.available, amount)
	b.available = rest
	b.total += taken
	return taken
}

// Total returns everything burned through this ledger.
func (b *BurnLedger) Total() float64 {
	return b.total
}

// Remaining returns the circulating supply left after all burns so far.
func (b *BurnLedger) Remaining() float64 {
	return b.available
}

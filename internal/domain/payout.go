package domain

import "github.com/shopspring/decimal"

// LamportsPerSOL is the number of base units in one SOL.
const LamportsPerSOL = 1_000_000_000

// PayoutKind distinguishes a buyback from a plain transfer.
type PayoutKind string

const (
	PayoutBuyback  PayoutKind = "BUYBACK"
	PayoutTransfer PayoutKind = "TRANSFER"
)

// PayoutInstruction is one payout resolved for the current cycle.
// It is executed at most once and then discarded.
type PayoutInstruction struct {
	Recipient Account         // empty for buybacks
	Label     string          // account string, TeamRecipient, or "BUYBACK"
	Amount    decimal.Decimal // lamports, whole units
	Kind      PayoutKind
}

// Lamports returns the amount as an integer number of base units.
func (p PayoutInstruction) Lamports() uint64 {
	if p.Amount.Sign() <= 0 {
		return 0
	}
	return p.Amount.Floor().BigInt().Uint64()
}

// LamportsToSOL converts base units to SOL for display.
func LamportsToSOL(lamports decimal.Decimal) decimal.Decimal {
	return lamports.Shift(-9)
}

// SOLToLamports converts SOL to whole base units, rounding down.
func SOLToLamports(sol decimal.Decimal) decimal.Decimal {
	return sol.Shift(9).Floor()
}

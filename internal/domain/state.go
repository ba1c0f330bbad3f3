package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PublishedState is the single externally visible snapshot.
// It is replaced as a whole, never mutated after publication.
type PublishedState struct {
	TokenMint         Account
	Market            MarketObservation
	LastCycle         CycleResult
	NextDrawAt        time.Time
	CumulativeBuyback decimal.Decimal // lamports, never decreases
	PoolBalance       decimal.Decimal // lamports at the start of the last tick
	PublishedAt       time.Time
}

// Clone returns a deep copy of s.
func (s PublishedState) Clone() PublishedState {
	out := s
	out.LastCycle = s.LastCycle.Clone()
	return out
}

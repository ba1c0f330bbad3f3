package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketStats is the raw response of the market-data collaborator.
type MarketStats struct {
	Valuation decimal.Decimal // fully diluted valuation in USD
	Symbol    string
}

// MarketObservation is the last known market state of the tracked token.
// A new observation supersedes the previous one as a whole.
type MarketObservation struct {
	Valuation  decimal.Decimal
	Symbol     string
	ObservedAt time.Time
}

// IsZero reports whether no poll has succeeded yet.
func (o MarketObservation) IsZero() bool {
	return o.ObservedAt.IsZero()
}

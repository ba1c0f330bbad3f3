package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

// BuybackExecutor converts native currency into the tracked token.
type BuybackExecutor interface {
	ExecuteBuyback(ctx context.Context, lamports decimal.Decimal) error
}

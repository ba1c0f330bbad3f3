package ports

import (
	"context"

	"github.com/alejandrodnm/holderpot/internal/domain"
)

// MarketDataProvider fetches market statistics for a token.
type MarketDataProvider interface {
	// FetchStats returns the latest valuation and symbol of mint.
	// A throttled request returns an error wrapping domain.ErrRateLimited.
	FetchStats(ctx context.Context, mint domain.Account) (domain.MarketStats, error)
}

package market

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/holderpot/internal/domain"
	"github.com/alejandrodnm/holderpot/internal/ports"
)

// Tracker polls market statistics and caches the last good observation.
// A failed poll never clears the cache.
type Tracker struct {
	provider ports.MarketDataProvider
	mint     domain.Account
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time

	latest atomic.Pointer[domain.MarketObservation]
}

// NewTracker creates a Tracker for mint.
func NewTracker(provider ports.MarketDataProvider, mint domain.Account, timeout time.Duration, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		provider: provider,
		mint:     mint,
		timeout:  timeout,
		logger:   logger,
		now:      time.Now,
	}
}

// Poll fetches fresh statistics. Rate limiting is silent; other errors are
// logged. In both cases the previous observation stays in place.
func (t *Tracker) Poll(ctx context.Context) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	stats, err := t.provider.FetchStats(ctx, t.mint)
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			t.logger.Debug("market poll rate limited")
			return
		}
		t.logger.Warn("market poll failed", "err", err)
		return
	}

	prev := t.Latest()
	obs := domain.MarketObservation{
		Valuation:  stats.Valuation,
		Symbol:     stats.Symbol,
		ObservedAt: t.now(),
	}
	// Missing fields keep their last known value.
	if obs.Valuation.IsZero() {
		obs.Valuation = prev.Valuation
	}
	if obs.Symbol == "" {
		obs.Symbol = prev.Symbol
	}
	t.latest.Store(&obs)

	t.logger.Info("market updated",
		"symbol", obs.Symbol,
		"valuation", obs.Valuation.StringFixed(0),
	)
}

// Latest returns the cached observation without blocking. It is the zero
// value until the first successful poll.
func (t *Tracker) Latest() domain.MarketObservation {
	if p := t.latest.Load(); p != nil {
		return *p
	}
	return domain.MarketObservation{}
}

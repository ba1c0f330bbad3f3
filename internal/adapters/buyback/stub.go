package buyback

import (
	"context"
	"log/slog"

	"github.com/alejandrodnm/holderpot/internal/domain"
	"github.com/shopspring/decimal"
)

// Stub implements ports.BuybackExecutor without moving any funds. It always
// succeeds; the SOL stays in the custodial wallet.
type Stub struct {
	logger *slog.Logger
}

// NewStub creates the simulated buyback executor.
func NewStub(logger *slog.Logger) *Stub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stub{logger: logger}
}

// ExecuteBuyback logs the simulated swap.
func (s *Stub) ExecuteBuyback(_ context.Context, lamports decimal.Decimal) error {
	s.logger.Info("buyback simulated", "sol", domain.LamportsToSOL(lamports).String())
	return nil
}

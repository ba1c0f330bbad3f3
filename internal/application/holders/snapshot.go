package holders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/holderpot/internal/domain"
	"github.com/alejandrodnm/holderpot/internal/ports"
)

// Snapshot builds the eligible-recipient list of a cycle from the ledger.
// Nothing is cached: every call reflects current ownership.
type Snapshot struct {
	ledger   ports.Ledger
	excluded map[domain.Account]struct{}
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a Snapshot. Owners in exclude (typically the custodial and team
// wallets) are never eligible.
func New(ledger ports.Ledger, exclude []domain.Account, timeout time.Duration, logger *slog.Logger) *Snapshot {
	if logger == nil {
		logger = slog.Default()
	}
	excluded := make(map[domain.Account]struct{}, len(exclude))
	for _, acc := range exclude {
		if !acc.IsZero() {
			excluded[acc] = struct{}{}
		}
	}
	return &Snapshot{ledger: ledger, excluded: excluded, timeout: timeout, logger: logger}
}

// Fetch returns the distinct owners holding a nonzero balance of mint, in the
// order the ledger reported them.
func (s *Snapshot) Fetch(ctx context.Context, mint domain.Account) (domain.HolderSet, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	accounts, err := s.ledger.ListTokenAccounts(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("holders.Fetch: %w: %w: %w", domain.ErrSnapshot, domain.ErrCollaborator, err)
	}

	holders := Eligible(accounts, s.excluded)
	s.logger.Debug("holder snapshot",
		"token_accounts", len(accounts),
		"eligible", len(holders),
	)
	return holders, nil
}

// Eligible deduplicates owners and drops zero balances and excluded accounts.
// The first occurrence of an owner keeps its position.
func Eligible(accounts []domain.TokenAccount, excluded map[domain.Account]struct{}) domain.HolderSet {
	seen := make(map[domain.Account]struct{}, len(accounts))
	out := make(domain.HolderSet, 0, len(accounts))
	for _, ta := range accounts {
		if ta.Amount == 0 || ta.Owner.IsZero() {
			continue
		}
		if _, skip := excluded[ta.Owner]; skip {
			continue
		}
		if _, dup := seen[ta.Owner]; dup {
			continue
		}
		seen[ta.Owner] = struct{}{}
		out = append(out, ta.Owner)
	}
	return out
}

package ports

import (
	"context"

	"github.com/alejandrodnm/holderpot/internal/domain"
)

// Ledger is the on-chain collaborator: balances, token holders and transfers.
type Ledger interface {
	// Payer returns the custodial account that funds every transfer.
	Payer() domain.Account

	// GetBalance returns the native balance of account in lamports.
	GetBalance(ctx context.Context, account domain.Account) (uint64, error)

	// ListTokenAccounts returns every token account of the given mint.
	// Owners may repeat and amounts may be zero; callers filter.
	ListTokenAccounts(ctx context.Context, mint domain.Account) ([]domain.TokenAccount, error)

	// Transfer sends lamports from the payer to the recipient and waits for
	// confirmation. It returns the transaction signature.
	Transfer(ctx context.Context, to domain.Account, lamports uint64) (string, error)
}

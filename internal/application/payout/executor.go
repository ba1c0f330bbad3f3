package payout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/holderpot/internal/domain"
	"github.com/alejandrodnm/holderpot/internal/ports"
)

// Outcome is the result of one payout attempt.
type Outcome struct {
	Instruction domain.PayoutInstruction
	Succeeded   bool
	Signature   string // transfers only
	Err         error
}

// Executor performs payout instructions against the ledger and the buyback
// collaborator. Each instruction is attempted exactly once.
type Executor struct {
	ledger  ports.Ledger
	buyback ports.BuybackExecutor
	timeout time.Duration
	logger  *slog.Logger
}

// New creates an Executor. timeout bounds every collaborator call.
func New(ledger ports.Ledger, buyback ports.BuybackExecutor, timeout time.Duration, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{ledger: ledger, buyback: buyback, timeout: timeout, logger: logger}
}

// Execute runs one instruction. Failures, including panics inside a
// collaborator, are logged and reported as Succeeded=false.
func (e *Executor) Execute(ctx context.Context, in domain.PayoutInstruction) (out Outcome) {
	out.Instruction = in
	defer func() {
		if r := recover(); r != nil {
			out.Succeeded = false
			out.Err = fmt.Errorf("payout.Execute: %w: panic: %v", domain.ErrCollaborator, r)
			e.logger.Error("payout panicked", "kind", in.Kind, "recipient", in.Label, "panic", r)
		}
	}()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	switch in.Kind {
	case domain.PayoutBuyback:
		if err := e.buyback.ExecuteBuyback(ctx, in.Amount); err != nil {
			out.Err = fmt.Errorf("payout.Execute: buyback: %w: %w", domain.ErrCollaborator, err)
		}
	case domain.PayoutTransfer:
		sig, err := e.ledger.Transfer(ctx, in.Recipient, in.Lamports())
		if err != nil {
			out.Err = fmt.Errorf("payout.Execute: transfer to %s: %w: %w", in.Label, domain.ErrCollaborator, err)
		}
		out.Signature = sig
	default:
		out.Err = fmt.Errorf("payout.Execute: unknown kind %q", in.Kind)
	}

	if out.Err != nil {
		e.logger.Error("payout failed",
			"kind", in.Kind,
			"recipient", in.Label,
			"lamports", in.Lamports(),
			"err", out.Err,
		)
		return out
	}

	out.Succeeded = true
	e.logger.Info("payout sent",
		"kind", in.Kind,
		"recipient", in.Label,
		"sol", domain.LamportsToSOL(in.Amount).String(),
		"signature", out.Signature,
	)
	return out
}

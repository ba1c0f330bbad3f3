package onchain

// client.go — Solana JSON-RPC ledger for the custodial wallet.
//
// Covers the three calls the cycle needs:
//   - getBalance of the payer
//   - getProgramAccounts of the SPL token program filtered by mint
//   - a single SystemProgram transfer, signed locally and polled to "confirmed"

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/holderpot/internal/domain"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"
)

const (
	defaultRequestsPerSecond = 5
	confirmPollInterval      = time.Second
)

// Client implements ports.Ledger on a Solana RPC endpoint.
type Client struct {
	rpc     *rpc.Client
	limiter *rate.Limiter
	key     solana.PrivateKey
	payer   solana.PublicKey
}

// NewClient creates a ledger client. privateKey is the base-58 secret key of
// the custodial wallet. requestsPerSecond <= 0 uses a conservative default.
func NewClient(rpcURL, privateKey string, requestsPerSecond float64) (*Client, error) {
	key, err := solana.PrivateKeyFromBase58(strings.TrimSpace(privateKey))
	if err != nil {
		return nil, fmt.Errorf("onchain.NewClient: %w: decode private key: %w", domain.ErrConfiguration, err)
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = defaultRequestsPerSecond
	}
	return &Client{
		rpc:     rpc.New(rpcURL),
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		key:     key,
		payer:   key.PublicKey(),
	}, nil
}

// Payer returns the custodial account.
func (c *Client) Payer() domain.Account {
	return domain.Account(c.payer.String())
}

// GetBalance returns the lamport balance of account at "confirmed".
func (c *Client) GetBalance(ctx context.Context, account domain.Account) (uint64, error) {
	pk, err := solana.PublicKeyFromBase58(string(account))
	if err != nil {
		return 0, fmt.Errorf("onchain.GetBalance: parse %q: %w", account, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("onchain.GetBalance: rate limiter: %w", err)
	}
	res, err := c.rpc.GetBalance(ctx, pk, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("onchain.GetBalance: %w", err)
	}
	return res.Value, nil
}

// ListTokenAccounts returns every SPL token account of mint.
func (c *Client) ListTokenAccounts(ctx context.Context, mint domain.Account) ([]domain.TokenAccount, error) {
	mintKey, err := solana.PublicKeyFromBase58(string(mint))
	if err != nil {
		return nil, fmt.Errorf("onchain.ListTokenAccounts: parse mint %q: %w", mint, err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("onchain.ListTokenAccounts: rate limiter: %w", err)
	}

	res, err := c.rpc.GetProgramAccountsWithOpts(ctx, solana.TokenProgramID, &rpc.GetProgramAccountsOpts{
		Commitment: rpc.CommitmentConfirmed,
		Encoding:   solana.EncodingBase64,
		Filters: []rpc.RPCFilter{
			{DataSize: TokenAccountSize},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58(mintKey.Bytes())}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("onchain.ListTokenAccounts: %w", err)
	}

	out := make([]domain.TokenAccount, 0, len(res))
	for _, keyed := range res {
		if keyed == nil || keyed.Account == nil || keyed.Account.Data == nil {
			continue
		}
		ta, ok := DecodeTokenAccount(keyed.Account.Data.GetBinary())
		if !ok {
			continue
		}
		out = append(out, ta)
	}
	return out, nil
}

// Transfer sends lamports from the payer to the recipient in one
// SystemProgram transfer and waits until the signature is confirmed or ctx
// expires. The transaction is sent once; there is no retry.
func (c *Client) Transfer(ctx context.Context, to domain.Account, lamports uint64) (string, error) {
	if lamports == 0 {
		return "", fmt.Errorf("onchain.Transfer: zero amount")
	}
	recipient, err := solana.PublicKeyFromBase58(string(to))
	if err != nil {
		return "", fmt.Errorf("onchain.Transfer: parse recipient %q: %w", to, err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("onchain.Transfer: rate limiter: %w", err)
	}
	recent, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return "", fmt.Errorf("onchain.Transfer: latest blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(lamports, c.payer, recipient).Build(),
		},
		recent.Value.Blockhash,
		solana.TransactionPayer(c.payer),
	)
	if err != nil {
		return "", fmt.Errorf("onchain.Transfer: build tx: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(c.payer) {
			return &c.key
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("onchain.Transfer: sign: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("onchain.Transfer: rate limiter: %w", err)
	}
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return "", fmt.Errorf("onchain.Transfer: send: %w", err)
	}

	if err := c.awaitConfirmation(ctx, sig); err != nil {
		return sig.String(), fmt.Errorf("onchain.Transfer: %s: %w", sig, err)
	}
	return sig.String(), nil
}

// awaitConfirmation polls the signature status until it reaches "confirmed".
func (c *Client) awaitConfirmation(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(confirmPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("confirmation timeout: %w", ctx.Err())
		case <-ticker.C:
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
		res, err := c.rpc.GetSignatureStatuses(ctx, false, sig)
		if err != nil {
			continue
		}
		if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
			continue
		}
		st := res.Value[0]
		if st.Err != nil {
			return fmt.Errorf("transaction failed: %v", st.Err)
		}
		switch st.ConfirmationStatus {
		case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
			return nil
		}
	}
}

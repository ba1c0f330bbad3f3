package dexscreener

import (
	"context"
	"errors"
	"fmt"

	"github.com/alejandrodnm/holderpot/internal/domain"
	"github.com/shopspring/decimal"
)

// tokensResponse is the subset of /latest/dex/tokens/{mint} we read.
type tokensResponse struct {
	Pairs []pair `json:"pairs"`
}

type pair struct {
	ChainID   string          `json:"chainId"`
	DexID     string          `json:"dexId"`
	FDV       decimal.Decimal `json:"fdv"`
	MarketCap decimal.Decimal `json:"marketCap"`
	BaseToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
}

// FetchStats implements ports.MarketDataProvider. The first pair reported for
// the mint wins; its FDV is the valuation.
func (c *Client) FetchStats(ctx context.Context, mint domain.Account) (domain.MarketStats, error) {
	url := fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, mint)

	var resp tokensResponse
	if err := c.get(ctx, url, &resp); err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			return domain.MarketStats{}, fmt.Errorf("dexscreener.FetchStats: %w", err)
		}
		return domain.MarketStats{}, fmt.Errorf("dexscreener.FetchStats: %w: %w", domain.ErrCollaborator, err)
	}
	if len(resp.Pairs) == 0 {
		return domain.MarketStats{}, fmt.Errorf("dexscreener.FetchStats: %w: no pairs for %s", domain.ErrCollaborator, mint)
	}

	p := resp.Pairs[0]
	valuation := p.FDV
	if valuation.IsZero() {
		valuation = p.MarketCap
	}
	return domain.MarketStats{Valuation: valuation, Symbol: p.BaseToken.Symbol}, nil
}

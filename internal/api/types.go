package api

import (
	"time"

	"github.com/alejandrodnm/holderpot/internal/domain"
	"github.com/shopspring/decimal"
)

// lotteryResponse is the payload of GET /api/lottery. Amounts are in SOL.
type lotteryResponse struct {
	TokenSymbol      string           `json:"tokenSymbol"`
	TokenAddress     string           `json:"tokenAddress"`
	MarketCap        float64          `json:"marketCap"`
	MarketObservedAt *time.Time       `json:"marketObservedAt"`
	NextDraw         time.Time        `json:"nextDraw"`
	LastScenario     string           `json:"lastScenario"`
	LastRoll         int              `json:"lastRoll"`
	LastDrawAt       *time.Time       `json:"lastDrawAt"`
	LastWinners      []winnerResponse `json:"lastWinners"`
	BuybackTotal     float64          `json:"buybackTotal"`
	PoolSol          float64          `json:"poolSol"`
}

type winnerResponse struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
	Type    string  `json:"type"`
}

type cycleResponse struct {
	ID                string           `json:"id"`
	Outcome           string           `json:"outcome"`
	SkipReason        string           `json:"skipReason,omitempty"`
	Scenario          string           `json:"scenario,omitempty"`
	Roll              int              `json:"roll,omitempty"`
	PoolSol           float64          `json:"poolSol"`
	DistributableSol  float64          `json:"distributableSol"`
	BuybackSol        float64          `json:"buybackSol"`
	Winners           []winnerResponse `json:"winners"`
	Failed            int              `json:"failed"`
	CumulativeBuyback float64          `json:"cumulativeBuyback"`
	StartedAt         time.Time        `json:"startedAt"`
	FinishedAt        time.Time        `json:"finishedAt"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newLotteryResponse(st domain.PublishedState, market domain.MarketObservation) lotteryResponse {
	return lotteryResponse{
		TokenSymbol:      market.Symbol,
		TokenAddress:     st.TokenMint.String(),
		MarketCap:        market.Valuation.InexactFloat64(),
		MarketObservedAt: timePtr(market.ObservedAt),
		NextDraw:         st.NextDrawAt.UTC(),
		LastScenario:     string(st.LastCycle.Scenario),
		LastRoll:         st.LastCycle.Roll,
		LastDrawAt:       timePtr(st.LastCycle.Timestamp),
		LastWinners:      newWinners(st.LastCycle.Winners),
		BuybackTotal:     toSOL(st.CumulativeBuyback),
		PoolSol:          toSOL(st.PoolBalance),
	}
}

func newCycleResponse(rec domain.CycleRecord) cycleResponse {
	return cycleResponse{
		ID:                rec.ID,
		Outcome:           string(rec.Outcome),
		SkipReason:        string(rec.SkipReason),
		Scenario:          string(rec.Scenario),
		Roll:              rec.Roll,
		PoolSol:           toSOL(rec.PoolAtStart),
		DistributableSol:  toSOL(rec.Distributable),
		BuybackSol:        toSOL(rec.BuybackAmount),
		Winners:           newWinners(rec.Winners),
		Failed:            rec.FailedInstructions,
		CumulativeBuyback: toSOL(rec.CumulativeBuyback),
		StartedAt:         rec.StartedAt.UTC(),
		FinishedAt:        rec.FinishedAt.UTC(),
	}
}

func newWinners(ws []domain.Winner) []winnerResponse {
	out := make([]winnerResponse, 0, len(ws))
	for _, w := range ws {
		out = append(out, winnerResponse{
			Address: w.Recipient,
			Amount:  toSOL(w.Amount),
			Type:    "SOL",
		})
	}
	return out
}

func toSOL(lamports decimal.Decimal) float64 {
	return domain.LamportsToSOL(lamports).InexactFloat64()
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alejandrodnm/holderpot/internal/api"
	"github.com/alejandrodnm/holderpot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedState struct{ st domain.PublishedState }

func (f fixedState) State() domain.PublishedState { return f.st }

type fixedMarket struct{ obs domain.MarketObservation }

func (f fixedMarket) Latest() domain.MarketObservation { return f.obs }

type fakeHistory struct {
	records   []domain.CycleRecord
	err       error
	lastLimit int
}

func (f *fakeHistory) RecentCycles(_ context.Context, limit int) ([]domain.CycleRecord, error) {
	f.lastLimit = limit
	return f.records, f.err
}

var now = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

func publishedState() domain.PublishedState {
	return domain.PublishedState{
		TokenMint: "MintAddress111",
		Market: domain.MarketObservation{
			Valuation:  decimal.NewFromInt(50_000),
			Symbol:     "OLD",
			ObservedAt: now.Add(-time.Minute),
		},
		LastCycle: domain.CycleResult{
			Scenario: domain.ScenarioB,
			Roll:     85,
			Winners: []domain.Winner{
				{Recipient: "Holder111", Amount: decimal.NewFromInt(2_500_000_000)},
			},
			PoolAtStart: decimal.NewFromInt(3_000_000_000),
			Timestamp:   now.Add(-30 * time.Second),
		},
		NextDrawAt:        now.Add(4 * time.Minute),
		CumulativeBuyback: decimal.NewFromInt(1_250_000_000),
		PoolBalance:       decimal.NewFromInt(3_000_000_000),
		PublishedAt:       now,
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Root(t *testing.T) {
	srv := api.New(":0", fixedState{}, nil, nil, nil)

	rec := get(t, srv.Handler(), "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Lottery Bot Online", rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = get(t, srv.Handler(), "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Lottery_UsesFresherTrackerObservation(t *testing.T) {
	market := fixedMarket{obs: domain.MarketObservation{
		Valuation:  decimal.RequireFromString("123456.5"),
		Symbol:     "POT",
		ObservedAt: now,
	}}
	srv := api.New(":0", fixedState{st: publishedState()}, market, nil, nil)

	rec := get(t, srv.Handler(), "/api/lottery")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, "POT", body["tokenSymbol"])
	assert.Equal(t, "MintAddress111", body["tokenAddress"])
	assert.InDelta(t, 123456.5, body["marketCap"], 1e-9)
	assert.Equal(t, "B", body["lastScenario"])
	assert.InDelta(t, 1.25, body["buybackTotal"], 1e-9)
	assert.InDelta(t, 3.0, body["poolSol"], 1e-9)
	assert.Equal(t, now.Add(4*time.Minute).Format(time.RFC3339), body["nextDraw"])

	winners, ok := body["lastWinners"].([]any)
	require.True(t, ok)
	require.Len(t, winners, 1)
	w := winners[0].(map[string]any)
	assert.Equal(t, "Holder111", w["address"])
	assert.InDelta(t, 2.5, w["amount"], 1e-9)
	assert.Equal(t, "SOL", w["type"])
}

func TestServer_Lottery_KeepsPublishedMarketWhenTrackerIsOlder(t *testing.T) {
	market := fixedMarket{obs: domain.MarketObservation{
		Valuation:  decimal.NewFromInt(1),
		Symbol:     "STALE",
		ObservedAt: now.Add(-time.Hour),
	}}
	srv := api.New(":0", fixedState{st: publishedState()}, market, nil, nil)

	var body map[string]any
	require.NoError(t, json.Unmarshal(get(t, srv.Handler(), "/api/lottery").Body.Bytes(), &body))
	assert.Equal(t, "OLD", body["tokenSymbol"])
	assert.InDelta(t, 50_000.0, body["marketCap"], 1e-9)
}

func TestServer_Lottery_BeforeFirstCycle(t *testing.T) {
	st := domain.PublishedState{TokenMint: "MintAddress111", NextDrawAt: now}
	srv := api.New(":0", fixedState{st: st}, fixedMarket{}, nil, nil)

	var body map[string]any
	require.NoError(t, json.Unmarshal(get(t, srv.Handler(), "/api/lottery").Body.Bytes(), &body))
	assert.Equal(t, "", body["lastScenario"])
	assert.Empty(t, body["lastWinners"])
	assert.Nil(t, body["marketObservedAt"])
	assert.InDelta(t, 0.0, body["buybackTotal"], 1e-9)
}

func TestServer_History(t *testing.T) {
	history := &fakeHistory{records: []domain.CycleRecord{{
		ID:          "c1",
		Outcome:     domain.OutcomeSkipped,
		SkipReason:  domain.SkipInsufficientPool,
		PoolAtStart: decimal.NewFromInt(1_000_000),
		StartedAt:   now,
		FinishedAt:  now,
	}}}
	srv := api.New(":0", fixedState{}, nil, history, nil)

	rec := get(t, srv.Handler(), "/api/history")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, history.lastLimit)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "c1", body[0]["id"])
	assert.Equal(t, "insufficient_pool", body[0]["skipReason"])
	assert.InDelta(t, 0.001, body[0]["poolSol"], 1e-12)

	get(t, srv.Handler(), "/api/history?limit=5000")
	assert.Equal(t, 200, history.lastLimit)

	rec = get(t, srv.Handler(), "/api/history?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_History_Errors(t *testing.T) {
	srv := api.New(":0", fixedState{}, nil, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, srv.Handler(), "/api/history").Code)

	srv = api.New(":0", fixedState{}, nil, &fakeHistory{err: errors.New("db closed")}, nil)
	assert.Equal(t, http.StatusInternalServerError, get(t, srv.Handler(), "/api/history").Code)
}

func TestServer_StartAndShutdown(t *testing.T) {
	srv := api.New("127.0.0.1:0", fixedState{}, nil, nil, nil)
	require.NoError(t, srv.Start())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
}

package notify_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/holderpot/internal/adapters/notify"
	"github.com/alejandrodnm/holderpot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sol = 1_000_000_000

func makeRecord() domain.CycleRecord {
	now := time.Now()
	return domain.CycleRecord{
		ID:            "0b7c5a4e-5d1f-4e0a-9c1b-8f9b2d7e6a11",
		Outcome:       domain.OutcomeCompleted,
		Scenario:      domain.ScenarioA,
		Roll:          17,
		PoolAtStart:   decimal.NewFromInt(10 * sol),
		Distributable: decimal.NewFromInt(9 * sol),
		BuybackAmount: decimal.NewFromInt(4_500_000_000),
		Winners: []domain.Winner{
			{Recipient: "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU", Amount: decimal.NewFromInt(1_500_000_000)},
			{Recipient: "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", Amount: decimal.NewFromInt(1_500_000_000)},
		},
		FailedInstructions: 1,
		CumulativeBuyback:  decimal.NewFromInt(4_500_000_000),
		NextDrawAt:         now.Add(5 * time.Minute),
		StartedAt:          now.Add(-2 * time.Second),
		FinishedAt:         now,
	}
}

func TestConsole_NotifyCycle_Compact(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	require.NoError(t, n.NotifyCycle(context.Background(), makeRecord()))

	out := buf.String()
	assert.Contains(t, out, "roll 17 → A")
	assert.Contains(t, out, "pool 10.0000 SOL")
	assert.Contains(t, out, "buyback 4.5000")
	assert.Contains(t, out, "7xKX…gAsU 1.5000")
	assert.Contains(t, out, "failed:1")
}

func TestConsole_NotifyCycle_Skipped(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	rec := domain.CycleRecord{
		Outcome:     domain.OutcomeSkipped,
		SkipReason:  domain.SkipInsufficientPool,
		PoolAtStart: decimal.NewFromInt(5_000_000),
		FinishedAt:  time.Now(),
	}
	require.NoError(t, n.NotifyCycle(context.Background(), rec))

	out := buf.String()
	assert.Contains(t, out, "SKIP insufficient_pool")
	assert.Contains(t, out, "pool 0.0050 SOL")
}

func TestConsole_NotifyCycle_Table(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	require.NoError(t, n.NotifyCycle(context.Background(), makeRecord()))

	out := buf.String()
	assert.Contains(t, out, "0b7c5a4e")
	assert.Contains(t, out, "BUYBACK")
	assert.Contains(t, out, "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	assert.Contains(t, out, "1 payout(s) failed")
}

func TestConsole_PrintHistory(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	skipped := domain.CycleRecord{
		Outcome:    domain.OutcomeSkipped,
		SkipReason: domain.SkipSnapshot,
		StartedAt:  time.Now().Add(-10 * time.Minute),
	}
	n.PrintHistory([]domain.CycleRecord{makeRecord(), skipped})

	out := buf.String()
	assert.Contains(t, out, "SKIP snapshot_failed")
	assert.Contains(t, out, "cycles: 2 (1 completed)")
	assert.Contains(t, out, "paid to winners: 3.0000 SOL")
}

func TestConsole_PrintHistory_Empty(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	n.PrintHistory(nil)
	assert.Contains(t, buf.String(), "No cycles recorded yet")
}

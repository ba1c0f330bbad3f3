package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Scenario is one of the three weighted payout policies.
type Scenario string

const (
	ScenarioA Scenario = "A" // 50% buyback, 50% split between three holders
	ScenarioB Scenario = "B" // jackpot: full pool to one holder
	ScenarioC Scenario = "C" // maintenance: full pool to the team wallet
)

// Winner is a recipient whose payout succeeded.
type Winner struct {
	Recipient string // account string or TeamRecipient
	Amount    decimal.Decimal
}

// CycleResult is the outcome of the last completed cycle.
// It is never modified after construction.
type CycleResult struct {
	Scenario    Scenario
	Roll        int
	Winners     []Winner
	PoolAtStart decimal.Decimal // lamports
	Timestamp   time.Time
}

// Clone returns a copy that shares no slices with r.
func (r CycleResult) Clone() CycleResult {
	out := r
	if r.Winners != nil {
		out.Winners = append([]Winner(nil), r.Winners...)
	}
	return out
}

// TotalPaid sums the winners' amounts.
func (r CycleResult) TotalPaid() decimal.Decimal {
	total := decimal.Zero
	for _, w := range r.Winners {
		total = total.Add(w.Amount)
	}
	return total
}

// CycleOutcome is the terminal status of one tick.
type CycleOutcome string

const (
	OutcomeCompleted CycleOutcome = "COMPLETED"
	OutcomeSkipped   CycleOutcome = "SKIPPED"
	OutcomeBusy      CycleOutcome = "BUSY"
)

// SkipReason explains why a cycle did not pay out.
type SkipReason string

const (
	SkipNone             SkipReason = ""
	SkipInsufficientPool SkipReason = "insufficient_pool"
	SkipBalance          SkipReason = "balance_unavailable"
	SkipSnapshot         SkipReason = "snapshot_failed"
	SkipPanic            SkipReason = "panic"
)

// CycleRecord is the persisted history entry of one tick.
type CycleRecord struct {
	ID                 string
	Outcome            CycleOutcome
	SkipReason         SkipReason
	Scenario           Scenario // empty when skipped
	Roll               int
	PoolAtStart        decimal.Decimal
	Distributable      decimal.Decimal
	BuybackAmount      decimal.Decimal // zero unless a buyback succeeded
	Winners            []Winner
	FailedInstructions int
	CumulativeBuyback  decimal.Decimal
	NextDrawAt         time.Time
	StartedAt          time.Time
	FinishedAt         time.Time
}

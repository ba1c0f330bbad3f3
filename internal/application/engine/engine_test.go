package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/holderpot/internal/application/engine"
	"github.com/alejandrodnm/holderpot/internal/application/payout"
	"github.com/alejandrodnm/holderpot/internal/application/scenario"
	"github.com/alejandrodnm/holderpot/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sol  = domain.LamportsPerSOL
	team = domain.Account("team-wallet")
)

// --- mocks ---

type mockLedger struct {
	mu         sync.Mutex
	balance    uint64
	balanceErr error
	failFor    map[domain.Account]bool
	transfers  []domain.Account
	entered    chan struct{} // closed on the first transfer, if set
	release    chan struct{} // transfers block on it, if set
}

func (m *mockLedger) Payer() domain.Account { return "payer" }

func (m *mockLedger) GetBalance(context.Context, domain.Account) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance, m.balanceErr
}

func (m *mockLedger) ListTokenAccounts(context.Context, domain.Account) ([]domain.TokenAccount, error) {
	return nil, nil
}

func (m *mockLedger) Transfer(_ context.Context, to domain.Account, _ uint64) (string, error) {
	if m.entered != nil {
		m.mu.Lock()
		select {
		case <-m.entered:
		default:
			close(m.entered)
		}
		m.mu.Unlock()
	}
	if m.release != nil {
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers = append(m.transfers, to)
	if m.failFor[to] {
		return "", errors.New("transaction expired")
	}
	return "sig", nil
}

type okBuyback struct{}

func (okBuyback) ExecuteBuyback(context.Context, decimal.Decimal) error { return nil }

type fixedMarket struct{ obs domain.MarketObservation }

func (f fixedMarket) Latest() domain.MarketObservation { return f.obs }

type fixedHolders struct {
	set domain.HolderSet
	err error
}

func (f fixedHolders) Fetch(context.Context, domain.Account) (domain.HolderSet, error) {
	return f.set, f.err
}

// rolls feeds the selector: each cycle consumes the roll and then any picks.
type rolls struct {
	mu   sync.Mutex
	vals []int
}

func (r *rolls) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.vals) == 0 {
		return 0
	}
	v := r.vals[0]
	r.vals = r.vals[1:]
	return v % n
}

type panicSelector struct{}

func (panicSelector) Select(decimal.Decimal, domain.HolderSet) scenario.Selection {
	panic("selector bug")
}

type memStorage struct {
	mu      sync.Mutex
	records []domain.CycleRecord
	states  []domain.PublishedState
	err     error
}

func (m *memStorage) SaveCycle(_ context.Context, rec domain.CycleRecord, st domain.PublishedState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	m.states = append(m.states, st)
	return m.err
}

func (m *memStorage) RecentCycles(context.Context, int) ([]domain.CycleRecord, error) {
	return nil, nil
}

func (m *memStorage) LoadLastState(context.Context) (domain.PublishedState, bool, error) {
	return domain.PublishedState{}, false, nil
}

func (m *memStorage) Close() error { return nil }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- fixture ---

type fixture struct {
	ledger  *mockLedger
	storage *memStorage
	clock   *fakeClock
	rolls   *rolls
	engine  *engine.Engine
}

type option func(*engine.Deps)

func newFixture(t *testing.T, ledger *mockLedger, holders fixedHolders, rollVals []int, opts ...option) *fixture {
	t.Helper()
	f := &fixture{
		ledger:  ledger,
		storage: &memStorage{},
		clock:   &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		rolls:   &rolls{vals: rollVals},
	}
	deps := engine.Deps{
		Ledger: ledger,
		Market: fixedMarket{obs: domain.MarketObservation{
			Valuation:  decimal.NewFromInt(90_000),
			Symbol:     "POT",
			ObservedAt: f.clock.Now(),
		}},
		Holders:  holders,
		Selector: scenario.New(f.rolls, team),
		Payouts:  payout.New(ledger, okBuyback{}, time.Second, nil),
		Storage:  f.storage,
		Clock:    f.clock.Now,
	}
	for _, o := range opts {
		o(&deps)
	}
	f.engine = engine.New(engine.Config{
		Mint:                  "mint",
		Interval:              5 * time.Minute,
		MinBalance:            decimal.NewFromInt(sol / 100),
		DistributableFraction: decimal.RequireFromString("0.9"),
		Timeout:               time.Second,
	}, deps)
	return f
}

// --- tests ---

func TestRunOnce_ScenarioA_PartialFailure(t *testing.T) {
	ledger := &mockLedger{balance: 10 * sol, failFor: map[domain.Account]bool{"h2": true}}
	f := newFixture(t, ledger, fixedHolders{set: domain.HolderSet{"h1", "h2", "h3"}}, []int{41})

	rep := f.engine.RunOnce(context.Background())

	require.Equal(t, domain.OutcomeCompleted, rep.Outcome)
	assert.NoError(t, rep.Err)
	assert.Equal(t, domain.ScenarioA, rep.Selection.Scenario)
	assert.Equal(t, 42, rep.Selection.Roll)
	assert.Len(t, rep.Outcomes, 4)
	assert.Equal(t, []domain.Account{"h1", "h2", "h3"}, ledger.transfers)

	st := f.engine.State()
	assert.Equal(t, domain.ScenarioA, st.LastCycle.Scenario)
	assert.Equal(t, "10000000000", st.LastCycle.PoolAtStart.String())
	require.Len(t, st.LastCycle.Winners, 2)
	assert.Equal(t, "h1", st.LastCycle.Winners[0].Recipient)
	assert.Equal(t, "1500000000", st.LastCycle.Winners[0].Amount.String())
	assert.Equal(t, "h3", st.LastCycle.Winners[1].Recipient)
	assert.Equal(t, "4500000000", st.CumulativeBuyback.String())
	assert.Equal(t, "90000", st.Market.Valuation.String())
	assert.Equal(t, f.clock.Now().Add(5*time.Minute), st.NextDrawAt)
	assert.Equal(t, engine.PhaseIdle, f.engine.Phase())

	require.Len(t, f.storage.records, 1)
	rec := f.storage.records[0]
	assert.Equal(t, rep.ID, rec.ID)
	assert.Equal(t, 1, rec.FailedInstructions)
	assert.Equal(t, "9000000000", rec.Distributable.String())
	assert.Equal(t, "4500000000", rec.BuybackAmount.String())
}

func TestRunOnce_InsufficientPoolIsIdempotentSkip(t *testing.T) {
	ledger := &mockLedger{balance: sol / 200}
	f := newFixture(t, ledger, fixedHolders{set: domain.HolderSet{"h1"}}, nil)

	before := f.engine.State()
	var prevNext time.Time
	for i := 0; i < 3; i++ {
		rep := f.engine.RunOnce(context.Background())
		require.Equal(t, domain.OutcomeSkipped, rep.Outcome)
		assert.Equal(t, domain.SkipInsufficientPool, rep.SkipReason)
		assert.ErrorIs(t, rep.Err, domain.ErrInsufficientPool)

		st := f.engine.State()
		assert.Equal(t, before.LastCycle, st.LastCycle)
		assert.True(t, st.CumulativeBuyback.Equal(before.CumulativeBuyback))
		assert.True(t, st.NextDrawAt.After(prevNext), "next draw must move forward")
		assert.Equal(t, "5000000", st.PoolBalance.String())
		prevNext = st.NextDrawAt
	}
	assert.Empty(t, ledger.transfers)
	require.Len(t, f.storage.records, 3)
	assert.Equal(t, domain.OutcomeSkipped, f.storage.records[0].Outcome)
}

func TestRunOnce_BalanceErrorSkips(t *testing.T) {
	ledger := &mockLedger{balanceErr: errors.New("429 from rpc")}
	f := newFixture(t, ledger, fixedHolders{set: domain.HolderSet{"h1"}}, nil)

	rep := f.engine.RunOnce(context.Background())
	assert.Equal(t, domain.OutcomeSkipped, rep.Outcome)
	assert.Equal(t, domain.SkipBalance, rep.SkipReason)
	assert.ErrorIs(t, rep.Err, domain.ErrCollaborator)
	assert.True(t, f.engine.State().PoolBalance.IsZero())
}

func TestRunOnce_SnapshotErrorSkips(t *testing.T) {
	ledger := &mockLedger{balance: 10 * sol}
	snapErr := errors.Join(domain.ErrSnapshot, errors.New("timeout"))
	f := newFixture(t, ledger, fixedHolders{err: snapErr}, []int{0})

	rep := f.engine.RunOnce(context.Background())
	assert.Equal(t, domain.OutcomeSkipped, rep.Outcome)
	assert.Equal(t, domain.SkipSnapshot, rep.SkipReason)
	assert.ErrorIs(t, rep.Err, domain.ErrSnapshot)
	assert.Empty(t, ledger.transfers)
	assert.Empty(t, f.engine.State().LastCycle.Scenario)
}

func TestRunOnce_ScenarioB_NoHoldersCompletesEmpty(t *testing.T) {
	ledger := &mockLedger{balance: 10 * sol}
	f := newFixture(t, ledger, fixedHolders{set: domain.HolderSet{}}, []int{84})

	rep := f.engine.RunOnce(context.Background())

	require.Equal(t, domain.OutcomeCompleted, rep.Outcome)
	assert.Equal(t, 85, rep.Selection.Roll)
	assert.Empty(t, rep.Outcomes)
	st := f.engine.State()
	assert.Equal(t, domain.ScenarioB, st.LastCycle.Scenario)
	assert.Empty(t, st.LastCycle.Winners)
	assert.True(t, st.CumulativeBuyback.IsZero())
	assert.Empty(t, ledger.transfers)
}

func TestRunOnce_ScenarioC_PaysTeam(t *testing.T) {
	ledger := &mockLedger{balance: 2 * sol}
	f := newFixture(t, ledger, fixedHolders{}, []int{94})

	rep := f.engine.RunOnce(context.Background())

	require.Equal(t, domain.OutcomeCompleted, rep.Outcome)
	assert.Equal(t, []domain.Account{team}, ledger.transfers)
	st := f.engine.State()
	require.Len(t, st.LastCycle.Winners, 1)
	assert.Equal(t, domain.TeamRecipient, st.LastCycle.Winners[0].Recipient)
	assert.Equal(t, "1800000000", st.LastCycle.Winners[0].Amount.String())
}

func TestRunOnce_CumulativeBuybackGrows(t *testing.T) {
	ledger := &mockLedger{balance: 10 * sol}
	f := newFixture(t, ledger, fixedHolders{set: domain.HolderSet{"h1", "h2", "h3"}}, []int{0, 0, 0, 0, 94, 0, 0, 0, 0})

	f.engine.RunOnce(context.Background()) // A
	f.clock.Advance(5 * time.Minute)
	f.engine.RunOnce(context.Background()) // C
	f.clock.Advance(5 * time.Minute)
	f.engine.RunOnce(context.Background()) // A

	assert.Equal(t, "9000000000", f.engine.State().CumulativeBuyback.String())
	require.Len(t, f.storage.records, 3)
	assert.Equal(t, "4500000000", f.storage.records[1].CumulativeBuyback.String())
	assert.Equal(t, domain.ScenarioC, f.storage.records[1].Scenario)
}

func TestRunOnce_ConcurrentTickIsBusy(t *testing.T) {
	ledger := &mockLedger{
		balance: 10 * sol,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	f := newFixture(t, ledger, fixedHolders{set: domain.HolderSet{"h1"}}, []int{84})

	done := make(chan engine.Report, 1)
	go func() { done <- f.engine.RunOnce(context.Background()) }()

	select {
	case <-ledger.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle never reached the transfer")
	}
	assert.Equal(t, engine.PhaseExecuting, f.engine.Phase())

	busy := f.engine.RunOnce(context.Background())
	assert.Equal(t, domain.OutcomeBusy, busy.Outcome)
	assert.Empty(t, busy.ID)

	close(ledger.release)
	first := <-done
	assert.Equal(t, domain.OutcomeCompleted, first.Outcome)
	assert.Equal(t, []domain.Account{"h1"}, ledger.transfers)
	assert.Len(t, f.storage.records, 1, "the busy tick is not recorded")
}

func TestRunOnce_PanicBecomesSkip(t *testing.T) {
	ledger := &mockLedger{balance: 10 * sol}
	f := newFixture(t, ledger, fixedHolders{set: domain.HolderSet{"h1"}}, nil,
		func(d *engine.Deps) { d.Selector = panicSelector{} })

	var rep engine.Report
	require.NotPanics(t, func() { rep = f.engine.RunOnce(context.Background()) })
	assert.Equal(t, domain.OutcomeSkipped, rep.Outcome)
	assert.Equal(t, domain.SkipPanic, rep.SkipReason)
	assert.Error(t, rep.Err)
	assert.Equal(t, engine.PhaseIdle, f.engine.Phase())

	// the guard was released
	rep = f.engine.RunOnce(context.Background())
	assert.NotEqual(t, domain.OutcomeBusy, rep.Outcome)
}

func TestRunOnce_StorageFailureDoesNotFailCycle(t *testing.T) {
	ledger := &mockLedger{balance: 10 * sol}
	f := newFixture(t, ledger, fixedHolders{set: domain.HolderSet{"h1"}}, []int{84})
	f.storage.err = errors.New("disk full")

	rep := f.engine.RunOnce(context.Background())
	assert.Equal(t, domain.OutcomeCompleted, rep.Outcome)
	assert.Equal(t, domain.ScenarioB, f.engine.State().LastCycle.Scenario)
}

func TestRestore_KeepsHistoryAndReschedules(t *testing.T) {
	ledger := &mockLedger{balance: 0}
	f := newFixture(t, ledger, fixedHolders{}, nil)

	prev := domain.PublishedState{
		LastCycle: domain.CycleResult{
			Scenario: domain.ScenarioA,
			Winners:  []domain.Winner{{Recipient: "h9", Amount: decimal.NewFromInt(7)}},
		},
		CumulativeBuyback: decimal.NewFromInt(123),
		NextDrawAt:        time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	next := f.clock.Now().Add(5 * time.Second)
	f.engine.Restore(prev, next)

	st := f.engine.State()
	assert.Equal(t, domain.Account("mint"), st.TokenMint)
	assert.Equal(t, next, st.NextDrawAt)
	assert.Equal(t, "123", st.CumulativeBuyback.String())
	assert.Equal(t, domain.ScenarioA, st.LastCycle.Scenario)

	// a skip keeps the restored cycle visible
	f.engine.RunOnce(context.Background())
	st = f.engine.State()
	assert.Equal(t, domain.ScenarioA, st.LastCycle.Scenario)
	assert.Equal(t, "123", st.CumulativeBuyback.String())
}

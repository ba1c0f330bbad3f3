package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alejandrodnm/holderpot/internal/application/payout"
	"github.com/alejandrodnm/holderpot/internal/application/scenario"
	"github.com/alejandrodnm/holderpot/internal/application/state"
	"github.com/alejandrodnm/holderpot/internal/domain"
	"github.com/alejandrodnm/holderpot/internal/ports"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MarketSource is the minimal view of the market tracker the engine needs.
type MarketSource interface {
	Latest() domain.MarketObservation
}

// HolderSource produces the recipients of a cycle.
type HolderSource interface {
	Fetch(ctx context.Context, mint domain.Account) (domain.HolderSet, error)
}

// ScenarioSelector resolves a pool and a holder set into instructions.
type ScenarioSelector interface {
	Select(pool decimal.Decimal, holders domain.HolderSet) scenario.Selection
}

// PayoutRunner executes one instruction and never fails past its boundary.
type PayoutRunner interface {
	Execute(ctx context.Context, in domain.PayoutInstruction) payout.Outcome
}

// Config holds the cycle parameters. It is immutable after construction.
type Config struct {
	Mint                  domain.Account
	Interval              time.Duration
	MinBalance            decimal.Decimal // lamports
	DistributableFraction decimal.Decimal // share of the balance paid out, (0,1]
	Timeout               time.Duration   // bound for the balance read and bookkeeping
}

// Deps are the collaborators of the engine. Storage and Notifier are optional.
type Deps struct {
	Ledger   ports.Ledger
	Market   MarketSource
	Holders  HolderSource
	Selector ScenarioSelector
	Payouts  PayoutRunner
	Store    *state.Store
	Storage  ports.CycleStorage
	Notifier ports.Notifier
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Report describes what a single tick did.
type Report struct {
	ID         string
	Outcome    domain.CycleOutcome
	SkipReason domain.SkipReason
	Err        error
	Selection  scenario.Selection
	Outcomes   []payout.Outcome
	State      domain.PublishedState
	Duration   time.Duration
}

// Engine runs the decision-and-payout cycle. Only one cycle runs at a time;
// the engine is the only writer of the state store.
type Engine struct {
	cfg      Config
	ledger   ports.Ledger
	market   MarketSource
	holders  HolderSource
	selector ScenarioSelector
	payouts  PayoutRunner
	store    *state.Store
	storage  ports.CycleStorage
	notifier ports.Notifier
	logger   *slog.Logger
	now      func() time.Time

	running sync.Mutex
	phase   atomic.Int32
}

// New creates a cycle engine.
func New(cfg Config, deps Deps) *Engine {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Store == nil {
		deps.Store = state.NewStore(domain.PublishedState{TokenMint: cfg.Mint})
	}
	if cfg.DistributableFraction.IsZero() {
		cfg.DistributableFraction = decimal.NewFromInt(1)
	}
	return &Engine{
		cfg:      cfg,
		ledger:   deps.Ledger,
		market:   deps.Market,
		holders:  deps.Holders,
		selector: deps.Selector,
		payouts:  deps.Payouts,
		store:    deps.Store,
		storage:  deps.Storage,
		notifier: deps.Notifier,
		logger:   deps.Logger,
		now:      deps.Clock,
	}
}

// Phase returns the phase of the cycle in flight, or PhaseIdle.
func (e *Engine) Phase() Phase {
	return Phase(e.phase.Load())
}

// State returns the last published state.
func (e *Engine) State() domain.PublishedState {
	return e.store.Read()
}

// Restore seeds the store with a state persisted by a previous run. The last
// cycle and the cumulative buyback survive; the next draw is rescheduled.
func (e *Engine) Restore(st domain.PublishedState, nextDraw time.Time) {
	e.running.Lock()
	defer e.running.Unlock()

	cur := e.store.Read()
	if st.CumulativeBuyback.LessThan(cur.CumulativeBuyback) {
		st.CumulativeBuyback = cur.CumulativeBuyback
	}
	st.TokenMint = e.cfg.Mint
	st.NextDrawAt = nextDraw
	st.PublishedAt = e.now()
	e.store.Publish(st)
}

// cycle carries the working data of one tick.
type cycle struct {
	id      string
	started time.Time
	prev    domain.PublishedState

	market        domain.MarketObservation
	pool          decimal.Decimal
	poolKnown     bool
	distributable decimal.Decimal
	selection     scenario.Selection
	outcomes      []payout.Outcome
	winners       []domain.Winner
	buyback       decimal.Decimal
	failed        int

	completed  bool
	skipReason domain.SkipReason
	err        error
}

func (c *cycle) skip(reason domain.SkipReason, err error) {
	c.completed = false
	c.skipReason = reason
	c.err = err
}

// RunOnce executes one cycle to completion. A tick that arrives while another
// cycle is running returns immediately with OutcomeBusy. Nothing that fails
// inside the cycle escapes: failures become skips or failed instructions.
func (e *Engine) RunOnce(ctx context.Context) (rep Report) {
	if !e.running.TryLock() {
		e.logger.Warn("cycle already in progress, tick skipped", "phase", e.Phase())
		return Report{Outcome: domain.OutcomeBusy, State: e.store.Read()}
	}
	defer e.running.Unlock()
	defer e.phase.Store(int32(PhaseIdle))

	c := &cycle{
		id:      uuid.New().String(),
		started: e.now(),
		prev:    e.store.Read(),
		buyback: decimal.Zero,
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("cycle aborted", "cycle_id", c.id, "phase", e.Phase(), "panic", r)
			rep = Report{
				ID:         c.id,
				Outcome:    domain.OutcomeSkipped,
				SkipReason: domain.SkipPanic,
				Err:        fmt.Errorf("engine.RunOnce: panic in %s: %v", e.Phase(), r),
				State:      e.store.Read(),
				Duration:   e.now().Sub(c.started),
			}
		}
	}()

	e.logger.Info("cycle starting", "cycle_id", c.id)
	e.run(ctx, c)

	st := e.publish(c)
	rec := e.record(c, st)
	e.persist(ctx, rec, st)

	rep = Report{
		ID:         c.id,
		Outcome:    rec.Outcome,
		SkipReason: c.skipReason,
		Err:        c.err,
		Selection:  c.selection,
		Outcomes:   c.outcomes,
		State:      st,
		Duration:   e.now().Sub(c.started),
	}
	e.logger.Info("cycle finished",
		"cycle_id", c.id,
		"outcome", rep.Outcome,
		"scenario", c.selection.Scenario,
		"winners", len(c.winners),
		"failed", c.failed,
		"next_draw", st.NextDrawAt.Format(time.RFC3339),
		"duration", rep.Duration.Round(time.Millisecond),
	)
	return rep
}

// run walks Fetching → Deciding → Executing. Any early exit or panic leaves
// the cycle marked as skipped.
func (e *Engine) run(ctx context.Context, c *cycle) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("cycle panicked", "cycle_id", c.id, "phase", e.Phase(), "panic", r)
			c.skip(domain.SkipPanic, fmt.Errorf("engine.run: panic in %s: %v", e.Phase(), r))
		}
	}()

	e.setPhase(PhaseFetching)
	c.market = e.market.Latest()

	balance, err := e.balance(ctx)
	if err != nil {
		e.logger.Warn("cycle skipped", "cycle_id", c.id, "reason", domain.SkipBalance, "err", err)
		c.skip(domain.SkipBalance, err)
		return
	}
	c.pool = decimal.NewFromUint64(balance)
	c.poolKnown = true

	if c.pool.LessThan(e.cfg.MinBalance) {
		e.logger.Info("SKIP: pool below minimum",
			"cycle_id", c.id,
			"pool_sol", domain.LamportsToSOL(c.pool).String(),
			"min_sol", domain.LamportsToSOL(e.cfg.MinBalance).String(),
		)
		c.skip(domain.SkipInsufficientPool, fmt.Errorf("engine.run: %w: %s < %s lamports",
			domain.ErrInsufficientPool, c.pool, e.cfg.MinBalance))
		return
	}

	holders, err := e.holders.Fetch(ctx, e.cfg.Mint)
	if err != nil {
		e.logger.Warn("cycle skipped", "cycle_id", c.id, "reason", domain.SkipSnapshot, "err", err)
		c.skip(domain.SkipSnapshot, err)
		return
	}

	e.setPhase(PhaseDeciding)
	c.distributable = c.pool.Mul(e.cfg.DistributableFraction).Floor()
	c.selection = e.selector.Select(c.distributable, holders)
	e.logger.Info("scenario drawn",
		"cycle_id", c.id,
		"roll", c.selection.Roll,
		"scenario", c.selection.Scenario,
		"holders", len(holders),
		"distributable_sol", domain.LamportsToSOL(c.distributable).String(),
		"instructions", len(c.selection.Instructions),
	)
	if len(c.selection.Transfers()) == 0 && c.selection.Scenario != domain.ScenarioC {
		e.logger.Warn("no eligible holders, no transfers this cycle", "cycle_id", c.id)
	}

	e.setPhase(PhaseExecuting)
	for _, in := range c.selection.Instructions {
		out := e.payouts.Execute(ctx, in)
		c.outcomes = append(c.outcomes, out)
		if !out.Succeeded {
			c.failed++
			continue
		}
		switch in.Kind {
		case domain.PayoutBuyback:
			c.buyback = c.buyback.Add(in.Amount)
		case domain.PayoutTransfer:
			c.winners = append(c.winners, domain.Winner{Recipient: in.Label, Amount: in.Amount})
		}
	}
	c.completed = true
}

func (e *Engine) balance(ctx context.Context) (uint64, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	bal, err := e.ledger.GetBalance(ctx, e.ledger.Payer())
	if err != nil {
		return 0, fmt.Errorf("engine.balance: %w: %w", domain.ErrCollaborator, err)
	}
	return bal, nil
}

// publish builds a fresh snapshot from the previous one and swaps it in.
// A skipped cycle only refreshes the market, the pool and the next draw.
func (e *Engine) publish(c *cycle) domain.PublishedState {
	e.setPhase(PhasePublishing)
	now := e.now()

	st := c.prev
	st.TokenMint = e.cfg.Mint
	st.PublishedAt = now
	st.NextDrawAt = now.Add(e.cfg.Interval)
	if !st.NextDrawAt.After(c.prev.NextDrawAt) {
		st.NextDrawAt = c.prev.NextDrawAt.Add(e.cfg.Interval)
	}
	if !c.market.IsZero() {
		st.Market = c.market
	}
	if c.poolKnown {
		st.PoolBalance = c.pool
	}
	if c.completed {
		st.LastCycle = domain.CycleResult{
			Scenario:    c.selection.Scenario,
			Roll:        c.selection.Roll,
			Winners:     c.winners,
			PoolAtStart: c.pool,
			Timestamp:   now,
		}
		st.CumulativeBuyback = st.CumulativeBuyback.Add(c.buyback)
	}

	e.store.Publish(st)
	return st
}

func (e *Engine) record(c *cycle, st domain.PublishedState) domain.CycleRecord {
	rec := domain.CycleRecord{
		ID:                 c.id,
		Outcome:            domain.OutcomeSkipped,
		SkipReason:         c.skipReason,
		PoolAtStart:        c.pool,
		Distributable:      c.distributable,
		BuybackAmount:      c.buyback,
		FailedInstructions: c.failed,
		CumulativeBuyback:  st.CumulativeBuyback,
		NextDrawAt:         st.NextDrawAt,
		StartedAt:          c.started,
		FinishedAt:         st.PublishedAt,
	}
	if c.completed {
		rec.Outcome = domain.OutcomeCompleted
		rec.Scenario = c.selection.Scenario
		rec.Roll = c.selection.Roll
		rec.Winners = append([]domain.Winner(nil), c.winners...)
	}
	return rec
}

// persist stores and announces the record. Both are best effort.
func (e *Engine) persist(ctx context.Context, rec domain.CycleRecord, st domain.PublishedState) {
	ctx = context.WithoutCancel(ctx)
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	if e.storage != nil {
		if err := e.storage.SaveCycle(ctx, rec, st); err != nil {
			e.logger.Warn("storage error", "cycle_id", rec.ID, "err", err)
		}
	}
	if e.notifier != nil {
		if err := e.notifier.NotifyCycle(ctx, rec); err != nil {
			e.logger.Warn("notifier error", "cycle_id", rec.ID, "err", err)
		}
	}
}

func (e *Engine) setPhase(p Phase) {
	prev := Phase(e.phase.Swap(int32(p)))
	e.logger.Debug("cycle phase", "from", prev, "to", p)
}

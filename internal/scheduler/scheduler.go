package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/holderpot/internal/application/engine"
	"github.com/robfig/cron/v3"
)

// CycleRunner runs one decision-and-payout cycle.
type CycleRunner interface {
	RunOnce(ctx context.Context) engine.Report
}

// MarketPoller refreshes the market cache.
type MarketPoller interface {
	Poll(ctx context.Context)
}

// Scheduler drives the market poll and the payout cycle on fixed intervals.
type Scheduler struct {
	cron    *cron.Cron
	cycles  CycleRunner
	market  MarketPoller
	ctx     context.Context
	logger  *slog.Logger
	startup sync.WaitGroup
}

// New creates a Scheduler. ctx is the root context: once it is cancelled no
// new cycle starts, but a cycle already executing payouts runs to the end.
func New(ctx context.Context, cycles CycleRunner, market MarketPoller, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		cycles: cycles,
		market: market,
		ctx:    ctx,
		logger: logger,
	}
}

// Every returns the cron spec for a fixed interval.
func Every(d time.Duration) string {
	return "@every " + d.String()
}

// Register adds the market poll and the cycle jobs.
func (s *Scheduler) Register(marketSpec, cycleSpec string) error {
	if _, err := s.cron.AddFunc(marketSpec, s.pollMarket); err != nil {
		return fmt.Errorf("register market poll %q: %w", marketSpec, err)
	}
	if _, err := s.cron.AddFunc(cycleSpec, s.runCycle); err != nil {
		return fmt.Errorf("register cycle %q: %w", cycleSpec, err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// RunStartup polls the market right away and runs the first cycle after
// delay, without waiting for the first cron tick.
func (s *Scheduler) RunStartup(delay time.Duration) {
	s.startup.Add(1)
	go func() {
		defer s.startup.Done()
		s.pollMarket()

		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-s.ctx.Done():
			return
		case <-timer.C:
		}
		s.runCycle()
	}()
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	<-done.Done()
	s.startup.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) pollMarket() {
	if s.ctx.Err() != nil {
		return
	}
	s.market.Poll(s.ctx)
}

// runCycle detaches the cycle from the root context so that a shutdown
// signal never interrupts a payout halfway.
func (s *Scheduler) runCycle() {
	if s.ctx.Err() != nil {
		s.logger.Debug("shutting down, cycle not started")
		return
	}
	s.cycles.RunOnce(context.WithoutCancel(s.ctx))
}

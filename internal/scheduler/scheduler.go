// Package scheduler runs the Trading Agent on a fixed interval, grounded on
// the teacher's cmd/bot main loop: a ticker-driven select loop with
// signal-handled graceful shutdown, generalized into a reusable type so
// cmd/bot can wire it and --once can bypass it for a single cycle.
package scheduler

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"futures-trading-agent/internal/interfaces"
	"futures-trading-agent/internal/logger"
	"futures-trading-agent/internal/types"
)

// Scheduler runs agent.Run(symbols) once immediately and then on every tick
// of interval, until Stop is called or the process receives SIGINT/SIGTERM.
type Scheduler struct {
	agent    interfaces.Agent
	symbols  []types.Symbol
	interval time.Duration
	runCount atomic.Int64
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds a Scheduler over the given Agent, symbol universe and cycle
// interval.
func New(agent interfaces.Agent, symbols []types.Symbol, interval time.Duration) *Scheduler {
	return &Scheduler{
		agent:    agent,
		symbols:  symbols,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// RunOnce runs exactly one cycle and returns, for the --once CLI path. It
// does not install a signal handler or a ticker.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runCycle(ctx)
}

// Start runs the first cycle immediately, then on every tick of the
// configured interval, until the process receives SIGINT/SIGTERM or the
// parent context is cancelled. It blocks until shutdown completes.
func (s *Scheduler) Start(ctx context.Context) {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Info(ctx, "Scheduler started", "interval", s.interval.String(), "symbols", s.symbols)

	if err := s.runCycle(ctx); err != nil {
		logger.Warn(ctx, "Scheduler: initial cycle failed", "error", err)
	}

	for {
		select {
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				logger.Warn(ctx, "Scheduler: cycle failed", "error", err)
			}
		case <-sigc:
			logger.Info(ctx, "Scheduler: received shutdown signal", "runCount", s.runCount.Load())
			close(s.doneCh)
			return
		case <-s.stopCh:
			logger.Info(ctx, "Scheduler: stopped", "runCount", s.runCount.Load())
			close(s.doneCh)
			return
		case <-ctx.Done():
			logger.Info(ctx, "Scheduler: context cancelled", "runCount", s.runCount.Load())
			close(s.doneCh)
			return
		}
	}
}

// Stop requests a graceful shutdown and blocks until Start has returned.
// A cycle already in flight is never interrupted.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// RunCount reports how many cycles have completed, successfully or not.
// A cycle error never stops the ticker: the scheduler keeps running so a
// transient broker or LLM outage does not require a restart.
func (s *Scheduler) RunCount() int64 {
	return s.runCount.Load()
}

func (s *Scheduler) runCycle(ctx context.Context) error {
	defer s.runCount.Add(1)
	err := s.agent.Run(ctx, s.symbols)
	if err != nil {
		logger.Error(ctx, "Trading cycle error", "error", err)
	}
	return err
}

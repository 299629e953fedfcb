// Package watchdog recovers executions stranded in the running state, for
// example after a crash between ledger record and finalize. It marks them
// failed so the dispatcher's per-rule lock is never wedged by a ghost.
package watchdog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stocksentry/stocksentry/internal/ledger"
	"github.com/stocksentry/stocksentry/internal/metrics"
	"github.com/stocksentry/stocksentry/pkg/types"
)

// Clock abstracts time so sweeps are testable.
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) (<-chan time.Time, func())
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Ticker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Watchdog periodically sweeps the ledger for stuck executions.
type Watchdog struct {
	ledger   ledger.Ledger
	clock    Clock
	logger   *slog.Logger
	interval time.Duration
	stuckFor time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watchdog. Zero config values fall back to a 1 minute sweep
// and a 10 minute stuck threshold.
func New(cfg types.WatchdogConfig, led ledger.Ledger, clock Clock, logger *slog.Logger) *Watchdog {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = realClock{}
	}
	interval := cfg.Interval.Std()
	if interval <= 0 {
		interval = time.Minute
	}
	stuckFor := cfg.StuckFor.Std()
	if stuckFor <= 0 {
		stuckFor = 10 * time.Minute
	}
	return &Watchdog{
		ledger:   led,
		clock:    clock,
		logger:   logger,
		interval: interval,
		stuckFor: stuckFor,
	}
}

// Start launches the sweep loop.
func (w *Watchdog) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticks, stop := w.clock.Ticker(w.interval)
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticks:
				w.Sweep(ctx)
			}
		}
	}()
}

// Stop halts the sweep loop.
func (w *Watchdog) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// Sweep finds executions running past the threshold and fails them. It
// returns how many were recovered.
func (w *Watchdog) Sweep(ctx context.Context) int {
	cutoff := w.clock.Now().Add(-w.stuckFor)
	stuck, err := w.ledger.List(ctx, types.ExecutionFilter{
		Status: types.ExecutionRunning,
		To:     cutoff,
	})
	if err != nil {
		w.logger.Error("listing running executions", "error", err)
		return 0
	}

	recovered := 0
	for _, exec := range stuck {
		end := w.clock.Now()
		exec.Status = types.ExecutionFailed
		exec.EndTime = &end
		exec.Errors = append(exec.Errors, types.ExecutionError{
			Category: types.FailureTimeout,
			Message:  fmt.Sprintf("recovered by watchdog after running since %s", exec.StartTime.Format(time.RFC3339)),
		})
		if err := w.ledger.Finalize(ctx, exec); err != nil {
			// Losing the race to the real finalizer is fine.
			if !errors.Is(err, ledger.ErrAlreadyFinal) {
				w.logger.Error("recovering execution", "execution", exec.ID, "error", err)
			}
			continue
		}
		recovered++
		metrics.ExecutionsRecovered.Add(1)
		w.logger.Warn("recovered stuck execution", "execution", exec.ID, "rule", exec.RuleID)
	}
	return recovered
}

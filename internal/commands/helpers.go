// Package commands implements the CLI subcommands for the stocksentry binary.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stocksentry/stocksentry/internal/action"
	"github.com/stocksentry/stocksentry/internal/dispatcher"
	"github.com/stocksentry/stocksentry/internal/eventbus"
	"github.com/stocksentry/stocksentry/internal/funcregistry"
	"github.com/stocksentry/stocksentry/internal/inventory"
	"github.com/stocksentry/stocksentry/internal/ledger"
	"github.com/stocksentry/stocksentry/internal/notify"
	"github.com/stocksentry/stocksentry/internal/orchestrator"
	"github.com/stocksentry/stocksentry/internal/rulestore"
	"github.com/stocksentry/stocksentry/internal/watchdog"
	"github.com/stocksentry/stocksentry/pkg/types"
)

// engine bundles the assembled runtime components.
type engine struct {
	cfg    *types.ProjectConfig
	store  rulestore.Store
	ledger ledger.Ledger
	inv    *inventory.MemoryClient
	bus    eventbus.Bus
	orch   *orchestrator.Orchestrator
	disp   *dispatcher.Dispatcher
	wdog   *watchdog.Watchdog
	logger *slog.Logger

	closers []func()
}

// buildEngine wires the full component graph from project config.
func buildEngine(ctx context.Context, cfg *types.ProjectConfig) (*engine, error) {
	logger := slog.Default()
	e := &engine{cfg: cfg, logger: logger}

	if cfg.Redis != nil {
		bus := eventbus.NewRedis(cfg.Redis, logger)
		if err := bus.Ping(ctx); err != nil {
			return nil, fmt.Errorf("pinging Redis: %w", err)
		}
		e.bus = bus
	} else {
		e.bus = eventbus.NewMemory(logger)
	}
	e.closers = append(e.closers, func() { _ = e.bus.Close() })

	// The inventory collaborator is in-process; it publishes change events
	// on the same bus the dispatcher listens to.
	e.inv = inventory.NewMemory(e.bus)

	if cfg.Storage == "postgres" {
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("connecting to Postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("pinging Postgres: %w", err)
		}
		e.closers = append(e.closers, pool.Close)

		pgStore := rulestore.NewPostgresFromPool(pool)
		if err := pgStore.Migrate(ctx); err != nil {
			return nil, err
		}
		pgLedger := ledger.NewPostgresFromPool(pool)
		if err := pgLedger.Migrate(ctx); err != nil {
			return nil, err
		}
		e.store = pgStore
		e.ledger = pgLedger
	} else {
		e.store = rulestore.NewMemory()
		e.ledger = ledger.NewMemory()
	}

	sinks, err := notify.NewDispatcher(cfg.Alerts, logger)
	if err != nil {
		return nil, fmt.Errorf("creating alert dispatcher: %w", err)
	}

	registry := funcregistry.NewRegistry()
	registry.LoadEndpoints(cfg.Functions)

	executors := []action.Executor{
		action.NewUpdateExecutor(e.inv),
		action.NewAlertExecutor(sinks),
		action.NewWebhookExecutor(),
		action.NewFunctionExecutor(registry, e.inv),
	}
	if cfg.SMTP != nil {
		executors = append(executors, action.NewEmailExecutor(action.NewSMTPMailer(*cfg.SMTP)))
	}
	runner := action.NewRunner(logger, executors...)

	orchCfg := types.OrchestratorConfig{}
	if cfg.Orchestrator != nil {
		orchCfg = *cfg.Orchestrator
	}
	e.orch = orchestrator.New(orchCfg, runner, e.ledger, e.inv, logger)

	schedCfg := types.SchedulerConfig{}
	if cfg.Scheduler != nil {
		schedCfg = *cfg.Scheduler
	}
	e.disp = dispatcher.New(schedCfg, e.store, e.orch, e.bus, dispatcher.RealClock(), logger)

	if cfg.Watchdog != nil && cfg.Watchdog.Enabled {
		e.wdog = watchdog.New(*cfg.Watchdog, e.ledger, nil, logger)
	}

	return e, nil
}

// loadRules imports rule fixtures from the configured directories.
func (e *engine) loadRules(ctx context.Context) error {
	for _, dir := range e.cfg.RuleDirs {
		n, err := rulestore.LoadDir(ctx, e.store, dir)
		if err != nil {
			return fmt.Errorf("loading rules from %s: %w", dir, err)
		}
		e.logger.Info("loaded rules", "dir", dir, "count", n)
	}
	return nil
}

// close releases engine resources in reverse acquisition order.
func (e *engine) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func statusColor(status types.RuleStatus) string {
	switch status {
	case types.RuleActive:
		return color.GreenString(string(status))
	case types.RuleError:
		return color.RedString(string(status))
	case types.RuleInactive:
		return color.YellowString(string(status))
	default:
		return string(status)
	}
}

func executionColor(status types.ExecutionStatus) string {
	switch status {
	case types.ExecutionSuccess:
		return color.GreenString(string(status))
	case types.ExecutionFailed:
		return color.RedString(string(status))
	default:
		return color.CyanString(string(status))
	}
}

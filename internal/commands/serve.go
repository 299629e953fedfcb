package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stocksentry/stocksentry/internal/config"
	"github.com/stocksentry/stocksentry/internal/rulestore"
	"github.com/stocksentry/stocksentry/internal/server"
	"github.com/stocksentry/stocksentry/pkg/types"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the StockSentry HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(seed)
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "install the built-in rule library on startup")
	return cmd
}

func runServe(seed bool) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx := context.Background()
	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.close()

	if seed {
		n, err := rulestore.Seed(ctx, eng.store)
		if err != nil {
			return fmt.Errorf("seeding built-in rules: %w", err)
		}
		eng.logger.Info("seeded built-in rules", "count", n)
	}
	if err := eng.loadRules(ctx); err != nil {
		return err
	}

	srvCfg := types.ServerConfig{Addr: ":8080"}
	if cfg.Server != nil {
		srvCfg = *cfg.Server
	}
	srv := server.New(srvCfg, server.Deps{
		Store:      eng.store,
		Ledger:     eng.ledger,
		Dispatcher: eng.disp,
		Orch:       eng.orch,
		Logger:     eng.logger,
	})

	eng.disp.Start(ctx)
	if eng.wdog != nil {
		eng.wdog.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		color.Yellow("\nReceived %s, shutting down...", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if eng.wdog != nil {
			eng.wdog.Stop()
		}
		eng.disp.Stop()
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		color.Green("Server stopped gracefully")
		return nil
	}
}

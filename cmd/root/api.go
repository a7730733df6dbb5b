package root

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cudemo/agentd/pkg/broker"
	"github.com/cudemo/agentd/pkg/config"
	"github.com/cudemo/agentd/pkg/loop/anthropic"
	"github.com/cudemo/agentd/pkg/runner"
	"github.com/cudemo/agentd/pkg/server"
	"github.com/cudemo/agentd/pkg/session"
)

// NewAPICmd creates the command that runs the HTTP API.
func NewAPICmd() *cobra.Command {
	var (
		configPath string
		listenAddr string
		dbPath     string
		inMemory   bool
	)

	cmd := &cobra.Command{
		Use:   "api",
		Short: "Run the agentd HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.Listen = listenAddr
			}
			if dbPath != "" {
				cfg.Database.Path = dbPath
			}
			if inMemory {
				cfg.Database.InMemory = true
			}

			return runAPI(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "agentd.yaml", "Path to the config file")
	cmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Address to listen on (overrides config)")
	cmd.Flags().StringVar(&dbPath, "db", "", "Path to the SQLite database (overrides config)")
	cmd.Flags().BoolVar(&inMemory, "in-memory", false, "Keep sessions in memory instead of SQLite")

	return cmd
}

func runAPI(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var loopOpts []anthropic.Option
	if cfg.AnthropicAPIKeyEnv != "" {
		loopOpts = append(loopOpts, anthropic.WithAPIKeyEnv(cfg.AnthropicAPIKeyEnv))
	}

	b := broker.New()
	r := runner.New(store, b, anthropic.New(loopOpts...))
	srv := server.New(store, b, r, cfg.Run)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return srv.Start(cfg.Listen)
	})
	eg.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func openStore(cfg *config.Config) (session.Store, error) {
	if cfg.Database.InMemory {
		slog.Info("using in-memory session store")
		return session.NewInMemoryStore(), nil
	}

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	slog.Info("using sqlite session store", "path", cfg.Database.Path)
	return session.NewSQLiteStore(cfg.Database.Path)
}

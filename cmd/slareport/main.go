package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"slareport/internal/config"
	"slareport/internal/history"
	"slareport/internal/report"
	"slareport/internal/server"
	"slareport/internal/signals"
)

const version = "0.1.0"

func main() {
	var (
		configPath   = flag.String("config", os.Getenv("SLAREPORT_CONFIG"), "path to server configuration YAML")
		printVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *printVersion {
		fmt.Println(version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, cleanup, err := buildRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var store history.Store
	if cfg.HistoryPath != "" {
		sqlite, err := history.NewSQLiteStore(cfg.HistoryPath)
		if err != nil {
			return err
		}
		defer sqlite.Close()
		store = sqlite
		log.Info("report history enabled", zap.String("path", cfg.HistoryPath))
	}

	srv := server.New(cfg, registry, report.NewBuilder(), store, log)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout.Std())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func buildRegistry(ctx context.Context, cfg config.Config) (*signals.Registry, func(), error) {
	switch cfg.AdapterMode {
	case config.AdapterStatic:
		return signals.NewStaticRegistry(10000, 0), func() {}, nil
	case config.AdapterGCP:
		querier, err := signals.NewGCPQuerier(ctx, cfg.MaxConcurrentFetches)
		if err != nil {
			return nil, nil, err
		}
		return signals.NewGCPRegistry(querier), func() { querier.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown adapter mode %q", cfg.AdapterMode)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	parsed, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logCfg := zap.NewProductionConfig()
	logCfg.Level = zap.NewAtomicLevelAt(parsed)
	return logCfg.Build()
}

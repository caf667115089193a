// Package main implements the entry point for the proverd server, which
// queues proof-generation tasks and runs them with external prover binaries.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/proverd/internal/config"
	"github.com/phrazzld/proverd/internal/platform/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "proverd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, log, err := initializeApp()
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	app, err := newApplication(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx)
}

// initializeApp loads configuration and sets up structured logging.
func initializeApp() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"data_dir", cfg.Storage.DataDir,
		"max_concurrency", cfg.Runner.MaxConcurrency,
		"max_queue_size", cfg.Runner.MaxQueueSize)
	for kind := range cfg.Provers {
		log.Debug("prover configured", "prover", kind)
	}

	return cfg, log, nil
}

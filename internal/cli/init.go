// Package cli provides common initialization for the finscope commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finscope/internal/backend"
	"finscope/internal/config"
	"finscope/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.New(log.DefaultConfig()).Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// SetupLogger builds the process logger from the configured level and
// format and installs it as the slog default.
func SetupLogger(cfg *config.Config) *log.Logger {
	lc := log.DefaultConfig()
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		lc.Level = level
	}
	lc.Format = cfg.LogFormat
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// OpenBackend creates the configured transaction source.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *log.Logger) (*backend.BackendResult, error) {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("backend config: %w", err)
	}
	return backend.NewFactory(logger).CreateBackend(ctx, bc)
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that is closed once cleanup has finished.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached", log.FieldOperation, log.OpShutdown)
		}
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}

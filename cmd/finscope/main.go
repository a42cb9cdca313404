package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"finscope/internal/amqp"
	"finscope/internal/cli"
	"finscope/internal/dataset"
	apphttp "finscope/internal/http"
	"finscope/internal/log"
	"finscope/internal/worker"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg)
	loc, _ := cfg.Location()

	logger.Info("Starting finscope server",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"timezone", loc.String())

	res, err := cli.OpenBackend(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	store := dataset.NewStore(res.Source, cfg.DataBackend, logger)
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := store.Reload(loadCtx); err != nil {
		// Keep serving: /readyz reports not ready until a reload succeeds.
		logger.Error("Initial dataset load failed", log.FieldError, err)
	}
	cancelLoad()

	var checks []apphttp.Check
	if p, ok := res.Source.(pinger); ok {
		checks = append(checks, apphttp.Check{Name: cfg.DataBackend, Fn: p.Ping})
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, store, logger, apphttp.Options{
		SessionTTL:     cfg.SessionTTL,
		MaxSessions:    cfg.MaxSessions,
		RateLimit:      cfg.RateLimit,
		TrustedProxies: cfg.TrustedProxies,
		Location:       loc,
		Checks:         checks,
	})
	if err != nil {
		logger.Error("Failed to create server", log.FieldError, err)
		os.Exit(1)
	}

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
	} else {
		logger.Info("AMQP disabled - dataset reloads only via POST /api/reload")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		if amqpClient != nil {
			amqpClient.Close()
		}
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", log.FieldError, err)
			}
		}
	})

	if amqpClient != nil {
		reloader := worker.NewReloadWorker(store, cfg.ReloadDebounce, logger)
		go func() {
			if err := reloader.Run(ctx, amqpClient); err != nil {
				logger.Error("Dataset notification consumer stopped", log.FieldError, err)
			}
		}()
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

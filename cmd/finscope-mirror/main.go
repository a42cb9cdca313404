package main

import (
	"context"
	"flag"
	"os"
	"time"

	"finscope/internal/amqp"
	"finscope/internal/backend"
	"finscope/internal/cli"
	"finscope/internal/log"
	"finscope/internal/services"
	"finscope/internal/storage"
)

func main() {
	once := flag.Bool("once", false, "run a single mirror pass and exit")
	flag.Parse()

	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg)
	loc, _ := cfg.Location()

	logger.Info("Starting finscope-mirror",
		log.FieldOperation, log.OpStartup,
		"upstream", cfg.MirrorSource,
		"replica", cfg.SQLiteDBPath,
		"interval", cfg.MirrorInterval)

	upstreamConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	upstreamConfig.Type = backend.BackendType(cfg.MirrorSource)
	upstream, err := backend.NewFactory(logger).CreateBackend(context.Background(), upstreamConfig)
	if err != nil {
		logger.Error("Failed to initialize upstream", log.FieldError, err, "upstream", cfg.MirrorSource)
		os.Exit(1)
	}
	if upstream.Cleanup != nil {
		defer upstream.Cleanup()
	}

	replica, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, loc, logger)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer replica.Close()

	var notifier services.Notifier
	if cfg.AMQPURL != "" {
		// Publisher only; servers own the consumer queues.
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, "", logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()
		notifier = client
	} else {
		logger.Info("AMQP disabled - servers will not be notified of changes")
	}

	mirror := services.NewMirror(upstream.Source, replica, notifier, services.MirrorConfig{
		PollInterval: cfg.MirrorInterval,
		Name:         string(backend.SQLiteBackend),
	}, logger)

	if *once {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		res, err := mirror.SyncOnce(ctx)
		if err != nil {
			logger.Error("Mirror pass failed", log.FieldError, err)
			os.Exit(1)
		}
		logger.Info("Mirror pass complete", "result", res.String())
		return
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := mirror.Stop(ctx); err != nil {
			logger.Error("Mirror stop error", log.FieldError, err)
		}
	})
	if err := mirror.Start(ctx); err != nil {
		logger.Error("Failed to start mirror", log.FieldError, err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
}

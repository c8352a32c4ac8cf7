package main

import (
	"context"
	"errors"
	"os"
	"time"

	"findash/internal/amqp"
	"findash/internal/cli"
	"findash/internal/log"
	"findash/internal/sources/csvdir"
	"findash/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	logger.Info("Starting findash-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the import worker")
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	source := csvdir.New(cfg.DataDir, logger)
	importWorker := worker.NewImportWorker(source, repo, repo, logger)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	if cfg.ImportOnStartup {
		logger.Info("Performing startup import", log.FieldOperation, log.OpStartup)
		if err := importWorker.StartupImport(ctx); err != nil {
			// Not fatal: queued imports still work.
			logger.Error("Startup import failed", log.FieldError, err.Error())
		}
	}

	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- amqpClient.ConsumeImports(ctx, importWorker.HandleImportMessage)
	}()

	select {
	case err := <-consumeErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err.Error())
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"findash/internal/amqp"
	"findash/internal/backend"
	"findash/internal/cli"
	"findash/internal/currency"
	"findash/internal/dashboard"
	apphttp "findash/internal/http"
	"findash/internal/log"
	"findash/internal/middleware/ratelimit"
	"findash/internal/selection"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	result, err := backend.NewFactory(logger).CreateBackend(initCtx, backendCfg)
	cancelInit()
	if err != nil {
		logger.Error("Failed to initialize data backend", log.FieldError, err.Error(), log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}

	rates := currency.NewRatesClient(currency.Config{
		BaseURL:           cfg.RatesAPIURL,
		CacheTTL:          cfg.RatesCacheTTL,
		RequestsPerSecond: cfg.RatesPerSecond,
		Timeout:           cfg.FetchTimeout,
	}, logger)

	monitor := dashboard.NewMonitor(result.Backend, rates, logger,
		dashboard.WithFetchTimeout(cfg.FetchTimeout),
		dashboard.WithDefaultCurrency(cfg.DefaultCurrency),
		dashboard.WithSelectionOptions(selection.WithDebounce(cfg.SelectionDebounce)),
	)

	// Imports are optional: without a broker the endpoint answers 503.
	var publisher apphttp.ImportPublisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("AMQP unavailable, imports disabled", log.FieldError, err.Error())
			amqpClient = nil
		} else {
			publisher = amqpClient
		}
	}

	var ready func(context.Context) error
	if p, ok := result.Backend.(pinger); ok {
		ready = p.Ping
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		Source:    result.Backend,
		Monitor:   monitor,
		Publisher: publisher,
		Logger:    logger,
		RateLimit: ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitPerSecond,
			Burst:             cfg.RateLimitBurst,
		},
		TransactionsCacheTTL: cfg.TransactionsCacheTTL,
		FetchTimeout:         cfg.FetchTimeout,
		Ready:                ready,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", log.FieldError, err.Error())
			}
		}
		if result.Cleanup != nil {
			if err := result.Cleanup(ctx); err != nil {
				logger.Warn("Backend cleanup error", log.FieldError, err.Error())
			}
		}
	})

	logger.Info("Starting findash server", "port", cfg.Port, log.FieldBackend, cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

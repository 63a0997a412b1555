package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/cli"
	apphttp "ledger/internal/http"
	"ledger/internal/kv"
	applog "ledger/internal/log"
	"ledger/internal/summary"
	"ledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting ledger-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Worker configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	// The worker only reads the ledger, so its backend carries no notifier.
	storeCfg := *cfg
	storeCfg.AMQPURL = ""
	res := cli.InitBackend(context.Background(), logger, &storeCfg)
	repo := res.Repository(cfg.LedgerKey, logger)

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}

	var opts []worker.Option
	if inv, ok := res.Store.(kv.Invalidator); ok {
		opts = append(opts, worker.WithInvalidator(inv, repo.Key()))
	}
	dashboard := worker.NewDashboardWorker(repo, logger, opts...)
	status := apphttp.NewStatusServer(":"+cfg.WorkerPort, dashboard, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := status.Shutdown(shutdownCtx); err != nil {
			logger.Error("Status server shutdown error", applog.FieldError, err)
		}
		if err := consumer.Close(); err != nil {
			logger.Error("AMQP close error", applog.FieldError, err)
		}
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", applog.FieldError, err)
			}
		}
	})

	d := dashboard.Refresh(ctx)
	logger.Info("Initial dashboard computed",
		applog.FieldCount, d.Count,
		"today", summary.FormatCurrency(d.Today),
		"month", summary.FormatCurrency(d.Month))

	go func() {
		logger.Info("Status server listening", "addr", status.Addr)
		if err := status.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Status server error", applog.FieldError, err)
		}
	}()
	go dashboard.RefreshEvery(ctx, cfg.DashboardRefreshInterval)
	go func() {
		if err := consumer.Consume(ctx, dashboard.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", applog.FieldError, err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped", "events_processed", dashboard.Processed())
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"ledger/internal/cli"
	apphttp "ledger/internal/http"
	applog "ledger/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	res := cli.InitBackend(context.Background(), logger, cfg)
	repo := res.Repository(cfg.LedgerKey, logger)

	srv := apphttp.NewServer(":"+cfg.Port, repo,
		apphttp.WithLogger(logger),
		apphttp.WithReadinessCheck(func(ctx context.Context) error {
			_, _, err := res.Store.Get(ctx, repo.Key())
			return err
		}),
	)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", applog.FieldError, err)
			}
		}
	})

	logger.Info("Starting ledger server",
		"port", cfg.Port,
		"backend", cfg.StoreBackend,
		applog.FieldKey, repo.Key(),
		"events", res.Notifier != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

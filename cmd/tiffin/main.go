package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"tiffin/internal/cli"
	apphttp "tiffin/internal/http"
	applog "tiffin/internal/log"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	store := cli.InitBackend(context.Background(), logger, cfg)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Store:  store.Store,
		Events: store.Publisher,
		Ready:  store.Ping,
	}, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		PricingCacheTTL:    cfg.PricingCacheTTL,
		SessionCacheTTL:    cfg.SessionCacheTTL,
		SessionCacheSize:   cfg.SessionCacheSize,
		TrustedProxies:     cfg.TrustedProxies,
		Logger:             logger,
	})
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.ErrorContext(ctx, "Server shutdown error", applog.FieldError, err)
		}
		if err := store.Cleanup(); err != nil {
			logger.ErrorContext(ctx, "Backend cleanup error", applog.FieldError, err)
		}
	})

	logger.InfoContext(ctx, "Starting tiffin server",
		applog.FieldOperation, applog.OpStartup,
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events", store.Publisher != nil)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.ErrorContext(ctx, "Server error", applog.FieldError, err, "port", cfg.Port)
		_ = store.Cleanup()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.InfoContext(context.Background(), "Server stopped gracefully")
}

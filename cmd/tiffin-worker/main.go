package main

import (
	"context"
	"os"
	"time"

	"tiffin/internal/amqp"
	"tiffin/internal/cli"
	"tiffin/internal/config"
	applog "tiffin/internal/log"
	gsheet "tiffin/internal/sheets/google"
	"tiffin/internal/storage"
	"tiffin/internal/worker"
)

// syncConcurrency bounds the months exported in parallel during a resync.
const syncConcurrency = 4

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), applog.ComponentWorker)
	logger.InfoContext(context.Background(), "Starting tiffin-worker")

	cfg := config.Load()
	if err := cfg.ValidateWorker(); err != nil {
		logger.ErrorContext(context.Background(), "Configuration validation failed",
			applog.FieldErrorType, applog.ErrorTypeConfiguration,
			applog.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.ErrorContext(context.Background(), "Failed to initialize SQLite repository",
			applog.FieldError, err,
			"path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	creds, err := gsheet.LoadCredentials(cfg.GoogleServiceAccountJSON, cfg.GoogleServiceAccountFile)
	if err != nil {
		logger.ErrorContext(context.Background(), "Failed to load Google credentials",
			applog.FieldErrorType, applog.ErrorTypeConfiguration,
			applog.FieldError, err)
		os.Exit(1)
	}
	sheetsClient, err := gsheet.NewClient(context.Background(), cfg.GoogleSpreadsheetID, creds)
	if err != nil {
		logger.ErrorContext(context.Background(), "Failed to initialize Google Sheets client", applog.FieldError, err)
		os.Exit(1)
	}
	logger.InfoContext(context.Background(), "Google Sheets client initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.ErrorContext(context.Background(), "Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	syncWorker := worker.NewSyncWorker(repo, sheetsClient, syncConcurrency)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.InfoContext(ctx, "Worker running",
		"queue", cfg.AMQPQueue,
		"sync_interval", cfg.SyncInterval.String())
	if err := syncWorker.Run(ctx, amqpClient, cfg.SyncInterval); err != nil {
		logger.ErrorContext(ctx, "Worker stopped with error", applog.FieldError, err)
	}

	if ctx.Err() != nil {
		<-done
	}
	synced, failed := syncWorker.Stats()
	logger.InfoContext(context.Background(), "Worker stopped gracefully",
		"months_synced", synced,
		"months_failed", failed)
}

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"tienda/internal/amqp"
	"tienda/internal/config"
	"tienda/internal/ledger"
	applog "tienda/internal/log"
	"tienda/internal/storage"
	"tienda/internal/worker"
)

func main() {
	// Load .env for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{Component: "tienda-worker"})
	applog.SetDefault(logger)

	logger.Info("Starting tienda-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	if cfg.GoogleSpreadsheetID == "" {
		logger.Error("GOOGLE_SPREADSHEET_ID is required for the ledger worker")
		os.Exit(1)
	}

	sheetsClient, err := ledger.NewFromEnv(context.Background())
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	ledgerWorker := worker.NewLedgerWorker(repo, sheetsClient, cfg.SyncBatchSize)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Drain anything that accumulated while the worker was down.
	if err := ledgerWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Startup sync check failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		g.Go(func() error {
			return amqpClient.ConsumeSaleRecorded(gctx, func(msg *amqp.SaleRecordedMessage) error {
				return ledgerWorker.HandleSaleMessage(gctx, msg)
			})
		})
	} else {
		logger.Info("AMQP disabled, relying on the periodic sync pass only")
	}

	g.Go(func() error {
		return ledgerWorker.RunPeriodic(gctx, cfg.SyncInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}

	logger.Info("Worker shutdown complete")
}

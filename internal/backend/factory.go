// Package backend assembles the record store and broker client from config.
package backend

import (
	"fmt"
	"log/slog"

	"tienda/internal/amqp"
	"tienda/internal/config"
	"tienda/internal/memory"
	"tienda/internal/storage"
	"tienda/internal/store"
)

// Result is a wired backend: the store, the optional AMQP client, and a
// cleanup for whatever was opened.
type Result struct {
	Store      store.Store
	AMQPClient *amqp.Client
	Cleanup    func() error
}

type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

func (f *Factory) CreateBackend(cfg *config.Config) (*Result, error) {
	switch cfg.DataBackend {
	case "sqlite":
		return f.createSQLiteBackend(cfg)
	case "memory":
		return f.createMemoryBackend(cfg)
	default:
		return nil, fmt.Errorf("unsupported data backend: %s", cfg.DataBackend)
	}
}

func (f *Factory) createSQLiteBackend(cfg *config.Config) (*Result, error) {
	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize SQLite repository: %w", err)
	}

	amqpClient := f.connectAMQP(cfg)

	f.logger.Info("Initialized SQLite backend",
		"db_path", cfg.SQLiteDBPath,
		"amqp_enabled", amqpClient != nil)

	return &Result{
		Store:      repo,
		AMQPClient: amqpClient,
		Cleanup: func() error {
			if amqpClient != nil {
				if err := amqpClient.Close(); err != nil {
					f.logger.Error("Failed to close AMQP client", "error", err)
				}
			}
			return repo.Close()
		},
	}, nil
}

func (f *Factory) createMemoryBackend(cfg *config.Config) (*Result, error) {
	st := memory.NewFromFiles("data")
	amqpClient := f.connectAMQP(cfg)

	f.logger.Info("Initialized memory backend", "amqp_enabled", amqpClient != nil)

	return &Result{
		Store:      st,
		AMQPClient: amqpClient,
		Cleanup: func() error {
			if amqpClient != nil {
				return amqpClient.Close()
			}
			return nil
		},
	}, nil
}

// connectAMQP is best-effort: the API keeps running without a broker, only
// the ledger mirror falls back to the worker's periodic pass.
func (f *Factory) connectAMQP(cfg *config.Config) *amqp.Client {
	if cfg.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without sync", "error", err)
		return nil
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)
	return client
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tienda/internal/backend"
	"tienda/internal/config"
	apphttp "tienda/internal/http"
	applog "tienda/internal/log"
	"tienda/internal/services"
)

func main() {
	// Load .env for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	result, err := backend.NewFactory(logger.Logger).CreateBackend(cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup failed", "error", err)
			}
		}
	}()

	var publisher services.SalePublisher
	if result.AMQPClient != nil {
		publisher = result.AMQPClient
	}

	saleService := services.NewSaleService(result.Store, result.Store, publisher)
	lowStock := services.NewLowStockMonitor(result.Store, cfg.LowStockThreshold)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:         ":" + cfg.Port,
		WindowMonths: cfg.SalesWindowMonths,
		LatestLimit:  cfg.LatestSalesLimit,
	}, result.Store, saleService, lowStock)

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting tienda server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}

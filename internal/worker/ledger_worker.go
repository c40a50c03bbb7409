// Package worker moves locally recorded sales into the off-site ledger. It
// reacts to AMQP notifications and runs a periodic pass over pending sales as
// a backup in case messages are lost.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tienda/internal/amqp"
	"tienda/internal/core"
	"tienda/internal/ledger"
	"tienda/internal/store"
)

type LedgerWorker struct {
	sales     store.SaleStore
	ledger    ledger.Writer
	batchSize int
}

func NewLedgerWorker(sales store.SaleStore, writer ledger.Writer, batchSize int) *LedgerWorker {
	return &LedgerWorker{
		sales:     sales,
		ledger:    writer,
		batchSize: batchSize,
	}
}

// HandleSaleMessage processes one AMQP notification. The message carries only
// the sale ID; the full record comes from storage.
func (w *LedgerWorker) HandleSaleMessage(ctx context.Context, msg *amqp.SaleRecordedMessage) error {
	slog.InfoContext(ctx, "Processing sale message", "sale_id", msg.SaleID)

	// No batch cap here: the sale named by the message must be found even
	// when the backlog is deep, or a fresh notification would sit waiting for
	// the periodic pass.
	pending, err := w.sales.PendingLedgerSales(ctx, 0)
	if err != nil {
		return fmt.Errorf("load pending sales: %w", err)
	}

	for _, rec := range pending {
		if rec.ID != msg.SaleID {
			continue
		}
		return w.syncSale(ctx, rec)
	}

	// Already synced, likely by the periodic pass racing the message.
	slog.InfoContext(ctx, "Sale not pending, nothing to do", "sale_id", msg.SaleID)
	return nil
}

// ProcessPendingSales pushes any sales the broker missed. Individual failures
// are logged and skipped so one bad record does not block the batch.
func (w *LedgerWorker) ProcessPendingSales(ctx context.Context) error {
	pending, err := w.sales.PendingLedgerSales(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("load pending sales: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending sales", "count", len(pending))

	for _, rec := range pending {
		if err := w.syncSale(ctx, rec); err != nil {
			slog.ErrorContext(ctx, "Failed to sync sale", "sale_id", rec.ID, "error", err)
		}
	}

	return nil
}

// StartupSyncCheck drains the pending backlog once at worker startup so a
// restart recovers anything accumulated while the worker was down.
func (w *LedgerWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.sales.PendingLedgerSales(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("load pending sales for startup check: %w", err)
	}

	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending sales found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending sales on startup, processing...",
		"count", len(pending))

	synced := 0
	failed := 0
	for _, rec := range pending {
		if err := w.syncSale(ctx, rec); err != nil {
			slog.ErrorContext(ctx, "Failed to sync sale during startup",
				"sale_id", rec.ID, "error", err)
			failed++
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(pending),
		"synced", synced,
		"errors", failed)

	return nil
}

// RunPeriodic processes pending sales on an interval until ctx is cancelled.
func (w *LedgerWorker) RunPeriodic(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.ProcessPendingSales(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic sync pass failed", "error", err)
			}
		}
	}
}

func (w *LedgerWorker) syncSale(ctx context.Context, rec core.SaleRecord) error {
	if err := w.ledger.AppendSale(ctx, rec); err != nil {
		if markErr := w.sales.MarkLedgerSyncError(ctx, rec.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "sale_id", rec.ID, "error", markErr)
		}
		return fmt.Errorf("append to ledger: %w", err)
	}

	if err := w.sales.MarkLedgerSynced(ctx, rec.ID); err != nil {
		// The row made it to the ledger; the flag will be retried, which at
		// worst duplicates one ledger row.
		slog.ErrorContext(ctx, "Failed to mark as synced", "sale_id", rec.ID, "error", err)
	}

	slog.InfoContext(ctx, "Sale synced to ledger",
		"sale_id", rec.ID,
		"product", rec.ProductName,
		"total_cents", rec.TotalPrice.Cents)

	return nil
}

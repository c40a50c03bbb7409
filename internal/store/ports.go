// Package store defines the ports the application talks to the record store
// through. Both the SQLite repository and the in-memory store implement them.
package store

import (
	"context"
	"errors"
	"time"

	"tienda/internal/core"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// ProductUpdate carries a partial product update. Nil fields are left
// untouched; cumulative counters are never part of an edit.
type ProductUpdate struct {
	Name     *string
	Quantity *int64 // clamped at zero by the store
	Price    *core.Money
	Category *string
}

type (
	ProductStore interface {
		ListProducts(ctx context.Context) ([]core.Product, error)
		GetProduct(ctx context.Context, id string) (core.Product, error)
		// CreateProduct persists a new product and assigns its identifier.
		CreateProduct(ctx context.Context, p core.Product) (core.Product, error)
		UpdateProduct(ctx context.Context, id string, upd ProductUpdate) (core.Product, error)
		DeleteProduct(ctx context.Context, id string) error

		// AddSalesCount and AddTotalSold adjust the cumulative sale counters.
		// Negative deltas are allowed so a failed registration can be undone.
		AddSalesCount(ctx context.Context, id string, delta int64) error
		AddTotalSold(ctx context.Context, id string, delta core.Money) error
	}

	CategoryStore interface {
		ListCategories(ctx context.Context) ([]core.Category, error)
		CreateCategory(ctx context.Context, name string) (core.Category, error)
		// DeleteCategory removes the category only; products referencing it by
		// name keep their label.
		DeleteCategory(ctx context.Context, id string) error
	}

	SaleStore interface {
		// AppendSaleRecord persists an immutable sale record and assigns its
		// identifier.
		AppendSaleRecord(ctx context.Context, r core.SaleRecord) (core.SaleRecord, error)
		// ListSaleRecords returns records sorted by date descending. A zero
		// since keeps everything; limit <= 0 means no limit. Records with
		// malformed dates are returned as stored so callers can decide how to
		// handle them.
		ListSaleRecords(ctx context.Context, since time.Time, limit int) ([]core.SaleRecord, error)

		// Ledger sync bookkeeping for the off-site mirror. PendingLedgerSales
		// lists unsynced sales oldest first; limit <= 0 returns the whole
		// backlog.
		PendingLedgerSales(ctx context.Context, limit int) ([]core.SaleRecord, error)
		MarkLedgerSynced(ctx context.Context, id string) error
		MarkLedgerSyncError(ctx context.Context, id string) error
	}
)

// Store bundles all ports; the backend factory hands one to the HTTP layer.
type Store interface {
	ProductStore
	CategoryStore
	SaleStore
}

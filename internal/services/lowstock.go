package services

import (
	"context"
	"sync"

	"tienda/internal/core"
	"tienda/internal/store"
)

// LowStockMonitor flags products whose stock is at or below a threshold.
// Dismissed products stay out of the alert list until Reset is called, so the
// operator is not nagged about the same product on every check.
type LowStockMonitor struct {
	mu        sync.Mutex
	products  store.ProductStore
	threshold int64
	notified  map[string]struct{}
}

func NewLowStockMonitor(products store.ProductStore, threshold int64) *LowStockMonitor {
	return &LowStockMonitor{
		products:  products,
		threshold: threshold,
		notified:  make(map[string]struct{}),
	}
}

// Check returns the products at or below the configured threshold that have
// not been dismissed yet.
func (m *LowStockMonitor) Check(ctx context.Context) ([]core.Product, error) {
	return m.CheckThreshold(ctx, m.threshold)
}

// CheckThreshold is Check with a one-off threshold override.
func (m *LowStockMonitor) CheckThreshold(ctx context.Context, threshold int64) ([]core.Product, error) {
	products, err := m.products.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var flagged []core.Product
	for _, p := range products {
		if p.Quantity > threshold {
			continue
		}
		if _, seen := m.notified[p.ID]; seen {
			continue
		}
		flagged = append(flagged, p)
	}
	return flagged, nil
}

// Dismiss marks every currently low-stock product as notified. Products that
// restock and fall back under the threshold stay dismissed until Reset.
func (m *LowStockMonitor) Dismiss(ctx context.Context) error {
	products, err := m.products.ListProducts(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range products {
		if p.Quantity <= m.threshold {
			m.notified[p.ID] = struct{}{}
		}
	}
	return nil
}

// Reset forgets all dismissals.
func (m *LowStockMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notified = make(map[string]struct{})
}

package services

import (
	"context"
	"testing"

	"tienda/internal/core"
)

func lowStockFixture() *fakeStore {
	return newFakeStore(
		core.Product{ID: "a", Name: "Gorro", Quantity: 3, Price: core.Money{Cents: 100}, Category: "Gorros"},
		core.Product{ID: "b", Name: "Bufanda", Quantity: 10, Price: core.Money{Cents: 100}, Category: "Bufandas"},
		core.Product{ID: "c", Name: "Amigurumi", Quantity: 5, Price: core.Money{Cents: 100}, Category: "Amigurumis"},
	)
}

func flaggedIDs(t *testing.T, m *LowStockMonitor) map[string]bool {
	t.Helper()
	flagged, err := m.Check(context.Background())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	out := make(map[string]bool, len(flagged))
	for _, p := range flagged {
		out[p.ID] = true
	}
	return out
}

func TestLowStockCheck(t *testing.T) {
	m := NewLowStockMonitor(lowStockFixture(), 5)

	// Sitting exactly at the threshold counts as low.
	ids := flaggedIDs(t, m)
	if len(ids) != 2 || !ids["a"] || !ids["c"] {
		t.Fatalf("expected products a and c flagged, got %v", ids)
	}
}

func TestLowStockCheckThresholdOverride(t *testing.T) {
	m := NewLowStockMonitor(lowStockFixture(), 5)

	flagged, err := m.CheckThreshold(context.Background(), 3)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(flagged) != 1 || flagged[0].ID != "a" {
		t.Fatalf("expected only product a at threshold 3, got %+v", flagged)
	}
}

func TestLowStockDismiss(t *testing.T) {
	ctx := context.Background()
	f := lowStockFixture()
	m := NewLowStockMonitor(f, 5)

	if err := m.Dismiss(ctx); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if ids := flaggedIDs(t, m); len(ids) != 0 {
		t.Fatalf("dismissed products must not be flagged, got %v", ids)
	}

	// A different product dropping to the threshold is still reported.
	p := f.products["b"]
	p.Quantity = 1
	f.products["b"] = p

	if ids := flaggedIDs(t, m); len(ids) != 1 || !ids["b"] {
		t.Fatalf("expected only product b flagged, got %v", ids)
	}
}

func TestLowStockReset(t *testing.T) {
	ctx := context.Background()
	m := NewLowStockMonitor(lowStockFixture(), 5)

	if err := m.Dismiss(ctx); err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	m.Reset()

	if ids := flaggedIDs(t, m); len(ids) != 2 {
		t.Fatalf("reset should re-flag the low products, got %v", ids)
	}
}

package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"tienda/internal/core"
	"tienda/internal/store"
)

// fakeStore implements the product and sale ports with injectable failures.
type fakeStore struct {
	products map[string]core.Product
	records  []core.SaleRecord

	failSalesCount bool
	failTotalSold  bool
	failAppend     bool
}

func newFakeStore(products ...core.Product) *fakeStore {
	f := &fakeStore{products: make(map[string]core.Product)}
	for _, p := range products {
		f.products[p.ID] = p
	}
	return f
}

func (f *fakeStore) ListProducts(ctx context.Context) ([]core.Product, error) {
	var out []core.Product
	for _, p := range f.products {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) GetProduct(ctx context.Context, id string) (core.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return core.Product{}, store.ErrNotFound
	}
	return p, nil
}

func (f *fakeStore) CreateProduct(ctx context.Context, p core.Product) (core.Product, error) {
	f.products[p.ID] = p
	return p, nil
}

func (f *fakeStore) UpdateProduct(ctx context.Context, id string, upd store.ProductUpdate) (core.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return core.Product{}, store.ErrNotFound
	}
	if upd.Quantity != nil {
		p.Quantity = core.ClampQuantity(*upd.Quantity)
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Price != nil {
		p.Price = *upd.Price
	}
	if upd.Category != nil {
		p.Category = *upd.Category
	}
	f.products[id] = p
	return p, nil
}

func (f *fakeStore) DeleteProduct(ctx context.Context, id string) error {
	delete(f.products, id)
	return nil
}

func (f *fakeStore) AddSalesCount(ctx context.Context, id string, delta int64) error {
	if f.failSalesCount && delta > 0 {
		return errors.New("sales count write failed")
	}
	p := f.products[id]
	p.SalesCount += delta
	f.products[id] = p
	return nil
}

func (f *fakeStore) AddTotalSold(ctx context.Context, id string, delta core.Money) error {
	if f.failTotalSold && delta.Cents > 0 {
		return errors.New("total sold write failed")
	}
	p := f.products[id]
	p.TotalSold = p.TotalSold.Add(delta)
	f.products[id] = p
	return nil
}

func (f *fakeStore) AppendSaleRecord(ctx context.Context, r core.SaleRecord) (core.SaleRecord, error) {
	if f.failAppend {
		return core.SaleRecord{}, errors.New("append failed")
	}
	r.ID = "sale-1"
	f.records = append(f.records, r)
	return r, nil
}

func (f *fakeStore) ListSaleRecords(ctx context.Context, since time.Time, limit int) ([]core.SaleRecord, error) {
	return f.records, nil
}

func (f *fakeStore) PendingLedgerSales(ctx context.Context, limit int) ([]core.SaleRecord, error) {
	return nil, nil
}

func (f *fakeStore) MarkLedgerSynced(ctx context.Context, id string) error { return nil }

func (f *fakeStore) MarkLedgerSyncError(ctx context.Context, id string) error { return nil }

var (
	_ store.ProductStore = (*fakeStore)(nil)
	_ store.SaleStore    = (*fakeStore)(nil)
)

type recordingPublisher struct {
	published []string
	err       error
}

func (p *recordingPublisher) PublishSaleRecorded(ctx context.Context, saleID string) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, saleID)
	return nil
}

func testProduct() core.Product {
	return core.Product{
		ID: "p1", Name: "Gorro", Quantity: 5,
		Price: core.Money{Cents: 1000}, Category: "Gorros",
	}
}

func TestRegisterSaleSuccess(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore(testProduct())
	pub := &recordingPublisher{}
	svc := NewSaleService(f, f, pub)

	record, err := svc.RegisterSale(ctx, "p1", 3)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if record.Quantity != 3 || record.TotalPrice.Cents != 3000 || record.ProductName != "Gorro" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if record.Date == "" {
		t.Fatalf("expected record date to be set")
	}
	if _, ok := record.Time(); !ok {
		t.Fatalf("record date should be parseable: %q", record.Date)
	}

	p := f.products["p1"]
	if p.Quantity != 2 {
		t.Fatalf("expected stock 2, got %d", p.Quantity)
	}
	if p.SalesCount != 3 {
		t.Fatalf("expected sales count 3, got %d", p.SalesCount)
	}
	if p.TotalSold.Cents != 3000 {
		t.Fatalf("expected total sold 3000, got %d", p.TotalSold.Cents)
	}
	if len(pub.published) != 1 || pub.published[0] != record.ID {
		t.Fatalf("expected one published message for %s, got %v", record.ID, pub.published)
	}
}

func TestRegisterSaleExactStock(t *testing.T) {
	ctx := context.Background()
	f := newFakeStore(testProduct())
	svc := NewSaleService(f, f, nil)

	if _, err := svc.RegisterSale(ctx, "p1", 5); err != nil {
		t.Fatalf("selling full stock should succeed: %v", err)
	}
	if q := f.products["p1"].Quantity; q != 0 {
		t.Fatalf("expected stock 0, got %d", q)
	}
}

func TestRegisterSaleValidation(t *testing.T) {
	tests := []struct {
		name     string
		quantity int64
		wantErr  error
	}{
		{"zero quantity", 0, core.ErrInvalidSaleQuantity},
		{"negative quantity", -1, core.ErrInvalidSaleQuantity},
		{"exceeds stock", 6, core.ErrInsufficientStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeStore(testProduct())
			svc := NewSaleService(f, f, nil)

			_, err := svc.RegisterSale(context.Background(), "p1", tt.quantity)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}

			// Validation failures must leave the product untouched.
			if p := f.products["p1"]; p != testProduct() {
				t.Fatalf("product mutated on validation failure: %+v", p)
			}
			if len(f.records) != 0 {
				t.Fatalf("no sale record expected, got %d", len(f.records))
			}
		})
	}
}

func TestRegisterSaleUnknownProduct(t *testing.T) {
	f := newFakeStore()
	svc := NewSaleService(f, f, nil)
	if _, err := svc.RegisterSale(context.Background(), "missing", 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegisterSaleCompensatesOnFailure(t *testing.T) {
	tests := []struct {
		name string
		prep func(*fakeStore)
	}{
		{"sales count fails", func(f *fakeStore) { f.failSalesCount = true }},
		{"total sold fails", func(f *fakeStore) { f.failTotalSold = true }},
		{"append fails", func(f *fakeStore) { f.failAppend = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeStore(testProduct())
			tt.prep(f)
			svc := NewSaleService(f, f, nil)

			if _, err := svc.RegisterSale(context.Background(), "p1", 3); err == nil {
				t.Fatalf("expected failure")
			}

			// Compensation must restore the product to its pre-sale state.
			if p := f.products["p1"]; p != testProduct() {
				t.Fatalf("compensation left product at %+v", p)
			}
			if len(f.records) != 0 {
				t.Fatalf("no sale record expected after failure, got %d", len(f.records))
			}
		})
	}
}

func TestRegisterSalePublishFailureDoesNotFailSale(t *testing.T) {
	f := newFakeStore(testProduct())
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewSaleService(f, f, pub)

	record, err := svc.RegisterSale(context.Background(), "p1", 1)
	if err != nil {
		t.Fatalf("sale must succeed when publish fails: %v", err)
	}
	if record.ID == "" {
		t.Fatalf("expected a recorded sale")
	}
	if len(f.records) != 1 {
		t.Fatalf("expected sale record persisted")
	}
}

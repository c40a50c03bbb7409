// Package memory is the in-process record store. It is the default backend
// and what most tests run against.
package memory

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tienda/internal/core"
	"tienda/internal/store"
)

type saleRow struct {
	record core.SaleRecord
	synced bool
}

type Store struct {
	mu         sync.Mutex
	products   []core.Product
	categories []core.Category
	sales      []saleRow
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// NewFromFiles seeds categories from <base>/seed_categories.txt when present.
func NewFromFiles(base string) *Store {
	s := New()
	for _, name := range readLines(filepath.Join(base, "seed_categories.txt")) {
		s.categories = append(s.categories, core.Category{ID: uuid.NewString(), Name: name})
	}
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]core.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Product, len(s.products))
	copy(out, s.products)
	return out, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (core.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.ID == id {
			return p, nil
		}
	}
	return core.Product{}, store.ErrNotFound
}

func (s *Store) CreateProduct(_ context.Context, p core.Product) (core.Product, error) {
	if err := p.Validate(); err != nil {
		return core.Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = uuid.NewString()
	s.products = append(s.products, p)
	return p, nil
}

func (s *Store) UpdateProduct(_ context.Context, id string, upd store.ProductUpdate) (core.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.products {
		if p.ID != id {
			continue
		}
		if upd.Name != nil {
			p.Name = *upd.Name
		}
		if upd.Quantity != nil {
			p.Quantity = core.ClampQuantity(*upd.Quantity)
		}
		if upd.Price != nil {
			p.Price = *upd.Price
		}
		if upd.Category != nil {
			p.Category = *upd.Category
		}
		// The merged product must still be valid; a partial edit cannot blank
		// the name or category.
		if err := p.Validate(); err != nil {
			return core.Product{}, err
		}
		s.products[i] = p
		return p, nil
	}
	return core.Product{}, store.ErrNotFound
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.products {
		if p.ID == id {
			s.products = append(s.products[:i], s.products[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) AddSalesCount(_ context.Context, id string, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		if s.products[i].ID == id {
			s.products[i].SalesCount += delta
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) AddTotalSold(_ context.Context, id string, delta core.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.products {
		if s.products[i].ID == id {
			s.products[i].TotalSold = s.products[i].TotalSold.Add(delta)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) ListCategories(_ context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Category, len(s.categories))
	copy(out, s.categories)
	return out, nil
}

func (s *Store) CreateCategory(_ context.Context, name string) (core.Category, error) {
	c := core.Category{Name: strings.TrimSpace(name)}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = uuid.NewString()
	s.categories = append(s.categories, c)
	return c, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.categories {
		if c.ID == id {
			s.categories = append(s.categories[:i], s.categories[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) AppendSaleRecord(_ context.Context, r core.SaleRecord) (core.SaleRecord, error) {
	if err := r.Validate(); err != nil {
		return core.SaleRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = uuid.NewString()
	s.sales = append(s.sales, saleRow{record: r})
	return r, nil
}

func (s *Store) ListSaleRecords(_ context.Context, since time.Time, limit int) ([]core.SaleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.SaleRecord, 0, len(s.sales))
	for _, row := range s.sales {
		if !since.IsZero() {
			// Malformed dates pass through; the aggregator decides what to do
			// with them.
			if t, ok := row.record.Time(); ok && t.Before(since) {
				continue
			}
		}
		out = append(out, row.record)
	}
	core.SortSalesLatestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) PendingLedgerSales(_ context.Context, limit int) ([]core.SaleRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.SaleRecord
	for _, row := range s.sales {
		if row.synced {
			continue
		}
		out = append(out, row.record)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkLedgerSynced(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sales {
		if s.sales[i].record.ID == id {
			s.sales[i].synced = true
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) MarkLedgerSyncError(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sales {
		if s.sales[i].record.ID == id {
			return nil // kept pending; the periodic pass retries it
		}
	}
	return store.ErrNotFound
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	seen := map[string]struct{}{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}

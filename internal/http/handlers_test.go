package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tienda/internal/core"
	"tienda/internal/memory"
	"tienda/internal/services"
)

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	st := memory.New()
	srv := NewServer(Options{Addr: ":0", WindowMonths: 6, LatestLimit: 10},
		st,
		services.NewSaleService(st, st, nil),
		services.NewLowStockMonitor(st, 5))
	t.Cleanup(func() {
		srv.cacheManager.Stop()
		srv.rateLimiter.stop()
	})
	return srv, st
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func createProduct(t *testing.T, srv *Server, name, price string, qty int64) productResponse {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/products", createProductRequest{
		Name: name, Quantity: qty, Price: price, Category: "Gorros",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product: status %d body %s", rec.Code, rec.Body.String())
	}
	return decodeBody[productResponse](t, rec)
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, srv, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, rec.Code)
		}
	}
}

func TestProductEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	created := createProduct(t, srv, "Gorro", "15.00", 10)
	if created.ID == "" || created.PriceCents != 1500 {
		t.Fatalf("unexpected product: %+v", created)
	}

	rec := doJSON(t, srv, http.MethodGet, "/api/products", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	if products := decodeBody[[]productResponse](t, rec); len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/products/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status %d", rec.Code)
	}

	name := "Gorro grande"
	rec = doJSON(t, srv, http.MethodPut, "/api/products/"+created.ID, updateProductRequest{Name: &name})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d body %s", rec.Code, rec.Body.String())
	}
	if updated := decodeBody[productResponse](t, rec); updated.Name != name || updated.PriceCents != 1500 {
		t.Fatalf("partial update wrong: %+v", updated)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/api/products/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/products/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestCreateProductValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/products", createProductRequest{
		Name: "Gorro", Quantity: 1, Price: "abc", Category: "Gorros",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad price: expected 422, got %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/products", createProductRequest{
		Name: "", Quantity: 1, Price: "10.00", Category: "Gorros",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty name: expected 422, got %d", rec.Code)
	}
}

func TestUpdateProductValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	p := createProduct(t, srv, "Gorro", "10.00", 5)

	blank := "   "
	rec := doJSON(t, srv, http.MethodPut, "/api/products/"+p.ID, updateProductRequest{Name: &blank})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("blank name: expected 422, got %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/products/"+p.ID, nil)
	if got := decodeBody[productResponse](t, rec); got.Name != "Gorro" {
		t.Fatalf("rejected edit must not write, got %q", got.Name)
	}
}

func TestCategoryEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/categories", createCategoryRequest{Name: "Amigurumis"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d", rec.Code)
	}
	created := decodeBody[categoryResponse](t, rec)

	rec = doJSON(t, srv, http.MethodGet, "/api/categories", nil)
	if categories := decodeBody[[]categoryResponse](t, rec); len(categories) != 1 {
		t.Fatalf("expected 1 category, got %d", len(categories))
	}

	rec = doJSON(t, srv, http.MethodDelete, "/api/categories/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: status %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodDelete, "/api/categories/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRegisterSaleEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	p := createProduct(t, srv, "Gorro", "10.00", 5)

	rec := doJSON(t, srv, http.MethodPost, "/api/sales", registerSaleRequest{ProductID: p.ID, Quantity: 3})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status %d body %s", rec.Code, rec.Body.String())
	}
	sale := decodeBody[saleResponse](t, rec)
	if sale.Quantity != 3 || sale.TotalPrice != 30.0 || sale.ProductName != "Gorro" {
		t.Fatalf("unexpected sale: %+v", sale)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/products/"+p.ID, nil)
	got := decodeBody[productResponse](t, rec)
	if got.Quantity != 2 || got.SalesCount != 3 || got.TotalSold != 30.0 {
		t.Fatalf("product counters wrong after sale: %+v", got)
	}

	// More than remaining stock conflicts.
	rec = doJSON(t, srv, http.MethodPost, "/api/sales", registerSaleRequest{ProductID: p.ID, Quantity: 5})
	if rec.Code != http.StatusConflict {
		t.Fatalf("oversell: expected 409, got %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/sales", registerSaleRequest{ProductID: p.ID, Quantity: 0})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("zero quantity: expected 422, got %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/sales", registerSaleRequest{ProductID: "missing", Quantity: 1})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown product: expected 404, got %d", rec.Code)
	}
}

func TestLatestSalesEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	p := createProduct(t, srv, "Gorro", "10.00", 100)

	for i := 0; i < 12; i++ {
		rec := doJSON(t, srv, http.MethodPost, "/api/sales", registerSaleRequest{ProductID: p.ID, Quantity: 1})
		if rec.Code != http.StatusCreated {
			t.Fatalf("register %d: status %d", i, rec.Code)
		}
	}

	rec := doJSON(t, srv, http.MethodGet, "/api/sales/latest", nil)
	if sales := decodeBody[[]saleResponse](t, rec); len(sales) != 10 {
		t.Fatalf("expected default page of 10, got %d", len(sales))
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/sales/latest?limit=3", nil)
	if sales := decodeBody[[]saleResponse](t, rec); len(sales) != 3 {
		t.Fatalf("expected 3, got %d", len(sales))
	}
}

func TestMonthlySalesEndpoint(t *testing.T) {
	srv, st := newTestServer(t)
	p := createProduct(t, srv, "Gorro", "10.00", 10)

	rec := doJSON(t, srv, http.MethodPost, "/api/sales", registerSaleRequest{ProductID: p.ID, Quantity: 2})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status %d", rec.Code)
	}
	// A malformed date in the store must not break the aggregation.
	if _, err := st.AppendSaleRecord(context.Background(), core.SaleRecord{
		Date: "garbage", ProductName: "Gorro", Quantity: 1, TotalPrice: core.Money{Cents: 100},
	}); err != nil {
		t.Fatalf("append malformed: %v", err)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/sales/monthly", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("monthly: status %d body %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[monthlySalesResponse](t, rec)
	if len(resp.Months) != 6 {
		t.Fatalf("expected 6 zero-filled months, got %d", len(resp.Months))
	}
	if resp.Total != 20.0 {
		t.Fatalf("expected total 20.00, got %v", resp.Total)
	}
	last := resp.Months[len(resp.Months)-1]
	if last.Total != 20.0 {
		t.Fatalf("expected current month total 20.00, got %+v", last)
	}
	for i := 1; i < len(resp.Months); i++ {
		if resp.Months[i-1].Month >= resp.Months[i].Month {
			t.Fatalf("months not ascending: %+v", resp.Months)
		}
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/sales/monthly?months=3", nil)
	if resp := decodeBody[monthlySalesResponse](t, rec); len(resp.Months) != 3 {
		t.Fatalf("expected 3-month window, got %d", len(resp.Months))
	}
}

func TestLowStockEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	low := createProduct(t, srv, "Gorro", "10.00", 3)
	createProduct(t, srv, "Bufanda", "10.00", 10)

	rec := doJSON(t, srv, http.MethodGet, "/api/products/low-stock", nil)
	flagged := decodeBody[[]productResponse](t, rec)
	if len(flagged) != 1 || flagged[0].ID != low.ID {
		t.Fatalf("expected only the low product flagged, got %+v", flagged)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/products/low-stock?threshold=20", nil)
	if flagged := decodeBody[[]productResponse](t, rec); len(flagged) != 2 {
		t.Fatalf("threshold override should flag both, got %+v", flagged)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/products/low-stock/dismiss", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("dismiss: status %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodGet, "/api/products/low-stock", nil)
	if flagged := decodeBody[[]productResponse](t, rec); len(flagged) != 0 {
		t.Fatalf("expected no alerts after dismiss, got %+v", flagged)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/products/low-stock/reset", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("reset: status %d", rec.Code)
	}
	rec = doJSON(t, srv, http.MethodGet, "/api/products/low-stock", nil)
	if flagged := decodeBody[[]productResponse](t, rec); len(flagged) != 1 {
		t.Fatalf("expected alert back after reset, got %+v", flagged)
	}
}

func TestProductCacheInvalidation(t *testing.T) {
	srv, _ := newTestServer(t)
	createProduct(t, srv, "Gorro", "10.00", 5)

	// Prime the cache, then mutate and check the list reflects the change.
	doJSON(t, srv, http.MethodGet, "/api/products", nil)
	createProduct(t, srv, "Bufanda", "20.00", 5)

	rec := doJSON(t, srv, http.MethodGet, "/api/products", nil)
	if products := decodeBody[[]productResponse](t, rec); len(products) != 2 {
		t.Fatalf("expected cache invalidated, got %d products", len(products))
	}
}

package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"tienda/internal/core"
	"tienda/internal/store"
)

type productResponse struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Quantity   int64   `json:"quantity"`
	Price      string  `json:"price"`
	PriceCents int64   `json:"price_cents"`
	Category   string  `json:"category"`
	SalesCount int64   `json:"sales_count"`
	TotalSold  float64 `json:"total_sold"`
}

func toProductResponse(p core.Product) productResponse {
	return productResponse{
		ID:         p.ID,
		Name:       p.Name,
		Quantity:   p.Quantity,
		Price:      p.Price.String(),
		PriceCents: p.Price.Cents,
		Category:   p.Category,
		SalesCount: p.SalesCount,
		TotalSold:  p.TotalSold.Float(),
	}
}

func toProductResponses(products []core.Product) []productResponse {
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	return out
}

// createProductRequest carries prices as decimal strings ("12.34"); parsing
// happens in cents to avoid float drift.
type createProductRequest struct {
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	Price    string `json:"price"`
	Category string `json:"category"`
}

type updateProductRequest struct {
	Name     *string `json:"name"`
	Quantity *int64  `json:"quantity"`
	Price    *string `json:"price"`
	Category *string `json:"category"`
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	const cacheKey = "all"
	if products, ok := s.productsCache.Get(cacheKey); ok {
		writeJSON(w, http.StatusOK, toProductResponses(products))
		return
	}

	products, err := s.store.ListProducts(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "List products failed", "error", err)
		writeStoreError(w, err)
		return
	}

	s.productsCache.Set(cacheKey, products)
	writeJSON(w, http.StatusOK, toProductResponses(products))
}

func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := s.store.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cents, err := core.ParseDecimalToCents(strings.TrimSpace(req.Price))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid price")
		return
	}

	product, err := s.store.CreateProduct(r.Context(), core.Product{
		Name:     strings.TrimSpace(req.Name),
		Quantity: core.ClampQuantity(req.Quantity),
		Price:    core.Money{Cents: cents},
		Category: strings.TrimSpace(req.Category),
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.invalidateViews()
	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req updateProductRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	upd := store.ProductUpdate{Quantity: req.Quantity}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		upd.Name = &name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		upd.Category = &category
	}
	if req.Price != nil {
		cents, err := core.ParseDecimalToCents(strings.TrimSpace(*req.Price))
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid price")
			return
		}
		upd.Price = &core.Money{Cents: cents}
	}

	product, err := s.store.UpdateProduct(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	s.invalidateViews()
	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteProduct(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, err)
		return
	}
	s.invalidateViews()
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleLowStock(w http.ResponseWriter, r *http.Request) {
	var (
		flagged []core.Product
		err     error
	)
	if v := strings.TrimSpace(r.URL.Query().Get("threshold")); v != "" {
		threshold, parseErr := strconv.ParseInt(v, 10, 64)
		if parseErr != nil || threshold < 0 {
			writeError(w, http.StatusBadRequest, "invalid threshold")
			return
		}
		flagged, err = s.lowStock.CheckThreshold(r.Context(), threshold)
	} else {
		flagged, err = s.lowStock.Check(r.Context())
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Low stock check failed", "error", err)
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductResponses(flagged))
}

func (s *Server) handleLowStockDismiss(w http.ResponseWriter, r *http.Request) {
	if err := s.lowStock.Dismiss(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "Low stock dismiss failed", "error", err)
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleLowStockReset(w http.ResponseWriter, r *http.Request) {
	s.lowStock.Reset()
	writeJSON(w, http.StatusNoContent, nil)
}

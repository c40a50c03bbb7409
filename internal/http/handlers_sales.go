package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tienda/internal/core"
)

type registerSaleRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

type saleResponse struct {
	ID          string  `json:"id"`
	Date        string  `json:"date"`
	ProductName string  `json:"product_name"`
	Quantity    int64   `json:"quantity"`
	TotalPrice  float64 `json:"total_price"`
}

func toSaleResponse(rec core.SaleRecord) saleResponse {
	return saleResponse{
		ID:          rec.ID,
		Date:        rec.Date,
		ProductName: rec.ProductName,
		Quantity:    rec.Quantity,
		TotalPrice:  rec.TotalPrice.Float(),
	}
}

type monthlyBucketResponse struct {
	Month string  `json:"month"`
	Total float64 `json:"total"`
}

type monthlySalesResponse struct {
	Months  []monthlyBucketResponse `json:"months"`
	Total   float64                 `json:"total"`
	Average float64                 `json:"average_per_month"`
}

func (s *Server) handleRegisterSale(w http.ResponseWriter, r *http.Request) {
	var req registerSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ProductID) == "" {
		writeError(w, http.StatusUnprocessableEntity, "product_id is required")
		return
	}

	record, err := s.sales.RegisterSale(r.Context(), req.ProductID, req.Quantity)
	if err != nil {
		slog.ErrorContext(r.Context(), "Sale registration failed",
			"product_id", req.ProductID, "quantity", req.Quantity, "error", err)
		writeStoreError(w, err)
		return
	}

	s.invalidateViews()
	writeJSON(w, http.StatusCreated, toSaleResponse(record))
}

func (s *Server) handleLatestSales(w http.ResponseWriter, r *http.Request) {
	limit := s.latestLimit
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := s.store.ListSaleRecords(r.Context(), time.Time{}, limit)
	if err != nil {
		slog.ErrorContext(r.Context(), "List latest sales failed", "error", err)
		writeStoreError(w, err)
		return
	}

	out := make([]saleResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toSaleResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMonthlySales(w http.ResponseWriter, r *http.Request) {
	months := s.windowMonths
	if v := strings.TrimSpace(r.URL.Query().Get("months")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 120 {
			months = n
		}
	}

	cacheKey := "window-" + strconv.Itoa(months)
	if resp, ok := s.monthlyCache.Get(cacheKey); ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	now := time.Now()
	since := core.WindowStart(now, months)

	records, err := s.store.ListSaleRecords(r.Context(), since, 0)
	if err != nil {
		slog.ErrorContext(r.Context(), "List sales for aggregation failed", "error", err)
		writeStoreError(w, err)
		return
	}

	buckets := core.MonthlyTotals(records, now, months)
	summary := core.SummarizeBuckets(buckets)

	resp := monthlySalesResponse{
		Months:  make([]monthlyBucketResponse, 0, len(buckets)),
		Total:   summary.Total.Float(),
		Average: summary.Average.Float(),
	}
	for _, b := range buckets {
		resp.Months = append(resp.Months, monthlyBucketResponse{Month: b.Month, Total: b.Total.Float()})
	}

	s.monthlyCache.Set(cacheKey, resp)
	writeJSON(w, http.StatusOK, resp)
}

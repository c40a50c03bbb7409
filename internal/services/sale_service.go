package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tienda/internal/core"
	"tienda/internal/store"
)

// SalePublisher announces recorded sales for the ledger worker. The AMQP
// client implements it; it is nil-able so the API runs without a broker.
type SalePublisher interface {
	PublishSaleRecorded(ctx context.Context, saleID string) error
}

// SaleService orchestrates sale registration across the record store and AMQP.
type SaleService struct {
	products  store.ProductStore
	sales     store.SaleStore
	publisher SalePublisher
}

func NewSaleService(products store.ProductStore, sales store.SaleStore, publisher SalePublisher) *SaleService {
	return &SaleService{
		products:  products,
		sales:     sales,
		publisher: publisher,
	}
}

// RegisterSale records a sale of quantity units of the given product. Four
// writes happen against the store: stock decrement, sales-count increment,
// revenue increment, and the appended sale record. The store has no
// cross-record transactions, so a failure after the first write triggers
// compensating updates that undo the earlier steps before the error is
// returned.
func (s *SaleService) RegisterSale(ctx context.Context, productID string, quantity int64) (core.SaleRecord, error) {
	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return core.SaleRecord{}, fmt.Errorf("load product: %w", err)
	}

	if err := core.ValidateSale(product, quantity); err != nil {
		return core.SaleRecord{}, err
	}

	total := product.Price.Mul(quantity)
	newQuantity := product.Quantity - quantity

	// Step 1: decrement stock.
	if _, err := s.products.UpdateProduct(ctx, productID, store.ProductUpdate{Quantity: &newQuantity}); err != nil {
		return core.SaleRecord{}, fmt.Errorf("decrement stock: %w", err)
	}

	// Step 2: bump cumulative units sold.
	if err := s.products.AddSalesCount(ctx, productID, quantity); err != nil {
		s.undoStock(ctx, productID, product.Quantity)
		return core.SaleRecord{}, fmt.Errorf("increment sales count: %w", err)
	}

	// Step 3: bump cumulative revenue.
	if err := s.products.AddTotalSold(ctx, productID, total); err != nil {
		s.undoSalesCount(ctx, productID, quantity)
		s.undoStock(ctx, productID, product.Quantity)
		return core.SaleRecord{}, fmt.Errorf("increment total sold: %w", err)
	}

	// Step 4: append the immutable sale record.
	record, err := s.sales.AppendSaleRecord(ctx, core.SaleRecord{
		Date:        time.Now().UTC().Format(time.RFC3339),
		ProductName: product.Name,
		Quantity:    quantity,
		TotalPrice:  total,
	})
	if err != nil {
		s.undoTotalSold(ctx, productID, total)
		s.undoSalesCount(ctx, productID, quantity)
		s.undoStock(ctx, productID, product.Quantity)
		return core.SaleRecord{}, fmt.Errorf("append sale record: %w", err)
	}

	slog.InfoContext(ctx, "Sale registered",
		"sale_id", record.ID,
		"product_id", productID,
		"product", product.Name,
		"quantity", quantity,
		"total_cents", total.Cents)

	// Publish async ledger notification (non-blocking). The sale is saved
	// locally; the worker's periodic pass picks up anything the broker misses.
	if err := s.publishSaleRecorded(ctx, record.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sale recorded message",
			"sale_id", record.ID, "error", err)
	}

	return record, nil
}

func (s *SaleService) undoStock(ctx context.Context, productID string, original int64) {
	if _, err := s.products.UpdateProduct(ctx, productID, store.ProductUpdate{Quantity: &original}); err != nil {
		slog.ErrorContext(ctx, "Failed to restore stock after sale failure",
			"product_id", productID, "quantity", original, "error", err)
	}
}

func (s *SaleService) undoSalesCount(ctx context.Context, productID string, quantity int64) {
	if err := s.products.AddSalesCount(ctx, productID, -quantity); err != nil {
		slog.ErrorContext(ctx, "Failed to revert sales count after sale failure",
			"product_id", productID, "error", err)
	}
}

func (s *SaleService) undoTotalSold(ctx context.Context, productID string, total core.Money) {
	if err := s.products.AddTotalSold(ctx, productID, core.Money{Cents: -total.Cents}); err != nil {
		slog.ErrorContext(ctx, "Failed to revert total sold after sale failure",
			"product_id", productID, "error", err)
	}
}

func (s *SaleService) publishSaleRecorded(ctx context.Context, saleID string) error {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping sale message")
		return nil
	}
	return s.publisher.PublishSaleRecorded(ctx, saleID)
}

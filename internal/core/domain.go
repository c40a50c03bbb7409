package core

import (
	"errors"
	"sort"
	"strings"
	"time"
)

type (
	// Money is an amount in cents. All arithmetic happens in cents; floats are
	// for display only.
	Money struct {
		Cents int64
	}

	// Product is a stocked item. SalesCount and TotalSold are cumulative
	// counters updated by sale registration, never edited directly.
	Product struct {
		ID         string
		Name       string
		Quantity   int64
		Price      Money // per unit
		Category   string
		SalesCount int64
		TotalSold  Money
	}

	Category struct {
		ID   string
		Name string
	}

	// SaleRecord is one registered sale. Records are append-only. Date is kept
	// as the raw ISO-8601 string the store holds; the store is schemaless and
	// malformed dates must survive the round trip so the aggregator can skip
	// them instead of failing the whole listing.
	SaleRecord struct {
		ID          string
		Date        string
		ProductName string
		Quantity    int64
		TotalPrice  Money
	}
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidPrice        = errors.New("invalid price")
	ErrEmptyName           = errors.New("empty name")
	ErrNegativeQuantity    = errors.New("negative quantity")
	ErrEmptyCategory       = errors.New("empty category")
	ErrInvalidSaleQuantity = errors.New("sale quantity must be greater than zero")
	ErrInsufficientStock   = errors.New("sale quantity exceeds available stock")
)

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (p Product) Validate() error {
	if len(strings.TrimSpace(p.Name)) == 0 {
		return ErrEmptyName
	}
	if len(p.Name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	if p.Quantity < 0 {
		return ErrNegativeQuantity
	}
	if p.Price.Cents <= 0 {
		return ErrInvalidPrice
	}
	if strings.TrimSpace(p.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (c Category) Validate() error {
	if len(strings.TrimSpace(c.Name)) == 0 {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	return nil
}

// Time parses the record date. ok is false for empty or malformed dates.
func (r SaleRecord) Time() (time.Time, bool) {
	s := strings.TrimSpace(r.Date)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func (r SaleRecord) Validate() error {
	if len(strings.TrimSpace(r.ProductName)) == 0 {
		return ErrEmptyName
	}
	if r.Quantity <= 0 {
		return ErrInvalidSaleQuantity
	}
	if err := r.TotalPrice.Validate(); err != nil {
		return err
	}
	return nil
}

// ValidateSale checks the preconditions for registering a sale against the
// current stock. Nothing may be written when this returns an error.
func ValidateSale(p Product, quantity int64) error {
	if quantity <= 0 {
		return ErrInvalidSaleQuantity
	}
	if quantity > p.Quantity {
		return ErrInsufficientStock
	}
	return nil
}

// SortSalesLatestFirst orders records newest first. Dates are compared as
// parsed timestamps, not strings, so date-only records ("2024-01-15") sort as
// midnight and interleave correctly with full RFC3339 timestamps from the
// same day. Malformed dates sink to the end.
func SortSalesLatestFirst(records []SaleRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		ti, iok := records[i].Time()
		tj, jok := records[j].Time()
		switch {
		case iok && jok:
			return ti.After(tj)
		case iok:
			return true
		case jok:
			return false
		default:
			return records[i].Date > records[j].Date
		}
	})
}

// ClampQuantity floors a stock quantity at zero.
func ClampQuantity(q int64) int64 {
	if q < 0 {
		return 0
	}
	return q
}

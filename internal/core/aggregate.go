package core

import (
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// MonthlyBucket is one month of aggregated sale revenue. Derived on demand,
// never persisted.
type MonthlyBucket struct {
	Month string // "YYYY-MM", zero-padded
	Total Money
}

// SalesSummary carries the dashboard figures computed over a bucket list.
type SalesSummary struct {
	Total   Money
	Average Money // per month, half-up rounded
}

// MonthKey returns the bucket key for a point in time, e.g. "2024-03".
func MonthKey(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// WindowStart returns the first day of the earliest month in a trailing
// window of `months` months ending at now.
func WindowStart(now time.Time, months int) time.Time {
	return time.Date(now.Year(), now.Month()-time.Month(months-1), 1, 0, 0, 0, 0, now.Location())
}

// MonthlyTotals groups sale revenue by calendar month over a trailing window.
//
// Records dated before the window start are ignored. Records whose date does
// not parse are logged and skipped; they never fail the aggregation. Every
// month of the window appears in the output, zero-filled when no sale landed
// in it, so charts show gaps instead of collapsing them. The result is sorted
// ascending by month key and contains no duplicates. Empty input yields an
// all-zero window.
func MonthlyTotals(records []SaleRecord, now time.Time, months int) []MonthlyBucket {
	if months < 1 {
		months = 1
	}
	start := WindowStart(now, months)

	totals := make(map[string]int64, months)
	for i := 0; i < months; i++ {
		totals[MonthKey(start.AddDate(0, i, 0))] = 0
	}

	for _, r := range records {
		t, ok := r.Time()
		if !ok {
			slog.Warn("Skipping sale with unparseable date", "sale_id", r.ID, "date", r.Date)
			continue
		}
		if t.Before(start) {
			continue
		}
		totals[MonthKey(t)] += r.TotalPrice.Cents
	}

	keys := make([]string, 0, len(totals))
	for k := range totals {
		keys = append(keys, k)
	}
	// Zero-padded keys sort chronologically as strings.
	sort.Strings(keys)

	out := make([]MonthlyBucket, 0, len(keys))
	for _, k := range keys {
		out = append(out, MonthlyBucket{Month: k, Total: Money{Cents: totals[k]}})
	}
	return out
}

// SummarizeBuckets computes the overall total and per-month average revenue.
func SummarizeBuckets(buckets []MonthlyBucket) SalesSummary {
	var sum int64
	for _, b := range buckets {
		sum += b.Total.Cents
	}
	var avg int64
	if n := int64(len(buckets)); n > 0 {
		avg = (sum + n/2) / n
	}
	return SalesSummary{Total: Money{Cents: sum}, Average: Money{Cents: avg}}
}

// Package ledger mirrors sale records to an off-site spreadsheet so the
// operator keeps a copy of the books outside the application.
package ledger

import (
	"context"

	"tienda/internal/core"
)

// Writer appends sale records to the ledger. The Google Sheets client
// implements it; tests use an in-memory fake.
type Writer interface {
	AppendSale(ctx context.Context, rec core.SaleRecord) error
}

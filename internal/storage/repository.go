package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"tienda/internal/core"
	"tienda/internal/store"
)

// SQLiteRepository implements the store ports over a local SQLite file.
type SQLiteRepository struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

const productColumns = "id, name, quantity, price_cents, category, sales_count, total_sold_cents"

func scanProduct(row interface{ Scan(...any) error }) (core.Product, error) {
	var p core.Product
	err := row.Scan(&p.ID, &p.Name, &p.Quantity, &p.Price.Cents, &p.Category, &p.SalesCount, &p.TotalSold.Cents)
	return p, err
}

func (r *SQLiteRepository) ListProducts(ctx context.Context) ([]core.Product, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+productColumns+" FROM products ORDER BY created_at, name")
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var out []core.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetProduct(ctx context.Context, id string) (core.Product, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = ?", id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Product{}, store.ErrNotFound
	}
	if err != nil {
		return core.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) CreateProduct(ctx context.Context, p core.Product) (core.Product, error) {
	if err := p.Validate(); err != nil {
		return core.Product{}, err
	}
	p.ID = uuid.NewString()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO products (id, name, quantity, price_cents, category, sales_count, total_sold_cents)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Quantity, p.Price.Cents, p.Category, p.SalesCount, p.TotalSold.Cents)
	if err != nil {
		return core.Product{}, fmt.Errorf("create product: %w", err)
	}

	slog.InfoContext(ctx, "Product created",
		"id", p.ID,
		"name", p.Name,
		"quantity", p.Quantity,
		"price_cents", p.Price.Cents)

	return p, nil
}

// UpdateProduct applies a partial edit. The merged product is validated
// before anything is written; counters are never touched and the quantity is
// floored at zero in the statement itself.
func (r *SQLiteRepository) UpdateProduct(ctx context.Context, id string, upd store.ProductUpdate) (core.Product, error) {
	current, err := r.GetProduct(ctx, id)
	if err != nil {
		return core.Product{}, err
	}

	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if upd.Name != nil {
		current.Name = *upd.Name
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Quantity != nil {
		current.Quantity = core.ClampQuantity(*upd.Quantity)
		sets = append(sets, "quantity = MAX(?, 0)")
		args = append(args, *upd.Quantity)
	}
	if upd.Price != nil {
		current.Price = *upd.Price
		sets = append(sets, "price_cents = ?")
		args = append(args, upd.Price.Cents)
	}
	if upd.Category != nil {
		current.Category = *upd.Category
		sets = append(sets, "category = ?")
		args = append(args, *upd.Category)
	}
	if len(sets) == 0 {
		return current, nil
	}
	if err := current.Validate(); err != nil {
		return core.Product{}, err
	}
	args = append(args, id)

	res, err := r.db.ExecContext(ctx,
		"UPDATE products SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return core.Product{}, fmt.Errorf("update product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Product{}, store.ErrNotFound
	}
	return r.GetProduct(ctx, id)
}

func (r *SQLiteRepository) DeleteProduct(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM products WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) AddSalesCount(ctx context.Context, id string, delta int64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE products SET sales_count = sales_count + ? WHERE id = ?", delta, id)
	if err != nil {
		return fmt.Errorf("add sales count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) AddTotalSold(ctx context.Context, id string, delta core.Money) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE products SET total_sold_cents = total_sold_cents + ? WHERE id = ?", delta.Cents, id)
	if err != nil {
		return fmt.Errorf("add total sold: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name FROM categories ORDER BY created_at, name")
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, name string) (core.Category, error) {
	c := core.Category{Name: strings.TrimSpace(name)}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	c.ID = uuid.NewString()
	if _, err := r.db.ExecContext(ctx,
		"INSERT INTO categories (id, name) VALUES (?, ?)", c.ID, c.Name); err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) DeleteCategory(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM categories WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) AppendSaleRecord(ctx context.Context, rec core.SaleRecord) (core.SaleRecord, error) {
	if err := rec.Validate(); err != nil {
		return core.SaleRecord{}, err
	}
	rec.ID = uuid.NewString()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sales (id, date, product_name, quantity, total_price_cents)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Date, rec.ProductName, rec.Quantity, rec.TotalPrice.Cents)
	if err != nil {
		return core.SaleRecord{}, fmt.Errorf("append sale record: %w", err)
	}

	slog.InfoContext(ctx, "Sale record appended",
		"id", rec.ID,
		"product", rec.ProductName,
		"quantity", rec.Quantity,
		"total_cents", rec.TotalPrice.Cents)

	return rec, nil
}

func (r *SQLiteRepository) ListSaleRecords(ctx context.Context, since time.Time, limit int) ([]core.SaleRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, date, product_name, quantity, total_price_cents FROM sales")
	if err != nil {
		return nil, fmt.Errorf("list sale records: %w", err)
	}
	defer rows.Close()

	var out []core.SaleRecord
	for rows.Next() {
		var rec core.SaleRecord
		if err := rows.Scan(&rec.ID, &rec.Date, &rec.ProductName, &rec.Quantity, &rec.TotalPrice.Cents); err != nil {
			return nil, fmt.Errorf("scan sale record: %w", err)
		}
		// The since filter and the ordering happen here rather than in SQL:
		// records with malformed dates still reach the aggregator, which logs
		// and skips them, and mixed date formats (date-only next to RFC3339)
		// compare as timestamps rather than strings. The data set is one
		// operator's sales; a full scan is cheap.
		if !since.IsZero() {
			if t, ok := rec.Time(); ok && t.Before(since) {
				continue
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	core.SortSalesLatestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PendingLedgerSales lists unsynced sales oldest first. limit <= 0 returns
// the whole backlog.
func (r *SQLiteRepository) PendingLedgerSales(ctx context.Context, limit int) ([]core.SaleRecord, error) {
	query := `SELECT id, date, product_name, quantity, total_price_cents
		 FROM sales WHERE ledger_synced = 0 ORDER BY created_at`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pending ledger sales: %w", err)
	}
	defer rows.Close()

	var out []core.SaleRecord
	for rows.Next() {
		var rec core.SaleRecord
		if err := rows.Scan(&rec.ID, &rec.Date, &rec.ProductName, &rec.Quantity, &rec.TotalPrice.Cents); err != nil {
			return nil, fmt.Errorf("scan pending sale: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) MarkLedgerSynced(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE sales SET ledger_synced = 1, ledger_sync_error = 0 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("mark ledger synced: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	slog.InfoContext(ctx, "Sale marked as ledger-synced", "id", id)
	return nil
}

func (r *SQLiteRepository) MarkLedgerSyncError(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE sales SET ledger_sync_error = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("mark ledger sync error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	slog.WarnContext(ctx, "Sale marked with ledger sync error", "id", id)
	return nil
}

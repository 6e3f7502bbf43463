package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rl1809/order-intake/internal/core/domain"
	"github.com/rl1809/order-intake/internal/port"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// dialect captures what differs between the SQL engines. Queries are written
// with ? placeholders and rebound when the engine needs numbered ones.
type dialect struct {
	name                   string
	schema                 []string
	txOptions              *sql.TxOptions
	numberedPlaceholders   bool
	isUniqueViolation      func(error) bool
	isSerializationFailure func(error) bool
}

func (d *dialect) rebind(query string) string {
	if !d.numberedPlaceholders {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLAdapter implements port.DatabaseRepository on database/sql.
type SQLAdapter struct {
	db      *sql.DB
	dialect dialect
}

func newSQLAdapter(db *sql.DB, d dialect) *SQLAdapter {
	return &SQLAdapter{db: db, dialect: d}
}

// Migrate creates the schema if it does not exist yet.
func (a *SQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range a.dialect.schema {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", a.dialect.name, err)
		}
	}
	return nil
}

func (a *SQLAdapter) Close() error {
	return a.db.Close()
}

func (a *SQLAdapter) repos(q queryer) *sqlRepos {
	return &sqlRepos{q: q, d: &a.dialect}
}

func (a *SQLAdapter) WithinTx(ctx context.Context, fn func(r port.TxRepos) error) error {
	tx, err := a.db.BeginTx(ctx, a.dialect.txOptions)
	if err != nil {
		return a.mapTxErr(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback()

	if err := fn(a.repos(tx)); err != nil {
		return a.mapTxErr(err)
	}

	if err := tx.Commit(); err != nil {
		return a.mapTxErr(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// mapTxErr turns engine-level serialization failures into version conflicts
// so the caller can redrive the transaction.
func (a *SQLAdapter) mapTxErr(err error) error {
	if errors.Is(err, domain.ErrStockConflict) {
		return err
	}
	if a.dialect.isSerializationFailure != nil && a.dialect.isSerializationFailure(err) {
		return fmt.Errorf("%w: %v", domain.ErrVersionConflict, err)
	}
	return err
}

func (a *SQLAdapter) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	return a.repos(a.db).GetProduct(ctx, productID)
}

func (a *SQLAdapter) SaleExists(ctx context.Context, saleID string) (bool, error) {
	var count int
	err := a.db.QueryRowContext(ctx, a.dialect.rebind(`SELECT COUNT(1) FROM sales WHERE sale_id = ?`), saleID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query sale: %w", err)
	}
	return count > 0, nil
}

func (a *SQLAdapter) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	sales, err := a.loadSales(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if len(sales) == 0 {
		return nil, domain.ErrSaleNotFound
	}
	return &sales[0], nil
}

func (a *SQLAdapter) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return a.loadSales(ctx, "")
}

type lineKey struct {
	saleID string
	lineNo int
}

// loadSales reads headers, line items and deliveries. An empty saleID loads
// every sale.
func (a *SQLAdapter) loadSales(ctx context.Context, saleID string) ([]domain.Sale, error) {
	where, args := "", []any{}
	if saleID != "" {
		where, args = " WHERE sale_id = ?", []any{saleID}
	}

	rows, err := a.db.QueryContext(ctx, a.dialect.rebind(
		`SELECT sale_id, sale_timestamp, total FROM sales`+where+` ORDER BY id`), args...)
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	sales := make([]domain.Sale, 0)
	index := make(map[string]int)
	for rows.Next() {
		var (
			s  domain.Sale
			ts string
		)
		if err := rows.Scan(&s.SaleID, &ts, &s.Total); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		if s.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			rows.Close()
			return nil, fmt.Errorf("parse sale timestamp %q: %w", ts, err)
		}
		s.Items = []domain.SaleLineItem{}
		index[s.SaleID] = len(sales)
		sales = append(sales, s)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	if len(sales) == 0 {
		return sales, nil
	}

	deliveries, err := a.loadDeliveries(ctx, where, args)
	if err != nil {
		return nil, err
	}

	rows, err = a.db.QueryContext(ctx, a.dialect.rebind(
		`SELECT sale_id, line_no, product_id, quantity, price, immediate_qty
		FROM sale_line_items`+where+` ORDER BY sale_id, line_no`), args...)
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   string
			item domain.SaleLineItem
		)
		if err := rows.Scan(&id, &item.LineNo, &item.ProductID, &item.Quantity, &item.Price, &item.ImmediateQuantity); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		item.FutureDeliveries = deliveries[lineKey{id, item.LineNo}]
		if item.FutureDeliveries == nil {
			item.FutureDeliveries = []domain.Delivery{}
		}
		if i, ok := index[id]; ok {
			sales[i].Items = append(sales[i].Items, item)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (a *SQLAdapter) loadDeliveries(ctx context.Context, where string, args []any) (map[lineKey][]domain.Delivery, error) {
	rows, err := a.db.QueryContext(ctx, a.dialect.rebind(
		`SELECT sale_id, line_no, delivery_date, quantity
		FROM backorder_deliveries`+where+` ORDER BY sale_id, line_no, seq`), args...)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	out := make(map[lineKey][]domain.Delivery)
	for rows.Next() {
		var (
			key  lineKey
			date string
			d    domain.Delivery
		)
		if err := rows.Scan(&key.saleID, &key.lineNo, &date, &d.Quantity); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		if d.Date, err = time.Parse(domain.DateLayout, date); err != nil {
			return nil, fmt.Errorf("parse delivery date %q: %w", date, err)
		}
		out[key] = append(out[key], d)
	}
	return out, rows.Err()
}

func (a *SQLAdapter) ListAdjustments(ctx context.Context, productID int64) ([]domain.StockAdjustment, error) {
	rows, err := a.db.QueryContext(ctx, a.dialect.rebind(`
		SELECT product_id, delta, reason, quantity_after, created_at
		FROM stock_adjustments WHERE product_id = ? ORDER BY id`), productID)
	if err != nil {
		return nil, fmt.Errorf("query adjustments: %w", err)
	}
	defer rows.Close()

	adjustments := make([]domain.StockAdjustment, 0)
	for rows.Next() {
		var (
			adj domain.StockAdjustment
			at  string
		)
		if err := rows.Scan(&adj.ProductID, &adj.Delta, &adj.Reason, &adj.QuantityAfter, &at); err != nil {
			return nil, fmt.Errorf("scan adjustment: %w", err)
		}
		if adj.CreatedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("parse adjustment time %q: %w", at, err)
		}
		adjustments = append(adjustments, adj)
	}
	return adjustments, rows.Err()
}

// sqlRepos runs ledger and sale statements against a DB or a Tx.
type sqlRepos struct {
	q queryer
	d *dialect
}

func (r *sqlRepos) Ledger() port.StockLedger    { return r }
func (r *sqlRepos) Sales() port.SaleRepository { return r }

func (r *sqlRepos) GetProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	var p domain.Product
	err := r.q.QueryRowContext(ctx, r.d.rebind(`
		SELECT id, sku, name, quantity_on_hand, version
		FROM products WHERE id = ?`), productID,
	).Scan(&p.ID, &p.SKU, &p.Name, &p.QuantityOnHand, &p.Version)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

func (r *sqlRepos) ConditionalDecrement(ctx context.Context, productID int64, amount int, expectedVersion int64) error {
	result, err := r.q.ExecContext(ctx, r.d.rebind(`
		UPDATE products
		SET quantity_on_hand = quantity_on_hand - ?, version = version + 1
		WHERE id = ? AND version = ? AND quantity_on_hand >= ?`),
		amount, productID, expectedVersion, amount,
	)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	return r.checkApplied(ctx, result, productID, expectedVersion)
}

func (r *sqlRepos) ConditionalAdjust(ctx context.Context, productID int64, delta int, expectedVersion int64) error {
	result, err := r.q.ExecContext(ctx, r.d.rebind(`
		UPDATE products
		SET quantity_on_hand = quantity_on_hand + ?, version = version + 1
		WHERE id = ? AND version = ? AND quantity_on_hand + ? >= 0`),
		delta, productID, expectedVersion, delta,
	)
	if err != nil {
		return fmt.Errorf("adjust stock: %w", err)
	}
	return r.checkApplied(ctx, result, productID, expectedVersion)
}

// checkApplied classifies a conditional update that matched no row.
func (r *sqlRepos) checkApplied(ctx context.Context, result sql.Result, productID int64, expectedVersion int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	current, err := r.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	return domain.ErrInsufficientStock
}

func (r *sqlRepos) CreateProduct(ctx context.Context, product domain.Product) error {
	_, err := r.q.ExecContext(ctx, r.d.rebind(`
		INSERT INTO products (id, sku, name, quantity_on_hand, version)
		VALUES (?, ?, ?, ?, ?)`),
		product.ID, product.SKU, product.Name, product.QuantityOnHand, product.Version,
	)
	if err != nil {
		if r.d.isUniqueViolation(err) {
			return domain.ErrProductExists
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *sqlRepos) RecordAdjustment(ctx context.Context, adj domain.StockAdjustment) error {
	_, err := r.q.ExecContext(ctx, r.d.rebind(`
		INSERT INTO stock_adjustments (product_id, delta, reason, quantity_after, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		adj.ProductID, adj.Delta, adj.Reason, adj.QuantityAfter, adj.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert adjustment: %w", err)
	}
	return nil
}

func (r *sqlRepos) InsertSale(ctx context.Context, sale domain.Sale) error {
	_, err := r.q.ExecContext(ctx, r.d.rebind(`
		INSERT INTO sales (sale_id, sale_timestamp, total) VALUES (?, ?, ?)`),
		sale.SaleID, sale.Timestamp.UTC().Format(time.RFC3339Nano), sale.Total.String(),
	)
	if err != nil {
		if r.d.isUniqueViolation(err) {
			return domain.ErrSaleExists
		}
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

func (r *sqlRepos) InsertLineItems(ctx context.Context, saleID string, items []domain.SaleLineItem) error {
	for _, item := range items {
		_, err := r.q.ExecContext(ctx, r.d.rebind(`
			INSERT INTO sale_line_items (sale_id, line_no, product_id, quantity, price, immediate_qty)
			VALUES (?, ?, ?, ?, ?, ?)`),
			saleID, item.LineNo, item.ProductID, item.Quantity, item.Price.String(), item.ImmediateQuantity,
		)
		if err != nil {
			return fmt.Errorf("insert line item %d: %w", item.LineNo, err)
		}

		for seq, d := range item.FutureDeliveries {
			_, err := r.q.ExecContext(ctx, r.d.rebind(`
				INSERT INTO backorder_deliveries (sale_id, line_no, seq, delivery_date, quantity)
				VALUES (?, ?, ?, ?, ?)`),
				saleID, item.LineNo, seq+1, d.DateString(), d.Quantity,
			)
			if err != nil {
				return fmt.Errorf("insert delivery %d of line %d: %w", seq+1, item.LineNo, err)
			}
		}
	}
	return nil
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS products (
			id INTEGER PRIMARY KEY,
			sku TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			quantity_on_hand INTEGER NOT NULL DEFAULT 0 CHECK (quantity_on_hand >= 0),
			version INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sale_id TEXT NOT NULL UNIQUE,
			sale_timestamp TEXT NOT NULL,
			total TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sale_line_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sale_id TEXT NOT NULL REFERENCES sales (sale_id),
			line_no INTEGER NOT NULL,
			product_id INTEGER NOT NULL REFERENCES products (id),
			quantity INTEGER NOT NULL,
			price TEXT NOT NULL,
			immediate_qty INTEGER NOT NULL,
			UNIQUE (sale_id, line_no)
		)`,
		`CREATE TABLE IF NOT EXISTS backorder_deliveries (
			sale_id TEXT NOT NULL,
			line_no INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			delivery_date TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			PRIMARY KEY (sale_id, line_no, seq),
			FOREIGN KEY (sale_id, line_no) REFERENCES sale_line_items (sale_id, line_no)
		)`,
		`CREATE TABLE IF NOT EXISTS stock_adjustments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			product_id INTEGER NOT NULL,
			delta INTEGER NOT NULL,
			reason TEXT NOT NULL,
			quantity_after INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_adjustments_product
			ON stock_adjustments (product_id)`,
	},
	isUniqueViolation: func(err error) bool {
		var se sqlite3.Error
		if !errors.As(err, &se) {
			return false
		}
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	},
	isSerializationFailure: func(err error) bool {
		var se sqlite3.Error
		if !errors.As(err, &se) {
			return false
		}
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	},
}

// OpenSQLite opens (or creates) the database at path and migrates it. Write
// transactions start with BEGIN IMMEDIATE so concurrent writers queue on the
// busy timeout instead of failing at commit. Use ":memory:" for a throwaway
// database.
func OpenSQLite(ctx context.Context, path string) (*SQLAdapter, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	adapter := newSQLAdapter(db, sqliteDialect)
	if err := adapter.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return adapter, nil
}

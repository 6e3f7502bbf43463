package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

var postgresDialect = dialect{
	name: "postgres",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS products (
			id BIGINT PRIMARY KEY,
			sku TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			quantity_on_hand INTEGER NOT NULL DEFAULT 0 CHECK (quantity_on_hand >= 0),
			version BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS sales (
			id BIGSERIAL PRIMARY KEY,
			sale_id TEXT NOT NULL UNIQUE,
			sale_timestamp TEXT NOT NULL,
			total NUMERIC(18,4) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sale_line_items (
			id BIGSERIAL PRIMARY KEY,
			sale_id TEXT NOT NULL REFERENCES sales (sale_id),
			line_no INTEGER NOT NULL,
			product_id BIGINT NOT NULL REFERENCES products (id),
			quantity INTEGER NOT NULL,
			price NUMERIC(18,4) NOT NULL,
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
			id BIGSERIAL PRIMARY KEY,
			product_id BIGINT NOT NULL,
			delta INTEGER NOT NULL,
			reason TEXT NOT NULL,
			quantity_after INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_adjustments_product
			ON stock_adjustments (product_id)`,
	},
	txOptions:              &sql.TxOptions{Isolation: sql.LevelSerializable},
	numberedPlaceholders:   true,
	isUniqueViolation:      func(err error) bool { return isPgError(err, pgUniqueViolation) },
	isSerializationFailure: func(err error) bool { return isPgError(err, pgSerializationFailure, pgDeadlockDetected) },
}

func isPgError(err error, codes ...string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	for _, c := range codes {
		if pgErr.Code == c {
			return true
		}
	}
	return false
}

// OpenPostgres connects through the pgx stdlib driver and migrates the schema.
func OpenPostgres(ctx context.Context, databaseURL string) (*SQLAdapter, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	adapter := newSQLAdapter(db, postgresDialect)
	if err := adapter.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return adapter, nil
}

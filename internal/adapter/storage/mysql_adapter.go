package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS products (
			id BIGINT NOT NULL PRIMARY KEY,
			sku VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL,
			quantity_on_hand INT NOT NULL DEFAULT 0,
			version BIGINT NOT NULL DEFAULT 0,
			UNIQUE KEY uq_products_sku (sku),
			CONSTRAINT chk_products_qty CHECK (quantity_on_hand >= 0)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS sales (
			id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			sale_id VARCHAR(128) NOT NULL,
			sale_timestamp VARCHAR(40) NOT NULL,
			total DECIMAL(18,4) NOT NULL,
			UNIQUE KEY uq_sales_sale_id (sale_id)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS sale_line_items (
			id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			sale_id VARCHAR(128) NOT NULL,
			line_no INT NOT NULL,
			product_id BIGINT NOT NULL,
			quantity INT NOT NULL,
			price DECIMAL(18,4) NOT NULL,
			immediate_qty INT NOT NULL,
			UNIQUE KEY uq_line_items_sale_line (sale_id, line_no),
			CONSTRAINT fk_line_items_sale FOREIGN KEY (sale_id) REFERENCES sales (sale_id),
			CONSTRAINT fk_line_items_product FOREIGN KEY (product_id) REFERENCES products (id)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS backorder_deliveries (
			sale_id VARCHAR(128) NOT NULL,
			line_no INT NOT NULL,
			seq INT NOT NULL,
			delivery_date VARCHAR(10) NOT NULL,
			quantity INT NOT NULL,
			PRIMARY KEY (sale_id, line_no, seq),
			CONSTRAINT fk_deliveries_line FOREIGN KEY (sale_id, line_no) REFERENCES sale_line_items (sale_id, line_no)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS stock_adjustments (
			id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			product_id BIGINT NOT NULL,
			delta INT NOT NULL,
			reason VARCHAR(255) NOT NULL,
			quantity_after INT NOT NULL,
			created_at VARCHAR(40) NOT NULL,
			KEY idx_stock_adjustments_product (product_id)
		) ENGINE=InnoDB`,
	},
	txOptions:              &sql.TxOptions{Isolation: sql.LevelSerializable},
	isUniqueViolation:      func(err error) bool { return isMySQLError(err, mysqlErrDuplicateEntry) },
	isSerializationFailure: func(err error) bool { return isMySQLError(err, mysqlErrDeadlock, mysqlErrLockWaitTimeout) },
}

func isMySQLError(err error, numbers ...uint16) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	for _, n := range numbers {
		if me.Number == n {
			return true
		}
	}
	return false
}

// NewMySQLAdapter wraps an open MySQL pool. The schema is not created; call
// Migrate or use OpenMySQL.
func NewMySQLAdapter(db *sql.DB) *SQLAdapter {
	return newSQLAdapter(db, mysqlDialect)
}

// OpenMySQL connects, configures the pool and migrates the schema.
func OpenMySQL(ctx context.Context, dsn string) (*SQLAdapter, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	adapter := NewMySQLAdapter(db)
	if err := adapter.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return adapter, nil
}

package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteAdapter(t *testing.T) *SQLAdapter {
	t.Helper()
	adapter, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })
	return adapter
}

func TestSQLiteAdapter(t *testing.T) {
	testRepository(t, newSQLiteAdapter(t))
}

func TestSQLiteAdapter_InMemory(t *testing.T) {
	adapter, err := OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	defer adapter.Close()

	testRepository(t, adapter)
}

func TestSQLiteAdapter_MigrateIsIdempotent(t *testing.T) {
	adapter := newSQLiteAdapter(t)
	assert.NoError(t, adapter.Migrate(context.Background()))
}

func TestDialectRebind(t *testing.T) {
	query := `UPDATE products SET quantity_on_hand = quantity_on_hand - ? WHERE id = ? AND version = ?`

	assert.Equal(t, query, sqliteDialect.rebind(query))
	assert.Equal(t, query, mysqlDialect.rebind(query))
	assert.Equal(t,
		`UPDATE products SET quantity_on_hand = quantity_on_hand - $1 WHERE id = $2 AND version = $3`,
		postgresDialect.rebind(query))
}

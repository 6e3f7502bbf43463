package storage

import (
	"context"
	"os"
	"testing"
)

func getPostgresAdapter(t *testing.T) *SQLAdapter {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	adapter, err := OpenPostgres(context.Background(), url)
	if err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}
	return adapter
}

func TestPostgresAdapter(t *testing.T) {
	adapter := getPostgresAdapter(t)
	defer adapter.Close()

	testRepository(t, adapter)
}

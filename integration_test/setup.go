//go:build integration

package integration_test

import (
	"context"
	"os"
	"testing"

	_ "github.com/lib/pq"

	"github.com/flyingrobots/wesley-sub010/db"
)

// getTestPool returns a connection pool for integration tests.
// It reads the DATABASE_URL environment variable and skips the test if not set.
func getTestPool(t *testing.T, maxConns int) *db.SQLPool {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	pool, err := db.Open(context.Background(), "postgres", dbURL, maxConns)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

// setupTable creates a scratch table for executor tests and registers its
// teardown.
func setupTable(t *testing.T, pool *db.SQLPool, name, ddl string) {
	t.Helper()
	ctx := context.Background()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("failed to acquire connection: %v", err)
	}
	defer func() { _ = pool.Release(conn) }()

	if _, err := conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		t.Fatalf("failed to drop leftover table %s: %v", name, err)
	}
	if _, err := conn.ExecContext(ctx, ddl); err != nil {
		t.Fatalf("failed to create table %s: %v", name, err)
	}

	t.Cleanup(func() {
		conn, err := pool.Acquire(context.Background())
		if err != nil {
			t.Logf("warning: cleanup acquire failed: %v", err)
			return
		}
		defer func() { _ = pool.Release(conn) }()
		if _, err := conn.ExecContext(context.Background(), "DROP TABLE IF EXISTS "+name); err != nil {
			t.Logf("warning: failed to drop table %s: %v", name, err)
		}
	})
}

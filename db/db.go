// Package db defines the minimal database surface the orchestration core
// consumes: a connection exposing query/exec and a pool exposing
// acquire/release with utilization stats. The concrete implementation wraps
// database/sql; tests use the mock implementations in this package.
package db

import "context"

// Row is a single-row query result.
type Row interface {
	Scan(dest ...any) error
}

// Rows is a multi-row query result.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Conn is a single database session. Advisory locks are owned by the session,
// so callers that acquire locks must run the matching release on the same Conn.
type Conn interface {
	// ExecContext runs a statement and returns the number of rows affected.
	ExecContext(ctx context.Context, query string, args ...any) (int64, error)

	// QueryRowContext runs a query expected to return at most one row.
	QueryRowContext(ctx context.Context, query string, args ...any) Row

	// QueryContext runs a query returning multiple rows.
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
}

// PoolStats reports connection pool utilization.
type PoolStats struct {
	// Active is the number of connections currently checked out.
	Active int

	// Total is the pool's connection capacity.
	Total int
}

// Utilization returns Active/Total, or 0 when Total is unknown.
func (s PoolStats) Utilization() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Active) / float64(s.Total)
}

// Pool hands out database sessions. Implementations must be safe for
// concurrent use.
type Pool interface {
	// Acquire checks out a session, blocking until one is available or ctx
	// is done.
	Acquire(ctx context.Context) (Conn, error)

	// Release returns a session to the pool.
	Release(conn Conn) error

	// Stats returns current pool utilization.
	Stats() PoolStats
}

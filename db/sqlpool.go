package db

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLPool implements Pool over a *sql.DB. Acquire pins a dedicated *sql.Conn
// so that session-scoped state (advisory locks, lock_timeout) survives across
// statements on the same checked-out connection.
type SQLPool struct {
	db *sql.DB
}

// Compile-time check that SQLPool implements Pool.
var _ Pool = (*SQLPool)(nil)

// NewSQLPool wraps an opened *sql.DB.
func NewSQLPool(database *sql.DB) *SQLPool {
	return &SQLPool{db: database}
}

// Open opens a database/sql handle for the given driver and DSN, applies the
// connection ceiling, and verifies connectivity with a ping.
func Open(ctx context.Context, driver, dsn string, maxConns int) (*SQLPool, error) {
	database, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if maxConns > 0 {
		database.SetMaxOpenConns(maxConns)
	}

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLPool{db: database}, nil
}

// Acquire checks out a dedicated connection from the underlying pool.
func (p *SQLPool) Acquire(ctx context.Context) (Conn, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &sqlConn{conn: conn}, nil
}

// Release returns a connection previously handed out by Acquire.
// Releasing a Conn that did not come from this pool is an error.
func (p *SQLPool) Release(conn Conn) error {
	sc, ok := conn.(*sqlConn)
	if !ok {
		return fmt.Errorf("release: connection does not belong to this pool")
	}
	if err := sc.conn.Close(); err != nil {
		return fmt.Errorf("failed to release connection: %w", err)
	}
	return nil
}

// Stats reports pool utilization. When no connection ceiling is configured
// the open-connection count stands in for capacity so utilization stays
// meaningful.
func (p *SQLPool) Stats() PoolStats {
	s := p.db.Stats()
	total := s.MaxOpenConnections
	if total <= 0 {
		total = s.OpenConnections
	}
	return PoolStats{Active: s.InUse, Total: total}
}

// Close closes the underlying database handle.
func (p *SQLPool) Close() error {
	return p.db.Close()
}

// sqlConn adapts *sql.Conn to the Conn interface.
type sqlConn struct {
	conn *sql.Conn
}

func (c *sqlConn) ExecContext(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	// Some statements (DDL in particular) report no row count.
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (c *sqlConn) QueryRowContext(ctx context.Context, query string, args ...any) Row {
	return c.conn.QueryRowContext(ctx, query, args...)
}

func (c *sqlConn) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

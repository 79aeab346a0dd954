package db

import (
	"context"
	"reflect"
	"sync"
)

// MockConn is a configurable mock implementation of Conn for use in tests.
// It allows setting up expected return values, tracking statements, and
// injecting errors for testing error paths.
type MockConn struct {
	mu sync.Mutex

	// ExecContextFunc is called by ExecContext if set.
	ExecContextFunc func(ctx context.Context, query string, args ...any) (int64, error)

	// QueryRowContextFunc is called by QueryRowContext if set.
	QueryRowContextFunc func(ctx context.Context, query string, args ...any) Row

	// QueryContextFunc is called by QueryContext if set.
	QueryContextFunc func(ctx context.Context, query string, args ...any) (Rows, error)

	// Call tracking
	ExecCalls     []StatementCall
	QueryRowCalls []StatementCall
	QueryCalls    []StatementCall
}

// StatementCall records one statement issued against a MockConn.
type StatementCall struct {
	Query string
	Args  []any
}

// NewMockConn creates a new mock connection.
func NewMockConn() *MockConn {
	return &MockConn{}
}

// ExecContext implements Conn.
func (m *MockConn) ExecContext(ctx context.Context, query string, args ...any) (int64, error) {
	m.mu.Lock()
	m.ExecCalls = append(m.ExecCalls, StatementCall{Query: query, Args: args})
	m.mu.Unlock()

	if m.ExecContextFunc != nil {
		return m.ExecContextFunc(ctx, query, args...)
	}
	return 0, nil
}

// QueryRowContext implements Conn.
func (m *MockConn) QueryRowContext(ctx context.Context, query string, args ...any) Row {
	m.mu.Lock()
	m.QueryRowCalls = append(m.QueryRowCalls, StatementCall{Query: query, Args: args})
	m.mu.Unlock()

	if m.QueryRowContextFunc != nil {
		return m.QueryRowContextFunc(ctx, query, args...)
	}
	return FakeRow{}
}

// QueryContext implements Conn.
func (m *MockConn) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	m.mu.Lock()
	m.QueryCalls = append(m.QueryCalls, StatementCall{Query: query, Args: args})
	m.mu.Unlock()

	if m.QueryContextFunc != nil {
		return m.QueryContextFunc(ctx, query, args...)
	}
	return &FakeRows{}, nil
}

// Statements returns the queries issued via ExecContext in order.
func (m *MockConn) Statements() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.ExecCalls))
	for i, c := range m.ExecCalls {
		out[i] = c.Query
	}
	return out
}

// FakeRow is a Row yielding fixed values. Values are assigned into scan
// destinations by reflection, so destination types must match.
type FakeRow struct {
	Values []any
	Err    error
}

// Scan implements Row.
func (r FakeRow) Scan(dest ...any) error {
	if r.Err != nil {
		return r.Err
	}
	for i, d := range dest {
		if i >= len(r.Values) {
			break
		}
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.Values[i]))
	}
	return nil
}

// FakeRows is a Rows yielding a fixed set of rows.
type FakeRows struct {
	Rows    [][]any
	ScanErr error

	cursor int
}

// Next implements Rows.
func (r *FakeRows) Next() bool {
	if r.cursor >= len(r.Rows) {
		return false
	}
	r.cursor++
	return true
}

// Scan implements Rows.
func (r *FakeRows) Scan(dest ...any) error {
	if r.ScanErr != nil {
		return r.ScanErr
	}
	row := r.Rows[r.cursor-1]
	for i, d := range dest {
		if i >= len(row) {
			break
		}
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(row[i]))
	}
	return nil
}

// Err implements Rows.
func (r *FakeRows) Err() error { return nil }

// Close implements Rows.
func (r *FakeRows) Close() error { return nil }

// MockPool is a configurable mock implementation of Pool for use in tests.
type MockPool struct {
	mu sync.Mutex

	// AcquireFunc is called by Acquire if set.
	AcquireFunc func(ctx context.Context) (Conn, error)

	// ReleaseFunc is called by Release if set.
	ReleaseFunc func(conn Conn) error

	// StatsFunc is called by Stats if set.
	StatsFunc func() PoolStats

	// Conn is the connection handed out by Acquire when AcquireFunc is unset.
	Conn *MockConn

	// Call tracking
	AcquireCalls int
	ReleaseCalls int
}

// NewMockPool creates a mock pool handing out a single shared MockConn.
func NewMockPool() *MockPool {
	return &MockPool{Conn: NewMockConn()}
}

// Acquire implements Pool.
func (m *MockPool) Acquire(ctx context.Context) (Conn, error) {
	m.mu.Lock()
	m.AcquireCalls++
	m.mu.Unlock()

	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx)
	}
	return m.Conn, nil
}

// Release implements Pool.
func (m *MockPool) Release(conn Conn) error {
	m.mu.Lock()
	m.ReleaseCalls++
	m.mu.Unlock()

	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(conn)
	}
	return nil
}

// Stats implements Pool.
func (m *MockPool) Stats() PoolStats {
	if m.StatsFunc != nil {
		return m.StatsFunc()
	}
	return PoolStats{Active: 0, Total: 10}
}

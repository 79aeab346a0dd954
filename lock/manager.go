// Package lock coordinates PostgreSQL advisory locks: mapping string
// identifiers to numeric keys, acquiring and releasing session locks with
// timeouts, and tracking which session holds what.
//
// The in-memory tables are a cache. Advisory locks are owned by the database
// session, so the cache must never be trusted after a connection is recycled
// without an explicit release; IsHeld and SessionLocks query the lock catalog
// for the authoritative answer.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	orchestrator "github.com/flyingrobots/wesley-sub010"
	"github.com/flyingrobots/wesley-sub010/db"
	"github.com/flyingrobots/wesley-sub010/metrics"
)

// Type is the mode a lock is held in.
type Type string

const (
	// TypeExclusive is the exclusive advisory lock mode.
	TypeExclusive Type = "exclusive"

	// TypeShared is the shared advisory lock mode.
	TypeShared Type = "shared"
)

// Record describes one held advisory lock as tracked by the manager.
type Record struct {
	// Key is the numeric advisory lock key (combined form for two-part keys).
	Key int64

	// Identifier is the caller-supplied string the key was derived from.
	Identifier string

	// Type is the held mode.
	Type Type

	// SessionID identifies the manager session holding the lock.
	SessionID string

	// AcquiredAt is when the first hold was granted.
	AcquiredAt time.Time

	// Holds counts reentrant acquisitions. Advisory locks stack per session
	// on the server, so the record is released only when Holds reaches zero.
	Holds int
}

// Options configures a single lock operation.
type Options struct {
	// Timeout bounds a blocking acquire (default: manager DefaultTimeout).
	Timeout time.Duration

	// TwoPart selects the two-argument advisory lock form.
	TwoPart bool

	// Namespace overrides the manager namespace for two-part keys.
	Namespace string
}

// ReleaseResult reports the outcome of a release.
type ReleaseResult struct {
	// Released is false when the lock was not held by this session.
	Released bool

	// HeldFor is how long the lock had been held, zero if not held.
	HeldFor time.Duration
}

// SessionLock is one advisory lock row from the server's lock catalog.
type SessionLock struct {
	Key1    int64
	Key2    int64
	TwoPart bool
	Mode    string
	Granted bool
}

// Stats is a point-in-time summary of the manager's in-memory tracking.
type Stats struct {
	// HeldLocks is the number of distinct lock keys currently tracked.
	HeldLocks int

	// LongestHeld is the age of the oldest tracked lock.
	LongestHeld time.Duration
}

// Config holds configuration for the lock Manager.
type Config struct {
	// Namespace prefixes every single-part key derivation (default: "wesley").
	Namespace string

	// DefaultTimeout bounds blocking acquires when Options.Timeout is zero
	// (default: 30s).
	DefaultTimeout time.Duration

	// PollInterval is how often a blocking acquire retries (default: 100ms).
	PollInterval time.Duration

	// Logger is for observability (optional).
	Logger orchestrator.Logger

	// Collector records Prometheus metrics (optional; nil records nothing).
	Collector *metrics.Collector
}

// Manager acquires and releases advisory locks and tracks held locks per
// session. All state is instance-scoped; independent managers can coexist in
// one process.
type Manager struct {
	config    Config
	sessionID string

	mu          sync.Mutex
	activeLocks map[string]map[int64]struct{} // sessionID -> held keys
	lockMeta    map[int64]*Record             // key -> record
}

// New creates a new Manager with the given configuration.
// Applies default values for Namespace, DefaultTimeout and PollInterval if zero.
func New(cfg Config) *Manager {
	if cfg.Namespace == "" {
		cfg.Namespace = "wesley"
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}

	return &Manager{
		config:      cfg,
		sessionID:   uuid.New().String(),
		activeLocks: make(map[string]map[int64]struct{}),
		lockMeta:    make(map[int64]*Record),
	}
}

// SessionID returns the manager's session identifier.
func (m *Manager) SessionID() string { return m.sessionID }

// resolveKey computes the tracking key and the SQL argument list for an
// operation under the given options.
func (m *Manager) resolveKey(identifier string, opts Options) (int64, []any) {
	if opts.TwoPart {
		ns := opts.Namespace
		if ns == "" {
			ns = m.config.Namespace
		}
		pair := m.GenerateTwoPartKey(ns, identifier)
		return pair.Combined(), []any{pair.Key1, pair.Key2}
	}
	key := m.GenerateKey(identifier)
	return key, []any{key}
}

// tryLockFn returns the non-blocking advisory lock function call for the
// mode and argument arity. Blocking acquires poll the try variant so the
// timeout stays under the manager's control rather than the server's.
func tryLockFn(typ Type, twoPart bool) string {
	name := "pg_try_advisory_lock"
	if typ == TypeShared {
		name += "_shared"
	}
	if twoPart {
		return name + "($1, $2)"
	}
	return name + "($1)"
}

func unlockFn(typ Type, twoPart bool) string {
	name := "pg_advisory_unlock"
	if typ == TypeShared {
		name += "_shared"
	}
	if twoPart {
		return name + "($1, $2)"
	}
	return name + "($1)"
}

// AcquireExclusive blocks until the exclusive advisory lock for identifier is
// granted, bounded by the configured timeout. A *TimeoutError is returned if
// the deadline expires; any other failure is wrapped in *Error.
//
// Re-acquiring a lock this session already holds succeeds immediately
// (advisory locks stack per session) and increments the record's hold count.
func (m *Manager) AcquireExclusive(ctx context.Context, conn db.Conn, identifier string, opts Options) error {
	return m.acquire(ctx, conn, identifier, TypeExclusive, opts)
}

// AcquireShared is the shared-mode variant of AcquireExclusive.
func (m *Manager) AcquireShared(ctx context.Context, conn db.Conn, identifier string, opts Options) error {
	return m.acquire(ctx, conn, identifier, TypeShared, opts)
}

func (m *Manager) acquire(ctx context.Context, conn db.Conn, identifier string, typ Type, opts Options) error {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = m.config.DefaultTimeout
	}
	key, args := m.resolveKey(identifier, opts)
	query := "SELECT " + tryLockFn(typ, opts.TwoPart)

	deadline := time.Now().Add(timeout)
	for {
		var acquired bool
		if err := conn.QueryRowContext(ctx, query, args...).Scan(&acquired); err != nil {
			return &Error{Op: "acquire", Identifier: identifier, Err: err}
		}
		if acquired {
			m.register(key, identifier, typ)
			m.config.Collector.IncLockAcquisition(string(typ))
			if m.config.Logger != nil {
				m.config.Logger.Debug(ctx, "advisory lock acquired",
					"identifier", identifier, "key", key, "type", string(typ))
			}
			return nil
		}

		if time.Now().After(deadline) {
			m.config.Collector.IncLockTimeout()
			if m.config.Logger != nil {
				m.config.Logger.Warn(ctx, "advisory lock acquire timed out",
					"identifier", identifier, "key", key, "timeout", timeout)
			}
			return &TimeoutError{Key: key, Timeout: timeout}
		}

		select {
		case <-ctx.Done():
			return &Error{Op: "acquire", Identifier: identifier, Err: ctx.Err()}
		case <-time.After(m.config.PollInterval):
		}
	}
}

// TryAcquireExclusive attempts the exclusive lock without blocking and
// reports whether it was granted.
func (m *Manager) TryAcquireExclusive(ctx context.Context, conn db.Conn, identifier string, opts Options) (bool, error) {
	return m.tryAcquire(ctx, conn, identifier, TypeExclusive, opts)
}

// TryAcquireShared attempts the shared lock without blocking and reports
// whether it was granted.
func (m *Manager) TryAcquireShared(ctx context.Context, conn db.Conn, identifier string, opts Options) (bool, error) {
	return m.tryAcquire(ctx, conn, identifier, TypeShared, opts)
}

func (m *Manager) tryAcquire(ctx context.Context, conn db.Conn, identifier string, typ Type, opts Options) (bool, error) {
	key, args := m.resolveKey(identifier, opts)
	query := "SELECT " + tryLockFn(typ, opts.TwoPart)

	var acquired bool
	if err := conn.QueryRowContext(ctx, query, args...).Scan(&acquired); err != nil {
		return false, &Error{Op: "try-acquire", Identifier: identifier, Err: err}
	}
	if acquired {
		m.register(key, identifier, typ)
		m.config.Collector.IncLockAcquisition(string(typ))
	}
	return acquired, nil
}

// Release releases one hold on the lock for identifier. Releasing a lock that
// is not held returns Released=false without error. The result carries how
// long the lock had been held.
func (m *Manager) Release(ctx context.Context, conn db.Conn, identifier string, opts Options) (ReleaseResult, error) {
	key, args := m.resolveKey(identifier, opts)

	m.mu.Lock()
	rec := m.lockMeta[key]
	typ := TypeExclusive
	if rec != nil {
		typ = rec.Type
	}
	m.mu.Unlock()

	query := "SELECT " + unlockFn(typ, opts.TwoPart)

	var released bool
	if err := conn.QueryRowContext(ctx, query, args...).Scan(&released); err != nil {
		return ReleaseResult{}, &Error{Op: "release", Identifier: identifier, Err: err}
	}

	// With no record the mode is unknown (tracking can be lost when a pooled
	// connection is recycled). A false result from the exclusive form may mean
	// the session holds the lock shared, so try that form before reporting
	// not-held.
	if !released && rec == nil {
		query = "SELECT " + unlockFn(TypeShared, opts.TwoPart)
		if err := conn.QueryRowContext(ctx, query, args...).Scan(&released); err != nil {
			return ReleaseResult{}, &Error{Op: "release", Identifier: identifier, Err: err}
		}
	}

	result := ReleaseResult{Released: released}
	if released {
		result.HeldFor = m.unregister(key)
		if m.config.Logger != nil {
			m.config.Logger.Debug(ctx, "advisory lock released",
				"identifier", identifier, "key", key, "heldFor", result.HeldFor)
		}
	}
	return result, nil
}

// ReleaseAll releases every advisory lock held by the session and clears all
// tracking for it. Used for cleanup and rollback paths.
func (m *Manager) ReleaseAll(ctx context.Context, conn db.Conn) error {
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock_all()"); err != nil {
		return &Error{Op: "release-all", Identifier: "*", Err: err}
	}

	m.mu.Lock()
	for key := range m.activeLocks[m.sessionID] {
		delete(m.lockMeta, key)
	}
	delete(m.activeLocks, m.sessionID)
	m.mu.Unlock()

	if m.config.Logger != nil {
		m.config.Logger.Info(ctx, "released all session locks", "sessionID", m.sessionID)
	}
	return nil
}

// IsHeld checks the server's lock catalog for the key, independent of the
// in-memory cache. This is the authoritative check.
func (m *Manager) IsHeld(ctx context.Context, conn db.Conn, identifier string, opts Options) (bool, error) {
	key, _ := m.resolveKey(identifier, opts)

	classid := uint32(uint64(key) >> 32)
	objid := uint32(uint64(key))
	objsubid := 1
	if opts.TwoPart {
		objsubid = 2
	}

	const query = `
		SELECT EXISTS (
			SELECT 1 FROM pg_locks
			WHERE locktype = 'advisory' AND classid = $1 AND objid = $2 AND objsubid = $3
		)
	`

	var held bool
	err := conn.QueryRowContext(ctx, query, int64(classid), int64(objid), objsubid).Scan(&held)
	if err != nil {
		return false, &Error{Op: "is-held", Identifier: identifier, Err: err}
	}
	return held, nil
}

// SessionLocks lists the advisory locks held by the current database session,
// read directly from the lock catalog.
func (m *Manager) SessionLocks(ctx context.Context, conn db.Conn) ([]SessionLock, error) {
	const query = `
		SELECT classid, objid, objsubid, mode, granted
		FROM pg_locks
		WHERE locktype = 'advisory' AND pid = pg_backend_pid()
	`

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, &Error{Op: "session-locks", Identifier: "*", Err: err}
	}
	defer func() { _ = rows.Close() }()

	var locks []SessionLock
	for rows.Next() {
		var l SessionLock
		var objsubid int64
		if err := rows.Scan(&l.Key1, &l.Key2, &objsubid, &l.Mode, &l.Granted); err != nil {
			return nil, &Error{Op: "session-locks", Identifier: "*", Err: err}
		}
		l.TwoPart = objsubid == 2
		locks = append(locks, l)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "session-locks", Identifier: "*", Err: err}
	}

	return locks, nil
}

// Details returns a snapshot of every tracked lock record.
func (m *Manager) Details() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Record, 0, len(m.lockMeta))
	for _, rec := range m.lockMeta {
		out = append(out, *rec)
	}
	return out
}

// Statistics summarizes the in-memory tracking tables.
func (m *Manager) Statistics() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{HeldLocks: len(m.lockMeta)}
	now := time.Now()
	for _, rec := range m.lockMeta {
		if age := now.Sub(rec.AcquiredAt); age > stats.LongestHeld {
			stats.LongestHeld = age
		}
	}
	return stats
}

func (m *Manager) register(key int64, identifier string, typ Type) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.lockMeta[key]; ok {
		rec.Holds++
		return
	}

	m.lockMeta[key] = &Record{
		Key:        key,
		Identifier: identifier,
		Type:       typ,
		SessionID:  m.sessionID,
		AcquiredAt: time.Now(),
		Holds:      1,
	}
	if m.activeLocks[m.sessionID] == nil {
		m.activeLocks[m.sessionID] = make(map[int64]struct{})
	}
	m.activeLocks[m.sessionID][key] = struct{}{}
}

// unregister drops one hold and returns the held duration once fully released.
func (m *Manager) unregister(key int64) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.lockMeta[key]
	if !ok {
		return 0
	}

	held := time.Since(rec.AcquiredAt)
	rec.Holds--
	if rec.Holds <= 0 {
		delete(m.lockMeta, key)
		delete(m.activeLocks[rec.SessionID], key)
	}
	return held
}

// String makes lock records readable in logs.
func (r Record) String() string {
	return fmt.Sprintf("%s(%d) %s holds=%d", r.Identifier, r.Key, r.Type, r.Holds)
}

package db

import (
	"errors"

	"github.com/lib/pq"
)

// PostgreSQL error codes the executor reacts to.
const (
	// CodeDeadlockDetected is raised when the server chose this session as a
	// deadlock victim. Retryable.
	CodeDeadlockDetected = "40P01"

	// CodeLockNotAvailable is raised when lock_timeout expires or NOWAIT
	// fails. Not retryable by the executor; surfaced to the caller.
	CodeLockNotAvailable = "55P03"
)

// IsDeadlock reports whether err is the database's deadlock signal.
func IsDeadlock(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == CodeDeadlockDetected
	}
	return false
}

// IsLockNotAvailable reports whether err indicates a lock wait that exceeded
// lock_timeout.
func IsLockNotAvailable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == CodeLockNotAvailable
	}
	return false
}

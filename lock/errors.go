package lock

import (
	"fmt"
	"time"
)

// Error wraps a lower-level failure during a lock operation.
type Error struct {
	// Op is the operation that failed (e.g. "acquire", "release").
	Op string

	// Identifier is the caller-supplied lock identifier.
	Identifier string

	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("lock %s %q: %v", e.Op, e.Identifier, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// TimeoutError indicates a blocking acquire was not granted within its
// deadline.
type TimeoutError struct {
	// Key is the numeric advisory lock key that could not be acquired.
	Key int64

	// Timeout is the deadline that expired.
	Timeout time.Duration
}

// Error implements error.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out acquiring advisory lock %d after %s", e.Key, e.Timeout)
}

// ConflictError indicates a lock is currently held in a conflicting mode and
// the operation is not retryable.
type ConflictError struct {
	// Key is the contended advisory lock key.
	Key int64

	// Identifier is the caller-supplied lock identifier.
	Identifier string
}

// Error implements error.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("advisory lock %d (%q) is held in a conflicting mode", e.Key, e.Identifier)
}

package orchestrator

import "context"

// Logger is the optional structured logger threaded through every component
// Config. Implementations receive alternating key/value pairs after the
// message. All components tolerate a nil Logger.
type Logger interface {
	Debug(ctx context.Context, msg string, keysAndValues ...any)
	Info(ctx context.Context, msg string, keysAndValues ...any)
	Warn(ctx context.Context, msg string, keysAndValues ...any)
	Error(ctx context.Context, msg string, keysAndValues ...any)
}

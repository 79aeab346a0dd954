// Package logging adapts zerolog to the orchestrator's Logger interface.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// ZerologAdapter implements the orchestrator Logger interface on top of a
// zerolog.Logger.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerolog wraps an existing zerolog logger.
func NewZerolog(logger zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{logger: logger}
}

// NewConsole builds an adapter writing human-readable output, suitable for
// the CLI. Level parsing falls back to info for unknown names.
func NewConsole(w io.Writer, level string) *ZerologAdapter {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: w}).
		Level(lvl).
		With().Timestamp().Logger()
	return &ZerologAdapter{logger: logger}
}

func (a *ZerologAdapter) Debug(ctx context.Context, msg string, keysAndValues ...any) {
	emit(a.logger.Debug(), msg, keysAndValues)
}

func (a *ZerologAdapter) Info(ctx context.Context, msg string, keysAndValues ...any) {
	emit(a.logger.Info(), msg, keysAndValues)
}

func (a *ZerologAdapter) Warn(ctx context.Context, msg string, keysAndValues ...any) {
	emit(a.logger.Warn(), msg, keysAndValues)
}

func (a *ZerologAdapter) Error(ctx context.Context, msg string, keysAndValues ...any) {
	emit(a.logger.Error(), msg, keysAndValues)
}

// emit attaches key/value pairs as structured fields. A trailing key without
// a value is dropped.
func emit(ev *zerolog.Event, msg string, keysAndValues []any) {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		ev = ev.Interface(key, keysAndValues[i+1])
	}
	ev.Msg(msg)
}

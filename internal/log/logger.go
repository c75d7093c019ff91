// Package log wraps log/slog with nil-safety and error-attribute helpers, so
// the protocol engine can log unconditionally whether or not the caller
// configured a logger.
package log

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/edgerpc/mqttrpc/internal/wallclock"
)

type (
	// Logger is a wrapper around an slog.Logger with additional helpers and
	// nil checking.
	Logger struct{ wrapped *slog.Logger }

	// Attrs represents an object that exposes extra slog attributes to log.
	Attrs interface{ Attrs() []slog.Attr }
)

// Wrap the slog logger. A nil logger is valid and disables all logging.
func Wrap(logger *slog.Logger) Logger {
	return Logger{logger}
}

// Enabled indicates that the logger is enabled for the given logging level.
func (l Logger) Enabled(ctx context.Context, level slog.Level) bool {
	return l.wrapped != nil && l.wrapped.Enabled(ctx, level)
}

// See: https://pkg.go.dev/log/slog#hdr-Wrapping_output_methods
func (l Logger) log(
	ctx context.Context,
	level slog.Level,
	msg string,
	attrs []slog.Attr,
) {
	if !l.Enabled(ctx, level) {
		return
	}

	now := wallclock.Instance.Now()
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])

	r := slog.NewRecord(now, level, msg, pcs[0])
	r.AddAttrs(attrs...)
	_ = l.wrapped.Handler().Handle(ctx, r)
}

// Debug logs a message at debug level with structured logging.
func (l Logger) Debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, slog.LevelDebug, msg, attrs)
}

// Warn logs a protocol error at warning level with structured logging.
func (l Logger) Warn(ctx context.Context, err error) {
	l.err(ctx, slog.LevelWarn, err)
}

// Err logs a protocol error at error level with structured logging.
func (l Logger) Err(ctx context.Context, err error) {
	l.err(ctx, slog.LevelError, err)
}

func (l Logger) err(ctx context.Context, level slog.Level, err error) {
	if a, ok := err.(Attrs); ok {
		l.log(ctx, level, err.Error(), a.Attrs())
	} else {
		l.log(ctx, level, err.Error(), nil)
	}
}

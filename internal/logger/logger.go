// Package logger configures the application slog logger and carries request-scoped loggers in the context.
//
// Handlers get the request logger with ContextRequestLogger and add attributes to the final
// access log line with ContextWithLogAttrs. The RequestLogging middleware installs both.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

// LevelNone disables all output
const LevelNone = slog.Level(100)

// ParseLogLevel maps debug, info, warn, error and none to a slog level (unknown values map to info)
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "none", "off":
		return LevelNone
	default:
		return slog.LevelInfo
	}
}

// InitLogger creates the application logger and sets it as the slog default.
//
// dev and test use a colourised text handler, other environments log JSON to stdout.
func InitLogger(level slog.Level, environment string) *slog.Logger {
	l := newLogger(os.Stdout, level, environment)
	slog.SetDefault(l)
	return l
}

func newLogger(w io.Writer, level slog.Level, environment string) *slog.Logger {
	if level >= LevelNone {
		return slog.New(slog.DiscardHandler)
	}

	var handler slog.Handler
	switch environment {
	case "dev", "test":
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	default:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

type contextKey struct{ name string }

var (
	loggerKey = &contextKey{"request-logger"}
	attrsKey  = &contextKey{"log-attrs"}
)

// logAttrs collects attributes added while a request is handled
type logAttrs struct {
	mu    sync.Mutex
	attrs []slog.Attr
}

// ContextWithLogger returns a context carrying l and an empty attribute set
func ContextWithLogger(ctx context.Context, l *slog.Logger) context.Context {
	ctx = context.WithValue(ctx, loggerKey, l)
	return context.WithValue(ctx, attrsKey, &logAttrs{})
}

// ContextRequestLogger returns the request logger, or the default logger outside a request
func ContextRequestLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// ContextWithLogAttrs adds attributes to the access log line written when the request completes.
// It has no effect on a context without a request logger.
func ContextWithLogAttrs(ctx context.Context, attrs ...slog.Attr) {
	holder, ok := ctx.Value(attrsKey).(*logAttrs)
	if !ok {
		return
	}
	holder.mu.Lock()
	holder.attrs = append(holder.attrs, attrs...)
	holder.mu.Unlock()
}

func contextLogAttrs(ctx context.Context) []slog.Attr {
	holder, ok := ctx.Value(attrsKey).(*logAttrs)
	if !ok {
		return nil
	}
	holder.mu.Lock()
	defer holder.mu.Unlock()
	return append([]slog.Attr(nil), holder.attrs...)
}

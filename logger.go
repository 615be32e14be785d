package cones

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/cones/internal/compute"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for cones and all its sub-packages.
// By default, cones produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use. Pass nil to disable logging.
//
// Log levels used by cones:
//   - [slog.LevelDebug]: stage dispatches, buffer sizes
//   - [slog.LevelInfo]: rebuilds, backend selection
//   - [slog.LevelWarn]: dispatch failures, GPU fallback to CPU
//
// Example:
//
//	cones.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	compute.SetLogger(l)

	backendMu.RLock()
	b := registered
	backendMu.RUnlock()
	if b != nil {
		propagateLogger(b, l)
	}
}

// Logger returns the current logger used by cones.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by backends that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes the logger to a backend if it implements
// the loggerSetter interface.
func propagateLogger(b Backend, l *slog.Logger) {
	if ls, ok := b.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}

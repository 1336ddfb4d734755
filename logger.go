package fractal

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler drops every record; Enabled returns false so callers skip formatting.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger configures the logger shared by fractal and its sub-packages
// (worker, scheduler, session, gpu, locations). By default nothing is logged.
// Pass nil to silence logging again.
//
// Levels:
//   - [slog.LevelDebug]: per-pass diagnostics (stale results, batch counts)
//   - [slog.LevelInfo]: epoch lifecycle, backend switches
//   - [slog.LevelWarn]: GPU fallback, zoom cap, rejected jobs
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger. Safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

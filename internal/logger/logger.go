// Package logger defines the structured logging interface used by the
// executors and the data endpoint, with a no-op default and a log/slog
// adapter.
package logger

import "log/slog"

// Logger is a leveled, structured logger taking alternating key-value args.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	// With returns a logger that adds args to every record.
	With(args ...any) Logger
}

// NoopLogger discards everything. It is the default when no logger is set.
type NoopLogger struct{}

// Debug does nothing.
func (n *NoopLogger) Debug(_ string, _ ...any) {}

// Info does nothing.
func (n *NoopLogger) Info(_ string, _ ...any) {}

// Warn does nothing.
func (n *NoopLogger) Warn(_ string, _ ...any) {}

// Error does nothing.
func (n *NoopLogger) Error(_ string, _ ...any) {}

// With returns the receiver.
func (n *NoopLogger) With(_ ...any) Logger { return n }

// SlogAdapter adapts a *slog.Logger.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter wraps logger, which must not be nil.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Debug logs at debug level.
func (a *SlogAdapter) Debug(msg string, args ...any) {
	a.logger.Debug(msg, args...)
}

// Info logs at info level.
func (a *SlogAdapter) Info(msg string, args ...any) {
	a.logger.Info(msg, args...)
}

// Warn logs at warn level.
func (a *SlogAdapter) Warn(msg string, args ...any) {
	a.logger.Warn(msg, args...)
}

// Error logs at error level.
func (a *SlogAdapter) Error(msg string, args ...any) {
	a.logger.Error(msg, args...)
}

// With returns an adapter over logger.With(args...).
func (a *SlogAdapter) With(args ...any) Logger {
	return &SlogAdapter{logger: a.logger.With(args...)}
}

// OrNoop returns l, or a NoopLogger when l is nil.
func OrNoop(l Logger) Logger {
	if l == nil {
		return &NoopLogger{}
	}
	return l
}

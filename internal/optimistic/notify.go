package optimistic

import (
	"context"
	"time"
)

// Notifier is the user-visible notification sink. Calls are fire-and-forget;
// the executor invokes it exactly once per settled mutation that warrants
// feedback.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// NoopNotifier discards all notifications.
type NoopNotifier struct{}

// Success discards the message.
func (NoopNotifier) Success(string) {}

// Error discards the message.
func (NoopNotifier) Error(string) {}

// Logger is the minimal structured logging surface the executor emits to.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MetricsRecorder observes per-mutation outcomes.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

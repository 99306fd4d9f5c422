package core

import (
	"context"
	"errors"
	"time"

	"creaturecore/pkg/domain"
)

// Logger is the structured logger the registry writes to. Arguments are
// alternating key/value pairs.
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

// MetricsRecorder receives one observation per registry operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// Tracer starts a span per registry operation.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation's error.
type TraceSpan interface {
	End(err error)
}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type noopSink struct{}

func (noopSink) Emit(context.Context, domain.Event) {}

// Operation names used for logs, metrics and spans.
const (
	OpCreate   = "create"
	OpTransfer = "transfer"
	OpBreed    = "breed"
)

// observe opens a span and returns the function that closes it, records the
// duration, and logs the outcome.
func (r *Registry) observe(ctx context.Context, op string, origin domain.Origin) (context.Context, func(error, ...any)) {
	ctx, span := r.tracer.Start(ctx, op)
	started := r.now()
	return ctx, func(err error, args ...any) {
		elapsed := r.now().Sub(started)
		r.metrics.Observe(ctx, op, err == nil, elapsed)
		span.End(err)
		fields := append([]any{"op", op, "account", string(origin.Account), "ordinal", origin.Ordinal}, args...)
		switch {
		case err == nil:
			r.logger.Info("registry transition applied", fields...)
		case isTransitionError(err):
			kind, _ := domain.KindOf(err)
			r.logger.Warn("registry transition rejected", append(fields, "kind", string(kind), "error", err.Error())...)
		default:
			r.logger.Error("registry transition failed", append(fields, "error", err.Error())...)
		}
	}
}

func isTransitionError(err error) bool {
	var te *domain.TransitionError
	return errors.As(err, &te)
}

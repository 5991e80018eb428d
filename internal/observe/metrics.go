// Package observe records murmur's OpenTelemetry metrics and exposes them to
// Prometheus.
//
// Tests should build [Metrics] with [NewMetrics] over their own
// [metric.MeterProvider] so readings do not leak between tests.
package observe

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/chaz8081/murmur/internal/format"
	"github.com/chaz8081/murmur/internal/transcribe"
)

// meterName is the instrumentation scope name used for all murmur metrics.
const meterName = "github.com/chaz8081/murmur"

// Metrics holds the metric instruments. All fields are safe for concurrent use.
type Metrics struct {
	// InferenceDuration tracks whisper latency. Attributes: kind, status.
	InferenceDuration metric.Float64Histogram

	// FormattingDuration tracks formatting provider latency. Attributes:
	// provider, status.
	FormattingDuration metric.Float64Histogram

	// Sessions counts finished sessions. Attribute: outcome.
	Sessions metric.Int64Counter

	// Errors counts reported session errors. Attribute: code.
	Errors metric.Int64Counter

	// ActiveSessions is 1 while a session is in progress.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets are histogram bucket boundaries in seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates all instruments from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.InferenceDuration, err = m.Float64Histogram("murmur.inference.duration",
		metric.WithDescription("Latency of whisper inference by kind (preview, final)."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FormattingDuration, err = m.Float64Histogram("murmur.formatting.duration",
		metric.WithDescription("Latency of formatting provider calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Sessions, err = m.Int64Counter("murmur.sessions",
		metric.WithDescription("Finished dictation sessions by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Errors, err = m.Int64Counter("murmur.errors",
		metric.WithDescription("Session errors by code."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("murmur.active_sessions",
		metric.WithDescription("Number of sessions in progress."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// status maps an error to a low-cardinality label.
func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, transcribe.ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, format.ErrMissingCredential):
		return "missing_credential"
	case errors.Is(err, format.ErrEmptyResponse):
		return "empty"
	default:
		return "error"
	}
}

// ObserveInference implements transcribe.Observer.
func (m *Metrics) ObserveInference(ctx context.Context, kind string, d time.Duration, err error) {
	m.InferenceDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status(err)),
	))
}

// ObserveFormatting implements format.Observer.
func (m *Metrics) ObserveFormatting(ctx context.Context, provider string, d time.Duration, err error) {
	m.FormattingDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("status", status(err)),
	))
}

// SessionStarted marks a session as active.
func (m *Metrics) SessionStarted(ctx context.Context) {
	m.ActiveSessions.Add(ctx, 1)
}

// SessionEnded records a finished session. outcome is one of "completed",
// "empty" or "aborted".
func (m *Metrics) SessionEnded(ctx context.Context, outcome string) {
	m.ActiveSessions.Add(ctx, -1)
	m.Sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// SessionError counts an error event.
func (m *Metrics) SessionError(ctx context.Context, code string) {
	m.Errors.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
}

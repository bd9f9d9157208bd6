// Package observe provides application-wide observability primitives for
// kolan: OpenTelemetry metrics and the provider setup that backs them.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all kolan metrics.
const meterName = "github.com/kolan-ai/kolan"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Upstream media counters ---

	// AudioFramesSent counts microphone frames delivered to the provider.
	AudioFramesSent metric.Int64Counter

	// AudioFramesDropped counts microphone frames lost before delivery.
	// Use with [DropReason].
	AudioFramesDropped metric.Int64Counter

	// VideoFramesSent counts camera stills delivered to the provider.
	VideoFramesSent metric.Int64Counter

	// VideoFramesDropped counts camera stills lost before delivery.
	// Use with [DropReason].
	VideoFramesDropped metric.Int64Counter

	// --- Downstream playback counters ---

	// ChunksScheduled counts synthesised audio chunks handed to the speaker.
	ChunksScheduled metric.Int64Counter

	// ChunksDropped counts synthesised audio chunks discarded before
	// scheduling. Use with [DropReason].
	ChunksDropped metric.Int64Counter

	// --- Conversation counters ---

	// TurnsFinalized counts completed conversation turns.
	TurnsFinalized metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live sessions (0 or 1 for a
	// single-user client, but a counter keeps the wiring uniform).
	ActiveSessions metric.Int64UpDownCounter

	// --- Histograms ---

	// SessionDuration tracks the wall-clock length of finished sessions.
	SessionDuration metric.Float64Histogram

	// HTTPRequestDuration tracks request latency on the ops endpoint
	// (/metrics, /healthz, /readyz).
	HTTPRequestDuration metric.Float64Histogram
}

// sessionBuckets defines histogram bucket boundaries (in seconds) for
// session lifetimes.
var sessionBuckets = []float64{
	1, 5, 15, 30, 60, 120, 300, 600, 900,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.AudioFramesSent, err = m.Int64Counter("kolan.audio.frames_sent",
		metric.WithDescription("Total microphone frames delivered to the provider."),
	); err != nil {
		return nil, err
	}
	if met.AudioFramesDropped, err = m.Int64Counter("kolan.audio.frames_dropped",
		metric.WithDescription("Total microphone frames lost before delivery, by reason."),
	); err != nil {
		return nil, err
	}
	if met.VideoFramesSent, err = m.Int64Counter("kolan.video.frames_sent",
		metric.WithDescription("Total camera stills delivered to the provider."),
	); err != nil {
		return nil, err
	}
	if met.VideoFramesDropped, err = m.Int64Counter("kolan.video.frames_dropped",
		metric.WithDescription("Total camera stills lost before delivery, by reason."),
	); err != nil {
		return nil, err
	}
	if met.ChunksScheduled, err = m.Int64Counter("kolan.playback.chunks_scheduled",
		metric.WithDescription("Total synthesised audio chunks handed to the speaker."),
	); err != nil {
		return nil, err
	}
	if met.ChunksDropped, err = m.Int64Counter("kolan.playback.chunks_dropped",
		metric.WithDescription("Total synthesised audio chunks discarded before scheduling, by reason."),
	); err != nil {
		return nil, err
	}
	if met.TurnsFinalized, err = m.Int64Counter("kolan.transcript.turns_finalized",
		metric.WithDescription("Total completed conversation turns."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("kolan.active_sessions",
		metric.WithDescription("Number of live sessions."),
	); err != nil {
		return nil, err
	}

	if met.SessionDuration, err = m.Float64Histogram("kolan.session.duration",
		metric.WithDescription("Wall-clock length of finished sessions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(sessionBuckets...),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("kolan.http.request_duration",
		metric.WithDescription("Latency of requests served by the ops endpoint."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// DropReason is the attribute option recording why a frame or chunk was lost.
func DropReason(reason string) metric.AddOption {
	return metric.WithAttributes(attribute.String("reason", reason))
}

// RecordSessionEnd is a convenience method that closes out the per-session
// instruments in one call.
func (m *Metrics) RecordSessionEnd(ctx context.Context, seconds float64) {
	m.ActiveSessions.Add(ctx, -1)
	m.SessionDuration.Record(ctx, seconds)
}

// Package observe provides application-wide observability primitives for
// voicelink: OpenTelemetry metrics and the Prometheus exporter bridge that
// makes them scrapeable via the standard /metrics endpoint.
//
// Metrics are recorded through the OpenTelemetry Metrics API. Tests should
// use [NewMetrics] with the default (no-op) global meter provider to avoid
// cross-test pollution.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for all voicelink metrics.
const meterName = "github.com/godt333/voicelink"

// Interruption origin attribute values for [Metrics.BargeIns].
const (
	OriginServer = "server"
	OriginLocal  = "local"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// ConnectDuration tracks the time from connect request to the backend's
	// ready event, in seconds.
	ConnectDuration metric.Float64Histogram

	// FramesSent counts outbound microphone frames delivered to the channel.
	FramesSent metric.Int64Counter

	// FramesDropped counts outbound frames discarded because the session was
	// not connected.
	FramesDropped metric.Int64Counter

	// ChunksScheduled counts inbound audio chunks handed to the playback
	// scheduler.
	ChunksScheduled metric.Int64Counter

	// DecodeFailures counts inbound audio payloads that failed to decode and
	// were dropped.
	DecodeFailures metric.Int64Counter

	// BargeIns counts playback interruptions. Use with
	// attribute.String("origin", OriginServer|OriginLocal).
	BargeIns metric.Int64Counter

	// Flushes counts playback queue flushes, whatever triggered them.
	Flushes metric.Int64Counter

	// ProtocolErrors counts backend error events that did not end the session.
	ProtocolErrors metric.Int64Counter

	// ActiveSessions tracks the number of live sessions (0 or 1 per process,
	// but kept as a gauge for fleet-level aggregation).
	ActiveSessions metric.Int64UpDownCounter

	meter metric.Meter
}

// connectBuckets defines histogram bucket boundaries (in seconds) for
// session establishment, dominated by credential fetch plus websocket dial.
var connectBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates all instruments on a meter from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{meter: meter}

	var err error
	if m.ConnectDuration, err = meter.Float64Histogram(
		"voicelink.session.connect.duration",
		metric.WithDescription("Time from connect request to backend ready"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(connectBuckets...),
	); err != nil {
		return nil, err
	}
	if m.FramesSent, err = meter.Int64Counter(
		"voicelink.capture.frames.sent",
		metric.WithDescription("Outbound microphone frames sent"),
	); err != nil {
		return nil, err
	}
	if m.FramesDropped, err = meter.Int64Counter(
		"voicelink.capture.frames.dropped",
		metric.WithDescription("Outbound frames dropped while not connected"),
	); err != nil {
		return nil, err
	}
	if m.ChunksScheduled, err = meter.Int64Counter(
		"voicelink.playback.chunks.scheduled",
		metric.WithDescription("Inbound audio chunks scheduled for playback"),
	); err != nil {
		return nil, err
	}
	if m.DecodeFailures, err = meter.Int64Counter(
		"voicelink.playback.decode.failures",
		metric.WithDescription("Inbound audio payloads dropped as undecodable"),
	); err != nil {
		return nil, err
	}
	if m.BargeIns, err = meter.Int64Counter(
		"voicelink.bargein.fired",
		metric.WithDescription("Playback interruptions by origin"),
	); err != nil {
		return nil, err
	}
	if m.Flushes, err = meter.Int64Counter(
		"voicelink.playback.flushes",
		metric.WithDescription("Playback queue flushes"),
	); err != nil {
		return nil, err
	}
	if m.ProtocolErrors, err = meter.Int64Counter(
		"voicelink.session.protocol.errors",
		metric.WithDescription("Non-fatal backend error events"),
	); err != nil {
		return nil, err
	}
	if m.ActiveSessions, err = meter.Int64UpDownCounter(
		"voicelink.session.active",
		metric.WithDescription("Live realtime sessions"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// RegisterQueueDepth registers an observable gauge reporting the playback
// scheduler's pending chunk count via fn.
func (m *Metrics) RegisterQueueDepth(fn func() int64) error {
	gauge, err := m.meter.Int64ObservableGauge(
		"voicelink.playback.queue.depth",
		metric.WithDescription("Chunks scheduled but not yet played"),
	)
	if err != nil {
		return err
	}
	_, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(gauge, fn())
		return nil
	}, gauge)
	return err
}

// Origin returns the attribute set for a barge-in origin.
func Origin(origin string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("origin", origin))
}

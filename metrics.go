package aprilvoice

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/agnivade/aprilvoice"

// Reasons a chunk is dropped before recognition.
const (
	dropTooSmall   = "too_small"
	dropBadPayload = "bad_payload"
)

// Metrics holds the service instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	sessions     metric.Int64UpDownCounter
	dispatched   metric.Int64Counter
	dropped      metric.Int64Counter
	recognitions metric.Int64Counter
	duration     metric.Float64Histogram
}

// NewMetrics creates the instruments on the given meter provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)

	var (
		m   Metrics
		err error
	)
	if m.sessions, err = meter.Int64UpDownCounter("aprilvoice.sessions.active",
		metric.WithDescription("Open streaming sessions")); err != nil {
		return nil, err
	}
	if m.dispatched, err = meter.Int64Counter("aprilvoice.chunks.dispatched",
		metric.WithDescription("Audio chunks handed to recognition")); err != nil {
		return nil, err
	}
	if m.dropped, err = meter.Int64Counter("aprilvoice.chunks.dropped",
		metric.WithDescription("Audio chunks discarded before recognition")); err != nil {
		return nil, err
	}
	if m.recognitions, err = meter.Int64Counter("aprilvoice.recognitions",
		metric.WithDescription("Provider recognition attempts")); err != nil {
		return nil, err
	}
	if m.duration, err = meter.Float64Histogram("aprilvoice.recognition.duration",
		metric.WithDescription("Time spent recognizing one chunk"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	return &m, nil
}

// NewPrometheusMetrics wires the instruments to a Prometheus exporter on a
// private registry. The returned handler serves the exposition format and the
// shutdown func flushes the meter provider.
func NewPrometheusMetrics() (*Metrics, http.Handler, func(context.Context) error, error) {
	reg := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	m, err := NewMetrics(mp)
	if err != nil {
		return nil, nil, nil, err
	}
	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), mp.Shutdown, nil
}

func (m *Metrics) sessionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessions.Add(ctx, 1)
}

func (m *Metrics) sessionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessions.Add(ctx, -1)
}

func (m *Metrics) chunkDispatched(ctx context.Context) {
	if m == nil {
		return
	}
	m.dispatched.Add(ctx, 1)
}

func (m *Metrics) chunkDropped(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) recordRecognition(ctx context.Context, provider string, ok bool) {
	if m == nil {
		return
	}
	outcome := "empty"
	if ok {
		outcome = "text"
	}
	m.recognitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) recognitionTook(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Record(ctx, d.Seconds())
}

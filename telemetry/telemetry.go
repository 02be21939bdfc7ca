// Package telemetry wires the stage runtime into OpenTelemetry. Stages get
// a tracer plus a small fixed set of instruments; the binaries call Setup
// to install the SDK providers behind them.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scope = "github.com/partsol/checkmate"

// StageMetrics holds the per-stage instruments.
type StageMetrics struct {
	Consumed  metric.Int64Counter
	Published metric.Int64Counter
	Failed    metric.Int64Counter
	InFlight  metric.Int64UpDownCounter
}

// Tracer returns the module tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(scope)
}

// NewStageMetrics registers the stage instruments on the global meter
// provider. Instrument creation errors are surfaced once at startup.
func NewStageMetrics() (*StageMetrics, error) {
	meter := otel.Meter(scope)

	consumed, err := meter.Int64Counter("pipeline.events.consumed",
		metric.WithDescription("Events polled from the bus"))
	if err != nil {
		return nil, err
	}
	published, err := meter.Int64Counter("pipeline.events.published",
		metric.WithDescription("Events published to the outbound topic"))
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("pipeline.events.failed",
		metric.WithDescription("Events whose handler returned an error"))
	if err != nil {
		return nil, err
	}
	inFlight, err := meter.Int64UpDownCounter("pipeline.handlers.inflight",
		metric.WithDescription("Handler invocations currently running"))
	if err != nil {
		return nil, err
	}

	return &StageMetrics{
		Consumed:  consumed,
		Published: published,
		Failed:    failed,
		InFlight:  inFlight,
	}, nil
}

// ServiceAttrs builds the common attribute set stamped on stage metrics.
func ServiceAttrs(service, tenant string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("tenant", tenant),
	)
}

// RecordHandled bumps the consumed counter.
func (m *StageMetrics) RecordHandled(ctx context.Context, service, tenant string) {
	if m == nil {
		return
	}
	m.Consumed.Add(ctx, 1, ServiceAttrs(service, tenant))
}

// RecordPublished bumps the published counter by n.
func (m *StageMetrics) RecordPublished(ctx context.Context, service, tenant string, n int64) {
	if m == nil {
		return
	}
	m.Published.Add(ctx, n, ServiceAttrs(service, tenant))
}

// RecordFailed bumps the failed counter.
func (m *StageMetrics) RecordFailed(ctx context.Context, service, tenant string) {
	if m == nil {
		return
	}
	m.Failed.Add(ctx, 1, ServiceAttrs(service, tenant))
}

// HandlerStarted / HandlerDone track the in-flight gauge.
func (m *StageMetrics) HandlerStarted(ctx context.Context, service string) {
	if m == nil {
		return
	}
	m.InFlight.Add(ctx, 1, metric.WithAttributes(attribute.String("service", service)))
}

func (m *StageMetrics) HandlerDone(ctx context.Context, service string) {
	if m == nil {
		return
	}
	m.InFlight.Add(ctx, -1, metric.WithAttributes(attribute.String("service", service)))
}

package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// metricInterval is how often the periodic reader flushes instrument state
// to the exporter.
const metricInterval = time.Minute

// Setup installs the global tracer and meter providers so that Tracer()
// and NewStageMetrics hand out recording instruments instead of no-ops.
// Spans and metric snapshots are exported to the structured log. The
// returned shutdown function flushes both providers.
func Setup(ctx context.Context, service string, logger *slog.Logger) func(context.Context) error {
	if logger == nil {
		logger = slog.Default()
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(service),
	))
	if err != nil {
		logger.Warn("failed to create resource, using default", "error", err)
		res = resource.Default()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(&logSpanExporter{logger: logger})),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(
			&logMetricExporter{logger: logger},
			sdkmetric.WithInterval(metricInterval),
		)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}
}

// logSpanExporter writes completed spans to the structured log. Export
// failures never break the trace pipeline.
type logSpanExporter struct {
	logger *slog.Logger
}

func (e *logSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		e.logger.Debug("span completed",
			"name", span.Name(),
			"traceId", span.SpanContext().TraceID().String(),
			"spanId", span.SpanContext().SpanID().String(),
			"duration", span.EndTime().Sub(span.StartTime()).String())
	}
	return nil
}

func (e *logSpanExporter) Shutdown(ctx context.Context) error { return nil }

// logMetricExporter writes periodic metric snapshots to the structured
// log: one line per instrument with the summed data points.
type logMetricExporter struct {
	logger *slog.Logger
}

func (e *logMetricExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (e *logMetricExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (e *logMetricExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			var total int64
			points := 0
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				points = len(sum.DataPoints)
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
			e.logger.Debug("metric snapshot",
				"instrument", m.Name,
				"dataPoints", points,
				"total", total)
		}
	}
	return nil
}

func (e *logMetricExporter) ForceFlush(ctx context.Context) error { return nil }

func (e *logMetricExporter) Shutdown(ctx context.Context) error { return nil }

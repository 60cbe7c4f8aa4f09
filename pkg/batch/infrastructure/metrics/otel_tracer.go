package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	config "github.com/tigerroll/tripco2/pkg/batch/core/config"
	model "github.com/tigerroll/tripco2/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/tripco2/pkg/batch/core/metrics"
	logger "github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
)

const instrumentationName = "github.com/tigerroll/tripco2"

// NewTracerProvider builds the SDK tracer provider. Without an OTLP endpoint spans are
// recorded but not exported.
func NewTracerProvider(ctx context.Context, cfg config.TracingConfig) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))),
	}
	if cfg.OTLP.Endpoint != "" {
		exporter, err := newTraceExporter(ctx, cfg.OTLP)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
		logger.Infof("Tracing: exporting spans to %s over %s.", cfg.OTLP.Endpoint, cfg.OTLP.Protocol)
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func newTraceExporter(ctx context.Context, cfg config.OTLPConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Protocol {
	case "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	case "http", "":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol '%s'", cfg.Protocol)
	}
}

// OpenTelemetryTracer is an implementation of metrics.Tracer using OpenTelemetry.
type OpenTelemetryTracer struct {
	tracer trace.Tracer
}

// NewOpenTelemetryTracer creates a tracer from provider.
func NewOpenTelemetryTracer(provider trace.TracerProvider) *OpenTelemetryTracer {
	return &OpenTelemetryTracer{tracer: provider.Tracer(instrumentationName)}
}

func (t *OpenTelemetryTracer) StartRunSpan(ctx context.Context, run *model.RunExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", run.ID),
		attribute.Int("run.from_year", run.FromYear),
		attribute.Int("run.to_year", run.ToYear),
	))
	return ctx, func() {
		span.SetAttributes(attribute.String("run.status", run.Status.String()))
		if run.Status == model.BatchStatusFailed {
			span.SetStatus(codes.Error, run.ExitMessage())
		}
		span.End()
	}
}

func (t *OpenTelemetryTracer) StartStageSpan(ctx context.Context, stage *model.StageExecution) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "stage."+stage.StageName, trace.WithAttributes(
		attribute.String("stage.name", stage.StageName),
		attribute.String("stage.service", stage.Service),
	))
	return ctx, func() {
		span.SetAttributes(
			attribute.String("stage.exit_status", stage.ExitStatus.String()),
			attribute.Int64("stage.write_count", stage.WriteCount),
			attribute.Int("stage.failed_units", stage.FailedUnits),
		)
		if stage.Status == model.BatchStatusFailed {
			span.SetStatus(codes.Error, stage.ExitMessage())
		}
		span.End()
	}
}

func (t *OpenTelemetryTracer) RecordError(ctx context.Context, module string, err error) {
	if err == nil {
		return
	}
	trace.SpanFromContext(ctx).RecordError(err, trace.WithAttributes(attribute.String("module", module)))
}

func (t *OpenTelemetryTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(toAttributes(attributes)...))
}

func toAttributes(m map[string]interface{}) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprint(val)))
		}
	}
	return attrs
}

var _ metrics.Tracer = (*OpenTelemetryTracer)(nil)

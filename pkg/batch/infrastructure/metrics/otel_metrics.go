package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	config "github.com/tigerroll/tripco2/pkg/batch/core/config"
	model "github.com/tigerroll/tripco2/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/tripco2/pkg/batch/core/metrics"
)

// NewMeterProvider builds the SDK meter provider. Without an OTLP endpoint it returns nil:
// the Prometheus textfile is then the only metric output.
func NewMeterProvider(ctx context.Context, cfg config.MetricsConfig, serviceName string) (*sdkmetric.MeterProvider, error) {
	if cfg.OTLP.Endpoint == "" {
		return nil, nil
	}
	exporter, err := newMetricExporter(ctx, cfg.OTLP)
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	), nil
}

func newMetricExporter(ctx context.Context, cfg config.OTLPConfig) (sdkmetric.Exporter, error) {
	switch cfg.Protocol {
	case "grpc":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case "http", "":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol '%s'", cfg.Protocol)
	}
}

// OTelMetricRecorder records the same measurements as PrometheusRecorder through an OpenTelemetry meter.
type OTelMetricRecorder struct {
	stageDuration otelmetric.Float64Histogram
	stageRuns     otelmetric.Int64Counter
	rows          otelmetric.Int64Counter
	filtered      otelmetric.Int64Counter
	unitFailures  otelmetric.Int64Counter
	runs          otelmetric.Int64Counter
	operation     otelmetric.Float64Histogram
}

// NewOTelMetricRecorder creates the instruments on provider.
func NewOTelMetricRecorder(provider otelmetric.MeterProvider) (*OTelMetricRecorder, error) {
	meter := provider.Meter(instrumentationName)
	r := &OTelMetricRecorder{}
	var err error
	if r.stageDuration, err = meter.Float64Histogram("tripco2.stage.duration", otelmetric.WithUnit("s")); err != nil {
		return nil, err
	}
	if r.stageRuns, err = meter.Int64Counter("tripco2.stage.runs"); err != nil {
		return nil, err
	}
	if r.rows, err = meter.Int64Counter("tripco2.stage.rows"); err != nil {
		return nil, err
	}
	if r.filtered, err = meter.Int64Counter("tripco2.stage.filtered_rows"); err != nil {
		return nil, err
	}
	if r.unitFailures, err = meter.Int64Counter("tripco2.unit.failures"); err != nil {
		return nil, err
	}
	if r.runs, err = meter.Int64Counter("tripco2.runs"); err != nil {
		return nil, err
	}
	if r.operation, err = meter.Float64Histogram("tripco2.operation.duration", otelmetric.WithUnit("s")); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *OTelMetricRecorder) RecordRunStart(ctx context.Context, run *model.RunExecution) {}

func (r *OTelMetricRecorder) RecordRunEnd(ctx context.Context, run *model.RunExecution) {
	r.runs.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("status", run.Status.String())))
}

func (r *OTelMetricRecorder) RecordStageStart(ctx context.Context, stage *model.StageExecution) {}

func (r *OTelMetricRecorder) RecordStageEnd(ctx context.Context, stage *model.StageExecution) {
	attrs := otelmetric.WithAttributes(
		attribute.String("stage", stage.StageName),
		attribute.String("service", stage.Service),
		attribute.String("status", stage.Status.String()),
	)
	r.stageRuns.Add(ctx, 1, attrs)
	if stage.EndTime != nil {
		r.stageDuration.Record(ctx, stage.EndTime.Sub(stage.StartTime).Seconds(), attrs)
	}
}

func (r *OTelMetricRecorder) RecordRows(ctx context.Context, stage, service string, year int, count int64) {
	r.rows.Add(ctx, count, otelmetric.WithAttributes(
		attribute.String("stage", stage), attribute.String("service", service), attribute.Int("year", year)))
}

func (r *OTelMetricRecorder) RecordFiltered(ctx context.Context, stage, service string, year int, count int64) {
	r.filtered.Add(ctx, count, otelmetric.WithAttributes(
		attribute.String("stage", stage), attribute.String("service", service), attribute.Int("year", year)))
}

func (r *OTelMetricRecorder) RecordUnitFailure(ctx context.Context, stage, service, reason string) {
	r.unitFailures.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("stage", stage), attribute.String("service", service), attribute.String("reason", reason)))
}

func (r *OTelMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(tags)+1)
	attrs = append(attrs, attribute.String("name", name))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.operation.Record(ctx, duration.Seconds(), otelmetric.WithAttributes(attrs...))
}

var _ metrics.MetricRecorder = (*OTelMetricRecorder)(nil)

// Package metrics provides the Prometheus and OpenTelemetry backends of the core metrics interfaces.
package metrics

import (
	"context"

	"go.uber.org/fx"

	config "github.com/tigerroll/tripco2/pkg/batch/core/config"
	metrics "github.com/tigerroll/tripco2/pkg/batch/core/metrics"
	logger "github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
)

// ObservabilityParams defines the dependencies for NewObservability.
type ObservabilityParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
}

// ObservabilityResult exposes the recorder and tracer used by the pipeline.
type ObservabilityResult struct {
	fx.Out
	Recorder   metrics.MetricRecorder
	Tracer     metrics.Tracer
	Prometheus *PrometheusRecorder
}

// NewObservability builds the Prometheus recorder, the optional OTLP metric recorder and the
// tracer. On stop the textfile is written and both SDK providers are flushed.
func NewObservability(p ObservabilityParams) (ObservabilityResult, error) {
	ctx := context.Background()
	app := p.Config.Tripco2

	prom := NewPrometheusRecorder()
	recorders := []metrics.MetricRecorder{prom}

	meterProvider, err := NewMeterProvider(ctx, app.Metrics, app.Tracing.ServiceName)
	if err != nil {
		return ObservabilityResult{}, err
	}
	if meterProvider != nil {
		otelRecorder, err := NewOTelMetricRecorder(meterProvider)
		if err != nil {
			return ObservabilityResult{}, err
		}
		recorders = append(recorders, otelRecorder)
	}

	tracerProvider, err := NewTracerProvider(ctx, app.Tracing)
	if err != nil {
		return ObservabilityResult{}, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := prom.WriteTextfile(app.Metrics.Textfile); err != nil {
				logger.Errorf("%v", err)
			}
			if meterProvider != nil {
				if err := meterProvider.Shutdown(ctx); err != nil {
					logger.Warnf("Failed to shut down meter provider: %v", err)
				}
			}
			return tracerProvider.Shutdown(ctx)
		},
	})

	return ObservabilityResult{
		Recorder:   metrics.NewCompositeRecorder(recorders...),
		Tracer:     NewOpenTelemetryTracer(tracerProvider),
		Prometheus: prom,
	}, nil
}

// Module provides metrics.MetricRecorder and metrics.Tracer.
var Module = fx.Options(
	fx.Provide(NewObservability),
)

package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	model "github.com/tigerroll/tripco2/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/tripco2/pkg/batch/core/metrics"
	logger "github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
// A batch run has no scrape window, so the registry is written out as a node-exporter
// textfile when the run ends.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	runDurationSeconds *prometheus.HistogramVec
	runStatusCounter   *prometheus.CounterVec

	stageDurationSeconds *prometheus.HistogramVec
	stageStatusCounter   *prometheus.CounterVec
	stageRows            *prometheus.CounterVec
	stageFiltered        *prometheus.CounterVec
	unitFailures         *prometheus.CounterVec

	operationDurationSeconds *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		runDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tripco2_run_duration_seconds",
			Help:    "Duration of pipeline runs.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"status"}),
		runStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripco2_run_status_total",
			Help: "Pipeline runs by final status.",
		}, []string{"status"}),
		stageDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tripco2_stage_duration_seconds",
			Help:    "Duration of stage executions.",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"stage", "service", "status", "exit_status"}),
		stageStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripco2_stage_status_total",
			Help: "Stage executions by final status.",
		}, []string{"stage", "service", "status"}),
		stageRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripco2_stage_rows_total",
			Help: "Rows materialized by stage, service type and year.",
		}, []string{"stage", "service", "year"}),
		stageFiltered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripco2_stage_filtered_rows_total",
			Help: "Rows dropped by stage, service type and year.",
		}, []string{"stage", "service", "year"}),
		unitFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tripco2_unit_failures_total",
			Help: "Skipped partitions or years by stage, service type and reason.",
		}, []string{"stage", "service", "reason"}),
		operationDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tripco2_operation_duration_seconds",
			Help:    "Duration of named operations such as analytical queries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"name"}),
	}

	registry.MustRegister(
		r.runDurationSeconds,
		r.runStatusCounter,
		r.stageDurationSeconds,
		r.stageStatusCounter,
		r.stageRows,
		r.stageFiltered,
		r.unitFailures,
		r.operationDurationSeconds,
	)
	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

func (r *PrometheusRecorder) RecordRunStart(ctx context.Context, run *model.RunExecution) {
	logger.Debugf("Metrics: run '%s' started.", run.ID)
}

func (r *PrometheusRecorder) RecordRunEnd(ctx context.Context, run *model.RunExecution) {
	if run.EndTime == nil {
		return
	}
	duration := run.EndTime.Sub(run.StartTime).Seconds()
	r.runDurationSeconds.WithLabelValues(run.Status.String()).Observe(duration)
	r.runStatusCounter.WithLabelValues(run.Status.String()).Inc()
	logger.Debugf("Metrics: run '%s' ended. Duration: %.3fs", run.ID, duration)
}

func (r *PrometheusRecorder) RecordStageStart(ctx context.Context, stage *model.StageExecution) {
	logger.Debugf("Metrics: stage '%s' (%s) started.", stage.StageName, stage.Service)
}

func (r *PrometheusRecorder) RecordStageEnd(ctx context.Context, stage *model.StageExecution) {
	if stage.EndTime == nil {
		return
	}
	duration := stage.EndTime.Sub(stage.StartTime).Seconds()
	r.stageDurationSeconds.WithLabelValues(stage.StageName, stage.Service, stage.Status.String(), stage.ExitStatus.String()).Observe(duration)
	r.stageStatusCounter.WithLabelValues(stage.StageName, stage.Service, stage.Status.String()).Inc()
}

func (r *PrometheusRecorder) RecordRows(ctx context.Context, stage, service string, year int, count int64) {
	r.stageRows.WithLabelValues(stage, service, strconv.Itoa(year)).Add(float64(count))
}

func (r *PrometheusRecorder) RecordFiltered(ctx context.Context, stage, service string, year int, count int64) {
	r.stageFiltered.WithLabelValues(stage, service, strconv.Itoa(year)).Add(float64(count))
}

func (r *PrometheusRecorder) RecordUnitFailure(ctx context.Context, stage, service, reason string) {
	r.unitFailures.WithLabelValues(stage, service, reason).Inc()
}

// RecordDuration observes duration under name. Tags are not used as labels to keep the
// series count bounded.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.operationDurationSeconds.WithLabelValues(name).Observe(duration.Seconds())
}

// WriteTextfile writes the registry to path in the text exposition format.
// prometheus.WriteToTextfile renames a temporary file into place, so collectors never read
// a partial file.
func (r *PrometheusRecorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for metrics textfile '%s': %w", path, err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile '%s': %w", path, err)
	}
	logger.Infof("Metrics written to '%s'.", path)
	return nil
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)

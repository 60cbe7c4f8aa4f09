// Package report renders the yearly CO2 totals of every service type as a line chart and,
// optionally, as a Parquet table, and stores both through the storage adapter.
package report

import (
	"bytes"
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/tripco2/internal/domain/service"
	"github.com/tigerroll/tripco2/internal/query"
	"github.com/tigerroll/tripco2/internal/step"
	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	storageAdapter "github.com/tigerroll/tripco2/pkg/batch/adapter/storage"
	"github.com/tigerroll/tripco2/pkg/batch/core/config"
	"github.com/tigerroll/tripco2/pkg/batch/core/metrics"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/exception"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
)

const moduleName = "report"

const chartTitle = "Total CO2 emissions by year"

// YearTotal is the CO2 of every transformed trip of one pickup year.
type YearTotal struct {
	Year       int     `gorm:"column:trip_year"`
	TotalCO2Kg float64 `gorm:"column:total_co2_kg"`
}

// Params holds the dependencies of the Reporter.
type Params struct {
	fx.In
	Pipeline        *config.PipelineConfig
	Report          *config.ReportConfig
	Services        []service.Type
	Resolver        database.DBConnectionResolver
	StorageResolver storageAdapter.StorageConnectionResolver
	Recorder        metrics.MetricRecorder
	Tracer          metrics.Tracer
	Logger          *logger.Logger `optional:"true"`
}

// Reporter writes the report artifacts. It runs once for all service types.
type Reporter struct {
	pipeline *config.PipelineConfig
	report   *config.ReportConfig
	services []service.Type
	resolver database.DBConnectionResolver
	storage  storageAdapter.StorageConnectionResolver
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
	log      *logger.Logger
}

// NewReporter creates a Reporter.
func NewReporter(p Params) *Reporter {
	log := p.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Reporter{
		pipeline: p.Pipeline,
		report:   p.Report,
		services: p.Services,
		resolver: p.Resolver,
		storage:  p.StorageResolver,
		recorder: p.Recorder,
		tracer:   p.Tracer,
		log:      log.With(moduleName),
	}
}

func (r *Reporter) Name() string     { return "report" }
func (r *Reporter) Stage() string    { return config.StageAnalyze }
func (r *Reporter) PerService() bool { return false }

// Execute collects the totals of every service type and stores the artifacts. A service
// whose totals cannot be read is left out of the chart.
func (r *Reporter) Execute(ctx context.Context, units []*step.Unit) error {
	conn, d, err := step.Backend(ctx, r.resolver, r.pipeline.DBRef)
	if err != nil {
		step.FailAll(units, err)
		return nil
	}
	store, err := r.storage.ResolveStorageConnection(ctx, r.pipeline.StorageRef)
	if err != nil {
		step.FailAll(units, exception.NewFatalf(moduleName, "failed to resolve storage '%s'", r.pipeline.StorageRef, err))
		return nil
	}

	for _, u := range units {
		series := r.collect(ctx, conn, d, u)
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.writeChart(ctx, store, series); err != nil {
			r.log.Errorf("%v", err)
			u.Fail(err)
			continue
		}
		if r.report.ExportTotals {
			if err := r.writeTotals(ctx, store, series); err != nil {
				r.log.Errorf("%v", err)
				u.Execution.RecordUnitFailure(err)
				r.recorder.RecordUnitFailure(ctx, r.Name(), "", "export")
			}
		} else {
			r.removeTotals(ctx, store)
		}
	}
	return ctx.Err()
}

func (r *Reporter) collect(ctx context.Context, conn database.QueryBackend, d query.Dialect, u *step.Unit) []Series {
	series := make([]Series, 0, len(r.services))
	for _, svc := range r.services {
		var totals []YearTotal
		if err := conn.Fetch(ctx, &totals, query.NewBuilder(d, svc).YearlyTotals()); err != nil {
			if ctx.Err() != nil {
				return series
			}
			err = exception.NewRecoverablef(moduleName, "%s: failed to read yearly totals", svc, err)
			r.log.Errorf("%v", err)
			u.Execution.RecordUnitFailure(err)
			r.recorder.RecordUnitFailure(ctx, r.Name(), svc.Name, "query")
			r.tracer.RecordError(ctx, moduleName, err)
			continue
		}
		for _, t := range totals {
			r.log.Infof("%s %d: %.2f kg CO2", svc, t.Year, t.TotalCO2Kg)
		}
		u.Execution.ReadCount += int64(len(totals))
		series = append(series, Series{Service: svc.Name, Totals: totals})
	}
	return series
}

func (r *Reporter) bucket(store storageAdapter.StorageConnection) string {
	if r.report.Bucket != "" {
		return r.report.Bucket
	}
	return store.DefaultBucket()
}

func (r *Reporter) writeChart(ctx context.Context, store storageAdapter.StorageConnection, series []Series) error {
	start := time.Now()
	var buf bytes.Buffer
	if err := RenderChart(&buf, chartTitle, series); err != nil {
		return exception.NewFatal(moduleName, "failed to render chart", err)
	}
	size := buf.Len()
	if err := store.Upload(ctx, r.bucket(store), r.report.ChartFile, &buf, "image/png"); err != nil {
		return exception.NewFatalf(moduleName, "failed to store chart '%s'", r.report.ChartFile, err)
	}
	r.recorder.RecordDuration(ctx, "report_chart", time.Since(start), map[string]string{"object": r.report.ChartFile})
	r.tracer.RecordEvent(ctx, "report.chart", map[string]interface{}{"object": r.report.ChartFile, "bytes": size})
	r.log.Infof("Chart written to %s (%d bytes)", r.report.ChartFile, size)
	return nil
}

func (r *Reporter) writeTotals(ctx context.Context, store storageAdapter.StorageConnection, series []Series) error {
	buf, err := EncodeTotals(series)
	if err != nil {
		return exception.NewRecoverable(moduleName, "failed to encode totals", err)
	}
	if err := store.Upload(ctx, r.bucket(store), r.report.TotalsFile, buf, "application/octet-stream"); err != nil {
		return exception.NewRecoverablef(moduleName, "failed to store totals '%s'", r.report.TotalsFile, err)
	}
	r.log.Infof("Totals written to %s", r.report.TotalsFile)
	return nil
}

// removeTotals deletes a totals export left by an earlier run so the bucket only holds
// artifacts of this one.
func (r *Reporter) removeTotals(ctx context.Context, store storageAdapter.StorageConnection) {
	if err := store.DeleteObject(ctx, r.bucket(store), r.report.TotalsFile); err != nil {
		r.log.Warnf("Failed to remove stale totals '%s': %v", r.report.TotalsFile, err)
	}
}

var _ step.Step = (*Reporter)(nil)

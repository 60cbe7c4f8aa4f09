// Package loader reads the monthly trip partitions of each service type into its raw table.
package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/tripco2/internal/domain/trip"
	"github.com/tigerroll/tripco2/internal/emission"
	"github.com/tigerroll/tripco2/internal/query"
	"github.com/tigerroll/tripco2/internal/step"
	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	"github.com/tigerroll/tripco2/pkg/batch/core/config"
	"github.com/tigerroll/tripco2/pkg/batch/core/metrics"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/exception"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
)

const moduleName = "loader"

// Params holds the dependencies of the Loader.
type Params struct {
	fx.In
	Pipeline *config.PipelineConfig
	System   *config.SystemConfig
	Resolver database.DBConnectionResolver
	Recorder metrics.MetricRecorder
	Tracer   metrics.Tracer
	Logger   *logger.Logger `optional:"true"`
}

// Loader rebuilds the emission factor table and the raw trip tables.
type Loader struct {
	pipeline *config.PipelineConfig
	loc      *time.Location
	resolver database.DBConnectionResolver
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
	log      *logger.Logger
}

// NewLoader creates a Loader.
func NewLoader(p Params) (*Loader, error) {
	loc, err := p.System.Location()
	if err != nil {
		return nil, exception.NewFatalf(moduleName, "unknown timezone '%s'", p.System.Timezone, err)
	}
	log := p.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Loader{
		pipeline: p.Pipeline,
		loc:      loc,
		resolver: p.Resolver,
		recorder: p.Recorder,
		tracer:   p.Tracer,
		log:      log.With(moduleName),
	}, nil
}

func (l *Loader) Name() string     { return config.StageLoad }
func (l *Loader) Stage() string    { return config.StageLoad }
func (l *Loader) PerService() bool { return true }

// Execute loads the emission factors, then the raw table of every unit. Every raw table is
// recreated first, so without emission factors no unit is loaded and no stale rows remain.
func (l *Loader) Execute(ctx context.Context, units []*step.Unit) error {
	conn, d, err := step.Backend(ctx, l.resolver, l.pipeline.DBRef)
	if err != nil {
		step.FailAll(units, err)
		return nil
	}
	_, factorsErr := emission.NewTable(conn, d, l.log).LoadFile(ctx, l.pipeline.EmissionsFile)
	if factorsErr != nil {
		l.log.Errorf("Emission factors unavailable, no service type is loaded: %v", factorsErr)
	}
	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return err
		}
		b := query.NewBuilder(d, u.Service)
		if err := step.Exec(ctx, conn, b.RecreateRawTable()...); err != nil {
			u.Fail(exception.NewFatalf(moduleName, "failed to recreate %s", u.Service.RawTable(), err))
			continue
		}
		if factorsErr != nil {
			u.Fail(factorsErr)
			continue
		}
		l.loadService(ctx, conn, b, u)
	}
	return ctx.Err()
}

// loadService walks the partitions of u in year then month order into its freshly
// recreated raw table. Only the first partition of the range is mandatory. Later
// partitions that are missing are skipped and later partitions that cannot be read count
// as failed units.
func (l *Loader) loadService(ctx context.Context, conn database.QueryBackend, b *query.Builder, u *step.Unit) {
	svc := u.Service
	se := u.Execution

	cols := trip.Columns(svc)
	batchSize := l.pipeline.InsertBatchSize
	for yi, year := range l.pipeline.Years() {
		var yearRows int64
		for month := 1; month <= 12; month++ {
			if ctx.Err() != nil {
				return
			}
			path := svc.PartitionPath(l.pipeline.DataDir, year, month)
			start := time.Now()
			read, written, err := l.loadPartition(ctx, conn, b, cols, path, batchSize)
			se.ReadCount += read
			if err != nil {
				if exception.IsCanceled(err) || ctx.Err() != nil {
					return
				}
				if yi == 0 && month == 1 {
					u.Fail(exception.NewFatalf(moduleName, "first partition of %s is unusable", svc, err))
					return
				}
				if errors.Is(err, exception.ErrPartitionMissing) {
					l.log.Warnf("%s: %s not found, skipping", svc, path)
					l.tracer.RecordEvent(ctx, "partition.missing", map[string]interface{}{"service": svc.Name, "year": year, "month": month})
					continue
				}
				reason := "read"
				if errors.Is(err, exception.ErrSchemaMismatch) {
					reason = "schema"
				}
				l.log.Warnf("%s: skipping %s: %v", svc, path, err)
				se.RecordUnitFailure(err)
				l.recorder.RecordUnitFailure(ctx, l.Name(), svc.Name, reason)
				l.tracer.RecordError(ctx, moduleName, err)
				continue
			}
			yearRows += written
			se.WriteCount += written
			l.recorder.RecordDuration(ctx, "partition_load", time.Since(start),
				map[string]string{"service": svc.Name, "partition": fmt.Sprintf("%04d-%02d", year, month)})
			l.tracer.RecordEvent(ctx, "partition.loaded", map[string]interface{}{"service": svc.Name, "year": year, "month": month, "rows": written})
			l.log.Debugf("%s: loaded %d rows from %s", svc, written, path)
		}
		l.recorder.RecordRows(ctx, l.Name(), svc.Name, year, yearRows)
	}
	l.logStats(ctx, conn, b)
}

// loadPartition reads path into the staging table in batches, then appends the staging
// table to the raw table in one statement so a partition is loaded whole or not at all.
func (l *Loader) loadPartition(ctx context.Context, conn database.QueryBackend, b *query.Builder, cols []trip.Column, path string, batchSize int) (read, written int64, err error) {
	p, err := openPartition(path, cols, l.loc, l.log)
	if err != nil {
		return 0, 0, err
	}
	defer p.close()
	defer func() {
		if _, dropErr := conn.Execute(ctx, b.DropStagingTable()); dropErr != nil {
			l.log.Debugf("failed to drop %s: %v", b.StagingTable(), dropErr)
		}
	}()

	if err := step.Exec(ctx, conn, b.RecreateStagingTable()...); err != nil {
		return 0, 0, exception.NewRecoverablef(moduleName, "failed to create %s", b.StagingTable(), err)
	}
	for {
		rows, err := p.next(int64(batchSize))
		if err != nil {
			return p.read, 0, err
		}
		if len(rows) == 0 {
			break
		}
		if _, err := conn.BulkInsert(ctx, b.StagingTable(), rows, batchSize); err != nil {
			return p.read, 0, exception.NewRecoverablef(moduleName, "failed to insert rows of '%s'", path, err)
		}
	}
	n, err := conn.Execute(ctx, b.AppendStaging())
	if err != nil {
		return p.read, 0, exception.NewRecoverablef(moduleName, "failed to append '%s' to %s", path, b.Service().RawTable(), err)
	}
	return p.read, n, nil
}

type rawStats struct {
	RowCount      int64   `gorm:"column:row_count"`
	TotalDistance float64 `gorm:"column:total_distance"`
	AvgDistance   float64 `gorm:"column:avg_distance"`
	TotalFare     float64 `gorm:"column:total_fare"`
	AvgFare       float64 `gorm:"column:avg_fare"`
}

func (l *Loader) logStats(ctx context.Context, conn database.QueryBackend, b *query.Builder) {
	var stats rawStats
	if err := conn.Fetch(ctx, &stats, b.RawStats()); err != nil {
		l.log.Warnf("%s: failed to compute raw statistics: %v", b.Service(), err)
		return
	}
	l.log.Infof("%s: %d rows loaded, total distance %.2f mi (avg %.2f), total fare $%.2f (avg $%.2f)",
		b.Service().RawTable(), stats.RowCount, stats.TotalDistance, stats.AvgDistance, stats.TotalFare, stats.AvgFare)
}

var _ step.Step = (*Loader)(nil)

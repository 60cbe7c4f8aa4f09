// Package aggregator runs the read-only analytical queries over the transformed trips.
package aggregator

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/fx"

	"github.com/tigerroll/tripco2/internal/query"
	"github.com/tigerroll/tripco2/internal/step"
	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	"github.com/tigerroll/tripco2/pkg/batch/core/config"
	"github.com/tigerroll/tripco2/pkg/batch/core/metrics"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/exception"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
)

const moduleName = "aggregator"

// Trip is the most CO2-intensive trip of a service type.
type Trip struct {
	VendorID *int64  `db:"vendor_id"`
	Pickup   string  `db:"pickup_datetime"`
	Dropoff  string  `db:"dropoff_datetime"`
	Miles    float64 `db:"trip_distance"`
	CO2Kgs   float64 `db:"trip_co2_kgs"`
}

// Bucket is one value of a dimension with the mean CO2 of its trips.
type Bucket struct {
	Value     string  `db:"bucket"`
	AvgCO2Kgs float64 `db:"avg_co2_kg"`
}

// DimensionSummary holds the extreme buckets of one dimension. A nil bucket means the
// query failed or the table was empty.
type DimensionSummary struct {
	Dimension query.Dimension
	Highest   *Bucket
	Lowest    *Bucket
}

// Summary is the analysis of one service type.
type Summary struct {
	Service    string
	MaxTrip    *Trip
	Dimensions []DimensionSummary
}

// Params holds the dependencies of the Aggregator.
type Params struct {
	fx.In
	Pipeline *config.PipelineConfig
	Resolver database.DBConnectionResolver
	Recorder metrics.MetricRecorder
	Tracer   metrics.Tracer
	Logger   *logger.Logger `optional:"true"`
}

// Aggregator reports, per service type, the most CO2-intensive trip and the buckets of
// every dimension with the highest and lowest mean CO2.
type Aggregator struct {
	pipeline  *config.PipelineConfig
	resolver  database.DBConnectionResolver
	recorder  metrics.MetricRecorder
	tracer    metrics.Tracer
	log       *logger.Logger
	summaries []Summary
}

// NewAggregator creates an Aggregator.
func NewAggregator(p Params) *Aggregator {
	log := p.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Aggregator{
		pipeline: p.Pipeline,
		resolver: p.Resolver,
		recorder: p.Recorder,
		tracer:   p.Tracer,
		log:      log.With(moduleName),
	}
}

func (a *Aggregator) Name() string     { return "aggregate" }
func (a *Aggregator) Stage() string    { return config.StageAnalyze }
func (a *Aggregator) PerService() bool { return true }

// Summaries returns the results of the last Execute.
func (a *Aggregator) Summaries() []Summary { return a.summaries }

// Execute summarizes every unit. A failed query is logged and counted on its unit, and
// the remaining queries still run.
func (a *Aggregator) Execute(ctx context.Context, units []*step.Unit) error {
	a.summaries = nil
	conn, d, err := step.Backend(ctx, a.resolver, a.pipeline.DBRef)
	if err != nil {
		step.FailAll(units, err)
		return nil
	}
	sqlDB, err := conn.GetSQLDB()
	if err != nil {
		step.FailAll(units, exception.NewFatal(moduleName, "no database/sql handle", err))
		return nil
	}
	db := sqlx.NewDb(sqlDB, conn.DriverName())
	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.summaries = append(a.summaries, a.Summarize(ctx, db, query.NewBuilder(d, u.Service), u))
	}
	return ctx.Err()
}

// Summarize runs every query of one service type.
func (a *Aggregator) Summarize(ctx context.Context, db *sqlx.DB, b *query.Builder, u *step.Unit) Summary {
	svc := u.Service
	sum := Summary{Service: svc.Name}

	var maxTrip Trip
	if a.get(ctx, db, u, "max_trip", &maxTrip, b.MaxCO2Trip()) {
		sum.MaxTrip = &maxTrip
		a.log.Infof("%s: most CO2-intensive trip %.3f kg over %.2f mi, %s to %s",
			svc, maxTrip.CO2Kgs, maxTrip.Miles, maxTrip.Pickup, maxTrip.Dropoff)
	}

	for _, dim := range query.Dimensions() {
		ds := DimensionSummary{Dimension: dim}
		var hi, lo Bucket
		if a.get(ctx, db, u, string(dim)+"_max", &hi, b.BucketExtreme(dim, true)) {
			ds.Highest = &hi
			a.log.Infof("%s: %s with the highest mean CO2 is %s (%.3f kg)", svc, dim, hi.Value, hi.AvgCO2Kgs)
		}
		if a.get(ctx, db, u, string(dim)+"_min", &lo, b.BucketExtreme(dim, false)) {
			ds.Lowest = &lo
			a.log.Infof("%s: %s with the lowest mean CO2 is %s (%.3f kg)", svc, dim, lo.Value, lo.AvgCO2Kgs)
		}
		sum.Dimensions = append(sum.Dimensions, ds)
	}
	return sum
}

// get reads a single row into dest. It reports false after logging when the query fails
// or selects nothing.
func (a *Aggregator) get(ctx context.Context, db *sqlx.DB, u *step.Unit, name string, dest interface{}, stmt database.Statement) bool {
	start := time.Now()
	err := db.GetContext(ctx, dest, db.Rebind(stmt.SQL), stmt.Args...)
	a.recorder.RecordDuration(ctx, "aggregate_query", time.Since(start),
		map[string]string{"query": name, "service": u.Service.Name})
	if err == nil {
		u.Execution.ReadCount++
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, sql.ErrNoRows) {
		a.log.Warnf("%s: query %s returned no rows", u.Service, name)
		return false
	}
	err = exception.NewRecoverablef(moduleName, "%s: query %s failed", u.Service, name, err)
	a.log.Errorf("%v", err)
	u.Execution.RecordUnitFailure(err)
	a.recorder.RecordUnitFailure(ctx, a.Name(), u.Service.Name, "query")
	a.tracer.RecordError(ctx, moduleName, err)
	return false
}

var _ step.Step = (*Aggregator)(nil)

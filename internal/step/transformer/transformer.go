// Package transformer enriches clean trips with CO2 estimates and calendar features.
package transformer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/tripco2/internal/emission"
	"github.com/tigerroll/tripco2/internal/query"
	"github.com/tigerroll/tripco2/internal/step"
	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	"github.com/tigerroll/tripco2/pkg/batch/core/config"
	"github.com/tigerroll/tripco2/pkg/batch/core/metrics"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/exception"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
)

const moduleName = "transformer"

// Params holds the dependencies of the Transformer.
type Params struct {
	fx.In
	Pipeline *config.PipelineConfig
	Resolver database.DBConnectionResolver
	Recorder metrics.MetricRecorder
	Tracer   metrics.Tracer
	Logger   *logger.Logger `optional:"true"`
}

// Transformer rebuilds transform_<service>_trips from the clean tables.
type Transformer struct {
	pipeline *config.PipelineConfig
	resolver database.DBConnectionResolver
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
	log      *logger.Logger
}

// NewTransformer creates a Transformer.
func NewTransformer(p Params) *Transformer {
	log := p.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Transformer{
		pipeline: p.Pipeline,
		resolver: p.Resolver,
		recorder: p.Recorder,
		tracer:   p.Tracer,
		log:      log.With(moduleName),
	}
}

func (t *Transformer) Name() string     { return config.StageTransform }
func (t *Transformer) Stage() string    { return config.StageTransform }
func (t *Transformer) PerService() bool { return true }

type target struct {
	unit    *step.Unit
	builder *query.Builder
}

// Execute recreates the transform table of every unit, then fills the tables of the units
// whose emission factor exists year by year, each year covering every such service type.
func (t *Transformer) Execute(ctx context.Context, units []*step.Unit) error {
	conn, d, err := step.Backend(ctx, t.resolver, t.pipeline.DBRef)
	if err != nil {
		step.FailAll(units, err)
		return nil
	}
	factors := emission.NewTable(conn, d, t.log)

	targets := make([]target, 0, len(units))
	for _, u := range units {
		b := query.NewBuilder(d, u.Service)
		if err := step.Exec(ctx, conn, b.RecreateTransformTable()...); err != nil {
			u.Fail(exception.NewFatalf(moduleName, "failed to recreate %s", u.Service.TransformTable(), err))
			continue
		}
		grams, err := factors.Lookup(ctx, u.Service.FactorKey)
		if err != nil {
			t.log.Errorf("%s: %v", u.Service, err)
			u.Fail(err)
			continue
		}
		t.log.Infof("%s: %s emits %.1f g CO2 per mile", u.Service, u.Service.FactorKey, grams)
		targets = append(targets, target{unit: u, builder: b})
	}

	for _, year := range t.pipeline.Years() {
		for _, tg := range targets {
			if err := ctx.Err(); err != nil {
				return err
			}
			t.transformYear(ctx, conn, tg, year)
		}
	}
	return ctx.Err()
}

func (t *Transformer) transformYear(ctx context.Context, conn database.QueryBackend, tg target, year int) {
	svc := tg.unit.Service
	se := tg.unit.Execution
	start := time.Now()
	n, err := conn.Execute(ctx, tg.builder.InsertTransform(year))
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		err = exception.NewRecoverablef(moduleName, "%s %d: failed to transform", svc, year, err)
		t.log.Errorf("%v", err)
		se.RecordUnitFailure(err)
		t.recorder.RecordUnitFailure(ctx, t.Name(), svc.Name, "query")
		t.tracer.RecordError(ctx, moduleName, err)
		return
	}
	se.ReadCount += n
	se.WriteCount += n
	t.recorder.RecordRows(ctx, t.Name(), svc.Name, year, n)
	t.recorder.RecordDuration(ctx, "transform_year", time.Since(start),
		map[string]string{"service": svc.Name, "year": fmt.Sprint(year)})
	t.tracer.RecordEvent(ctx, "year.transformed", map[string]interface{}{"service": svc.Name, "year": year, "rows": n})
	t.log.Infof("%s %d: %d rows transformed", svc, year, n)
}

var _ step.Step = (*Transformer)(nil)

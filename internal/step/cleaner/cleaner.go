// Package cleaner materializes the validated, de-duplicated trips of each service type.
package cleaner

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/fx"

	"github.com/tigerroll/tripco2/internal/query"
	"github.com/tigerroll/tripco2/internal/step"
	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	"github.com/tigerroll/tripco2/pkg/batch/core/config"
	"github.com/tigerroll/tripco2/pkg/batch/core/metrics"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/exception"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
)

const moduleName = "cleaner"

// Params holds the dependencies of the Cleaner.
type Params struct {
	fx.In
	Pipeline *config.PipelineConfig
	Resolver database.DBConnectionResolver
	Recorder metrics.MetricRecorder
	Tracer   metrics.Tracer
	Logger   *logger.Logger `optional:"true"`
}

// Cleaner rebuilds clean_<service>_trips from the raw tables, one year at a time.
type Cleaner struct {
	pipeline *config.PipelineConfig
	resolver database.DBConnectionResolver
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
	log      *logger.Logger
}

// NewCleaner creates a Cleaner.
func NewCleaner(p Params) *Cleaner {
	log := p.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Cleaner{
		pipeline: p.Pipeline,
		resolver: p.Resolver,
		recorder: p.Recorder,
		tracer:   p.Tracer,
		log:      log.With(moduleName),
	}
}

func (c *Cleaner) Name() string     { return config.StageClean }
func (c *Cleaner) Stage() string    { return config.StageClean }
func (c *Cleaner) PerService() bool { return true }

// YearResult is the outcome of cleaning one year of one service type.
type YearResult struct {
	Year    int
	Raw     int64
	Clean   int64
	Removed int64
	// Violations counts the clean rows failing each check, keyed by its label.
	Violations map[string]int64
}

// Execute cleans every unit. A year that fails is recorded on its unit and skipped.
func (c *Cleaner) Execute(ctx context.Context, units []*step.Unit) error {
	conn, d, err := step.Backend(ctx, c.resolver, c.pipeline.DBRef)
	if err != nil {
		step.FailAll(units, err)
		return nil
	}
	for _, u := range units {
		if err := ctx.Err(); err != nil {
			return err
		}
		b := query.NewBuilder(d, u.Service)
		if err := step.Exec(ctx, conn, b.RecreateCleanTable()...); err != nil {
			u.Fail(exception.NewFatalf(moduleName, "failed to recreate %s", u.Service.CleanTable(), err))
			continue
		}
		var failures *multierror.Error
		for _, year := range c.pipeline.Years() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := c.CleanYear(ctx, conn, b, u, year); err != nil {
				failures = multierror.Append(failures, err)
			}
		}
		if err := failures.ErrorOrNil(); err != nil {
			c.log.Warnf("%s: %d of %d years skipped", u.Service, len(failures.Errors), len(c.pipeline.Years()))
		}
	}
	return ctx.Err()
}

// CleanYear appends the valid distinct raw rows of year to the clean table, then checks
// the clean rows of that year against every rule. Check violations are warnings only.
func (c *Cleaner) CleanYear(ctx context.Context, conn database.QueryBackend, b *query.Builder, u *step.Unit, year int) (*YearResult, error) {
	svc := u.Service
	start := time.Now()
	res := &YearResult{Year: year, Violations: make(map[string]int64)}

	fail := func(what string, err error) (*YearResult, error) {
		err = exception.NewRecoverablef(moduleName, "%s %d: failed to %s", svc, year, what, err)
		if exception.IsCanceled(ctx.Err()) {
			return nil, err
		}
		c.log.Errorf("%v", err)
		u.Execution.RecordUnitFailure(err)
		c.recorder.RecordUnitFailure(ctx, c.Name(), svc.Name, "query")
		c.tracer.RecordError(ctx, moduleName, err)
		return nil, err
	}

	if err := conn.Fetch(ctx, &res.Raw, b.CountYear(svc.RawTable(), year)); err != nil {
		return fail("count raw rows", err)
	}
	n, err := conn.Execute(ctx, b.InsertClean(year))
	if err != nil {
		return fail("insert clean rows", err)
	}
	res.Clean = n
	res.Removed = res.Raw - res.Clean

	u.Execution.ReadCount += res.Raw
	u.Execution.WriteCount += res.Clean
	u.Execution.FilterCount += res.Removed
	c.recorder.RecordRows(ctx, c.Name(), svc.Name, year, res.Clean)
	c.recorder.RecordFiltered(ctx, c.Name(), svc.Name, year, res.Removed)
	c.log.Infof("%s %d: %d raw rows, %d clean rows, %d removed", svc, year, res.Raw, res.Clean, res.Removed)

	for _, rule := range query.FilterRules() {
		var violations int64
		if err := conn.Fetch(ctx, &violations, b.CountViolations(rule, year)); err != nil {
			c.log.Warnf("%s %d: check '%s' could not run: %v", svc, year, rule.Check, err)
			continue
		}
		res.Violations[rule.Check] = violations
		if violations > 0 {
			c.log.Warnf("%s %d: check '%s' found %d rows", svc, year, rule.Check, violations)
		} else {
			c.log.Debugf("%s %d: check '%s' passed", svc, year, rule.Check)
		}
	}

	c.recorder.RecordDuration(ctx, "clean_year", time.Since(start),
		map[string]string{"service": svc.Name, "year": fmt.Sprint(year)})
	c.tracer.RecordEvent(ctx, "year.cleaned", map[string]interface{}{
		"service": svc.Name, "year": year, "raw": res.Raw, "clean": res.Clean, "removed": res.Removed,
	})
	return res, nil
}

var _ step.Step = (*Cleaner)(nil)

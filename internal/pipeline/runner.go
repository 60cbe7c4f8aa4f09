// Package pipeline runs the enabled stages in order and records the run ledger.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/tripco2/internal/domain/service"
	"github.com/tigerroll/tripco2/internal/step"
	"github.com/tigerroll/tripco2/pkg/batch/core/config"
	model "github.com/tigerroll/tripco2/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/tripco2/pkg/batch/core/domain/repository"
	"github.com/tigerroll/tripco2/pkg/batch/core/metrics"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/exception"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
)

const moduleName = "pipeline"

// Migrator brings the ledger schema up to date.
type Migrator interface {
	Execute(ctx context.Context) error
}

// Params holds the dependencies of the Runner.
type Params struct {
	fx.In
	Pipeline   *config.PipelineConfig
	Services   []service.Type
	Steps      []step.Step
	Migrator   Migrator `optional:"true"`
	Repository repository.RunRepository
	Recorder   metrics.MetricRecorder
	Tracer     metrics.Tracer
	Logger     *logger.Logger `optional:"true"`
}

// Runner executes the steps sequentially. A step only starts after the previous one
// finished for every service type.
type Runner struct {
	pipeline *config.PipelineConfig
	services []service.Type
	steps    []step.Step
	migrator Migrator
	repo     repository.RunRepository
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
	log      *logger.Logger
}

// NewRunner creates a Runner.
func NewRunner(p Params) *Runner {
	log := p.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Runner{
		pipeline: p.Pipeline,
		services: p.Services,
		steps:    p.Steps,
		migrator: p.Migrator,
		repo:     p.Repository,
		recorder: p.Recorder,
		tracer:   p.Tracer,
		log:      log.With(moduleName),
	}
}

// Run executes one pipeline run. The returned execution is always finished: COMPLETED
// when no stage failed, FAILED when one did and STOPPED when ctx was canceled.
func (r *Runner) Run(ctx context.Context) *model.RunExecution {
	run := model.NewRunExecution(r.pipeline.FromYear, r.pipeline.ToYear, r.pipeline.Stages)
	if r.migrator != nil {
		if err := r.migrator.Execute(ctx); err != nil {
			r.log.Errorf("Run ledger unavailable: %v", err)
			run.MarkAsFailed(err)
			return run
		}
	}

	run.MarkAsStarted()
	r.save(ctx, func(ctx context.Context) error { return r.repo.SaveRunExecution(ctx, run) })
	r.recorder.RecordRunStart(ctx, run)
	runCtx, endSpan := r.tracer.StartRunSpan(ctx, run)
	defer endSpan()
	r.log.Infof("Run %s started: years %d..%d, %d service types", run.ID, run.FromYear, run.ToYear, len(r.services))

	for _, s := range r.steps {
		if !r.pipeline.StageEnabled(s.Stage()) {
			r.log.Infof("Stage %s disabled, skipping %s", s.Stage(), s.Name())
			continue
		}
		if err := r.runStep(runCtx, run, s); err != nil {
			break
		}
	}

	switch {
	case exception.IsCanceled(runCtx.Err()):
		run.MarkAsStopped()
		run.AddFailureException(runCtx.Err())
	case run.HasFailedStage():
		run.MarkAsFailed(nil)
	default:
		run.MarkAsCompleted()
	}
	r.recorder.RecordRunEnd(ctx, run)
	r.save(ctx, func(ctx context.Context) error { return r.repo.SaveRunExecution(ctx, run) })
	r.log.Infof("Run %s finished: %s in %s", run.ID, run.Status, run.EndTime.Sub(run.StartTime).Round(time.Millisecond))
	return run
}

// runStep executes s over its units and turns each unit's outcome into a stage status.
// It returns an error only when the run was canceled.
func (r *Runner) runStep(ctx context.Context, run *model.RunExecution, s step.Step) error {
	units := r.units(run, s)
	ends := make([]func(), len(units))
	for i, u := range units {
		u.Execution.MarkAsStarted()
		r.recorder.RecordStageStart(ctx, u.Execution)
		_, ends[i] = r.tracer.StartStageSpan(ctx, u.Execution)
		r.save(ctx, func(ctx context.Context) error { return r.repo.SaveStageExecution(ctx, u.Execution) })
	}

	err := s.Execute(ctx, units)
	canceled := exception.IsCanceled(err) || ctx.Err() != nil

	for i, u := range units {
		se := u.Execution
		switch {
		case u.Failed():
			se.MarkAsFailed(u.Err)
			run.AddFailureException(u.Err)
			r.tracer.RecordError(ctx, s.Name(), u.Err)
			r.log.Errorf("Stage %s failed for %s: %s", s.Name(), label(u), exception.ExtractErrorMessage(u.Err))
		case canceled:
			se.MarkAsStopped()
		default:
			se.MarkAsCompleted()
			r.log.Infof("Stage %s %s for %s: read=%d written=%d filtered=%d skipped=%d",
				s.Name(), se.ExitStatus, label(u), se.ReadCount, se.WriteCount, se.FilterCount, se.FailedUnits)
		}
		r.recorder.RecordStageEnd(ctx, se)
		ends[i]()
		r.save(ctx, func(ctx context.Context) error { return r.repo.SaveStageExecution(ctx, se) })
	}
	if canceled {
		return ctx.Err()
	}
	return nil
}

func (r *Runner) units(run *model.RunExecution, s step.Step) []*step.Unit {
	if !s.PerService() {
		return []*step.Unit{step.NewUnit(service.Type{}, model.NewStageExecution(run, s.Name(), ""))}
	}
	units := make([]*step.Unit, 0, len(r.services))
	for _, svc := range r.services {
		units = append(units, step.NewUnit(svc, model.NewStageExecution(run, s.Name(), svc.Name)))
	}
	return units
}

// save persists a ledger record. Ledger failures are logged and never fail the run, and
// records are still written after ctx was canceled.
func (r *Runner) save(ctx context.Context, fn func(ctx context.Context) error) {
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		r.log.Warnf("Failed to save run ledger: %v", err)
	}
}

func label(u *step.Unit) string {
	if u.Service.Name == "" {
		return "all service types"
	}
	return u.Service.Name
}

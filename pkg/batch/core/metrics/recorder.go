// Package metrics defines the measurement and tracing hooks the pipeline runner and stages call.
// Backends live in pkg/batch/infrastructure/metrics.
package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/tripco2/pkg/batch/core/domain/model"
)

// MetricRecorder is an abstract interface for recording metrics of a pipeline run.
//
// Stage-level calls carry the StageExecution so backends can label by stage and service type.
// Row counts are reported per unit of work as they are produced.
type MetricRecorder interface {
	// RecordRunStart records the start of a RunExecution.
	RecordRunStart(ctx context.Context, run *model.RunExecution)
	// RecordRunEnd records the end of a RunExecution. Runs without an EndTime are ignored.
	RecordRunEnd(ctx context.Context, run *model.RunExecution)

	// RecordStageStart records the start of a StageExecution.
	RecordStageStart(ctx context.Context, stage *model.StageExecution)
	// RecordStageEnd records the end of a StageExecution, including its final status.
	RecordStageEnd(ctx context.Context, stage *model.StageExecution)

	// RecordRows records rows materialized by a stage for one service type and year.
	RecordRows(ctx context.Context, stage, service string, year int, count int64)
	// RecordFiltered records rows a stage dropped for one service type and year.
	RecordFiltered(ctx context.Context, stage, service string, year int, count int64)
	// RecordUnitFailure records a skipped unit of work (a partition or a year).
	//
	// reason is a short label such as "missing", "schema" or "query".
	RecordUnitFailure(ctx context.Context, stage, service, reason string)

	// RecordDuration records the execution time of a named operation.
	// tags holds additional labels, e.g. {"query": "max_trip", "service": "yellow"}.
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}

// compositeRecorder fans every call out to several recorders.
type compositeRecorder []MetricRecorder

// NewCompositeRecorder returns a MetricRecorder forwarding to every non-nil recorder.
func NewCompositeRecorder(recorders ...MetricRecorder) MetricRecorder {
	out := make(compositeRecorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (c compositeRecorder) RecordRunStart(ctx context.Context, run *model.RunExecution) {
	for _, r := range c {
		r.RecordRunStart(ctx, run)
	}
}

func (c compositeRecorder) RecordRunEnd(ctx context.Context, run *model.RunExecution) {
	for _, r := range c {
		r.RecordRunEnd(ctx, run)
	}
}

func (c compositeRecorder) RecordStageStart(ctx context.Context, stage *model.StageExecution) {
	for _, r := range c {
		r.RecordStageStart(ctx, stage)
	}
}

func (c compositeRecorder) RecordStageEnd(ctx context.Context, stage *model.StageExecution) {
	for _, r := range c {
		r.RecordStageEnd(ctx, stage)
	}
}

func (c compositeRecorder) RecordRows(ctx context.Context, stage, service string, year int, count int64) {
	for _, r := range c {
		r.RecordRows(ctx, stage, service, year, count)
	}
}

func (c compositeRecorder) RecordFiltered(ctx context.Context, stage, service string, year int, count int64) {
	for _, r := range c {
		r.RecordFiltered(ctx, stage, service, year, count)
	}
}

func (c compositeRecorder) RecordUnitFailure(ctx context.Context, stage, service, reason string) {
	for _, r := range c {
		r.RecordUnitFailure(ctx, stage, service, reason)
	}
}

func (c compositeRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	for _, r := range c {
		r.RecordDuration(ctx, name, duration, tags)
	}
}

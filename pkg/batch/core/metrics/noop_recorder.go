package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/tripco2/pkg/batch/core/domain/model"
)

// NoOpMetricRecorder discards every measurement.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a NoOpMetricRecorder.
func NewNoOpMetricRecorder() *NoOpMetricRecorder { return &NoOpMetricRecorder{} }

func (NoOpMetricRecorder) RecordRunStart(context.Context, *model.RunExecution)                      {}
func (NoOpMetricRecorder) RecordRunEnd(context.Context, *model.RunExecution)                        {}
func (NoOpMetricRecorder) RecordStageStart(context.Context, *model.StageExecution)                  {}
func (NoOpMetricRecorder) RecordStageEnd(context.Context, *model.StageExecution)                    {}
func (NoOpMetricRecorder) RecordRows(context.Context, string, string, int, int64)                   {}
func (NoOpMetricRecorder) RecordFiltered(context.Context, string, string, int, int64)               {}
func (NoOpMetricRecorder) RecordUnitFailure(context.Context, string, string, string)                {}
func (NoOpMetricRecorder) RecordDuration(context.Context, string, time.Duration, map[string]string) {}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// NoOpTracer creates no spans.
type NoOpTracer struct{}

// NewNoOpTracer creates a NoOpTracer.
func NewNoOpTracer() *NoOpTracer { return &NoOpTracer{} }

func (NoOpTracer) StartRunSpan(ctx context.Context, _ *model.RunExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (NoOpTracer) StartStageSpan(ctx context.Context, _ *model.StageExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (NoOpTracer) RecordError(context.Context, string, error)                  {}
func (NoOpTracer) RecordEvent(context.Context, string, map[string]interface{}) {}

var _ Tracer = (*NoOpTracer)(nil)

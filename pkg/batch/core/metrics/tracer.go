package metrics

import (
	"context"

	model "github.com/tigerroll/tripco2/pkg/batch/core/domain/model"
)

// Tracer is an abstract interface for distributed tracing of a run.
type Tracer interface {
	// StartRunSpan starts the root span of a RunExecution.
	// The returned function ends the span and should be deferred.
	StartRunSpan(ctx context.Context, run *model.RunExecution) (context.Context, func())

	// StartStageSpan starts a child span for a StageExecution.
	StartStageSpan(ctx context.Context, stage *model.StageExecution) (context.Context, func())

	// RecordError records an error in the current span.
	// module is the component where the error occurred (e.g., "loader", "cleaner").
	RecordError(ctx context.Context, module string, err error)

	// RecordEvent records an event in the current span.
	// Example attributes: map[string]interface{}{"year": 2019, "rows": 180}
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}

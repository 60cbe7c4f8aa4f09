// Package repository defines how run and stage executions are persisted.
package repository

import (
	"context"
	"errors"

	model "github.com/tigerroll/tripco2/pkg/batch/core/domain/model"
)

// ErrRunExecutionNotFound is returned when no run with the requested ID exists.
var ErrRunExecutionNotFound = errors.New("run execution not found")

// RunRepository persists the run ledger. Save operations insert or replace by ID.
type RunRepository interface {
	SaveRunExecution(ctx context.Context, run *model.RunExecution) error
	SaveStageExecution(ctx context.Context, stage *model.StageExecution) error
	// FindRunExecution loads a run together with its stage executions in start order.
	FindRunExecution(ctx context.Context, id string) (*model.RunExecution, error)
}

// Package step defines the contract between the pipeline runner and its stages.
package step

import (
	"context"

	"github.com/tigerroll/tripco2/internal/domain/service"
	model "github.com/tigerroll/tripco2/pkg/batch/core/domain/model"
)

// Unit is the work of one stage for one service type. Stages spanning every service
// receive a single Unit whose Service is the zero value.
type Unit struct {
	Service   service.Type
	Execution *model.StageExecution
	// Err is the fatal failure of the unit, set through Fail.
	Err error
}

// NewUnit pairs svc with its execution record.
func NewUnit(svc service.Type, se *model.StageExecution) *Unit {
	return &Unit{Service: svc, Execution: se}
}

// Fail marks the unit failed. Only the first failure is kept.
func (u *Unit) Fail(err error) {
	if u.Err == nil {
		u.Err = err
	}
}

// Failed reports whether Fail was called.
func (u *Unit) Failed() bool { return u.Err != nil }

// Step is one stage of the pipeline.
//
// Execute must not let a failure for one unit affect another. Fatal failures are recorded
// with Unit.Fail and recoverable ones with StageExecution.RecordUnitFailure. The returned
// error is reserved for cancellation of ctx.
type Step interface {
	// Name is the stage name recorded on executions ("load", "clean", ...).
	Name() string
	// Stage is the configured stage that enables this step.
	Stage() string
	// PerService reports whether the step gets one Unit per service type.
	PerService() bool
	Execute(ctx context.Context, units []*Unit) error
}

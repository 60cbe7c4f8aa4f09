package test

import (
	model "github.com/tigerroll/tripco2/pkg/batch/core/domain/model"
)

// NewTestRunExecution creates a started RunExecution covering fromYear..toYear.
func NewTestRunExecution(fromYear, toYear int, stages ...string) *model.RunExecution {
	run := model.NewRunExecution(fromYear, toYear, stages)
	run.MarkAsStarted()
	return run
}

// NewTestStageExecution creates a started StageExecution attached to run.
func NewTestStageExecution(run *model.RunExecution, stage, service string) *model.StageExecution {
	se := model.NewStageExecution(run, stage, service)
	se.MarkAsStarted()
	return se
}

package sql

import (
	"strings"

	"github.com/tigerroll/tripco2/pkg/batch/core/domain/model"
)

func fromDomainRunExecution(re *model.RunExecution) *PipelineRunEntity {
	return &PipelineRunEntity{
		ID:          re.ID,
		Status:      re.Status.String(),
		FromYear:    re.FromYear,
		ToYear:      re.ToYear,
		Stages:      strings.Join(re.Stages, ","),
		StartTime:   re.StartTime,
		EndTime:     re.EndTime,
		ExitMessage: re.ExitMessage(),
	}
}

func toDomainRunExecution(e *PipelineRunEntity) *model.RunExecution {
	re := &model.RunExecution{
		ID:              e.ID,
		FromYear:        e.FromYear,
		ToYear:          e.ToYear,
		StartTime:       e.StartTime,
		EndTime:         e.EndTime,
		Status:          model.BatchStatus(e.Status),
		ExitStatus:      exitStatusOf(model.BatchStatus(e.Status)),
		Failures:        splitFailures(e.ExitMessage),
		StageExecutions: make([]*model.StageExecution, 0),
	}
	if e.Stages != "" {
		re.Stages = strings.Split(e.Stages, ",")
	}
	return re
}

func fromDomainStageExecution(se *model.StageExecution) *StageRunEntity {
	return &StageRunEntity{
		ID:          se.ID,
		RunID:       se.RunExecutionID,
		Stage:       se.StageName,
		Service:     se.Service,
		Status:      se.Status.String(),
		ReadCount:   se.ReadCount,
		WriteCount:  se.WriteCount,
		FilterCount: se.FilterCount,
		FailedUnits: se.FailedUnits,
		StartTime:   se.StartTime,
		EndTime:     se.EndTime,
		ExitMessage: se.ExitMessage(),
	}
}

func toDomainStageExecution(e *StageRunEntity, run *model.RunExecution) *model.StageExecution {
	se := &model.StageExecution{
		ID:             e.ID,
		StageName:      e.Stage,
		Service:        e.Service,
		RunExecution:   run,
		RunExecutionID: e.RunID,
		StartTime:      e.StartTime,
		EndTime:        e.EndTime,
		Status:         model.BatchStatus(e.Status),
		ExitStatus:     exitStatusOf(model.BatchStatus(e.Status)),
		Failures:       splitFailures(e.ExitMessage),
		ReadCount:      e.ReadCount,
		WriteCount:     e.WriteCount,
		FilterCount:    e.FilterCount,
		FailedUnits:    e.FailedUnits,
	}
	if se.Status == model.BatchStatusCompleted && se.FailedUnits > 0 {
		se.ExitStatus = model.ExitStatusCompletedWithSkips
	}
	return se
}

func exitStatusOf(s model.BatchStatus) model.ExitStatus {
	switch s {
	case model.BatchStatusCompleted:
		return model.ExitStatusCompleted
	case model.BatchStatusFailed:
		return model.ExitStatusFailed
	case model.BatchStatusStopped:
		return model.ExitStatusStopped
	default:
		return model.ExitStatusUnknown
	}
}

func splitFailures(msg string) model.FailureList {
	if msg == "" {
		return model.FailureList{}
	}
	return model.FailureList(strings.Split(msg, "; "))
}

package sql

import (
	"time"
)

// PipelineRunEntity is the pipeline_runs row of a RunExecution.
type PipelineRunEntity struct {
	ID          string     `gorm:"column:id;primaryKey"`
	Status      string     `gorm:"column:status"`
	FromYear    int        `gorm:"column:from_year"`
	ToYear      int        `gorm:"column:to_year"`
	Stages      string     `gorm:"column:stages"`
	StartTime   time.Time  `gorm:"column:start_time"`
	EndTime     *time.Time `gorm:"column:end_time"`
	ExitMessage string     `gorm:"column:exit_message"`
}

func (PipelineRunEntity) TableName() string {
	return "pipeline_runs"
}

// StageRunEntity is the stage_runs row of a StageExecution.
type StageRunEntity struct {
	ID          string     `gorm:"column:id;primaryKey"`
	RunID       string     `gorm:"column:run_id"`
	Stage       string     `gorm:"column:stage"`
	Service     string     `gorm:"column:service"`
	Status      string     `gorm:"column:status"`
	ReadCount   int64      `gorm:"column:read_count"`
	WriteCount  int64      `gorm:"column:write_count"`
	FilterCount int64      `gorm:"column:filter_count"`
	FailedUnits int        `gorm:"column:failed_units"`
	StartTime   time.Time  `gorm:"column:start_time"`
	EndTime     *time.Time `gorm:"column:end_time"`
	ExitMessage string     `gorm:"column:exit_message"`
}

func (StageRunEntity) TableName() string {
	return "stage_runs"
}

var (
	pipelineRunUpdateColumns = []string{"status", "from_year", "to_year", "stages", "start_time", "end_time", "exit_message"}
	stageRunUpdateColumns    = []string{"status", "read_count", "write_count", "filter_count", "failed_units", "start_time", "end_time", "exit_message"}
)

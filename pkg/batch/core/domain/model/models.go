// Package model holds the execution records of a pipeline run and its stages.
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tigerroll/tripco2/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
)

// BatchStatus represents the state of a run or stage execution.
type BatchStatus string

const (
	BatchStatusStarting  BatchStatus = "STARTING"
	BatchStatusStarted   BatchStatus = "STARTED"
	BatchStatusCompleted BatchStatus = "COMPLETED"
	BatchStatusFailed    BatchStatus = "FAILED"
	BatchStatusStopped   BatchStatus = "STOPPED"
)

// String returns the string representation of the BatchStatus.
func (s BatchStatus) String() string {
	return string(s)
}

// IsFinished checks if the BatchStatus represents a finished state.
func (s BatchStatus) IsFinished() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusStopped:
		return true
	default:
		return false
	}
}

// ExitStatus represents the detailed status upon run/stage completion.
type ExitStatus string

const (
	ExitStatusUnknown   ExitStatus = "UNKNOWN"
	ExitStatusCompleted ExitStatus = "COMPLETED"
	// ExitStatusCompletedWithSkips marks a stage that finished after skipping failed units.
	ExitStatusCompletedWithSkips ExitStatus = "COMPLETED_WITH_SKIPS"
	ExitStatusFailed             ExitStatus = "FAILED"
	ExitStatusStopped            ExitStatus = "STOPPED"
	ExitStatusNoOp               ExitStatus = "NO_OP"
)

// String returns the ExitStatus as a string.
func (s ExitStatus) String() string {
	return string(s)
}

// FailureList holds a list of error messages.
type FailureList []string

// Value implements the `driver.Valuer` interface, converting FailureList to a JSON string.
func (fl FailureList) Value() (driver.Value, error) {
	if fl == nil {
		return "[]", nil
	}
	data, err := json.Marshal(fl)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements the `sql.Scanner` interface, converting a JSON string to FailureList.
func (fl *FailureList) Scan(value interface{}) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		*fl = FailureList{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for FailureList: %T", value)
	}
	if len(b) == 0 {
		*fl = FailureList{}
		return nil
	}
	if err := json.Unmarshal(b, fl); err != nil {
		return fmt.Errorf("failed to unmarshal FailureList JSON: %w", err)
	}
	return nil
}

// add appends the message of err unless it is already present.
func (fl *FailureList) add(err error) bool {
	if err == nil {
		return false
	}
	msg := exception.ExtractErrorMessage(err)
	for _, existing := range *fl {
		if existing == msg {
			return false
		}
	}
	*fl = append(*fl, msg)
	return true
}

// NewID generates a new UUID string.
func NewID() string {
	return uuid.New().String()
}

// RunExecution is one invocation of the pipeline.
type RunExecution struct {
	ID              string
	FromYear        int
	ToYear          int
	Stages          []string
	StartTime       time.Time
	EndTime         *time.Time
	Status          BatchStatus
	ExitStatus      ExitStatus
	Failures        FailureList
	StageExecutions []*StageExecution
	LastUpdated     time.Time
}

// NewRunExecution creates a RunExecution in the STARTING state.
func NewRunExecution(fromYear, toYear int, stages []string) *RunExecution {
	now := time.Now()
	return &RunExecution{
		ID:              NewID(),
		FromYear:        fromYear,
		ToYear:          toYear,
		Stages:          stages,
		StartTime:       now,
		Status:          BatchStatusStarting,
		ExitStatus:      ExitStatusUnknown,
		Failures:        make(FailureList, 0),
		StageExecutions: make([]*StageExecution, 0),
		LastUpdated:     now,
	}
}

// isValidTransition checks if a state transition is valid. Runs and stages share the same rules.
func isValidTransition(current, next BatchStatus) bool {
	switch current {
	case BatchStatusStarting:
		return next == BatchStatusStarted || next == BatchStatusFailed || next == BatchStatusStopped
	case BatchStatusStarted:
		return next == BatchStatusCompleted || next == BatchStatusFailed || next == BatchStatusStopped
	default:
		return false
	}
}

// TransitionTo safely transitions the state of the RunExecution.
func (re *RunExecution) TransitionTo(newStatus BatchStatus) error {
	if !isValidTransition(re.Status, newStatus) {
		return fmt.Errorf("RunExecution (ID: %s): Invalid state transition: %s -> %s", re.ID, re.Status, newStatus)
	}
	re.Status = newStatus
	return nil
}

// MarkAsStarted updates the RunExecution status to STARTED.
func (re *RunExecution) MarkAsStarted() {
	re.forceTransition(BatchStatusStarted)
	re.LastUpdated = time.Now()
}

// MarkAsCompleted updates the RunExecution status to COMPLETED.
func (re *RunExecution) MarkAsCompleted() {
	re.finish(BatchStatusCompleted, ExitStatusCompleted)
}

// MarkAsFailed updates the RunExecution status to FAILED and records err.
func (re *RunExecution) MarkAsFailed(err error) {
	re.finish(BatchStatusFailed, ExitStatusFailed)
	re.AddFailureException(err)
}

// MarkAsStopped updates the RunExecution status to STOPPED.
func (re *RunExecution) MarkAsStopped() {
	re.finish(BatchStatusStopped, ExitStatusStopped)
}

func (re *RunExecution) finish(status BatchStatus, exit ExitStatus) {
	re.forceTransition(status)
	re.ExitStatus = exit
	now := time.Now()
	re.EndTime = &now
	re.LastUpdated = now
}

func (re *RunExecution) forceTransition(status BatchStatus) {
	if err := re.TransitionTo(status); err != nil {
		logger.Warnf("Could not update RunExecution (ID: %s) status to %s: %v", re.ID, status, err)
		re.Status = status
	}
}

// AddFailureException adds error information to the RunExecution. Duplicate messages are skipped.
func (re *RunExecution) AddFailureException(err error) {
	if re.Failures.add(err) {
		re.LastUpdated = time.Now()
	}
}

// AddStageExecution attaches se to the run.
func (re *RunExecution) AddStageExecution(se *StageExecution) {
	re.StageExecutions = append(re.StageExecutions, se)
}

// HasFailedStage reports whether any stage of the run ended FAILED.
func (re *RunExecution) HasFailedStage() bool {
	for _, se := range re.StageExecutions {
		if se.Status == BatchStatusFailed {
			return true
		}
	}
	return false
}

// ExitCode is the process exit code for the run: 0 when completed, 1 otherwise.
func (re *RunExecution) ExitCode() int {
	if re.Status == BatchStatusCompleted {
		return 0
	}
	return 1
}

// ExitMessage joins the recorded failures.
func (re *RunExecution) ExitMessage() string {
	return strings.Join(re.Failures, "; ")
}

// StageExecution is one stage applied to one service type within a run.
// Service is empty for stages that span every service type.
type StageExecution struct {
	ID             string
	StageName      string
	Service        string
	RunExecution   *RunExecution
	RunExecutionID string
	StartTime      time.Time
	EndTime        *time.Time
	Status         BatchStatus
	ExitStatus     ExitStatus
	Failures       FailureList
	ReadCount      int64
	WriteCount     int64
	FilterCount    int64
	// FailedUnits counts partitions or years that failed and were skipped.
	FailedUnits int
	LastUpdated time.Time
}

// NewStageExecution creates a StageExecution in the STARTING state and attaches it to run.
func NewStageExecution(run *RunExecution, stageName, service string) *StageExecution {
	now := time.Now()
	se := &StageExecution{
		ID:             NewID(),
		StageName:      stageName,
		Service:        service,
		RunExecution:   run,
		RunExecutionID: run.ID,
		StartTime:      now,
		Status:         BatchStatusStarting,
		ExitStatus:     ExitStatusUnknown,
		Failures:       make(FailureList, 0),
		LastUpdated:    now,
	}
	run.AddStageExecution(se)
	return se
}

// TransitionTo safely transitions the state of the StageExecution.
func (se *StageExecution) TransitionTo(newStatus BatchStatus) error {
	if !isValidTransition(se.Status, newStatus) {
		return fmt.Errorf("StageExecution (ID: %s): Invalid state transition: %s -> %s", se.ID, se.Status, newStatus)
	}
	se.Status = newStatus
	return nil
}

// MarkAsStarted updates the StageExecution status to STARTED.
func (se *StageExecution) MarkAsStarted() {
	se.forceTransition(BatchStatusStarted)
	se.StartTime = time.Now()
	se.LastUpdated = se.StartTime
}

// MarkAsCompleted updates the StageExecution status to COMPLETED. A stage that skipped
// failed units completes with ExitStatusCompletedWithSkips.
func (se *StageExecution) MarkAsCompleted() {
	exit := ExitStatusCompleted
	if se.FailedUnits > 0 {
		exit = ExitStatusCompletedWithSkips
	}
	se.finish(BatchStatusCompleted, exit)
}

// MarkAsFailed updates the StageExecution status to FAILED and records err.
func (se *StageExecution) MarkAsFailed(err error) {
	se.finish(BatchStatusFailed, ExitStatusFailed)
	se.AddFailureException(err)
}

// MarkAsStopped updates the StageExecution status to STOPPED.
func (se *StageExecution) MarkAsStopped() {
	se.finish(BatchStatusStopped, ExitStatusStopped)
}

func (se *StageExecution) finish(status BatchStatus, exit ExitStatus) {
	se.forceTransition(status)
	se.ExitStatus = exit
	now := time.Now()
	se.EndTime = &now
	se.LastUpdated = now
}

func (se *StageExecution) forceTransition(status BatchStatus) {
	if err := se.TransitionTo(status); err != nil {
		logger.Warnf("Could not update StageExecution (ID: %s) status to %s: %v", se.ID, status, err)
		se.Status = status
	}
}

// AddFailureException adds error information to the StageExecution. Duplicate messages are skipped.
func (se *StageExecution) AddFailureException(err error) {
	if se.Failures.add(err) {
		se.LastUpdated = time.Now()
	}
}

// RecordUnitFailure counts a skipped unit and records its error.
func (se *StageExecution) RecordUnitFailure(err error) {
	se.FailedUnits++
	se.AddFailureException(err)
}

// Duration returns the elapsed time of a finished stage, or the time since it started.
func (se *StageExecution) Duration() time.Duration {
	if se.EndTime != nil {
		return se.EndTime.Sub(se.StartTime)
	}
	return time.Since(se.StartTime)
}

// ExitMessage joins the recorded failures.
func (se *StageExecution) ExitMessage() string {
	return strings.Join(se.Failures, "; ")
}

// Package inmemory keeps the run ledger in memory, for tests and runs without a ledger database.
package inmemory

import (
	"context"
	"sort"
	"sync"

	"github.com/tigerroll/tripco2/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/tripco2/pkg/batch/core/domain/repository"
)

// InMemoryRunRepository is an in-memory implementation of repository.RunRepository.
type InMemoryRunRepository struct {
	runs   map[string]model.RunExecution
	stages map[string][]model.StageExecution
	mu     sync.RWMutex
}

var _ repository.RunRepository = (*InMemoryRunRepository)(nil)

// NewInMemoryRunRepository creates an empty repository.
func NewInMemoryRunRepository() *InMemoryRunRepository {
	return &InMemoryRunRepository{
		runs:   make(map[string]model.RunExecution),
		stages: make(map[string][]model.StageExecution),
	}
}

// SaveRunExecution stores a copy of run without its stage list.
func (r *InMemoryRunRepository) SaveRunExecution(ctx context.Context, run *model.RunExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *run
	stored.StageExecutions = nil
	stored.Failures = append(model.FailureList{}, run.Failures...)
	r.runs[run.ID] = stored
	return nil
}

// SaveStageExecution stores a copy of stage, replacing an earlier copy with the same ID.
func (r *InMemoryRunRepository) SaveStageExecution(ctx context.Context, stage *model.StageExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *stage
	stored.RunExecution = nil
	stored.Failures = append(model.FailureList{}, stage.Failures...)

	list := r.stages[stage.RunExecutionID]
	for i := range list {
		if list[i].ID == stage.ID {
			list[i] = stored
			return nil
		}
	}
	r.stages[stage.RunExecutionID] = append(list, stored)
	return nil
}

func (r *InMemoryRunRepository) FindRunExecution(ctx context.Context, id string) (*model.RunExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.runs[id]
	if !ok {
		return nil, repository.ErrRunExecutionNotFound
	}
	run := stored
	run.StageExecutions = make([]*model.StageExecution, 0, len(r.stages[id]))
	for _, se := range r.stages[id] {
		se := se
		se.RunExecution = &run
		run.StageExecutions = append(run.StageExecutions, &se)
	}
	sort.SliceStable(run.StageExecutions, func(i, j int) bool {
		return run.StageExecutions[i].StartTime.Before(run.StageExecutions[j].StartTime)
	})
	return &run, nil
}

package inmemory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/tripco2/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/tripco2/pkg/batch/core/domain/repository"
	"github.com/tigerroll/tripco2/pkg/batch/infrastructure/repository/inmemory"
)

func TestInMemoryRunRepository(t *testing.T) {
	ctx := context.Background()
	repo := inmemory.NewInMemoryRunRepository()

	run := model.NewRunExecution(2020, 2020, nil)
	require.NoError(t, repo.SaveRunExecution(ctx, run))
	se := model.NewStageExecution(run, "clean", "green")
	require.NoError(t, repo.SaveStageExecution(ctx, se))
	se.WriteCount = 78
	require.NoError(t, repo.SaveStageExecution(ctx, se))

	got, err := repo.FindRunExecution(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got.StageExecutions, 1)
	assert.EqualValues(t, 78, got.StageExecutions[0].WriteCount)

	// Stored copies do not track later mutation.
	se.WriteCount = 1
	got, err = repo.FindRunExecution(ctx, run.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 78, got.StageExecutions[0].WriteCount)

	_, err = repo.FindRunExecution(ctx, "nope")
	assert.True(t, errors.Is(err, repository.ErrRunExecutionNotFound))
}

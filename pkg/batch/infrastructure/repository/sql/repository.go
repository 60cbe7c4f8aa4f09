// Package sql persists the run ledger in the pipeline_runs and stage_runs tables.
package sql

import (
	"context"
	"fmt"

	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	model "github.com/tigerroll/tripco2/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/tripco2/pkg/batch/core/domain/repository"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/exception"
)

const moduleName = "SQLRunRepository"

// SQLRunRepository implements repository.RunRepository over a resolved DBConnection.
type SQLRunRepository struct {
	dbResolver database.DBConnectionResolver
	dbName     string
}

var _ repository.RunRepository = (*SQLRunRepository)(nil)

// NewSQLRunRepository creates a repository writing to the connection named dbName.
func NewSQLRunRepository(dbResolver database.DBConnectionResolver, dbName string) *SQLRunRepository {
	return &SQLRunRepository{dbResolver: dbResolver, dbName: dbName}
}

func (r *SQLRunRepository) conn(ctx context.Context) (database.DBConnection, error) {
	conn, err := r.dbResolver.ResolveDBConnection(ctx, r.dbName)
	if err != nil {
		return nil, exception.NewRecoverablef(moduleName, "failed to resolve DB connection '%s'", r.dbName, err)
	}
	return conn, nil
}

func (r *SQLRunRepository) SaveRunExecution(ctx context.Context, run *model.RunExecution) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	entity := fromDomainRunExecution(run)
	if _, err := conn.ExecuteUpsert(ctx, entity, entity.TableName(), []string{"id"}, pipelineRunUpdateColumns); err != nil {
		return exception.NewRecoverablef(moduleName, "failed to save RunExecution (ID: %s)", run.ID, err)
	}
	return nil
}

func (r *SQLRunRepository) SaveStageExecution(ctx context.Context, stage *model.StageExecution) error {
	conn, err := r.conn(ctx)
	if err != nil {
		return err
	}
	entity := fromDomainStageExecution(stage)
	if _, err := conn.ExecuteUpsert(ctx, entity, entity.TableName(), []string{"id"}, stageRunUpdateColumns); err != nil {
		return exception.NewRecoverablef(moduleName, "failed to save StageExecution (ID: %s)", stage.ID, err)
	}
	return nil
}

func (r *SQLRunRepository) FindRunExecution(ctx context.Context, id string) (*model.RunExecution, error) {
	conn, err := r.conn(ctx)
	if err != nil {
		return nil, err
	}

	var runs []PipelineRunEntity
	stmt := database.NewStatement(fmt.Sprintf("SELECT * FROM %s WHERE id = ?", PipelineRunEntity{}.TableName()), id)
	if err := conn.Fetch(ctx, &runs, stmt); err != nil {
		return nil, exception.NewRecoverablef(moduleName, "failed to load RunExecution (ID: %s)", id, err)
	}
	if len(runs) == 0 {
		return nil, repository.ErrRunExecutionNotFound
	}
	run := toDomainRunExecution(&runs[0])

	var stages []StageRunEntity
	stmt = database.NewStatement(fmt.Sprintf("SELECT * FROM %s WHERE run_id = ? ORDER BY start_time, id", StageRunEntity{}.TableName()), id)
	if err := conn.Fetch(ctx, &stages, stmt); err != nil {
		return nil, exception.NewRecoverablef(moduleName, "failed to load stage executions of run %s", id, err)
	}
	for i := range stages {
		run.AddStageExecution(toDomainStageExecution(&stages[i], run))
	}
	return run, nil
}

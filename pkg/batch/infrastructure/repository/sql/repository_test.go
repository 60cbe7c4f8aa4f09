package sql_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/tripco2/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/tripco2/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/tripco2/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/tripco2/pkg/batch/component/tasklet/migration"
	"github.com/tigerroll/tripco2/pkg/batch/component/tasklet/migration/filesystem"
	"github.com/tigerroll/tripco2/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/tripco2/pkg/batch/core/domain/repository"
	sqlrepo "github.com/tigerroll/tripco2/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/exception"
)

type staticResolver struct{ conn database.DBConnection }

func (r staticResolver) ResolveDBConnection(ctx context.Context, name string) (database.DBConnection, error) {
	return r.conn, nil
}

func newRepository(t *testing.T) *sqlrepo.SQLRunRepository {
	t.Helper()
	conn, err := gormadapter.Open("emissions", dbconfig.DatabaseConfig{Type: "sqlite", Database: ":memory:"}, "SILENT")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	resolver := staticResolver{conn: conn}
	require.NoError(t, migration.NewMigrationTasklet(resolver, filesystem.ProvideLedgerMigrationsFS(), "emissions").Execute(context.Background()))
	return sqlrepo.NewSQLRunRepository(resolver, "emissions")
}

func TestSQLRunRepository_SaveAndFind(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)

	run := model.NewRunExecution(2019, 2020, []string{"load", "clean"})
	run.MarkAsStarted()
	require.NoError(t, repo.SaveRunExecution(ctx, run))

	load := model.NewStageExecution(run, "load", "yellow")
	load.MarkAsStarted()
	require.NoError(t, repo.SaveStageExecution(ctx, load))

	load.WriteCount = 180
	load.RecordUnitFailure(exception.NewRecoverable("loader", "2019-02 schema mismatch", nil))
	load.MarkAsCompleted()
	require.NoError(t, repo.SaveStageExecution(ctx, load))

	run.MarkAsFailed(errors.New("stage 'clean' failed"))
	require.NoError(t, repo.SaveRunExecution(ctx, run))

	got, err := repo.FindRunExecution(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusFailed, got.Status)
	assert.Equal(t, []string{"load", "clean"}, got.Stages)
	assert.Equal(t, model.FailureList{"stage 'clean' failed"}, got.Failures)
	require.NotNil(t, got.EndTime)

	require.Len(t, got.StageExecutions, 1)
	stage := got.StageExecutions[0]
	assert.Equal(t, "yellow", stage.Service)
	assert.EqualValues(t, 180, stage.WriteCount)
	assert.Equal(t, 1, stage.FailedUnits)
	assert.Equal(t, model.ExitStatusCompletedWithSkips, stage.ExitStatus)
}

func TestSQLRunRepository_NotFound(t *testing.T) {
	_, err := newRepository(t).FindRunExecution(context.Background(), "missing")
	assert.True(t, errors.Is(err, repository.ErrRunExecutionNotFound))
}

package loader_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/tripco2/internal/domain/service"
	"github.com/tigerroll/tripco2/internal/domain/trip"
	"github.com/tigerroll/tripco2/internal/step"
	"github.com/tigerroll/tripco2/internal/step/loader"
	"github.com/tigerroll/tripco2/internal/tripfixture"
	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	"github.com/tigerroll/tripco2/pkg/batch/core/config"
	model "github.com/tigerroll/tripco2/pkg/batch/core/domain/model"
	"github.com/tigerroll/tripco2/pkg/batch/core/metrics"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/exception"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
	testutil "github.com/tigerroll/tripco2/pkg/batch/test"
)

type fixture struct {
	conn     database.DBConnection
	pipeline *config.PipelineConfig
	system   *config.SystemConfig
	run      *model.RunExecution
	logs     *bytes.Buffer
}

func newFixture(t *testing.T, fromYear, toYear int) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig()
	p := &cfg.Tripco2.Pipeline
	p.FromYear, p.ToYear = fromYear, toYear
	p.DataDir = dir
	p.EmissionsFile = tripfixture.WriteEmissionFactors(t, dir)
	p.InsertBatchSize = 7
	return &fixture{
		conn:     testutil.NewSQLiteConnection(t, "emissions"),
		pipeline: p,
		system:   &cfg.Tripco2.System,
		run:      testutil.NewTestRunExecution(fromYear, toYear),
		logs:     new(bytes.Buffer),
	}
}

func (f *fixture) loader(t *testing.T) *loader.Loader {
	t.Helper()
	l, err := loader.NewLoader(loader.Params{
		Pipeline: f.pipeline,
		System:   f.system,
		Resolver: testutil.NewTestSingleConnectionResolver(f.conn),
		Recorder: metrics.NoOpMetricRecorder{},
		Tracer:   metrics.NoOpTracer{},
		Logger:   logger.New(f.logs, logger.LevelDebug),
	})
	require.NoError(t, err)
	return l
}

func (f *fixture) unit(svc service.Type) *step.Unit {
	return step.NewUnit(svc, testutil.NewTestStageExecution(f.run, config.StageLoad, svc.Name))
}

func (f *fixture) count(t *testing.T, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Fetch(context.Background(), &n, database.NewStatement("SELECT COUNT(*) FROM "+table)))
	return n
}

func TestLoader_SkipsMissingPartitions(t *testing.T) {
	f := newFixture(t, 2019, 2019)
	yellow := service.Yellow()
	for _, month := range []int{1, 3, 5} {
		tripfixture.WritePartition(t, f.pipeline.DataDir, yellow, 2019, month, tripfixture.Valid(2019, month, 10*month))
	}

	u := f.unit(yellow)
	require.NoError(t, f.loader(t).Execute(context.Background(), []*step.Unit{u}))

	require.NoError(t, u.Err)
	assert.Equal(t, int64(90), f.count(t, yellow.RawTable()))
	assert.Equal(t, int64(90), u.Execution.ReadCount)
	assert.Equal(t, int64(90), u.Execution.WriteCount)
	assert.Zero(t, u.Execution.FailedUnits)
	assert.Contains(t, f.logs.String(), "yellow_tripdata_2019-02.parquet not found, skipping")
	assert.Contains(t, f.logs.String(), "vehicle_emissions table created with 2 rows")
	assert.Contains(t, f.logs.String(), "raw_yellow_trips: 90 rows loaded")
}

func TestLoader_FirstPartitionMissingIsFatal(t *testing.T) {
	f := newFixture(t, 2019, 2019)
	yellow, green := service.Yellow(), service.Green()
	tripfixture.WritePartition(t, f.pipeline.DataDir, yellow, 2019, 2, tripfixture.Valid(2019, 2, 5))
	tripfixture.WritePartition(t, f.pipeline.DataDir, green, 2019, 1, tripfixture.Valid(2019, 1, 4))

	uy, ug := f.unit(yellow), f.unit(green)
	require.NoError(t, f.loader(t).Execute(context.Background(), []*step.Unit{uy, ug}))

	require.Error(t, uy.Err)
	assert.True(t, exception.IsFatal(uy.Err))
	assert.True(t, errors.Is(uy.Err, exception.ErrPartitionMissing))
	// The failure of one service type leaves the other untouched.
	require.NoError(t, ug.Err)
	assert.Equal(t, int64(4), f.count(t, green.RawTable()))
}

func TestLoader_SchemaMismatchSkipsPartition(t *testing.T) {
	f := newFixture(t, 2019, 2019)
	yellow := service.Yellow()
	tripfixture.WritePartition(t, f.pipeline.DataDir, yellow, 2019, 1, tripfixture.Valid(2019, 1, 6))
	tripfixture.WriteMismatchedPartition(t, f.pipeline.DataDir, 2019, 2)
	tripfixture.WritePartition(t, f.pipeline.DataDir, yellow, 2019, 3, tripfixture.Valid(2019, 3, 3))

	u := f.unit(yellow)
	require.NoError(t, f.loader(t).Execute(context.Background(), []*step.Unit{u}))

	require.NoError(t, u.Err)
	assert.Equal(t, 1, u.Execution.FailedUnits)
	require.Len(t, u.Execution.Failures, 1)
	assert.Contains(t, u.Execution.Failures[0], "yellow_tripdata_2019-02.parquet")
	assert.Equal(t, int64(9), f.count(t, yellow.RawTable()))

	u.Execution.MarkAsCompleted()
	assert.Equal(t, model.ExitStatusCompletedWithSkips, u.Execution.ExitStatus)
}

func TestLoader_FirstPartitionMismatchIsFatal(t *testing.T) {
	f := newFixture(t, 2019, 2019)
	tripfixture.WriteMismatchedPartition(t, f.pipeline.DataDir, 2019, 1)

	u := f.unit(service.Yellow())
	require.NoError(t, f.loader(t).Execute(context.Background(), []*step.Unit{u}))

	require.Error(t, u.Err)
	assert.True(t, errors.Is(u.Err, exception.ErrSchemaMismatch))
}

func TestLoader_ReloadReplacesRawTable(t *testing.T) {
	f := newFixture(t, 2019, 2020)
	yellow := service.Yellow()
	tripfixture.WritePartition(t, f.pipeline.DataDir, yellow, 2019, 1, tripfixture.Valid(2019, 1, 12))
	tripfixture.WritePartition(t, f.pipeline.DataDir, yellow, 2020, 6, tripfixture.Valid(2020, 6, 8))
	l := f.loader(t)

	for i := 0; i < 2; i++ {
		u := f.unit(yellow)
		require.NoError(t, l.Execute(context.Background(), []*step.Unit{u}))
		require.NoError(t, u.Err)
		assert.Equal(t, int64(20), f.count(t, yellow.RawTable()))
	}
	// The staging table does not outlive a partition.
	var tables []string
	require.NoError(t, f.conn.Fetch(context.Background(), &tables,
		database.NewStatement("SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE ?", "%staging%")))
	assert.Empty(t, tables)
}

func TestLoader_LegacyPartitionAndTimezone(t *testing.T) {
	f := newFixture(t, 2018, 2018)
	f.system.Timezone = "America/New_York"
	pickup := time.Date(2018, 1, 15, 6, 30, 0, 0, time.UTC)
	tripfixture.WriteLegacyPartition(t, f.pipeline.DataDir, 2018, 1, []tripfixture.Trip{
		{Pickup: pickup, Dropoff: pickup.Add(20 * time.Minute), Passengers: 2, Miles: 3.5, Fare: 14},
	})

	u := f.unit(service.Yellow())
	require.NoError(t, f.loader(t).Execute(context.Background(), []*step.Unit{u}))
	require.NoError(t, u.Err)

	var rows []trip.RawTrip
	require.NoError(t, f.conn.Fetch(context.Background(), &rows, database.NewStatement("SELECT * FROM raw_yellow_trips")))
	require.Len(t, rows, 1)
	assert.Equal(t, "2018-01-15 01:30:00", *rows[0].PickupDatetime)
	assert.Equal(t, "2018-01-15 01:50:00", *rows[0].DropoffDatetime)
	assert.Equal(t, int64(2), *rows[0].PassengerCount)
	assert.Nil(t, rows[0].CongestionSurcharge)
}

func TestLoader_WallClockTimestampsIgnoreTimezone(t *testing.T) {
	f := newFixture(t, 2019, 2019)
	f.system.Timezone = "America/New_York"
	pickup := time.Date(2019, 1, 15, 6, 30, 0, 0, time.UTC)
	tripfixture.WritePartition(t, f.pipeline.DataDir, service.Yellow(), 2019, 1, []tripfixture.Trip{
		{Pickup: pickup, Dropoff: pickup.Add(20 * time.Minute), Passengers: 1, Miles: 2, Fare: 9},
	})

	u := f.unit(service.Yellow())
	require.NoError(t, f.loader(t).Execute(context.Background(), []*step.Unit{u}))
	require.NoError(t, u.Err)

	var rows []trip.RawTrip
	require.NoError(t, f.conn.Fetch(context.Background(), &rows, database.NewStatement("SELECT * FROM raw_yellow_trips")))
	require.Len(t, rows, 1)
	assert.Equal(t, "2019-01-15 06:30:00", *rows[0].PickupDatetime)
	assert.Equal(t, "2019-01-15 06:50:00", *rows[0].DropoffDatetime)
}

func TestLoader_MissingEmissionFactorsFailsEveryUnit(t *testing.T) {
	f := newFixture(t, 2019, 2019)
	f.pipeline.EmissionsFile = f.pipeline.DataDir + "/absent.csv"
	tripfixture.WritePartition(t, f.pipeline.DataDir, service.Yellow(), 2019, 1, tripfixture.Valid(2019, 1, 3))

	units := []*step.Unit{f.unit(service.Yellow()), f.unit(service.Green())}
	require.NoError(t, f.loader(t).Execute(context.Background(), units))
	for _, u := range units {
		assert.True(t, u.Failed(), u.Service.Name)
	}
}

func TestLoader_MissingEmissionFactorsEmptiesPreviousTables(t *testing.T) {
	f := newFixture(t, 2019, 2019)
	yellow := service.Yellow()
	tripfixture.WritePartition(t, f.pipeline.DataDir, yellow, 2019, 1, tripfixture.Valid(2019, 1, 12))
	l := f.loader(t)

	u := f.unit(yellow)
	require.NoError(t, l.Execute(context.Background(), []*step.Unit{u}))
	require.NoError(t, u.Err)
	require.Equal(t, int64(12), f.count(t, yellow.RawTable()))
	require.Equal(t, int64(2), f.count(t, "vehicle_emissions"))

	f.pipeline.EmissionsFile = f.pipeline.DataDir + "/absent.csv"
	u = f.unit(yellow)
	require.NoError(t, l.Execute(context.Background(), []*step.Unit{u}))
	require.Error(t, u.Err)
	assert.True(t, exception.IsFatal(u.Err))
	assert.Zero(t, f.count(t, yellow.RawTable()))
	assert.Zero(t, f.count(t, "vehicle_emissions"))
}

func TestLoader_Canceled(t *testing.T) {
	f := newFixture(t, 2019, 2019)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.loader(t).Execute(ctx, []*step.Unit{f.unit(service.Yellow())})
	assert.True(t, exception.IsCanceled(err))
}

package cleaner_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/tripco2/internal/domain/service"
	"github.com/tigerroll/tripco2/internal/domain/trip"
	"github.com/tigerroll/tripco2/internal/query"
	"github.com/tigerroll/tripco2/internal/step"
	"github.com/tigerroll/tripco2/internal/step/cleaner"
	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	"github.com/tigerroll/tripco2/pkg/batch/core/config"
	"github.com/tigerroll/tripco2/pkg/batch/core/metrics"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
	testutil "github.com/tigerroll/tripco2/pkg/batch/test"
)

func ptr[T any](v T) *T { return &v }

func raw(pickup, dropoff string, passengers int64, miles float64) trip.RawTrip {
	return trip.RawTrip{
		VendorID:        ptr(int64(2)),
		PickupDatetime:  ptr(pickup),
		DropoffDatetime: ptr(dropoff),
		PassengerCount:  ptr(passengers),
		TripDistance:    ptr(miles),
		FareAmount:      ptr(7.0),
	}
}

func seedRaw(t *testing.T, conn database.DBConnection, svc service.Type, rows []trip.RawTrip) {
	t.Helper()
	b := query.NewBuilder(query.SQLite{}, svc)
	require.NoError(t, step.Exec(context.Background(), conn, b.RecreateRawTable()...))
	_, err := conn.BulkInsert(context.Background(), svc.RawTable(), rows, 50)
	require.NoError(t, err)
}

func newCleaner(conn database.DBConnection, from, to int, out *bytes.Buffer) *cleaner.Cleaner {
	cfg := config.NewConfig()
	cfg.Tripco2.Pipeline.FromYear, cfg.Tripco2.Pipeline.ToYear = from, to
	return cleaner.NewCleaner(cleaner.Params{
		Pipeline: &cfg.Tripco2.Pipeline,
		Resolver: testutil.NewTestSingleConnectionResolver(conn),
		Recorder: metrics.NoOpMetricRecorder{},
		Tracer:   metrics.NoOpTracer{},
		Logger:   logger.New(out, logger.LevelInfo),
	})
}

func TestCleaner_FiltersAndDeduplicatesPerYear(t *testing.T) {
	conn := testutil.NewSQLiteConnection(t, "emissions")
	yellow := service.Yellow()
	seedRaw(t, conn, yellow, []trip.RawTrip{
		raw("2019-03-01 10:00:00", "2019-03-01 10:10:00", 1, 2.0),
		raw("2019-03-01 10:00:00", "2019-03-01 10:10:00", 1, 2.0), // duplicate
		raw("2019-03-02 10:00:00", "2019-03-02 10:10:00", 0, 2.0),
		raw("2019-03-03 10:00:00", "2019-03-03 10:10:00", 1, 0),
		raw("2019-03-04 10:00:00", "2019-03-04 10:10:00", 1, 150),
		raw("2019-03-05 10:00:00", "2019-03-07 10:10:00", 1, 3.0),
		raw("2019-03-06 10:00:00", "2019-03-06 09:00:00", 1, 3.0),
		raw("2020-01-01 00:05:00", "2020-01-01 00:25:00", 3, 4.0),
		raw("2020-01-02 00:05:00", "2020-01-02 00:25:00", 2, 4.0),
		raw("2018-12-31 23:55:00", "2019-01-01 00:15:00", 1, 4.0), // outside the range
	})

	var out bytes.Buffer
	run := testutil.NewTestRunExecution(2019, 2020)
	u := step.NewUnit(yellow, testutil.NewTestStageExecution(run, config.StageClean, yellow.Name))
	require.NoError(t, newCleaner(conn, 2019, 2020, &out).Execute(context.Background(), []*step.Unit{u}))

	require.NoError(t, u.Err)
	assert.Equal(t, int64(9), u.Execution.ReadCount)
	assert.Equal(t, int64(3), u.Execution.WriteCount)
	assert.Equal(t, int64(6), u.Execution.FilterCount)
	assert.Zero(t, u.Execution.FailedUnits)

	var n int64
	require.NoError(t, conn.Fetch(context.Background(), &n, database.NewStatement("SELECT COUNT(*) FROM clean_yellow_trips")))
	assert.Equal(t, int64(3), n)
	assert.Contains(t, out.String(), "yellow 2019: 7 raw rows, 1 clean rows, 6 removed")
	assert.Contains(t, out.String(), "yellow 2020: 2 raw rows, 2 clean rows, 0 removed")
	assert.NotContains(t, out.String(), "found")
}

func TestCleaner_RerunYieldsSameCleanTable(t *testing.T) {
	ctx := context.Background()
	conn := testutil.NewSQLiteConnection(t, "emissions")
	yellow := service.Yellow()
	seedRaw(t, conn, yellow, []trip.RawTrip{
		raw("2019-03-01 10:00:00", "2019-03-01 10:10:00", 1, 2.0),
		raw("2019-03-01 10:00:00", "2019-03-01 10:10:00", 1, 2.0),
		raw("2019-03-02 10:00:00", "2019-03-02 10:10:00", 0, 2.0),
		raw("2019-07-04 18:20:00", "2019-07-04 18:45:00", 2, 5.5),
		raw("2020-01-02 00:05:00", "2020-01-02 00:25:00", 2, 4.0),
	})
	c := newCleaner(conn, 2019, 2020, new(bytes.Buffer))
	run := testutil.NewTestRunExecution(2019, 2020)

	var runs [2][]trip.RawTrip
	for i := range runs {
		u := step.NewUnit(yellow, testutil.NewTestStageExecution(run, config.StageClean, yellow.Name))
		require.NoError(t, c.Execute(ctx, []*step.Unit{u}))
		require.NoError(t, u.Err)
		assert.Equal(t, int64(3), u.Execution.WriteCount)
		require.NoError(t, conn.Fetch(ctx, &runs[i],
			database.NewStatement("SELECT * FROM clean_yellow_trips ORDER BY pickup_datetime, dropoff_datetime")))
	}
	require.Len(t, runs[0], 3)
	assert.Equal(t, runs[0], runs[1])
}

func TestCleaner_CleanYearReportsChecks(t *testing.T) {
	conn := testutil.NewSQLiteConnection(t, "emissions")
	green := service.Green()
	seedRaw(t, conn, green, []trip.RawTrip{
		raw("2021-05-01 08:00:00", "2021-05-01 08:30:00", 1, 6.0),
		raw("2021-05-01 09:00:00", "2021-05-01 09:30:00", 0, 6.0),
	})
	b := query.NewBuilder(query.SQLite{}, green)
	require.NoError(t, step.Exec(context.Background(), conn, b.RecreateCleanTable()...))

	run := testutil.NewTestRunExecution(2021, 2021)
	u := step.NewUnit(green, testutil.NewTestStageExecution(run, config.StageClean, green.Name))
	res, err := newCleaner(conn, 2021, 2021, new(bytes.Buffer)).CleanYear(context.Background(), conn, b, u, 2021)
	require.NoError(t, err)

	assert.Equal(t, &cleaner.YearResult{
		Year: 2021, Raw: 2, Clean: 1, Removed: 1,
		Violations: map[string]int64{
			"0 passengers": 0, "0 miles": 0, ">100 miles": 0, ">1 day": 0, "negative duration": 0,
		},
	}, res)
}

func TestCleaner_MissingRawTableFailsEachYear(t *testing.T) {
	conn := testutil.NewSQLiteConnection(t, "emissions")
	green := service.Green()

	var out bytes.Buffer
	run := testutil.NewTestRunExecution(2019, 2021)
	u := step.NewUnit(green, testutil.NewTestStageExecution(run, config.StageClean, green.Name))
	require.NoError(t, newCleaner(conn, 2019, 2021, &out).Execute(context.Background(), []*step.Unit{u}))

	assert.NoError(t, u.Err)
	assert.Equal(t, 3, u.Execution.FailedUnits)
	assert.Len(t, u.Execution.Failures, 3)
	assert.Contains(t, out.String(), "green: 3 of 3 years skipped")
}

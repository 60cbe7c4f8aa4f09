package report_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/tigerroll/tripco2/internal/domain/service"
	"github.com/tigerroll/tripco2/internal/query"
	"github.com/tigerroll/tripco2/internal/report"
	"github.com/tigerroll/tripco2/internal/step"
	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	storageConfig "github.com/tigerroll/tripco2/pkg/batch/adapter/storage/config"
	storageLocal "github.com/tigerroll/tripco2/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/tripco2/pkg/batch/core/config"
	"github.com/tigerroll/tripco2/pkg/batch/core/metrics"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
	testutil "github.com/tigerroll/tripco2/pkg/batch/test"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

type co2Row struct {
	Pickup string  `gorm:"column:pickup_datetime"`
	CO2Kgs float64 `gorm:"column:trip_co2_kgs"`
}

func seedTransform(t *testing.T, conn database.DBConnection, svc service.Type, rows []co2Row) {
	t.Helper()
	b := query.NewBuilder(query.SQLite{}, svc)
	require.NoError(t, step.Exec(context.Background(), conn, b.RecreateTransformTable()...))
	_, err := conn.BulkInsert(context.Background(), svc.TransformTable(), rows, 50)
	require.NoError(t, err)
}

type fixture struct {
	conn     database.DBConnection
	baseDir  string
	reporter *report.Reporter
	logs     *bytes.Buffer
	unit     *step.Unit
}

func newFixture(t *testing.T, exportTotals bool) *fixture {
	t.Helper()
	conn := testutil.NewSQLiteConnection(t, "emissions")
	baseDir := t.TempDir()
	store, err := storageLocal.NewLocalAdapter(storageConfig.StorageConfig{Type: "local", BaseDir: baseDir, BucketName: "reports"}, "reports")
	require.NoError(t, err)

	cfg := config.NewConfig()
	cfg.Tripco2.Report.ExportTotals = exportTotals
	logs := new(bytes.Buffer)
	r := report.NewReporter(report.Params{
		Pipeline:        &cfg.Tripco2.Pipeline,
		Report:          &cfg.Tripco2.Report,
		Services:        []service.Type{service.Yellow(), service.Green()},
		Resolver:        testutil.NewTestSingleConnectionResolver(conn),
		StorageResolver: testutil.NewTestSingleStorageResolver(store),
		Recorder:        metrics.NoOpMetricRecorder{},
		Tracer:          metrics.NoOpTracer{},
		Logger:          logger.New(logs, logger.LevelInfo),
	})
	run := testutil.NewTestRunExecution(2019, 2020)
	return &fixture{
		conn:     conn,
		baseDir:  baseDir,
		reporter: r,
		logs:     logs,
		unit:     step.NewUnit(service.Type{}, testutil.NewTestStageExecution(run, "report", "")),
	}
}

func TestReporter_WritesChartAndTotals(t *testing.T) {
	f := newFixture(t, true)
	seedTransform(t, f.conn, service.Yellow(), []co2Row{
		{Pickup: "2019-01-01 10:00:00", CO2Kgs: 1.5},
		{Pickup: "2019-07-01 10:00:00", CO2Kgs: 2.5},
		{Pickup: "2020-03-01 10:00:00", CO2Kgs: 3},
	})
	seedTransform(t, f.conn, service.Green(), []co2Row{
		{Pickup: "2020-05-01 10:00:00", CO2Kgs: 0.75},
	})

	require.NoError(t, f.reporter.Execute(context.Background(), []*step.Unit{f.unit}))
	require.NoError(t, f.unit.Err)
	assert.Zero(t, f.unit.Execution.FailedUnits)

	chart, err := os.ReadFile(filepath.Join(f.baseDir, "reports", "total_co2_emissions_by_year.png"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(chart, pngMagic))
	assert.Contains(t, f.logs.String(), "yellow 2019: 4.00 kg CO2")

	fr, err := local.NewLocalFileReader(filepath.Join(f.baseDir, "reports", "total_co2_emissions_by_year.parquet"))
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(report.TotalRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	rows := make([]report.TotalRow, pr.GetNumRows())
	require.NoError(t, pr.Read(&rows))
	assert.Equal(t, []report.TotalRow{
		{Service: "yellow", Year: 2019, TotalCO2Kg: 4},
		{Service: "yellow", Year: 2020, TotalCO2Kg: 3},
		{Service: "green", Year: 2020, TotalCO2Kg: 0.75},
	}, rows)
}

func TestReporter_MissingServiceIsLeftOut(t *testing.T) {
	f := newFixture(t, false)
	seedTransform(t, f.conn, service.Yellow(), []co2Row{{Pickup: "2019-01-01 10:00:00", CO2Kgs: 1}})
	// A totals export of an earlier run is removed when the export is off.
	stale := filepath.Join(f.baseDir, "reports", "total_co2_emissions_by_year.parquet")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	require.NoError(t, f.reporter.Execute(context.Background(), []*step.Unit{f.unit}))
	require.NoError(t, f.unit.Err)
	assert.Equal(t, 1, f.unit.Execution.FailedUnits)
	assert.Contains(t, f.logs.String(), "green: failed to read yearly totals")

	_, err := os.Stat(filepath.Join(f.baseDir, "reports", "total_co2_emissions_by_year.png"))
	assert.NoError(t, err)
	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestRenderChart_NoSeries(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.RenderChart(&buf, "empty", nil))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), pngMagic))
}

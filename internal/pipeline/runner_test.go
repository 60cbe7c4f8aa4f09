package pipeline_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/tripco2/internal/domain/service"
	"github.com/tigerroll/tripco2/internal/pipeline"
	"github.com/tigerroll/tripco2/internal/query"
	"github.com/tigerroll/tripco2/internal/report"
	"github.com/tigerroll/tripco2/internal/step"
	"github.com/tigerroll/tripco2/internal/step/aggregator"
	"github.com/tigerroll/tripco2/internal/step/cleaner"
	"github.com/tigerroll/tripco2/internal/step/loader"
	"github.com/tigerroll/tripco2/internal/step/transformer"
	"github.com/tigerroll/tripco2/internal/tripfixture"
	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	storageConfig "github.com/tigerroll/tripco2/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/tripco2/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/tripco2/pkg/batch/component/tasklet/migration"
	"github.com/tigerroll/tripco2/pkg/batch/component/tasklet/migration/filesystem"
	"github.com/tigerroll/tripco2/pkg/batch/core/config"
	model "github.com/tigerroll/tripco2/pkg/batch/core/domain/model"
	"github.com/tigerroll/tripco2/pkg/batch/core/metrics"
	sqlrepo "github.com/tigerroll/tripco2/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
	testutil "github.com/tigerroll/tripco2/pkg/batch/test"
)

type harness struct {
	cfg     *config.Config
	conn    database.DBConnection
	repo    *sqlrepo.SQLRunRepository
	baseDir string
	logs    *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewConfig()
	p := &cfg.Tripco2.Pipeline
	p.FromYear, p.ToYear = 2019, 2019
	p.DataDir = filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(p.DataDir, 0o755))
	p.EmissionsFile = tripfixture.WriteEmissionFactors(t, p.DataDir)
	p.InsertBatchSize = 25

	conn := testutil.NewSQLiteConnection(t, p.DBRef)
	return &harness{
		cfg:     cfg,
		conn:    conn,
		repo:    sqlrepo.NewSQLRunRepository(testutil.NewTestSingleConnectionResolver(conn), p.DBRef),
		baseDir: filepath.Join(dir, "out"),
		logs:    new(bytes.Buffer),
	}
}

func (h *harness) runner(t *testing.T) *pipeline.Runner {
	t.Helper()
	services, err := service.NewTypesProvider(&h.cfg.Tripco2.Pipeline)
	require.NoError(t, err)
	store, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: "local", BaseDir: h.baseDir, BucketName: "reports"}, "reports")
	require.NoError(t, err)

	resolver := testutil.NewTestSingleConnectionResolver(h.conn)
	log := logger.New(h.logs, logger.LevelInfo)
	rec, tr := metrics.NoOpMetricRecorder{}, metrics.NoOpTracer{}
	pipe, sys, rep := &h.cfg.Tripco2.Pipeline, &h.cfg.Tripco2.System, &h.cfg.Tripco2.Report

	ld, err := loader.NewLoader(loader.Params{Pipeline: pipe, System: sys, Resolver: resolver, Recorder: rec, Tracer: tr, Logger: log})
	require.NoError(t, err)
	steps := pipeline.NewSteps(pipeline.StepsParams{
		Loader:      ld,
		Cleaner:     cleaner.NewCleaner(cleaner.Params{Pipeline: pipe, Resolver: resolver, Recorder: rec, Tracer: tr, Logger: log}),
		Transformer: transformer.NewTransformer(transformer.Params{Pipeline: pipe, Resolver: resolver, Recorder: rec, Tracer: tr, Logger: log}),
		Aggregator:  aggregator.NewAggregator(aggregator.Params{Pipeline: pipe, Resolver: resolver, Recorder: rec, Tracer: tr, Logger: log}),
		Reporter: report.NewReporter(report.Params{
			Pipeline: pipe, Report: rep, Services: services, Resolver: resolver,
			StorageResolver: testutil.NewTestSingleStorageResolver(store), Recorder: rec, Tracer: tr, Logger: log,
		}),
	})
	return pipeline.NewRunner(pipeline.Params{
		Pipeline:   pipe,
		Services:   services,
		Steps:      steps,
		Migrator:   migration.NewMigrationTasklet(resolver, filesystem.ProvideLedgerMigrationsFS(), pipe.DBRef),
		Repository: h.repo,
		Recorder:   rec,
		Tracer:     tr,
		Logger:     log,
	})
}

// withZeroPassengers returns n valid trips of January 2019 plus one trip without passengers.
func withZeroPassengers(n int) []tripfixture.Trip {
	trips := tripfixture.Valid(2019, 1, n)
	pickup := time.Date(2019, 1, 20, 18, 0, 0, 0, time.UTC)
	return append(trips, tripfixture.Trip{Pickup: pickup, Dropoff: pickup.Add(15 * time.Minute), Passengers: 0, Miles: 2, Fare: 9})
}

func (h *harness) count(t *testing.T, stmt database.Statement) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.conn.Fetch(context.Background(), &n, stmt))
	return n
}

func TestRunner_EndToEnd(t *testing.T) {
	h := newHarness(t)
	dataDir := h.cfg.Tripco2.Pipeline.DataDir
	tripfixture.WritePartition(t, dataDir, service.Yellow(), 2019, 1, withZeroPassengers(100))
	tripfixture.WritePartition(t, dataDir, service.Green(), 2019, 1, withZeroPassengers(80))

	run := h.runner(t).Run(context.Background())

	assert.Equal(t, model.BatchStatusCompleted, run.Status, run.ExitMessage())
	assert.Equal(t, 0, run.ExitCode())
	// load, clean, transform and aggregate per service type, then one report.
	assert.Len(t, run.StageExecutions, 9)

	var clean int64
	for _, svc := range []service.Type{service.Yellow(), service.Green()} {
		clean += h.count(t, database.NewStatement("SELECT COUNT(*) FROM "+svc.CleanTable()))
		b := query.NewBuilder(query.SQLite{}, svc)
		assert.Zero(t, h.count(t, b.CountViolations(query.FilterRules()[0], 2019)), "0 passengers in %s", svc)
		assert.Equal(t, h.count(t, database.NewStatement("SELECT COUNT(*) FROM "+svc.CleanTable())),
			h.count(t, database.NewStatement("SELECT COUNT(*) FROM "+svc.TransformTable())))
	}
	assert.Equal(t, int64(178), clean)

	_, err := os.Stat(filepath.Join(h.baseDir, "reports", "total_co2_emissions_by_year.png"))
	assert.NoError(t, err)

	stored, err := h.repo.FindRunExecution(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, stored.Status)
	assert.Len(t, stored.StageExecutions, 9)
}

func TestRunner_FailedServiceFailsTheRun(t *testing.T) {
	h := newHarness(t)
	tripfixture.WritePartition(t, h.cfg.Tripco2.Pipeline.DataDir, service.Yellow(), 2019, 1, tripfixture.Valid(2019, 1, 20))

	run := h.runner(t).Run(context.Background())

	assert.Equal(t, model.BatchStatusFailed, run.Status)
	assert.Equal(t, 1, run.ExitCode())
	assert.Contains(t, run.ExitMessage(), "first partition of green is unusable")
	// Yellow is carried through every stage regardless.
	assert.Equal(t, int64(20), h.count(t, database.NewStatement("SELECT COUNT(*) FROM transform_yellow_trips")))

	failed := 0
	for _, se := range run.StageExecutions {
		if se.Status == model.BatchStatusFailed {
			failed++
			assert.Equal(t, "load", se.StageName)
			assert.Equal(t, "green", se.Service)
		}
	}
	assert.Equal(t, 1, failed)
}

func TestRunner_RunsOnlySelectedStages(t *testing.T) {
	h := newHarness(t)
	h.cfg.Tripco2.Pipeline.Stages = []string{config.StageLoad}
	dataDir := h.cfg.Tripco2.Pipeline.DataDir
	tripfixture.WritePartition(t, dataDir, service.Yellow(), 2019, 1, tripfixture.Valid(2019, 1, 5))
	tripfixture.WritePartition(t, dataDir, service.Green(), 2019, 1, tripfixture.Valid(2019, 1, 5))

	run := h.runner(t).Run(context.Background())

	assert.Equal(t, model.BatchStatusCompleted, run.Status)
	require.Len(t, run.StageExecutions, 2)
	for _, se := range run.StageExecutions {
		assert.Equal(t, "load", se.StageName)
	}
	assert.Contains(t, h.logs.String(), "Stage clean disabled")
}

func TestRunner_CanceledRunIsStopped(t *testing.T) {
	h := newHarness(t)
	r := h.runner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := r.Run(ctx)
	assert.NotEqual(t, model.BatchStatusCompleted, run.Status)
	assert.Equal(t, 1, run.ExitCode())
}

type unitRecorder struct {
	units []*step.Unit
}

func (u *unitRecorder) Name() string     { return "record" }
func (u *unitRecorder) Stage() string    { return config.StageAnalyze }
func (u *unitRecorder) PerService() bool { return false }
func (u *unitRecorder) Execute(ctx context.Context, units []*step.Unit) error {
	u.units = units
	return nil
}

func TestRunner_SingleUnitStep(t *testing.T) {
	h := newHarness(t)
	rec := &unitRecorder{}
	r := pipeline.NewRunner(pipeline.Params{
		Pipeline:   &h.cfg.Tripco2.Pipeline,
		Services:   []service.Type{service.Yellow(), service.Green()},
		Steps:      []step.Step{rec},
		Repository: h.repo,
		Recorder:   metrics.NoOpMetricRecorder{},
		Tracer:     metrics.NoOpTracer{},
		Logger:     logger.New(h.logs, logger.LevelInfo),
	})
	// Without a migrator the ledger tables are missing; saving fails without failing the run.
	run := r.Run(context.Background())

	assert.Equal(t, model.BatchStatusCompleted, run.Status)
	require.Len(t, rec.units, 1)
	assert.Equal(t, "", rec.units[0].Execution.Service)
	assert.Equal(t, model.ExitStatusCompleted, rec.units[0].Execution.ExitStatus)
	assert.Contains(t, h.logs.String(), "Failed to save run ledger")
}

// Package app assembles the pipeline with uber-fx and runs it once.
package app

import (
	"context"
	"io"

	"go.uber.org/fx"

	"github.com/tigerroll/tripco2/internal/pipeline"
	gormAdapter "github.com/tigerroll/tripco2/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/tripco2/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/tripco2/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/tripco2/pkg/batch/adapter/storage"
	"github.com/tigerroll/tripco2/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/tripco2/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/tripco2/pkg/batch/component/tasklet/migration"
	config "github.com/tigerroll/tripco2/pkg/batch/core/config"
	"github.com/tigerroll/tripco2/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/tripco2/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
)

// ExitConfigError is returned when the configuration cannot be loaded.
const ExitConfigError = 2

// ExitCode carries the run's exit code out of the Fx lifecycle.
type ExitCode struct {
	Value int
}

// RunApplication loads the configuration, builds the Fx graph and runs the pipeline once.
// It returns the process exit code: 0 when every stage completed, non-zero otherwise.
func RunApplication(appCtx context.Context, envFilePath string, embeddedConfig config.EmbeddedConfig) int {
	cfg, err := config.LoadConfig(envFilePath, embeddedConfig)
	if err != nil {
		logger.Errorf("Failed to load configuration: %v", err)
		return ExitConfigError
	}

	logger.SetLogLevel(cfg.Tripco2.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.Tripco2.System.Logging.Level)

	logFile, err := logger.OpenFile(cfg.Tripco2.System.Logging.File)
	if err != nil {
		logger.Errorf("%v", err)
		return ExitConfigError
	}
	defer closeQuietly(logFile)

	code := &ExitCode{Value: 1}

	app := fx.New(Options(appCtx, envFilePath, embeddedConfig, cfg, code))

	app.Run()

	if app.Err() != nil {
		logger.Errorf("Application run failed: %v", app.Err())
		return 1
	}
	return code.Value
}

// Options returns the Fx graph of the application: adapters, stages, the Runner and the
// start hook that runs the pipeline once and records its exit code in code.
func Options(appCtx context.Context, envFilePath string, embeddedConfig config.EmbeddedConfig, cfg *config.Config, code *ExitCode) fx.Option {
	return fx.Options(
		fx.Supply(
			embeddedConfig,
			fx.Annotate(envFilePath, fx.ResultTags(`name:"envFilePath"`)),
			cfg,
			code,
			fx.Annotate(
				appCtx,
				fx.As(new(context.Context)),
				fx.ResultTags(`name:"appCtx"`),
			),
		),

		logger.Module,
		config.Module,
		metrics.Module,

		gormAdapter.Module,
		sqlite.Module,
		postgres.Module,

		storage.Module,
		local.Module,
		gcs.Module,

		migration.Module,
		sql.Module,
		pipeline.Module,

		fx.Invoke(fx.Annotate(startPipeline, fx.ParamTags(
			"",              // lc fx.Lifecycle
			"",              // shutdowner fx.Shutdowner
			"",              // runner *pipeline.Runner
			"",              // code *ExitCode
			`name:"appCtx"`, // appCtx context.Context
		))),
	)
}

// startPipeline is invoked by Fx to run the pipeline once the graph has started.
func startPipeline(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	runner *pipeline.Runner,
	code *ExitCode,
	appCtx context.Context,
) {
	lc.Append(fx.Hook{
		OnStart: onStartPipeline(runner, code, shutdowner, appCtx),
		OnStop:  onStopApplication(),
	})
}

func onStartPipeline(
	runner *pipeline.Runner,
	code *ExitCode,
	shutdowner fx.Shutdowner,
	appCtx context.Context,
) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("Panic recovered in pipeline run: %v", r)
					code.Value = 1
				}
				logger.Infof("Requesting application shutdown after pipeline completion.")
				if err := shutdowner.Shutdown(); err != nil {
					logger.Errorf("Failed to shutdown application: %v", err)
				}
			}()

			run := runner.Run(appCtx)
			code.Value = run.ExitCode()
			logger.Infof("Run %s finished with status %s (exit code %d).", run.ID, run.Status, code.Value)
		}()
		return nil
	}
}

func onStopApplication() func(ctx context.Context) error {
	return func(ctx context.Context) error {
		logger.Infof("Application is shutting down.")
		return nil
	}
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		logger.Warnf("Failed to close log file: %v", err)
	}
}

package pipeline

import (
	"go.uber.org/fx"

	"github.com/tigerroll/tripco2/internal/domain/service"
	"github.com/tigerroll/tripco2/internal/report"
	"github.com/tigerroll/tripco2/internal/step"
	"github.com/tigerroll/tripco2/internal/step/aggregator"
	"github.com/tigerroll/tripco2/internal/step/cleaner"
	"github.com/tigerroll/tripco2/internal/step/loader"
	"github.com/tigerroll/tripco2/internal/step/transformer"
	"github.com/tigerroll/tripco2/pkg/batch/component/tasklet/migration"
)

// StepsParams collects the stages in pipeline order.
type StepsParams struct {
	fx.In
	Loader      *loader.Loader
	Cleaner     *cleaner.Cleaner
	Transformer *transformer.Transformer
	Aggregator  *aggregator.Aggregator
	Reporter    *report.Reporter
}

// NewSteps returns the stages in the order they run.
func NewSteps(p StepsParams) []step.Step {
	return []step.Step{p.Loader, p.Cleaner, p.Transformer, p.Aggregator, p.Reporter}
}

// Module provides the service types, every stage and the Runner.
var Module = fx.Options(
	fx.Provide(service.NewTypesProvider),
	fx.Provide(
		loader.NewLoader,
		cleaner.NewCleaner,
		transformer.NewTransformer,
		aggregator.NewAggregator,
		report.NewReporter,
		NewSteps,
	),
	fx.Provide(func(t *migration.MigrationTasklet) Migrator { return t }),
	fx.Provide(NewRunner),
)

package sql

import (
	"go.uber.org/fx"

	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	config "github.com/tigerroll/tripco2/pkg/batch/core/config"
	repository "github.com/tigerroll/tripco2/pkg/batch/core/domain/repository"
)

// Module provides SQLRunRepository on the pipeline's query backend as the repository.RunRepository.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			func(resolver database.DBConnectionResolver, p *config.PipelineConfig) *SQLRunRepository {
				return NewSQLRunRepository(resolver, p.DBRef)
			},
			fx.As(new(repository.RunRepository)),
		),
	),
)

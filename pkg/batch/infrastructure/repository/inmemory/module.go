package inmemory

import (
	"go.uber.org/fx"

	repository "github.com/tigerroll/tripco2/pkg/batch/core/domain/repository"
)

// Module provides InMemoryRunRepository as the repository.RunRepository.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewInMemoryRunRepository,
			fx.As(new(repository.RunRepository)),
		),
	),
)

package gorm

import (
	"go.uber.org/fx"

	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
)

// Module provides the connection resolver. Concrete DBProviders come from the dialect sub-packages.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewGormDBConnectionResolver,
		fx.As(new(database.DBConnectionResolver)),
		fx.As(fx.Self()),
	)),
)

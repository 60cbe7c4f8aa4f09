package local

import (
	"go.uber.org/fx"
)

// Module registers the LocalProvider in the storage provider group.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewLocalProvider,
		fx.ResultTags(`group:"storage_providers"`),
	)),
)

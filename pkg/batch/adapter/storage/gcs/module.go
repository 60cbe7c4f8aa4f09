package gcs

import "go.uber.org/fx"

// Module registers the GCSProvider in the storage provider group.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewGCSProvider,
		fx.ResultTags(`group:"storage_providers"`),
	)),
)

package logger

import "go.uber.org/fx"

// Module installs the Fx event adapter and provides the default *Logger to the graph.
var Module = fx.Options(
	fx.WithLogger(NewFxLoggerAdapter),
	fx.Provide(Default),
)

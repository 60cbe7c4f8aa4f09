package config

import "go.uber.org/fx"

// NewPipelineConfigProvider extracts *PipelineConfig from *Config so stages can depend on it alone.
func NewPipelineConfigProvider(cfg *Config) *PipelineConfig {
	return &cfg.Tripco2.Pipeline
}

// NewSystemConfigProvider extracts *SystemConfig from *Config.
func NewSystemConfigProvider(cfg *Config) *SystemConfig {
	return &cfg.Tripco2.System
}

// NewReportConfigProvider extracts *ReportConfig from *Config.
func NewReportConfigProvider(cfg *Config) *ReportConfig {
	return &cfg.Tripco2.Report
}

// Module provides configuration sections and the EnvironmentExpander to Fx.
var Module = fx.Options(
	fx.Provide(NewPipelineConfigProvider),
	fx.Provide(NewReportConfigProvider),
	fx.Provide(NewSystemConfigProvider),
	fx.Provide(func() EnvironmentExpander {
		return NewOsEnvironmentExpander()
	}),
)

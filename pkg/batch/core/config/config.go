// Package config provides the configuration structures of the pipeline and the loader
// that assembles them from defaults, the embedded YAML file and environment variables.
package config

import "time"

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
type EmbeddedConfig []byte

// LogLevel defines the logging level names accepted in configuration.
type LogLevel string

const (
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelFatal  LogLevel = "FATAL"
	LogLevelSilent LogLevel = "SILENT"
)

// Stage names accepted by PipelineConfig.Stages.
const (
	StageLoad      = "load"
	StageClean     = "clean"
	StageTransform = "transform"
	StageAnalyze   = "analyze"
)

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level"`
	// File is an optional path the log is appended to in addition to standard error.
	File string `yaml:"file"`
	// SQLLevel is the GORM statement log level ("SILENT", "ERROR", "WARN", "INFO").
	SQLLevel string `yaml:"sql_level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the location pickup and dropoff timestamps are rendered in (e.g., "UTC").
	Timezone string `yaml:"timezone"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// Location returns the configured timezone. An empty Timezone means UTC.
func (s SystemConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

// ServiceConfig describes one taxi service type. Fields left empty are filled from the
// built-in definition of the same name.
type ServiceConfig struct {
	Name          string `yaml:"name"`
	FactorKey     string `yaml:"factor_key"`
	PickupColumn  string `yaml:"pickup_column"`
	DropoffColumn string `yaml:"dropoff_column"`
	FilePrefix    string `yaml:"file_prefix"`
}

// PipelineConfig controls which partitions are processed and where they come from.
type PipelineConfig struct {
	// FromYear and ToYear bound the processed years, both inclusive.
	FromYear int `yaml:"from_year"`
	ToYear   int `yaml:"to_year"`
	// DataDir is the directory holding the monthly Parquet partitions.
	DataDir string `yaml:"data_dir"`
	// EmissionsFile is the path of the emission factor CSV.
	EmissionsFile string `yaml:"emissions_file"`
	// Services lists the service types to process, in processing order.
	Services []ServiceConfig `yaml:"services"`
	// InsertBatchSize is the number of rows per bulk insert while loading partitions.
	InsertBatchSize int `yaml:"insert_batch_size"`
	// Stages selects the stages to run. Empty means every stage.
	Stages []string `yaml:"stages"`
	// DBRef names the entry under "database" used as the query backend.
	DBRef string `yaml:"db_ref"`
	// StorageRef names the entry under "storage" receiving report artifacts.
	StorageRef string `yaml:"storage_ref"`
}

// Years returns the configured years in ascending order.
func (p PipelineConfig) Years() []int {
	if p.ToYear < p.FromYear {
		return nil
	}
	years := make([]int, 0, p.ToYear-p.FromYear+1)
	for y := p.FromYear; y <= p.ToYear; y++ {
		years = append(years, y)
	}
	return years
}

// StageEnabled reports whether the named stage should run.
func (p PipelineConfig) StageEnabled(name string) bool {
	if len(p.Stages) == 0 {
		return true
	}
	for _, s := range p.Stages {
		if s == name {
			return true
		}
	}
	return false
}

// ReportConfig holds the artifact names written by the reporter.
type ReportConfig struct {
	// Bucket is the storage bucket (a directory for local storage) artifacts go to.
	Bucket string `yaml:"bucket"`
	// ChartFile is the object name of the yearly total line chart.
	ChartFile string `yaml:"chart_file"`
	// ExportTotals enables the Parquet export of the yearly totals.
	ExportTotals bool `yaml:"export_totals"`
	// TotalsFile is the object name of the Parquet totals export.
	TotalsFile string `yaml:"totals_file"`
}

// OTLPConfig is the exporter endpoint shared by tracing and metrics.
type OTLPConfig struct {
	// Endpoint is host:port of the collector. Empty disables export.
	Endpoint string `yaml:"endpoint"`
	// Protocol is "http" or "grpc".
	Protocol string `yaml:"protocol"`
	// Insecure disables TLS towards the collector.
	Insecure bool `yaml:"insecure"`
}

// MetricsConfig holds metric export settings.
type MetricsConfig struct {
	// Textfile is the path the Prometheus registry is written to at the end of a run.
	Textfile string `yaml:"textfile"`
	// OTLP exports the same measurements over OpenTelemetry when an endpoint is set.
	OTLP OTLPConfig `yaml:"otlp"`
}

// TracingConfig holds tracing settings.
type TracingConfig struct {
	ServiceName string     `yaml:"service_name"`
	OTLP        OTLPConfig `yaml:"otlp"`
}

// AppConfig holds all configuration under the "tripco2" top-level key.
type AppConfig struct {
	System   SystemConfig   `yaml:"system"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Report   ReportConfig   `yaml:"report"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
	// DatabaseConfigs holds named database connections, decoded by the database adapter.
	DatabaseConfigs map[string]interface{} `yaml:"database"`
	// StorageConfigs holds named storage connections, decoded by the storage adapters.
	StorageConfigs map[string]interface{} `yaml:"storage"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Tripco2 AppConfig `yaml:"tripco2"`
	// EmbeddedConfig holds configuration loaded from an embedded source, not from YAML.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig returns a new instance of Config with default values.
func NewConfig() *Config {
	return &Config{
		Tripco2: AppConfig{
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO", SQLLevel: string(LogLevelSilent)},
			},
			Pipeline: PipelineConfig{
				FromYear:        2015,
				ToYear:          2024,
				DataDir:         "data",
				EmissionsFile:   "data/vehicle_emissions.csv",
				Services:        []ServiceConfig{{Name: "yellow"}, {Name: "green"}},
				InsertBatchSize: 1000,
				DBRef:           "emissions",
				StorageRef:      "reports",
			},
			Report: ReportConfig{
				ChartFile:  "total_co2_emissions_by_year.png",
				TotalsFile: "total_co2_emissions_by_year.parquet",
			},
			Tracing: TracingConfig{
				ServiceName: "tripco2",
				OTLP:        OTLPConfig{Protocol: "http"},
			},
			Metrics: MetricsConfig{
				OTLP: OTLPConfig{Protocol: "http"},
			},
			DatabaseConfigs: map[string]interface{}{},
			StorageConfigs:  map[string]interface{}{},
		},
	}
}

package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/tripco2/pkg/batch/support/util/exception"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"

	"go.uber.org/fx"
)

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig      // EmbeddedConfig contains the raw bytes of the configuration file.
	Expander       EnvironmentExpander `optional:"true"`
	EnvFilePath    string              `name:"envFilePath" optional:"true"` // EnvFilePath is the path to the .env file, if any.
}

// loadConfig loads configuration in four layers:
//  1. defaults from NewConfig()
//  2. the embedded YAML, after ${VAR} expansion
//  3. non-zero YAML values merged over the defaults
//  4. environment variable overrides derived from yaml tags (e.g. TRIPCO2_PIPELINE_DATA_DIR)
func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Debugf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else if err := godotenv.Load(); err != nil {
		logger.Debugf(".env file not found or could not be loaded: %v", err)
	}

	if expander == nil {
		expander = NewOsEnvironmentExpander()
	}
	expanded, err := expander.Expand(embeddedConfig)
	if err != nil {
		return nil, exception.NewFatal(moduleName, "failed to expand environment variables in config", err)
	}

	cfg := NewConfig()

	var yamlConfig Config
	if err := yaml.Unmarshal(expanded, &yamlConfig); err != nil {
		return nil, exception.NewFatal(moduleName, "failed to unmarshal embedded config", err)
	}
	mergeConfig(cfg, &yamlConfig)

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewFatal(moduleName, "failed to load config from environment variables", err)
	}
	cfg.EmbeddedConfig = embeddedConfig

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig loads configuration from the embedded file, the .env file and environment variables.
// It is expected to be called once during application startup.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, embeddedConfig, nil)
}

// NewConfigProvider is an Fx provider that loads and provides *Config and applies the
// configured log level to the default logger.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := loadConfig(params.EnvFilePath, params.EmbeddedConfig, params.Expander)
	if err != nil {
		return nil, err
	}
	logger.SetLogLevel(cfg.Tripco2.System.Logging.Level)
	return cfg, nil
}

// Validate checks the settings every stage depends on.
func Validate(cfg *Config) error {
	p := cfg.Tripco2.Pipeline
	if p.FromYear <= 0 || p.ToYear < p.FromYear {
		return exception.NewFatalf(moduleName, "invalid year range %d..%d", p.FromYear, p.ToYear, exception.ErrInvalidConfig)
	}
	if len(p.Services) == 0 {
		return exception.NewFatal(moduleName, "no service types configured", exception.ErrInvalidConfig)
	}
	if p.InsertBatchSize <= 0 {
		return exception.NewFatalf(moduleName, "insert_batch_size must be positive, got %d", p.InsertBatchSize, exception.ErrInvalidConfig)
	}
	for _, s := range p.Stages {
		switch s {
		case StageLoad, StageClean, StageTransform, StageAnalyze:
		default:
			return exception.NewFatalf(moduleName, "unknown stage '%s'", s, exception.ErrInvalidConfig)
		}
	}
	if _, err := time.LoadLocation(cfg.Tripco2.System.Timezone); err != nil {
		return exception.NewFatalf(moduleName, "unknown timezone '%s'", cfg.Tripco2.System.Timezone, err)
	}
	return nil
}

// mergeConfig copies non-zero values of source over dest.
func mergeConfig(dest, source *Config) {
	d, s := &dest.Tripco2, &source.Tripco2

	if s.System.Timezone != "" {
		d.System.Timezone = s.System.Timezone
	}
	if s.System.Logging.Level != "" {
		d.System.Logging.Level = s.System.Logging.Level
	}
	if s.System.Logging.File != "" {
		d.System.Logging.File = s.System.Logging.File
	}
	if s.System.Logging.SQLLevel != "" {
		d.System.Logging.SQLLevel = s.System.Logging.SQLLevel
	}

	mergePipelineConfig(&d.Pipeline, &s.Pipeline)

	if s.Report.Bucket != "" {
		d.Report.Bucket = s.Report.Bucket
	}
	if s.Report.ChartFile != "" {
		d.Report.ChartFile = s.Report.ChartFile
	}
	if s.Report.TotalsFile != "" {
		d.Report.TotalsFile = s.Report.TotalsFile
	}
	d.Report.ExportTotals = d.Report.ExportTotals || s.Report.ExportTotals

	if s.Metrics.Textfile != "" {
		d.Metrics.Textfile = s.Metrics.Textfile
	}
	mergeOTLPConfig(&d.Metrics.OTLP, &s.Metrics.OTLP)
	if s.Tracing.ServiceName != "" {
		d.Tracing.ServiceName = s.Tracing.ServiceName
	}
	mergeOTLPConfig(&d.Tracing.OTLP, &s.Tracing.OTLP)

	for key, value := range s.DatabaseConfigs {
		d.DatabaseConfigs[key] = value
	}
	for key, value := range s.StorageConfigs {
		d.StorageConfigs[key] = value
	}
}

func mergePipelineConfig(dest, source *PipelineConfig) {
	if source.FromYear != 0 {
		dest.FromYear = source.FromYear
	}
	if source.ToYear != 0 {
		dest.ToYear = source.ToYear
	}
	if source.DataDir != "" {
		dest.DataDir = source.DataDir
	}
	if source.EmissionsFile != "" {
		dest.EmissionsFile = source.EmissionsFile
	}
	if source.Services != nil {
		dest.Services = source.Services
	}
	if source.InsertBatchSize != 0 {
		dest.InsertBatchSize = source.InsertBatchSize
	}
	if source.Stages != nil {
		dest.Stages = source.Stages
	}
	if source.DBRef != "" {
		dest.DBRef = source.DBRef
	}
	if source.StorageRef != "" {
		dest.StorageRef = source.StorageRef
	}
}

func mergeOTLPConfig(dest, source *OTLPConfig) {
	if source.Endpoint != "" {
		dest.Endpoint = source.Endpoint
	}
	if source.Protocol != "" {
		dest.Protocol = source.Protocol
	}
	dest.Insecure = dest.Insecure || source.Insecure
}

// loadStructFromEnv recursively loads configuration values into a struct from environment variables.
// It uses the "yaml" tag to determine the environment variable name.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := strings.Split(fieldType.Tag.Get("yaml"), ",")[0]
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// setField sets the value of a reflect.Value field based on its kind.
// Slices of strings or ints are read as comma-separated lists.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	case reflect.Slice:
		parts := strings.Split(value, ",")
		slice := reflect.MakeSlice(field.Type(), 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			elem := reflect.New(field.Type().Elem()).Elem()
			switch elem.Kind() {
			case reflect.String, reflect.Int, reflect.Int64:
				if err := setField(elem, part); err != nil {
					return err
				}
			default:
				return nil
			}
			slice = reflect.Append(slice, elem)
		}
		field.Set(slice)
	}
	return nil
}

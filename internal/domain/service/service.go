// Package service defines the taxi service types the pipeline processes.
package service

import (
	"fmt"
	"path/filepath"
	"regexp"

	config "github.com/tigerroll/tripco2/pkg/batch/core/config"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/exception"
)

const moduleName = "service"

// Type is the configuration record of one service type. It is resolved once at startup
// and passed unchanged through every stage.
type Type struct {
	// Name is the service label used in table names and logs ("yellow", "green").
	Name string
	// FactorKey is the vehicle_type of the service's row in the emission factor table.
	FactorKey string
	// PickupColumn and DropoffColumn are the source column names of the trip timestamps.
	PickupColumn  string
	DropoffColumn string
	// FilePrefix is the partition file name prefix ("yellow_tripdata").
	FilePrefix string
}

var builtin = map[string]Type{
	"yellow": {
		Name:          "yellow",
		FactorKey:     "yellow_taxi",
		PickupColumn:  "tpep_pickup_datetime",
		DropoffColumn: "tpep_dropoff_datetime",
		FilePrefix:    "yellow_tripdata",
	},
	"green": {
		Name:          "green",
		FactorKey:     "green_taxi",
		PickupColumn:  "lpep_pickup_datetime",
		DropoffColumn: "lpep_dropoff_datetime",
		FilePrefix:    "green_tripdata",
	},
}

var identifier = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Yellow returns the built-in yellow cab definition.
func Yellow() Type { return builtin["yellow"] }

// Green returns the built-in green cab definition.
func Green() Type { return builtin["green"] }

// RawTable returns the name of the loader's output table.
func (t Type) RawTable() string { return "raw_" + t.Name + "_trips" }

// CleanTable returns the name of the cleaner's output table.
func (t Type) CleanTable() string { return "clean_" + t.Name + "_trips" }

// TransformTable returns the name of the transformer's output table.
func (t Type) TransformTable() string { return "transform_" + t.Name + "_trips" }

// PartitionPath returns the path of the monthly partition file under dataDir.
func (t Type) PartitionPath(dataDir string, year, month int) string {
	return filepath.Join(dataDir, fmt.Sprintf("%s_%04d-%02d.parquet", t.FilePrefix, year, month))
}

// String implements fmt.Stringer.
func (t Type) String() string { return t.Name }

// FromConfig resolves the configured service list. Empty fields are taken from the
// built-in definition of the same name; services without one must set every field.
func FromConfig(services []config.ServiceConfig) ([]Type, error) {
	types := make([]Type, 0, len(services))
	seen := make(map[string]bool, len(services))
	for _, sc := range services {
		if !identifier.MatchString(sc.Name) {
			return nil, exception.NewFatalf(moduleName, "invalid service name '%s'", sc.Name, exception.ErrInvalidConfig)
		}
		if seen[sc.Name] {
			return nil, exception.NewFatalf(moduleName, "service '%s' configured twice", sc.Name, exception.ErrInvalidConfig)
		}
		seen[sc.Name] = true

		t := builtin[sc.Name]
		t.Name = sc.Name
		if sc.FactorKey != "" {
			t.FactorKey = sc.FactorKey
		}
		if sc.PickupColumn != "" {
			t.PickupColumn = sc.PickupColumn
		}
		if sc.DropoffColumn != "" {
			t.DropoffColumn = sc.DropoffColumn
		}
		if sc.FilePrefix != "" {
			t.FilePrefix = sc.FilePrefix
		}
		if t.FactorKey == "" || t.PickupColumn == "" || t.DropoffColumn == "" || t.FilePrefix == "" {
			return nil, exception.NewFatalf(moduleName, "service '%s' has no built-in definition and is incomplete", sc.Name, exception.ErrInvalidConfig)
		}
		types = append(types, t)
	}
	return types, nil
}

// NewTypesProvider is an Fx provider resolving the service types from the pipeline configuration.
func NewTypesProvider(p *config.PipelineConfig) ([]Type, error) {
	return FromConfig(p.Services)
}

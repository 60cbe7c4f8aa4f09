package service_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/tripco2/internal/domain/service"
	config "github.com/tigerroll/tripco2/pkg/batch/core/config"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/exception"
)

func TestType_Names(t *testing.T) {
	y := service.Yellow()

	assert.Equal(t, "raw_yellow_trips", y.RawTable())
	assert.Equal(t, "clean_yellow_trips", y.CleanTable())
	assert.Equal(t, "transform_yellow_trips", y.TransformTable())
	assert.Equal(t, filepath.Join("data", "yellow_tripdata_2019-03.parquet"), y.PartitionPath("data", 2019, 3))
	assert.Equal(t, "lpep_pickup_datetime", service.Green().PickupColumn)
}

func TestFromConfig_FillsBuiltins(t *testing.T) {
	types, err := service.FromConfig([]config.ServiceConfig{
		{Name: "yellow"},
		{Name: "green", FactorKey: "hybrid_taxi"},
	})
	require.NoError(t, err)
	require.Len(t, types, 2)

	assert.Equal(t, service.Yellow(), types[0])
	assert.Equal(t, "hybrid_taxi", types[1].FactorKey)
	assert.Equal(t, "lpep_dropoff_datetime", types[1].DropoffColumn)
}

func TestFromConfig_CustomService(t *testing.T) {
	types, err := service.FromConfig([]config.ServiceConfig{{
		Name: "fhv", FactorKey: "fhv", PickupColumn: "pickup_datetime",
		DropoffColumn: "dropoff_datetime", FilePrefix: "fhv_tripdata",
	}})
	require.NoError(t, err)
	assert.Equal(t, "raw_fhv_trips", types[0].RawTable())
}

func TestFromConfig_Rejects(t *testing.T) {
	cases := map[string][]config.ServiceConfig{
		"injection":  {{Name: "yellow; drop table x"}},
		"duplicate":  {{Name: "yellow"}, {Name: "yellow"}},
		"incomplete": {{Name: "fhv", FactorKey: "fhv"}},
	}
	for name, services := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := service.FromConfig(services)
			require.Error(t, err)
			assert.True(t, errors.Is(err, exception.ErrInvalidConfig))
		})
	}
}

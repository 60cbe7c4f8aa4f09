package emission_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/tripco2/internal/emission"
	"github.com/tigerroll/tripco2/internal/query"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/exception"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
	testutil "github.com/tigerroll/tripco2/pkg/batch/test"
)

func TestReadFactors(t *testing.T) {
	factors, err := emission.ReadFactors(strings.NewReader("co2_grams_per_mile,vehicle_type,source\n404,yellow_taxi,epa\n 300.5, green_taxi,epa\n"))
	require.NoError(t, err)
	assert.Equal(t, []emission.Factor{
		{VehicleType: "yellow_taxi", CO2GramsPerMile: 404},
		{VehicleType: "green_taxi", CO2GramsPerMile: 300.5},
	}, factors)
}

func TestReadFactors_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing column": "vehicle_type,grams\nyellow_taxi,404\n",
		"not a number":   "vehicle_type,co2_grams_per_mile\nyellow_taxi,lots\n",
		"negative":       "vehicle_type,co2_grams_per_mile\nyellow_taxi,-1\n",
		"duplicate":      "vehicle_type,co2_grams_per_mile\nyellow_taxi,1\nyellow_taxi,2\n",
		"empty":          "",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := emission.ReadFactors(strings.NewReader(input))
			assert.Error(t, err)
		})
	}
}

func TestTable_LoadFileAndLookup(t *testing.T) {
	ctx := context.Background()
	conn := testutil.NewSQLiteConnection(t, "emissions")
	var out bytes.Buffer
	table := emission.NewTable(conn, query.SQLite{}, logger.New(&out, logger.LevelInfo))

	path := filepath.Join(t.TempDir(), "vehicle_emissions.csv")
	require.NoError(t, os.WriteFile(path, []byte("vehicle_type,co2_grams_per_mile\nyellow_taxi,450\ngreen_taxi,300\n"), 0o644))

	// Loading twice yields the same table.
	for i := 0; i < 2; i++ {
		n, err := table.LoadFile(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	}
	assert.Contains(t, out.String(), "vehicle_emissions table created with 2 rows")

	grams, err := table.Lookup(ctx, "yellow_taxi")
	require.NoError(t, err)
	assert.Equal(t, 450.0, grams)

	_, err = table.Lookup(ctx, "fhv")
	require.Error(t, err)
	assert.True(t, errors.Is(err, exception.ErrFactorMissing))
	assert.True(t, exception.IsFatal(err))
}

func TestTable_LoadFileMissing(t *testing.T) {
	conn := testutil.NewSQLiteConnection(t, "emissions")
	table := emission.NewTable(conn, query.SQLite{}, logger.New(&bytes.Buffer{}, logger.LevelInfo))

	_, err := table.LoadFile(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.True(t, exception.IsFatal(err))
}

func TestTable_LoadFileFailureEmptiesTable(t *testing.T) {
	ctx := context.Background()
	conn := testutil.NewSQLiteConnection(t, "emissions")
	table := emission.NewTable(conn, query.SQLite{}, logger.New(&bytes.Buffer{}, logger.LevelInfo))
	_, err := table.Load(ctx, []emission.Factor{{VehicleType: "yellow_taxi", CO2GramsPerMile: 450}})
	require.NoError(t, err)

	dir := t.TempDir()
	invalid := filepath.Join(dir, "invalid.csv")
	require.NoError(t, os.WriteFile(invalid, []byte("vehicle_type,co2_grams_per_mile\nyellow_taxi,lots\n"), 0o644))

	for _, path := range []string{filepath.Join(dir, "absent.csv"), invalid} {
		_, err := table.LoadFile(ctx, path)
		require.Error(t, err, path)

		_, err = table.Lookup(ctx, "yellow_taxi")
		assert.True(t, errors.Is(err, exception.ErrFactorMissing), path)
	}
}

// Package emission maintains the emission factor reference table: one CO2 grams-per-mile
// figure per vehicle type, loaded from a CSV file.
package emission

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/tigerroll/tripco2/internal/domain/trip"
	"github.com/tigerroll/tripco2/internal/query"
	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/exception"
	"github.com/tigerroll/tripco2/pkg/batch/support/util/logger"
)

const moduleName = "emission"

// Factor is one row of the emission factor table.
type Factor struct {
	VehicleType     string  `gorm:"column:vehicle_type"`
	CO2GramsPerMile float64 `gorm:"column:co2_grams_per_mile"`
}

// Table loads and queries the emission factor table.
type Table struct {
	backend database.QueryBackend
	dialect query.Dialect
	log     *logger.Logger
}

// NewTable creates a Table on backend.
func NewTable(backend database.QueryBackend, d query.Dialect, log *logger.Logger) *Table {
	return &Table{backend: backend, dialect: d, log: log}
}

// ReadFactors parses a CSV with a header naming vehicle_type and co2_grams_per_mile, in any
// order. Other columns are ignored. A vehicle type may appear only once.
func ReadFactors(r io.Reader) ([]Factor, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	keyIdx, gramIdx := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case trip.EmissionKeyColumn:
			keyIdx = i
		case trip.EmissionGramColumn:
			gramIdx = i
		}
	}
	if keyIdx < 0 || gramIdx < 0 {
		return nil, fmt.Errorf("header %v must contain %s and %s", header, trip.EmissionKeyColumn, trip.EmissionGramColumn)
	}

	var factors []Factor
	seen := make(map[string]bool)
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		key := strings.TrimSpace(record[keyIdx])
		grams, err := strconv.ParseFloat(strings.TrimSpace(record[gramIdx]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid %s '%s': %w", line, trip.EmissionGramColumn, record[gramIdx], err)
		}
		if grams < 0 {
			return nil, fmt.Errorf("line %d: negative %s for '%s'", line, trip.EmissionGramColumn, key)
		}
		if seen[key] {
			return nil, fmt.Errorf("line %d: duplicate vehicle type '%s'", line, key)
		}
		seen[key] = true
		factors = append(factors, Factor{VehicleType: key, CO2GramsPerMile: grams})
	}
	return factors, nil
}

// LoadFile rebuilds the table from the CSV at path. The table is recreated before the file
// is read, so an unreadable or invalid file leaves it empty.
func (t *Table) LoadFile(ctx context.Context, path string) (int64, error) {
	if err := t.recreate(ctx); err != nil {
		return 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, exception.NewFatalf(moduleName, "failed to open emission factor file '%s'", path, err)
	}
	defer f.Close()

	factors, err := ReadFactors(f)
	if err != nil {
		return 0, exception.NewFatalf(moduleName, "invalid emission factor file '%s'", path, err)
	}
	return t.insert(ctx, factors)
}

// Load drops and recreates the table with factors.
func (t *Table) Load(ctx context.Context, factors []Factor) (int64, error) {
	if err := t.recreate(ctx); err != nil {
		return 0, err
	}
	return t.insert(ctx, factors)
}

func (t *Table) recreate(ctx context.Context) error {
	stmts := []database.Statement{
		database.NewStatement("DROP TABLE IF EXISTS " + trip.EmissionTable),
		database.NewStatement(fmt.Sprintf("CREATE TABLE %s (%s %s PRIMARY KEY, %s %s NOT NULL)",
			trip.EmissionTable,
			trip.EmissionKeyColumn, t.dialect.TextType(),
			trip.EmissionGramColumn, t.dialect.ColumnType(trip.Float64))),
	}
	for _, stmt := range stmts {
		if _, err := t.backend.Execute(ctx, stmt); err != nil {
			return exception.NewFatal(moduleName, "failed to recreate emission factor table", err)
		}
	}
	return nil
}

func (t *Table) insert(ctx context.Context, factors []Factor) (int64, error) {
	if len(factors) == 0 {
		t.log.Warnf("%s: no emission factors loaded", trip.EmissionTable)
		return 0, nil
	}
	n, err := t.backend.BulkInsert(ctx, trip.EmissionTable, factors, len(factors))
	if err != nil {
		return 0, exception.NewFatal(moduleName, "failed to insert emission factors", err)
	}
	t.log.Infof("%s table created with %d rows", trip.EmissionTable, n)
	return n, nil
}

// Lookup returns the CO2 grams per mile of vehicleType. A missing factor wraps
// exception.ErrFactorMissing.
func (t *Table) Lookup(ctx context.Context, vehicleType string) (float64, error) {
	var factors []Factor
	stmt := database.NewStatement(fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = ?",
		trip.EmissionKeyColumn, trip.EmissionGramColumn, trip.EmissionTable, trip.EmissionKeyColumn), vehicleType)
	if err := t.backend.Fetch(ctx, &factors, stmt); err != nil {
		return 0, exception.NewFatalf(moduleName, "failed to read emission factor for '%s'", vehicleType, err)
	}
	if len(factors) == 0 {
		return 0, exception.NewFatalf(moduleName, "no emission factor for vehicle type '%s'", vehicleType, exception.ErrFactorMissing)
	}
	return factors[0].CO2GramsPerMile, nil
}

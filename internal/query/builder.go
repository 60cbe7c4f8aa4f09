package query

import (
	"fmt"
	"strings"

	"github.com/tigerroll/tripco2/internal/domain/service"
	"github.com/tigerroll/tripco2/internal/domain/trip"
	"github.com/tigerroll/tripco2/pkg/batch/adapter/database"
)

// Builder renders the statements of one service type. Table and column names come from
// service.Type and trip.Columns only; every value is passed as an argument.
type Builder struct {
	dialect Dialect
	svc     service.Type
	columns []trip.Column
}

// NewBuilder creates a Builder for svc.
func NewBuilder(d Dialect, svc service.Type) *Builder {
	return &Builder{dialect: d, svc: svc, columns: trip.Columns(svc)}
}

// Dialect returns the dialect statements are rendered for.
func (b *Builder) Dialect() Dialect { return b.dialect }

// Service returns the service type statements are rendered for.
func (b *Builder) Service() service.Type { return b.svc }

func (b *Builder) columnList(prefix string) string {
	names := make([]string, len(b.columns))
	for i, c := range b.columns {
		names[i] = prefix + c.Target
	}
	return strings.Join(names, ", ")
}

func (b *Builder) columnDefs() []string {
	defs := make([]string, 0, len(b.columns))
	for _, c := range b.columns {
		defs = append(defs, c.Target+" "+b.dialect.ColumnType(c.Kind))
	}
	return defs
}

func recreate(table string, defs []string) []database.Statement {
	return []database.Statement{
		database.NewStatement("DROP TABLE IF EXISTS " + table),
		database.NewStatement(fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(defs, ", "))),
	}
}

// RecreateRawTable drops and creates the raw table empty.
func (b *Builder) RecreateRawTable() []database.Statement {
	return recreate(b.svc.RawTable(), b.columnDefs())
}

// RecreateCleanTable drops and creates the clean table empty.
func (b *Builder) RecreateCleanTable() []database.Statement {
	return recreate(b.svc.CleanTable(), b.columnDefs())
}

// RecreateTransformTable drops and creates the transform table empty.
func (b *Builder) RecreateTransformTable() []database.Statement {
	defs := b.columnDefs()
	for _, dv := range Derivations() {
		defs = append(defs, dv.Column+" "+dv.columnType(b.dialect))
	}
	return recreate(b.svc.TransformTable(), defs)
}

func (b *Builder) predicates(prefix string) (string, []interface{}) {
	rules := FilterRules()
	parts := make([]string, 0, len(rules))
	args := make([]interface{}, 0, len(rules))
	for _, r := range rules {
		sql, arg := r.render(b.dialect, prefix)
		parts = append(parts, sql)
		args = append(args, arg)
	}
	return strings.Join(parts, " AND "), args
}

// InsertClean appends the distinct raw rows of year that satisfy every FilterRule.
func (b *Builder) InsertClean(year int) database.Statement {
	where, args := b.predicates("")
	cols := b.columnList("")
	sql := fmt.Sprintf("INSERT INTO %s (%s) SELECT DISTINCT %s FROM %s WHERE %s = ? AND %s",
		b.svc.CleanTable(), cols, cols, b.svc.RawTable(), b.dialect.Year(trip.ColPickup), where)
	return database.NewStatement(sql, append([]interface{}{year}, args...)...)
}

// CountYear counts the rows of table whose pickup falls in year.
func (b *Builder) CountYear(table string, year int) database.Statement {
	return database.NewStatement(
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", table, b.dialect.Year(trip.ColPickup)), year)
}

// CountViolations counts the clean rows of year that violate rule.
func (b *Builder) CountViolations(rule FilterRule, year int) database.Statement {
	pred, arg := rule.render(b.dialect, "")
	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ? AND NOT (%s)",
		b.svc.CleanTable(), b.dialect.Year(trip.ColPickup), pred)
	return database.NewStatement(sql, year, arg)
}

// InsertTransform appends the clean rows of year joined with the service's emission factor.
func (b *Builder) InsertTransform(year int) database.Statement {
	derived := Derivations()
	targets := make([]string, 0, len(derived))
	exprs := make([]string, 0, len(derived))
	for _, dv := range derived {
		targets = append(targets, dv.Column)
		exprs = append(exprs, dv.expression(b.dialect))
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s, %s) SELECT %s, %s FROM %s c JOIN %s e ON e.%s = ? WHERE %s = ?",
		b.svc.TransformTable(), b.columnList(""), strings.Join(targets, ", "),
		b.columnList("c."), strings.Join(exprs, ", "),
		b.svc.CleanTable(), trip.EmissionTable, trip.EmissionKeyColumn,
		b.dialect.Year("c."+trip.ColPickup))
	return database.NewStatement(sql, b.svc.FactorKey, year)
}

// RawStats returns row count, total and average distance, total and average fare of the raw table.
func (b *Builder) RawStats() database.Statement {
	return database.NewStatement(fmt.Sprintf(
		"SELECT COUNT(*) AS row_count, COALESCE(SUM(%[1]s), 0) AS total_distance, COALESCE(AVG(%[1]s), 0) AS avg_distance,"+
			" COALESCE(SUM(%[2]s), 0) AS total_fare, COALESCE(AVG(%[2]s), 0) AS avg_fare FROM %[3]s",
		trip.ColTripDistance, trip.ColFareAmount, b.svc.RawTable()))
}

// MaxCO2Trip selects the most CO2-intensive trip. Ties go to the earliest pickup, then dropoff.
func (b *Builder) MaxCO2Trip() database.Statement {
	d := b.dialect
	return database.NewStatement(fmt.Sprintf(
		"SELECT %s AS vendor_id, %s AS pickup_datetime, %s AS dropoff_datetime, %s AS trip_distance, %s AS trip_co2_kgs"+
			" FROM %s ORDER BY %s DESC, %s ASC, %s ASC LIMIT 1",
		trip.ColVendorID, d.TimestampText(trip.ColPickup), d.TimestampText(trip.ColDropoff),
		trip.ColTripDistance, trip.ColTripCO2Kgs, b.svc.TransformTable(),
		trip.ColTripCO2Kgs, trip.ColPickup, trip.ColDropoff))
}

// BucketExtreme selects the dim bucket with the highest (or lowest) mean CO2.
// Ties go to the lowest bucket value.
func (b *Builder) BucketExtreme(dim Dimension, highest bool) database.Statement {
	dir := "ASC"
	if highest {
		dir = "DESC"
	}
	return database.NewStatement(fmt.Sprintf(
		"SELECT %s AS bucket, AVG(%s) AS avg_co2_kg FROM %s GROUP BY %s ORDER BY avg_co2_kg %s, %s ASC LIMIT 1",
		b.dialect.Text(string(dim)), trip.ColTripCO2Kgs, b.svc.TransformTable(), dim, dir, dim))
}

// YearlyTotals sums CO2 kilograms per pickup year, ascending.
func (b *Builder) YearlyTotals() database.Statement {
	return database.NewStatement(fmt.Sprintf(
		"SELECT %s AS trip_year, SUM(%s) AS total_co2_kg FROM %s GROUP BY 1 ORDER BY 1",
		b.dialect.Year(trip.ColPickup), trip.ColTripCO2Kgs, b.svc.TransformTable()))
}

// StagingTable is the table one partition is read into before it is appended to the raw table.
func (b *Builder) StagingTable() string { return b.svc.RawTable() + "_staging" }

// RecreateStagingTable drops and creates the staging table empty.
func (b *Builder) RecreateStagingTable() []database.Statement {
	return recreate(b.StagingTable(), b.columnDefs())
}

// AppendStaging moves a fully read partition from the staging table into the raw table.
func (b *Builder) AppendStaging() database.Statement {
	cols := b.columnList("")
	return database.NewStatement(fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		b.svc.RawTable(), cols, cols, b.StagingTable()))
}

// DropStagingTable removes the staging table.
func (b *Builder) DropStagingTable() database.Statement {
	return database.NewStatement("DROP TABLE IF EXISTS " + b.StagingTable())
}

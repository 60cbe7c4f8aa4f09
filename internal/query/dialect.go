// Package query renders the pipeline's table rebuilds, filters, derivations and analytical
// queries as parameterized statements for a SQL dialect. Rules are kept as data and only
// turned into SQL here.
package query

import (
	"fmt"

	"github.com/tigerroll/tripco2/internal/domain/trip"
)

// Dialect renders the expressions that differ between SQL engines.
// Timestamps are stored as TEXT on SQLite and TIMESTAMP on Postgres.
type Dialect interface {
	Name() string
	// ColumnType returns the DDL type of a column kind.
	ColumnType(kind trip.Kind) string
	// TextType is the DDL type of derived text columns.
	TextType() string
	Year(col string) string
	Hour(col string) string
	// DayName returns the English weekday name ("Monday").
	DayName(col string) string
	// ISOWeek returns the ISO 8601 week number.
	ISOWeek(col string) string
	// Month returns the two-digit month ("01".."12").
	Month(col string) string
	// DurationSeconds returns end - start in seconds.
	DurationSeconds(start, end string) string
	// TimestampText renders a timestamp column as trip.TimestampLayout text.
	TimestampText(col string) string
	// Text casts any expression to text.
	Text(expr string) string
}

// DialectFor returns the dialect of a backend type.
func DialectFor(backendType string) (Dialect, error) {
	switch backendType {
	case "sqlite":
		return SQLite{}, nil
	case "postgres", "redshift":
		return Postgres{}, nil
	}
	return nil, fmt.Errorf("no SQL dialect for backend type '%s'", backendType)
}

// SQLite renders expressions with strftime over TEXT timestamps.
type SQLite struct{}

var _ Dialect = SQLite{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) ColumnType(kind trip.Kind) string {
	switch kind {
	case trip.Int64:
		return "INTEGER"
	case trip.Float64:
		return "REAL"
	}
	return "TEXT"
}

func (SQLite) TextType() string { return "TEXT" }

func (SQLite) Year(col string) string {
	return fmt.Sprintf("CAST(strftime('%%Y', %s) AS INTEGER)", col)
}

func (SQLite) Hour(col string) string {
	return fmt.Sprintf("CAST(strftime('%%H', %s) AS INTEGER)", col)
}

func (SQLite) DayName(col string) string {
	return fmt.Sprintf("CASE CAST(strftime('%%w', %s) AS INTEGER)"+
		" WHEN 0 THEN 'Sunday' WHEN 1 THEN 'Monday' WHEN 2 THEN 'Tuesday' WHEN 3 THEN 'Wednesday'"+
		" WHEN 4 THEN 'Thursday' WHEN 5 THEN 'Friday' ELSE 'Saturday' END", col)
}

// ISOWeek counts weeks from the Thursday of the row's ISO week; strftime('%V') needs SQLite 3.46.
func (SQLite) ISOWeek(col string) string {
	return fmt.Sprintf("((CAST(strftime('%%j', date(%s, '-3 days', 'weekday 4')) AS INTEGER) - 1) / 7 + 1)", col)
}

func (SQLite) Month(col string) string {
	return fmt.Sprintf("strftime('%%m', %s)", col)
}

func (SQLite) DurationSeconds(start, end string) string {
	return fmt.Sprintf("(CAST(strftime('%%s', %s) AS INTEGER) - CAST(strftime('%%s', %s) AS INTEGER))", end, start)
}

func (SQLite) TimestampText(col string) string { return col }

func (SQLite) Text(expr string) string {
	return fmt.Sprintf("CAST(%s AS TEXT)", expr)
}

// Postgres renders expressions with EXTRACT and TO_CHAR over TIMESTAMP columns.
type Postgres struct{}

var _ Dialect = Postgres{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) ColumnType(kind trip.Kind) string {
	switch kind {
	case trip.Int64:
		return "BIGINT"
	case trip.Float64:
		return "DOUBLE PRECISION"
	}
	return "TIMESTAMP"
}

func (Postgres) TextType() string { return "TEXT" }

func (Postgres) Year(col string) string {
	return fmt.Sprintf("CAST(EXTRACT(YEAR FROM %s) AS INTEGER)", col)
}

func (Postgres) Hour(col string) string {
	return fmt.Sprintf("CAST(EXTRACT(HOUR FROM %s) AS INTEGER)", col)
}

func (Postgres) DayName(col string) string {
	return fmt.Sprintf("TO_CHAR(%s, 'FMDay')", col)
}

func (Postgres) ISOWeek(col string) string {
	return fmt.Sprintf("CAST(EXTRACT(WEEK FROM %s) AS INTEGER)", col)
}

func (Postgres) Month(col string) string {
	return fmt.Sprintf("TO_CHAR(%s, 'MM')", col)
}

func (Postgres) DurationSeconds(start, end string) string {
	return fmt.Sprintf("EXTRACT(EPOCH FROM (%s - %s))", end, start)
}

func (Postgres) TimestampText(col string) string {
	return fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM-DD HH24:MI:SS')", col)
}

func (Postgres) Text(expr string) string {
	return fmt.Sprintf("CAST(%s AS TEXT)", expr)
}

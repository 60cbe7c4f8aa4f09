package query

import (
	"fmt"

	"github.com/tigerroll/tripco2/internal/domain/trip"
)

// Operator is a comparison of a FilterRule.
type Operator string

const (
	GreaterThan    Operator = ">"
	GreaterOrEqual Operator = ">="
	LessOrEqual    Operator = "<="
)

// Operand selects the left-hand side of a FilterRule.
type Operand int

const (
	// OperandColumn compares a canonical column.
	OperandColumn Operand = iota
	// OperandDuration compares the trip duration in seconds.
	OperandDuration
)

// FilterRule is one validity predicate of a clean trip. A row is clean when it satisfies
// every rule; the Check label names the verification run over the clean rows.
type FilterRule struct {
	Operand Operand
	Column  string
	Op      Operator
	Value   float64
	// Check is the label of the verification counting rows that violate the rule.
	Check string
}

// FilterRules returns the validity predicates applied by the cleaner, in check order.
func FilterRules() []FilterRule {
	return []FilterRule{
		{Operand: OperandColumn, Column: trip.ColPassengerCount, Op: GreaterThan, Value: 0, Check: "0 passengers"},
		{Operand: OperandColumn, Column: trip.ColTripDistance, Op: GreaterThan, Value: 0, Check: "0 miles"},
		{Operand: OperandColumn, Column: trip.ColTripDistance, Op: LessOrEqual, Value: 100, Check: ">100 miles"},
		{Operand: OperandDuration, Op: LessOrEqual, Value: 24 * 60 * 60, Check: ">1 day"},
		{Operand: OperandDuration, Op: GreaterOrEqual, Value: 0, Check: "negative duration"},
	}
}

// render returns the predicate with its value as a placeholder argument.
func (r FilterRule) render(d Dialect, prefix string) (string, interface{}) {
	lhs := prefix + r.Column
	if r.Operand == OperandDuration {
		lhs = d.DurationSeconds(prefix+trip.ColPickup, prefix+trip.ColDropoff)
	}
	return fmt.Sprintf("%s %s ?", lhs, r.Op), r.Value
}

// DerivationKind names a derived column of a transformed trip.
type DerivationKind int

const (
	DeriveCO2Kgs DerivationKind = iota
	DeriveAvgMph
	DeriveHourOfDay
	DeriveDayOfWeek
	DeriveWeekOfYear
	DeriveMonthOfYear
)

// Derivation is one computed column appended by the transformer.
type Derivation struct {
	Column string
	Kind   DerivationKind
}

// Derivations returns the transformer's derived columns in table order.
func Derivations() []Derivation {
	return []Derivation{
		{Column: trip.ColTripCO2Kgs, Kind: DeriveCO2Kgs},
		{Column: trip.ColAvgMph, Kind: DeriveAvgMph},
		{Column: trip.ColHourOfDay, Kind: DeriveHourOfDay},
		{Column: trip.ColDayOfWeek, Kind: DeriveDayOfWeek},
		{Column: trip.ColWeekOfYear, Kind: DeriveWeekOfYear},
		{Column: trip.ColMonthOfYear, Kind: DeriveMonthOfYear},
	}
}

// columnType returns the DDL type of the derived column.
func (dv Derivation) columnType(d Dialect) string {
	switch dv.Kind {
	case DeriveCO2Kgs, DeriveAvgMph:
		return d.ColumnType(trip.Float64)
	case DeriveHourOfDay, DeriveWeekOfYear:
		return d.ColumnType(trip.Int64)
	}
	return d.TextType()
}

// expression renders the derivation over clean row alias c and factor row alias e.
func (dv Derivation) expression(d Dialect) string {
	pickup, dropoff := "c."+trip.ColPickup, "c."+trip.ColDropoff
	switch dv.Kind {
	case DeriveCO2Kgs:
		return fmt.Sprintf("c.%s * e.%s / 1000.0", trip.ColTripDistance, trip.EmissionGramColumn)
	case DeriveAvgMph:
		return fmt.Sprintf("c.%s / NULLIF(%s / 3600.0, 0)", trip.ColTripDistance, d.DurationSeconds(pickup, dropoff))
	case DeriveHourOfDay:
		return d.Hour(pickup)
	case DeriveDayOfWeek:
		return d.DayName(pickup)
	case DeriveWeekOfYear:
		return d.ISOWeek(pickup)
	}
	return d.Month(pickup)
}

// Dimension is a bucket column the aggregator groups transformed trips by.
type Dimension string

const (
	DimHourOfDay   Dimension = trip.ColHourOfDay
	DimDayOfWeek   Dimension = trip.ColDayOfWeek
	DimWeekOfYear  Dimension = trip.ColWeekOfYear
	DimMonthOfYear Dimension = trip.ColMonthOfYear
)

// Dimensions returns the aggregation dimensions in report order.
func Dimensions() []Dimension {
	return []Dimension{DimHourOfDay, DimDayOfWeek, DimWeekOfYear, DimMonthOfYear}
}

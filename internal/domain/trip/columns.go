// Package trip declares the trip record schema shared by every stage.
package trip

import (
	"github.com/tigerroll/tripco2/internal/domain/service"
)

// Kind is the logical type of a column.
type Kind int

const (
	// Int64 columns accept any integer or floating point physical type.
	Int64 Kind = iota
	// Float64 columns accept any integer or floating point physical type.
	Float64
	// Timestamp columns must be INT64 with a millisecond, microsecond or nanosecond unit.
	Timestamp
)

// String returns the kind label used in schema mismatch messages.
func (k Kind) String() string {
	switch k {
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Timestamp:
		return "timestamp"
	}
	return "unknown"
}

// Column maps a source partition column onto a canonical table column.
type Column struct {
	// Source is the column name in the partition file. Matching is case-insensitive.
	Source string
	// Target is the canonical column name in every stage table.
	Target string
	Kind   Kind
	// Optional columns may be absent from a partition; they are loaded as NULL.
	Optional bool
}

// Canonical column names referenced by queries.
const (
	ColVendorID        = "vendor_id"
	ColPickup          = "pickup_datetime"
	ColDropoff         = "dropoff_datetime"
	ColPassengerCount  = "passenger_count"
	ColTripDistance    = "trip_distance"
	ColFareAmount      = "fare_amount"
	ColTripCO2Kgs      = "trip_co2_kgs"
	ColAvgMph          = "avg_mph"
	ColHourOfDay       = "hour_of_day"
	ColDayOfWeek       = "day_of_week"
	ColWeekOfYear      = "week_of_year"
	ColMonthOfYear     = "month_of_year"
	TimestampLayout    = "2006-01-02 15:04:05"
	EmissionTable      = "vehicle_emissions"
	EmissionKeyColumn  = "vehicle_type"
	EmissionGramColumn = "co2_grams_per_mile"
)

// Columns returns the declared schema of svc in table order. Only the timestamp source
// names differ between service types.
func Columns(svc service.Type) []Column {
	return []Column{
		{Source: "VendorID", Target: ColVendorID, Kind: Int64},
		{Source: svc.PickupColumn, Target: ColPickup, Kind: Timestamp},
		{Source: svc.DropoffColumn, Target: ColDropoff, Kind: Timestamp},
		{Source: "passenger_count", Target: ColPassengerCount, Kind: Int64},
		{Source: "trip_distance", Target: ColTripDistance, Kind: Float64},
		{Source: "RatecodeID", Target: "ratecode_id", Kind: Int64},
		{Source: "PULocationID", Target: "pu_location_id", Kind: Int64},
		{Source: "DOLocationID", Target: "do_location_id", Kind: Int64},
		{Source: "payment_type", Target: "payment_type", Kind: Int64},
		{Source: "fare_amount", Target: ColFareAmount, Kind: Float64},
		{Source: "extra", Target: "extra", Kind: Float64},
		{Source: "mta_tax", Target: "mta_tax", Kind: Float64},
		{Source: "tip_amount", Target: "tip_amount", Kind: Float64},
		{Source: "tolls_amount", Target: "tolls_amount", Kind: Float64},
		{Source: "improvement_surcharge", Target: "improvement_surcharge", Kind: Float64},
		{Source: "total_amount", Target: "total_amount", Kind: Float64},
		{Source: "congestion_surcharge", Target: "congestion_surcharge", Kind: Float64, Optional: true},
	}
}

// Targets returns the canonical column names of cols.
func Targets(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Target
	}
	return names
}

package trip

import "fmt"

// RawTrip is one row of a raw trip table. Every field is nullable because the source
// partitions carry nulls in most columns. Timestamps are rendered with TimestampLayout.
type RawTrip struct {
	VendorID             *int64   `gorm:"column:vendor_id"`
	PickupDatetime       *string  `gorm:"column:pickup_datetime"`
	DropoffDatetime      *string  `gorm:"column:dropoff_datetime"`
	PassengerCount       *int64   `gorm:"column:passenger_count"`
	TripDistance         *float64 `gorm:"column:trip_distance"`
	RatecodeID           *int64   `gorm:"column:ratecode_id"`
	PULocationID         *int64   `gorm:"column:pu_location_id"`
	DOLocationID         *int64   `gorm:"column:do_location_id"`
	PaymentType          *int64   `gorm:"column:payment_type"`
	FareAmount           *float64 `gorm:"column:fare_amount"`
	Extra                *float64 `gorm:"column:extra"`
	MtaTax               *float64 `gorm:"column:mta_tax"`
	TipAmount            *float64 `gorm:"column:tip_amount"`
	TollsAmount          *float64 `gorm:"column:tolls_amount"`
	ImprovementSurcharge *float64 `gorm:"column:improvement_surcharge"`
	TotalAmount          *float64 `gorm:"column:total_amount"`
	CongestionSurcharge  *float64 `gorm:"column:congestion_surcharge"`
}

// SetInt64 assigns an integer column by its canonical name.
func (r *RawTrip) SetInt64(target string, v *int64) error {
	switch target {
	case ColVendorID:
		r.VendorID = v
	case ColPassengerCount:
		r.PassengerCount = v
	case "ratecode_id":
		r.RatecodeID = v
	case "pu_location_id":
		r.PULocationID = v
	case "do_location_id":
		r.DOLocationID = v
	case "payment_type":
		r.PaymentType = v
	default:
		return fmt.Errorf("no integer column '%s'", target)
	}
	return nil
}

// SetFloat64 assigns a floating point column by its canonical name.
func (r *RawTrip) SetFloat64(target string, v *float64) error {
	switch target {
	case ColTripDistance:
		r.TripDistance = v
	case ColFareAmount:
		r.FareAmount = v
	case "extra":
		r.Extra = v
	case "mta_tax":
		r.MtaTax = v
	case "tip_amount":
		r.TipAmount = v
	case "tolls_amount":
		r.TollsAmount = v
	case "improvement_surcharge":
		r.ImprovementSurcharge = v
	case "total_amount":
		r.TotalAmount = v
	case "congestion_surcharge":
		r.CongestionSurcharge = v
	default:
		return fmt.Errorf("no float column '%s'", target)
	}
	return nil
}

// SetTimestamp assigns a timestamp column by its canonical name.
func (r *RawTrip) SetTimestamp(target string, v *string) error {
	switch target {
	case ColPickup:
		r.PickupDatetime = v
	case ColDropoff:
		r.DropoffDatetime = v
	default:
		return fmt.Errorf("no timestamp column '%s'", target)
	}
	return nil
}

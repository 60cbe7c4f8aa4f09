// Package tripfixture writes monthly trip partitions in the TLC Parquet layout for tests.
package tripfixture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/tripco2/internal/domain/service"
)

// Trip holds the fields tests vary; the remaining columns get fixed values.
type Trip struct {
	Pickup     time.Time
	Dropoff    time.Time
	Passengers float64
	Miles      float64
	Fare       float64
	Congestion *float64
}

// Valid returns n distinct trips of the given month that pass every cleaning rule.
func Valid(year, month, n int) []Trip {
	trips := make([]Trip, n)
	start := time.Date(year, time.Month(month), 1, 6, 0, 0, 0, time.UTC)
	for i := range trips {
		pickup := start.Add(time.Duration(i) * 7 * time.Minute)
		trips[i] = Trip{
			Pickup:     pickup,
			Dropoff:    pickup.Add(12 * time.Minute),
			Passengers: 1,
			Miles:      1 + float64(i%9),
			Fare:       8.5,
		}
	}
	return trips
}

// yellowRow and greenRow store wall-clock timestamps.
type yellowRow struct {
	VendorID             int64    `parquet:"name=VendorID, type=INT64"`
	Pickup               int64    `parquet:"name=tpep_pickup_datetime, type=INT64, convertedtype=TIMESTAMP_MICROS"`
	Dropoff              int64    `parquet:"name=tpep_dropoff_datetime, type=INT64, convertedtype=TIMESTAMP_MICROS"`
	PassengerCount       float64  `parquet:"name=passenger_count, type=DOUBLE"`
	TripDistance         float64  `parquet:"name=trip_distance, type=DOUBLE"`
	RatecodeID           float64  `parquet:"name=RatecodeID, type=DOUBLE"`
	StoreAndFwdFlag      string   `parquet:"name=store_and_fwd_flag, type=BYTE_ARRAY, convertedtype=UTF8"`
	PULocationID         int32    `parquet:"name=PULocationID, type=INT32"`
	DOLocationID         int32    `parquet:"name=DOLocationID, type=INT32"`
	PaymentType          int64    `parquet:"name=payment_type, type=INT64"`
	FareAmount           float64  `parquet:"name=fare_amount, type=DOUBLE"`
	Extra                float64  `parquet:"name=extra, type=DOUBLE"`
	MtaTax               float64  `parquet:"name=mta_tax, type=DOUBLE"`
	TipAmount            float64  `parquet:"name=tip_amount, type=DOUBLE"`
	TollsAmount          float64  `parquet:"name=tolls_amount, type=DOUBLE"`
	ImprovementSurcharge float64  `parquet:"name=improvement_surcharge, type=DOUBLE"`
	TotalAmount          float64  `parquet:"name=total_amount, type=DOUBLE"`
	CongestionSurcharge  *float64 `parquet:"name=congestion_surcharge, type=DOUBLE, repetitiontype=OPTIONAL"`
}

type greenRow struct {
	VendorID             int64    `parquet:"name=VendorID, type=INT64"`
	Pickup               int64    `parquet:"name=lpep_pickup_datetime, type=INT64, convertedtype=TIMESTAMP_MICROS"`
	Dropoff              int64    `parquet:"name=lpep_dropoff_datetime, type=INT64, convertedtype=TIMESTAMP_MICROS"`
	StoreAndFwdFlag      string   `parquet:"name=store_and_fwd_flag, type=BYTE_ARRAY, convertedtype=UTF8"`
	RatecodeID           float64  `parquet:"name=RatecodeID, type=DOUBLE"`
	PULocationID         int32    `parquet:"name=PULocationID, type=INT32"`
	DOLocationID         int32    `parquet:"name=DOLocationID, type=INT32"`
	PassengerCount       float64  `parquet:"name=passenger_count, type=DOUBLE"`
	TripDistance         float64  `parquet:"name=trip_distance, type=DOUBLE"`
	FareAmount           float64  `parquet:"name=fare_amount, type=DOUBLE"`
	Extra                float64  `parquet:"name=extra, type=DOUBLE"`
	MtaTax               float64  `parquet:"name=mta_tax, type=DOUBLE"`
	TipAmount            float64  `parquet:"name=tip_amount, type=DOUBLE"`
	TollsAmount          float64  `parquet:"name=tolls_amount, type=DOUBLE"`
	ImprovementSurcharge float64  `parquet:"name=improvement_surcharge, type=DOUBLE"`
	TotalAmount          float64  `parquet:"name=total_amount, type=DOUBLE"`
	PaymentType          int64    `parquet:"name=payment_type, type=INT64"`
	TripType             float64  `parquet:"name=trip_type, type=DOUBLE"`
	CongestionSurcharge  *float64 `parquet:"name=congestion_surcharge, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// legacyYellowRow predates the congestion surcharge column. Its timestamps are UTC instants.
type legacyYellowRow struct {
	VendorID             int64   `parquet:"name=VendorID, type=INT64"`
	Pickup               int64   `parquet:"name=tpep_pickup_datetime, type=INT64, convertedtype=TIMESTAMP_MILLIS, isadjustedtoutc=true"`
	Dropoff              int64   `parquet:"name=tpep_dropoff_datetime, type=INT64, convertedtype=TIMESTAMP_MILLIS, isadjustedtoutc=true"`
	PassengerCount       int64   `parquet:"name=passenger_count, type=INT64"`
	TripDistance         float64 `parquet:"name=trip_distance, type=DOUBLE"`
	RatecodeID           int64   `parquet:"name=RatecodeID, type=INT64"`
	PULocationID         int64   `parquet:"name=PULocationID, type=INT64"`
	DOLocationID         int64   `parquet:"name=DOLocationID, type=INT64"`
	PaymentType          int64   `parquet:"name=payment_type, type=INT64"`
	FareAmount           float64 `parquet:"name=fare_amount, type=DOUBLE"`
	Extra                float64 `parquet:"name=extra, type=DOUBLE"`
	MtaTax               float64 `parquet:"name=mta_tax, type=DOUBLE"`
	TipAmount            float64 `parquet:"name=tip_amount, type=DOUBLE"`
	TollsAmount          float64 `parquet:"name=tolls_amount, type=DOUBLE"`
	ImprovementSurcharge float64 `parquet:"name=improvement_surcharge, type=DOUBLE"`
	TotalAmount          float64 `parquet:"name=total_amount, type=DOUBLE"`
}

// mismatchedRow stores trip_distance as text and has no dropoff column.
type mismatchedRow struct {
	VendorID     int64  `parquet:"name=VendorID, type=INT64"`
	Pickup       int64  `parquet:"name=tpep_pickup_datetime, type=INT64, convertedtype=TIMESTAMP_MICROS"`
	TripDistance string `parquet:"name=trip_distance, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// write stores rows built from prototype into path.
func write(t testing.TB, path string, prototype interface{}, rows []interface{}) {
	t.Helper()
	fw, err := local.NewLocalFileWriter(path)
	require.NoError(t, err)
	pw, err := writer.NewParquetWriter(fw, prototype, 1)
	require.NoError(t, err)
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, row := range rows {
		require.NoError(t, pw.Write(row))
	}
	require.NoError(t, pw.WriteStop())
	require.NoError(t, fw.Close())
}

// WritePartition writes trips as the svc partition of year and month under dataDir and
// returns its path. Only the built-in yellow and green layouts are supported.
func WritePartition(t testing.TB, dataDir string, svc service.Type, year, month int, trips []Trip) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	path := svc.PartitionPath(dataDir, year, month)

	rows := make([]interface{}, 0, len(trips))
	switch svc.PickupColumn {
	case service.Yellow().PickupColumn:
		for i, tr := range trips {
			rows = append(rows, yellowRow{
				VendorID: int64(1 + i%2), Pickup: tr.Pickup.UnixMicro(), Dropoff: tr.Dropoff.UnixMicro(),
				PassengerCount: tr.Passengers, TripDistance: tr.Miles, RatecodeID: 1, StoreAndFwdFlag: "N",
				PULocationID: 132, DOLocationID: 236, PaymentType: 1, FareAmount: tr.Fare, Extra: 0.5,
				MtaTax: 0.5, TipAmount: 2, TollsAmount: 0, ImprovementSurcharge: 0.3,
				TotalAmount: tr.Fare + 3.3, CongestionSurcharge: tr.Congestion,
			})
		}
		write(t, path, new(yellowRow), rows)
	case service.Green().PickupColumn:
		for i, tr := range trips {
			rows = append(rows, greenRow{
				VendorID: int64(1 + i%2), Pickup: tr.Pickup.UnixMicro(), Dropoff: tr.Dropoff.UnixMicro(),
				StoreAndFwdFlag: "N", RatecodeID: 1, PULocationID: 7, DOLocationID: 129,
				PassengerCount: tr.Passengers, TripDistance: tr.Miles, FareAmount: tr.Fare, Extra: 0.5,
				MtaTax: 0.5, TipAmount: 0, TollsAmount: 0, ImprovementSurcharge: 0.3,
				TotalAmount: tr.Fare + 1.3, PaymentType: 2, TripType: 1, CongestionSurcharge: tr.Congestion,
			})
		}
		write(t, path, new(greenRow), rows)
	default:
		t.Fatalf("no fixture layout for service '%s'", svc.Name)
	}
	return path
}

// WriteLegacyPartition writes yellow trips without the congestion_surcharge column,
// with millisecond UTC timestamps and integer counts.
func WriteLegacyPartition(t testing.TB, dataDir string, year, month int, trips []Trip) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	path := service.Yellow().PartitionPath(dataDir, year, month)
	rows := make([]interface{}, 0, len(trips))
	for _, tr := range trips {
		rows = append(rows, legacyYellowRow{
			VendorID: 2, Pickup: tr.Pickup.UnixMilli(), Dropoff: tr.Dropoff.UnixMilli(),
			PassengerCount: int64(tr.Passengers), TripDistance: tr.Miles, RatecodeID: 1,
			PULocationID: 48, DOLocationID: 68, PaymentType: 1, FareAmount: tr.Fare,
			TotalAmount: tr.Fare,
		})
	}
	write(t, path, new(legacyYellowRow), rows)
	return path
}

// WriteMismatchedPartition writes a yellow partition that fails schema validation.
func WriteMismatchedPartition(t testing.TB, dataDir string, year, month int) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dataDir, 0o755))
	path := service.Yellow().PartitionPath(dataDir, year, month)
	pickup := time.Date(year, time.Month(month), 2, 9, 0, 0, 0, time.UTC)
	write(t, path, new(mismatchedRow), []interface{}{
		mismatchedRow{VendorID: 1, Pickup: pickup.UnixMicro(), TripDistance: "3.2"},
	})
	return path
}

// WriteEmissionFactors writes a factor CSV with yellow_taxi at 450 and green_taxi at 300
// grams per mile and returns its path.
func WriteEmissionFactors(t testing.TB, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "vehicle_emissions.csv")
	require.NoError(t, os.WriteFile(path, []byte("vehicle_type,co2_grams_per_mile\nyellow_taxi,450\ngreen_taxi,300\n"), 0o644))
	return path
}

package trip_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/tripco2/internal/domain/service"
	"github.com/tigerroll/tripco2/internal/domain/trip"
)

func TestColumns_DifferOnlyInTimestampSources(t *testing.T) {
	yellow := trip.Columns(service.Yellow())
	green := trip.Columns(service.Green())
	require.Len(t, green, len(yellow))

	assert.Equal(t, trip.Targets(yellow), trip.Targets(green))
	for i := range yellow {
		if yellow[i].Kind == trip.Timestamp {
			assert.NotEqual(t, yellow[i].Source, green[i].Source)
			continue
		}
		assert.Equal(t, yellow[i], green[i])
	}
}

func TestColumns_OnlyCongestionSurchargeOptional(t *testing.T) {
	var optional []string
	for _, c := range trip.Columns(service.Yellow()) {
		if c.Optional {
			optional = append(optional, c.Target)
		}
	}
	assert.Equal(t, []string{"congestion_surcharge"}, optional)
}

// Every declared column must be assignable on RawTrip.
func TestRawTrip_SettersCoverSchema(t *testing.T) {
	var r trip.RawTrip
	i, f, s := int64(1), 2.5, "2019-01-01 00:00:00"

	for _, c := range trip.Columns(service.Green()) {
		var err error
		switch c.Kind {
		case trip.Int64:
			err = r.SetInt64(c.Target, &i)
		case trip.Float64:
			err = r.SetFloat64(c.Target, &f)
		case trip.Timestamp:
			err = r.SetTimestamp(c.Target, &s)
		}
		assert.NoError(t, err, c.Target)
	}
	assert.Equal(t, &f, r.CongestionSurcharge)
	assert.Equal(t, &s, r.DropoffDatetime)
	assert.Error(t, r.SetInt64("trip_distance", &i))
}

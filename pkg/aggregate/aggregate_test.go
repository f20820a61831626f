package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctaridership/pkg/types"
)

func TestCountPoints(t *testing.T) {
	trips := []types.TaxiTrip{
		{PickupLat: 41.9, PickupLon: -87.6, DropoffLat: 41.8, DropoffLon: -87.7},
		{PickupLat: 41.9, PickupLon: -87.6, DropoffLat: 41.97, DropoffLon: -87.9},
		{PickupLat: 41.8, PickupLon: -87.7, DropoffLat: 41.8, DropoffLon: -87.7},
	}

	tests := []struct {
		name     string
		end      TripEnd
		category types.Category
		want     []types.StopRecord
	}{
		{
			name:     "pickup",
			end:      Pickup,
			category: types.CategoryTaxiPickup,
			want: []types.StopRecord{
				{Lat: 41.8, Lon: -87.7, RawCount: 1},
				{Lat: 41.9, Lon: -87.6, RawCount: 2},
			},
		},
		{
			name:     "dropoff",
			end:      Dropoff,
			category: types.CategoryTaxiDropoff,
			want: []types.StopRecord{
				{Lat: 41.8, Lon: -87.7, RawCount: 2},
				{Lat: 41.97, Lon: -87.9, RawCount: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CountPoints(trips, tt.end)
			require.Len(t, got, len(tt.want))

			var total float64
			for i, r := range got {
				assert.Equal(t, tt.want[i].Lat, r.Lat)
				assert.Equal(t, tt.want[i].Lon, r.Lon)
				assert.Equal(t, tt.want[i].RawCount, r.RawCount)
				assert.Equal(t, tt.category, r.Category)
				assert.True(t, r.HasCoords)
				total += r.RawCount
			}
			assert.Equal(t, float64(len(trips)), total, "counts must sum to the trip count")
		})
	}
}

func TestCountPoints_Empty(t *testing.T) {
	assert.Empty(t, CountPoints(nil, Pickup))
}

func TestMergeStationRides(t *testing.T) {
	stations := []types.Station{
		{ID: 40380, Name: "Clark/Lake", Lat: 41.885, Lon: -87.630, HasCoords: true},
		{ID: 41400, Name: "Roosevelt", Lat: 41.867, Lon: -87.627, HasCoords: true},
		{ID: 40000, Name: "Quiet", Lat: 41.7, Lon: -87.6, HasCoords: true},
	}
	rides := []types.RideRow{
		{StationID: 40380, Rides: 1000},
		{StationID: 41400, Rides: 300},
		{StationID: 40380, Rides: 500},
		{StationID: 99999, Rides: 42},
	}

	got := MergeStationRides(stations, rides)
	require.Len(t, got, len(stations), "each station appears exactly once")

	assert.Equal(t, "40000", got[0].ID)
	assert.Equal(t, 0.0, got[0].RawCount)
	assert.Equal(t, "41400", got[1].ID)
	assert.Equal(t, 300.0, got[1].RawCount)
	assert.Equal(t, "40380", got[2].ID)
	assert.Equal(t, "Clark/Lake", got[2].Name)
	assert.Equal(t, 1500.0, got[2].RawCount)

	for _, r := range got {
		assert.Equal(t, types.CategoryRail, r.Category)
	}
}

func TestMergeStationRides_NoRides(t *testing.T) {
	got := MergeStationRides([]types.Station{{ID: 1, Name: "A"}}, nil)
	require.Len(t, got, 1)
	assert.Zero(t, got[0].RawCount)
	assert.False(t, got[0].HasCoords)
}

package loader

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctaridership/pkg/config"
	"ctaridership/pkg/socrata"
	"ctaridership/pkg/types"
)

type fakeFetcher struct {
	table  *socrata.Table
	rows   []map[string]interface{}
	err    error
	params url.Values
	calls  int
}

func (f *fakeFetcher) FetchCSV(_ context.Context, _ string, params url.Values) (*socrata.Table, error) {
	f.calls++
	f.params = params
	return f.table, f.err
}

func (f *fakeFetcher) FetchJSON(_ context.Context, _ string, params url.Values) ([]map[string]interface{}, error) {
	f.calls++
	f.params = params
	return f.rows, f.err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func busConfig(localCSV string) config.BusConfig {
	return config.BusConfig{
		Date:       "2012-10-01",
		DayType:    "Weekday",
		Threshold:  100,
		LocalCSV:   localCSV,
		API:        "https://data.example.org/resource/bus.csv",
		WindowDays: 1,
	}
}

func TestLoadBus_ThresholdFromLocalFile(t *testing.T) {
	path := writeFile(t, "bus.csv", `stop_id,on_street,cross_street,routes,boardings,alightings,location
1,STATE,LAKE,"2,6",50,10,"(41.885, -87.627)"
2,CLARK,MADISON,22,150,20,"(41.882, -87.631)"
3,MICHIGAN,WACKER,"3,4",300,40,"(41.887, -87.624)"
`)
	fetcher := &fakeFetcher{}
	l := New(fetcher, false)

	records, err := l.LoadBus(context.Background(), busConfig(path))
	require.NoError(t, err)
	assert.Zero(t, fetcher.calls, "local file should be preferred over the API")

	require.Len(t, records, 2)
	assert.Equal(t, 150.0, records[0].RawCount)
	assert.Equal(t, 300.0, records[1].RawCount)

	first := records[0]
	assert.Equal(t, "2", first.ID)
	assert.Equal(t, "CLARK & MADISON", first.Name)
	assert.Equal(t, "22", first.Routes)
	assert.Equal(t, 20.0, first.Alightings)
	assert.Equal(t, types.CategoryBus, first.Category)
	assert.True(t, first.HasCoords)
	assert.InDelta(t, 41.882, first.Lat, 1e-9)
	assert.InDelta(t, -87.631, first.Lon, 1e-9)
}

func TestLoadBus_FallsBackToAPI(t *testing.T) {
	fetcher := &fakeFetcher{table: &socrata.Table{
		Header: []string{"boardings", "location"},
		Rows: [][]string{
			{"120", "(41.9, -87.6)"},
			{"99.9", "(41.8, -87.7)"},
		},
	}}
	l := New(fetcher, false)

	records, err := l.LoadBus(context.Background(), busConfig(filepath.Join(t.TempDir(), "absent.csv")))
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, "2012-10-01", fetcher.params.Get("month_beginning"))
	assert.Equal(t, "Weekday", fetcher.params.Get("daytype"))

	require.Len(t, records, 1)
	assert.Equal(t, 120.0, records[0].RawCount)
}

func TestLoadBus_KeepsUnparseableLocation(t *testing.T) {
	path := writeFile(t, "bus.csv", `boardings,location
200,"(41.9, -87.6)"
300,
`)

	records, err := New(&fakeFetcher{}, false).LoadBus(context.Background(), busConfig(path))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.True(t, records[0].HasCoords)
	assert.False(t, records[1].HasCoords)

	dropped, err := New(&fakeFetcher{}, true).LoadBus(context.Background(), busConfig(path))
	require.NoError(t, err)
	assert.Len(t, dropped, 1)
}

func TestLoadBus_UnparseableBoardingsFiltered(t *testing.T) {
	path := writeFile(t, "bus.csv", `boardings,location
n/a,"(41.9, -87.6)"
101,"(41.8, -87.6)"
`)

	records, err := New(&fakeFetcher{}, false).LoadBus(context.Background(), busConfig(path))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 101.0, records[0].RawCount)
}

func TestLoadBus_MissingColumn(t *testing.T) {
	path := writeFile(t, "bus.csv", "stop_id,location\n1,\"(41.9, -87.6)\"\n")

	_, err := New(&fakeFetcher{}, false).LoadBus(context.Background(), busConfig(path))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingColumn))
	assert.Contains(t, err.Error(), "boardings")
}

func TestLoadBus_HeaderOnlyFile(t *testing.T) {
	wrong := writeFile(t, "bus.csv", "stop_id,foo,bar\n")
	_, err := New(&fakeFetcher{}, false).LoadBus(context.Background(), busConfig(wrong))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingColumn)
	assert.Contains(t, err.Error(), "boardings")

	ok := writeFile(t, "bus.csv", "stop_id,boardings,location\n")
	records, err := New(&fakeFetcher{}, false).LoadBus(context.Background(), busConfig(ok))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLoadBus_FetchError(t *testing.T) {
	fetcher := &fakeFetcher{err: socrata.ErrStatus}

	_, err := New(fetcher, false).LoadBus(context.Background(), busConfig(""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, socrata.ErrStatus))
}

func TestLoadTaxiTrips_DropsIncompleteRows(t *testing.T) {
	fetcher := &fakeFetcher{rows: []map[string]interface{}{
		{
			"pickup_centroid_latitude": "41.88", "pickup_centroid_longitude": "-87.63",
			"dropoff_centroid_latitude": "41.97", "dropoff_centroid_longitude": "-87.90",
		},
		{
			"pickup_centroid_latitude": "41.88", "pickup_centroid_longitude": "-87.63",
			"dropoff_centroid_latitude": "", "dropoff_centroid_longitude": "-87.90",
		},
		{
			// dropoff keys absent entirely
			"pickup_centroid_latitude": "41.79", "pickup_centroid_longitude": "-87.75",
		},
		{
			"pickup_centroid_latitude": "not-a-number", "pickup_centroid_longitude": "-87.63",
			"dropoff_centroid_latitude": "41.97", "dropoff_centroid_longitude": "-87.90",
		},
	}}

	trips, err := New(fetcher, false).LoadTaxiTrips(context.Background(), config.TaxiConfig{API: "https://x/taxi.json"})
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, types.TaxiTrip{PickupLat: 41.88, PickupLon: -87.63, DropoffLat: 41.97, DropoffLon: -87.90}, trips[0])
}

func TestLoadTaxiTrips_EmptyResponse(t *testing.T) {
	trips, err := New(&fakeFetcher{}, false).LoadTaxiTrips(context.Background(), config.TaxiConfig{API: "https://x/taxi.json"})
	require.NoError(t, err)
	assert.Empty(t, trips)
}

func TestLoadTaxiTrips_MissingColumn(t *testing.T) {
	fetcher := &fakeFetcher{rows: []map[string]interface{}{
		{"trip_id": "a", "fare": 12.5},
	}}

	_, err := New(fetcher, false).LoadTaxiTrips(context.Background(), config.TaxiConfig{API: "https://x/taxi.json"})
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestLoadStations(t *testing.T) {
	path := writeFile(t, "stations.csv", `STOP_ID,MAP_ID,STATION_NAME,Location
30001,40380,Clark/Lake,"(41.885737, -87.630886)"
30002,40380,Clark/Lake,"(41.885737, -87.630886)"
30003,41400,Roosevelt,"(41.867368, -87.627402)"
30004,abc,Mystery,
`)

	stations, err := New(&fakeFetcher{}, false).LoadStations(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, stations, 3, "duplicate station rows collapse")

	assert.Equal(t, 40380, stations[0].ID)
	assert.Equal(t, "Clark/Lake", stations[0].Name)
	assert.True(t, stations[0].HasCoords)
	assert.Equal(t, 41400, stations[1].ID)
	assert.Equal(t, 0, stations[2].ID)
	assert.False(t, stations[2].HasCoords)
}

func TestLoadStations_HeaderOnlyMissingColumns(t *testing.T) {
	path := writeFile(t, "stations.csv", "A,B\n")

	_, err := New(&fakeFetcher{}, false).LoadStations(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingColumn)
	assert.Contains(t, err.Error(), "MAP_ID")
}

func TestLoadStations_MissingFile(t *testing.T) {
	stations, err := New(&fakeFetcher{}, false).LoadStations(context.Background(), filepath.Join(t.TempDir(), "none.csv"))
	require.NoError(t, err)
	assert.Nil(t, stations)
}

func TestLoadRides_CoercesToZero(t *testing.T) {
	fetcher := &fakeFetcher{rows: []map[string]interface{}{
		{"station_id": "40380", "rides": "1000"},
		{"station_id": "40380", "rides": "oops"},
		{"station_id": "bad", "rides": "5"},
	}}

	rides, err := New(fetcher, false).LoadRides(context.Background(), config.RailConfig{API: "https://x/rides.json"})
	require.NoError(t, err)
	assert.Equal(t, []types.RideRow{
		{StationID: 40380, Rides: 1000},
		{StationID: 40380, Rides: 0},
		{StationID: 0, Rides: 5},
	}, rides)
}

func TestStopName(t *testing.T) {
	assert.Equal(t, "STATE & LAKE", stopName(" STATE ", "LAKE"))
	assert.Equal(t, "STATE", stopName("STATE", ""))
	assert.Equal(t, "LAKE", stopName("", "LAKE"))
}

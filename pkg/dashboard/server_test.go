package dashboard

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ctaridership/pkg/config"
	"ctaridership/pkg/render"
	"ctaridership/pkg/types"
)

func point(cat types.Category, perDay float64, lat, lon float64) types.NormalizedRecord {
	return types.NormalizedRecord{
		StopRecord:  types.StopRecord{Category: cat, Lat: lat, Lon: lon, RawCount: perDay, HasCoords: true},
		CountPerDay: perDay,
		Radius:      4,
		Color:       "#ff0000",
	}
}

func testResult() *types.RenderResult {
	return &types.RenderResult{
		RunID:  "run-42",
		Title:  "CTA ridership",
		Center: types.LatLon{Lat: 41.88, Lon: -87.63},
		Zoom:   11,
		Layers: []types.Layer{
			{Category: types.CategoryBus, Title: "Bus", Visible: true, Legend: types.Legend{Caption: "Boardings/day"},
				Records: []types.NormalizedRecord{point(types.CategoryBus, 150, 41.88, -87.63), point(types.CategoryBus, 300, 41.89, -87.62)}},
			{Category: types.CategoryTaxiPickup, Title: "Taxi pickups",
				Records: []types.NormalizedRecord{point(types.CategoryTaxiPickup, 2, 41.9, -87.6)}},
			{Category: types.CategoryTaxiDropoff, Title: "Taxi dropoffs",
				Records: []types.NormalizedRecord{point(types.CategoryTaxiDropoff, 4, 41.8, -87.7)}},
			{Category: types.CategoryRail, Title: "Rail", Records: nil},
		},
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	s, err := NewServer(testResult(), render.NewRenderer(config.MapConfig{TileURL: "https://tiles.example/{z}/{x}/{y}.png"}))
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestIndex(t *testing.T) {
	ts := newTestServer(t)

	resp, body := get(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, "Taxi trips per day")
	assert.Contains(t, body, "<th>75%</th>")
}

func TestHealthz(t *testing.T) {
	resp, body := get(t, newTestServer(t).URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)
}

func TestLayers(t *testing.T) {
	resp, body := get(t, newTestServer(t).URL+"/api/layers")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	fc, err := geojson.UnmarshalFeatureCollection([]byte(body))
	require.NoError(t, err)
	assert.Len(t, fc.Features, 4)
}

func TestLayerByCategory(t *testing.T) {
	ts := newTestServer(t)

	resp, body := get(t, ts.URL+"/api/layers/bus")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	fc, err := geojson.UnmarshalFeatureCollection([]byte(body))
	require.NoError(t, err)
	assert.Len(t, fc.Features, 2)

	resp, _ = get(t, ts.URL+"/api/layers/ferry")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStats(t *testing.T) {
	resp, body := get(t, newTestServer(t).URL+"/api/stats")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		RunID  string `json:"run_id"`
		Layers map[string]struct {
			Count int      `json:"count"`
			Mean  *float64 `json:"mean"`
			Max   *float64 `json:"max"`
		} `json:"layers"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &payload))

	assert.Equal(t, "run-42", payload.RunID)
	bus := payload.Layers["bus"]
	assert.Equal(t, 2, bus.Count)
	require.NotNil(t, bus.Mean)
	assert.Equal(t, 225.0, *bus.Mean)
	assert.Equal(t, 300.0, *bus.Max)

	rail := payload.Layers["rail"]
	assert.Zero(t, rail.Count)
	assert.Nil(t, rail.Mean)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/stats", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestPanels(t *testing.T) {
	panels := Panels(testResult(), 10)
	titles := make([]string, len(panels))
	for i, p := range panels {
		titles[i] = p.Title
	}
	assert.Equal(t, []string{"Bus", "Taxi pickups and dropoffs", "Rail", "Summary"}, titles)
}

func TestPanels_CategoryOrder(t *testing.T) {
	result := testResult()
	l := result.Layers
	result.Layers = []types.Layer{l[3], l[2], l[0], l[1]}

	panels := Panels(result, 10)
	titles := make([]string, len(panels))
	for i, p := range panels {
		titles[i] = p.Title
	}
	assert.Equal(t, []string{"Bus", "Taxi pickups and dropoffs", "Rail", "Summary"}, titles)

	table := string(panels[len(panels)-1].Body)
	bus := strings.Index(table, "<td>Bus</td>")
	pickups := strings.Index(table, "<td>Taxi pickups</td>")
	dropoffs := strings.Index(table, "<td>Taxi dropoffs</td>")
	rail := strings.Index(table, "<td>Rail</td>")
	require.True(t, bus >= 0 && pickups >= 0 && dropoffs >= 0 && rail >= 0, table)
	assert.True(t, bus < pickups && pickups < dropoffs && dropoffs < rail, "summary rows follow category order")
}

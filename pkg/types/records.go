package types

// Category identifies which dataset a record was built from.
type Category string

const (
	CategoryBus         Category = "bus"
	CategoryRail        Category = "rail"
	CategoryTaxiPickup  Category = "taxi_pickup"
	CategoryTaxiDropoff Category = "taxi_dropoff"
)

// Categories lists every category in render order.
var Categories = []Category{CategoryBus, CategoryTaxiPickup, CategoryTaxiDropoff, CategoryRail}

// StopRecord is one point of ridership for a single dataset.
// Loaders build it once; later stages copy, never mutate.
type StopRecord struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	RawCount float64  `json:"raw_count"`
	Category Category `json:"category"`

	// HasCoords is false when the location field failed to parse
	HasCoords bool `json:"has_coords"`

	// Bus-only fields
	Routes      string  `json:"routes,omitempty"`
	Alightings  float64 `json:"alightings,omitempty"`
	OnStreet    string  `json:"on_street,omitempty"`
	CrossStreet string  `json:"cross_street,omitempty"`
}

// NormalizedRecord is a StopRecord placed on the shared size scale and its layer's color scale.
type NormalizedRecord struct {
	StopRecord
	CountPerDay float64 `json:"count_per_day"`
	Radius      float64 `json:"radius"`
	Color       string  `json:"color"`
}

// LatLon is a single vertex.
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// RouteGeometry is one polyline from a route archive.
type RouteGeometry struct {
	Name     string   `json:"name,omitempty"`
	Vertices []LatLon `json:"vertices"`
}

// RouteSet groups the polylines of one archive under a toggleable overlay.
type RouteSet struct {
	Title   string          `json:"title"`
	Color   string          `json:"color"`
	Weight  int             `json:"weight"`
	Visible bool            `json:"visible"`
	Lines   []RouteGeometry `json:"lines"`
}

// Legend describes a layer's colormap domain.
type Legend struct {
	Caption string   `json:"caption"`
	Min     float64  `json:"min"`
	Max     float64  `json:"max"`
	Steps   []string `json:"steps"`
}

// Layer is one toggleable overlay of normalized records.
type Layer struct {
	Category Category           `json:"category"`
	Title    string             `json:"title"`
	Label    string             `json:"label"`
	Visible  bool               `json:"visible"`
	Records  []NormalizedRecord `json:"records"`
	Legend   Legend             `json:"legend"`

	// Missing counts records retained without coordinates; they are never drawn.
	Missing int `json:"missing"`
}

// Values returns the per-day counts of every record in the layer.
func (l *Layer) Values() []float64 {
	values := make([]float64, len(l.Records))
	for i, r := range l.Records {
		values[i] = r.CountPerDay
	}
	return values
}

// Drawable returns the records that carry coordinates.
func (l *Layer) Drawable() []NormalizedRecord {
	out := make([]NormalizedRecord, 0, len(l.Records))
	for _, r := range l.Records {
		if r.HasCoords {
			out = append(out, r)
		}
	}
	return out
}

// RenderResult is everything one pipeline run produced.
type RenderResult struct {
	RunID     string     `json:"run_id"`
	Generated string     `json:"generated"`
	Title     string     `json:"title"`
	Center    LatLon     `json:"center"`
	Zoom      int        `json:"zoom"`
	Layers    []Layer    `json:"layers"`
	Routes    []RouteSet `json:"routes"`
}

// TaxiTrip holds the centroid coordinates of one trip. Loaders only emit trips
// whose four centroid fields all parsed.
type TaxiTrip struct {
	PickupLat  float64
	PickupLon  float64
	DropoffLat float64
	DropoffLon float64
}

// Station is one row of the "L" station list.
type Station struct {
	ID        int
	Name      string
	Lat       float64
	Lon       float64
	HasCoords bool
}

// RideRow is one row of the station ridership feed.
type RideRow struct {
	StationID int
	Rides     float64
}

package loader

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"ctaridership/pkg/config"
	"ctaridership/pkg/geo"
	"ctaridership/pkg/metrics"
	ctaotel "ctaridership/pkg/otel"
	"ctaridership/pkg/socrata"
	"ctaridership/pkg/types"
)

// Column names read from each dataset.
const (
	colBoardings   = "boardings"
	colAlightings  = "alightings"
	colLocation    = "location"
	colRoutes      = "routes"
	colOnStreet    = "on_street"
	colCrossStreet = "cross_street"
	colStopID      = "stop_id"

	colPickupLat  = "pickup_centroid_latitude"
	colPickupLon  = "pickup_centroid_longitude"
	colDropoffLat = "dropoff_centroid_latitude"
	colDropoffLon = "dropoff_centroid_longitude"

	colMapID       = "MAP_ID"
	colStationName = "STATION_NAME"
	colStationLoc  = "Location"
	colStationID   = "station_id"
	colRides       = "rides"

	// boardings parsed to float for the threshold filter
	colBoardingsNum = "boardings_num"
)

// Fetcher is the subset of the Socrata client the loader needs.
type Fetcher interface {
	FetchCSV(ctx context.Context, endpoint string, params url.Values) (*socrata.Table, error)
	FetchJSON(ctx context.Context, endpoint string, params url.Values) ([]map[string]interface{}, error)
}

// Loader reads the three datasets from local files or the open-data API.
type Loader struct {
	fetcher     Fetcher
	dropMissing bool
	tracer      trace.Tracer
}

// New creates a Loader. With dropMissing set, bus and rail rows whose
// location does not parse are dropped instead of kept without coordinates.
func New(fetcher Fetcher, dropMissing bool) *Loader {
	return &Loader{
		fetcher:     fetcher,
		dropMissing: dropMissing,
		tracer:      otel.Tracer("loader"),
	}
}

// LoadBus returns the bus stops whose boardings reach cfg.Threshold. The
// local CSV is preferred; the API is queried for cfg.Date and cfg.DayType
// only when it is absent.
func (l *Loader) LoadBus(ctx context.Context, cfg config.BusConfig) ([]types.StopRecord, error) {
	ctx, span := l.tracer.Start(ctx, "loader.load_bus",
		trace.WithAttributes(
			attribute.String("bus.date", cfg.Date),
			attribute.String("bus.daytype", cfg.DayType),
			attribute.Float64("bus.threshold", cfg.Threshold),
		),
	)
	defer span.End()

	fr, source, err := l.busFrame(ctx, cfg)
	if err != nil {
		ctaotel.RecordError(span, err, ctaotel.ErrorTypeNetwork, true)
		return nil, err
	}
	l.countLoaded("bus", source, fr.Nrow())

	if err := fr.require("bus", colBoardings, colLocation); err != nil {
		ctaotel.RecordError(span, err, ctaotel.ErrorTypeValidation, false)
		return nil, err
	}

	fr, err = filterThreshold(fr, cfg.Threshold)
	if err != nil {
		ctaotel.RecordError(span, err, ctaotel.ErrorTypeParse, false)
		return nil, err
	}

	boardings := fr.column(colBoardingsNum)
	locations := fr.column(colLocation)
	alightings := fr.optionalColumn(colAlightings)
	routes := fr.optionalColumn(colRoutes)
	onStreet := fr.optionalColumn(colOnStreet)
	crossStreet := fr.optionalColumn(colCrossStreet)
	stopIDs := fr.optionalColumn(colStopID)

	records := make([]types.StopRecord, 0, fr.Nrow())
	for i := 0; i < fr.Nrow(); i++ {
		count, _ := geo.ParseNumber(boardings[i])
		lat, lon, ok := geo.ParseLocation(locations[i])
		alight, _ := geo.ParseNumber(alightings[i])

		records = append(records, types.StopRecord{
			ID:          strings.TrimSpace(stopIDs[i]),
			Name:        stopName(onStreet[i], crossStreet[i]),
			Lat:         lat,
			Lon:         lon,
			RawCount:    count,
			Category:    types.CategoryBus,
			HasCoords:   ok,
			Routes:      strings.TrimSpace(routes[i]),
			Alightings:  alight,
			OnStreet:    strings.TrimSpace(onStreet[i]),
			CrossStreet: strings.TrimSpace(crossStreet[i]),
		})
	}

	records = l.handleMissing("bus", records)
	span.SetAttributes(attribute.Int("bus.records", len(records)))
	ctaotel.SetSpanOk(span)

	slog.Info("Loaded bus stops", "source", source, "records", len(records), "threshold", cfg.Threshold)
	return records, nil
}

func (l *Loader) busFrame(ctx context.Context, cfg config.BusConfig) (frame, string, error) {
	fr, ok, err := readCSVFile(cfg.LocalCSV)
	if err != nil {
		return frame{}, "", err
	}
	if ok {
		return fr, "file", nil
	}

	slog.Debug("Local bus CSV not found, querying API", "path", cfg.LocalCSV, "endpoint", cfg.API)
	params := url.Values{}
	params.Set("month_beginning", cfg.Date)
	params.Set("daytype", cfg.DayType)

	table, err := l.fetcher.FetchCSV(ctx, cfg.API, params)
	if err != nil {
		return frame{}, "", fmt.Errorf("failed to fetch bus data: %w", err)
	}
	fr, err = frameFromRecords(table.Records())
	if err != nil {
		return frame{}, "", fmt.Errorf("bus: %w", err)
	}
	return fr, "api", nil
}

// filterThreshold keeps rows whose boardings parse and are >= threshold.
func filterThreshold(fr frame, threshold float64) (frame, error) {
	if fr.empty {
		return fr, nil
	}

	raw := fr.column(colBoardings)
	values := make([]float64, len(raw))
	for i, s := range raw {
		v, ok := geo.ParseNumber(s)
		if !ok {
			v = math.NaN()
		}
		values[i] = v
	}

	df := fr.df.Mutate(series.New(values, series.Float, colBoardingsNum))
	if df.Err != nil {
		return frame{}, fmt.Errorf("bus: %w", df.Err)
	}
	df = df.Filter(dataframe.F{
		Colname:    colBoardingsNum,
		Comparator: series.GreaterEq,
		Comparando: threshold,
	})
	if df.Err != nil {
		return frame{}, fmt.Errorf("bus: threshold filter: %w", df.Err)
	}

	dropped := len(raw) - df.Nrow()
	if dropped > 0 {
		metrics.LoaderRowsDropped.Add(context.Background(), int64(dropped),
			metric.WithAttributes(
				attribute.String("dataset", "bus"),
				attribute.String("reason", "below_threshold"),
			),
		)
	}
	if df.Nrow() == 0 {
		return emptyFrame(df.Names()), nil
	}
	return frame{df: df}, nil
}

// LoadTaxiTrips fetches trips and keeps those whose four centroid fields all
// parse. The local/remote choice does not apply; taxi data is always remote.
func (l *Loader) LoadTaxiTrips(ctx context.Context, cfg config.TaxiConfig) ([]types.TaxiTrip, error) {
	ctx, span := l.tracer.Start(ctx, "loader.load_taxi",
		trace.WithAttributes(attribute.String("api.endpoint", cfg.API)),
	)
	defer span.End()

	rows, err := l.fetcher.FetchJSON(ctx, cfg.API, nil)
	if err != nil {
		err = fmt.Errorf("failed to fetch taxi data: %w", err)
		ctaotel.RecordError(span, err, ctaotel.ErrorTypeNetwork, true)
		return nil, err
	}

	fr, err := frameFromMaps(rows)
	if err != nil {
		ctaotel.RecordError(span, err, ctaotel.ErrorTypeParse, false)
		return nil, fmt.Errorf("taxi: %w", err)
	}
	l.countLoaded("taxi", "api", fr.Nrow())

	if err := fr.require("taxi", colPickupLat, colPickupLon, colDropoffLat, colDropoffLon); err != nil {
		ctaotel.RecordError(span, err, ctaotel.ErrorTypeValidation, false)
		return nil, err
	}

	pLat, pLon := fr.column(colPickupLat), fr.column(colPickupLon)
	dLat, dLon := fr.column(colDropoffLat), fr.column(colDropoffLon)

	trips := make([]types.TaxiTrip, 0, fr.Nrow())
	for i := 0; i < fr.Nrow(); i++ {
		plat, plon, pok := geo.ParseLatLon(pLat[i], pLon[i])
		dlat, dlon, dok := geo.ParseLatLon(dLat[i], dLon[i])
		if !pok || !dok {
			continue
		}
		trips = append(trips, types.TaxiTrip{
			PickupLat:  plat,
			PickupLon:  plon,
			DropoffLat: dlat,
			DropoffLon: dlon,
		})
	}

	if dropped := fr.Nrow() - len(trips); dropped > 0 {
		metrics.LoaderRowsDropped.Add(ctx, int64(dropped),
			metric.WithAttributes(
				attribute.String("dataset", "taxi"),
				attribute.String("reason", "missing_coords"),
			),
		)
		slog.Debug("Dropped taxi trips without centroids", "dropped", dropped)
	}

	span.SetAttributes(attribute.Int("taxi.trips", len(trips)))
	ctaotel.SetSpanOk(span)

	slog.Info("Loaded taxi trips", "fetched", fr.Nrow(), "trips", len(trips))
	return trips, nil
}

// LoadStations reads the station list. A missing file yields no stations and
// no error; the rail layer is then empty.
func (l *Loader) LoadStations(ctx context.Context, path string) ([]types.Station, error) {
	_, span := l.tracer.Start(ctx, "loader.load_stations",
		trace.WithAttributes(attribute.String("file.path", path)),
	)
	defer span.End()

	fr, ok, err := readCSVFile(path)
	if err != nil {
		ctaotel.RecordError(span, err, ctaotel.ErrorTypeIO, false)
		return nil, err
	}
	if !ok {
		slog.Warn("Station list not found, rail layer will be empty", "path", path)
		return nil, nil
	}
	l.countLoaded("stations", "file", fr.Nrow())

	if err := fr.require("stations", colMapID, colStationName, colStationLoc); err != nil {
		ctaotel.RecordError(span, err, ctaotel.ErrorTypeValidation, false)
		return nil, err
	}

	ids := fr.column(colMapID)
	names := fr.column(colStationName)
	locs := fr.column(colStationLoc)

	seen := make(map[[3]string]bool, fr.Nrow())
	stations := make([]types.Station, 0, fr.Nrow())
	for i := 0; i < fr.Nrow(); i++ {
		key := [3]string{ids[i], names[i], locs[i]}
		if seen[key] {
			continue
		}
		seen[key] = true

		lat, lon, ok := geo.ParseLocation(locs[i])
		if !ok && l.dropMissing {
			continue
		}
		stations = append(stations, types.Station{
			ID:        coerceInt(ids[i]),
			Name:      strings.TrimSpace(names[i]),
			Lat:       lat,
			Lon:       lon,
			HasCoords: ok,
		})
	}

	span.SetAttributes(attribute.Int("stations.count", len(stations)))
	ctaotel.SetSpanOk(span)

	slog.Info("Loaded station list", "path", path, "rows", fr.Nrow(), "stations", len(stations))
	return stations, nil
}

// LoadRides fetches station ridership. Unparseable station ids and ride
// counts become 0.
func (l *Loader) LoadRides(ctx context.Context, cfg config.RailConfig) ([]types.RideRow, error) {
	ctx, span := l.tracer.Start(ctx, "loader.load_rides",
		trace.WithAttributes(attribute.String("api.endpoint", cfg.API)),
	)
	defer span.End()

	rows, err := l.fetcher.FetchJSON(ctx, cfg.API, nil)
	if err != nil {
		err = fmt.Errorf("failed to fetch rail ridership: %w", err)
		ctaotel.RecordError(span, err, ctaotel.ErrorTypeNetwork, true)
		return nil, err
	}

	fr, err := frameFromMaps(rows)
	if err != nil {
		ctaotel.RecordError(span, err, ctaotel.ErrorTypeParse, false)
		return nil, fmt.Errorf("rail: %w", err)
	}
	l.countLoaded("rail", "api", fr.Nrow())

	if err := fr.require("rail", colStationID, colRides); err != nil {
		ctaotel.RecordError(span, err, ctaotel.ErrorTypeValidation, false)
		return nil, err
	}

	ids := fr.column(colStationID)
	rides := fr.column(colRides)

	out := make([]types.RideRow, fr.Nrow())
	for i := range out {
		r, _ := geo.ParseNumber(rides[i])
		out[i] = types.RideRow{StationID: coerceInt(ids[i]), Rides: r}
	}

	ctaotel.SetSpanOk(span)
	slog.Info("Loaded rail ridership", "rows", len(out))
	return out, nil
}

// handleMissing counts rows without coordinates, dropping them when configured.
func (l *Loader) handleMissing(dataset string, records []types.StopRecord) []types.StopRecord {
	missing := 0
	for _, r := range records {
		if !r.HasCoords {
			missing++
		}
	}
	if missing == 0 {
		return records
	}

	attrs := metric.WithAttributes(attribute.String("dataset", dataset))
	if !l.dropMissing {
		metrics.LoaderMissingCoords.Add(context.Background(), int64(missing), attrs)
		return records
	}

	kept := records[:0]
	for _, r := range records {
		if r.HasCoords {
			kept = append(kept, r)
		}
	}
	metrics.LoaderRowsDropped.Add(context.Background(), int64(missing),
		metric.WithAttributes(
			attribute.String("dataset", dataset),
			attribute.String("reason", "missing_coords"),
		),
	)
	return kept
}

func (l *Loader) countLoaded(dataset, source string, rows int) {
	metrics.LoaderRowsLoaded.Add(context.Background(), int64(rows),
		metric.WithAttributes(
			attribute.String("dataset", dataset),
			attribute.String("source", source),
		),
	)
}

// coerceInt parses an integer id; anything unparseable is 0.
func coerceInt(s string) int {
	v, ok := geo.ParseNumber(s)
	if !ok {
		return 0
	}
	return int(v)
}

func stopName(onStreet, crossStreet string) string {
	on, cross := strings.TrimSpace(onStreet), strings.TrimSpace(crossStreet)
	switch {
	case on != "" && cross != "":
		return on + " & " + cross
	case on != "":
		return on
	default:
		return cross
	}
}

// Package aggregate turns per-trip and per-row data into per-point counts.
package aggregate

import (
	"log/slog"
	"sort"
	"strconv"

	"ctaridership/pkg/types"
)

// TripEnd selects which end of a taxi trip is counted.
type TripEnd int

const (
	Pickup TripEnd = iota
	Dropoff
)

func (e TripEnd) Category() types.Category {
	if e == Dropoff {
		return types.CategoryTaxiDropoff
	}
	return types.CategoryTaxiPickup
}

func (e TripEnd) String() string {
	if e == Dropoff {
		return "dropoff"
	}
	return "pickup"
}

type point struct {
	lat, lon float64
}

// CountPoints groups trips by the exact (lat, lon) of the chosen end and
// returns one record per distinct point, ordered by latitude then longitude.
// Counts sum to len(trips).
func CountPoints(trips []types.TaxiTrip, end TripEnd) []types.StopRecord {
	counts := make(map[point]int)
	for _, t := range trips {
		p := point{t.PickupLat, t.PickupLon}
		if end == Dropoff {
			p = point{t.DropoffLat, t.DropoffLon}
		}
		counts[p]++
	}

	points := make([]point, 0, len(counts))
	for p := range counts {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].lat != points[j].lat {
			return points[i].lat < points[j].lat
		}
		return points[i].lon < points[j].lon
	})

	category := end.Category()
	records := make([]types.StopRecord, len(points))
	for i, p := range points {
		records[i] = types.StopRecord{
			ID:        strconv.FormatFloat(p.lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.lon, 'f', -1, 64),
			Lat:       p.lat,
			Lon:       p.lon,
			RawCount:  float64(counts[p]),
			Category:  category,
			HasCoords: true,
		}
	}

	slog.Debug("Aggregated taxi trips", "end", end.String(), "trips", len(trips), "points", len(records))
	return records
}

// MergeStationRides sums rides per station id and attaches the total to
// every station, 0 when a station has no ridership rows. Ridership for ids
// not in the station list is discarded. Each station appears exactly once,
// ordered by ascending total so the busiest draw last.
func MergeStationRides(stations []types.Station, rides []types.RideRow) []types.StopRecord {
	totals := make(map[int]float64, len(stations))
	for _, r := range rides {
		totals[r.StationID] += r.Rides
	}

	records := make([]types.StopRecord, len(stations))
	for i, s := range stations {
		records[i] = types.StopRecord{
			ID:        strconv.Itoa(s.ID),
			Name:      s.Name,
			Lat:       s.Lat,
			Lon:       s.Lon,
			RawCount:  totals[s.ID],
			Category:  types.CategoryRail,
			HasCoords: s.HasCoords,
		}
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].RawCount < records[j].RawCount
	})

	slog.Debug("Merged station ridership", "stations", len(stations), "ride_rows", len(rides))
	return records
}

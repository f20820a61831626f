// Package geo turns the location fields of the ridership datasets into coordinates.
package geo

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/golang/geo/s2"

	"ctaridership/pkg/types"
)

// locationPattern matches "(lat, lon)" with optional surrounding text, as found in
// the bus "location" column and the station list "Location" column.
var locationPattern = regexp.MustCompile(`\(\s*([-+]?[\d.]+)\s*,\s*([-+]?[\d.]+)\s*\)`)

// ParseLocation extracts a coordinate pair from a "(lat, lon)" string.
// ok is false when the string does not match or the pair is out of range.
func ParseLocation(s string) (lat, lon float64, ok bool) {
	m := locationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	return ParseLatLon(m[1], m[2])
}

// ParseLatLon parses two separate numeric fields.
func ParseLatLon(latField, lonField string) (lat, lon float64, ok bool) {
	lat, okLat := ParseNumber(latField)
	lon, okLon := ParseNumber(lonField)
	if !okLat || !okLon {
		return 0, 0, false
	}
	if !Valid(lat, lon) {
		return 0, 0, false
	}
	return lat, lon, true
}

// ParseNumber coerces a free-text numeric field. Blank, NaN and Inf are missing.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Valid reports whether lat/lon fall inside the valid degree ranges.
func Valid(lat, lon float64) bool {
	return s2.LatLngFromDegrees(lat, lon).IsValid()
}

// Center returns the center of the bounding rectangle of every record with coordinates.
// ok is false when no record has coordinates.
func Center(records []types.StopRecord) (types.LatLon, bool) {
	rect := s2.EmptyRect()
	for _, r := range records {
		if !r.HasCoords {
			continue
		}
		rect = rect.AddPoint(s2.LatLngFromDegrees(r.Lat, r.Lon))
	}
	if rect.IsEmpty() {
		return types.LatLon{}, false
	}
	c := rect.Center()
	return types.LatLon{Lat: c.Lat.Degrees(), Lon: c.Lng.Degrees()}, true
}

// Package kmz reads route polylines from zipped KML archives.
package kmz

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/clbanning/mxj/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"ctaridership/pkg/geo"
	"ctaridership/pkg/metrics"
	ctaotel "ctaridership/pkg/otel"
	"ctaridership/pkg/types"
)

// ErrNoKML is returned when an archive holds no .kml entry.
var ErrNoKML = errors.New("kmz: archive contains no .kml file")

type Reader struct {
	tracer trace.Tracer
}

func NewReader() *Reader {
	return &Reader{tracer: otel.Tracer("kmz-reader")}
}

// ReadFile returns the polylines of the archive at path. A missing file
// yields no lines and no error.
func (r *Reader) ReadFile(ctx context.Context, archivePath string) ([]types.RouteGeometry, error) {
	ctx, span := r.tracer.Start(ctx, "kmz.read_file",
		trace.WithAttributes(attribute.String("file.path", archivePath)),
	)
	defer span.End()

	if archivePath == "" {
		return nil, nil
	}

	zr, err := zip.OpenReader(archivePath)
	if errors.Is(err, os.ErrNotExist) {
		slog.Warn("Route archive not found, skipping overlay", "path", archivePath)
		return nil, nil
	}
	if err != nil {
		ctaotel.RecordError(span, err, ctaotel.ErrorTypeIO, false)
		return nil, fmt.Errorf("failed to open %s: %w", archivePath, err)
	}
	defer zr.Close()

	data, name, err := firstKML(&zr.Reader)
	if err != nil {
		ctaotel.RecordError(span, err, ctaotel.ErrorTypeParse, false)
		return nil, fmt.Errorf("%s: %w", archivePath, err)
	}

	lines, err := r.ParseKML(ctx, data)
	if err != nil {
		ctaotel.RecordError(span, err, ctaotel.ErrorTypeParse, false)
		return nil, fmt.Errorf("%s: %s: %w", archivePath, name, err)
	}

	metrics.RouteLinesParsed.Add(ctx, int64(len(lines)),
		metric.WithAttributes(attribute.String("archive", path.Base(archivePath))),
	)
	span.SetAttributes(attribute.Int("kmz.lines", len(lines)))
	ctaotel.SetSpanOk(span)

	slog.Info("Loaded route lines", "path", archivePath, "kml", name, "lines", len(lines))
	return lines, nil
}

// firstKML returns the contents of the first .kml entry in archive order.
func firstKML(zr *zip.Reader) ([]byte, string, error) {
	for _, f := range zr.File {
		if !strings.EqualFold(path.Ext(f.Name), ".kml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, "", fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
		return data, f.Name, nil
	}
	return nil, "", ErrNoKML
}

// ParseKML extracts every LineString at any depth. Lines with fewer than two
// vertices are skipped. Lines inside a Placemark carry its name; lines
// outside any Placemark are unnamed.
func (r *Reader) ParseKML(ctx context.Context, data []byte) ([]types.RouteGeometry, error) {
	_, span := r.tracer.Start(ctx, "kmz.parse_kml",
		trace.WithAttributes(attribute.Int("kml_size_bytes", len(data))),
	)
	defer span.End()

	doc, err := mxj.NewMapXml(data)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to parse KML: %w", err)
	}

	lines := collectLines(nil, map[string]interface{}(doc), "")

	span.SetAttributes(attribute.Int("extracted_lines", len(lines)))
	return lines, nil
}

// collectLines walks node in document order. Map keys are visited sorted so
// output is stable across runs.
func collectLines(lines []types.RouteGeometry, node interface{}, name string) []types.RouteGeometry {
	switch n := node.(type) {
	case []interface{}:
		for _, item := range n {
			lines = collectLines(lines, item, name)
		}
	case map[string]interface{}:
		keys := make([]string, 0, len(n))
		for k := range n {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			switch k {
			case "Placemark":
				lines = collectPlacemarks(lines, n[k])
			case "LineString":
				lines = appendLineStrings(lines, n[k], name)
			default:
				lines = collectLines(lines, n[k], name)
			}
		}
	}
	return lines
}

func collectPlacemarks(lines []types.RouteGeometry, node interface{}) []types.RouteGeometry {
	// Placemark can be a single item or an array
	items, ok := node.([]interface{})
	if !ok {
		items = []interface{}{node}
	}
	for _, item := range items {
		pm, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := textOf(pm["name"])
		lines = collectLines(lines, pm, strings.TrimSpace(name))
	}
	return lines
}

func appendLineStrings(lines []types.RouteGeometry, node interface{}, name string) []types.RouteGeometry {
	items, ok := node.([]interface{})
	if !ok {
		items = []interface{}{node}
	}
	for _, item := range items {
		ls, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		coords, ok := textOf(ls["coordinates"])
		if !ok {
			continue
		}
		vertices := ParseCoordinates(coords)
		if len(vertices) < 2 {
			continue
		}
		lines = append(lines, types.RouteGeometry{Name: name, Vertices: vertices})
	}
	return lines
}

// textOf returns an element's character data whether or not it has attributes.
func textOf(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case map[string]interface{}:
		s, ok := t["#text"].(string)
		return s, ok
	default:
		return "", false
	}
}

// ParseCoordinates parses whitespace-separated "lon,lat[,alt]" tuples.
// Malformed tuples are skipped.
func ParseCoordinates(s string) []types.LatLon {
	var out []types.LatLon
	for _, tuple := range strings.Fields(s) {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			continue
		}
		lat, lon, ok := geo.ParseLatLon(parts[1], parts[0])
		if !ok {
			continue
		}
		out = append(out, types.LatLon{Lat: lat, Lon: lon})
	}
	return out
}

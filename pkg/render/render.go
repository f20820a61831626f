// Package render writes a pipeline result as an interactive HTML map and as GeoJSON.
package render

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb/geojson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"ctaridership/pkg/config"
	"ctaridership/pkg/metrics"
	ctaotel "ctaridership/pkg/otel"
	"ctaridership/pkg/types"
)

//go:embed templates/map.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/map.html"))

// Panel is an extra block of HTML shown beside the map.
type Panel struct {
	Title string
	Body  template.HTML
}

type pageLayer struct {
	ID      string
	Title   string
	Visible bool
	Data    *geojson.FeatureCollection
	Legend  template.HTML
	Missing int
}

type pageRoute struct {
	Title   string
	Color   string
	Weight  int
	Visible bool
	Data    *geojson.FeatureCollection
}

type pageData struct {
	Title     string
	RunID     string
	Generated string
	CenterLat float64
	CenterLon float64
	Zoom      int
	TileURL   string
	TileAttr  string
	Layers    []pageLayer
	Routes    []pageRoute
	Panels    []Panel
}

type Renderer struct {
	tracer   trace.Tracer
	tileURL  string
	tileAttr string
}

func NewRenderer(mapCfg config.MapConfig) *Renderer {
	return &Renderer{
		tracer:   otel.Tracer("renderer"),
		tileURL:  mapCfg.TileURL,
		tileAttr: mapCfg.TileAttr,
	}
}

// HTML renders result as a self-contained Leaflet page. Panels, if any, are
// shown in a sidebar.
func (r *Renderer) HTML(result *types.RenderResult, panels ...Panel) ([]byte, error) {
	data := pageData{
		Title:     result.Title,
		RunID:     result.RunID,
		Generated: result.Generated,
		CenterLat: result.Center.Lat,
		CenterLon: result.Center.Lon,
		Zoom:      result.Zoom,
		TileURL:   r.tileURL,
		TileAttr:  r.tileAttr,
		Panels:    panels,
	}

	for i := range result.Layers {
		layer := &result.Layers[i]
		if layer.Missing > 0 {
			slog.Warn("Records without coordinates will not be drawn",
				"layer", layer.Title, "missing", layer.Missing)
		}
		data.Layers = append(data.Layers, pageLayer{
			ID:      string(layer.Category),
			Title:   layer.Title,
			Visible: layer.Visible,
			Data:    LayerFeatures(layer),
			Legend:  template.HTML(LegendSVG(layer.Legend)),
			Missing: layer.Missing,
		})
	}
	for i := range result.Routes {
		set := &result.Routes[i]
		data.Routes = append(data.Routes, pageRoute{
			Title:   set.Title,
			Color:   set.Color,
			Weight:  set.Weight,
			Visible: set.Visible,
			Data:    RouteFeatures(set),
		})
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render map: %w", err)
	}
	return buf.Bytes(), nil
}

// GeoJSON encodes every layer and route of result as one FeatureCollection.
func (r *Renderer) GeoJSON(result *types.RenderResult) ([]byte, error) {
	data, err := json.Marshal(FeatureCollection(result))
	if err != nil {
		return nil, fmt.Errorf("failed to encode GeoJSON: %w", err)
	}
	return data, nil
}

// WriteHTML renders result and writes it atomically to path.
func (r *Renderer) WriteHTML(ctx context.Context, result *types.RenderResult, path string) error {
	ctx, span := r.tracer.Start(ctx, "render.write_html",
		trace.WithAttributes(
			attribute.String("file.path", path),
			attribute.Int("layers", len(result.Layers)),
		),
	)
	defer span.End()

	page, err := r.HTML(result)
	if err != nil {
		ctaotel.RecordError(span, err, ctaotel.ErrorTypeParse, false)
		return err
	}
	if err := WriteFileAtomic(path, page); err != nil {
		ctaotel.RecordError(span, err, ctaotel.ErrorTypeIO, false)
		return err
	}

	r.countWritten(ctx, result, "html")
	ctaotel.SetSpanOk(span)
	slog.Info("Map saved", "path", path, "bytes", len(page))
	return nil
}

// WriteGeoJSON writes the GeoJSON export atomically to path.
func (r *Renderer) WriteGeoJSON(ctx context.Context, result *types.RenderResult, path string) error {
	ctx, span := r.tracer.Start(ctx, "render.write_geojson",
		trace.WithAttributes(attribute.String("file.path", path)),
	)
	defer span.End()

	data, err := r.GeoJSON(result)
	if err != nil {
		ctaotel.RecordError(span, err, ctaotel.ErrorTypeParse, false)
		return err
	}
	if err := WriteFileAtomic(path, data); err != nil {
		ctaotel.RecordError(span, err, ctaotel.ErrorTypeIO, false)
		return err
	}

	r.countWritten(ctx, result, "geojson")
	ctaotel.SetSpanOk(span)
	slog.Info("GeoJSON saved", "path", path, "bytes", len(data))
	return nil
}

func (r *Renderer) countWritten(ctx context.Context, result *types.RenderResult, format string) {
	for i := range result.Layers {
		layer := &result.Layers[i]
		metrics.RenderRecordsWritten.Add(ctx, int64(len(layer.Drawable())),
			metric.WithAttributes(
				attribute.String("category", string(layer.Category)),
				attribute.String("format", format),
			),
		)
	}
}

// WriteFileAtomic writes data to a temp file beside path and renames it into
// place, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+strings.TrimPrefix(filepath.Base(path), ".")+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"ctaridership/pkg/aggregate"
	"ctaridership/pkg/config"
	"ctaridership/pkg/geo"
	"ctaridership/pkg/kmz"
	"ctaridership/pkg/loader"
	"ctaridership/pkg/metrics"
	"ctaridership/pkg/normalize"
	ctaotel "ctaridership/pkg/otel"
	"ctaridership/pkg/render"
	"ctaridership/pkg/socrata"
	"ctaridership/pkg/types"
)

// Variant selects which map a run produces.
type Variant string

const (
	// VariantCombined draws every dataset on one map with a shared radius scale.
	VariantCombined Variant = "combined"
	// VariantBus draws heavy bus stops only.
	VariantBus Variant = "bus"
	// VariantRail draws "L" stations sized and colored relative to the busiest.
	VariantRail Variant = "rail"
	// VariantAll produces every map above.
	VariantAll Variant = "all"
)

var defaultFiles = map[Variant]string{
	VariantCombined: "cta_bus_taxi_train_normalized_map.html",
	VariantBus:      "heavy_boardings_map.html",
	VariantRail:     "cta_l_ridership_map_relative_color.html",
}

// Route overlays, hidden until toggled on.
var (
	busRoutes  = types.RouteSet{Title: "CTA Bus Routes", Color: "#2b7bba", Weight: 2}
	railRoutes = types.RouteSet{Title: "CTA 'L' Rail Lines", Color: "#e34a33", Weight: 3}
)

type layerSpec struct {
	category types.Category
	title    string
	caption  string
	visible  bool
}

var combinedLayers = []layerSpec{
	{types.CategoryBus, "CTA Bus Boardings (per day)", "Bus boardings per day", true},
	{types.CategoryTaxiPickup, "Taxi Pickups (per day)", "Taxi pickups per day", false},
	{types.CategoryTaxiDropoff, "Taxi Drop-offs (per day)", "Taxi drop-offs per day", false},
	{types.CategoryRail, "CTA 'L' Station Ridership (per day)", "'L' rides per day", false},
}

type Pipeline struct {
	config   *config.Config
	fetcher  loader.Fetcher
	loader   *loader.Loader
	routes   *kmz.Reader
	renderer *render.Renderer
	tracer   trace.Tracer
	runID    string
	out      io.Writer
	now      func() time.Time
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithFetcher replaces the Socrata client.
func WithFetcher(f loader.Fetcher) Option {
	return func(p *Pipeline) { p.fetcher = f }
}

// WithRunID sets the run identifier stamped on every artifact.
func WithRunID(id string) Option {
	return func(p *Pipeline) { p.runID = id }
}

// WithOutput sets where dry-run summaries are printed.
func WithOutput(w io.Writer) Option {
	return func(p *Pipeline) { p.out = w }
}

func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		config:   cfg,
		routes:   kmz.NewReader(),
		renderer: render.NewRenderer(cfg.Map),
		tracer:   otel.Tracer("pipeline"),
		out:      os.Stdout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.runID == "" {
		p.runID = uuid.NewString()
	}
	if p.fetcher == nil {
		p.fetcher = socrata.NewClient(socrata.Options{
			Token:    cfg.Fetch.Token,
			RowLimit: cfg.Fetch.RowLimit,
			PageSize: cfg.Fetch.PageSize,
			CacheTTL: cfg.Fetch.CacheTTL,
			Timeout:  cfg.Fetch.Timeout,
		})
	}
	p.loader = loader.New(p.fetcher, cfg.DropMissingCoords)

	return p, nil
}

func (p *Pipeline) RunID() string {
	return p.runID
}

func (p *Pipeline) Renderer() *render.Renderer {
	return p.renderer
}

// Variants expands the configured variant; "all" becomes every map.
func (p *Pipeline) Variants() []Variant {
	v := Variant(p.config.Output.Variant)
	if v == VariantAll {
		return []Variant{VariantCombined, VariantBus, VariantRail}
	}
	return []Variant{v}
}

// Run builds every configured map and writes it, or prints a summary in
// dry-run mode. Any failure aborts the run.
func (p *Pipeline) Run(ctx context.Context) ([]*types.RenderResult, error) {
	variants := p.Variants()
	names := make([]string, len(variants))
	for i, v := range variants {
		names[i] = string(v)
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("run.id", p.runID),
			attribute.StringSlice("variants", names),
			attribute.Bool("dry_run", p.config.Output.DryRun),
		),
	)
	defer span.End()

	start := time.Now()
	slog.Info("Pipeline started", "run_id", p.runID, "variants", names)

	results := make([]*types.RenderResult, 0, len(variants))
	for _, v := range variants {
		result, err := p.Build(ctx, v)
		if err != nil {
			p.countRun(ctx, "error")
			ctaotel.RecordError(span, err, errorType(err), false)
			return nil, fmt.Errorf("%s map: %w", v, err)
		}
		for i := range result.Layers {
			layer := &result.Layers[i]
			metrics.RecordLayerSize(string(v), string(layer.Category), len(layer.Records))
		}

		if p.config.Output.DryRun {
			if err := p.handleDryRun(ctx, result); err != nil {
				p.countRun(ctx, "error")
				ctaotel.RecordError(span, err, ctaotel.ErrorTypeIO, false)
				return nil, err
			}
		} else if err := p.write(ctx, v, result); err != nil {
			p.countRun(ctx, "error")
			ctaotel.RecordError(span, err, ctaotel.ErrorTypeIO, false)
			return nil, err
		}
		results = append(results, result)
	}

	p.countRun(ctx, "success")
	metrics.RecordLastSuccessTimestamp()
	span.SetAttributes(attribute.String("processing_duration", time.Since(start).String()))
	ctaotel.SetSpanOk(span)

	slog.Info("Pipeline finished", "run_id", p.runID, "maps", len(results), "duration", time.Since(start))
	return results, nil
}

// Build loads, aggregates and normalizes the data for one variant.
func (p *Pipeline) Build(ctx context.Context, v Variant) (*types.RenderResult, error) {
	switch v {
	case VariantCombined:
		return p.buildCombined(ctx)
	case VariantBus:
		return p.buildBus(ctx)
	case VariantRail:
		return p.buildRail(ctx)
	default:
		return nil, fmt.Errorf("unknown variant %q", v)
	}
}

func (p *Pipeline) buildCombined(ctx context.Context) (*types.RenderResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.build_combined")
	defer span.End()

	var bus, pickups, dropoffs, rail []types.StopRecord
	err := p.stage(ctx, "load", func(ctx context.Context) error {
		var err error
		if bus, err = p.loader.LoadBus(ctx, p.config.Bus); err != nil {
			return err
		}
		trips, err := p.loader.LoadTaxiTrips(ctx, p.config.Taxi)
		if err != nil {
			return err
		}
		pickups = aggregate.CountPoints(trips, aggregate.Pickup)
		dropoffs = aggregate.CountPoints(trips, aggregate.Dropoff)
		rail, err = p.loadRail(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	groups := []normalize.Group{
		{Records: bus, WindowDays: p.config.Bus.WindowDays},
		{Records: pickups, WindowDays: p.config.Taxi.WindowDays},
		{Records: dropoffs, WindowDays: p.config.Taxi.WindowDays},
		{Records: rail, WindowDays: p.config.Rail.WindowDays},
	}

	var layers []types.Layer
	err = p.stage(ctx, "normalize", func(ctx context.Context) error {
		normalized, domain, err := normalize.ScaleFromConfig(p.config.Scale).Apply(groups)
		if err != nil {
			return err
		}
		slog.Debug("Shared radius domain", "min", domain.Min, "max", domain.Max, "mode", p.config.Scale.Mode)

		for i, spec := range combinedLayers {
			legend, err := normalize.Colorize(spec.category, normalized[i], spec.caption)
			if err != nil {
				return err
			}
			layers = append(layers, newLayer(spec, normalized[i], legend))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	routes, err := p.loadRoutes(ctx, true, true)
	if err != nil {
		return nil, err
	}

	center := types.LatLon{Lat: p.config.Map.CenterLat, Lon: p.config.Map.CenterLon}
	return p.result("CTA Bus, Taxi & 'L' Ridership (normalized per day)", center, layers, routes), nil
}

func (p *Pipeline) buildBus(ctx context.Context) (*types.RenderResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.build_bus")
	defer span.End()

	var bus []types.StopRecord
	err := p.stage(ctx, "load", func(ctx context.Context) error {
		var err error
		bus, err = p.loader.LoadBus(ctx, p.config.Bus)
		return err
	})
	if err != nil {
		return nil, err
	}

	caption := fmt.Sprintf("Boardings on %s (%s)", p.config.Bus.Date, p.config.Bus.DayType)
	spec := layerSpec{types.CategoryBus, "Heavy bus stops", caption, true}

	var layers []types.Layer
	err = p.stage(ctx, "normalize", func(ctx context.Context) error {
		scale := normalize.Scale{
			Mode:  normalize.RadiusSqrtClamped,
			Basis: normalize.BasisRaw,
			Base:  4,
			Max:   p.config.Scale.MaxRadius,
			Fixed: p.config.Scale.FixedRadius,
		}
		normalized, _, err := scale.Apply([]normalize.Group{{Records: bus, WindowDays: p.config.Bus.WindowDays}})
		if err != nil {
			return err
		}
		legend, err := normalize.ColorizePalette(normalize.Palette{"yellow", "red"}, normalized[0], caption)
		if err != nil {
			return err
		}
		layers = []types.Layer{newLayer(spec, normalized[0], legend)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	routes, err := p.loadRoutes(ctx, true, false)
	if err != nil {
		return nil, err
	}

	center := types.LatLon{Lat: p.config.Map.CenterLat, Lon: p.config.Map.CenterLon}
	title := fmt.Sprintf("Bus stops with at least %g boardings, %s (%s)", p.config.Bus.Threshold, p.config.Bus.Date, p.config.Bus.DayType)
	return p.result(title, center, layers, routes), nil
}

func (p *Pipeline) buildRail(ctx context.Context) (*types.RenderResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.build_rail")
	defer span.End()

	var rail []types.StopRecord
	err := p.stage(ctx, "load", func(ctx context.Context) error {
		var err error
		rail, err = p.loadRail(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	const caption = "Relative 'L' Station Rides"
	spec := layerSpec{types.CategoryRail, "CTA 'L' Station Ridership", caption, true}

	var layers []types.Layer
	err = p.stage(ctx, "normalize", func(ctx context.Context) error {
		scale := normalize.Scale{
			Mode:  normalize.RadiusLinear,
			Basis: normalize.BasisRaw,
			Base:  p.config.Scale.BaseRadius,
			Max:   p.config.Scale.MaxRadius,
			Fixed: p.config.Scale.FixedRadius,
		}
		normalized, _, err := scale.Apply([]normalize.Group{{Records: rail, WindowDays: p.config.Rail.WindowDays}})
		if err != nil {
			return err
		}

		var maxPerDay float64
		for _, r := range normalized[0] {
			if r.CountPerDay > maxPerDay {
				maxPerDay = r.CountPerDay
			}
		}
		legend, err := normalize.ColorizeWith(normalize.Palette{"yellow", "orange", "red"}, 0, maxPerDay, normalized[0], caption)
		if err != nil {
			return err
		}
		layers = []types.Layer{newLayer(spec, normalized[0], legend)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	routes, err := p.loadRoutes(ctx, false, true)
	if err != nil {
		return nil, err
	}

	center, ok := geo.Center(rail)
	if !ok {
		center = types.LatLon{Lat: p.config.Map.CenterLat, Lon: p.config.Map.CenterLon}
	}
	return p.result("CTA 'L' Station Ridership", center, layers, routes), nil
}

// loadRail merges the station list with ridership. Without a station list
// the layer is empty and ridership is not fetched.
func (p *Pipeline) loadRail(ctx context.Context) ([]types.StopRecord, error) {
	stations, err := p.loader.LoadStations(ctx, p.config.Rail.StationsCSV)
	if err != nil {
		return nil, err
	}
	if len(stations) == 0 {
		return nil, nil
	}
	rides, err := p.loader.LoadRides(ctx, p.config.Rail)
	if err != nil {
		return nil, err
	}
	return aggregate.MergeStationRides(stations, rides), nil
}

func (p *Pipeline) loadRoutes(ctx context.Context, withBus, withRail bool) ([]types.RouteSet, error) {
	var sets []types.RouteSet
	err := p.stage(ctx, "routes", func(ctx context.Context) error {
		for _, src := range []struct {
			enabled bool
			path    string
			set     types.RouteSet
		}{
			{withBus, p.config.Routes.BusKMZ, busRoutes},
			{withRail, p.config.Routes.RailKMZ, railRoutes},
		} {
			if !src.enabled {
				continue
			}
			lines, err := p.routes.ReadFile(ctx, src.path)
			if err != nil {
				return err
			}
			if len(lines) == 0 {
				continue
			}
			set := src.set
			set.Lines = lines
			sets = append(sets, set)
		}
		return nil
	})
	return sets, err
}

func (p *Pipeline) result(title string, center types.LatLon, layers []types.Layer, routes []types.RouteSet) *types.RenderResult {
	return &types.RenderResult{
		RunID:     p.runID,
		Generated: p.now().UTC().Format(time.RFC3339),
		Title:     title,
		Center:    center,
		Zoom:      p.config.Map.Zoom,
		Layers:    layers,
		Routes:    routes,
	}
}

func newLayer(spec layerSpec, records []types.NormalizedRecord, legend types.Legend) types.Layer {
	missing := 0
	for _, r := range records {
		if !r.HasCoords {
			missing++
		}
	}
	return types.Layer{
		Category: spec.category,
		Title:    spec.title,
		Label:    spec.caption,
		Visible:  spec.visible,
		Records:  records,
		Legend:   legend,
		Missing:  missing,
	}
}

// OutputPath returns where variant v is written. An explicit output file
// only applies when a single map is produced.
func (p *Pipeline) OutputPath(v Variant) string {
	name := defaultFiles[v]
	if p.config.Output.File != "" && Variant(p.config.Output.Variant) != VariantAll {
		name = p.config.Output.File
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(p.config.Output.Dir, name)
}

// GeoJSONPath returns the GeoJSON export path for v, or "" when disabled.
// With several maps the variant name is appended before the extension.
func (p *Pipeline) GeoJSONPath(v Variant) string {
	path := p.config.Output.GeoJSON
	if path == "" {
		return ""
	}
	if Variant(p.config.Output.Variant) == VariantAll {
		ext := filepath.Ext(path)
		path = strings.TrimSuffix(path, ext) + "_" + string(v) + ext
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.config.Output.Dir, path)
	}
	return path
}

func (p *Pipeline) write(ctx context.Context, v Variant, result *types.RenderResult) error {
	return p.stage(ctx, "render", func(ctx context.Context) error {
		if err := p.renderer.WriteHTML(ctx, result, p.OutputPath(v)); err != nil {
			return err
		}
		if path := p.GeoJSONPath(v); path != "" {
			return p.renderer.WriteGeoJSON(ctx, result, path)
		}
		return nil
	})
}

// stage runs fn under its own span and records its duration.
func (p *Pipeline) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.stage."+name)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	status := "success"
	if err != nil {
		status = "error"
		ctaotel.RecordError(span, err, errorType(err), false)
	}
	metrics.PipelineStageDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(
			attribute.String("stage", name),
			attribute.String("status", status),
		),
	)
	return err
}

func (p *Pipeline) countRun(ctx context.Context, status string) {
	metrics.PipelineRunsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("variant", p.config.Output.Variant),
			attribute.String("status", status),
		),
	)
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"ctaridership/pkg/config"
	"ctaridership/pkg/dashboard"
	"ctaridership/pkg/logging"
	"ctaridership/pkg/metrics"
	"ctaridership/pkg/pipeline"
	"ctaridership/pkg/profiling"
	"ctaridership/pkg/tracing"
	"ctaridership/pkg/types"
)

func main() {
	// Command line flags. Unset flags leave the file/env configuration alone.
	var (
		configPath = flag.String("config", getEnv("CTAMAP_CONFIG", ""), "Path to a YAML/JSON/TOML config file")
		out        = flag.String("out", "", "Output directory, or an .html file path for a single map")
		geoJSON    = flag.String("geojson", "", "Also write the rendered layers as GeoJSON to this path")
		variant    = flag.String("variant", "", "Map to build: combined, bus, rail or all")
		serve      = flag.Bool("serve", false, "Serve the map and dashboard over HTTP after rendering")
		addr       = flag.String("addr", "", "Dashboard listen address (default 127.0.0.1:8050)")
		dryRun     = flag.Bool("dry-run", false, "Print a summary of each map instead of writing files")
		radius     = flag.String("radius", "", "Radius mode: sqrt, fixed, sqrt_clamped or linear")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "CTA Ridership Map\n\n")
		fmt.Fprintf(os.Stderr, "Loads Chicago bus boardings, taxi trips and 'L' station rides from the\n")
		fmt.Fprintf(os.Stderr, "City of Chicago open data portal, scales them to a shared radius and\n")
		fmt.Fprintf(os.Stderr, "renders an interactive Leaflet map with CTA route overlays.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  SOCRATA_TOKEN               - Socrata app token (optional, raises rate limits)\n")
		fmt.Fprintf(os.Stderr, "  CTAMAP_CONFIG               - Config file path\n")
		fmt.Fprintf(os.Stderr, "  CTAMAP_<SECTION>_<KEY>      - Any config key, e.g. CTAMAP_BUS_THRESHOLD=250\n")
		fmt.Fprintf(os.Stderr, "  LOG_LEVEL                   - debug, info, warn or error (default: info)\n")
		fmt.Fprintf(os.Stderr, "  OTEL_TRACING_ENABLED        - Export traces over OTLP\n")
		fmt.Fprintf(os.Stderr, "  OTEL_METRICS_ENABLED        - Export metrics over OTLP\n")
		fmt.Fprintf(os.Stderr, "  OTEL_EXPORTER_OTLP_ENDPOINT - OTLP collector endpoint\n")
		fmt.Fprintf(os.Stderr, "  PYROSCOPE_PROFILING_ENABLED - Continuous profiling via Pyroscope\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Dry run (prints layer summaries, writes nothing)\n")
		fmt.Fprintf(os.Stderr, "  %s --dry-run\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Combined map with GeoJSON export\n")
		fmt.Fprintf(os.Stderr, "  %s --out=maps/chicago_transit.html --geojson=maps/chicago_transit.geojson\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # All three maps, then serve the dashboard\n")
		fmt.Fprintf(os.Stderr, "  %s --variant=all --out=maps --serve --addr=:8050\n\n", os.Args[0])
	}

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		flag.Usage()
		os.Exit(1)
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if set["out"] {
		if strings.EqualFold(filepath.Ext(*out), ".html") {
			cfg.Output.Dir = filepath.Dir(*out)
			cfg.Output.File = filepath.Base(*out)
		} else {
			cfg.Output.Dir = *out
		}
	}
	if set["geojson"] {
		cfg.Output.GeoJSON = *geoJSON
	}
	if set["variant"] {
		cfg.Output.Variant = *variant
	}
	if set["serve"] {
		cfg.Serve.Enabled = *serve
	}
	if set["addr"] {
		cfg.Serve.Addr = *addr
	}
	if set["dry-run"] {
		cfg.Output.DryRun = *dryRun
	}
	if set["radius"] {
		cfg.Scale.Mode = *radius
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		flag.Usage()
		os.Exit(1)
	}

	logging.InitLogging(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg); err != nil {
		slog.Error("Run failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	runID := uuid.NewString()

	// Initialize tracing
	shutdownTracing, err := tracing.InitTracing(cfg.Telemetry, runID)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer shutdownTracing()

	// Initialize metrics
	shutdownMetrics, err := metrics.InitMetrics(cfg.Telemetry, runID)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer shutdownMetrics()
	slog.Debug("Telemetry initialized", "metrics_exporting", metrics.IsEnabled(), "run_id", runID)

	// Initialize profiling
	shutdownProfiling, err := profiling.InitProfiling(cfg.Profiling, runID)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer shutdownProfiling()

	p, err := pipeline.New(cfg, pipeline.WithRunID(runID))
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	if cfg.Output.DryRun {
		slog.Info("Starting CTA ridership pipeline in DRY RUN mode", "run_id", runID)
	} else {
		slog.Info("Starting CTA ridership pipeline", "run_id", runID, "output_dir", cfg.Output.Dir)
	}
	slog.Info("Map variants", "variants", p.Variants(), "radius_mode", cfg.Scale.Mode)

	// Cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results, err := p.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Info("Pipeline interrupted")
			return nil
		}
		return err
	}

	if cfg.Serve.Enabled {
		variant, result, ok := servedResult(p.Variants(), results)
		if !ok {
			return fmt.Errorf("no map to serve")
		}
		if len(results) > 1 {
			slog.Warn("Dashboard serves one map only; the others are written to disk",
				"served", variant, "built", p.Variants())
		}
		srv, err := dashboard.NewServer(result, p.Renderer())
		if err != nil {
			return fmt.Errorf("failed to build dashboard: %w", err)
		}
		slog.Info("Serving dashboard", "addr", cfg.Serve.Addr, "variant", variant, "title", result.Title)
		if err := srv.ListenAndServe(ctx, cfg.Serve.Addr); err != nil {
			return fmt.Errorf("dashboard server: %w", err)
		}
	}

	slog.Info("CTA ridership pipeline complete", "run_id", runID)
	return nil
}

// servedResult picks the map the dashboard serves: the first variant built,
// which is the combined map when every variant is requested.
func servedResult(variants []pipeline.Variant, results []*types.RenderResult) (pipeline.Variant, *types.RenderResult, bool) {
	if len(results) == 0 || len(variants) == 0 {
		return "", nil, false
	}
	return variants[0], results[0], true
}

// getEnv returns the value of an environment variable or a default value if not set
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

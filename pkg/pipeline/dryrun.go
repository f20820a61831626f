package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"

	"ctaridership/pkg/loader"
	ctaotel "ctaridership/pkg/otel"
	"ctaridership/pkg/socrata"
	"ctaridership/pkg/stats"
	"ctaridership/pkg/types"
)

// dryRunTop is how many of the busiest records are listed per layer.
const dryRunTop = 5

// handleDryRun prints what would have been written instead of writing it.
func (p *Pipeline) handleDryRun(ctx context.Context, result *types.RenderResult) error {
	_, span := p.tracer.Start(ctx, "pipeline.dry_run")
	defer span.End()

	w := p.out
	printed := 0

	fmt.Fprintf(w, "\n=== DRY RUN - %s ===\n", result.Title)
	fmt.Fprintf(w, "Run ID: %s\n", result.RunID)
	fmt.Fprintf(w, "Generated: %s\n", result.Generated)
	fmt.Fprintf(w, "Center: (%.6f, %.6f) zoom %d\n", result.Center.Lat, result.Center.Lon, result.Zoom)

	for i := range result.Layers {
		layer := &result.Layers[i]
		s := stats.Describe(layer.Values())

		visible := "hidden"
		if layer.Visible {
			visible = "visible"
		}
		fmt.Fprintf(w, "\nLayer: %s [%s, %s]\n", layer.Title, layer.Category, visible)
		fmt.Fprintf(w, "  Records: %d (without location: %d)\n", len(layer.Records), layer.Missing)
		if s.Count > 0 {
			fmt.Fprintf(w, "  Per day: min %.2f, median %.2f, max %.2f\n", s.Min, s.P50, s.Max)
			fmt.Fprintf(w, "  Legend: %s [%.2f .. %.2f]\n", layer.Legend.Caption, layer.Legend.Min, layer.Legend.Max)
		}

		top := append([]types.NormalizedRecord(nil), layer.Records...)
		sort.SliceStable(top, func(a, b int) bool { return top[a].CountPerDay > top[b].CountPerDay })
		if len(top) > dryRunTop {
			top = top[:dryRunTop]
		}
		for j, r := range top {
			name := r.Name
			if name == "" {
				name = r.ID
			}
			fmt.Fprintf(w, "  %d. %s: %.2f/day, radius %.1f, color %s, location (%.6f, %.6f)\n",
				j+1, name, r.CountPerDay, r.Radius, r.Color, r.Lat, r.Lon)
			printed++
		}
	}

	if len(result.Routes) > 0 {
		fmt.Fprintln(w, "\nRoute overlays:")
		for _, set := range result.Routes {
			fmt.Fprintf(w, "  %s: %d lines\n", set.Title, len(set.Lines))
		}
	}

	fmt.Fprint(w, "=== END DRY RUN ===\n\n")

	span.SetAttributes(attribute.Int("records_printed", printed))
	return nil
}

// errorType classifies a pipeline failure for span attributes.
func errorType(err error) string {
	switch {
	case errors.Is(err, socrata.ErrStatus):
		return ctaotel.ErrorTypeHTTP
	case errors.Is(err, loader.ErrMissingColumn):
		return ctaotel.ErrorTypeValidation
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ctaotel.ErrorTypeNetwork
	default:
		return ctaotel.ErrorTypeParse
	}
}

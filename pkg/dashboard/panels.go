package dashboard

import (
	"fmt"
	"html"
	"html/template"
	"math"
	"sort"
	"strings"

	"ctaridership/pkg/render"
	"ctaridership/pkg/stats"
	"ctaridership/pkg/types"
)

// histogramColors are the bar colors per category; taxi pickups and
// dropoffs share one chart.
var histogramColors = map[types.Category]string{
	types.CategoryBus:         "#2b7bba",
	types.CategoryTaxiPickup:  "#ff6347",
	types.CategoryTaxiDropoff: "#2e8b57",
	types.CategoryRail:        "#e34a33",
}

// Summaries describes the per-day counts of every layer, keyed by category.
func Summaries(result *types.RenderResult) map[types.Category]stats.Summary {
	out := make(map[types.Category]stats.Summary, len(result.Layers))
	for i := range result.Layers {
		layer := &result.Layers[i]
		out[layer.Category] = stats.Describe(layer.Values())
	}
	return out
}

// Panels builds the sidebar in category order: one histogram per mode, with
// taxi pickups and dropoffs overlaid in a single chart, followed by the
// summary table.
func Panels(result *types.RenderResult, bins int) []render.Panel {
	var (
		panels []render.Panel
		taxi   []*types.Layer
	)

	layers := orderedLayers(result)
	for _, layer := range layers {
		if isTaxi(layer.Category) {
			taxi = append(taxi, layer)
		}
	}

	taxiDone := false
	for _, layer := range layers {
		if isTaxi(layer.Category) {
			if !taxiDone {
				panels = append(panels, taxiPanel(taxi, bins))
				taxiDone = true
			}
			continue
		}
		svg := render.HistogramSVG(layer.Legend.Caption, []render.HistogramSeries{{
			Label: layer.Title,
			Color: histogramColors[layer.Category],
			Bins:  stats.Histogram(layer.Values(), bins),
		}})
		panels = append(panels, render.Panel{Title: layer.Title, Body: template.HTML(svg)})
	}

	panels = append(panels, render.Panel{Title: "Summary", Body: summaryTable(layers)})
	return panels
}

// orderedLayers returns the result's layers sorted by types.Categories.
// Unknown categories go last in their original order.
func orderedLayers(result *types.RenderResult) []*types.Layer {
	rank := make(map[types.Category]int, len(types.Categories))
	for i, c := range types.Categories {
		rank[c] = i
	}
	position := func(c types.Category) int {
		if r, ok := rank[c]; ok {
			return r
		}
		return len(types.Categories)
	}

	layers := make([]*types.Layer, len(result.Layers))
	for i := range result.Layers {
		layers[i] = &result.Layers[i]
	}
	sort.SliceStable(layers, func(i, j int) bool {
		return position(layers[i].Category) < position(layers[j].Category)
	})
	return layers
}

func isTaxi(c types.Category) bool {
	return c == types.CategoryTaxiPickup || c == types.CategoryTaxiDropoff
}

func taxiPanel(taxi []*types.Layer, bins int) render.Panel {
	lo, hi := sharedRange(taxi)
	series := make([]render.HistogramSeries, 0, len(taxi))
	for _, layer := range taxi {
		var hist []stats.Bin
		if !math.IsInf(lo, 1) {
			hist = stats.HistogramRange(layer.Values(), bins, lo, hi)
		}
		series = append(series, render.HistogramSeries{
			Label: layer.Title,
			Color: histogramColors[layer.Category],
			Bins:  hist,
		})
	}
	svg := render.HistogramSVG("Taxi trips per day", series)
	return render.Panel{Title: "Taxi pickups and dropoffs", Body: template.HTML(svg)}
}

func sharedRange(layers []*types.Layer) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, layer := range layers {
		for _, v := range layer.Values() {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	return lo, hi
}

func summaryTable(layers []*types.Layer) template.HTML {

	var b strings.Builder
	b.WriteString("<table><tr><th>Layer</th><th>count</th><th>mean</th><th>std</th><th>min</th><th>25%</th><th>50%</th><th>75%</th><th>max</th></tr>")
	for _, layer := range layers {
		s := stats.Describe(layer.Values())
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%d</td>", html.EscapeString(layer.Title), s.Count)
		for _, v := range []float64{s.Mean, s.Std, s.Min, s.P25, s.P50, s.P75, s.Max} {
			fmt.Fprintf(&b, "<td>%s</td>", cell(v))
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</table>")
	return template.HTML(b.String())
}

func cell(v float64) string {
	if math.IsNaN(v) {
		return "&ndash;"
	}
	return fmt.Sprintf("%.2f", v)
}

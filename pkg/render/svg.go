package render

import (
	"fmt"
	"html"
	"math"
	"strings"

	"ctaridership/pkg/stats"
	"ctaridership/pkg/types"
)

// LegendSVG draws a legend's color steps as a row of swatches with the
// domain bounds underneath.
func LegendSVG(legend types.Legend) string {
	const (
		width    = 180
		swatchH  = 12
		labelY   = 30
		captionY = 10
		height   = 36
	)

	steps := legend.Steps
	if len(steps) == 0 {
		steps = []string{"#cccccc"}
	}
	swatchW := float64(width) / float64(len(steps))

	var b strings.Builder
	fmt.Fprintf(&b, `<svg width="%d" height="%d" xmlns="http://www.w3.org/2000/svg">`, width, height+captionY)
	fmt.Fprintf(&b, `<text x="0" y="%d" font-family="Arial, sans-serif" font-size="10" font-weight="bold" fill="#333">%s</text>`,
		captionY, html.EscapeString(legend.Caption))
	for i, c := range steps {
		fmt.Fprintf(&b, `<rect x="%.1f" y="%d" width="%.1f" height="%d" fill="%s"/>`,
			float64(i)*swatchW, captionY+4, swatchW+0.5, swatchH, html.EscapeString(c))
	}
	fmt.Fprintf(&b, `<text x="0" y="%d" font-family="Arial, sans-serif" font-size="9" fill="#555">%s</text>`,
		captionY+labelY, formatCount(legend.Min))
	fmt.Fprintf(&b, `<text x="%d" y="%d" font-family="Arial, sans-serif" font-size="9" fill="#555" text-anchor="end">%s</text>`,
		width, captionY+labelY, formatCount(legend.Max))
	b.WriteString(`</svg>`)
	return b.String()
}

// HistogramSeries is one set of bars in a histogram chart.
type HistogramSeries struct {
	Label string
	Color string
	Bins  []stats.Bin
}

// HistogramSVG draws one or more series over the same bin edges. Later
// series are drawn on top with partial opacity so overlaps stay visible.
func HistogramSVG(title string, series []HistogramSeries) string {
	const (
		width   = 360
		height  = 200
		padL    = 36
		padR    = 8
		padTop  = 24
		padBot  = 28
		opacity = 0.6
	)
	plotW := float64(width - padL - padR)
	plotH := float64(height - padTop - padBot)

	maxCount, bins := 0, 0
	for _, s := range series {
		if len(s.Bins) > bins {
			bins = len(s.Bins)
		}
		for _, bin := range s.Bins {
			if bin.Count > maxCount {
				maxCount = bin.Count
			}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<svg width="%d" height="%d" xmlns="http://www.w3.org/2000/svg">`, width, height)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="white" stroke="#dee2e6" stroke-width="1" rx="6"/>`, width, height)
	fmt.Fprintf(&b, `<text x="%d" y="16" font-family="Arial, sans-serif" font-size="12" font-weight="bold" fill="#333" text-anchor="middle">%s</text>`,
		width/2, html.EscapeString(title))

	if bins == 0 || maxCount == 0 {
		fmt.Fprintf(&b, `<text x="%d" y="%d" font-family="Arial, sans-serif" font-size="11" fill="#6c757d" text-anchor="middle">no data</text>`,
			width/2, height/2)
		b.WriteString(`</svg>`)
		return b.String()
	}

	barW := plotW / float64(bins)
	for _, s := range series {
		for i, bin := range s.Bins {
			h := plotH * float64(bin.Count) / float64(maxCount)
			fmt.Fprintf(&b, `<rect x="%.2f" y="%.2f" width="%.2f" height="%.2f" fill="%s" fill-opacity="%.1f"/>`,
				padL+float64(i)*barW, padTop+plotH-h, math.Max(barW-1, 0.5), h, html.EscapeString(s.Color), opacity)
		}
	}

	// Axes and range labels
	fmt.Fprintf(&b, `<line x1="%d" y1="%.0f" x2="%d" y2="%.0f" stroke="#333"/>`, padL, padTop+plotH, width-padR, padTop+plotH)
	fmt.Fprintf(&b, `<text x="%d" y="%d" font-family="Arial, sans-serif" font-size="9" fill="#555" text-anchor="end">%d</text>`,
		padL-4, padTop+8, maxCount)
	if first := series[0].Bins; len(first) > 0 {
		fmt.Fprintf(&b, `<text x="%d" y="%d" font-family="Arial, sans-serif" font-size="9" fill="#555">%s</text>`,
			padL, height-padBot+12, formatCount(first[0].Lo))
		fmt.Fprintf(&b, `<text x="%d" y="%d" font-family="Arial, sans-serif" font-size="9" fill="#555" text-anchor="end">%s</text>`,
			width-padR, height-padBot+12, formatCount(first[len(first)-1].Hi))
	}

	// Legend for multi-series charts
	if len(series) > 1 {
		for i, s := range series {
			y := padTop + 4 + i*12
			fmt.Fprintf(&b, `<rect x="%d" y="%d" width="8" height="8" fill="%s" fill-opacity="%.1f"/>`,
				width-padR-80, y, html.EscapeString(s.Color), opacity)
			fmt.Fprintf(&b, `<text x="%d" y="%d" font-family="Arial, sans-serif" font-size="9" fill="#333">%s</text>`,
				width-padR-68, y+8, html.EscapeString(s.Label))
		}
	}

	b.WriteString(`</svg>`)
	return b.String()
}

func formatCount(v float64) string {
	switch {
	case math.IsNaN(v):
		return "n/a"
	case v == math.Trunc(v) && math.Abs(v) < 1e15:
		return fmt.Sprintf("%.0f", v)
	case math.Abs(v) >= 100:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

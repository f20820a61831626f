package normalize

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"ctaridership/pkg/types"
)

// LegendSteps is the number of swatches drawn in a legend.
const LegendSteps = 6

var namedColors = map[string]color.RGBA{
	"lightblue":  {R: 0xad, G: 0xd8, B: 0xe6, A: 0xff},
	"darkblue":   {R: 0x00, G: 0x00, B: 0x8b, A: 0xff},
	"yellow":     {R: 0xff, G: 0xff, B: 0x00, A: 0xff},
	"orange":     {R: 0xff, G: 0xa5, B: 0x00, A: 0xff},
	"red":        {R: 0xff, G: 0x00, B: 0x00, A: 0xff},
	"lightgreen": {R: 0x90, G: 0xee, B: 0x90, A: 0xff},
	"darkgreen":  {R: 0x00, G: 0x64, B: 0x00, A: 0xff},
}

// Palette is an ordered list of color names or #rrggbb values.
type Palette []string

// Palettes holds the default gradient of each category.
var Palettes = map[types.Category]Palette{
	types.CategoryBus:         {"lightblue", "darkblue"},
	types.CategoryTaxiPickup:  {"yellow", "red"},
	types.CategoryTaxiDropoff: {"lightgreen", "darkgreen"},
	types.CategoryRail:        {"orange", "red"},
}

// Colormap interpolates linearly between palette stops over [Min, Max].
type Colormap struct {
	Min   float64
	Max   float64
	stops []color.RGBA
}

// NewColormap resolves palette and binds it to the domain [min, max].
func NewColormap(palette Palette, min, max float64) (*Colormap, error) {
	if len(palette) < 2 {
		return nil, fmt.Errorf("palette needs at least two colors, got %d", len(palette))
	}
	stops := make([]color.RGBA, len(palette))
	for i, name := range palette {
		c, err := ParseColor(name)
		if err != nil {
			return nil, err
		}
		stops[i] = c
	}
	return &Colormap{Min: min, Max: max, stops: stops}, nil
}

// ColormapFor fits a category's palette to the min and max of values.
// An empty slice gets the domain [0, 0].
func ColormapFor(category types.Category, values []float64) (*Colormap, error) {
	palette, ok := Palettes[category]
	if !ok {
		return nil, fmt.Errorf("no palette for category %q", category)
	}
	min, max := bounds(values)
	return NewColormap(palette, min, max)
}

// At returns the color for v as #rrggbb. Values outside the domain clamp to
// the end colors; a degenerate domain always yields the start color.
func (c *Colormap) At(v float64) string {
	return hex(c.rgba(v))
}

func (c *Colormap) rgba(v float64) color.RGBA {
	span := c.Max - c.Min
	if span <= 0 || math.IsNaN(v) {
		return c.stops[0]
	}
	t := clamp((v-c.Min)/span, 0, 1)

	segments := float64(len(c.stops) - 1)
	pos := t * segments
	i := int(math.Floor(pos))
	if i >= len(c.stops)-1 {
		return c.stops[len(c.stops)-1]
	}
	return lerp(c.stops[i], c.stops[i+1], pos-float64(i))
}

// Steps samples n evenly spaced colors from Min to Max.
func (c *Colormap) Steps(n int) []string {
	if n < 2 {
		n = 2
	}
	out := make([]string, n)
	for i := range out {
		t := float64(i) / float64(n-1)
		out[i] = hex(c.sample(t))
	}
	return out
}

// sample reads the gradient at fraction t regardless of the domain.
func (c *Colormap) sample(t float64) color.RGBA {
	unit := Colormap{Min: 0, Max: 1, stops: c.stops}
	return unit.rgba(t)
}

// Legend describes the colormap for display.
func (c *Colormap) Legend(caption string) types.Legend {
	return types.Legend{
		Caption: caption,
		Min:     c.Min,
		Max:     c.Max,
		Steps:   c.Steps(LegendSteps),
	}
}

// ParseColor accepts a known color name or #rrggbb.
func ParseColor(s string) (color.RGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c, nil
	}
	if len(s) == 7 && s[0] == '#' {
		v, err := strconv.ParseUint(s[1:], 16, 32)
		if err == nil {
			return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
		}
	}
	return color.RGBA{}, fmt.Errorf("unknown color %q", s)
}

func lerp(a, b color.RGBA, t float64) color.RGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*t))
	}
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 0xff}
}

func hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func bounds(values []float64) (min, max float64) {
	if len(values) == 0 {
		return 0, 0
	}
	min, max = values[0], values[0]
	for _, v := range values[1:] {
		min = math.Min(min, v)
		max = math.Max(max, v)
	}
	return min, max
}

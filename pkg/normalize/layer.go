package normalize

import (
	"fmt"

	"ctaridership/pkg/types"
)

// Colorize assigns each record its color from a colormap fitted to the
// layer's own per-day counts and returns the layer's legend.
func Colorize(category types.Category, records []types.NormalizedRecord, caption string) (types.Legend, error) {
	values := make([]float64, len(records))
	for i, r := range records {
		values[i] = r.CountPerDay
	}
	cmap, err := ColormapFor(category, values)
	if err != nil {
		return types.Legend{}, fmt.Errorf("colorize %s: %w", category, err)
	}
	return colorizeWith(cmap, records, caption), nil
}

// ColorizePalette is Colorize with a caller-supplied palette.
func ColorizePalette(palette Palette, records []types.NormalizedRecord, caption string) (types.Legend, error) {
	values := make([]float64, len(records))
	for i, r := range records {
		values[i] = r.CountPerDay
	}
	min, max := bounds(values)
	return ColorizeWith(palette, min, max, records, caption)
}

// ColorizeWith colors records with a caller-supplied palette over [min, max].
func ColorizeWith(palette Palette, min, max float64, records []types.NormalizedRecord, caption string) (types.Legend, error) {
	cmap, err := NewColormap(palette, min, max)
	if err != nil {
		return types.Legend{}, err
	}
	return colorizeWith(cmap, records, caption), nil
}

func colorizeWith(cmap *Colormap, records []types.NormalizedRecord, caption string) types.Legend {
	for i := range records {
		records[i].Color = cmap.At(records[i].CountPerDay)
	}
	return cmap.Legend(caption)
}

package render

import (
	"fmt"
	"html"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"ctaridership/pkg/types"
)

// LayerFeatures converts a layer's drawable records to point features.
// Records without coordinates are left out.
func LayerFeatures(layer *types.Layer) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range layer.Drawable() {
		f := geojson.NewFeature(orb.Point{r.Lon, r.Lat})
		f.Properties = geojson.Properties{
			"category":      string(r.Category),
			"id":            r.ID,
			"name":          r.Name,
			"count":         r.RawCount,
			"count_per_day": r.CountPerDay,
			"radius":        r.Radius,
			"color":         r.Color,
			"popup":         Popup(r),
		}
		if r.Category == types.CategoryBus {
			f.Properties["routes"] = r.Routes
			f.Properties["alightings"] = r.Alightings
		}
		fc.Append(f)
	}
	return fc
}

// RouteFeatures converts a route set to line string features.
func RouteFeatures(set *types.RouteSet) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, line := range set.Lines {
		ls := make(orb.LineString, len(line.Vertices))
		for i, v := range line.Vertices {
			ls[i] = orb.Point{v.Lon, v.Lat}
		}
		f := geojson.NewFeature(ls)
		f.Properties = geojson.Properties{
			"category": "route",
			"name":     line.Name,
			"set":      set.Title,
			"color":    set.Color,
			"weight":   set.Weight,
		}
		fc.Append(f)
	}
	return fc
}

// FeatureCollection merges every layer and route set of a run into one collection.
func FeatureCollection(result *types.RenderResult) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i := range result.Layers {
		fc.Features = append(fc.Features, LayerFeatures(&result.Layers[i]).Features...)
	}
	for i := range result.Routes {
		fc.Features = append(fc.Features, RouteFeatures(&result.Routes[i]).Features...)
	}
	return fc
}

// Popup builds the HTML shown when a marker is clicked.
func Popup(r types.NormalizedRecord) string {
	name := html.EscapeString(r.Name)
	switch r.Category {
	case types.CategoryBus:
		if name == "" {
			name = "Stop " + html.EscapeString(r.ID)
		}
		return fmt.Sprintf("<b>%s</b><br>Routes: %s<br>Boardings/day: %s<br>Alightings: %s",
			name, html.EscapeString(r.Routes), formatCount(r.CountPerDay), formatCount(r.Alightings))
	case types.CategoryTaxiPickup:
		return fmt.Sprintf("Pickups/day: %s<br>Trips: %s", formatCount(r.CountPerDay), formatCount(r.RawCount))
	case types.CategoryTaxiDropoff:
		return fmt.Sprintf("Dropoffs/day: %s<br>Trips: %s", formatCount(r.CountPerDay), formatCount(r.RawCount))
	case types.CategoryRail:
		return fmt.Sprintf("<b>%s</b><br>Avg daily rides: %s<br>Total rides: %s",
			name, formatCount(r.CountPerDay), formatCount(r.RawCount))
	default:
		return name
	}
}

package render

import (
	_ "embed"
	"fmt"
	"os"

	geojson "github.com/paulmach/go.geojson"
	"gonum.org/v1/plot/plotter"
)

//go:embed basemap.geojson
var defaultBasemap []byte

// Feature kinds recognised in a basemap's "kind" property.
const (
	KindBorder = "border"
	KindState  = "state"
	KindWater  = "water"
)

// Basemap is the static geography drawn under every frame.
type Basemap struct {
	Borders []plotter.XYs
	States  []plotter.XYs
	// Water rings are closed polygons; holes are not used.
	Water []plotter.XYs
}

// DefaultBasemap returns the embedded outline of northern Colombia.
func DefaultBasemap() (*Basemap, error) {
	return ParseBasemap(defaultBasemap)
}

// LoadBasemap reads a GeoJSON feature collection from path.
func LoadBasemap(path string) (*Basemap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read basemap: %w", err)
	}
	return ParseBasemap(data)
}

// ParseBasemap converts a GeoJSON feature collection. Features are sorted into
// layers by their "kind" property; features of any other kind are ignored.
func ParseBasemap(data []byte) (*Basemap, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse basemap: %w", err)
	}

	bm := &Basemap{}
	for i, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		kind, _ := f.Properties["kind"].(string)
		var rings [][][]float64
		switch {
		case f.Geometry.IsLineString():
			rings = [][][]float64{f.Geometry.LineString}
		case f.Geometry.IsMultiLineString():
			rings = f.Geometry.MultiLineString
		case f.Geometry.IsPolygon():
			if len(f.Geometry.Polygon) > 0 {
				rings = [][][]float64{f.Geometry.Polygon[0]}
			}
		case f.Geometry.IsMultiPolygon():
			for _, poly := range f.Geometry.MultiPolygon {
				if len(poly) > 0 {
					rings = append(rings, poly[0])
				}
			}
		default:
			continue
		}

		for _, ring := range rings {
			xys, err := toXYs(ring)
			if err != nil {
				return nil, fmt.Errorf("basemap feature %d: %w", i, err)
			}
			switch kind {
			case KindBorder:
				bm.Borders = append(bm.Borders, xys)
			case KindState:
				bm.States = append(bm.States, xys)
			case KindWater:
				bm.Water = append(bm.Water, xys)
			}
		}
	}
	return bm, nil
}

func toXYs(coords [][]float64) (plotter.XYs, error) {
	xys := make(plotter.XYs, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 {
			return nil, fmt.Errorf("position with %d coordinates", len(c))
		}
		xys = append(xys, plotter.XY{X: c[0], Y: c[1]})
	}
	return xys, nil
}

package render

import (
	"image"
	"image/color"
	"math"
	"sort"

	"gonum.org/v1/plot/palette"

	"github.com/banshee-data/radarloop/internal/radar"
)

// Extent is the fixed geographic window of every frame, in degrees.
type Extent struct {
	LonMin, LonMax float64
	LatMin, LatMax float64
}

// polarIndex finds the ray and gate that cover a point given its bearing and
// ground range from the radar.
type polarIndex struct {
	order    []int // ray indices sorted by azimuth, rays without azimuth dropped
	azimuths []float64
	halfBeam float64

	rangeKm    []float64
	halfGate   float64
	maxRangeKm float64
}

func newPolarIndex(s *radar.Sweep) *polarIndex {
	idx := &polarIndex{}
	for i, az := range s.Azimuth {
		if radar.Valid(az) {
			idx.order = append(idx.order, i)
		}
	}
	sort.Slice(idx.order, func(a, b int) bool {
		return s.Azimuth[idx.order[a]] < s.Azimuth[idx.order[b]]
	})
	idx.azimuths = make([]float64, len(idx.order))
	for k, i := range idx.order {
		idx.azimuths[k] = s.Azimuth[i]
	}
	if n := len(idx.order); n > 0 {
		// Nearest ray within three quarters of the nominal spacing.
		idx.halfBeam = 0.75 * 360 / float64(n)
	}

	idx.rangeKm = make([]float64, len(s.RangeM))
	for g, r := range s.RangeM {
		idx.rangeKm[g] = r / 1000
	}
	if n := len(idx.rangeKm); n > 1 {
		idx.halfGate = (idx.rangeKm[n-1] - idx.rangeKm[0]) / float64(n-1) / 2
	} else if n == 1 {
		idx.halfGate = idx.rangeKm[0]
	}
	if n := len(idx.rangeKm); n > 0 {
		idx.maxRangeKm = idx.rangeKm[n-1] + idx.halfGate
	}
	return idx
}

// lookup returns the (ray, gate) covering the point or ok=false.
func (p *polarIndex) lookup(km, bearing float64) (ray, gate int, ok bool) {
	if len(p.azimuths) == 0 || len(p.rangeKm) == 0 || km > p.maxRangeKm {
		return 0, 0, false
	}

	g := sort.SearchFloat64s(p.rangeKm, km)
	if g == len(p.rangeKm) || (g > 0 && km-p.rangeKm[g-1] < p.rangeKm[g]-km) {
		g--
	}
	if math.Abs(p.rangeKm[g]-km) > p.halfGate {
		return 0, 0, false
	}

	k := sort.SearchFloat64s(p.azimuths, bearing)
	best, bestDiff := -1, math.Inf(1)
	for _, c := range []int{k - 1, k, 0, len(p.azimuths) - 1} {
		if c < 0 || c >= len(p.azimuths) {
			continue
		}
		d := math.Abs(p.azimuths[c] - bearing)
		if d > 180 {
			d = 360 - d
		}
		if d < bestDiff {
			best, bestDiff = c, d
		}
	}
	if best < 0 || bestDiff > p.halfBeam {
		return 0, 0, false
	}
	return p.order[best], g, true
}

// rasterize reprojects a polar field onto a w x h lon/lat grid covering ext.
// Row 0 is the northern edge. Gates without data or outside the colour map's
// range stay transparent.
func rasterize(s *radar.Sweep, f *radar.Field, cm palette.ColorMap, ext Extent, w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	idx := newPolarIndex(s)
	dx := (ext.LonMax - ext.LonMin) / float64(w)
	dy := (ext.LatMax - ext.LatMin) / float64(h)

	for j := 0; j < h; j++ {
		lat := ext.LatMax - (float64(j)+0.5)*dy
		for i := 0; i < w; i++ {
			lon := ext.LonMin + (float64(i)+0.5)*dx
			km, bearing := distanceBearing(s.Latitude, s.Longitude, lat, lon)
			ray, gate, ok := idx.lookup(km, bearing)
			if !ok {
				continue
			}
			v := f.Data[ray][gate]
			if !radar.Valid(v) {
				continue
			}
			c, err := cm.At(v)
			if err != nil {
				continue
			}
			img.Set(i, j, color.NRGBAModel.Convert(c))
		}
	}
	return img
}

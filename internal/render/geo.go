package render

import (
	"math"

	"gonum.org/v1/plot/plotter"

	"github.com/banshee-data/radarloop/internal/units"
)

const deg = math.Pi / 180

// distanceBearing returns the great-circle distance in km and the initial
// bearing in degrees clockwise from north from (lat1, lon1) to (lat2, lon2).
func distanceBearing(lat1, lon1, lat2, lon2 float64) (km, bearing float64) {
	φ1, φ2 := lat1*deg, lat2*deg
	dφ := φ2 - φ1
	dλ := (lon2 - lon1) * deg

	a := math.Sin(dφ/2)*math.Sin(dφ/2) + math.Cos(φ1)*math.Cos(φ2)*math.Sin(dλ/2)*math.Sin(dλ/2)
	km = 2 * units.EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))

	y := math.Sin(dλ) * math.Cos(φ2)
	x := math.Cos(φ1)*math.Sin(φ2) - math.Sin(φ1)*math.Cos(φ2)*math.Cos(dλ)
	bearing = math.Mod(math.Atan2(y, x)/deg+360, 360)
	return km, bearing
}

// destination walks km along bearing from (lat, lon).
func destination(lat, lon, bearing, km float64) (lat2, lon2 float64) {
	δ := km / units.EarthRadiusKm
	θ := bearing * deg
	φ1, λ1 := lat*deg, lon*deg

	φ2 := math.Asin(math.Sin(φ1)*math.Cos(δ) + math.Cos(φ1)*math.Sin(δ)*math.Cos(θ))
	λ2 := λ1 + math.Atan2(math.Sin(θ)*math.Sin(δ)*math.Cos(φ1), math.Cos(δ)-math.Sin(φ1)*math.Sin(φ2))
	return φ2 / deg, math.Mod(λ2/deg+540, 360) - 180
}

// rangeRing is a closed polyline of n points km from the site.
func rangeRing(lat, lon, km float64, n int) plotter.XYs {
	xys := make(plotter.XYs, n+1)
	for i := 0; i < n; i++ {
		la, lo := destination(lat, lon, 360*float64(i)/float64(n), km)
		xys[i] = plotter.XY{X: lo, Y: la}
	}
	xys[n] = xys[0]
	return xys
}

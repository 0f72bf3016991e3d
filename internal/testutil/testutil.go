// Package testutil provides shared test fixtures: sized scan files and
// synthetic sweeps.
package testutil

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/radarloop/internal/fsutil"
	"github.com/banshee-data/radarloop/internal/radar"
)

// WriteSized writes a file of exactly size bytes at dir/name.
func WriteSized(t testing.TB, fsys fsutil.FileSystem, dir, name string, size int) string {
	t.Helper()
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := fsys.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// Sweep builds a 360-ray sweep at the Corozal site with a reflectivity ring
// between 60 and 120 km that reads dbz, and no data elsewhere.
func Sweep(observedAt time.Time, dbz float64) *radar.Sweep {
	const (
		rays  = 360
		gates = 240
		step  = 1000.0
	)
	s := &radar.Sweep{
		Site:       "COROZAL",
		Latitude:   9.3172,
		Longitude:  -75.2933,
		ObservedAt: observedAt.UTC(),
		Elevation:  0.5,
		Azimuth:    make([]float64, rays),
		RangeM:     make([]float64, gates),
	}
	for g := range s.RangeM {
		s.RangeM[g] = step/2 + float64(g)*step
	}
	data := make([][]float64, rays)
	for r := range data {
		s.Azimuth[r] = float64(r) + 0.5
		data[r] = make([]float64, gates)
		for g := range data[r] {
			if g >= 60 && g < 120 {
				data[r][g] = dbz
			} else {
				data[r][g] = math.NaN()
			}
		}
	}
	s.Fields = map[string]*radar.Field{
		radar.Reflectivity: {Name: radar.Reflectivity, Units: "dBZ", Data: data},
	}
	return s
}

// Package radar holds the decoded form of one volume scan and the decoder
// contract the pipeline relies on.
package radar

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/radarloop/internal/units"
)

// Field names produced by decoders.
const (
	Reflectivity             = "reflectivity"
	TotalPower               = "total_power"
	DifferentialReflectivity = "differential_reflectivity"
)

// ErrMissingField is returned when a required field is absent from a sweep.
var ErrMissingField = errors.New("missing field")

// Field is one measurement over the polar grid. Data is indexed [ray][gate];
// gates without a measurement hold NaN.
type Field struct {
	Name  string
	Units string
	Data  [][]float64
}

// Sweep is a decoded scan: one elevation of polar measurements plus the
// site metadata needed to place it on a map. It is not modified after decode.
type Sweep struct {
	Site       string
	Latitude   float64
	Longitude  float64
	ObservedAt time.Time // UTC, second resolution

	// Elevation is the fixed antenna angle in degrees.
	Elevation float64
	// Azimuth holds the centre azimuth of each ray in degrees clockwise from north.
	Azimuth []float64
	// RangeM holds the centre range of each gate in metres.
	RangeM []float64

	Fields map[string]*Field
}

// MaxRangeKm is the range of the last gate in kilometres.
func (s *Sweep) MaxRangeKm() float64 {
	if len(s.RangeM) == 0 {
		return 0
	}
	return units.MetersToKm(s.RangeM[len(s.RangeM)-1])
}

// Field returns the named field or an error wrapping ErrMissingField.
func (s *Sweep) Field(name string) (*Field, error) {
	f, ok := s.Fields[name]
	if !ok || f == nil {
		return nil, fmt.Errorf("%w: %q", ErrMissingField, name)
	}
	return f, nil
}

// Validate checks that the grid dimensions of every field agree with the
// ray and gate axes.
func (s *Sweep) Validate() error {
	if s.ObservedAt.IsZero() {
		return errors.New("sweep has no observation time")
	}
	if len(s.Azimuth) == 0 || len(s.RangeM) == 0 {
		return fmt.Errorf("sweep has an empty grid (%d rays, %d gates)", len(s.Azimuth), len(s.RangeM))
	}
	for name, f := range s.Fields {
		if len(f.Data) != len(s.Azimuth) {
			return fmt.Errorf("field %q has %d rays, want %d", name, len(f.Data), len(s.Azimuth))
		}
		for i, ray := range f.Data {
			if len(ray) != len(s.RangeM) {
				return fmt.Errorf("field %q ray %d has %d gates, want %d", name, i, len(ray), len(s.RangeM))
			}
		}
	}
	return nil
}

// Valid reports whether v is a measurement rather than a no-data marker.
func Valid(v float64) bool { return !math.IsNaN(v) }

// Decoder turns one local scan file into a Sweep.
type Decoder interface {
	Decode(path string) (*Sweep, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(path string) (*Sweep, error)

func (f DecoderFunc) Decode(path string) (*Sweep, error) { return f(path) }

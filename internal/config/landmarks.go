package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Landmark is a named place drawn on every frame.
type Landmark struct {
	Name string  `yaml:"name" validate:"required"`
	Lat  float64 `yaml:"lat" validate:"gte=-90,lte=90"`
	Lon  float64 `yaml:"lon" validate:"gte=-180,lte=180"`
}

type coords struct {
	Lat *float64 `yaml:"lat"`
	Lon *float64 `yaml:"lon"`
}

// LoadLandmarks reads a landmark file from path.
func LoadLandmarks(path string) ([]Landmark, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read landmarks: %w", err)
	}
	lms, err := ParseLandmarks(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lms, nil
}

// ParseLandmarks accepts either a list of {name, lat, lon} records or the
// mapping form "name: {lat, lon}". The result is sorted by name and every
// record is range checked; an empty file is an error.
func ParseLandmarks(data []byte) ([]Landmark, error) {
	var root yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse landmarks: no landmarks defined")
		}
		return nil, fmt.Errorf("parse landmarks: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, fmt.Errorf("parse landmarks: no landmarks defined")
	}
	doc := root.Content[0]

	var lms []Landmark
	switch doc.Kind {
	case yaml.SequenceNode:
		for _, item := range doc.Content {
			var rec struct {
				Name string   `yaml:"name"`
				Lat  *float64 `yaml:"lat"`
				Lon  *float64 `yaml:"lon"`
			}
			if err := item.Decode(&rec); err != nil {
				return nil, fmt.Errorf("parse landmarks line %d: %w", item.Line, err)
			}
			lm, err := landmark(rec.Name, coords{Lat: rec.Lat, Lon: rec.Lon}, item.Line)
			if err != nil {
				return nil, err
			}
			lms = append(lms, lm)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(doc.Content); i += 2 {
			key, val := doc.Content[i], doc.Content[i+1]
			var c coords
			if err := val.Decode(&c); err != nil {
				return nil, fmt.Errorf("parse landmarks line %d: %w", val.Line, err)
			}
			lm, err := landmark(key.Value, c, key.Line)
			if err != nil {
				return nil, err
			}
			lms = append(lms, lm)
		}
	default:
		return nil, fmt.Errorf("parse landmarks: expected a list or mapping, line %d", doc.Line)
	}

	if len(lms) == 0 {
		return nil, fmt.Errorf("parse landmarks: no landmarks defined")
	}
	sort.Slice(lms, func(i, j int) bool { return lms[i].Name < lms[j].Name })
	for i := 1; i < len(lms); i++ {
		if lms[i].Name == lms[i-1].Name {
			return nil, fmt.Errorf("parse landmarks: duplicate landmark %q", lms[i].Name)
		}
	}
	return lms, nil
}

func landmark(name string, c coords, line int) (Landmark, error) {
	if c.Lat == nil || c.Lon == nil {
		return Landmark{}, fmt.Errorf("landmark %q (line %d): lat and lon are required", name, line)
	}
	lm := Landmark{Name: name, Lat: *c.Lat, Lon: *c.Lon}
	if err := validate.Struct(lm); err != nil {
		return Landmark{}, fmt.Errorf("landmark %q (line %d): %w", name, line, err)
	}
	return lm, nil
}

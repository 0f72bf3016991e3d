// Package config loads the site configuration and the landmark file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/banshee-data/radarloop/internal/units"
)

// Failure policies for a scan that cannot be decoded or rendered.
const (
	PolicyFailFast = "fail-fast"
	PolicySkip     = "skip"
)

// EnvPrefix prefixes environment overrides, e.g. RADARLOOP_SITE.
const EnvPrefix = "RADARLOOP"

// Config is everything one pipeline run needs to know about its site.
type Config struct {
	Bucket string `mapstructure:"bucket" validate:"required"`
	Region string `mapstructure:"region" validate:"required"`
	Root   string `mapstructure:"root" validate:"required"`
	Site   string `mapstructure:"site" validate:"required"`
	// Title is the radar name shown on frames; empty means Site.
	Title string `mapstructure:"title"`

	ThresholdBytes int64 `mapstructure:"threshold_bytes" validate:"gte=0"`
	// RemoteLimit is N, the number of most recent scans synced.
	RemoteLimit int `mapstructure:"remote_limit" validate:"gte=1"`
	// RenderLimit is M, the number of most recent local scans rendered.
	RenderLimit int `mapstructure:"render_limit" validate:"gte=1,ltefield=RemoteLimit"`

	Field string `mapstructure:"field" validate:"required"`
	// SweepIndex selects the elevation rendered from each volume; 0 is the lowest.
	SweepIndex int     `mapstructure:"sweep_index" validate:"gte=0"`
	VMin       float64 `mapstructure:"vmin"`
	VMax       float64 `mapstructure:"vmax" validate:"gtfield=VMin"`

	// UTCOffsetHours is the single site offset used for titles and frame names.
	UTCOffsetHours float64 `mapstructure:"utc_offset_hours" validate:"gte=-12,lte=14"`

	WorkDir   string `mapstructure:"work_dir" validate:"required"`
	OutputDir string `mapstructure:"output_dir" validate:"required"`
	Landmarks string `mapstructure:"landmarks" validate:"required"`

	FrameDuration time.Duration `mapstructure:"frame_duration"`
	Loop          bool          `mapstructure:"loop"`

	Policy    string `mapstructure:"policy" validate:"oneof=fail-fast skip"`
	MinFrames int    `mapstructure:"min_frames" validate:"gte=1"`
	Workers   int    `mapstructure:"workers" validate:"gte=1,lte=64"`

	Render RenderConfig `mapstructure:"render"`
}

// RenderConfig controls the frame canvas.
type RenderConfig struct {
	WidthIn       float64 `mapstructure:"width_in" validate:"gt=0"`
	HeightIn      float64 `mapstructure:"height_in" validate:"gt=0"`
	DPI           int     `mapstructure:"dpi" validate:"gte=10,lte=1200"`
	LonMin        float64 `mapstructure:"lon_min" validate:"gte=-180,lte=180"`
	LonMax        float64 `mapstructure:"lon_max" validate:"gte=-180,lte=180,gtfield=LonMin"`
	LatMin        float64 `mapstructure:"lat_min" validate:"gte=-90,lte=90"`
	LatMax        float64 `mapstructure:"lat_max" validate:"gte=-90,lte=90,gtfield=LatMin"`
	RingKm        float64 `mapstructure:"ring_km" validate:"gt=0"`
	RingPoints    int     `mapstructure:"ring_points" validate:"gte=3"`
	ColorbarLabel string  `mapstructure:"colorbar_label"`
}

// Defaults reproduces the Corozal deployment.
func Defaults() Config {
	return Config{
		Bucket:         "s3-radaresideam",
		Region:         "us-east-1",
		Root:           "l2_data",
		Site:           "Corozal",
		ThresholdBytes: 400000,
		RemoteLimit:    40,
		RenderLimit:    37,
		Field:          "reflectivity",
		VMin:           0,
		VMax:           80,
		UTCOffsetHours: -5,
		WorkDir:        "Corozal",
		OutputDir:      ".",
		Landmarks:      "locations.yaml",
		FrameDuration:  200 * time.Millisecond,
		Loop:           true,
		Policy:         PolicyFailFast,
		MinFrames:      1,
		Workers:        1,
		Render: RenderConfig{
			WidthIn:       15,
			HeightIn:      13,
			DPI:           200,
			LonMin:        -79,
			LonMax:        -72,
			LatMin:        6,
			LatMax:        12,
			RingKm:        300,
			RingPoints:    1000,
			ColorbarLabel: "Factor de Reflectividad (dBZ)",
		},
	}
}

var validate = validator.New()

// Load reads path (YAML) over the defaults, then applies RADARLOOP_*
// environment overrides. A .env file in the working directory is loaded
// first when present. An empty path means defaults plus environment.
func Load(path string) (*Config, error) {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, Defaults())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("bucket", d.Bucket)
	v.SetDefault("region", d.Region)
	v.SetDefault("root", d.Root)
	v.SetDefault("site", d.Site)
	v.SetDefault("title", d.Title)
	v.SetDefault("threshold_bytes", d.ThresholdBytes)
	v.SetDefault("remote_limit", d.RemoteLimit)
	v.SetDefault("render_limit", d.RenderLimit)
	v.SetDefault("field", d.Field)
	v.SetDefault("sweep_index", d.SweepIndex)
	v.SetDefault("vmin", d.VMin)
	v.SetDefault("vmax", d.VMax)
	v.SetDefault("utc_offset_hours", d.UTCOffsetHours)
	v.SetDefault("work_dir", d.WorkDir)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("landmarks", d.Landmarks)
	v.SetDefault("frame_duration", d.FrameDuration)
	v.SetDefault("loop", d.Loop)
	v.SetDefault("policy", d.Policy)
	v.SetDefault("min_frames", d.MinFrames)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("render.width_in", d.Render.WidthIn)
	v.SetDefault("render.height_in", d.Render.HeightIn)
	v.SetDefault("render.dpi", d.Render.DPI)
	v.SetDefault("render.lon_min", d.Render.LonMin)
	v.SetDefault("render.lon_max", d.Render.LonMax)
	v.SetDefault("render.lat_min", d.Render.LatMin)
	v.SetDefault("render.lat_max", d.Render.LatMax)
	v.SetDefault("render.ring_km", d.Render.RingKm)
	v.SetDefault("render.ring_points", d.Render.RingPoints)
	v.SetDefault("render.colorbar_label", d.Render.ColorbarLabel)
}

// Validate checks field ranges and the relations between fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.FrameDuration <= 0 {
		return fmt.Errorf("invalid config: frame_duration must be positive, got %s", c.FrameDuration)
	}
	if c.FrameDuration%(10*time.Millisecond) != 0 {
		return fmt.Errorf("invalid config: frame_duration must be a multiple of 10ms, got %s", c.FrameDuration)
	}
	return nil
}

// SiteTitle is the radar name shown in frame titles.
func (c *Config) SiteTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return c.Site
}

// Offset is the site's fixed UTC offset.
func (c *Config) Offset() units.Offset {
	return units.OffsetHours(c.UTCOffsetHours)
}

// SkipFailures reports whether single-scan failures are tolerated.
func (c *Config) SkipFailures() bool { return c.Policy == PolicySkip }

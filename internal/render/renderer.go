// Package render draws one decoded sweep onto a fixed geographic frame and
// writes it as a PNG named after the local observation time.
package render

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"path/filepath"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/radarloop/internal/config"
	"github.com/banshee-data/radarloop/internal/fsutil"
	"github.com/banshee-data/radarloop/internal/radar"
	"github.com/banshee-data/radarloop/internal/units"
)

// FrameExt is the extension of every rendered frame.
const FrameExt = ".png"

// FramePattern matches rendered frames (units.FrameLayout stems) in an
// output directory and nothing else.
const FramePattern = "[0-9][0-9][0-9][0-9]_[0-9][0-9]_[0-9][0-9]_[0-9][0-9]_[0-9][0-9]_[0-9][0-9]" + FrameExt

// ErrNoLandmarks is returned when a frame would be drawn without landmarks.
var ErrNoLandmarks = errors.New("render: no landmarks")

// Frame is one rendered still image.
type Frame struct {
	TimestampLocal time.Time
	ImagePath      string
}

// Options fixes everything about a frame except the sweep drawn on it.
type Options struct {
	Site   string
	Field  string
	VMin   float64
	VMax   float64
	Offset units.Offset

	Landmarks []config.Landmark
	Basemap   *Basemap
	Extent    Extent

	Width, Height vg.Length
	DPI           int
	// RasterWidth and RasterHeight size the reprojected data layer;
	// zero derives them from the extent at 0.01 degrees per pixel.
	RasterWidth, RasterHeight int

	RingKm        float64
	RingPoints    int
	ColorbarLabel string

	OutputDir string
}

// OptionsFromConfig builds Options for a site configuration.
func OptionsFromConfig(cfg *config.Config, landmarks []config.Landmark, bm *Basemap) Options {
	r := cfg.Render
	return Options{
		Site:          cfg.SiteTitle(),
		Field:         cfg.Field,
		VMin:          cfg.VMin,
		VMax:          cfg.VMax,
		Offset:        cfg.Offset(),
		Landmarks:     landmarks,
		Basemap:       bm,
		Extent:        Extent{LonMin: r.LonMin, LonMax: r.LonMax, LatMin: r.LatMin, LatMax: r.LatMax},
		Width:         vg.Length(r.WidthIn) * vg.Inch,
		Height:        vg.Length(r.HeightIn) * vg.Inch,
		DPI:           r.DPI,
		RingKm:        r.RingKm,
		RingPoints:    r.RingPoints,
		ColorbarLabel: r.ColorbarLabel,
		OutputDir:     cfg.OutputDir,
	}
}

// Renderer draws frames with fixed Options.
type Renderer struct {
	opts Options
	fs   fsutil.FileSystem
}

// New returns a Renderer writing through fsys (the OS filesystem when nil).
func New(opts Options, fsys fsutil.FileSystem) *Renderer {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	if opts.Basemap == nil {
		opts.Basemap = &Basemap{}
	}
	if opts.RasterWidth <= 0 || opts.RasterHeight <= 0 {
		opts.RasterWidth = int(math.Round((opts.Extent.LonMax - opts.Extent.LonMin) / 0.01))
		opts.RasterHeight = int(math.Round((opts.Extent.LatMax - opts.Extent.LatMin) / 0.01))
	}
	return &Renderer{opts: opts, fs: fsys}
}

// FramePath is where the frame observed at utc is written.
func (r *Renderer) FramePath(utc time.Time) string {
	return filepath.Join(r.opts.OutputDir, units.FrameName(r.opts.Offset.Local(utc))+FrameExt)
}

// Title is the frame title for a sweep.
func (r *Renderer) Title(s *radar.Sweep) string {
	return fmt.Sprintf("Radar %s - %s", r.opts.Site, r.opts.Offset.TitleStamp(s.ObservedAt))
}

// Render draws s and writes exactly one PNG.
func (r *Renderer) Render(s *radar.Sweep) (Frame, error) {
	o := r.opts
	if len(o.Landmarks) == 0 {
		return Frame{}, ErrNoLandmarks
	}
	field, err := s.Field(o.Field)
	if err != nil {
		return Frame{}, err
	}

	cm := NWSRef(o.VMin, o.VMax)
	p, err := r.mapPlot(s, field, cm)
	if err != nil {
		return Frame{}, err
	}
	cb := r.colorBarPlot(cm)

	c := vgimg.NewWith(vgimg.UseWH(o.Width, o.Height), vgimg.UseDPI(o.DPI))
	dc := draw.New(c)
	cbWidth := o.Width * 0.12
	p.Draw(draw.Crop(dc, 0, -cbWidth, 0, 0))
	cb.Draw(draw.Crop(dc, o.Width-cbWidth, 0, o.Height*0.1, -o.Height*0.1))

	frame := Frame{
		TimestampLocal: o.Offset.Local(s.ObservedAt),
		ImagePath:      r.FramePath(s.ObservedAt),
	}
	w, err := r.fs.Create(frame.ImagePath)
	if err != nil {
		return Frame{}, fmt.Errorf("create frame: %w", err)
	}
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(w); err != nil {
		_ = w.Close()
		_ = r.fs.Remove(frame.ImagePath)
		return Frame{}, fmt.Errorf("encode frame: %w", err)
	}
	if err := w.Close(); err != nil {
		return Frame{}, fmt.Errorf("close frame: %w", err)
	}
	return frame, nil
}

func (r *Renderer) mapPlot(s *radar.Sweep, field *radar.Field, cm *StepColorMap) (*plot.Plot, error) {
	o := r.opts
	ext := o.Extent

	p := plot.New()
	p.Title.Text = r.Title(s)
	p.Title.TextStyle.Font.Size = vg.Points(25)
	p.X.Padding, p.Y.Padding = 0, 0
	p.X.Tick.Marker = degreeTicks{hemis: [2]string{"W", "E"}}
	p.Y.Tick.Marker = degreeTicks{hemis: [2]string{"S", "N"}}

	// Back to front: outlines, water, grid, data, landmarks, ring.
	layers, err := basemapLayers(o.Basemap)
	if err != nil {
		return nil, err
	}
	p.Add(layers...)

	grid := plotter.NewGrid()
	grid.Vertical.Color = color.Gray{Y: 0x80}
	grid.Vertical.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	grid.Horizontal.Color = grid.Vertical.Color
	grid.Horizontal.Dashes = grid.Vertical.Dashes
	p.Add(grid)

	img := rasterize(s, field, cm, ext, o.RasterWidth, o.RasterHeight)
	p.Add(plotter.NewImage(img, ext.LonMin, ext.LatMin, ext.LonMax, ext.LatMax))

	marks, labels, err := landmarkLayers(o.Landmarks, ext)
	if err != nil {
		return nil, err
	}
	if marks != nil {
		p.Add(marks, labels)
	}

	site, err := plotter.NewScatter(plotter.XYs{{X: s.Longitude, Y: s.Latitude}})
	if err != nil {
		return nil, fmt.Errorf("site marker: %w", err)
	}
	site.GlyphStyle.Shape = draw.TriangleGlyph{}
	site.GlyphStyle.Color = color.Black
	site.GlyphStyle.Radius = vg.Points(4)
	p.Add(site)

	ring, err := plotter.NewLine(rangeRing(s.Latitude, s.Longitude, o.RingKm, o.RingPoints))
	if err != nil {
		return nil, fmt.Errorf("range ring: %w", err)
	}
	ring.Color = color.Black
	ring.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}
	p.Add(ring)

	// Fix the window after Add, which grows axes to fit every layer.
	p.X.Min, p.X.Max = ext.LonMin, ext.LonMax
	p.Y.Min, p.Y.Max = ext.LatMin, ext.LatMax
	return p, nil
}

// landmarkLayers builds the glyph and label layers for landmarks inside ext.
// Labels sit slightly north of their marker.
// basemapLayers returns the boundary outlines followed by the water shading.
func basemapLayers(bm *Basemap) ([]plot.Plotter, error) {
	var layers []plot.Plotter
	for _, layer := range []struct {
		lines []plotter.XYs
		color color.Color
	}{
		{bm.States, color.Gray{Y: 0x60}},
		{bm.Borders, color.Black},
	} {
		for _, xys := range layer.lines {
			l, err := plotter.NewLine(xys)
			if err != nil {
				return nil, fmt.Errorf("outline layer: %w", err)
			}
			l.Color = layer.color
			l.Width = vg.Points(0.5)
			layers = append(layers, l)
		}
	}
	for _, ring := range bm.Water {
		poly, err := plotter.NewPolygon(ring)
		if err != nil {
			return nil, fmt.Errorf("water layer: %w", err)
		}
		poly.Color = color.Gray{Y: 0xd3}
		poly.LineStyle.Width = 0
		layers = append(layers, poly)
	}
	return layers, nil
}

func landmarkLayers(lms []config.Landmark, ext Extent) (*plotter.Scatter, *plotter.Labels, error) {
	var xys plotter.XYs
	var names []string
	for _, lm := range lms {
		if lm.Lon < ext.LonMin || lm.Lon > ext.LonMax || lm.Lat < ext.LatMin || lm.Lat > ext.LatMax {
			continue
		}
		xys = append(xys, plotter.XY{X: lm.Lon, Y: lm.Lat})
		names = append(names, lm.Name)
	}
	if len(xys) == 0 {
		return nil, nil, nil
	}

	sc, err := plotter.NewScatter(xys)
	if err != nil {
		return nil, nil, fmt.Errorf("landmarks: %w", err)
	}
	sc.GlyphStyle.Shape = draw.CrossGlyph{}
	sc.GlyphStyle.Color = color.Black
	sc.GlyphStyle.Radius = vg.Points(2.5)

	labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: names})
	if err != nil {
		return nil, nil, fmt.Errorf("landmark labels: %w", err)
	}
	for i := range labels.TextStyle {
		labels.TextStyle[i].XAlign = text.XCenter
		labels.TextStyle[i].Font.Size = vg.Points(9)
	}
	labels.Offset = vg.Point{Y: vg.Points(4)}
	return sc, labels, nil
}

func (r *Renderer) colorBarPlot(cm *StepColorMap) *plot.Plot {
	p := plot.New()
	p.HideX()
	p.Y.Label.Text = r.opts.ColorbarLabel
	p.Add(&plotter.ColorBar{ColorMap: cm, Vertical: true, Colors: len(nwsSteps) * 16})
	p.Y.Min, p.Y.Max = cm.Min(), cm.Max()
	return p
}

// degreeTicks labels whole degrees with a hemisphere suffix, e.g. "75°W".
type degreeTicks struct {
	hemis [2]string // negative, positive
}

func (d degreeTicks) Ticks(min, max float64) []plot.Tick {
	var ticks []plot.Tick
	for v := math.Ceil(min); v <= max; v++ {
		label := fmt.Sprintf("%g°", math.Abs(v))
		switch {
		case v < 0:
			label += d.hemis[0]
		case v > 0:
			label += d.hemis[1]
		}
		ticks = append(ticks, plot.Tick{Value: v, Label: label})
	}
	return ticks
}

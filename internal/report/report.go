// Package report writes an HTML chart of a day's remote catalog: every scan
// object's size against the significance threshold, with the selected scans
// highlighted.
package report

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/radarloop/internal/catalog"
	"github.com/banshee-data/radarloop/internal/fsutil"
)

const (
	selectedColor = "#2f7ed8"
	keptColor     = "#9fc5e8"
	rejectedColor = "#d9534f"
)

// CatalogReport renders catalog charts for one site into OutputDir.
type CatalogReport struct {
	Site           string
	ThresholdBytes int64
	OutputDir      string
	fs             fsutil.FileSystem
}

// New returns a CatalogReport writing through fsys (the OS filesystem when nil).
func New(site string, thresholdBytes int64, outputDir string, fsys fsutil.FileSystem) *CatalogReport {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &CatalogReport{Site: site, ThresholdBytes: thresholdBytes, OutputDir: outputDir, fs: fsys}
}

// Path is the report file for the configured site.
func (r *CatalogReport) Path() string {
	return filepath.Join(r.OutputDir, r.Site+"_catalog.html")
}

// Report writes the chart for date's listing. Bars are coloured by outcome:
// selected for sync, significant but older than the selection, or rejected
// by the threshold.
func (r *CatalogReport) Report(date time.Time, entries []catalog.Entry, selected []string) error {
	sorted := append([]catalog.Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	chosen := make(map[string]bool, len(selected))
	for _, k := range selected {
		chosen[k] = true
	}

	x := make([]string, len(sorted))
	y := make([]opts.BarData, len(sorted))
	for i, e := range sorted {
		color := rejectedColor
		switch {
		case chosen[e.Name]:
			color = selectedColor
		case e.SizeBytes > r.ThresholdBytes:
			color = keptColor
		}
		x[i] = catalog.BaseName(e.Name)
		y[i] = opts.BarData{
			Name:      x[i],
			Value:     kilobytes(e.SizeBytes),
			ItemStyle: &opts.ItemStyle{Color: color},
		}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Radar catalog " + r.Site, Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Radar %s catalog %s", r.Site, date.UTC().Format(catalog.DateLayout)),
			Subtitle: fmt.Sprintf("objects=%d selected=%d threshold=%d bytes", len(sorted), len(selected), r.ThresholdBytes),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "scan", AxisLabel: &opts.AxisLabel{Rotate: 60}}),
		charts.WithYAxisOpts(opts.YAxis{Name: "size (KB)"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)
	bar.SetXAxis(x).
		AddSeries("size", y,
			charts.WithMarkLineNameYAxisItemOpts(opts.MarkLineNameYAxisItem{
				Name:  "threshold",
				YAxis: kilobytes(r.ThresholdBytes),
			}),
		)

	page := components.NewPage()
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("render catalog report: %w", err)
	}
	if err := r.fs.WriteFile(r.Path(), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write catalog report: %w", err)
	}
	return nil
}

func kilobytes(n int64) float64 {
	return float64(n) / 1000
}

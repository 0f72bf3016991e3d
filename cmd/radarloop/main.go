// Command radarloop builds a time-lapse GIF of the latest weather-radar scans
// for one site.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/radarloop/internal/catalog"
	"github.com/banshee-data/radarloop/internal/config"
	"github.com/banshee-data/radarloop/internal/monitoring"
	"github.com/banshee-data/radarloop/internal/pipeline"
	"github.com/banshee-data/radarloop/internal/version"
)

var (
	configPath    = flag.String("config", "", "Site config file (YAML); empty uses defaults and RADARLOOP_* environment")
	landmarksPath = flag.String("landmarks", "", "Landmark file, overriding the config")
	dateFlag      = flag.String("date", "", "UTC scan date as YYYY/MM/DD (default today)")
	workers       = flag.Int("workers", 0, "Concurrent transfers and renders, overriding the config")
	policy        = flag.String("policy", "", "Failure policy fail-fast or skip, overriding the config")
	dbPath        = flag.String("db", "", "sqlite run ledger path (disabled when empty)")
	metricsFile   = flag.String("metrics-file", "", "Write Prometheus metrics in textfile format after each run")
	traceSpans    = flag.Bool("trace", false, "Print stage trace spans to stderr")
	reportFlag    = flag.Bool("report", false, "Write an HTML catalog report next to the animation")
	every         = flag.Duration("every", 0, "Run repeatedly at this interval instead of once")
	debug         = flag.Bool("debug", false, "Development logging")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

// cliOptions are the parsed command line flags.
type cliOptions struct {
	ConfigPath    string
	LandmarksPath string
	Date          string
	Workers       int
	Policy        string
	DBPath        string
	MetricsFile   string
	Trace         bool
	Report        bool
	Every         time.Duration
}

func optionsFromFlags() cliOptions {
	return cliOptions{
		ConfigPath:    *configPath,
		LandmarksPath: *landmarksPath,
		Date:          *dateFlag,
		Workers:       *workers,
		Policy:        *policy,
		DBPath:        *dbPath,
		MetricsFile:   *metricsFile,
		Trace:         *traceSpans,
		Report:        *reportFlag,
		Every:         *every,
	}
}

func main() {
	flag.Parse()
	os.Exit(realMain())
}

func realMain() int {
	if *showVersion {
		fmt.Println(version.String())
		return 0
	}
	if err := monitoring.Init(*debug); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer monitoring.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, optionsFromFlags(), os.Stdout, os.Stderr)
}

// run executes the command and returns the process exit status.
func run(ctx context.Context, opts cliOptions, stdout, stderr io.Writer) int {
	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	date, err := parseDate(opts.Date)
	if err != nil {
		fmt.Fprintf(stderr, "date: %v\n", err)
		return 1
	}

	a, err := newApp(ctx, cfg, opts, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "setup: %v\n", err)
		return 1
	}
	defer a.Close()

	if opts.Every > 0 {
		if err := schedule(ctx, opts.Every, func() { a.runOnce(ctx, date, stdout, stderr) }); err != nil {
			fmt.Fprintf(stderr, "schedule: %v\n", err)
			return 1
		}
		return 0
	}
	return a.runOnce(ctx, date, stdout, stderr)
}

// loadConfig loads the site config and applies flag overrides.
func loadConfig(opts cliOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.LandmarksPath != "" {
		cfg.Landmarks = opts.LandmarksPath
	}
	if opts.Workers > 0 {
		cfg.Workers = opts.Workers
	}
	if opts.Policy != "" {
		cfg.Policy = opts.Policy
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseDate reads a YYYY/MM/DD UTC date. Empty means "today" (zero time).
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.ParseInLocation(catalog.DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("want YYYY/MM/DD, got %q", s)
	}
	return d, nil
}

// printResult prints the outcome of a run and returns the exit status: the
// animation path and 0 on success, the error kind and identifier and 1
// otherwise. A cleanup failure is reported but does not change the status.
func printResult(res *pipeline.Result, err error, stdout, stderr io.Writer) int {
	if err != nil {
		var pe *pipeline.Error
		if errors.As(err, &pe) {
			fmt.Fprintf(stderr, "%s %s: %v\n", pe.Kind, pe.ID, pe.Err)
		} else {
			fmt.Fprintf(stderr, "error: %v\n", err)
		}
		return 1
	}
	if res.CleanupErr != nil {
		fmt.Fprintf(stderr, "warning: %v\n", res.CleanupErr)
	}
	fmt.Fprintln(stdout, res.Animation)
	return 0
}

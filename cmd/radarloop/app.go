package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/radarloop/internal/animate"
	"github.com/banshee-data/radarloop/internal/config"
	"github.com/banshee-data/radarloop/internal/db"
	"github.com/banshee-data/radarloop/internal/fsutil"
	"github.com/banshee-data/radarloop/internal/monitoring"
	"github.com/banshee-data/radarloop/internal/pipeline"
	"github.com/banshee-data/radarloop/internal/render"
	"github.com/banshee-data/radarloop/internal/report"
	"github.com/banshee-data/radarloop/internal/s3store"
	"github.com/banshee-data/radarloop/internal/scansync"
	"github.com/banshee-data/radarloop/internal/sigmet"
	"github.com/banshee-data/radarloop/internal/timeutil"
)

// app is a fully wired pipeline plus the observability around it.
type app struct {
	pipeline    *pipeline.Pipeline
	metrics     *monitoring.Metrics
	metricsFile string
	ledger      *db.DB
	shutdown    func(context.Context) error
}

func newApp(ctx context.Context, cfg *config.Config, opts cliOptions, traceOut io.Writer) (_ *app, err error) {
	landmarks, err := config.LoadLandmarks(cfg.Landmarks)
	if err != nil {
		return nil, err
	}
	bm, err := render.DefaultBasemap()
	if err != nil {
		return nil, err
	}
	fsys := fsutil.OSFileSystem{}
	if err := fsys.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	client, err := s3store.NewAnonymousClient(ctx, cfg.Region)
	if err != nil {
		return nil, err
	}
	store := s3store.New(client, cfg.Bucket, fsys)
	syncer := scansync.New(store, fsys)
	syncer.Workers = cfg.Workers

	clock := timeutil.RealClock{}
	a := &app{metricsFile: opts.MetricsFile}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.metrics, err = monitoring.NewMetrics(cfg.Site, clock)
	if err != nil {
		return nil, err
	}
	observers := monitoring.Observers{monitoring.NewTimer(clock), a.metrics}
	if opts.Trace {
		tp, shutdown, err := monitoring.InitStdoutTracing(traceOut)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.shutdown = shutdown
		observers = append(observers, monitoring.NewTracer(tp))
	}

	deps := pipeline.Deps{
		Lister:    store,
		Syncer:    syncer,
		Decoder:   sigmet.Decoder{FS: fsys, SweepIndex: cfg.SweepIndex},
		Renderer:  render.New(render.OptionsFromConfig(cfg, landmarks, bm), fsys),
		Assembler: animate.New(fsys),
		FS:        fsys,
		Clock:     clock,
		Observer:  observers,
	}
	if opts.DBPath != "" {
		a.ledger, err = db.Open(opts.DBPath)
		if err != nil {
			return nil, err
		}
		deps.Ledger = db.NewLedger(a.ledger, clock)
	}
	if opts.Report {
		deps.Reporter = report.New(cfg.Site, cfg.ThresholdBytes, cfg.OutputDir, fsys)
	}

	a.pipeline = pipeline.New(pipeline.OptionsFromConfig(cfg), deps)
	return a, nil
}

// runOnce runs the pipeline for date and returns the exit status.
func (a *app) runOnce(ctx context.Context, date time.Time, stdout, stderr io.Writer) int {
	res, err := a.pipeline.Run(ctx, date)
	code := printResult(res, err, stdout, stderr)
	if a.metricsFile != "" {
		if werr := a.metrics.WriteTextfile(a.metricsFile); werr != nil {
			monitoring.Warnw("metrics export failed", "path", a.metricsFile, "error", werr)
		}
	}
	return code
}

func (a *app) Close() {
	monitoring.ShutdownWithTimeout(a.shutdown)
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			monitoring.Warnw("ledger close failed", "error", err)
		}
	}
}

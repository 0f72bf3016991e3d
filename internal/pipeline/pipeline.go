// Package pipeline drives one radar loop run: list the day's scans, sync the
// latest into a working directory, decode and render them, assemble the GIF
// and clean up.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/radarloop/internal/catalog"
	"github.com/banshee-data/radarloop/internal/config"
	"github.com/banshee-data/radarloop/internal/fsutil"
	"github.com/banshee-data/radarloop/internal/monitoring"
	"github.com/banshee-data/radarloop/internal/radar"
	"github.com/banshee-data/radarloop/internal/render"
	"github.com/banshee-data/radarloop/internal/scansync"
	"github.com/banshee-data/radarloop/internal/timeutil"
)

// State is a step of the run state machine.
type State string

const (
	Listing           State = "LISTING"
	Syncing           State = "SYNCING"
	DecodingRendering State = "DECODING_RENDERING"
	Assembling        State = "ASSEMBLING"
	CleaningUp        State = "CLEANUP"
	Done              State = "DONE"
	Failed            State = "FAILED"
)

// Lister queries the remote catalog under a prefix, fully drained.
type Lister interface {
	List(ctx context.Context, prefix string) ([]catalog.Entry, error)
}

// Syncer materialises keys in a fresh working directory.
type Syncer interface {
	Sync(ctx context.Context, keys []string, workDir string) error
}

// Renderer draws one sweep to one frame file.
type Renderer interface {
	Render(s *radar.Sweep) (render.Frame, error)
}

// Assembler writes the animation from frame paths in the given order.
type Assembler interface {
	Assemble(framePaths []string, output string, frameDuration time.Duration, loop bool) error
}

// Ledger persists run history. Failures to record are logged, never fatal.
type Ledger interface {
	StartRun(ctx context.Context, site, scanDate, state string) (string, error)
	SetState(ctx context.Context, runID, state string) error
	RecordFrame(ctx context.Context, runID, scanKey string, timestampLocal time.Time, imagePath string) error
	FinishRun(ctx context.Context, runID, state string, frames int, animationPath, errKind, errMsg string) error
}

// CatalogReporter receives the remote listing and the selection made from it.
type CatalogReporter interface {
	Report(date time.Time, entries []catalog.Entry, selected []string) error
}

// Options are the run parameters, normally taken from config.Config.
type Options struct {
	Root           string
	Site           string
	ThresholdBytes int64
	RemoteLimit    int
	RenderLimit    int
	WorkDir        string
	OutputDir      string
	FrameDuration  time.Duration
	Loop           bool
	SkipFailures   bool
	MinFrames      int
	Workers        int
}

// OptionsFromConfig copies the run parameters out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Root:           cfg.Root,
		Site:           cfg.Site,
		ThresholdBytes: cfg.ThresholdBytes,
		RemoteLimit:    cfg.RemoteLimit,
		RenderLimit:    cfg.RenderLimit,
		WorkDir:        cfg.WorkDir,
		OutputDir:      cfg.OutputDir,
		FrameDuration:  cfg.FrameDuration,
		Loop:           cfg.Loop,
		SkipFailures:   cfg.SkipFailures(),
		MinFrames:      cfg.MinFrames,
		Workers:        cfg.Workers,
	}
}

// Deps are the collaborators of a run. Ledger and Reporter are optional.
type Deps struct {
	Lister    Lister
	Syncer    Syncer
	Decoder   radar.Decoder
	Renderer  Renderer
	Assembler Assembler
	FS        fsutil.FileSystem
	Clock     timeutil.Clock
	Observer  monitoring.Observer
	Ledger    Ledger
	Reporter  CatalogReporter
}

// Skipped is a scan omitted under the skip policy.
type Skipped struct {
	Path string
	Err  error
}

// Result describes a finished run, successful or not.
type Result struct {
	RunID string
	State State
	// FailedIn is the state a failed run was in when it failed.
	FailedIn  State
	Date      time.Time
	Listed    int
	Selected  []string
	Frames    []render.Frame
	Skipped   []Skipped
	Animation string
	// CleanupErr is set when the run succeeded but cleanup did not.
	CleanupErr error
}

// Pipeline runs the radar loop for one site.
type Pipeline struct {
	opts Options
	deps Deps
}

// New returns a Pipeline. Missing FS, Clock and Observer default to the OS
// filesystem, the system clock and a no-op observer.
func New(opts Options, deps Deps) *Pipeline {
	if deps.FS == nil {
		deps.FS = fsutil.OSFileSystem{}
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	if deps.Observer == nil {
		deps.Observer = monitoring.Nop{}
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MinFrames < 1 {
		opts.MinFrames = 1
	}
	return &Pipeline{opts: opts, deps: deps}
}

// AnimationPath is where the run writes its GIF.
func (p *Pipeline) AnimationPath() string {
	return filepath.Join(p.opts.OutputDir, p.opts.Site+".gif")
}

// scanFrame ties a rendered frame back to its scan.
type scanFrame struct {
	path  string
	frame render.Frame
}

// Run executes one full run for date (the current UTC date when zero).
// Any failure before cleanup ends the run in FAILED with a *Error and leaves
// the working directory and frames in place. A cleanup failure is reported in
// Result.CleanupErr and the run still ends in DONE.
func (p *Pipeline) Run(ctx context.Context, date time.Time) (*Result, error) {
	if date.IsZero() {
		date = timeutil.UTCDay(p.deps.Clock)
	}
	date = date.UTC()
	res := &Result{Date: date, State: Listing}
	obs := p.deps.Observer

	runCtx := obs.Begin(ctx, monitoring.StageRun)
	p.startLedger(runCtx, res)

	err := p.run(runCtx, res)
	if err != nil {
		res.State = Failed
		var pe *Error
		if errors.As(err, &pe) {
			monitoring.Errorw("run failed", "run", res.RunID, "kind", pe.Kind, "id", pe.ID, "error", pe.Err)
		} else {
			monitoring.Errorw("run failed", "run", res.RunID, "error", err)
		}
	} else {
		res.State = Done
		monitoring.Infow("run finished", "run", res.RunID, "animation", res.Animation, "frames", len(res.Frames))
	}
	obs.End(runCtx, monitoring.StageRun, err)
	p.finishLedger(runCtx, res, err)
	return res, err
}

func (p *Pipeline) run(ctx context.Context, res *Result) error {
	selected, err := p.stage(ctx, res, Listing, func(ctx context.Context) ([]string, error) {
		return p.list(ctx, res)
	})
	if err != nil {
		return err
	}
	res.Selected = selected

	if _, err := p.stage(ctx, res, Syncing, func(ctx context.Context) ([]string, error) {
		return nil, p.sync(ctx, selected)
	}); err != nil {
		return err
	}

	var frames []scanFrame
	if _, err := p.stage(ctx, res, DecodingRendering, func(ctx context.Context) ([]string, error) {
		frames, err = p.decodeRender(ctx, res)
		return nil, err
	}); err != nil {
		return err
	}

	if _, err := p.stage(ctx, res, Assembling, func(ctx context.Context) ([]string, error) {
		return nil, p.assemble(ctx, res, frames)
	}); err != nil {
		return err
	}

	_, cerr := p.stage(ctx, res, CleaningUp, func(context.Context) ([]string, error) {
		return nil, Cleanup(p.deps.FS, p.opts.WorkDir, p.opts.OutputDir)
	})
	if cerr != nil {
		res.CleanupErr = cerr
		monitoring.Warnw("cleanup failed", "run", res.RunID, "error", cerr)
	}
	return nil
}

// stage moves the run into state and reports it to the observer and ledger.
func (p *Pipeline) stage(ctx context.Context, res *Result, state State, fn func(context.Context) ([]string, error)) ([]string, error) {
	res.State = state
	if p.deps.Ledger != nil && res.RunID != "" {
		if err := p.deps.Ledger.SetState(ctx, res.RunID, string(state)); err != nil {
			monitoring.Warnw("ledger update failed", "run", res.RunID, "state", state, "error", err)
		}
	}
	sctx := p.deps.Observer.Begin(ctx, string(state))
	out, err := fn(sctx)
	p.deps.Observer.End(sctx, string(state), err)
	if err != nil && state != CleaningUp {
		res.FailedIn = state
	}
	return out, err
}

func (p *Pipeline) list(ctx context.Context, res *Result) ([]string, error) {
	prefix := catalog.Prefix(p.opts.Root, res.Date, p.opts.Site)
	entries, err := p.deps.Lister.List(ctx, prefix)
	if err != nil {
		return nil, &Error{Kind: CatalogQueryError, ID: prefix, Err: err}
	}
	res.Listed = len(entries)

	keys := catalog.Filter(entries, p.opts.ThresholdBytes)
	selected := catalog.Latest(keys, p.opts.RemoteLimit)
	monitoring.Logf("catalog %s: %d objects, %d significant, %d selected", prefix, len(entries), len(keys), len(selected))
	p.deps.Observer.Count(ctx, "listed", len(entries))
	p.deps.Observer.Count(ctx, "significant", len(keys))
	p.deps.Observer.Count(ctx, "selected", len(selected))

	if p.deps.Reporter != nil {
		if err := p.deps.Reporter.Report(res.Date, entries, selected); err != nil {
			monitoring.Warnw("catalog report failed", "run", res.RunID, "error", err)
		}
	}
	return selected, nil
}

func (p *Pipeline) sync(ctx context.Context, keys []string) error {
	err := p.deps.Syncer.Sync(ctx, keys, p.opts.WorkDir)
	if err == nil {
		return nil
	}
	var fe *scansync.FetchError
	if errors.As(err, &fe) {
		return &Error{Kind: TransferError, ID: fe.Key, Err: fe.Err}
	}
	return &Error{Kind: TransferError, ID: p.opts.WorkDir, Err: err}
}

func (p *Pipeline) decodeRender(ctx context.Context, res *Result) ([]scanFrame, error) {
	local, err := catalog.LocalEntries(p.deps.FS, p.opts.WorkDir)
	if err != nil {
		return nil, &Error{Kind: DecodeError, ID: p.opts.WorkDir, Err: err}
	}
	paths := catalog.Latest(catalog.Filter(local, p.opts.ThresholdBytes), p.opts.RenderLimit)
	p.deps.Observer.Count(ctx, "renderable", len(paths))

	results := make([]*scanFrame, len(paths))
	errs := make([]error, len(paths))

	if p.opts.Workers == 1 {
		for i, path := range paths {
			if err := ctx.Err(); err != nil {
				return nil, &Error{Kind: DecodeError, ID: path, Err: err}
			}
			results[i], errs[i] = p.decodeRenderOne(path)
			if errs[i] != nil && !p.opts.SkipFailures {
				return nil, errs[i]
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.opts.Workers)
		for i, path := range paths {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return &Error{Kind: DecodeError, ID: path, Err: err}
				}
				results[i], errs[i] = p.decodeRenderOne(path)
				if errs[i] != nil && !p.opts.SkipFailures {
					return errs[i]
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	frames := make([]scanFrame, 0, len(paths))
	for i, path := range paths {
		if errs[i] != nil {
			monitoring.Warnw("scan skipped", "run", res.RunID, "kind", KindOf(errs[i]), "path", path, "error", errs[i])
			res.Skipped = append(res.Skipped, Skipped{Path: path, Err: errs[i]})
			continue
		}
		frames = append(frames, *results[i])
	}
	p.deps.Observer.Count(ctx, "frames", len(frames))
	return frames, nil
}

func (p *Pipeline) decodeRenderOne(path string) (*scanFrame, error) {
	sweep, err := p.deps.Decoder.Decode(path)
	if err != nil {
		return nil, &Error{Kind: DecodeError, ID: path, Err: err}
	}
	frame, err := p.deps.Renderer.Render(sweep)
	if err != nil {
		return nil, &Error{Kind: RenderError, ID: path, Err: err}
	}
	monitoring.Logf("created frame %s", frame.ImagePath)
	return &scanFrame{path: path, frame: frame}, nil
}

// orderFrames sorts frames by local timestamp and rejects duplicates, which
// would mean two scans overwrote the same frame file.
func orderFrames(frames []scanFrame) error {
	sort.SliceStable(frames, func(i, j int) bool {
		return frames[i].frame.TimestampLocal.Before(frames[j].frame.TimestampLocal)
	})
	for i := 1; i < len(frames); i++ {
		if !frames[i].frame.TimestampLocal.After(frames[i-1].frame.TimestampLocal) {
			return &Error{
				Kind: AssemblyError,
				ID:   frames[i].path,
				Err:  fmt.Errorf("frame time %s repeats %s", frames[i].frame.TimestampLocal.Format(time.RFC3339), frames[i-1].path),
			}
		}
	}
	return nil
}

func (p *Pipeline) assemble(ctx context.Context, res *Result, frames []scanFrame) error {
	output := p.AnimationPath()
	if len(frames) < p.opts.MinFrames {
		return &Error{Kind: AssemblyError, ID: output, Err: fmt.Errorf("%d frames rendered, need at least %d", len(frames), p.opts.MinFrames)}
	}
	if err := orderFrames(frames); err != nil {
		return err
	}

	paths := make([]string, len(frames))
	res.Frames = make([]render.Frame, len(frames))
	for i, f := range frames {
		paths[i] = f.frame.ImagePath
		res.Frames[i] = f.frame
		if p.deps.Ledger != nil && res.RunID != "" {
			if err := p.deps.Ledger.RecordFrame(ctx, res.RunID, f.path, f.frame.TimestampLocal, f.frame.ImagePath); err != nil {
				monitoring.Warnw("ledger frame failed", "run", res.RunID, "path", f.path, "error", err)
			}
		}
	}

	if err := p.deps.Assembler.Assemble(paths, output, p.opts.FrameDuration, p.opts.Loop); err != nil {
		return &Error{Kind: AssemblyError, ID: output, Err: err}
	}
	res.Animation = output
	monitoring.Logf("animation written to %s", output)
	return nil
}

func (p *Pipeline) startLedger(ctx context.Context, res *Result) {
	if p.deps.Ledger == nil {
		return
	}
	id, err := p.deps.Ledger.StartRun(ctx, p.opts.Site, res.Date.Format(catalog.DateLayout), string(Listing))
	if err != nil {
		monitoring.Warnw("ledger start failed", "error", err)
		return
	}
	res.RunID = id
}

func (p *Pipeline) finishLedger(ctx context.Context, res *Result, runErr error) {
	if p.deps.Ledger == nil || res.RunID == "" {
		return
	}
	var kind, msg string
	switch {
	case runErr != nil:
		kind, msg = string(KindOf(runErr)), runErr.Error()
	case res.CleanupErr != nil:
		kind, msg = string(CleanupError), res.CleanupErr.Error()
	}
	if err := p.deps.Ledger.FinishRun(ctx, res.RunID, string(res.State), len(res.Frames), res.Animation, kind, msg); err != nil {
		monitoring.Warnw("ledger finish failed", "run", res.RunID, "error", err)
	}
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/radarloop/internal/catalog"
	"github.com/banshee-data/radarloop/internal/fsutil"
	"github.com/banshee-data/radarloop/internal/radar"
	"github.com/banshee-data/radarloop/internal/render"
	"github.com/banshee-data/radarloop/internal/scansync"
	"github.com/banshee-data/radarloop/internal/testutil"
	"github.com/banshee-data/radarloop/internal/timeutil"
	"github.com/banshee-data/radarloop/internal/units"
)

var (
	runDate  = time.Date(2024, 5, 17, 18, 0, 0, 0, time.UTC)
	scanBase = time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)
	cot      = units.OffsetHours(-5)
)

const prefix = "l2_data/2024/05/17/Corozal"

func scanKey(i int) string {
	return fmt.Sprintf("%s/COR%02d.RAW", prefix, i)
}

func scanTime(i int) time.Time {
	return scanBase.Add(time.Duration(i) * 5 * time.Minute)
}

type fakeLister struct {
	entries []catalog.Entry
	err     error
	prefix  string
}

func (l *fakeLister) List(_ context.Context, prefix string) ([]catalog.Entry, error) {
	l.prefix = prefix
	return l.entries, l.err
}

// fakeFetcher writes each object as a zero-filled file of its listed size.
type fakeFetcher struct {
	fs       fsutil.FileSystem
	sizes    map[string]int64
	truncate map[string]bool
	failOn   string
}

func (f *fakeFetcher) Fetch(_ context.Context, key, dest string) error {
	if key == f.failOn {
		return errors.New("connection reset")
	}
	size := f.sizes[key]
	if f.truncate[key] {
		size = 10
	}
	return f.fs.WriteFile(dest, make([]byte, size), 0o644)
}

// fakeDecoder maps scan file names to observation times.
type fakeDecoder struct {
	times  map[string]time.Time
	failOn map[string]bool
	wait   map[string]<-chan struct{}

	mu    sync.Mutex
	calls []string
}

func (d *fakeDecoder) Decode(path string) (*radar.Sweep, error) {
	name := filepath.Base(path)
	d.mu.Lock()
	d.calls = append(d.calls, name)
	d.mu.Unlock()
	if ch, ok := d.wait[name]; ok {
		<-ch
	}
	if d.failOn[name] {
		return nil, errors.New("sigmet: truncated file")
	}
	return testutil.Sweep(d.times[name], 35), nil
}

// fakeRenderer writes an empty frame file named after the local time.
type fakeRenderer struct {
	fs        fsutil.FileSystem
	outputDir string
	failOn    map[int64]bool
	rendered  map[int64]chan struct{}
}

func (r *fakeRenderer) Render(s *radar.Sweep) (render.Frame, error) {
	if r.failOn[s.ObservedAt.Unix()] {
		return render.Frame{}, render.ErrNoLandmarks
	}
	local := cot.Local(s.ObservedAt)
	path := filepath.Join(r.outputDir, units.FrameName(local)+render.FrameExt)
	if err := r.fs.WriteFile(path, []byte("png"), 0o644); err != nil {
		return render.Frame{}, err
	}
	if ch, ok := r.rendered[s.ObservedAt.Unix()]; ok {
		close(ch)
	}
	return render.Frame{TimestampLocal: local, ImagePath: path}, nil
}

type fakeAssembler struct {
	fs     fsutil.FileSystem
	err    error
	before func()

	calls  int
	paths  []string
	output string
	dur    time.Duration
	loop   bool
}

func (a *fakeAssembler) Assemble(paths []string, output string, d time.Duration, loop bool) error {
	a.calls++
	a.paths, a.output, a.dur, a.loop = paths, output, d, loop
	if a.before != nil {
		a.before()
	}
	if a.err != nil {
		return a.err
	}
	return a.fs.WriteFile(output, []byte("GIF89a"), 0o644)
}

type event struct {
	kind  string
	stage string
	err   bool
}

type recordingObserver struct {
	mu     sync.Mutex
	events []event
	counts map[string]int
}

func (o *recordingObserver) Begin(ctx context.Context, stage string) context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event{kind: "begin", stage: stage})
	return ctx
}

func (o *recordingObserver) End(_ context.Context, stage string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event{kind: "end", stage: stage, err: err != nil})
}

func (o *recordingObserver) Count(_ context.Context, name string, n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = map[string]int{}
	}
	o.counts[name] = n
}

func (o *recordingObserver) ended() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, e := range o.events {
		if e.kind == "end" {
			out = append(out, e.stage)
		}
	}
	return out
}

type reportCall struct {
	date     time.Time
	entries  int
	selected []string
}

type fakeReporter struct {
	calls []reportCall
	err   error
}

func (r *fakeReporter) Report(date time.Time, entries []catalog.Entry, selected []string) error {
	r.calls = append(r.calls, reportCall{date: date, entries: len(entries), selected: selected})
	return r.err
}

// harness wires a pipeline over an in-memory filesystem with n significant
// scans (COR00..) plus two placeholders.
type harness struct {
	fs        *fsutil.MemoryFileSystem
	lister    *fakeLister
	fetcher   *fakeFetcher
	decoder   *fakeDecoder
	renderer  *fakeRenderer
	assembler *fakeAssembler
	observer  *recordingObserver
	opts      Options
	deps      Deps
}

func newHarness(t *testing.T, n int) *harness {
	t.Helper()
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.MkdirAll("out", 0o755))

	h := &harness{
		fs:       mfs,
		lister:   &fakeLister{},
		fetcher:  &fakeFetcher{fs: mfs, sizes: map[string]int64{}, truncate: map[string]bool{}},
		decoder:  &fakeDecoder{times: map[string]time.Time{}, failOn: map[string]bool{}, wait: map[string]<-chan struct{}{}},
		renderer: &fakeRenderer{fs: mfs, outputDir: "out", failOn: map[int64]bool{}, rendered: map[int64]chan struct{}{}},
		observer: &recordingObserver{},
	}
	h.assembler = &fakeAssembler{fs: mfs}

	for i := 0; i < n; i++ {
		key := scanKey(i)
		h.lister.entries = append(h.lister.entries, catalog.Entry{Name: key, SizeBytes: 500000 + int64(i)})
		h.fetcher.sizes[key] = 500000 + int64(i)
		h.decoder.times[catalog.BaseName(key)] = scanTime(i)
	}
	h.lister.entries = append(h.lister.entries,
		catalog.Entry{Name: prefix + "/COR98.RAW", SizeBytes: 300},
		catalog.Entry{Name: prefix + "/COR99.RAW", SizeBytes: 100},
	)

	h.opts = Options{
		Root:           "l2_data",
		Site:           "Corozal",
		ThresholdBytes: 400000,
		RemoteLimit:    n,
		RenderLimit:    n,
		WorkDir:        "Corozal",
		OutputDir:      "out",
		FrameDuration:  200 * time.Millisecond,
		Loop:           true,
		MinFrames:      1,
		Workers:        1,
	}
	h.deps = Deps{
		Lister:    h.lister,
		Decoder:   h.decoder,
		Renderer:  h.renderer,
		Assembler: h.assembler,
		FS:        mfs,
		Clock:     timeutil.NewMockClock(runDate),
		Observer:  h.observer,
	}
	return h
}

func (h *harness) run(t *testing.T) (*Result, error) {
	t.Helper()
	return h.runAt(t, time.Time{})
}

func (h *harness) runAt(t *testing.T, date time.Time) (*Result, error) {
	t.Helper()
	deps := h.deps
	if deps.Syncer == nil {
		s := scansync.New(h.fetcher, h.fs)
		s.Workers = h.opts.Workers
		deps.Syncer = s
	}
	return New(h.opts, deps).Run(context.Background(), date)
}

func (h *harness) frameFiles(t *testing.T) []string {
	t.Helper()
	matches, err := h.fs.Glob(filepath.Join("out", render.FramePattern))
	require.NoError(t, err)
	return matches
}

func framePath(i int) string {
	return filepath.Join("out", units.FrameName(cot.Local(scanTime(i)))+render.FrameExt)
}

package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/radarloop/internal/timeutil"
)

// Observer is told when each pipeline stage begins and ends. Begin may return
// a derived context (a trace span, for instance) that is handed back to End.
type Observer interface {
	Begin(ctx context.Context, stage string) context.Context
	End(ctx context.Context, stage string, err error)
	Count(ctx context.Context, name string, n int)
}

// Nop ignores everything.
type Nop struct{}

func (Nop) Begin(ctx context.Context, _ string) context.Context { return ctx }
func (Nop) End(context.Context, string, error)                  {}
func (Nop) Count(context.Context, string, int)                  {}

// Observers fans calls out to several observers in order.
type Observers []Observer

func (os Observers) Begin(ctx context.Context, stage string) context.Context {
	for _, o := range os {
		ctx = o.Begin(ctx, stage)
	}
	return ctx
}

func (os Observers) End(ctx context.Context, stage string, err error) {
	for i := len(os) - 1; i >= 0; i-- {
		os[i].End(ctx, stage, err)
	}
}

func (os Observers) Count(ctx context.Context, name string, n int) {
	for _, o := range os {
		o.Count(ctx, name, n)
	}
}

// Timer logs how long each stage took. It is the explicit replacement for
// wrapping a whole run in a stopwatch.
type Timer struct {
	Clock timeutil.Clock

	mu      sync.Mutex
	started map[string]time.Time
	elapsed map[string]time.Duration
}

// NewTimer returns a Timer reading clock (the system clock when nil).
func NewTimer(clock timeutil.Clock) *Timer {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Timer{
		Clock:   clock,
		started: make(map[string]time.Time),
		elapsed: make(map[string]time.Duration),
	}
}

func (t *Timer) Begin(ctx context.Context, stage string) context.Context {
	t.mu.Lock()
	t.started[stage] = t.Clock.Now()
	t.mu.Unlock()
	return ctx
}

func (t *Timer) End(_ context.Context, stage string, err error) {
	t.mu.Lock()
	start, ok := t.started[stage]
	var d time.Duration
	if ok {
		d = t.Clock.Since(start)
		t.elapsed[stage] = d
	}
	t.mu.Unlock()

	if err != nil {
		Warnw("stage failed", "stage", stage, "seconds", d.Seconds(), "error", err)
		return
	}
	Infow("stage finished", "stage", stage, "seconds", d.Seconds())
}

func (t *Timer) Count(_ context.Context, name string, n int) {
	Infow("count", "name", name, "value", n)
}

// Elapsed returns the recorded duration of stage.
func (t *Timer) Elapsed(stage string) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.elapsed[stage]
	return d, ok
}

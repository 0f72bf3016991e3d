package main

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/banshee-data/radarloop/internal/monitoring"
)

// schedule runs job now and then every interval until ctx is done. Runs
// never overlap: a run still in progress when the next is due delays it.
func schedule(ctx context.Context, interval time.Duration, job func()) error {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	if _, err := s.Every(interval).Do(job); err != nil {
		return err
	}
	monitoring.Infow("scheduler started", "every", interval.String())
	s.StartAsync()

	<-ctx.Done()
	s.Stop()
	monitoring.Infow("scheduler stopped")
	return nil
}

package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler triggers periodic sync passes on a cron schedule. A pass that
// fails is simply retried on the next trigger; the engine retains partial
// progress.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler wires engine.SyncAll onto schedule, a standard cron
// expression such as "*/15 * * * *".
func NewScheduler(engine *Engine, schedule string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := engine.SyncAll(context.Background()); err != nil {
			logger.Warn("scheduled sync pass failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}
	return &Scheduler{cron: c, logger: logger}, nil
}

// Start begins triggering passes in the background.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started")
	s.cron.Start()
}

// Stop halts scheduling and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

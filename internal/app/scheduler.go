package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/okian/rks/pkg/logger"
)

// DefaultReloadSchedule reloads the catalog at 00:01 and 17:01 every day.
const DefaultReloadSchedule = "1 0,17 * * *"

// Reloader refreshes an externally maintained data set.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Scheduler runs periodic maintenance jobs.
type Scheduler struct {
	cron   *cron.Cron
	logger logger.Logger
}

// NewScheduler returns a stopped scheduler.
func NewScheduler(l logger.Logger) *Scheduler {
	if l == nil {
		l = logger.Get().Named("scheduler")
	}
	return &Scheduler{
		cron:   cron.New(),
		logger: l,
	}
}

// AddReload schedules r.Reload on a standard five-field cron spec. Each run
// is bounded by timeout.
func (s *Scheduler) AddReload(name, spec string, r Reloader, timeout time.Duration) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		start := time.Now()
		if err := r.Reload(ctx); err != nil {
			s.logger.Error(ctx, "scheduled job failed", logger.String("job", name), logger.Error(err))
			return
		}
		s.logger.Info(ctx, "scheduled job done", logger.String("job", name), logger.Duration("took", time.Since(start)))
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.logger.Info(context.Background(), "job scheduled", logger.String("job", name), logger.String("schedule", spec))
	return nil
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn(ctx, "scheduler stop timed out")
	}
}

// Entries returns the number of scheduled jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

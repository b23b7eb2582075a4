package daemon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tipflow/internal/content"
	"tipflow/internal/logging"
	"tipflow/internal/services"
	"tipflow/internal/workflow"
)

// Job is the daily unit of work.
type Job interface {
	RunOnce(ctx context.Context) (*workflow.RunResult, error)
}

// Scheduler runs a Job once a day at a fixed local wall-clock time.
type Scheduler struct {
	job    Job
	at     time.Duration
	clock  services.Clock
	after  func(time.Duration) <-chan time.Time
	logger *slog.Logger
}

// SchedulerOption customizes a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerClock overrides the time source and timer, for tests.
func WithSchedulerClock(clock services.Clock, after func(time.Duration) <-chan time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
		if after != nil {
			s.after = after
		}
	}
}

// NewScheduler runs job daily at the given offset from local midnight.
func NewScheduler(job Job, at time.Duration, logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		job:    job,
		at:     at,
		clock:  services.RealClock{},
		after:  time.After,
		logger: logging.NewComponentLogger(logger, "scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NextRun returns the first scheduled time strictly after now, in now's
// location.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	hour := int(s.at / time.Hour)
	minute := int((s.at % time.Hour) / time.Minute)
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, hour, minute, 0, 0, now.Location())
	}
	return next
}

// Run blocks until ctx is cancelled, running the job at each scheduled time.
// Job failures are logged and do not stop the loop.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		now := s.clock.Now()
		next := s.NextRun(now)
		s.logger.Info("next scheduled run", logging.String("at", next.Format("2006-01-02 15:04 MST")))

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-s.after(next.Sub(now)):
		}
		s.runJob(ctx)
	}
}

func (s *Scheduler) runJob(ctx context.Context) {
	s.logger.Info("scheduled run triggered")
	res, err := s.job.RunOnce(ctx)
	switch {
	case errors.Is(err, content.ErrNotAvailable):
		s.logger.Warn("scheduled run produced nothing new", logging.Error(err))
	case err != nil:
		logging.WarnWithHint(s.logger, "scheduled run failed", "scheduled_run_failed", services.Hint(err), logging.Error(err))
	case !res.Notified:
		s.logger.Warn("scheduled run needs manual approval",
			logging.String(logging.FieldRunID, res.RunID),
			logging.String("path", res.Path))
	default:
		s.logger.Info("scheduled run complete",
			logging.String(logging.FieldRunID, res.RunID),
			logging.String(logging.FieldShortname, res.Item.Shortname))
	}
}

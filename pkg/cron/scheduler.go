// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// PreviewSweeper purges expired preview sessions.
type PreviewSweeper interface {
	PreviewSweep(ctx context.Context) (int, error)
}

// ImportReaper fails imports that stopped before finishing.
type ImportReaper interface {
	FailStale(ctx context.Context, cutoff time.Time) (int, error)
}

// Pruner drops idle rate limiter state.
type Pruner interface {
	Prune(now time.Time) int
}

// Jobs are the collaborators the scheduler drives. Nil members are skipped.
type Jobs struct {
	Previews PreviewSweeper
	Imports  ImportReaper
	Limiter  Pruner
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron     *cron.Cron
	jobs     Jobs
	schedule string
	staleAge time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewScheduler creates a new job scheduler. schedule uses the standard
// 5-field format or a descriptor such as "@every 5m".
func NewScheduler(jobs Jobs, schedule string, staleAge time.Duration, logger *slog.Logger) *Scheduler {
	c := cron.New(
		cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	return &Scheduler{
		cron:     c,
		jobs:     jobs,
		schedule: schedule,
		staleAge: staleAge,
		timeout:  time.Minute,
		logger:   logger,
		now:      time.Now,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.String("schedule", s.schedule),
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs. The returned context is done
// once running jobs have finished.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow runs one sweep synchronously.
func (s *Scheduler) RunNow() {
	s.sweep()
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	now := s.now()
	var sessions, reaped, visitors int

	if s.jobs.Previews != nil {
		n, err := s.jobs.Previews.PreviewSweep(ctx)
		if err != nil {
			s.logger.Error("failed to sweep preview sessions", slog.Any("error", err))
		}
		sessions = n
	}

	if s.jobs.Imports != nil && s.staleAge > 0 {
		n, err := s.jobs.Imports.FailStale(ctx, now.Add(-s.staleAge))
		if err != nil {
			s.logger.Error("failed to reap stale imports", slog.Any("error", err))
		}
		reaped = n
		if n > 0 {
			s.logger.Warn("marked abandoned imports as failed", slog.Int("imports", n))
		}
	}

	if s.jobs.Limiter != nil {
		visitors = s.jobs.Limiter.Prune(now)
	}

	s.logger.Debug("maintenance sweep completed",
		slog.Int("sessions_expired", sessions),
		slog.Int("imports_reaped", reaped),
		slog.Int("visitors_pruned", visitors),
	)
}

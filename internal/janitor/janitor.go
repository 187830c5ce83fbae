// Package janitor purges stale credential state on a cron schedule.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/voice-scheduler/internal/metrics"
	"github.com/robfig/cron/v3"
)

type sessionPurger interface {
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

type resetTokenClearer interface {
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

type Janitor struct {
	sessions  sessionPurger
	users     resetTokenClearer
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// New returns a Janitor that deletes sessions which expired or were revoked
// more than retention ago.
func New(sessions sessionPurger, users resetTokenClearer, retention time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{
		sessions:  sessions,
		users:     users,
		retention: retention,
		logger:    logger.With("component", "janitor"),
		now:       time.Now,
	}
}

// Start runs the janitor on spec until ctx is done. It waits for a running
// cycle to finish before returning.
func (j *Janitor) Start(ctx context.Context, spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { j.Run(ctx) }); err != nil {
		return fmt.Errorf("janitor schedule %q: %w", spec, err)
	}

	j.logger.Info("janitor started", "schedule", spec, "retention", j.retention)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	j.logger.Info("janitor shut down")
	return nil
}

// Run performs one purge cycle. Failures are logged; the next cycle retries.
func (j *Janitor) Run(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.JanitorCycleDuration.Observe(time.Since(start).Seconds()) }()

	now := j.now()

	purged, err := j.sessions.DeleteStale(ctx, now.Add(-j.retention))
	if err != nil {
		j.logger.ErrorContext(ctx, "purge stale sessions", "error", err)
	} else if purged > 0 {
		metrics.SessionsPurgedTotal.Add(float64(purged))
		j.logger.InfoContext(ctx, "purged stale sessions", "count", purged)
	}

	cleared, err := j.users.ClearExpiredResetTokens(ctx, now)
	if err != nil {
		j.logger.ErrorContext(ctx, "clear expired reset tokens", "error", err)
	} else if cleared > 0 {
		j.logger.InfoContext(ctx, "cleared expired reset tokens", "count", cleared)
	}
}

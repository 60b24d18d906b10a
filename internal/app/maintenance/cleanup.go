package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/charlesng35/bloggers/pkg/logger"
	"github.com/charlesng35/bloggers/pkg/metrics"
)

const (
	defaultRetention = 24 * time.Hour
	defaultSchedule  = "@hourly"
	purgeTimeout     = time.Minute
)

// UnconfirmedPurger removes accounts whose confirmation code expired before cutoff.
type UnconfirmedPurger interface {
	DeleteUnconfirmedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Cleaner periodically purges registrations that were never confirmed.
type Cleaner struct {
	purger    UnconfirmedPurger
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention time.Duration
	schedule  string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cutoff calculations.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithRetention sets how long an expired confirmation code is kept before its account is purged.
func WithRetention(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.retention = d
		}
	}
}

// WithSchedule overrides the cron specification of the purge job.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil purger yields a Cleaner whose Start is a no-op.
func NewCleaner(purger UnconfirmedPurger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		purger:    purger,
		now:       time.Now,
		retention: defaultRetention,
		schedule:  defaultSchedule,
		log:       logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the purge job and launches the scheduler.
func (c *Cleaner) Start() error {
	if c.purger == nil {
		return nil
	}

	if _, err := c.cron.AddFunc(c.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
		defer cancel()
		if _, err := c.RunOnce(ctx); err != nil {
			c.log.Warn("unconfirmed account purge failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("maintenance: schedule %q: %w", c.schedule, err)
	}

	c.cron.Start()
	c.log.Info("maintenance scheduled",
		zap.String("schedule", c.schedule),
		zap.Duration("retention", c.retention),
	)
	return nil
}

// Stop halts the underlying scheduler. The returned context is done once running jobs finish.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce purges unconfirmed accounts whose code expired more than the retention ago
// and returns how many were removed.
func (c *Cleaner) RunOnce(ctx context.Context) (int64, error) {
	if c.purger == nil {
		return 0, errors.New("maintenance: purger is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cutoff := c.now().UTC().Add(-c.retention)
	removed, err := c.purger.DeleteUnconfirmedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("maintenance: purge unconfirmed: %w", err)
	}

	if removed > 0 {
		metrics.PurgedAccounts.Add(float64(removed))
		c.log.Info("purged unconfirmed accounts",
			zap.Int64("count", removed),
			zap.Time("cutoff", cutoff),
		)
	}
	return removed, nil
}

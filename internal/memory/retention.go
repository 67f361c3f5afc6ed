package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultRetentionSchedule runs pruning once a day at midnight.
const DefaultRetentionSchedule = "@daily"

// Pruner removes history older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Retention periodically prunes generation history.
type Retention struct {
	pruner   Pruner
	maxAge   time.Duration
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
	now      func() time.Time
}

// RetentionConfig configures a Retention job.
type RetentionConfig struct {
	Pruner   Pruner
	MaxAge   time.Duration
	Schedule string // cron expression, defaults to DefaultRetentionSchedule
	Logger   *slog.Logger
}

func NewRetention(cfg RetentionConfig) *Retention {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultRetentionSchedule
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Retention{
		pruner:   cfg.Pruner,
		maxAge:   cfg.MaxAge,
		schedule: cfg.Schedule,
		cron:     cron.New(),
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// Start registers the pruning job and starts the scheduler.
func (r *Retention) Start() error {
	if r.maxAge <= 0 {
		r.logger.Info("history retention disabled")
		return nil
	}
	if _, err := r.cron.AddFunc(r.schedule, func() {
		if _, err := r.RunOnce(context.Background()); err != nil {
			r.logger.Error("history prune failed", "err", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule retention %q: %w", r.schedule, err)
	}
	r.cron.Start()
	r.logger.Info("history retention scheduled", "schedule", r.schedule, "max_age", r.maxAge)
	return nil
}

// Stop halts the scheduler and waits for a running prune to finish.
func (r *Retention) Stop(ctx context.Context) {
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce prunes everything older than the configured max age.
func (r *Retention) RunOnce(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.maxAge)
	n, err := r.pruner.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Info("history pruned", "rows", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n, nil
}

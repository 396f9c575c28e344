// Package janitor runs periodic cache maintenance on cron schedules.
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Janitor owns a cron scheduler. Jobs never overlap with themselves and panics are recovered.
type Janitor struct {
	cron    *cron.Cron
	logger  *zap.Logger
	timeout time.Duration
	entries int
}

// Sweeper drops expired entries from memory.
type Sweeper interface {
	Sweep(now time.Time) int
}

// Pruner deletes expired records from durable storage.
type Pruner interface {
	Prune(ctx context.Context) (int, error)
}

// Limiter forgets idle clients.
type Limiter interface {
	Sweep(idle time.Duration) int
}

// New creates a Janitor. timeout bounds each job run; zero means one minute.
func New(logger *zap.Logger, timeout time.Duration) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	logger = logger.Named("janitor")
	cl := cronLogger{logger.Sugar()}
	return &Janitor{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		timeout: timeout,
	}
}

// Add schedules fn under a cron expression such as "@every 2m". An empty schedule is a no-op.
func (j *Janitor) Add(name, schedule string, fn func(ctx context.Context)) error {
	if schedule == "" {
		return nil
	}
	_, err := j.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		defer cancel()
		start := time.Now()
		fn(ctx)
		j.logger.Debug("job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
	})
	if err != nil {
		return fmt.Errorf("schedule %s %q: %w", name, schedule, err)
	}
	j.entries++
	return nil
}

// Len reports the number of scheduled jobs.
func (j *Janitor) Len() int { return j.entries }

// Start runs the scheduler in the background.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop prevents further runs and waits, bounded by ctx, for running jobs.
func (j *Janitor) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop janitor: %w", ctx.Err())
	}
}

// SweepJob expires in-memory cache entries.
func SweepJob(s Sweeper, logger *zap.Logger) func(context.Context) {
	return func(context.Context) {
		if n := s.Sweep(time.Now()); n > 0 {
			logger.Info("swept expired cache entries", zap.Int("count", n))
		}
	}
}

// PruneJob deletes expired records from the durable cache layer.
func PruneJob(p Pruner, logger *zap.Logger) func(context.Context) {
	return func(ctx context.Context) {
		n, err := p.Prune(ctx)
		if err != nil {
			logger.Warn("prune durable cache", zap.Int("deleted", n), zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("pruned durable cache", zap.Int("deleted", n))
		}
	}
}

// Purger deletes audit rows older than a cutoff.
type Purger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// PurgeJob deletes audit rows older than retention.
func PurgeJob(p Purger, retention time.Duration, logger *zap.Logger) func(context.Context) {
	return func(ctx context.Context) {
		n, err := p.Purge(ctx, time.Now().Add(-retention))
		if err != nil {
			logger.Warn("purge capture records", zap.Error(err))
			return
		}
		if n > 0 {
			logger.Info("purged capture records", zap.Int64("deleted", n))
		}
	}
}

// LimiterJob drops rate-limit buckets idle for longer than idle.
func LimiterJob(l Limiter, idle time.Duration) func(context.Context) {
	return func(context.Context) {
		l.Sweep(idle)
	}
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

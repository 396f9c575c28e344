package janitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingSweeper struct{ calls atomic.Int32 }

func (s *countingSweeper) Sweep(time.Time) int {
	s.calls.Add(1)
	return 2
}

type fakePruner struct {
	n   int
	err error
	ctx context.Context
}

func (p *fakePruner) Prune(ctx context.Context) (int, error) {
	p.ctx = ctx
	return p.n, p.err
}

type fakeLimiter struct{ idle time.Duration }

func (l *fakeLimiter) Sweep(idle time.Duration) int {
	l.idle = idle
	return 0
}

func TestAddRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	j := New(zap.NewNop(), 0)
	require.Error(t, j.Add("sweep", "every now and then", func(context.Context) {}))
	require.NoError(t, j.Add("sweep", "", func(context.Context) {}))
	assert.Zero(t, j.Len())
	require.NoError(t, j.Add("sweep", "@every 1m", func(context.Context) {}))
	assert.Equal(t, 1, j.Len())
}

func TestJobsRunOnSchedule(t *testing.T) {
	t.Parallel()

	j := New(zap.NewNop(), time.Second)
	s := &countingSweeper{}
	require.NoError(t, j.Add("sweep", "@every 1s", SweepJob(s, zap.NewNop())))
	j.Start()

	require.Eventually(t, func() bool { return s.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, j.Stop(ctx))
}

func TestPanickingJobIsRecovered(t *testing.T) {
	t.Parallel()

	j := New(zap.NewNop(), time.Second)
	var ran atomic.Bool
	require.NoError(t, j.Add("bad", "@every 1s", func(context.Context) {
		ran.Store(true)
		panic("boom")
	}))
	j.Start()
	require.Eventually(t, ran.Load, 3*time.Second, 50*time.Millisecond)
	require.NoError(t, j.Stop(context.Background()))
}

func TestPruneJob(t *testing.T) {
	t.Parallel()

	p := &fakePruner{n: 3}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	PruneJob(p, zap.NewNop())(ctx)
	assert.Equal(t, ctx, p.ctx)

	p = &fakePruner{err: errors.New("bucket gone")}
	PruneJob(p, zap.NewNop())(context.Background())
}

func TestLimiterJob(t *testing.T) {
	t.Parallel()

	l := &fakeLimiter{}
	LimiterJob(l, 10*time.Minute)(context.Background())
	assert.Equal(t, 10*time.Minute, l.idle)
}

type fakePurger struct{ cutoff time.Time }

func (p *fakePurger) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoff = cutoff
	return 1, nil
}

func TestPurgeJobUsesRetention(t *testing.T) {
	t.Parallel()

	p := &fakePurger{}
	before := time.Now()
	PurgeJob(p, 24*time.Hour, zap.NewNop())(context.Background())
	assert.WithinDuration(t, before.Add(-24*time.Hour), p.cutoff, time.Second)
}

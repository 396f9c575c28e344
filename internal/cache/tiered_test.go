package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/shotapi/internal/capture"
	"github.com/JakeFAU/shotapi/internal/storage"
	"github.com/JakeFAU/shotapi/internal/storage/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTieredRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := New(memory.NewBlobStore(), Options{Clock: newFakeClock()})

	_, ok := c.Get(ctx, "k1")
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "k1", []byte("png-bytes"), capture.KindPNG, time.Hour))
	got, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("png-bytes"), got.Payload)
	assert.Equal(t, capture.KindPNG, got.Kind)
}

func TestTieredPromotesDurableHitsKeepingStoredAt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newFakeClock()
	durable := memory.NewBlobStore()

	first := New(durable, Options{Clock: clk})
	require.NoError(t, first.Set(ctx, "k1", []byte("pdf"), capture.KindPDF, 10*time.Second))
	storedAt := clk.Now()

	// A fresh process sees only the durable layer.
	clk.Advance(4 * time.Second)
	second := New(durable, Options{Clock: clk})
	assert.Zero(t, second.Stats().Entries)

	got, ok := second.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("pdf"), got.Payload)
	assert.Equal(t, capture.KindPDF, got.Kind)
	assert.True(t, storedAt.Equal(got.StoredAt), "promotion keeps the original timestamp")
	assert.Equal(t, 1, second.Stats().Entries)

	// Expiry is measured from the original store time, not the promotion.
	clk.Advance(6 * time.Second)
	_, ok = second.Get(ctx, "k1")
	assert.False(t, ok)
}

func TestTieredTTLExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newFakeClock()
	durable := memory.NewBlobStore()
	c := New(durable, Options{Clock: clk})

	require.NoError(t, c.Set(ctx, "short", []byte("x"), capture.KindPNG, time.Second))
	clk.Advance(2 * time.Second)

	_, ok := c.Get(ctx, "short")
	assert.False(t, ok, "expired in L1")

	_, ok = New(durable, Options{Clock: clk}).Get(ctx, "short")
	assert.False(t, ok, "expired in L2")
}

func TestTieredZeroTTLStoresNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	durable := memory.NewBlobStore()
	c := New(durable, Options{Clock: newFakeClock()})

	require.NoError(t, c.Set(ctx, "k", []byte("x"), capture.KindPNG, 0))
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Zero(t, durable.Len())
}

func TestTieredCapacityBound(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := New(nil, Options{Capacity: 5, Clock: newFakeClock()})
	for i := range 20 {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("k%02d", i), []byte("x"), capture.KindPNG, time.Hour))
		require.LessOrEqual(t, c.Stats().Entries, 5)
	}
	assert.Equal(t, Stats{Entries: 5, Capacity: 5}, c.Stats())
}

func TestTieredClearIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	durable := memory.NewBlobStore()
	c := New(durable, Options{Clock: newFakeClock()})
	require.NoError(t, c.Set(ctx, "a", []byte("1"), capture.KindPNG, time.Hour))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), capture.KindJPEG, time.Hour))

	require.NoError(t, c.Clear(ctx))
	require.NoError(t, c.Clear(ctx))

	for _, k := range []string{"a", "b"} {
		_, ok := c.Get(ctx, k)
		assert.False(t, ok, k)
	}
	assert.Zero(t, durable.Len())
	assert.Zero(t, c.Stats().Entries)
}

func TestTieredDurableWriteFailureKeepsMemoryEntry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	durable := &storage.MockProvider{}
	durable.On("Put", mock.Anything, "k", mock.Anything).Return(errors.New("disk full"))
	c := New(durable, Options{Clock: newFakeClock()})

	err := c.Set(ctx, "k", []byte("x"), capture.KindPNG, time.Hour)
	require.ErrorIs(t, err, capture.ErrCacheIO)

	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("x"), got.Payload)
	durable.AssertExpectations(t)
}

func TestTieredDurableReadFailureIsMiss(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	durable := &storage.MockProvider{}
	durable.On("Get", mock.Anything, "broken").Return(nil, errors.New("connection reset"))
	durable.On("Get", mock.Anything, "garbage").Return([]byte("not a record"), nil)
	c := New(durable, Options{Clock: newFakeClock()})

	_, ok := c.Get(ctx, "broken")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "garbage")
	assert.False(t, ok)
}

func TestTieredClearFailure(t *testing.T) {
	t.Parallel()

	durable := &storage.MockProvider{}
	durable.On("Clear", mock.Anything).Return(errors.New("permission denied"))
	c := New(durable, Options{Clock: newFakeClock()})

	require.ErrorIs(t, c.Clear(context.Background()), capture.ErrCacheIO)
}

func TestTieredSweepAndPrune(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newFakeClock()
	durable := memory.NewBlobStore()
	c := New(durable, Options{Clock: clk})

	require.NoError(t, c.Set(ctx, "short", []byte("1"), capture.KindPNG, time.Second))
	require.NoError(t, c.Set(ctx, "long", []byte("2"), capture.KindPNG, time.Hour))
	require.NoError(t, durable.Put(ctx, "junk", []byte("corrupt")))
	clk.Advance(2 * time.Second)

	assert.Equal(t, 1, c.Sweep(clk.Now()))
	assert.Equal(t, 1, c.Stats().Entries)

	pruned, err := c.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pruned, "expired and unreadable records are removed")

	keys, err := durable.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"long"}, keys)
}

func TestTieredConcurrentAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := New(memory.NewBlobStore(), Options{Capacity: 8, Clock: newFakeClock()})

	var wg conc.WaitGroup
	for i := range 32 {
		wg.Go(func() {
			key := fmt.Sprintf("k%d", i%12)
			payload := []byte(key)
			_ = c.Set(ctx, key, payload, capture.KindPNG, time.Hour)
			if got, ok := c.Get(ctx, key); ok {
				assert.Equal(t, payload, got.Payload)
			}
			if i%10 == 0 {
				assert.NoError(t, c.Clear(ctx))
			}
		})
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Stats().Entries, 8)
}

package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryAt(key string, at time.Time, ttl time.Duration) Entry {
	return Entry{Key: key, Payload: []byte(key), StoredAt: at, TTL: ttl}
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	c := newLRU(3)
	for _, k := range []string{"a", "b", "c"} {
		c.add(entryAt(k, now, time.Hour), now)
	}
	_, ok := c.get("a", now)
	require.True(t, ok)

	evicted := c.add(entryAt("d", now, time.Hour), now)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 3, c.len())

	_, ok = c.get("b", now)
	assert.False(t, ok, "b was least recently used")
	for _, k := range []string{"a", "c", "d"} {
		_, ok := c.get(k, now)
		assert.True(t, ok, k)
	}
}

func TestLRUPurgesExpiredBeforeEvicting(t *testing.T) {
	t.Parallel()

	start := time.Unix(1_700_000_000, 0)
	c := newLRU(2)
	c.add(entryAt("live", start, time.Hour), start)
	c.add(entryAt("stale", start, time.Second), start)

	later := start.Add(2 * time.Second)
	c.add(entryAt("new", later, time.Hour), later)

	_, ok := c.get("live", later)
	assert.True(t, ok, "live entry survives when an expired one can be purged instead")
	_, ok = c.get("new", later)
	assert.True(t, ok)
	assert.Equal(t, 2, c.len())
}

func TestLRUCapacityNeverExceeded(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	c := newLRU(10)
	for i := range 100 {
		c.add(entryAt(fmt.Sprintf("k%d", i), now, time.Hour), now)
		require.LessOrEqual(t, c.len(), 10)
	}
}

func TestLRUReplaceAndExpire(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	c := newLRU(2)
	c.add(entryAt("a", now, time.Second), now)
	c.add(Entry{Key: "a", Payload: []byte("v2"), StoredAt: now, TTL: time.Second}, now)
	assert.Equal(t, 1, c.len())

	got, ok := c.get("a", now)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), got.Payload)

	_, ok = c.get("a", now.Add(time.Second))
	assert.False(t, ok, "entries are not served at StoredAt+TTL")
	assert.Zero(t, c.len())
}

package cache

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, maxBytes int64, maxEntries int) *Cache[string] {
	t.Helper()
	c := New[string]("test", Options[string]{
		DefaultTTL: time.Minute,
		MaxBytes:   maxBytes,
		MaxEntries: maxEntries,
	}, nil)
	t.Cleanup(c.Destroy)
	return c
}

func TestCache_CloneIsolatesCallers(t *testing.T) {
	c := New[[]string]("test", Options[[]string]{
		DefaultTTL: time.Minute,
		MaxBytes:   1 << 20,
		MaxEntries: 100,
		Clone: func(in []string) []string {
			out := make([]string, len(in))
			copy(out, in)
			return out
		},
	}, nil)
	t.Cleanup(c.Destroy)

	original := []string{"a", "b"}
	c.Set("k", original, 0)

	// The caller's retained reference cannot reach cached state.
	original[0] = "mutated"

	got, ok := c.Get("k")
	require.True(t, ok)
	require.Equal(t, []string{"a", "b"}, got)

	// Neither can a returned value.
	got[1] = "mutated"

	again, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, again)
}

func TestCache_GetSet(t *testing.T) {
	c := newTestCache(t, 1<<20, 100)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", "value-a", 0)
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "value-a", got)
}

func TestCache_TTLExpiry(t *testing.T) {
	c := newTestCache(t, 1<<20, 100)

	c.Set("a", "value-a", 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)

	// Expired entries are absent even before the reaper runs.
	_, ok := c.Get("a")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(0), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 0, stats.Entries)
}

func TestCache_LRUEvictionOrder(t *testing.T) {
	c := newTestCache(t, 1<<20, 2)

	c.Set("a", "value-a", 0)
	c.Set("b", "value-b", 0)

	// Refresh A's recency, then push past the entry cap.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", "value-c", 0)

	assert.True(t, c.Has("a"))
	assert.False(t, c.Has("b"))
	assert.True(t, c.Has("c"))
}

func TestCache_ByteBudgetEviction(t *testing.T) {
	small := EstimateSize("xx") + 1 // key "a"/"b" is one byte

	c := newTestCache(t, 2*small, 100)

	c.Set("a", "xx", 0)
	c.Set("b", "xx", 0)
	require.Equal(t, 2, c.Stats().Entries)

	// A third entry exceeds the byte budget and evicts the oldest.
	c.Set("c", "xx", 0)
	assert.False(t, c.Has("a"))
	assert.True(t, c.Has("b"))
	assert.True(t, c.Has("c"))
}

func TestCache_OversizedValueStillAdmitted(t *testing.T) {
	c := newTestCache(t, 64, 100)

	c.Set("a", "xx", 0)

	huge := make([]byte, 0, 256)
	for i := 0; i < 256; i++ {
		huge = append(huge, 'y')
	}
	c.Set("big", string(huge), 0)

	// No admission rejection: everything older is evicted and the
	// oversized entry goes in anyway.
	assert.False(t, c.Has("a"))
	assert.True(t, c.Has("big"))
	assert.Equal(t, 1, c.Stats().Entries)
}

func TestCache_SizeAccounting(t *testing.T) {
	c := newTestCache(t, 1<<20, 100)

	c.Set("a", "hello", 0)
	c.Set("b", "world!", 0)
	c.Set("c", "gone", 0)
	c.Delete("c")
	c.Set("a", "hello again", 0) // replace adjusts, never double-counts

	want := EstimateSize("hello again") + 1 + EstimateSize("world!") + 1
	assert.Equal(t, want, c.Stats().Size)
}

func TestCache_HitMissAccounting(t *testing.T) {
	t.Run("set then get", func(t *testing.T) {
		c := newTestCache(t, 1<<20, 100)
		c.Set("a", "value", 0)
		_, ok := c.Get("a")
		require.True(t, ok)

		stats := c.Stats()
		assert.Equal(t, int64(1), stats.Hits)
		assert.Equal(t, int64(0), stats.Misses)
		assert.Equal(t, 1.0, stats.HitRate)
	})

	t.Run("get absent", func(t *testing.T) {
		c := newTestCache(t, 1<<20, 100)
		_, ok := c.Get("absent")
		require.False(t, ok)

		stats := c.Stats()
		assert.Equal(t, int64(0), stats.Hits)
		assert.Equal(t, int64(1), stats.Misses)
		assert.Equal(t, 0.0, stats.HitRate)
	})

	t.Run("fresh cache has zero hit rate", func(t *testing.T) {
		c := newTestCache(t, 1<<20, 100)
		assert.Equal(t, 0.0, c.Stats().HitRate)
	})
}

func TestCache_HasDoesNotTouchCounters(t *testing.T) {
	c := newTestCache(t, 1<<20, 100)
	c.Set("a", "value", 0)

	assert.True(t, c.Has("a"))
	assert.False(t, c.Has("b"))

	stats := c.Stats()
	assert.Equal(t, int64(0), stats.Hits)
	assert.Equal(t, int64(0), stats.Misses)
}

func TestCache_DeleteIdempotent(t *testing.T) {
	c := newTestCache(t, 1<<20, 100)
	c.Set("a", "value", 0)

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))
}

func TestCache_InvalidatePattern(t *testing.T) {
	c := newTestCache(t, 1<<20, 100)
	c.Set("resume:u1:r1", "a", 0)
	c.Set("resume:u1:r2", "b", 0)
	c.Set("resume:u2:r3", "c", 0)

	count := c.InvalidatePattern(regexp.MustCompile(`^resume:u1:`))
	assert.Equal(t, 2, count)
	assert.False(t, c.Has("resume:u1:r1"))
	assert.True(t, c.Has("resume:u2:r3"))

	// Zero matches removes nothing.
	count = c.InvalidatePattern(regexp.MustCompile(`^resume:u9:`))
	assert.Equal(t, 0, count)
	assert.Equal(t, 1, c.Stats().Entries)
}

func TestCache_GetOrSet(t *testing.T) {
	c := newTestCache(t, 1<<20, 100)
	ctx := context.Background()

	calls := 0
	factory := func(context.Context) (string, error) {
		calls++
		return "produced", nil
	}

	got, err := c.GetOrSet(ctx, "a", factory, 0)
	require.NoError(t, err)
	assert.Equal(t, "produced", got)
	assert.Equal(t, 1, calls)

	got, err = c.GetOrSet(ctx, "a", factory, 0)
	require.NoError(t, err)
	assert.Equal(t, "produced", got)
	assert.Equal(t, 1, calls)
}

func TestCache_GetOrSetFactoryError(t *testing.T) {
	c := newTestCache(t, 1<<20, 100)

	wantErr := errors.New("backend down")
	_, err := c.GetOrSet(context.Background(), "a", func(context.Context) (string, error) {
		return "", wantErr
	}, 0)
	require.ErrorIs(t, err, wantErr)

	// Failures are not cached.
	assert.False(t, c.Has("a"))
}

func TestCache_OnEvict(t *testing.T) {
	var evicted []string
	c := New[string]("test", Options[string]{
		DefaultTTL: time.Minute,
		MaxBytes:   1 << 20,
		MaxEntries: 1,
		OnEvict: func(key string, _ string) {
			evicted = append(evicted, key)
		},
	}, nil)
	t.Cleanup(c.Destroy)

	c.Set("a", "value", 0)
	c.Set("b", "value", 0) // evicts a
	c.Delete("b")

	assert.Equal(t, []string{"a", "b"}, evicted)
}

func TestCache_ClearResetsCounters(t *testing.T) {
	c := newTestCache(t, 1<<20, 100)
	c.Set("a", "value", 0)
	c.Get("a")
	c.Get("absent")

	c.Clear()

	stats := c.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, int64(0), stats.Size)
	assert.Equal(t, int64(0), stats.Hits)
	assert.Equal(t, int64(0), stats.Misses)
}

func TestCache_Reaper(t *testing.T) {
	c := New[string]("test", Options[string]{
		DefaultTTL:      5 * time.Millisecond,
		MaxBytes:        1 << 20,
		MaxEntries:      100,
		CleanupInterval: 10 * time.Millisecond,
	}, nil)
	t.Cleanup(c.Destroy)

	c.Set("a", "value", 0)
	time.Sleep(40 * time.Millisecond)

	// The reaper removed the entry without any access touching it.
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestCache_DestroyIsIdempotent(t *testing.T) {
	c := newTestCache(t, 1<<20, 100)
	c.Set("a", "value", 0)

	c.Destroy()
	c.Destroy()

	assert.Equal(t, 0, c.Stats().Entries)
}

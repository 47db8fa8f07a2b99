package rpcClient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCacheExpiresAtTTL(t *testing.T) {
	clock := &manualClock{now: time.Unix(0, 0)}
	cache := NewCache[string](30*time.Second, clock.Now)

	cache.Set("k", "v")
	clock.Advance(30*time.Second - time.Millisecond)
	value, ok := cache.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", value)

	clock.Advance(time.Millisecond)
	_, ok = cache.Get("k")
	require.False(t, ok)
}

func TestCacheDiscardsStaleGeneration(t *testing.T) {
	cache := NewCache[int](time.Minute, nil)

	require.True(t, cache.SetGeneration("reserves", 2, 2))
	require.False(t, cache.SetGeneration("reserves", 1, 1))

	value, ok := cache.Get("reserves")
	require.True(t, ok)
	require.Equal(t, 2, value)

	require.True(t, cache.SetGeneration("reserves", 3, 3))
}

func TestCacheDeleteAndClear(t *testing.T) {
	cache := NewCache[int](0, nil)
	cache.Set("a", 1)
	cache.Set("b", 2)
	require.Equal(t, 2, cache.Len())

	cache.Delete("a")
	_, ok := cache.Get("a")
	require.False(t, ok)

	cache.Clear()
	require.Equal(t, 0, cache.Len())
}

package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, int](2)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3) // evicts a

	_, ok := c.Get("a")
	require.False(t, ok)
	v, ok := c.Get("b")
	require.True(t, ok)
	require.Equal(t, 2, v)
	require.Equal(t, 2, c.Len())
}

func TestLRU_GetRefreshesRecency(t *testing.T) {
	c := New[string, int](2)
	c.Set("a", 1)
	c.Set("b", 2)

	_, _ = c.Get("a")
	c.Set("c", 3) // b is now the oldest

	_, ok := c.Get("b")
	require.False(t, ok)
	_, ok = c.Get("a")
	require.True(t, ok)
}

func TestLRU_SetUpdatesInPlace(t *testing.T) {
	c := New[string, int](2)
	c.Set("a", 1)
	c.Set("a", 10)

	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 10, v)
	require.Equal(t, 1, c.Len())
}

func TestLRU_Evict(t *testing.T) {
	c := New[string, int](4)
	c.Set("a", 1)
	c.Evict("a")
	c.Evict("missing")

	_, ok := c.Get("a")
	require.False(t, ok)
	require.Zero(t, c.Len())
}

func TestLRU_ZeroCapacityFallsBackToDefault(t *testing.T) {
	c := New[int, int](0)
	for i := 0; i < defaultCapacity+10; i++ {
		c.Set(i, i)
	}
	require.Equal(t, defaultCapacity, c.Len())
}

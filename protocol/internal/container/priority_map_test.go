package container_test

import (
	"testing"

	"github.com/edgerpc/mqttrpc/protocol/internal/container"
	"github.com/stretchr/testify/require"
)

func TestPriorityMapGetSetDelete(t *testing.T) {
	m := container.NewPriorityMap[string, string, int64]()
	require.Zero(t, m.Len())

	m.Set("a", "alpha", 10)
	val, ok := m.Get("a")
	require.True(t, ok)
	require.Equal(t, "alpha", val)
	require.Equal(t, 1, m.Len())

	m.Delete("a")
	require.Equal(t, 0, m.Len())

	_, ok = m.Get("a")
	require.False(t, ok)
}

func TestPriorityMapNextReturnsLowestPriority(t *testing.T) {
	m := container.NewPriorityMap[string, string, int64]()

	m.Set("high", "high", 30)
	m.Set("low", "low", 10)
	m.Set("mid", "mid", 20)

	key, val, ok := m.Next()
	require.True(t, ok)
	require.Equal(t, "low", key)
	require.Equal(t, "low", val)

	// Next does not remove the entry.
	require.Equal(t, 3, m.Len())
}

func TestPriorityMapNextEmpty(t *testing.T) {
	m := container.NewPriorityMap[string, string, int64]()
	_, _, ok := m.Next()
	require.False(t, ok)
}

func TestPriorityMapSetUpdatesExistingEntryPriority(t *testing.T) {
	m := container.NewPriorityMap[string, string, int64]()

	m.Set("a", "first", 10)
	m.Set("b", "second", 20)
	m.Set("a", "first-updated", 30)

	require.Equal(t, 2, m.Len())

	val, ok := m.Get("a")
	require.True(t, ok)
	require.Equal(t, "first-updated", val)

	key, _, ok := m.Next()
	require.True(t, ok)
	require.Equal(t, "b", key, "b now has the lowest priority after a was reprioritized")
}

func TestPriorityMapDeleteFromMiddleOfHeap(t *testing.T) {
	m := container.NewPriorityMap[string, int, int64]()

	for i, key := range []string{"a", "b", "c", "d", "e"} {
		m.Set(key, i, int64(i))
	}

	m.Delete("c")
	require.Equal(t, 4, m.Len())

	seen := map[string]bool{}
	for m.Len() > 0 {
		key, _, ok := m.Next()
		require.True(t, ok)
		seen[key] = true
		m.Delete(key)
	}
	require.Equal(t, map[string]bool{"a": true, "b": true, "d": true, "e": true}, seen)
}

package graph

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	base := Key(nodes("A", "B"), []Edge{{"A", "B"}})

	assert.Equal(t, base, Key(nodes("A", "B"), []Edge{{"A", "B"}}))
	assert.NotEqual(t, base, Key(nodes("A", "B"), []Edge{{"B", "A"}}))
	assert.NotEqual(t, base, Key(nodes("A", "B"), nil))
	assert.NotEqual(t, base, Key([]Node{{ID: "A", Width: 1, Height: 1}, {ID: "B"}}, []Edge{{"A", "B"}}))
	// Length prefixes keep "AB"+"" distinct from "A"+"B".
	assert.NotEqual(t, Key(nil, []Edge{{"AB", ""}}), Key(nil, []Edge{{"A", "B"}}))
}

func TestCache_HitAndMiss(t *testing.T) {
	c := NewCache(4)

	l1, k1 := c.Layout(nodes("A", "B"), []Edge{{"A", "B"}})
	l2, k2 := c.Layout(nodes("A", "B"), []Edge{{"A", "B"}})

	assert.Same(t, l1, l2)
	assert.Equal(t, k1, k2)
	hits, misses := c.Stats()
	assert.Equal(t, uint64(1), hits)
	assert.Equal(t, uint64(1), misses)
}

func TestCache_Evicts(t *testing.T) {
	c := NewCache(2)
	c.Layout(nodes("A"), nil)
	c.Layout(nodes("B"), nil)
	c.Layout(nodes("C"), nil)

	assert.Equal(t, 2, c.Len())

	// The oldest entry was evicted and must be recomputed.
	c.Layout(nodes("A"), nil)
	_, misses := c.Stats()
	assert.Equal(t, uint64(4), misses)
}

func TestCache_HitRefreshesRecency(t *testing.T) {
	c := NewCache(2)
	a, _ := c.Layout(nodes("A"), nil)
	c.Layout(nodes("B"), nil)
	c.Layout(nodes("A"), nil)

	// A was used after B, so B is evicted to make room for C.
	c.Layout(nodes("C"), nil)
	got, _ := c.Layout(nodes("A"), nil)
	assert.Same(t, a, got)
	c.Layout(nodes("B"), nil)

	hits, misses := c.Stats()
	assert.Equal(t, uint64(2), hits)
	assert.Equal(t, uint64(4), misses)
}

func TestCache_Concurrent(t *testing.T) {
	c := NewCache(0)
	var wg sync.WaitGroup
	results := make([]*Layout, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = c.Layout(nodes("A", "B", "C"), []Edge{{"A", "B"}, {"B", "C"}})
		}()
	}
	wg.Wait()

	require.Equal(t, 1, c.Len())
	for _, l := range results {
		require.NotNil(t, l)
		assert.Len(t, l.Nodes, 3)
	}
}

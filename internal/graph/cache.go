package graph

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"sync"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize is the number of layouts a Cache keeps.
const DefaultCacheSize = 16

// Key returns a content hash of a layout input. Two inputs with the same
// nodes and edges in the same order hash identically.
func Key(nodes []Node, edges []Edge) string {
	h := blake3.New()
	var buf [8]byte
	writeString := func(s string) {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(s)))
		h.Write(buf[:])
		h.Write([]byte(s))
	}
	writeFloat := func(f float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		h.Write(buf[:])
	}

	binary.LittleEndian.PutUint64(buf[:], uint64(len(nodes)))
	h.Write(buf[:])
	for _, n := range nodes {
		writeString(n.ID)
		writeFloat(n.Width)
		writeFloat(n.Height)
	}
	binary.LittleEndian.PutUint64(buf[:], uint64(len(edges)))
	h.Write(buf[:])
	for _, e := range edges {
		writeString(e.Source)
		writeString(e.Target)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Cache memoizes ComputeLayout by input hash, evicting the least recently
// used layout when full. Concurrent requests for the same input share a
// single computation.
type Cache struct {
	opts []Option
	size int

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*Layout
	order   []string // least recently used first
	hits    uint64
	misses  uint64
}

// NewCache returns a cache holding up to size layouts computed with opts.
func NewCache(size int, opts ...Option) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Cache{
		opts:    opts,
		size:    size,
		entries: make(map[string]*Layout),
	}
}

// Layout returns the layout for the input, computing it on a miss.
// The returned key identifies the input.
func (c *Cache) Layout(nodes []Node, edges []Edge) (*Layout, string) {
	key := Key(nodes, edges)

	c.mu.Lock()
	if l, ok := c.entries[key]; ok {
		c.hits++
		c.touch(key)
		c.mu.Unlock()
		return l, key
	}
	c.misses++
	c.mu.Unlock()

	v, _, _ := c.group.Do(key, func() (any, error) {
		l := ComputeLayout(nodes, edges, c.opts...)
		c.store(key, l)
		return l, nil
	})
	return v.(*Layout), key
}

func (c *Cache) store(key string, l *Layout) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		return
	}
	c.entries[key] = l
	c.order = append(c.order, key)
	for len(c.order) > c.size {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
}

// touch moves key to the most recently used end of order. c.mu must be held.
func (c *Cache) touch(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(append(c.order[:i:i], c.order[i+1:]...), key)
			return
		}
	}
}

// Stats returns the hit and miss counters.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len returns the number of cached layouts.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

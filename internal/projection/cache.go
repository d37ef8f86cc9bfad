package projection

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"sync"
	"sync/atomic"
)

// RingCache holds projected rings by neighborhood name. Each entry keeps a
// fingerprint of the source ring it was projected from, so a neighborhood
// whose geometry changes is projected again.
type RingCache struct {
	mu     sync.RWMutex
	rings  map[string]cachedRing
	hits   atomic.Int64
	misses atomic.Int64
}

type cachedRing struct {
	source uint64
	ring   []LatLng
}

// CacheStats contains cache performance statistics.
type CacheStats struct {
	Entries int     `json:"entries"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// NewRingCache creates an empty RingCache.
func NewRingCache() *RingCache {
	return &RingCache{rings: make(map[string]cachedRing)}
}

// Get returns the ring projected for name from source, or nil when name
// is unknown or was projected from different coordinates.
func (c *RingCache) Get(name string, source [][]float64) []LatLng {
	c.mu.RLock()
	e, ok := c.rings[name]
	c.mu.RUnlock()
	if !ok || e.source != fingerprint(source) {
		c.misses.Add(1)
		return nil
	}
	c.hits.Add(1)
	return e.ring
}

// Put stores the ring projected for name from source.
func (c *RingCache) Put(name string, source [][]float64, ring []LatLng) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rings[name] = cachedRing{source: fingerprint(source), ring: ring}
}

// Stats returns cache performance statistics.
func (c *RingCache) Stats() CacheStats {
	c.mu.RLock()
	entries := len(c.rings)
	c.mu.RUnlock()

	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return CacheStats{Entries: entries, Hits: hits, Misses: misses, HitRate: rate}
}

// fingerprint hashes the coordinates of a ring.
func fingerprint(ring [][]float64) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for _, pt := range ring {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(pt)))
		_, _ = h.Write(buf[:])
		for _, v := range pt {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			_, _ = h.Write(buf[:])
		}
	}
	return h.Sum64()
}

// CachedTransformer memoizes ring projection by neighborhood name.
type CachedTransformer struct {
	*Transformer
	cache *RingCache
}

// NewCachedTransformer wraps t with cache.
func NewCachedTransformer(t *Transformer, cache *RingCache) *CachedTransformer {
	return &CachedTransformer{Transformer: t, cache: cache}
}

// NamedRing projects ring, reusing the cached result for name while its
// coordinates are unchanged. Failures are not cached. An empty name
// bypasses the cache.
func (c *CachedTransformer) NamedRing(name string, ring [][]float64) ([]LatLng, error) {
	if name == "" || c.cache == nil {
		return c.Ring(ring)
	}
	if cached := c.cache.Get(name, ring); cached != nil {
		return cached, nil
	}
	out, err := c.Ring(ring)
	if err != nil {
		return nil, err
	}
	c.cache.Put(name, ring, out)
	return out, nil
}

// Stats exposes the underlying cache statistics.
func (c *CachedTransformer) Stats() CacheStats {
	if c.cache == nil {
		return CacheStats{}
	}
	return c.cache.Stats()
}

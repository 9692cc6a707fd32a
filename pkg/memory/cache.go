package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/theapemachine/semem-store/pkg/sparql"
)

// CacheStats holds statistics about cache performance
type CacheStats struct {
	Entries int     `json:"entries"`
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hitRate"`
}

// queryCache holds query results in two maps, results and timestamps, that
// always share the same key set. Every method takes the lock, so the
// invariant holds between any two calls.
//
// order records when each key was last put, and breaks eviction ties between
// equal timestamps. generation counts clears; a fetch that started before a
// clear must not repopulate the cache.
type queryCache struct {
	mu         sync.Mutex
	results    map[string]*sparql.Results
	timestamps map[string]time.Time
	order      map[string]uint64
	seq        uint64
	generation uint64
	ttl        time.Duration
	maxSize    int
	now        func() time.Time
	hits       int64
	misses     int64
}

func newQueryCache(ttl time.Duration, maxSize int, now func() time.Time) *queryCache {
	return &queryCache{
		results:    make(map[string]*sparql.Results),
		timestamps: make(map[string]time.Time),
		order:      make(map[string]uint64),
		ttl:        ttl,
		maxSize:    maxSize,
		now:        now,
	}
}

// cacheKey hashes the endpoint and the trimmed query text.
func cacheKey(endpointURL string, query string) string {
	sum := sha256.Sum256([]byte(endpointURL + "\x00" + strings.TrimSpace(query)))
	return hex.EncodeToString(sum[:])
}

// get returns a result stored less than ttl ago.
func (c *queryCache) get(key string) (*sparql.Results, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	storedAt, ok := c.timestamps[key]
	if !ok || c.now().Sub(storedAt) >= c.ttl {
		c.misses++
		return nil, false
	}

	c.hits++
	return c.results[key], true
}

// put stores results under key and evicts oldest entries until the cache is
// within bounds. It returns the number of evicted entries.
func (c *queryCache) put(key string, results *sparql.Results) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.putLocked(key, results)
}

// gen returns the current generation, to be passed to putIfCurrent once
// the fetched results arrive.
func (c *queryCache) gen() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.generation
}

// putIfCurrent stores results only when the cache has not been cleared
// since gen was read.
func (c *queryCache) putIfCurrent(key string, results *sparql.Results, gen uint64) (stored bool, evicted int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		return false, 0
	}

	return true, c.putLocked(key, results)
}

func (c *queryCache) putLocked(key string, results *sparql.Results) int {
	c.seq++
	c.results[key] = results
	c.timestamps[key] = c.now()
	c.order[key] = c.seq

	evicted := 0
	for len(c.results) > c.maxSize && c.evictOldestLocked() {
		evicted++
	}

	return evicted
}

// cleanup drops expired entries, then oldest entries while over budget.
func (c *queryCache) cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	now := c.now()

	for key, storedAt := range c.timestamps {
		if now.Sub(storedAt) >= c.ttl {
			c.deleteLocked(key)
			removed++
		}
	}

	for len(c.results) > c.maxSize && c.evictOldestLocked() {
		removed++
	}

	return removed
}

func (c *queryCache) clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.results)
	c.results = make(map[string]*sparql.Results)
	c.timestamps = make(map[string]time.Time)
	c.order = make(map[string]uint64)
	c.generation++

	return n
}

func (c *queryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.results)
}

func (c *queryCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Entries: len(c.results),
		Hits:    c.hits,
		Misses:  c.misses,
	}

	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}

	return stats
}

// evictOldestLocked removes the entry with the smallest stored timestamp.
// Ties go to the entry put first.
func (c *queryCache) evictOldestLocked() bool {
	var (
		oldestKey  string
		oldestTime time.Time
		oldestSeq  uint64
		found      bool
	)

	for key, storedAt := range c.timestamps {
		seq := c.order[key]
		if !found || storedAt.Before(oldestTime) || (storedAt.Equal(oldestTime) && seq < oldestSeq) {
			oldestKey, oldestTime, oldestSeq, found = key, storedAt, seq, true
		}
	}

	if found {
		c.deleteLocked(oldestKey)
	}

	return found
}

func (c *queryCache) deleteLocked(key string) {
	delete(c.results, key)
	delete(c.timestamps, key)
	delete(c.order, key)
}

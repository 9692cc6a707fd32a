package memory

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
	"github.com/theapemachine/semem-store/pkg/sparql"
)

// CachedSPARQLStore is a SPARQLStore whose reads are served from a bounded
// TTL cache. Any mutation empties the whole cache; SPARQL reads and writes
// can overlap arbitrarily, so no finer dependency tracking is attempted.
// Concurrent misses on the same query are not de-duplicated.
type CachedSPARQLStore struct {
	*SPARQLStore

	cache        *queryCache
	cacheEnabled bool

	schedMu   sync.Mutex
	scheduler *cron.Cron
}

// NewCachedSPARQLStore creates a caching SPARQL store. When
// opts.CleanupInterval is positive a background sweep is started; Close
// stops it.
func NewCachedSPARQLStore(endpoint Endpoint, opts Options) (*CachedSPARQLStore, error) {
	opts = opts.withDefaults()

	base, err := NewSPARQLStore(endpoint, opts)
	if err != nil {
		return nil, err
	}

	store := &CachedSPARQLStore{
		SPARQLStore:  base,
		cache:        newQueryCache(opts.CacheTTL, opts.MaxCacheSize, opts.Clock),
		cacheEnabled: *opts.CacheEnabled,
	}
	base.querier = store

	if store.cacheEnabled && opts.CleanupInterval > 0 {
		store.startCleanup(opts.CleanupInterval)
	}

	return store, nil
}

// ExecuteSparqlQuery serves reads from the cache when a fresh entry exists
// and caches successful misses. Updates bypass the cache and invalidate it.
func (store *CachedSPARQLStore) ExecuteSparqlQuery(ctx context.Context, query string, endpointURL string) (*sparql.Results, error) {
	if store.isUpdate(query, endpointURL) {
		defer store.InvalidateCache()
		return store.SPARQLStore.ExecuteSparqlQuery(ctx, query, endpointURL)
	}

	if !store.cacheEnabled {
		return store.SPARQLStore.ExecuteSparqlQuery(ctx, query, endpointURL)
	}

	key := cacheKey(endpointURL, query)

	if results, ok := store.cache.get(key); ok {
		store.logger.Debug("cache hit", "key", key[:12])
		return results, nil
	}

	gen := store.cache.gen()

	results, err := store.SPARQLStore.ExecuteSparqlQuery(ctx, query, endpointURL)
	if err != nil {
		return nil, err
	}

	stored, evicted := store.cache.putIfCurrent(key, results, gen)
	if !stored {
		store.logger.Debug("cache invalidated during fetch, not storing", "key", key[:12])
	}
	if evicted > 0 {
		store.logger.Debug("cache evicted oldest entries", "count", evicted)
	}

	return results, nil
}

// GenerateCacheKey returns the cache key of query on the query endpoint.
func (store *CachedSPARQLStore) GenerateCacheKey(query string) string {
	return cacheKey(store.endpoint.Query, query)
}

// InvalidateCache removes every cached result.
func (store *CachedSPARQLStore) InvalidateCache() {
	if n := store.cache.clear(); n > 0 {
		store.logger.Debug("cache invalidated", "entries", n)
	}
}

// CleanupCache drops expired entries, then the oldest ones while the cache is
// over its size bound. It returns the number of entries removed.
func (store *CachedSPARQLStore) CleanupCache() int {
	return store.cache.cleanup()
}

// CacheStats returns hit/miss counters and the current size.
func (store *CachedSPARQLStore) CacheStats() CacheStats {
	return store.cache.stats()
}

// Len returns the number of cached results.
func (store *CachedSPARQLStore) Len() int {
	return store.cache.len()
}

// SaveMemoryToHistory persists memory and empties the cache, also when the
// save fails part way.
func (store *CachedSPARQLStore) SaveMemoryToHistory(ctx context.Context, memory *MemoryStore) error {
	defer store.InvalidateCache()
	return store.SPARQLStore.SaveMemoryToHistory(ctx, memory)
}

// CommitTransaction commits and empties the cache.
func (store *CachedSPARQLStore) CommitTransaction(ctx context.Context) error {
	defer store.InvalidateCache()
	return store.SPARQLStore.CommitTransaction(ctx)
}

// RollbackTransaction rolls back and empties the cache.
func (store *CachedSPARQLStore) RollbackTransaction(ctx context.Context) error {
	defer store.InvalidateCache()
	return store.SPARQLStore.RollbackTransaction(ctx)
}

// Close empties the cache, stops the cleanup sweep and closes the store.
func (store *CachedSPARQLStore) Close(ctx context.Context) error {
	store.InvalidateCache()
	store.stopCleanup()

	return store.SPARQLStore.Close(ctx)
}

func (store *CachedSPARQLStore) startCleanup(interval time.Duration) {
	logger := cronLogger{store.logger}

	scheduler := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	scheduler.Schedule(cron.Every(interval), cron.FuncJob(func() {
		if removed := store.CleanupCache(); removed > 0 {
			store.logger.Debug("cache cleanup", "removed", removed)
		}
	}))

	scheduler.Start()

	store.schedMu.Lock()
	store.scheduler = scheduler
	store.schedMu.Unlock()
}

// stopCleanup stops the sweep and waits for a running one to finish.
func (store *CachedSPARQLStore) stopCleanup() {
	store.schedMu.Lock()
	scheduler := store.scheduler
	store.scheduler = nil
	store.schedMu.Unlock()

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
}

// cronLogger routes scheduler logs through the store logger.
type cronLogger struct {
	logger *log.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

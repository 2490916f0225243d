package shard

import (
	"encoding/json"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/canopy-project/canopy/internal/query"
	"github.com/canopy-project/canopy/internal/store"
)

// DefaultOpenIndexCacheSize bounds how many Store connections the manager
// keeps open across all repos at once.
const DefaultOpenIndexCacheSize = 32

// DefaultQueryCacheSize is the per-repo query-result cache capacity.
const DefaultQueryCacheSize = 128

// openEntry is one opened-index cache slot: a live Store tagged with the
// generation it was opened at.
type openEntry struct {
	store      store.Store
	generation uint64
}

// queryCacheKey serializes the subset of query.Params that determines a
// result, so identical requests hit the same cache slot. Fields are written
// in a fixed order; json.Marshal on a plain struct gives us that without
// hand-rolled string building.
func queryCacheKey(p query.Params) string {
	b, err := json.Marshal(p)
	if err != nil {
		// Params is a plain data struct; Marshal cannot fail in practice.
		// Fall back to a key that never hits, forcing a fresh Execute.
		return fmt.Sprintf("unserializable:%p", &p)
	}
	return string(b)
}

// perRepoQueryCache wraps a bounded cache for one repo's query results,
// keyed by serialized params and invalidated wholesale on generation change.
type perRepoQueryCache struct {
	mu         sync.Mutex
	generation uint64
	cache      *lru.Cache[string, *query.Result]
}

func newPerRepoQueryCache(size int) *perRepoQueryCache {
	c, _ := lru.New[string, *query.Result](size)
	return &perRepoQueryCache{cache: c}
}

// get returns a cached result only if it was produced at generation gen;
// a generation mismatch clears the cache before reporting a miss.
func (c *perRepoQueryCache) get(gen uint64, key string) (*query.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		c.cache.Purge()
		c.generation = gen
		return nil, false
	}
	return c.cache.Get(key)
}

func (c *perRepoQueryCache) put(gen uint64, key string, result *query.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		c.cache.Purge()
		c.generation = gen
	}
	c.cache.Add(key, result)
}

func (c *perRepoQueryCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Purge()
}

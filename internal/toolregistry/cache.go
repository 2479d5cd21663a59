package toolregistry

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultSearchCacheSize = 256

// searchCache memoizes free-text search results keyed by the normalized
// query. Any registry mutation purges it wholesale; searches are cheap to
// redo and correctness beats retention here.
type searchCache struct {
	cache *lru.Cache[string, []string]
}

func newSearchCache(size int) *searchCache {
	if size <= 0 {
		size = defaultSearchCacheSize
	}
	cache, err := lru.New[string, []string](size)
	if err != nil {
		// lru.New only errors on non-positive size which we guard above.
		return &searchCache{}
	}
	return &searchCache{cache: cache}
}

func (c *searchCache) get(key string) ([]string, bool) {
	if c == nil || c.cache == nil {
		return nil, false
	}
	return c.cache.Get(key)
}

func (c *searchCache) put(key string, names []string) {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Add(key, names)
}

func (c *searchCache) purge() {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Purge()
}

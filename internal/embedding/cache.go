package embedding

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Loader constructs a provider for a model identifier. Loads may be slow and
// blocking; the cache guarantees at most one runs per identifier at a time.
type Loader func(ctx context.Context, model string) (Provider, error)

// Cache memoizes embedding providers by model identifier for the process
// lifetime. Cached reads take a shared lock only; concurrent first loads of
// the same identifier are collapsed into a single load, while loads of
// different identifiers proceed in parallel. Entries are never evicted, and
// failed loads are not memoized.
type Cache struct {
	load Loader

	mu        sync.RWMutex
	providers map[string]Provider
	group     singleflight.Group
}

// NewCache creates a provider cache backed by the given loader.
func NewCache(load Loader) *Cache {
	return &Cache{
		load:      load,
		providers: make(map[string]Provider),
	}
}

// Get returns the provider for model, loading it on first use.
func (c *Cache) Get(ctx context.Context, model string) (Provider, error) {
	c.mu.RLock()
	p, ok := c.providers[model]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	v, err, _ := c.group.Do(model, func() (any, error) {
		// Re-check under the flight: a previous winner may have stored it.
		c.mu.RLock()
		p, ok := c.providers[model]
		c.mu.RUnlock()
		if ok {
			return p, nil
		}

		p, err := c.load(ctx, model)
		if err != nil {
			return nil, &ProviderLoadError{Model: model, Err: err}
		}

		c.mu.Lock()
		c.providers[model] = p
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Provider), nil
}

// Loaded returns the identifiers of all providers loaded so far, sorted.
func (c *Cache) Loaded() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

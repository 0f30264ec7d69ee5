package profile

import (
	"fmt"
	"sync"

	"github.com/cuemby/beacon/pkg/log"
	"github.com/cuemby/beacon/pkg/storage"
	"github.com/rs/zerolog"
)

// Cache is the last known value of every profile field.
//
// Reads are served from memory. SetAll writes through to the store so a
// restarted process diffs against what it last sent.
type Cache struct {
	mu     sync.RWMutex
	values map[string]any
	store  storage.ProfileStore
	logger zerolog.Logger
}

// NewCache loads the cache from store. store may be nil for a memory-only cache.
func NewCache(store storage.ProfileStore) (*Cache, error) {
	c := &Cache{
		values: make(map[string]any),
		store:  store,
		logger: log.WithComponent("profile"),
	}
	if store == nil {
		return c, nil
	}

	values, err := store.LoadProfile()
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	for k, v := range values {
		c.values[k] = v
	}
	return c, nil
}

// Get returns the cached value of field
func (c *Cache) Get(field string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[field]
	return v, ok
}

// SetAll replaces the given fields. A nil value removes the field.
func (c *Cache) SetAll(values map[string]any) {
	if len(values) == 0 {
		return
	}

	c.mu.Lock()
	for k, v := range values {
		if v == nil {
			delete(c.values, k)
			continue
		}
		c.values[k] = v
	}
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	if err := c.store.SaveProfileFields(values); err != nil {
		c.logger.Error().Err(err).Int("fields", len(values)).Msg("Failed to persist profile fields")
	}
}

// Snapshot returns a copy of every cached field
func (c *Cache) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

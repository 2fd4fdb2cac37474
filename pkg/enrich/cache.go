package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/skukla/kukla-integration-service-sub006/pkg/cache"
)

// CategoryCache persists a built CategoryMap across runs. The key carries the
// config fingerprint so caches for different upstreams or environments never
// mix. Entries expire after the configured TTL and are rebuilt on miss;
// corrupt bytes are treated as a miss.
type CategoryCache struct {
	store  cache.Store
	key    string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewCategoryCache creates a category cache bound to one config fingerprint.
func NewCategoryCache(store cache.Store, fingerprint string, ttl time.Duration, logger zerolog.Logger) *CategoryCache {
	return &CategoryCache{
		store:  store,
		key:    cache.Key("categories", map[string]string{"fingerprint": fingerprint}),
		ttl:    ttl,
		logger: logger,
	}
}

// Load returns the cached map, or false on miss, expiry, or corrupt bytes.
func (c *CategoryCache) Load(ctx context.Context) (CategoryMap, bool) {
	data, err := c.store.Get(ctx, c.key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Msg("Category cache read failed, rebuilding")
		}
		return nil, false
	}

	var m CategoryMap
	if err := json.Unmarshal(data, &m); err != nil {
		c.logger.Warn().Err(err).Msg("Category cache entry corrupt, rebuilding")
		return nil, false
	}

	c.logger.Debug().Int("categories", len(m)).Msg("Category map served from cache")
	return m, true
}

// Store persists the map for the TTL. Failures are logged and swallowed; the
// next run simply rebuilds.
func (c *CategoryCache) Store(ctx context.Context, m CategoryMap) {
	if len(m) == 0 {
		return
	}

	data, err := json.Marshal(m)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Category cache encode failed")
		return
	}
	if err := c.store.Set(ctx, c.key, data, c.ttl); err != nil {
		c.logger.Warn().Err(err).Msg("Category cache write failed")
		return
	}

	c.logger.Debug().Int("categories", len(m)).Dur("ttl", c.ttl).Msg("Category map cached")
}

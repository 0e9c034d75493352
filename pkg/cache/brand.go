package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/blessingk/neo4j/pkg/metrics"
	"github.com/blessingk/neo4j/pkg/models"
	"github.com/blessingk/neo4j/pkg/tracing"
)

const brandKeyPrefix = "identity:brand:"

// KV is the key/value surface the caches need. *Client satisfies it.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// BrandCache caches brands by id. Cache failures are logged and treated as misses.
type BrandCache struct {
	kv     KV
	ttl    time.Duration
	logger ectologger.Logger
}

// NewBrandCache creates a brand cache whose entries expire after ttl.
func NewBrandCache(kv KV, ttl time.Duration, logger ectologger.Logger) *BrandCache {
	return &BrandCache{
		kv:     kv,
		ttl:    ttl,
		logger: logger,
	}
}

func brandKey(id string) string {
	return brandKeyPrefix + id
}

// Get returns the cached brand, or nil on a miss.
func (c *BrandCache) Get(ctx context.Context, id string) *models.Brand {
	ctx, span := tracing.StartSpan(ctx, "cache.BrandCache.Get")
	defer span.End()

	raw, ok, err := c.kv.Get(ctx, brandKey(id))
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("brand_id", id).Warn("Brand cache read failed")
		metrics.RecordBrandCacheLookup(false)
		return nil
	}
	if !ok {
		metrics.RecordBrandCacheLookup(false)
		return nil
	}

	var brand models.Brand
	if err := json.Unmarshal([]byte(raw), &brand); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("brand_id", id).Warn("Discarding unreadable brand cache entry")
		metrics.RecordBrandCacheLookup(false)
		return nil
	}
	metrics.RecordBrandCacheLookup(true)
	return &brand
}

// Set stores brand.
func (c *BrandCache) Set(ctx context.Context, brand *models.Brand) {
	ctx, span := tracing.StartSpan(ctx, "cache.BrandCache.Set")
	defer span.End()

	data, err := json.Marshal(brand)
	if err != nil {
		return
	}
	if err := c.kv.Set(ctx, brandKey(brand.ID), string(data), c.ttl); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("brand_id", brand.ID).Warn("Brand cache write failed")
	}
}

// Invalidate drops the cached brand.
func (c *BrandCache) Invalidate(ctx context.Context, id string) {
	if err := c.kv.Del(ctx, brandKey(id)); err != nil {
		c.logger.WithContext(ctx).WithError(err).WithField("brand_id", id).Warn("Brand cache invalidation failed")
	}
}

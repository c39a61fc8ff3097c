package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/okian/lingotrack/internal/domain/model"
	"github.com/okian/lingotrack/pkg/logger"
	"github.com/okian/lingotrack/pkg/metrics"
)

const (
	defaultCacheTTL    = 10 * time.Minute
	defaultCachePrefix = "lingotrack:catalog:"
)

// CacheOption configures a CachedCatalog.
type CacheOption func(*CachedCatalog)

// WithTTL sets the expiry of cached entries.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *CachedCatalog) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithKeyPrefix namespaces cache keys.
func WithKeyPrefix(prefix string) CacheOption {
	return func(c *CachedCatalog) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) CacheOption {
	return func(c *CachedCatalog) {
		if l != nil {
			c.log = l
		}
	}
}

// CachedCatalog is a Redis read-through cache in front of another Catalog
// for the per-unit asset list and the per-story unit list. Redis failures
// never fail a lookup; the wrapped catalog answers instead.
type CachedCatalog struct {
	next   Catalog
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	log    logger.Logger
}

var _ Catalog = (*CachedCatalog)(nil)

// NewCachedCatalog wraps next with a Redis cache.
func NewCachedCatalog(next Catalog, rdb redis.Cmdable, opts ...CacheOption) *CachedCatalog {
	c := &CachedCatalog{
		next:   next,
		rdb:    rdb,
		ttl:    defaultCacheTTL,
		prefix: defaultCachePrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("catalog_cache")
	}
	return c
}

func (c *CachedCatalog) UnitAssets(ctx context.Context, unitID string) ([]model.Asset, error) {
	return readThrough(ctx, c, "unit_assets:"+unitID, func() ([]model.Asset, error) {
		return c.next.UnitAssets(ctx, unitID)
	})
}

func (c *CachedCatalog) StoryUnits(ctx context.Context, storyID string) ([]model.Unit, error) {
	return readThrough(ctx, c, "story_units:"+storyID, func() ([]model.Unit, error) {
		return c.next.StoryUnits(ctx, storyID)
	})
}

// Units is not cached; its key space is the learner's touched set.
func (c *CachedCatalog) Units(ctx context.Context, ids []string) ([]model.Unit, error) {
	return c.next.Units(ctx, ids)
}

// Stories is not cached.
func (c *CachedCatalog) Stories(ctx context.Context, ids []string) ([]model.Story, error) {
	return c.next.Stories(ctx, ids)
}

func readThrough[T any](ctx context.Context, c *CachedCatalog, key string, load func() ([]T, error)) ([]T, error) {
	key = c.prefix + key

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var out []T
		uerr := sonic.Unmarshal(raw, &out)
		if uerr == nil {
			metrics.RecordCatalogCacheHit()
			return out, nil
		}
		metrics.RecordCatalogCacheError()
		c.log.Warn(ctx, "discarding undecodable cache entry", logger.String("key", key), logger.Error(uerr))
	case errors.Is(err, redis.Nil):
		metrics.RecordCatalogCacheMiss()
	default:
		metrics.RecordCatalogCacheError()
		c.log.Warn(ctx, "catalog cache read failed", logger.String("key", key), logger.Error(err))
	}

	out, err := load()
	if err != nil {
		return nil, err
	}
	payload, err := sonic.Marshal(out)
	if err != nil {
		metrics.RecordCatalogCacheError()
		return out, nil
	}
	if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		metrics.RecordCatalogCacheError()
		c.log.Warn(ctx, "catalog cache write failed", logger.String("key", key), logger.Error(err))
	}
	return out, nil
}

package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/pds-match-service/internal/domain"
)

const recordKeyPrefix = "pds-match:record:"

// CachedRecord represents a cached registry record with metadata
type CachedRecord struct {
	Data      *domain.PatientRecord `json:"data"`
	CachedAt  time.Time             `json:"cached_at"`
	ExpiresAt time.Time             `json:"expires_at"`
}

// RecordCache wraps a registry client with a two-tier fetch cache: an in-memory LRU in front
// of an optional Redis tier. Searches always go to the registry.
type RecordCache struct {
	client      domain.RegistryClient
	memoryCache *lru.Cache[string, CachedRecord]
	redis       *redis.Client
	defaultTTL  time.Duration
	logger      *logrus.Logger
}

// NewRedisClient opens a Redis client from the cache configuration.
func NewRedisClient(ctx context.Context, config domain.CacheConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// NewRecordCache creates a new record cache. redisClient may be nil for a memory-only cache.
func NewRecordCache(client domain.RegistryClient, redisClient *redis.Client, config domain.CacheConfig, logger *logrus.Logger) (*RecordCache, error) {
	if config.MemorySize == 0 {
		config.MemorySize = 1000
	}
	if config.DefaultTTL == 0 {
		config.DefaultTTL = 15 * time.Minute
	}

	memoryCache, err := lru.New[string, CachedRecord](config.MemorySize)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	return &RecordCache{
		client:      client,
		memoryCache: memoryCache,
		redis:       redisClient,
		defaultTTL:  config.DefaultTTL,
		logger:      logger,
	}, nil
}

// Search passes through to the registry.
func (c *RecordCache) Search(ctx context.Context, variant domain.QueryVariant) (domain.RegistrySearchResult, error) {
	return c.client.Search(ctx, variant)
}

// Fetch returns a cached record when one is fresh, otherwise fetches and caches it.
// Not-found, superseded and failed fetches are never cached.
func (c *RecordCache) Fetch(ctx context.Context, identifier string) (*domain.PatientRecord, error) {
	if record := c.getFromMemory(identifier); record != nil {
		c.logger.WithFields(logrus.Fields{
			"identifier": identifier,
			"cache_tier": "memory",
		}).Debug("Cache hit in memory")
		return record, nil
	}

	if cached, ok := c.getFromRedis(ctx, identifier); ok {
		c.logger.WithFields(logrus.Fields{
			"identifier": identifier,
			"cache_tier": "redis",
		}).Debug("Cache hit in Redis")
		c.memoryCache.Add(identifier, cached)
		return cached.Data, nil
	}

	record, err := c.client.Fetch(ctx, identifier)
	if err != nil {
		return nil, err
	}

	c.set(ctx, identifier, record)
	return record, nil
}

// Refresh always fetches from the registry. A record that was found is written back to both
// tiers; one that is now missing or superseded is evicted so later cached reads stop serving it.
func (c *RecordCache) Refresh(ctx context.Context, identifier string) (*domain.PatientRecord, error) {
	record, err := c.client.Fetch(ctx, identifier)
	if err != nil {
		var superseded *domain.SupersededError
		if errors.Is(err, domain.ErrRecordNotFound) || errors.As(err, &superseded) {
			if invalidateErr := c.Invalidate(ctx, identifier); invalidateErr != nil {
				c.logger.WithError(invalidateErr).WithField("identifier", identifier).Warn("Failed to evict record from cache")
			}
		}
		return nil, err
	}

	c.set(ctx, identifier, record)
	return record, nil
}

// Fresh returns a view of the cache whose Fetch always revalidates against the registry.
// Reconciliation reads through it, since a stale record would hide a merge or removal.
func (c *RecordCache) Fresh() domain.RegistryClient {
	return freshView{cache: c}
}

type freshView struct {
	cache *RecordCache
}

func (v freshView) Search(ctx context.Context, variant domain.QueryVariant) (domain.RegistrySearchResult, error) {
	return v.cache.Search(ctx, variant)
}

func (v freshView) Fetch(ctx context.Context, identifier string) (*domain.PatientRecord, error) {
	return v.cache.Refresh(ctx, identifier)
}

// Invalidate removes a record from both tiers.
func (c *RecordCache) Invalidate(ctx context.Context, identifier string) error {
	c.memoryCache.Remove(identifier)
	if c.redis == nil {
		return nil
	}
	return c.redis.Del(ctx, recordKeyPrefix+identifier).Err()
}

// Close closes the Redis tier.
func (c *RecordCache) Close() error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}

func (c *RecordCache) getFromMemory(identifier string) *domain.PatientRecord {
	cached, ok := c.memoryCache.Get(identifier)
	if !ok {
		return nil
	}
	if time.Now().After(cached.ExpiresAt) {
		c.memoryCache.Remove(identifier)
		return nil
	}
	return cached.Data
}

func (c *RecordCache) getFromRedis(ctx context.Context, identifier string) (CachedRecord, bool) {
	if c.redis == nil {
		return CachedRecord{}, false
	}

	key := recordKeyPrefix + identifier
	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return CachedRecord{}, false
	}
	if err != nil {
		c.logger.WithError(err).Warn("Failed to read record cache")
		return CachedRecord{}, false
	}

	var cached CachedRecord
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, key)
		return CachedRecord{}, false
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return CachedRecord{}, false
	}

	return cached, true
}

func (c *RecordCache) set(ctx context.Context, identifier string, record *domain.PatientRecord) {
	now := time.Now()
	cached := CachedRecord{
		Data:      record,
		CachedAt:  now,
		ExpiresAt: now.Add(c.defaultTTL),
	}
	c.memoryCache.Add(identifier, cached)

	if c.redis == nil {
		return
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to marshal record cache data")
		return
	}
	if err := c.redis.Set(ctx, recordKeyPrefix+identifier, jsonData, c.defaultTTL).Err(); err != nil {
		// Log cache error but don't fail the request
		c.logger.WithError(err).Warn("Failed to cache record")
	}
}

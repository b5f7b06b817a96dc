package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru"
	"github.com/hession/shopsearch/internal/catalog"
	"github.com/hession/shopsearch/internal/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheVersion = "v1"

// Cache stores interpretations by key.
type Cache interface {
	Get(ctx context.Context, key string) (ParsedQuery, bool, error)
	Set(ctx context.Context, key string, parsed ParsedQuery) error
}

// CacheObserver is told about every lookup.
type CacheObserver interface {
	ObserveCache(hit bool)
}

// NewCache builds the configured backend. It returns nil for "none".
func NewCache(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Backend {
	case config.CacheNone, "":
		return nil, nil
	case config.CacheMemory:
		c, err := NewMemoryCache(cfg.Size)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.CacheRedis:
		c, err := NewRedisCache(cfg.RedisURL, time.Duration(cfg.TTLSeconds)*time.Second)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Backend)
	}
}

// CacheKey derives the key from the query and the exact catalog it was
// interpreted against.
func CacheKey(query string, filters catalog.AvailableFilters) string {
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write([]byte(filters.JSON()))
	return "shopsearch:query:" + cacheVersion + ":" + hex.EncodeToString(h.Sum(nil))
}

// CachingInterpreter serves repeated queries from cache so identical
// searches resolve to identical filters.
type CachingInterpreter struct {
	next  Interpreter
	cache Cache
	obs   CacheObserver
	log   *zap.Logger
}

// NewCachingInterpreter wraps next. A nil cache disables caching.
func NewCachingInterpreter(next Interpreter, cache Cache, obs CacheObserver, log *zap.Logger) Interpreter {
	if cache == nil {
		return next
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CachingInterpreter{next: next, cache: cache, obs: obs, log: log}
}

// Interpret checks the cache first. Cache failures never fail the search.
func (c *CachingInterpreter) Interpret(ctx context.Context, query string, filters catalog.AvailableFilters) (ParsedQuery, error) {
	key := CacheKey(query, filters)

	parsed, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Warn("interpretation cache read failed", zap.Error(err))
	}
	if c.obs != nil {
		c.obs.ObserveCache(ok)
	}
	if ok {
		return parsed, nil
	}

	parsed, err = c.next.Interpret(ctx, query, filters)
	if err != nil {
		return ParsedQuery{}, err
	}

	if err := c.cache.Set(ctx, key, parsed); err != nil {
		c.log.Warn("interpretation cache write failed", zap.Error(err))
	}
	return parsed, nil
}

// MemoryCache is a process-local LRU.
type MemoryCache struct {
	entries *lru.Cache
}

// NewMemoryCache creates an LRU holding at most size entries.
func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		size = 256
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &MemoryCache{entries: c}, nil
}

func (m *MemoryCache) Get(_ context.Context, key string) (ParsedQuery, bool, error) {
	v, ok := m.entries.Get(key)
	if !ok {
		return ParsedQuery{}, false, nil
	}
	parsed := v.(ParsedQuery)
	parsed.Filters = append([]string{}, parsed.Filters...)
	return parsed, true, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, parsed ParsedQuery) error {
	parsed.Filters = append([]string{}, parsed.Filters...)
	m.entries.Add(key, parsed)
	return nil
}

// RedisCache shares interpretations between processes.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to redisURL and verifies the connection.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL must be provided")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) (ParsedQuery, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ParsedQuery{}, false, nil
	}
	if err != nil {
		return ParsedQuery{}, false, err
	}
	var parsed ParsedQuery
	if err := json.Unmarshal(data, &parsed); err != nil {
		return ParsedQuery{}, false, fmt.Errorf("failed to decode cached query: %w", err)
	}
	return parsed, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, parsed ParsedQuery) error {
	data, err := json.Marshal(parsed)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, r.ttl).Err()
}

// Close releases the connection pool.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

package genres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// CacheTTL is the duration after which cached artist genres are considered stale.
const CacheTTL = 7 * 24 * time.Hour

// Cache stores artist genre tags by artist ID. An artist known to have no
// genres is stored with an empty, non-nil slice.
type Cache interface {
	GetMany(ctx context.Context, ids []string) (map[string][]string, error)
	SetMany(ctx context.Context, genres map[string][]string) error
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	genres   []string
	storedAt time.Time
}

// NewMemoryCache creates an empty in-memory cache with the default TTL.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     CacheTTL,
		now:     time.Now,
	}
}

// GetMany returns the fresh entries for ids.
func (c *MemoryCache) GetMany(_ context.Context, ids []string) (map[string][]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	staleBefore := c.now().Add(-c.ttl)
	found := make(map[string][]string, len(ids))
	for _, id := range ids {
		e, ok := c.entries[id]
		if !ok || e.storedAt.Before(staleBefore) {
			continue
		}
		found[id] = e.genres
	}
	return found, nil
}

// SetMany stores genres.
func (c *MemoryCache) SetMany(_ context.Context, genres map[string][]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, g := range genres {
		c.entries[id] = memoryEntry{genres: nonNil(g), storedAt: now}
	}
	return nil
}

// Len returns the number of cached artists.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

const redisKeyPrefix = "curator:artist-genres:"

// RedisCache stores artist genres in Redis as JSON arrays with a TTL.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisCache wraps a Redis client. A non-positive ttl uses CacheTTL.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = CacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

// GetMany fetches the cached entries for ids in one round trip.
func (c *RedisCache) GetMany(ctx context.Context, ids []string) (map[string][]string, error) {
	found := make(map[string][]string, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisKey(id)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("reading artist genres from redis: %w", err)
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue // Missing key
		}
		genres, err := decodeGenres(s)
		if err != nil {
			continue
		}
		found[ids[i]] = genres
	}
	return found, nil
}

// SetMany writes genres with the cache TTL.
func (c *RedisCache) SetMany(ctx context.Context, genres map[string][]string) error {
	if len(genres) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for id, g := range genres {
		data, err := json.Marshal(nonNil(g))
		if err != nil {
			return fmt.Errorf("encoding genres for %s: %w", id, err)
		}
		pipe.Set(ctx, redisKey(id), data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("writing artist genres to redis: %w", err)
	}
	return nil
}

func redisKey(id string) string {
	return redisKeyPrefix + id
}

func decodeGenres(s string) ([]string, error) {
	var genres []string
	if err := json.Unmarshal([]byte(s), &genres); err != nil {
		return nil, err
	}
	return nonNil(genres), nil
}

// Store persists artist genres, typically in PostgreSQL.
type Store interface {
	GetArtistGenres(ctx context.Context, ids []string, freshSince time.Time) (map[string][]string, error)
	UpsertArtistGenres(ctx context.Context, genres map[string][]string, fetchedAt time.Time) error
}

// StoreCache adapts a Store to the Cache interface with lazy expiry.
type StoreCache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewStoreCache creates a Cache backed by store.
func NewStoreCache(store Store) *StoreCache {
	return &StoreCache{store: store, ttl: CacheTTL, now: time.Now}
}

// GetMany returns entries fetched within the TTL.
func (c *StoreCache) GetMany(ctx context.Context, ids []string) (map[string][]string, error) {
	if len(ids) == 0 {
		return make(map[string][]string), nil
	}
	found, err := c.store.GetArtistGenres(ctx, ids, c.now().Add(-c.ttl))
	if err != nil {
		return nil, fmt.Errorf("getting cached artist genres: %w", err)
	}
	return found, nil
}

// SetMany persists genres stamped with the current time.
func (c *StoreCache) SetMany(ctx context.Context, genres map[string][]string) error {
	if len(genres) == 0 {
		return nil
	}
	if err := c.store.UpsertArtistGenres(ctx, genres, c.now()); err != nil {
		return fmt.Errorf("persisting artist genres: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

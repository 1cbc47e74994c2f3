package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// DefaultStaleRetention is how long an entry with validators is kept after
// it expires, for conditional revalidation.
const DefaultStaleRetention = 24 * time.Hour

// Manager handles caching operations with Redis backend.
type Manager struct {
	redis          *redis.Client
	staleRetention time.Duration
}

// NewManager creates a new cache manager with Redis backend.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis:          redisClient,
		staleRetention: DefaultStaleRetention,
	}
}

// WithStaleRetention overrides DefaultStaleRetention.
func (m *Manager) WithStaleRetention(d time.Duration) *Manager {
	m.staleRetention = d
	return m
}

// Get retrieves a cache entry by key. The entry may be stale; callers check
// IsExpired and revalidate. Returns ErrCacheMiss if the key doesn't exist.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() && !entry.CanRevalidate() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	return &entry, nil
}

// Set stores entry. Redis expiry is the entry's freshness plus the stale
// retention when the entry can be revalidated; expired entries without
// validators are not stored.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if entry.CanRevalidate() {
		ttl += m.staleRetention
	}
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Purge removes every cached page of source.
func (m *Manager) Purge(ctx context.Context, source string) (int, error) {
	pattern := fmt.Sprintf("%s:%s:*", KeyPrefix, source)

	removed := 0
	iter := m.redis.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := m.redis.Del(ctx, iter.Val()).Err(); err != nil {
			CacheErrors.WithLabelValues("delete").Inc()
			return removed, fmt.Errorf("redis del: %w", err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return removed, fmt.Errorf("redis scan: %w", err)
	}
	return removed, nil
}

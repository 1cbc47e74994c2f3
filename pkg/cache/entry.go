package cache

import (
	"time"
)

// CacheEntry is one cached page response.
type CacheEntry struct {
	// Data is the response body
	Data []byte `json:"data"`

	// ETag for If-None-Match
	ETag string `json:"etag"`

	// Expires is when the entry stops being fresh
	Expires time.Time `json:"expires"`

	// LastModified for If-Modified-Since
	LastModified time.Time `json:"last_modified"`

	StatusCode int       `json:"status_code"`
	CachedAt   time.Time `json:"cached_at"`
}

// IsExpired returns true if the entry is no longer fresh.
func (e *CacheEntry) IsExpired() bool {
	return !time.Now().Before(e.Expires)
}

// TTL returns the remaining freshness, or 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// CanRevalidate reports whether a stale entry carries a validator.
func (e *CacheEntry) CanRevalidate() bool {
	return e.ETag != "" || !e.LastModified.IsZero()
}

package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultTTL is the freshness applied when a response carries no caching headers.
const DefaultTTL = 5 * time.Minute

// ResponseToEntry builds a CacheEntry from a successful page response.
// It returns nil when the response forbids storing (Cache-Control: no-store).
func ResponseToEntry(status int, header http.Header, body []byte, defaultTTL time.Duration) *CacheEntry {
	expires, ok := parseFreshness(header, time.Now(), defaultTTL)
	if !ok {
		return nil
	}

	data := make([]byte, len(body))
	copy(data, body)

	entry := &CacheEntry{
		Data:       data,
		ETag:       header.Get("ETag"),
		Expires:    expires,
		StatusCode: status,
		CachedAt:   time.Now(),
	}

	if lastModStr := header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			entry.LastModified = lastMod
		}
	}

	return entry
}

// parseFreshness returns the expiry of a response: Cache-Control max-age
// first, then Expires, then now+defaultTTL. ok is false for no-store.
func parseFreshness(header http.Header, now time.Time, defaultTTL time.Duration) (expires time.Time, ok bool) {
	for _, directive := range strings.Split(header.Get("Cache-Control"), ",") {
		directive = strings.ToLower(strings.TrimSpace(directive))
		switch {
		case directive == "no-store":
			return time.Time{}, false
		case directive == "no-cache":
			return now, true
		case strings.HasPrefix(directive, "max-age="):
			if secs, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age=")); err == nil && secs >= 0 {
				return now.Add(time.Duration(secs) * time.Second), true
			}
		}
	}

	if expiresStr := header.Get("Expires"); expiresStr != "" {
		if t, err := http.ParseTime(expiresStr); err == nil {
			if t.Before(now) {
				return now, true
			}
			return t, true
		}
	}

	return now.Add(defaultTTL), true
}

// AddConditionalHeaders adds If-None-Match (preferred) or If-Modified-Since.
func AddConditionalHeaders(req *http.Request, entry *CacheEntry) {
	if entry == nil || req == nil {
		return
	}

	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	} else if !entry.LastModified.IsZero() {
		req.Header.Set("If-Modified-Since", entry.LastModified.UTC().Format(http.TimeFormat))
	}
}

// Refresh extends entry's freshness from the headers of a 304 response.
func Refresh(entry *CacheEntry, header http.Header, defaultTTL time.Duration) {
	if expires, ok := parseFreshness(header, time.Now(), defaultTTL); ok {
		entry.Expires = expires
	}
	if etag := header.Get("ETag"); etag != "" {
		entry.ETag = etag
	}
}

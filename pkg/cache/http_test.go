package cache

import (
	"net/http"
	"testing"
	"time"
)

func TestResponseToEntry(t *testing.T) {
	lastMod := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)

	header := http.Header{
		"Etag":          []string{`"abc123"`},
		"Last-Modified": []string{lastMod.Format(http.TimeFormat)},
	}
	body := []byte(`{"data": []}`)

	entry := ResponseToEntry(http.StatusOK, header, body, time.Minute)
	if entry == nil {
		t.Fatal("ResponseToEntry() returned nil entry")
	}

	if entry.ETag != `"abc123"` {
		t.Errorf("ETag = %q", entry.ETag)
	}
	if !entry.LastModified.Equal(lastMod) {
		t.Errorf("LastModified = %v, want %v", entry.LastModified, lastMod)
	}
	if entry.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d", entry.StatusCode)
	}

	// Entry must own its data.
	body[0] = 'X'
	if entry.Data[0] != '{' {
		t.Error("entry data aliases the response body")
	}
}

func TestResponseToEntry_NoStore(t *testing.T) {
	header := http.Header{"Cache-Control": []string{"private, no-store"}}
	if entry := ResponseToEntry(http.StatusOK, header, []byte(`{}`), time.Minute); entry != nil {
		t.Error("no-store responses must not produce an entry")
	}
}

func TestParseFreshness(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		header http.Header
		want   time.Duration
	}{
		{
			name:   "max-age wins over expires",
			header: http.Header{"Cache-Control": {"public, max-age=120"}, "Expires": {now.Add(time.Hour).Format(http.TimeFormat)}},
			want:   120 * time.Second,
		},
		{
			name:   "expires",
			header: http.Header{"Expires": {now.Add(10 * time.Minute).Format(http.TimeFormat)}},
			want:   10 * time.Minute,
		},
		{
			name:   "expires in the past",
			header: http.Header{"Expires": {now.Add(-time.Hour).Format(http.TimeFormat)}},
			want:   0,
		},
		{
			name:   "no-cache",
			header: http.Header{"Cache-Control": {"no-cache"}},
			want:   0,
		},
		{
			name:   "default",
			header: http.Header{},
			want:   DefaultTTL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expires, ok := parseFreshness(tt.header, now, DefaultTTL)
			if !ok {
				t.Fatal("expected cacheable response")
			}
			got := expires.Sub(now)
			if diff := got - tt.want; diff < -time.Second || diff > time.Second {
				t.Errorf("freshness = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAddConditionalHeaders(t *testing.T) {
	lastMod := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name      string
		entry     *CacheEntry
		wantETag  string
		wantSince string
	}{
		{name: "etag preferred", entry: &CacheEntry{ETag: `"v1"`, LastModified: lastMod}, wantETag: `"v1"`},
		{name: "last-modified", entry: &CacheEntry{LastModified: lastMod}, wantSince: lastMod.Format(http.TimeFormat)},
		{name: "no validators", entry: &CacheEntry{}},
		{name: "nil entry", entry: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
			AddConditionalHeaders(req, tt.entry)

			if got := req.Header.Get("If-None-Match"); got != tt.wantETag {
				t.Errorf("If-None-Match = %q, want %q", got, tt.wantETag)
			}
			if got := req.Header.Get("If-Modified-Since"); got != tt.wantSince {
				t.Errorf("If-Modified-Since = %q, want %q", got, tt.wantSince)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	entry := &CacheEntry{ETag: `"old"`, Expires: time.Now().Add(-time.Minute)}

	Refresh(entry, http.Header{"Cache-Control": {"max-age=60"}, "Etag": {`"new"`}}, DefaultTTL)

	if entry.IsExpired() {
		t.Error("entry should be fresh after refresh")
	}
	if entry.ETag != `"new"` {
		t.Errorf("ETag = %q, want new", entry.ETag)
	}
}

func TestCacheEntry_TTL(t *testing.T) {
	fresh := &CacheEntry{Expires: time.Now().Add(time.Minute)}
	if fresh.IsExpired() || fresh.TTL() <= 0 {
		t.Error("entry should be fresh")
	}

	stale := &CacheEntry{Expires: time.Now().Add(-time.Minute)}
	if !stale.IsExpired() || stale.TTL() != 0 {
		t.Error("entry should be expired with zero TTL")
	}
	if stale.CanRevalidate() {
		t.Error("entry without validators cannot be revalidated")
	}
}

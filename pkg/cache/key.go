package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces all harvester keys in Redis.
const KeyPrefix = "harvester"

// CacheKey identifies one cached page.
type CacheKey struct {
	// Source is the configured source name; it keeps identical URLs of
	// differently-authenticated sources apart.
	Source string

	// URL is the request URL without its query string.
	URL string

	// QueryParams are the page's query parameters.
	QueryParams url.Values
}

// KeyFor builds the CacheKey of a request URL.
func KeyFor(source string, u *url.URL) CacheKey {
	base := *u
	base.RawQuery = ""
	base.Fragment = ""
	return CacheKey{
		Source:      source,
		URL:         base.String(),
		QueryParams: u.Query(),
	}
}

// String generates a deterministic key.
// Format: harvester:source:host/path:param1=v1:param2=v2
//
// Example:
//
//	harvester:users:api.example.com/v1/users:page=2:per_page=100
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	if k.Source != "" {
		parts = append(parts, k.Source)
	}

	target := k.URL
	if i := strings.Index(target, "://"); i >= 0 {
		target = target[i+3:]
	}
	target = strings.TrimSuffix(target, "/")
	if target != "" {
		parts = append(parts, target)
	}

	if len(k.QueryParams) > 0 {
		names := make([]string, 0, len(k.QueryParams))
		for name := range k.QueryParams {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, strings.Join(k.QueryParams[name], ",")))
		}
	}

	return strings.Join(parts, ":")
}

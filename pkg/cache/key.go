package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix starts every key written by this package.
const KeyPrefix = "plexdate"

// CacheKey identifies a cached server response.
type CacheKey struct {
	// Endpoint is the server path (e.g., "/library/sections/1/all")
	Endpoint string

	// QueryParams are the request query parameters
	QueryParams url.Values
}

// String generates a deterministic cache key string.
// Format: plexdate:endpoint:query1=val1:query2=val2
//
// Example:
//
//	plexdate:library/sections/1/all:X-Plex-Container-Size=100:X-Plex-Container-Start=0:sort=addedAt:desc:type=1
func (k CacheKey) String() string {
	parts := []string{k.Prefix()}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(k.QueryParams[key], ",")))
		}
	}

	return strings.Join(parts, ":")
}

// Prefix is the key without query parameters. Every key of an endpoint, and
// of the endpoints below it, starts with this value.
func (k CacheKey) Prefix() string {
	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint == "" {
		return KeyPrefix
	}
	return KeyPrefix + ":" + endpoint
}

package cache

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// ignoredParams never contribute to a cache key.
var ignoredParams = map[string]bool{
	"api_key": true,
	"page":    true,
}

// Key identifies one page of one query.
type Key struct {
	// Base is the API root the page comes from (e.g. "api.open.fec.gov/v1").
	Base string

	// Endpoint is the resource path (e.g. "/candidates/").
	Endpoint string

	// Params are the query parameters of the request.
	Params url.Values

	// Page is the page number.
	Page int
}

// String generates a deterministic cache key string.
// Format: fec:base:endpoint:param1=a,b:param2=c:page=N
//
// Example:
//
//	fec:api.open.fec.gov/v1:candidates:election_year=2024:office=H,S:per_page=100:page=2
func (k Key) String() string {
	parts := []string{"fec"}

	if base := strings.Trim(k.Base, "/"); base != "" {
		parts = append(parts, base)
	}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for name := range k.Params {
			if ignoredParams[name] {
				continue
			}
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			values := append([]string(nil), k.Params[name]...)
			sort.Strings(values)
			parts = append(parts, name+"="+strings.Join(values, ","))
		}
	}

	parts = append(parts, "page="+strconv.Itoa(k.Page))

	return strings.Join(parts, ":")
}

package http

import (
	"net/http"
	"net/url"
	"strings"
)

// HeaderRequesterID identifies the caller for rate limiting and auditing.
const HeaderRequesterID = "X-Requester-ID"

func RequesterID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(HeaderRequesterID))
}

// CanonicalQuery renders the query string with sorted keys so equivalent
// requests share a cache key. An empty query renders as "all".
func CanonicalQuery(r *http.Request) string {
	values := r.URL.Query()
	if len(values) == 0 {
		return "all"
	}
	return url.Values(values).Encode()
}

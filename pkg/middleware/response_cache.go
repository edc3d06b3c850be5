package middleware

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"exambook/pkg/cache"
	httputil "exambook/pkg/http"
	"exambook/pkg/metrics"
)

const HeaderCache = "X-Cache"

// KeyFunc maps a request to a response-cache key. ok=false bypasses the cache.
type KeyFunc func(r *http.Request) (key string, ok bool)

type responseCapture struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (rc *responseCapture) WriteHeader(statusCode int) {
	rc.statusCode = statusCode
	rc.ResponseWriter.WriteHeader(statusCode)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	rc.body.Write(b)
	return rc.ResponseWriter.Write(b)
}

// ResponseCache serves GET responses from store when keyFn names them and
// stores 200 responses on a miss. Mutations invalidate by pattern elsewhere;
// a miss that overlaps an invalidation is served but not stored.
func ResponseCache(store *cache.ResponseCache, keyFn KeyFunc, ttl time.Duration, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			key, ok := keyFn(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			if body, found := store.Get(key); found {
				m.CacheLookup(true)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set(HeaderCache, "HIT")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write(body)
				return
			}
			m.CacheLookup(false)
			gen := store.Generation()

			w.Header().Set(HeaderCache, "MISS")
			capture := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capture, r)

			if capture.statusCode == http.StatusOK {
				store.SetIfCurrent(key, bytes.Clone(capture.body.Bytes()), ttl, gen)
			}
		})
	}
}

// BookingCacheKey recognises the session, requester and capacity read routes.
func BookingCacheKey(r *http.Request) (string, bool) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 5 || parts[0] != "api" || parts[1] != "v1" || parts[3] == "" {
		return "", false
	}
	id := parts[3]

	switch {
	case parts[2] == "sessions" && parts[4] == "bookings":
		return cache.SessionBookingsKey(id, httputil.CanonicalQuery(r)), true
	case parts[2] == "sessions" && parts[4] == "capacity":
		return cache.CapacityKey(id), true
	case parts[2] == "requesters" && parts[4] == "bookings":
		return cache.RequesterBookingsKey(id, httputil.CanonicalQuery(r)), true
	default:
		return "", false
	}
}

package middleware

import (
	"net/http"
	"sync"
	"time"

	apperrors "exambook/pkg/errors"
	httputil "exambook/pkg/http"
	"exambook/pkg/logger"

	"github.com/jonboulle/clockwork"
)

const cleanupInterval = time.Hour

// RequesterRateLimiter enforces a sliding window of requests per requester,
// keyed on the X-Requester-ID header. Anonymous requests are not limited.
type RequesterRateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	clock    clockwork.Clock
	log      *logger.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewRequesterRateLimiter(limit int, window time.Duration, clock clockwork.Clock, log *logger.Logger) *RequesterRateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	limiter := &RequesterRateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		clock:    clock,
		log:      log,
		stopCh:   make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

func (rl *RequesterRateLimiter) cleanup() {
	ticker := rl.clock.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			now := rl.clock.Now()
			rl.mu.Lock()
			for requester, timestamps := range rl.requests {
				if len(timestamps) == 0 || now.Sub(timestamps[len(timestamps)-1]) > rl.window {
					delete(rl.requests, requester)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RequesterRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RequesterRateLimiter) Allow(requester string) bool {
	if requester == "" {
		return true
	}

	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	timestamps := rl.requests[requester]
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if now.Sub(ts) < rl.window {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[requester] = valid
		return false
	}

	rl.requests[requester] = append(valid, now)
	return true
}

func RequesterRateLimit(limiter *RequesterRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requester := httputil.RequesterID(r)

			if !limiter.Allow(requester) {
				limiter.log.Warn("Rate limit exceeded",
					"request_id", RequestID(r.Context()),
					"requester_id", requester,
					"path", r.URL.Path,
				)
				if writeErr := httputil.WriteError(w, apperrors.RateLimited()); writeErr != nil {
					limiter.log.Error("failed to write error response", "middleware", "RequesterRateLimit", "error", writeErr)
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

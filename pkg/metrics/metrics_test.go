package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.LockAcquire("user", "acquired")
		m.LockRelease("user", "released")
		m.BookingOutcome("created", time.Millisecond)
		m.CapacitySnapshot("fast")
		m.ReconcilePass("ok", 1, time.Second)
		m.CacheLookup(true)
		m.Task("booking.created", "published")
	})
	assert.Nil(t, m.Registry())
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestCounters(t *testing.T) {
	m := New()

	m.LockAcquire("session", "busy")
	m.LockAcquire("session", "busy")
	m.LockAcquire("session", "acquired")
	m.ReconcilePass("ok", 3, 10*time.Millisecond)
	m.CacheLookup(false)

	body := scrape(t, m)
	assert.Contains(t, body, `exambook_lock_acquire_total{level="session",outcome="busy"} 2`)
	assert.Contains(t, body, `exambook_lock_acquire_total{level="session",outcome="acquired"} 1`)
	assert.Contains(t, body, "exambook_reconcile_drifted_sessions 3")
	assert.Contains(t, body, "exambook_reconcile_corrections_total 3")
	assert.Contains(t, body, `exambook_response_cache_lookups_total{result="miss"} 1`)
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := New()
	m.BookingOutcome("created", 20*time.Millisecond)

	body := scrape(t, m)
	assert.True(t, strings.Contains(body, `exambook_booking_outcomes_total{outcome="created"} 1`))
	assert.Contains(t, body, "exambook_booking_duration_seconds_bucket")
}

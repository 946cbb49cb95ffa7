package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *MetricsService) string {
	t.Helper()
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestMetricsServiceExposition(t *testing.T) {
	m := NewMetricsService()
	depth := 3
	m.WatchQueue("statistics-snapshots", func() int { return depth })
	m.ObserveCache(CacheHit, time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/tasks/:id", http.StatusOK, 20*time.Millisecond)
	m.RecordTaskTransition("IN_PROGRESS", "ON_CHECK")
	m.RecordImportRows("created", 0)

	body := scrape(t, m)
	assert.Contains(t, body, `fieldops_jobs_queue_depth{queue="statistics-snapshots"} 3`)
	assert.Contains(t, body, `fieldops_cache_operation_duration_seconds_count{outcome="hit"} 1`)
	assert.Contains(t, body, `fieldops_http_request_duration_seconds_count{method="GET",route="/api/v1/tasks/:id",status="200"} 1`)
	assert.Contains(t, body, `fieldops_task_transitions_total{from="IN_PROGRESS",to="ON_CHECK"} 1`)
	assert.NotContains(t, body, "fieldops_client_import_rows_total{")
}

func TestMetricsServiceNilReceiver(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.ObserveCache(CacheMiss, time.Millisecond)
		m.RecordPhotoStored("report", true)
		m.WatchQueue("q", func() int { return 0 })
	})
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

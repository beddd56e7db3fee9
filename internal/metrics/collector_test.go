package metrics_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nearhome/streamd/internal/metrics"
)

func TestCollector_ExposesRegisteredFamilies(t *testing.T) {
	c := metrics.NewCollector()
	c.SetStreamCounts(map[string]int{"ready": 2}, map[string]int{"online": 2})
	c.SetSessionCounts(map[string]int{"active": 1})
	c.IncSweep()
	c.ObservePlayback("tenant-a", "camera-a", "manifest", "ok", "")
	c.ObservePlayback("tenant-a", "camera-a", "manifest", "error", "PLAYBACK_STREAM_NOT_FOUND")
	c.AddReadRetries("tenant-a", "camera-a", "manifest", 2)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	c.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, "nearhome_streams_total")
	assert.Contains(t, body, "nearhome_stream_connectivity_total")
	assert.Contains(t, body, "nearhome_stream_sessions_total")
	assert.Contains(t, body, "nearhome_stream_session_sweeps_total 1")
	assert.Contains(t, body, "nearhome_playback_requests_total")
	assert.Contains(t, body, "nearhome_playback_errors_total")
	assert.Contains(t, body, "nearhome_playback_read_retries_total")
}

// Package metrics exposes the Prometheus text-format collector for the
// stream data plane, wrapping a private registry so /metrics never leaks
// process-default collectors the spec doesn't document.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns every metric family from the external interfaces contract.
type Collector struct {
	registry *prometheus.Registry

	streamsTotal        *prometheus.GaugeVec
	connectivityTotal   *prometheus.GaugeVec
	sessionsTotal       *prometheus.GaugeVec
	sessionSweeps       prometheus.Counter
	playbackRequests    *prometheus.CounterVec
	playbackErrors      *prometheus.CounterVec
	playbackReadRetries *prometheus.CounterVec

	mu sync.Mutex
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{registry: reg}

	c.streamsTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nearhome_streams_total",
		Help: "Number of provisioned streams by status.",
	}, []string{"status"})

	c.connectivityTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nearhome_stream_connectivity_total",
		Help: "Number of streams by last-observed connectivity.",
	}, []string{"connectivity"})

	c.sessionsTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "nearhome_stream_sessions_total",
		Help: "Number of playback sessions by status.",
	}, []string{"status"})

	c.sessionSweeps = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "nearhome_stream_session_sweeps_total",
		Help: "Number of completed Session Manager sweep passes.",
	})

	c.playbackRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nearhome_playback_requests_total",
		Help: "Playback requests by tenant, camera, asset, and result.",
	}, []string{"tenant_id", "camera_id", "asset", "result"})

	c.playbackErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nearhome_playback_errors_total",
		Help: "Playback errors by tenant, camera, asset, and error code.",
	}, []string{"tenant_id", "camera_id", "asset", "code"})

	c.playbackReadRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nearhome_playback_read_retries_total",
		Help: "Asset read retries by tenant, camera, and asset.",
	}, []string{"tenant_id", "camera_id", "asset"})

	reg.MustRegister(
		c.streamsTotal,
		c.connectivityTotal,
		c.sessionsTotal,
		c.sessionSweeps,
		c.playbackRequests,
		c.playbackErrors,
		c.playbackReadRetries,
	)

	return c
}

// Handler returns the /metrics HTTP handler. promhttp sorts label pairs by
// name at exposition time, satisfying the stable-scrape-order contract.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// SetStreamCounts replaces the gauge snapshot for stream status/connectivity
// distributions. Called by the Probe Loop's onTick hook or periodically by
// the caller; gauges, not counters, so a full reset-and-set is correct.
func (c *Collector) SetStreamCounts(byStatus, byConnectivity map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, status := range []string{"provisioning", "ready", "stopped"} {
		c.streamsTotal.WithLabelValues(status).Set(float64(byStatus[status]))
	}
	for _, conn := range []string{"online", "degraded", "offline"} {
		c.connectivityTotal.WithLabelValues(conn).Set(float64(byConnectivity[conn]))
	}
}

// SetSessionCounts replaces the gauge snapshot for session status counts.
func (c *Collector) SetSessionCounts(byStatus map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, status := range []string{"issued", "active", "ended", "expired"} {
		c.sessionsTotal.WithLabelValues(status).Set(float64(byStatus[status]))
	}
}

// IncSweep increments the sweep-pass counter.
func (c *Collector) IncSweep() {
	c.sessionSweeps.Inc()
}

// ObservePlayback records the result of one playback request, and, on
// error, the associated code. Called from the metrics "finally" wrapper
// regardless of where the handler exited.
func (c *Collector) ObservePlayback(tenantID, cameraID, asset, result, code string) {
	c.playbackRequests.WithLabelValues(tenantID, cameraID, asset, result).Inc()
	if result == "error" {
		c.playbackErrors.WithLabelValues(tenantID, cameraID, asset, code).Inc()
	}
}

// AddReadRetries increments the retry counter for (tenantID, cameraID, asset)
// by n.
func (c *Collector) AddReadRetries(tenantID, cameraID, asset string, n int) {
	if n <= 0 {
		return
	}
	c.playbackReadRetries.WithLabelValues(tenantID, cameraID, asset).Add(float64(n))
}

// Package api is the HTTP Surface: a chi router exposing provisioning,
// health, metrics, playback, and session endpoints over the Stream
// Registry, Session Manager, Asset Reader, and Token Verifier.
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nearhome/streamd/internal/metrics"
	"github.com/nearhome/streamd/internal/middleware"
	"github.com/nearhome/streamd/internal/playback"
	"github.com/nearhome/streamd/internal/ratelimit"
	"github.com/nearhome/streamd/internal/stream"
	"github.com/nearhome/streamd/internal/token"
)

// AssetReader is the subset of asset.Reader / asset.CachingReader the HTTP
// Surface depends on.
type AssetReader interface {
	ReadManifest(tenantID, cameraID, tok string) ([]byte, error)
	ReadSegment(tenantID, cameraID string) ([]byte, error)
	RetryCount(tenantID, cameraID, asset string) int64
}

// AssetInvalidator is implemented by asset.CachingReader. A plain
// asset.Reader has nothing to invalidate, so this is an optional capability
// probed for with a type assertion rather than required by AssetReader.
type AssetInvalidator interface {
	Invalidate(tenantID, cameraID string)
}

// StreamSink receives stream-lifecycle notifications for out-of-band
// collaborators (NATS).
type StreamSink interface {
	EmitStream(eventType string, payload interface{})
}

// Broadcaster receives the same notifications for the live dashboard feed.
type Broadcaster interface {
	Broadcast(eventType string, payload interface{})
}

// Server holds every collaborator the HTTP Surface dispatches to.
type Server struct {
	Registry   *stream.Registry
	Sessions   *playback.Manager
	Assets     AssetReader
	Verifier   *token.Verifier
	Metrics    *metrics.Collector
	Limiter    *ratelimit.Limiter
	Events     StreamSink
	Live       Broadcaster
	StorageDir string

	retryMu   sync.Mutex
	lastRetry map[retryKey]int64
}

// retryKey identifies a (tenant, camera, asset) tuple for retry-delta
// tracking, mirroring asset.Reader's own cumulative counter key.
type retryKey struct {
	tenantID, cameraID, asset string
}

// recordRetryDelta reports only the retries newly observed since the last
// call, since asset.Reader.RetryCount is a cumulative, process-lifetime
// counter but the Prometheus counter must advance once per retry.
func (s *Server) recordRetryDelta(tenantID, cameraID, assetName string) {
	total := s.Assets.RetryCount(tenantID, cameraID, assetName)

	s.retryMu.Lock()
	if s.lastRetry == nil {
		s.lastRetry = make(map[retryKey]int64)
	}
	key := retryKey{tenantID, cameraID, assetName}
	delta := total - s.lastRetry[key]
	s.lastRetry[key] = total
	s.retryMu.Unlock()

	if delta > 0 {
		s.Metrics.AddReadRetries(tenantID, cameraID, assetName, int(delta))
	}
}

func (s *Server) emitStream(eventType string, payload interface{}) {
	if s.Events != nil {
		s.Events.EmitStream(eventType, payload)
	}
	if s.Live != nil {
		s.Live.Broadcast(eventType, payload)
	}
}

// Router builds the chi router for the HTTP Surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(middleware.CORS)
	r.Use(middleware.RequestLogger)

	r.Post("/provision", s.handleProvision)
	r.Post("/deprovision", s.handleDeprovision)
	r.Get("/health", s.handleHealth)
	r.Get("/health/{tenantId}/{cameraId}", s.handleHealthOne)
	r.Get("/sessions", s.handleListSessions)
	r.Post("/sessions/sweep", s.handleSweep)

	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics.Handler())
	}

	if hub, ok := s.Live.(http.Handler); ok && hub != nil {
		r.Get("/live/events", hub.ServeHTTP)
	}

	r.Route("/playback/{tenantId}/{cameraId}", func(pr chi.Router) {
		pr.Use(s.rateLimitMiddleware)
		pr.Get("/index.m3u8", s.handlePlaybackManifest)
		pr.Get("/segment0.ts", s.handlePlaybackSegment)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	return r
}

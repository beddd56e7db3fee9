// Command streamd runs the Stream Data Plane: stream provisioning, health
// probing, tokenized playback, and session lifecycle management for
// multi-tenant camera ingestion.
package main

import (
	"context"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nearhome/streamd/internal/api"
	"github.com/nearhome/streamd/internal/asset"
	"github.com/nearhome/streamd/internal/config"
	"github.com/nearhome/streamd/internal/events"
	"github.com/nearhome/streamd/internal/live"
	"github.com/nearhome/streamd/internal/metrics"
	"github.com/nearhome/streamd/internal/playback"
	"github.com/nearhome/streamd/internal/probe"
	"github.com/nearhome/streamd/internal/ratelimit"
	"github.com/nearhome/streamd/internal/stream"
	"github.com/nearhome/streamd/internal/token"
)

func main() {
	cfg := config.Load()
	log.Printf("streamd: starting, storageDir=%s", cfg.StorageDir)

	producer := asset.NewProducer(cfg.StorageDir)
	registry := stream.NewRegistry(producer)

	reader := asset.NewReader(cfg.StorageDir, asset.RetryConfig{
		MaxRetries: cfg.PlaybackReadRetries,
		BaseDelay:  cfg.PlaybackReadRetryBase,
		MaxDelay:   cfg.PlaybackReadRetryMax,
	})
	cachingReader, err := asset.NewCachingReader(reader, cfg.AssetCacheSize)
	if err != nil {
		log.Fatalf("streamd: asset cache: %v", err)
	}

	nc := events.Connect(cfg.NATSURL, 3)
	defer nc.Close()
	hub := live.NewHub()
	sessionSink := fanoutSink{events.SessionSink{Publisher: nc}, liveSessionSink{hub}}

	sessions := playback.NewManager(cfg.SessionIdleTTL, sessionSink)
	verifier := token.NewVerifier([]byte(cfg.TokenSecret))
	collector := metrics.NewCollector()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	limiter := ratelimit.NewLimiter(rdb, cfg.RateLimitRPS, cfg.RateLimitWindow)
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := limiter.Ping(pingCtx); err != nil {
		log.Printf("streamd: redis unreachable at %s, rate limiting degrades to allow-all: %v", cfg.RedisAddr, err)
	}
	pingCancel()

	server := &api.Server{
		Registry:   registry,
		Sessions:   sessions,
		Assets:     cachingReader,
		Verifier:   verifier,
		Metrics:    collector,
		Limiter:    limiter,
		Events:     nc,
		Live:       hub,
		StorageDir: cfg.StorageDir,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sampler := probe.NewRandomSampler(rand.New(rand.NewSource(time.Now().UnixNano())))
	probeLoop := probe.NewLoop(registry, sampler, cfg.ProbeInterval, func(entry stream.Entry) {
		hub.Broadcast("stream.probed", entry)
		syncStreamMetrics(collector, registry)
	})
	probeLoop.Start(ctx)

	sessions.StartSweepLoop(ctx, cfg.SessionSweepInterval, func(result playback.SweepResult) {
		collector.IncSweep()
		syncSessionMetrics(collector, sessions)
	})

	config.WatchFile(ctx, cfg.ConfigFile, func(updated config.Config) {
		verifier.SetSecret([]byte(updated.TokenSecret))
		log.Printf("streamd: config reloaded from %s", cfg.ConfigFile)
	})

	addr := ":" + envOr("STREAM_HTTP_ADDR_PORT", "8090")
	httpServer := &http.Server{Addr: addr, Handler: server.Router()}

	go func() {
		log.Printf("streamd: listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("streamd: server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Printf("streamd: shutting down")

	sessions.StopSweepLoop()
	probeLoop.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("streamd: shutdown error: %v", err)
	}
}

func syncStreamMetrics(collector *metrics.Collector, registry *stream.Registry) {
	byStatus := map[string]int{}
	byConnectivity := map[string]int{}
	for _, entry := range registry.Iterate() {
		byStatus[string(entry.Status)]++
		byConnectivity[string(entry.Health.Connectivity)]++
	}
	collector.SetStreamCounts(byStatus, byConnectivity)
}

func syncSessionMetrics(collector *metrics.Collector, sessions *playback.Manager) {
	byStatus := map[string]int{}
	for _, session := range sessions.List(playback.Filter{}) {
		byStatus[string(session.Status)]++
	}
	collector.SetSessionCounts(byStatus)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// fanoutSink delivers every session lifecycle event to each of its sinks,
// so the NATS publisher and the live dashboard hub both see observe/sweep/
// closeForStream transitions.
type fanoutSink []playback.EventSink

func (f fanoutSink) Emit(eventType string, session playback.Session) {
	for _, sink := range f {
		sink.Emit(eventType, session)
	}
}

// liveSessionSink adapts *live.Hub to playback.EventSink, broadcasting
// session transitions over the same websocket feed the Probe Loop and
// provisioning events use.
type liveSessionSink struct {
	hub *live.Hub
}

func (l liveSessionSink) Emit(eventType string, session playback.Session) {
	l.hub.Broadcast(eventType, session)
}

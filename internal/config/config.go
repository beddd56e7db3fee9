// Package config loads the gateway's env-var configuration, with an
// optional YAML overlay read from STREAM_CONFIG_FILE and hot-reloaded via
// fsnotify for the HMAC secret and tunable intervals.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nearhome/streamd/internal/platform/paths"
)

// Config holds every tunable from the external interfaces contract.
type Config struct {
	StorageDir  string
	TokenSecret string

	ProbeInterval        time.Duration
	SessionIdleTTL       time.Duration
	SessionSweepInterval time.Duration

	PlaybackReadRetries   int
	PlaybackReadRetryBase time.Duration
	PlaybackReadRetryMax  time.Duration

	AssetCacheSize int

	RateLimitRPS    int
	RateLimitWindow time.Duration
	RedisAddr       string
	NATSURL         string
	ConfigFile      string
}

// Overlay is the shape of the optional YAML file; every field is optional
// and, when present, takes precedence over the environment at load time
// (and on every hot reload thereafter).
type Overlay struct {
	TokenSecret     *string `yaml:"tokenSecret"`
	ProbeIntervalMs *int    `yaml:"probeIntervalMs"`
	SessionSweepMs  *int    `yaml:"sessionSweepMs"`
}

// Load reads configuration from the environment, applying the documented
// defaults, then merges an optional YAML overlay if STREAM_CONFIG_FILE is
// set and readable.
func Load() Config {
	cfg := Config{
		StorageDir:            paths.ResolveStorageDir(),
		TokenSecret:           envOr("STREAM_TOKEN_SECRET", "dev-stream-secret-do-not-use-in-prod"),
		ProbeInterval:         envDurationMs("STREAM_PROBE_INTERVAL_MS", 5000),
		SessionIdleTTL:        envDurationMs("STREAM_SESSION_IDLE_TTL_MS", 60000),
		SessionSweepInterval:  envDurationMs("STREAM_SESSION_SWEEP_MS", 5000),
		PlaybackReadRetries:   envInt("STREAM_PLAYBACK_READ_RETRIES", 0),
		PlaybackReadRetryBase: envDurationMs("STREAM_PLAYBACK_READ_RETRY_BASE_MS", 25),
		PlaybackReadRetryMax:  envDurationMs("STREAM_PLAYBACK_READ_RETRY_MAX_MS", 250),
		AssetCacheSize:        envInt("STREAM_ASSET_CACHE_SIZE", 256),
		RateLimitRPS:          envInt("STREAM_RATE_LIMIT_RPS", 50),
		RateLimitWindow:       envDurationMs("STREAM_RATE_LIMIT_WINDOW_MS", 1000),
		RedisAddr:             envOr("STREAM_REDIS_ADDR", "localhost:6379"),
		NATSURL:               envOr("STREAM_NATS_URL", "nats://127.0.0.1:4222"),
		ConfigFile:            os.Getenv("STREAM_CONFIG_FILE"),
	}

	if cfg.ConfigFile != "" {
		if overlay, err := readOverlay(cfg.ConfigFile); err == nil {
			cfg.applyOverlay(overlay)
		}
	}
	return cfg
}

func (c *Config) applyOverlay(o Overlay) {
	if o.TokenSecret != nil {
		c.TokenSecret = *o.TokenSecret
	}
	if o.ProbeIntervalMs != nil {
		c.ProbeInterval = time.Duration(*o.ProbeIntervalMs) * time.Millisecond
	}
	if o.SessionSweepMs != nil {
		c.SessionSweepInterval = time.Duration(*o.SessionSweepMs) * time.Millisecond
	}
}

func readOverlay(path string) (Overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Overlay{}, err
	}
	var overlay Overlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return Overlay{}, err
	}
	return overlay, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDurationMs(key string, fallbackMs int) time.Duration {
	return time.Duration(envInt(key, fallbackMs)) * time.Millisecond
}

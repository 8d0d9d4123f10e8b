// Package config loads process configuration from BCR_-prefixed environment
// variables layered over defaults.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8000".
	Addr string `koanf:"addr"`

	// CacheTTL bounds staleness of scraped data served from cache.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// UpstreamTimeout bounds a single adapter fetch, distinct from CacheTTL.
	UpstreamTimeout time.Duration `koanf:"upstream_timeout"`

	// CORSOrigins lists allowed cross-origin sources (comma-separated in env).
	CORSOrigins []string `koanf:"cors_origins"`

	// CORSAllowCredentials is forced off when origins include the wildcard.
	CORSAllowCredentials bool `koanf:"cors_allow_credentials"`

	// MediaRoot is the local directory for photo/avatar blobs and metadata.
	MediaRoot string `koanf:"media_root"`

	// MediaBackend selects the blob sink: "local" (anything else is rejected).
	MediaBackend string `koanf:"media_backend"`

	// MediaAPIKey is the shared secret for media-mode uploads. Empty disables
	// media-mode writes entirely.
	MediaAPIKey string `koanf:"media_api_key"`

	// SelfHMACSecret keys the ownership signature for standard-mode uploads.
	// Empty disables standard-mode writes.
	SelfHMACSecret string `koanf:"self_hmac_secret"`

	// RateLimitWritePerMin caps mutating media requests per IP per minute.
	RateLimitWritePerMin int `koanf:"rate_limit_write_per_min"`

	// SchedulerEnabled turns the daily warmup job on.
	SchedulerEnabled bool `koanf:"scheduler_enabled"`

	// SchedulerCron is a standard 5-field cron spec, server local time.
	SchedulerCron string `koanf:"scheduler_cron"`
}

func defaults() *Config {
	return &Config{
		LogLevel:             "info",
		Addr:                 ":8000",
		CacheTTL:             time.Hour,
		UpstreamTimeout:      30 * time.Second,
		CORSOrigins:          []string{"*"},
		MediaRoot:            "media",
		MediaBackend:         "local",
		RateLimitWritePerMin: 30,
		SchedulerEnabled:     false,
		SchedulerCron:        "0 6 * * *",
	}
}

// Load builds a Config from defaults overridden by BCR_* environment
// variables (BCR_ADDR, BCR_CACHE_TTL, BCR_MEDIA_ROOT, ...).
func Load() (*Config, error) {
	cfg := *defaults()

	k := koanf.New(".")
	envProvider := env.Provider("BCR_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "BCR_"))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}

	// Comma-separated origins arrive as a single element.
	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		parts := strings.Split(cfg.CORSOrigins[0], ",")
		cfg.CORSOrigins = cfg.CORSOrigins[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, p)
			}
		}
	}
	// Credentialed requests cannot be combined with a wildcard origin.
	for _, o := range cfg.CORSOrigins {
		if o == "*" {
			cfg.CORSAllowCredentials = false
		}
	}

	if cfg.Addr == "" {
		return nil, errors.New("addr must not be empty")
	}
	if cfg.CacheTTL <= 0 {
		return nil, errors.New("cache_ttl must be positive")
	}
	if cfg.UpstreamTimeout <= 0 {
		return nil, errors.New("upstream_timeout must be positive")
	}
	return &cfg, nil
}

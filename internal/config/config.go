package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config contains all runtime settings for the interview relay service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	DeepgramAPIKey string
	AgentWSURL     string

	ListenModel      string
	SpeakModel       string
	ThinkProviderURL string

	ResolveTimeout      time.Duration
	UpstreamOpenTimeout time.Duration

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults. The Deepgram
// API key is the only hard startup requirement: without it the relay cannot
// open any upstream connection, so we fail fast here instead of per session.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:            envOrDefault("APP_BIND_ADDR", ":3001"),
		MetricsNamespace:    envOrDefault("APP_METRICS_NAMESPACE", "prepcall"),
		AllowAnyOrigin:      false,
		DeepgramAPIKey:      stringsTrimSpace("DEEPGRAM_API_KEY"),
		AgentWSURL:          envOrDefault("DEEPGRAM_AGENT_WS_URL", "wss://agent.deepgram.com/v1/agent/converse"),
		ListenModel:         envOrDefault("DEEPGRAM_LISTEN_MODEL", "nova-2"),
		SpeakModel:          envOrDefault("DEEPGRAM_SPEAK_MODEL", "aura-asteria-en"),
		ThinkProviderURL:    envOrDefault("AGENT_THINK_URL", "http://localhost:3001/api/deepgram/generate"),
		DatabaseURL:         stringsTrimSpace("DATABASE_URL"),
		ShutdownTimeout:     15 * time.Second,
		ResolveTimeout:      10 * time.Second,
		UpstreamOpenTimeout: 10 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ResolveTimeout, err = durationFromEnv("APP_RESOLVE_TIMEOUT", cfg.ResolveTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.UpstreamOpenTimeout, err = durationFromEnv("APP_UPSTREAM_OPEN_TIMEOUT", cfg.UpstreamOpenTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.DeepgramAPIKey == "" {
		return Config{}, fmt.Errorf("DEEPGRAM_API_KEY is not set")
	}
	if cfg.ResolveTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_RESOLVE_TIMEOUT must be positive")
	}
	if cfg.UpstreamOpenTimeout <= 0 {
		return Config{}, fmt.Errorf("APP_UPSTREAM_OPEN_TIMEOUT must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

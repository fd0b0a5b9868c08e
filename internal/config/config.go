package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the voice todo client.
type Config struct {
	// BaseURL is the todo service REST root; the realtime socket endpoint is
	// derived from it.
	BaseURL string

	HandshakeTimeout time.Duration
	ActionTimeout    time.Duration

	CaptureSampleRate  int
	PlaybackSampleRate int
	ChunkFrames        int

	// TokenPath overrides the default credential file location.
	TokenPath string

	// DumpDir, when set, receives per-session WAV recordings of both audio
	// directions.
	DumpDir string

	// StatusAddr serves /healthz, /statusz, and /metrics when StatusEnabled.
	StatusAddr       string
	StatusEnabled    bool
	MetricsNamespace string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BaseURL:            envOrDefault("TODOVOICE_BASE_URL", "http://localhost:8000"),
		HandshakeTimeout:   10 * time.Second,
		ActionTimeout:      10 * time.Second,
		CaptureSampleRate:  16000,
		PlaybackSampleRate: 24000,
		ChunkFrames:        4096,
		TokenPath:          stringsTrimSpace("TODOVOICE_TOKEN_PATH"),
		DumpDir:            stringsTrimSpace("TODOVOICE_DUMP_DIR"),
		StatusAddr:         envOrDefault("TODOVOICE_STATUS_ADDR", "127.0.0.1:9190"),
		StatusEnabled:      false,
		MetricsNamespace:   envOrDefault("TODOVOICE_METRICS_NAMESPACE", "todovoice"),
	}
	var err error
	cfg.HandshakeTimeout, err = durationFromEnv("TODOVOICE_HANDSHAKE_TIMEOUT", cfg.HandshakeTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ActionTimeout, err = durationFromEnv("TODOVOICE_ACTION_TIMEOUT", cfg.ActionTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CaptureSampleRate, err = intFromEnv("TODOVOICE_CAPTURE_SAMPLE_RATE", cfg.CaptureSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.PlaybackSampleRate, err = intFromEnv("TODOVOICE_PLAYBACK_SAMPLE_RATE", cfg.PlaybackSampleRate)
	if err != nil {
		return Config{}, err
	}
	cfg.ChunkFrames, err = intFromEnv("TODOVOICE_CHUNK_FRAMES", cfg.ChunkFrames)
	if err != nil {
		return Config{}, err
	}
	cfg.StatusEnabled, err = boolFromEnv("TODOVOICE_STATUS_ENABLED", cfg.StatusEnabled)
	if err != nil {
		return Config{}, err
	}

	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return Config{}, fmt.Errorf("TODOVOICE_BASE_URL must be an http or https URL")
	}
	if cfg.HandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("TODOVOICE_HANDSHAKE_TIMEOUT must be positive")
	}
	if cfg.ActionTimeout <= 0 {
		return Config{}, fmt.Errorf("TODOVOICE_ACTION_TIMEOUT must be positive")
	}
	if cfg.CaptureSampleRate <= 0 {
		return Config{}, fmt.Errorf("TODOVOICE_CAPTURE_SAMPLE_RATE must be positive")
	}
	if cfg.PlaybackSampleRate <= 0 {
		return Config{}, fmt.Errorf("TODOVOICE_PLAYBACK_SAMPLE_RATE must be positive")
	}
	if cfg.ChunkFrames < 256 {
		return Config{}, fmt.Errorf("TODOVOICE_CHUNK_FRAMES must be at least 256")
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

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
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

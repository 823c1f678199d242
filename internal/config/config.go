/*
Copyright (C) 2026 Eventdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	MetricsBind string

	// Library ingestion
	MediaRoot    string // Root folder; each top-level subfolder becomes a playlist
	WatchLibrary bool   // Re-ingest a playlist when its folder changes

	// Playback
	CrossfadeSeconds     float64 // Clamped to [0,10] by the engine; 0 disables crossfade
	NormalizationEnabled bool
	TargetLoudnessDB     float64 // Loudness normalization target (dBFS, RMS approximation)
	Volume               float64 // Initial volume [0,1]
	RetryCap             int     // Max distinct tracks attempted per selection cycle
	TriggerMapPath       string  // Optional YAML file mapping trigger names to playlists
	EngineOutputDisabled bool    // Run without an audio device (selection/trigger logic only)
	PreloadNextMetadata  bool    // Resolve the predicted next pick's metadata in the background
	ShutdownGraceSeconds int
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("EVENTDECK_ENV", "development"),
		HTTPBind:    getEnv("EVENTDECK_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("EVENTDECK_HTTP_PORT", 8080),
		MetricsBind: getEnv("EVENTDECK_METRICS_BIND", "127.0.0.1:9000"),

		MediaRoot:    getEnv("EVENTDECK_MEDIA_ROOT", "./media"),
		WatchLibrary: getEnvBool("EVENTDECK_WATCH_LIBRARY", true),

		CrossfadeSeconds:     getEnvFloat("EVENTDECK_CROSSFADE_SECONDS", 3.0),
		NormalizationEnabled: getEnvBool("EVENTDECK_NORMALIZATION_ENABLED", true),
		TargetLoudnessDB:     getEnvFloat("EVENTDECK_TARGET_LOUDNESS_DB", -16.0),
		Volume:               getEnvFloat("EVENTDECK_VOLUME", 1.0),
		RetryCap:             getEnvInt("EVENTDECK_RETRY_CAP", 5),
		TriggerMapPath:       getEnv("EVENTDECK_TRIGGER_MAP", ""),
		EngineOutputDisabled: getEnvBool("EVENTDECK_ENGINE_OUTPUT_DISABLED", false),
		PreloadNextMetadata:  getEnvBool("EVENTDECK_PRELOAD_METADATA", true),
		ShutdownGraceSeconds: getEnvInt("EVENTDECK_SHUTDOWN_GRACE_SECONDS", 10),
	}

	if cfg.MediaRoot == "" {
		return nil, fmt.Errorf("EVENTDECK_MEDIA_ROOT must be provided")
	}
	if cfg.Volume < 0 || cfg.Volume > 1 {
		return nil, fmt.Errorf("EVENTDECK_VOLUME must be within [0,1], got %v", cfg.Volume)
	}
	if cfg.CrossfadeSeconds < 0 {
		return nil, fmt.Errorf("EVENTDECK_CROSSFADE_SECONDS must not be negative")
	}
	if cfg.RetryCap < 1 {
		return nil, fmt.Errorf("EVENTDECK_RETRY_CAP must be at least 1")
	}

	return cfg, nil
}

// Crossfade returns the configured crossfade duration.
func (c *Config) Crossfade() time.Duration {
	return time.Duration(c.CrossfadeSeconds * float64(time.Second))
}

// ShutdownGrace returns the graceful shutdown window.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(strings.TrimSpace(val))
		if val == "true" || val == "1" || val == "yes" {
			return true
		}
		if val == "false" || val == "0" || val == "no" {
			return false
		}
	}
	return def
}

package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetAllSettings returns a map of the settings currently loaded in memory,
// exposed through the monitoring endpoint.
func GetAllSettings() map[string]any {
	if Global == nil {
		return map[string]any{}
	}
	return map[string]any{
		"app_version":                Global.App.Version,
		"app_debug":                  Global.App.Debug,
		"tracker_poll_interval":      Global.Tracker.PollInterval.String(),
		"tracker_min_poll_interval":  Global.Tracker.MinPollInterval.String(),
		"tracker_max_poll_interval":  Global.Tracker.MaxPollInterval.String(),
		"tracker_batch_max_size":     Global.Tracker.BatchMaxSize,
		"tracker_batch_linger":       Global.Tracker.BatchLinger.String(),
		"tracker_cache_ttl":          Global.Tracker.CacheTTL.String(),
		"tracker_cache_max_entries":  Global.Tracker.CacheMaxEntries,
		"roblox_rate_tokens":         Global.Roblox.RateTokens,
		"roblox_rate_interval":       Global.Roblox.RateInterval.String(),
		"roblox_rate_burst":          Global.Roblox.RateBurst,
		"roblox_retry_max_attempts":  Global.Roblox.RetryMaxAttempts,
		"valkey_enabled":             Global.Database.ValkeyEnabled,
	}
}

// Helpers

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		vLower := strings.ToLower(v)
		return vLower == "1" || vLower == "true" || vLower == "yes" || vLower == "on"
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		// Bare integers are accepted as milliseconds.
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return fallback
}

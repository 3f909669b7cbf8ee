package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App        AppConfig
	Paths      PathsConfig
	Database   DatabaseConfig
	Roblox     RobloxConfig
	Tracker    TrackerConfig
	WorkerPool WorkerPoolConfig
	Security   SecurityConfig
}

type AppConfig struct {
	Version        string
	Port           string
	Debug          bool
	Environment    string
	BasicAuth      []string
	BasePath       string
	TrustedProxies []string
	ServerID       string
}

type PathsConfig struct {
	BaseDir  string
	Storages string
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string // File path for SQLite, DB name for Postgres
	ValkeyEnabled   bool
	ValkeyAddress   string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string
}

// RobloxConfig covers the outbound presence API: endpoint, identification
// and the platform's published rate and batch ceilings.
type RobloxConfig struct {
	BaseURL        string
	UserAgent      string
	RequestTimeout time.Duration
	// Token bucket: RateTokens are refilled every RateInterval, bucket
	// capacity RateBurst. One token pays for one account in a batch.
	RateTokens   int
	RateInterval time.Duration
	RateBurst    int
	// Retry policy for transient upstream failures.
	RetryMaxAttempts int
	BackoffBase      time.Duration
	BackoffCap       time.Duration
}

// TrackerConfig covers the polling pipeline. PollInterval and BatchLinger are
// starting points only; the scheduler adapts them at runtime within the
// configured bounds (see Runtime).
type TrackerConfig struct {
	PollInterval    time.Duration
	MinPollInterval time.Duration
	MaxPollInterval time.Duration
	BatchMaxSize    int
	BatchLinger     time.Duration
	MaxBatchLinger  time.Duration
	CacheTTL        time.Duration
	CacheMaxEntries int
}

type WorkerPoolConfig struct {
	Size      int
	QueueSize int
}

type SecurityConfig struct {
	SecretKey string
}

// Global provides access to the loaded configuration globally.
var Global *Config

// LoadConfig loads configuration from environment variables or defaults.
func LoadConfig() (*Config, error) {
	baseDir := getEnv("APP_BASE_DIR", "storages")

	debug := getEnvBool("APP_DEBUG", false) || getEnvBool("DEBUG", false)

	var basicAuth []string
	if v := getEnv("APP_BASIC_AUTH", ""); v != "" {
		basicAuth = strings.Split(v, ",")
	}

	appCfg := AppConfig{
		Version:     "v1.2.0",
		Port:        getEnv("APP_PORT", "3000"),
		Debug:       debug,
		Environment: getEnv("APP_ENV", "development"),
		BasicAuth:   basicAuth,
		BasePath:    getEnv("APP_BASE_PATH", ""),
		ServerID:    getEnv("SERVER_ID", ""),
	}
	if v := getEnv("APP_TRUSTED_PROXIES", ""); v != "" {
		appCfg.TrustedProxies = strings.Split(v, ",")
	}

	pathsCfg := PathsConfig{
		BaseDir:  baseDir,
		Storages: baseDir,
	}

	dbCfg := DatabaseConfig{
		Driver:          getEnv("DB_DRIVER", "sqlite"),
		Name:            getEnv("DB_NAME", filepath.Join(pathsCfg.Storages, "tracker.db")),
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		ValkeyEnabled:   getEnvBool("VALKEY_ENABLED", false),
		ValkeyAddress:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
		ValkeyPassword:  getEnv("VALKEY_PASSWORD", ""),
		ValkeyDB:        getEnvInt("VALKEY_DB", 0),
		ValkeyKeyPrefix: getEnv("VALKEY_KEY_PREFIX", "aztrack:"),
	}

	// Rate defaults follow presence.roblox.com's observed ceiling:
	// 10 account-tokens refilled every 3.5s, bulk calls capped at 100 ids.
	robloxCfg := RobloxConfig{
		BaseURL:          getEnv("ROBLOX_BASE_URL", "https://presence.roblox.com"),
		UserAgent:        getEnv("ROBLOX_USER_AGENT", "az-track/1.2"),
		RequestTimeout:   getEnvDuration("ROBLOX_REQUEST_TIMEOUT", 10*time.Second),
		RateTokens:       getEnvInt("ROBLOX_RATE_TOKENS", 10),
		RateInterval:     getEnvDuration("ROBLOX_RATE_INTERVAL", 3500*time.Millisecond),
		RateBurst:        getEnvInt("ROBLOX_RATE_BURST", 100),
		RetryMaxAttempts: getEnvInt("ROBLOX_RETRY_MAX_ATTEMPTS", 15),
		BackoffBase:      getEnvDuration("ROBLOX_BACKOFF_BASE", 100*time.Millisecond),
		BackoffCap:       getEnvDuration("ROBLOX_BACKOFF_CAP", 3*time.Second),
	}

	trackerCfg := TrackerConfig{
		PollInterval:    getEnvDuration("TRACKER_POLL_INTERVAL", 30*time.Second),
		MinPollInterval: getEnvDuration("TRACKER_MIN_POLL_INTERVAL", 10*time.Second),
		MaxPollInterval: getEnvDuration("TRACKER_MAX_POLL_INTERVAL", 5*time.Minute),
		BatchMaxSize:    getEnvInt("TRACKER_BATCH_MAX_SIZE", 100),
		BatchLinger:     getEnvDuration("TRACKER_BATCH_LINGER", 100*time.Millisecond),
		MaxBatchLinger:  getEnvDuration("TRACKER_MAX_BATCH_LINGER", 1*time.Second),
		CacheTTL:        getEnvDuration("TRACKER_CACHE_TTL", 20*time.Second),
		CacheMaxEntries: getEnvInt("TRACKER_CACHE_MAX_ENTRIES", 100000),
	}

	poolCfg := WorkerPoolConfig{
		Size:      getEnvInt("WORKER_POOL_SIZE", 20),
		QueueSize: getEnvInt("WORKER_QUEUE_SIZE", 1000),
	}

	secCfg := SecurityConfig{
		SecretKey: getEnv("APP_SECRET_KEY", ""),
	}

	cfg := &Config{
		App:        appCfg,
		Paths:      pathsCfg,
		Database:   dbCfg,
		Roblox:     robloxCfg,
		Tracker:    trackerCfg,
		WorkerPool: poolCfg,
		Security:   secCfg,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	Global = cfg
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot honor.
func (c *Config) Validate() error {
	if c.Tracker.BatchMaxSize <= 0 {
		return fmt.Errorf("batch max size must be positive, got %d", c.Tracker.BatchMaxSize)
	}
	if c.Tracker.BatchMaxSize > c.Roblox.RateBurst {
		return fmt.Errorf("batch max size (%d) cannot exceed rate burst (%d): a full batch could never acquire its tokens",
			c.Tracker.BatchMaxSize, c.Roblox.RateBurst)
	}
	if c.Tracker.MinPollInterval > c.Tracker.MaxPollInterval {
		return fmt.Errorf("min poll interval %s exceeds max %s", c.Tracker.MinPollInterval, c.Tracker.MaxPollInterval)
	}
	if c.Tracker.PollInterval < c.Tracker.MinPollInterval || c.Tracker.PollInterval > c.Tracker.MaxPollInterval {
		return fmt.Errorf("base poll interval %s outside [%s, %s]",
			c.Tracker.PollInterval, c.Tracker.MinPollInterval, c.Tracker.MaxPollInterval)
	}
	if c.Roblox.RetryMaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1, got %d", c.Roblox.RetryMaxAttempts)
	}
	return nil
}

// Package config loads the job configuration from the environment.
// A .env file in the working directory is honored when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults for optional settings.
const (
	DefaultPlatform       = "aws"
	DefaultBatchSize      = 100
	DefaultLookback       = 7 * 24 * time.Hour
	DefaultRunDeadline    = 30 * time.Minute
	DefaultRequestTimeout = 30 * time.Second
	DefaultMetricsAddr    = ":9090"
)

// Config holds everything the update job needs. It is an explicit value
// passed into the coordinator; there is no package-level mutable state.
type Config struct {
	// External source credentials.
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// Platform label stamped onto every product created by this job.
	Platform string

	// Regions to ingest; blacklisted entries are removed before the run.
	Regions         []string
	RegionBlacklist []string

	// BatchSize bounds how many staged observations accumulate before a
	// flush to the store.
	BatchSize int

	// DefaultLookback is the window start when no checkpoint exists.
	DefaultLookback time.Duration

	PostgresDSN   string
	ClickhouseDSN string // optional analytics mirror
	RedisAddr     string // optional; switches the run lock to a Redis lease
	LockPath      string

	RunDeadline    time.Duration
	RequestTimeout time.Duration
	MetricsAddr    string
}

// Load reads configuration from the environment. Missing required values
// are reported together so the operator fixes them in one pass.
func Load() (*Config, error) {
	// Best-effort; absence of a .env file is normal in production.
	_ = godotenv.Load()

	cfg := &Config{
		AWSAccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		Platform:           getEnv("PLATFORM", DefaultPlatform),
		Regions:            getEnvList("REGIONS", []string{"us-east-1"}),
		RegionBlacklist:    getEnvList("REGION_BLACKLIST", nil),
		PostgresDSN:        os.Getenv("POSTGRES_DSN"),
		ClickhouseDSN:      os.Getenv("CLICKHOUSE_DSN"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		LockPath:           os.Getenv("LOCK_PATH"),
		MetricsAddr:        getEnv("METRICS_ADDR", DefaultMetricsAddr),
	}

	var err error
	if cfg.BatchSize, err = getEnvInt("BATCH_SIZE", DefaultBatchSize); err != nil {
		return nil, err
	}
	if cfg.DefaultLookback, err = getEnvDuration("DEFAULT_LOOKBACK", DefaultLookback); err != nil {
		return nil, err
	}
	if cfg.RunDeadline, err = getEnvDuration("RUN_DEADLINE", DefaultRunDeadline); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", DefaultRequestTimeout); err != nil {
		return nil, err
	}

	var missing []string
	if cfg.AWSAccessKeyID == "" {
		missing = append(missing, "AWS_ACCESS_KEY_ID")
	}
	if cfg.AWSSecretAccessKey == "" {
		missing = append(missing, "AWS_SECRET_ACCESS_KEY")
	}
	if cfg.PostgresDSN == "" {
		missing = append(missing, "POSTGRES_DSN")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("BATCH_SIZE must be positive, got %d", cfg.BatchSize)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

// getEnvList parses a comma-separated list, trimming whitespace and
// dropping empty entries.
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var list []string
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			list = append(list, item)
		}
	}
	return list
}

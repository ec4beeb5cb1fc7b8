package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Record store.
	StoreDriver     string // sqlite or duckdb
	StoreDSN        string
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	// Search result cache.
	CacheBackend        string // memory, badger or none
	CacheTTL            time.Duration
	CacheSize           int
	CacheDir            string
	SearchMaxCandidates int

	// HTTP rate limiting; RateLimitRPS <= 0 disables it.
	RateLimitRPS   float64
	RateLimitBurst int

	// Kafka ingest.
	KafkaEnabled     bool
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaDLQTopic    string
	KafkaGroupID     string

	BatchSize          int
	BatchFlushInterval time.Duration

	// Mapbox reverse geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
	MapboxRPS       float64
}

// LogLevelName implements observability.LogSettings.
func (c *Config) LogLevelName() string { return c.LogLevel }

// LogFormatName implements observability.LogSettings.
func (c *Config) LogFormatName() string { return c.LogFormat }

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration("CACHE_TTL", "1h")
	if err != nil {
		return nil, err
	}
	breakerTimeout, err := parseDuration("BREAKER_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	cacheSize, err := parsePositiveInt("CACHE_SIZE", 1024)
	if err != nil {
		return nil, err
	}
	maxCandidates, err := parsePositiveInt("SEARCH_MAX_CANDIDATES", 100000)
	if err != nil {
		return nil, err
	}
	breakerFailures, err := parsePositiveInt("BREAKER_FAILURES", 5)
	if err != nil {
		return nil, err
	}
	rateBurst, err := parsePositiveInt("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, err
	}
	rateRPS, err := parseFloat("RATE_LIMIT_RPS", 10)
	if err != nil {
		return nil, err
	}
	mapboxRPS, err := parseFloat("MAPBOX_RPS", 10)
	if err != nil {
		return nil, err
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		StoreDriver:     sharedcfg.EnvOrDefault("STORE_DRIVER", "sqlite"),
		StoreDSN:        sharedcfg.EnvOrDefault("STORE_DSN", "quakes.db"),
		BreakerFailures: uint32(breakerFailures),
		BreakerTimeout:  breakerTimeout,

		CacheBackend:        sharedcfg.EnvOrDefault("CACHE_BACKEND", "memory"),
		CacheTTL:            cacheTTL,
		CacheSize:           cacheSize,
		CacheDir:            os.Getenv("CACHE_DIR"),
		SearchMaxCandidates: maxCandidates,

		RateLimitRPS:   rateRPS,
		RateLimitBurst: rateBurst,

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "raw-earthquakes"),
		KafkaDLQTopic:      os.Getenv("KAFKA_DLQ_TOPIC"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "quake-search"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: parseMapboxCacheSize(),
		MapboxRPS:       mapboxRPS,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. It is also used by the CLI after
// flags have been layered over the environment.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "sqlite", "duckdb":
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q: must be sqlite or duckdb", c.StoreDriver)
	}
	switch c.CacheBackend {
	case "memory", "badger", "none":
	default:
		return fmt.Errorf("invalid CACHE_BACKEND %q: must be memory, badger or none", c.CacheBackend)
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required")
		}
		if c.KafkaSourceTopic == "" {
			return errors.New("KAFKA_SOURCE_TOPIC is required")
		}
	}
	if c.MapboxEnabled && c.MapboxToken == "" {
		return errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}
	return nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: must be a number", key)
	}
	return f, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}

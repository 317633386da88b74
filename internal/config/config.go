package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/robfig/cron/v3"
)

// Directions providers.
const (
	ProviderMapbox = "mapbox"
	ProviderGoogle = "google"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Directions provider configuration.
	DirectionsProvider  string
	DirectionsRateLimit float64
	DirectionsBurst     int
	MapboxToken         string
	MapboxTimeout       time.Duration
	MapboxCacheSize     int
	GoogleMapsAPIKey    string

	// Device positioning.
	PositionTimeout time.Duration
	PositionMaxAge  time.Duration

	// AllowedOrigins lists browser origins accepted on the websocket
	// endpoints. Empty means same-host only.
	AllowedOrigins []string

	BufferRadius        float64
	SafeLocationsFile   string
	SafeLocationsReload string

	// Hazard report feed and alert sink.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaHazardTopic   string
	KafkaAlertTopic    string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration

	RedisURL string
}

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

	mapboxTimeout, err := parsePositiveDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	positionTimeout, err := parsePositiveDuration("POSITION_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	positionMaxAge, err := parsePositiveDuration("POSITION_MAX_AGE", "60s")
	if err != nil {
		return nil, err
	}

	rateLimit, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("DIRECTIONS_RATE_LIMIT", "5"), 64)
	if err != nil || rateLimit <= 0 {
		return nil, errors.New("invalid DIRECTIONS_RATE_LIMIT")
	}
	burst, err := strconv.Atoi(sharedcfg.EnvOrDefault("DIRECTIONS_BURST", "5"))
	if err != nil || burst <= 0 {
		return nil, errors.New("invalid DIRECTIONS_BURST")
	}
	radius, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("HAZARD_BUFFER_RADIUS", "500"), 64)
	if err != nil || radius <= 0 {
		return nil, errors.New("invalid HAZARD_BUFFER_RADIUS")
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DirectionsProvider:  strings.ToLower(sharedcfg.EnvOrDefault("DIRECTIONS_PROVIDER", ProviderMapbox)),
		DirectionsRateLimit: rateLimit,
		DirectionsBurst:     burst,
		MapboxToken:         os.Getenv("MAPBOX_TOKEN"),
		MapboxTimeout:       mapboxTimeout,
		MapboxCacheSize:     parseMapboxCacheSize(),
		GoogleMapsAPIKey:    os.Getenv("GOOGLE_MAPS_API_KEY"),

		PositionTimeout: positionTimeout,
		PositionMaxAge:  positionMaxAge,
		AllowedOrigins:  parseList(os.Getenv("ALLOWED_ORIGINS")),

		BufferRadius:        radius,
		SafeLocationsFile:   os.Getenv("SAFE_LOCATIONS_FILE"),
		SafeLocationsReload: os.Getenv("SAFE_LOCATIONS_RELOAD"),

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaHazardTopic:   sharedcfg.EnvOrDefault("KAFKA_HAZARD_TOPIC", "hazard-reports"),
		KafkaAlertTopic:    sharedcfg.EnvOrDefault("KAFKA_ALERT_TOPIC", "danger-alerts"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "storm-escape"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		RedisURL: os.Getenv("REDIS_URL"),
	}

	switch cfg.DirectionsProvider {
	case ProviderMapbox:
	case ProviderGoogle:
		if cfg.GoogleMapsAPIKey == "" {
			return nil, errors.New("DIRECTIONS_PROVIDER is google but GOOGLE_MAPS_API_KEY is not set")
		}
	default:
		return nil, fmt.Errorf("invalid DIRECTIONS_PROVIDER %q", cfg.DirectionsProvider)
	}

	if cfg.SafeLocationsReload != "" {
		if cfg.SafeLocationsFile == "" {
			return nil, errors.New("SAFE_LOCATIONS_RELOAD requires SAFE_LOCATIONS_FILE")
		}
		if _, err := cron.ParseStandard(cfg.SafeLocationsReload); err != nil {
			return nil, fmt.Errorf("invalid SAFE_LOCATIONS_RELOAD: %w", err)
		}
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaHazardTopic == "" {
			return nil, errors.New("KAFKA_HAZARD_TOPIC is required")
		}
		if cfg.KafkaAlertTopic == "" {
			return nil, errors.New("KAFKA_ALERT_TOPIC is required")
		}
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}

func parseList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

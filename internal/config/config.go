package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	RedisURL    string
	Environment string
	LogLevel    slog.Level

	// Active session
	MapID     int
	UserID    string
	AdminMode bool

	// Anchor defaults applied when a record omits a field
	DefaultClueIndex int
	DefaultVisible   bool
	DefaultPrefabKey string

	// Timeouts
	StoreReadyTimeout time.Duration

	// Map selection gate
	MaxMapDistanceMeters float64

	// Optional current location for nearest-map ranking
	UserLat     float64
	UserLon     float64
	HasLocation bool
}

func Load() *Config {
	return &Config{
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),

		MapID:     getEnvInt("MAP_ID", 0),
		UserID:    getEnv("USER_ID", ""),
		AdminMode: getEnvBool("ADMIN_MODE", false),

		DefaultClueIndex: getEnvInt("DEFAULT_CLUE_INDEX", 1),
		DefaultVisible:   getEnvBool("DEFAULT_VISIBLE", true),
		DefaultPrefabKey: getEnv("DEFAULT_PREFAB_KEY", "cube"),

		StoreReadyTimeout: getEnvDuration("STORE_READY_TIMEOUT", 10*time.Second),

		MaxMapDistanceMeters: getEnvFloat("MAX_MAP_DISTANCE_METERS", 30),

		UserLat:     getEnvFloat("USER_LAT", 0),
		UserLon:     getEnvFloat("USER_LON", 0),
		HasLocation: os.Getenv("USER_LAT") != "" && os.Getenv("USER_LON") != "",
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

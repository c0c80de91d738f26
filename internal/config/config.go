package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	SnapshotBackendRedis    = "redis"
	SnapshotBackendPostgres = "postgres"
)

type Config struct {
	ServerPort  string
	AppEnv      string
	DatabaseURL string
	RedisURL    string

	SnapshotBackend   string
	Codec             string
	PageSize          int
	DeviceIDSeed      int64
	SnapshotInterval  time.Duration
	SnapshotLocations []string
	ReadRetries       int
	ReadBackoff       time.Duration
}

func LoadConfig() (*Config, error) {
	pageSize, err := getEnvInt("PAGE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	seed, err := getEnvInt("DEVICE_ID_SEED", 32800)
	if err != nil {
		return nil, err
	}
	retries, err := getEnvInt("READ_RETRIES", 3)
	if err != nil {
		return nil, err
	}
	interval, err := getEnvDuration("SNAPSHOT_INTERVAL", 0)
	if err != nil {
		return nil, err
	}
	backoff, err := getEnvDuration("READ_BACKOFF", 5*time.Millisecond)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		AppEnv:            getEnv("APP_ENV", "dev"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		SnapshotBackend:   getEnv("SNAPSHOT_BACKEND", SnapshotBackendRedis),
		Codec:             getEnv("CODEC", "msgpack"),
		PageSize:          pageSize,
		DeviceIDSeed:      int64(seed),
		SnapshotInterval:  interval,
		SnapshotLocations: getEnvCSV("SNAPSHOT_LOCATIONS"),
		ReadRetries:       retries,
		ReadBackoff:       backoff,
	}

	// Validate required fields
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	switch cfg.SnapshotBackend {
	case SnapshotBackendRedis:
	case SnapshotBackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required when SNAPSHOT_BACKEND=postgres")
		}
	default:
		return nil, fmt.Errorf("invalid SNAPSHOT_BACKEND %q", cfg.SnapshotBackend)
	}
	if cfg.PageSize <= 0 {
		return nil, errors.New("PAGE_SIZE must be positive")
	}
	if cfg.ReadRetries < 0 {
		return nil, errors.New("READ_RETRIES must not be negative")
	}
	if cfg.SnapshotInterval > 0 && len(cfg.SnapshotLocations) == 0 {
		return nil, errors.New("SNAPSHOT_LOCATIONS is required when SNAPSHOT_INTERVAL is set")
	}

	return cfg, nil
}

// Helper: get env with default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s format", key)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s format", key)
	}
	return d, nil
}

func getEnvCSV(key string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

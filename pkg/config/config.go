package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Import        ImportConfig
	Observability ObservabilityConfig
	Cron          CronConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	APIPrefix          string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	MaxUploadBytes     int64
	AllowedOrigins     []string
	RateLimitPerSecond int
	RateLimitBurst     int
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MinConns int
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

// ImportConfig tunes the ingestion pipeline.
type ImportConfig struct {
	PreviewTTL        time.Duration
	PreviewStore      string // memory | postgres
	ConfirmTimeout    time.Duration
	JaccardThreshold  float64
	PrefixMinLength   int
	PrefixMaxLength   int
	ArchiveUploads    bool
	ArchivePath       string
	HeaderSearchDepth int
}

type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	MetricsEnabled bool
}

type CronConfig struct {
	Enabled        bool
	SweepSchedule  string
	StaleImportAge time.Duration
}

// Load reads configuration from environment variables, merging a .env file when present.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			APIPrefix:          getEnv("API_PREFIX", "/api/v1"),
			ReadTimeout:        getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:       getEnvAsDuration("SERVER_WRITE_TIMEOUT", 2*time.Minute),
			MaxUploadBytes:     int64(getEnvAsInt("SERVER_MAX_UPLOAD_BYTES", 10<<20)),
			AllowedOrigins:     getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 20),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 40),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "moneydiary"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("POSTGRES_MAX_CONNS", 25),
			MinConns: getEnvAsInt("POSTGRES_MIN_CONNS", 5),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", "moneydiary"),
		},
		Import: ImportConfig{
			PreviewTTL:        getEnvAsDuration("IMPORT_PREVIEW_TTL", 30*time.Minute),
			PreviewStore:      getEnv("IMPORT_PREVIEW_STORE", "memory"),
			ConfirmTimeout:    getEnvAsDuration("IMPORT_CONFIRM_TIMEOUT", 2*time.Minute),
			JaccardThreshold:  getEnvAsFloat("IMPORT_JACCARD_THRESHOLD", 0.8),
			PrefixMinLength:   getEnvAsInt("PATTERN_PREFIX_MIN_LENGTH", 4),
			PrefixMaxLength:   getEnvAsInt("PATTERN_PREFIX_MAX_LENGTH", 19),
			ArchiveUploads:    getEnvAsBool("IMPORT_ARCHIVE_UPLOADS", false),
			ArchivePath:       getEnv("IMPORT_ARCHIVE_PATH", "./uploads"),
			HeaderSearchDepth: getEnvAsInt("IMPORT_HEADER_SEARCH_DEPTH", 20),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
		Cron: CronConfig{
			Enabled:        getEnvAsBool("CRON_ENABLED", true),
			SweepSchedule:  getEnv("CRON_SWEEP_SCHEDULE", "@every 5m"),
			StaleImportAge: getEnvAsDuration("CRON_STALE_IMPORT_AGE", time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the values that have no usable default.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Import.PreviewTTL < 30*time.Minute {
		errs = append(errs, errors.New("IMPORT_PREVIEW_TTL must be at least 30m"))
	}
	switch c.Import.PreviewStore {
	case "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("IMPORT_PREVIEW_STORE must be memory or postgres, got %q", c.Import.PreviewStore))
	}
	if c.Import.JaccardThreshold <= 0 || c.Import.JaccardThreshold > 1 {
		errs = append(errs, errors.New("IMPORT_JACCARD_THRESHOLD must be in (0, 1]"))
	}
	if c.Import.PrefixMinLength < 1 || c.Import.PrefixMaxLength < c.Import.PrefixMinLength {
		errs = append(errs, errors.New("PATTERN_PREFIX_MIN_LENGTH/MAX_LENGTH are inconsistent"))
	}
	return errors.Join(errs...)
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Addr returns the listen address of the HTTP server.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/lib/pq"
)

// Config is the service configuration, read from the environment and an optional .env file
type Config struct {
	Server   ServerConfig
	Tables   TablesConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int           `validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
	AllowedOrigins  []string
}

// TablesConfig selects where decision tables come from and how they are served
type TablesConfig struct {
	// Dir is an optional directory of definition files layered over the embedded tables
	Dir string

	// DefaultTable is evaluated by the function handler when the request names none
	DefaultTable string `validate:"required"`

	RequireMatch bool

	// Watch reloads Dir on file changes
	Watch bool

	// RefreshSchedule is a cron schedule for periodic reloads, empty to disable
	RefreshSchedule string
}

// DatabaseConfig holds the optional definition repository connection
type DatabaseConfig struct {
	// URL is a postgres:// URL or a key=value connection string
	URL string

	MaxOpenConns    int `validate:"min=1"`
	MaxIdleConns    int `validate:"min=0"`
	ConnMaxLifetime time.Duration
}

// LoggingConfig is passed to the logger package
type LoggingConfig struct {
	Level       string `validate:"omitempty,oneof=trace debug info warn warning error fatal TRACE DEBUG INFO WARN WARNING ERROR FATAL"`
	SampleRate  int    `validate:"min=1"`
	OTELEnabled bool
	ServiceName string
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool
}

var validate = validator.New()

// Load reads .env when present, then the environment, and validates the result
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("PORT", 8080),
			ReadTimeout:     getEnvAsDuration("READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Tables: TablesConfig{
			Dir:             getEnv("TABLES_DIR", ""),
			DefaultTable:    getEnv("DEFAULT_TABLE", "dishDecision"),
			RequireMatch:    getEnvAsBool("REQUIRE_MATCH", false),
			Watch:           getEnvAsBool("WATCH_TABLES", false),
			RefreshSchedule: getEnv("REFRESH_SCHEDULE", ""),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Logging: LoggingConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			SampleRate:  getEnvAsInt("ERROR_SAMPLE_RATE", 1),
			OTELEnabled: getEnvAsBool("OTEL_ENABLED", false),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "decisions"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks field constraints and the combinations between them
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			msgs := make([]string, 0, len(validationErrors))
			for _, fe := range validationErrors {
				msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if c.Tables.Watch && c.Tables.Dir == "" {
		return fmt.Errorf("WATCH_TABLES requires TABLES_DIR")
	}
	if c.HasDatabase() {
		// NewConnector parses both DSN forms without dialing
		if _, err := pq.NewConnector(c.Database.URL); err != nil {
			return fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
	}
	return nil
}

// HasDatabase reports whether a definition repository is configured
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

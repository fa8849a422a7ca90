package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Identity     IdentityConfig
	Registration RegistrationConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Telemetry    TelemetryConfig
	RateLimit    RateLimitConfig
	Compensation CompensationConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port           string
	Env            string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// DatabaseConfig holds SurrealDB connection settings
type DatabaseConfig struct {
	Host        string
	Port        string
	Namespace   string
	Database    string
	User        string
	Password    string
	MaxAttempts int
}

// IdentityConfig holds identity store settings. An empty DSN selects the
// in-memory store, which is only allowed outside production.
type IdentityConfig struct {
	DatabaseDSN string
	BcryptCost  int
}

// RegistrationConfig holds registration workflow settings
type RegistrationConfig struct {
	QuotaCeiling        int
	StepTimeout         time.Duration
	CompensationTimeout time.Duration
	AuditTimeout        time.Duration
	TrustForwardedFor   bool
}

// RedisConfig holds the pending-compensation queue connection. An empty URL
// keeps the queue in memory.
type RedisConfig struct {
	URL       string
	KeyPrefix string
	PoolSize  int
}

// KafkaConfig holds audit event publishing settings. No brokers means events
// are logged instead.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// TelemetryConfig holds OpenTelemetry exporter settings
type TelemetryConfig struct {
	OTLPEndpoint string
	Insecure     bool
	ServiceName  string
}

// RateLimitConfig holds per-address HTTP rate limit settings
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	Burst             int
}

// CompensationConfig holds retrier settings
type CompensationConfig struct {
	RetryInterval time.Duration
	MaxAttempts   int
	BatchSize     int
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			Env:            getEnv("SERVER_ENV", "development"),
			ReadTimeout:    getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getDurationEnv("SERVER_WRITE_TIMEOUT", 15*time.Second),
			AllowedOrigins: getSliceEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Database: DatabaseConfig{
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnv("DB_PORT", "8000"),
			Namespace:   getEnv("DB_NAMESPACE", "qola"),
			Database:    getEnv("DB_DATABASE", "main"),
			User:        getEnv("DB_USER", "root"),
			Password:    getEnv("DB_PASSWORD", "root"),
			MaxAttempts: getIntEnv("DB_TX_MAX_ATTEMPTS", 3),
		},
		Identity: IdentityConfig{
			DatabaseDSN: getEnv("IDENTITY_DATABASE_DSN", ""),
			BcryptCost:  getIntEnv("IDENTITY_BCRYPT_COST", 12),
		},
		Registration: RegistrationConfig{
			QuotaCeiling:        getIntEnv("REGISTRATION_QUOTA_CEILING", 3),
			StepTimeout:         getDurationEnv("REGISTRATION_STEP_TIMEOUT", 5*time.Second),
			CompensationTimeout: getDurationEnv("REGISTRATION_COMPENSATION_TIMEOUT", 5*time.Second),
			AuditTimeout:        getDurationEnv("REGISTRATION_AUDIT_TIMEOUT", 2*time.Second),
			TrustForwardedFor:   getBoolEnv("REGISTRATION_TRUST_FORWARDED_FOR", true),
		},
		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", ""),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "qola:compensation"),
			PoolSize:  getIntEnv("REDIS_POOL_SIZE", 10),
		},
		Kafka: KafkaConfig{
			Brokers:  getSliceEnv("KAFKA_BROKERS", nil),
			Topic:    getEnv("KAFKA_AUDIT_TOPIC", "qola.registration.audit"),
			ClientID: getEnv("KAFKA_CLIENT_ID", "qola-api"),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure:     getBoolEnv("OTEL_EXPORTER_OTLP_INSECURE", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "qola-api"),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getBoolEnv("RATE_LIMIT_ENABLED", true),
			RequestsPerMinute: getIntEnv("RATE_LIMIT_REQUESTS_PER_MINUTE", 20),
			Burst:             getIntEnv("RATE_LIMIT_BURST", 5),
		},
		Compensation: CompensationConfig{
			RetryInterval: getDurationEnv("COMPENSATION_RETRY_INTERVAL", 30*time.Second),
			MaxAttempts:   getIntEnv("COMPENSATION_MAX_ATTEMPTS", 10),
			BatchSize:     getIntEnv("COMPENSATION_BATCH_SIZE", 50),
		},
	}, nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Validate checks that all required configuration values are present and valid.
// It returns an error describing all validation failures, or nil if valid.
func (c *Config) Validate() error {
	var errs []error

	// Server validation
	if c.Server.Port == "" {
		errs = append(errs, errors.New("SERVER_PORT is required"))
	}
	if c.Server.Env != "development" && c.Server.Env != "production" && c.Server.Env != "test" {
		errs = append(errs, fmt.Errorf("SERVER_ENV must be 'development', 'production', or 'test', got '%s'", c.Server.Env))
	}
	if len(c.Server.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("CORS_ALLOWED_ORIGINS must have at least one origin"))
	}

	// Database validation
	if c.Database.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.Database.Port == "" {
		errs = append(errs, errors.New("DB_PORT is required"))
	}
	if c.Database.Namespace == "" {
		errs = append(errs, errors.New("DB_NAMESPACE is required"))
	}
	if c.Database.Database == "" {
		errs = append(errs, errors.New("DB_DATABASE is required"))
	}
	if c.Database.MaxAttempts <= 0 {
		errs = append(errs, errors.New("DB_TX_MAX_ATTEMPTS must be positive"))
	}

	// Identity validation - the memory store loses identities on restart
	if c.IsProduction() && c.Identity.DatabaseDSN == "" {
		errs = append(errs, errors.New("IDENTITY_DATABASE_DSN is required in production"))
	}
	if c.Identity.BcryptCost < 4 || c.Identity.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("IDENTITY_BCRYPT_COST must be between 4 and 31, got %d", c.Identity.BcryptCost))
	}

	// Registration validation
	if c.Registration.QuotaCeiling <= 0 {
		errs = append(errs, errors.New("REGISTRATION_QUOTA_CEILING must be positive"))
	}
	if c.Registration.StepTimeout <= 0 {
		errs = append(errs, errors.New("REGISTRATION_STEP_TIMEOUT must be positive"))
	}
	if c.Registration.CompensationTimeout <= 0 {
		errs = append(errs, errors.New("REGISTRATION_COMPENSATION_TIMEOUT must be positive"))
	}
	if c.Registration.AuditTimeout <= 0 {
		errs = append(errs, errors.New("REGISTRATION_AUDIT_TIMEOUT must be positive"))
	}

	// Kafka validation
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("KAFKA_AUDIT_TOPIC is required when KAFKA_BROKERS is set"))
	}

	// Rate limit validation
	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMinute <= 0 {
			errs = append(errs, errors.New("RATE_LIMIT_REQUESTS_PER_MINUTE must be positive"))
		}
		if c.RateLimit.Burst <= 0 {
			errs = append(errs, errors.New("RATE_LIMIT_BURST must be positive"))
		}
	}

	// Compensation validation
	if c.Compensation.RetryInterval <= 0 {
		errs = append(errs, errors.New("COMPENSATION_RETRY_INTERVAL must be positive"))
	}
	if c.Compensation.MaxAttempts <= 0 {
		errs = append(errs, errors.New("COMPENSATION_MAX_ATTEMPTS must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Helper functions for reading environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

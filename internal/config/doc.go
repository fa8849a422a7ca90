// Package config manages application configuration for the Qola API.
//
// The config package loads and validates configuration from environment variables.
// All configuration is centralized here to provide a single source of truth.
//
// # Configuration Loading
//
//	cfg, err := config.Load()
//	if err == nil {
//	    err = cfg.Validate()
//	}
//
// Validate reports every problem at once, joined with errors.Join.
//
// # Configuration Groups
//
//   - ServerConfig: HTTP server settings (port, timeouts, CORS)
//   - DatabaseConfig: SurrealDB document store connection and retry bound
//   - IdentityConfig: Postgres identity store DSN and bcrypt cost
//   - RegistrationConfig: quota ceiling and per-step timeouts
//   - RedisConfig: pending-compensation queue
//   - KafkaConfig: audit event stream
//   - TelemetryConfig: OTLP trace exporter
//   - RateLimitConfig: per-address request limits
//   - CompensationConfig: retrier interval and attempt bound
//
// # Environment Variables
//
// Key environment variables:
//
//	SERVER_PORT                        - HTTP server port (default: 8080)
//	SERVER_ENV                         - development, production or test
//	DB_HOST, DB_PORT                   - SurrealDB address
//	DB_TX_MAX_ATTEMPTS                 - transaction conflict retries (default: 3)
//	IDENTITY_DATABASE_DSN              - Postgres DSN for identities
//	REGISTRATION_QUOTA_CEILING         - accounts per source address (default: 3)
//	REGISTRATION_STEP_TIMEOUT          - bound on each store call (default: 5s)
//	REGISTRATION_COMPENSATION_TIMEOUT  - bound on the compensating delete (default: 5s)
//	REDIS_URL                          - compensation queue
//	KAFKA_BROKERS                      - comma-separated audit brokers
//	OTEL_EXPORTER_OTLP_ENDPOINT        - trace collector
//	COMPENSATION_RETRY_INTERVAL        - retrier poll interval (default: 30s)
//	COMPENSATION_MAX_ATTEMPTS          - retries before abandoning (default: 10)
//
// Unparseable numeric, duration and boolean values fall back to their defaults.
package config

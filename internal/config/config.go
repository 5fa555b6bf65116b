// Package config defines the global configuration structure for the PR
// notification service. Configuration is loaded once at process
// initialization and is immutable thereafter. It follows 12-Factor App
// principles by strictly separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to
// fail immediately on startup (fail fast).
package config

import (
	"encoding/json"
	"time"

	"prtrack/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"prtrack-notifier"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Email    EmailConfig
	Identity IdentityConfig
	Auth     AuthConfig
	AWS      AWSConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// BaseURL is used to build deep links into the PR tracker UI
	// (no trailing slash), e.g. https://pr.example.com
	BaseURL string `envconfig:"BASE_URL" validate:"required,url"`
	// AsyncDispatch hands accepted triggers to the notify worker via SQS
	// instead of processing them inline. Requires SQS_NOTIFICATIONS.
	AsyncDispatch bool `envconfig:"ASYNC_DISPATCH" default:"false"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// CacheConfig holds resolver-cache settings. When RedisAddr is empty the
// service falls back to a process-local in-memory store.
type CacheConfig struct {
	RedisAddr     string        `envconfig:"REDIS_ADDR"`
	RedisPassword SecretString  `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	TTL           time.Duration `envconfig:"RESOLVER_CACHE_TTL" default:"1h"`
}

// EmailConfig holds mail delivery settings.
type EmailConfig struct {
	FromAddress string `envconfig:"EMAIL_FROM_ADDRESS" default:"no-reply@prtrack.example.com" validate:"email"`
	FromName    string `envconfig:"EMAIL_FROM_NAME" default:"PR Tracker"`
	// ProcurementAddress is the shared procurement-team inbox notified on
	// submissions and copied on decisions.
	ProcurementAddress string        `envconfig:"PROCUREMENT_ADDRESS" validate:"required,email"`
	SendTimeout        time.Duration `envconfig:"EMAIL_SEND_TIMEOUT" default:"10s"`
	Provider           string        `envconfig:"EMAIL_PROVIDER" default:"ses" validate:"oneof=ses stub"`
}

// IdentityConfig holds identity-resolution settings.
type IdentityConfig struct {
	// ExceptionsJSON maps specific known addresses to canonical display
	// names. Operator-maintained configuration, not business logic.
	// Example: {"jdoe@example.com": "Jonathan Doe"}
	ExceptionsJSON string `envconfig:"IDENTITY_EXCEPTIONS_JSON" default:"{}" validate:"json"`
	// AliasScanWindow bounds the case-insensitive user-record scan.
	AliasScanWindow int `envconfig:"IDENTITY_ALIAS_SCAN_WINDOW" default:"500"`
	// DirectoryJSON seeds the auth-directory lookup table consulted after
	// the user store misses. Empty disables the directory step.
	// Example: {"carol@example.com": "Carol Director"}
	DirectoryJSON string `envconfig:"AUTH_DIRECTORY_JSON" validate:"omitempty,json"`
}

// Exceptions parses the exception table. Validation guarantees the JSON is
// well-formed by the time this is called.
func (c IdentityConfig) Exceptions() map[string]string {
	m := map[string]string{}
	_ = json.Unmarshal([]byte(c.ExceptionsJSON), &m)
	return m
}

// Directory parses the directory table. A nil result disables the step.
func (c IdentityConfig) Directory() map[string]string {
	if c.DirectoryJSON == "" {
		return nil
	}
	m := map[string]string{}
	_ = json.Unmarshal([]byte(c.DirectoryJSON), &m)
	return m
}

// AuthConfig holds trigger-surface authentication settings.
type AuthConfig struct {
	// APIToken is the static bearer token required on the trigger surface.
	APIToken SecretString `envconfig:"API_TOKEN" validate:"required"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`
	// NotificationQueue is the SQS queue consumed by the notify worker.
	NotificationQueue string `envconfig:"SQS_NOTIFICATIONS"`
	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

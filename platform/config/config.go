// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// TwilioConfig provides settings for the outbound SMS gateway.
type TwilioConfig interface {
	GetTwilioAccountSID() string
	GetTwilioAuthToken() string
	GetTwilioAPIBaseURL() string
	IsMockSmsEnabled() bool
	GetSmsSendRatePerSecond() float64
}

// ExtractionConfig provides settings for the NLP extraction backend.
type ExtractionConfig interface {
	GetExtractionAPIURL() string
	GetExtractionAPIKey() string
	GetExtractionModel() string
	IsExtractionEnabled() bool
}

// WorkerConfig provides settings for the job worker process.
type WorkerConfig interface {
	GetWorkerID() string
	GetWorkerPollInterval() time.Duration
	GetWorkerBatchSize() int
	GetJobLeaseTimeout() time.Duration
	GetJobRetryDelay() time.Duration
	GetWorkerRunOnce() bool
}

// =============================================================================
// Config Struct
// =============================================================================

// Config holds all application configuration loaded from the environment.
type Config struct {
	Env string

	DatabaseURL string

	HTTPAddr     string
	CORSAllowAll bool
	CORSOrigins  []string

	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioAPIBaseURL     string
	MockSms              bool
	SmsSendRatePerSecond float64

	ExtractionAPIURL string
	ExtractionAPIKey string
	ExtractionModel  string

	WorkerID           string
	WorkerPollInterval time.Duration
	WorkerBatchSize    int
	JobLeaseTimeout    time.Duration
	JobRetryDelay      time.Duration
	WorkerRunOnce      bool
}

// Load reads configuration from the environment, with .env support for local
// development. Only DATABASE_URL is mandatory; everything else has defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:         getEnv("APP_ENV", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		CORSAllowAll: getBoolEnv("CORS_ALLOW_ALL", false),
		CORSOrigins:  splitAndTrim(os.Getenv("CORS_ORIGINS")),

		TwilioAccountSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioAPIBaseURL:     getEnv("TWILIO_API_BASE_URL", "https://api.twilio.com"),
		MockSms:              getBoolEnv("MOCK_TWILIO", false),
		SmsSendRatePerSecond: getFloatEnv("SMS_SEND_RATE_PER_SECOND", 5),

		ExtractionAPIURL: os.Getenv("EXTRACTION_API_URL"),
		ExtractionAPIKey: os.Getenv("EXTRACTION_API_KEY"),
		ExtractionModel:  getEnv("EXTRACTION_MODEL", "gpt-4.1-mini"),

		WorkerID:           getEnv("WORKER_ID", defaultWorkerID()),
		WorkerPollInterval: getDurationEnv("WORKER_POLL_INTERVAL", time.Minute),
		WorkerBatchSize:    getIntEnv("WORKER_BATCH_SIZE", 25),
		JobLeaseTimeout:    getDurationEnv("WORKER_LOCK_TIMEOUT", 10*time.Minute),
		JobRetryDelay:      getDurationEnv("JOB_RETRY_DELAY", time.Minute),
		WorkerRunOnce:      getBoolEnv("WORKER_ONCE", false),
	}

	// Without credentials the gateway can only run in mock mode.
	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" {
		cfg.MockSms = true
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// Interface implementations

func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

func (c *Config) GetTwilioAccountSID() string      { return c.TwilioAccountSID }
func (c *Config) GetTwilioAuthToken() string       { return c.TwilioAuthToken }
func (c *Config) GetTwilioAPIBaseURL() string      { return c.TwilioAPIBaseURL }
func (c *Config) IsMockSmsEnabled() bool           { return c.MockSms }
func (c *Config) GetSmsSendRatePerSecond() float64 { return c.SmsSendRatePerSecond }

func (c *Config) GetExtractionAPIURL() string { return c.ExtractionAPIURL }
func (c *Config) GetExtractionAPIKey() string { return c.ExtractionAPIKey }
func (c *Config) GetExtractionModel() string  { return c.ExtractionModel }
func (c *Config) IsExtractionEnabled() bool   { return c.ExtractionAPIKey != "" }

func (c *Config) GetWorkerID() string                  { return c.WorkerID }
func (c *Config) GetWorkerPollInterval() time.Duration { return c.WorkerPollInterval }
func (c *Config) GetWorkerBatchSize() int              { return c.WorkerBatchSize }
func (c *Config) GetJobLeaseTimeout() time.Duration    { return c.JobLeaseTimeout }
func (c *Config) GetJobRetryDelay() time.Duration      { return c.JobRetryDelay }
func (c *Config) GetWorkerRunOnce() bool               { return c.WorkerRunOnce }

// Helpers

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getBoolEnv(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch value {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}

func getIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getFloatEnv(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func splitAndTrim(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

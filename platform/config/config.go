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

// JWTConfig provides JWT validation settings for the operator API middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq scheduler/worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// DedupeConfig provides settings for the webhook dedupe lock store.
type DedupeConfig interface {
	GetRedisURL() string
	GetDedupeLockTTL() time.Duration
}

// AgentConfig provides settings for the agent service client.
type AgentConfig interface {
	GetGeminiAPIKey() string
	GetAgentModel() string
	GetAgentTimeout() time.Duration
	IsAgentEnabled() bool
}

// NotifyConfig provides settings for the approval-channel dispatcher.
type NotifyConfig interface {
	GetApprovalWebhookURL() string
	GetAppBaseURL() string
}

// EmailChannelConfig provides SMTP settings for the email channel.
type EmailChannelConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	IsEmailChannelEnabled() bool
}

// NetworkChannelConfig provides settings for the professional-network channel API.
type NetworkChannelConfig interface {
	GetNetworkAPIURL() string
	GetNetworkAPIKey() string
}

// WebhookSecretsConfig provides per-provider webhook verification secrets.
type WebhookSecretsConfig interface {
	GetCalendlySigningKey() string
	GetTranscriptSigningKey() string
	GetInteractionSigningSecret() string
	GetReplyAPIKey() string
}

// =============================================================================
// Config Struct
// =============================================================================

type Config struct {
	Env         string
	HTTPAddr    string
	DatabaseURL string

	JWTAccessSecret string

	CORSAllowAll   bool
	CORSOrigins    []string
	CORSAllowCreds bool
	AppBaseURL     string

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int
	DedupeLockTTL    time.Duration

	GeminiAPIKey string
	AgentModel   string
	AgentTimeout time.Duration

	ApprovalWebhookURL string

	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	EmailFromName    string
	EmailFromAddress string
	EmailEnabled     bool

	NetworkAPIURL string
	NetworkAPIKey string

	CalendlySigningKey       string
	TranscriptSigningKey     string
	InteractionSigningSecret string
	ReplyAPIKey              string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:             getEnv("APP_ENV", "development"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		JWTAccessSecret: getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:    corsAllowAll,
		CORSOrigins:     corsOrigins,
		CORSAllowCreds:  strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:      getEnv("APP_BASE_URL", "http://localhost:4200"),

		RedisURL:         getEnv("REDIS_URL", ""),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency: mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		DedupeLockTTL:    mustDuration(getEnv("DEDUPE_LOCK_TTL", "30s")),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		AgentModel:   getEnv("AGENT_MODEL", "gemini-2.0-flash"),
		AgentTimeout: mustDuration(getEnv("AGENT_TIMEOUT", "30s")),

		ApprovalWebhookURL: getEnv("APPROVAL_WEBHOOK_URL", ""),

		SMTPHost:         getEnv("SMTP_HOST", ""),
		SMTPPort:         mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:     getEnv("SMTP_USERNAME", ""),
		SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "Outreach"),
		EmailFromAddress: getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailEnabled:     emailEnabled,

		NetworkAPIURL: getEnv("NETWORK_API_URL", ""),
		NetworkAPIKey: getEnv("NETWORK_API_KEY", ""),

		CalendlySigningKey:       getEnv("CALENDLY_SIGNING_KEY", ""),
		TranscriptSigningKey:     getEnv("TRANSCRIPT_SIGNING_KEY", ""),
		InteractionSigningSecret: getEnv("INTERACTION_SIGNING_SECRET", ""),
		ReplyAPIKey:              getEnv("REPLY_API_KEY", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.EmailEnabled && cfg.SMTPHost == "" {
		return nil, fmt.Errorf("SMTP_HOST is required when EMAIL_ENABLED is true")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

// =============================================================================
// Interface Implementations
// =============================================================================

func (c *Config) GetDatabaseURL() string     { return c.DatabaseURL }
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

func (c *Config) GetRedisURL() string             { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool       { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string       { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int        { return c.AsynqConcurrency }
func (c *Config) GetDedupeLockTTL() time.Duration { return c.DedupeLockTTL }

func (c *Config) GetGeminiAPIKey() string        { return c.GeminiAPIKey }
func (c *Config) GetAgentModel() string          { return c.AgentModel }
func (c *Config) GetAgentTimeout() time.Duration { return c.AgentTimeout }
func (c *Config) IsAgentEnabled() bool           { return c.GeminiAPIKey != "" }

func (c *Config) GetApprovalWebhookURL() string { return c.ApprovalWebhookURL }
func (c *Config) GetAppBaseURL() string         { return c.AppBaseURL }

func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) IsEmailChannelEnabled() bool { return c.EmailEnabled && c.SMTPHost != "" }

func (c *Config) GetNetworkAPIURL() string { return c.NetworkAPIURL }
func (c *Config) GetNetworkAPIKey() string { return c.NetworkAPIKey }

func (c *Config) GetCalendlySigningKey() string       { return c.CalendlySigningKey }
func (c *Config) GetTranscriptSigningKey() string     { return c.TranscriptSigningKey }
func (c *Config) GetInteractionSigningSecret() string { return c.InteractionSigningSecret }
func (c *Config) GetReplyAPIKey() string              { return c.ReplyAPIKey }

// =============================================================================
// Helpers
// =============================================================================

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}

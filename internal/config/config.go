// Package config provides environment-variable-first configuration loading
// with optional YAML file and .env fallbacks for the API server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Provider names accepted by Mail.Provider.
const (
	ProviderSMTP   = "smtp"
	ProviderSES    = "ses"
	ProviderGraph  = "graph"
	ProviderStdout = "stdout"
)

// Rate limiter backends accepted by RateLimit.Backend.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds the complete application configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Contact   ContactConfig   `yaml:"contact"`
	Mail      MailConfig      `yaml:"mail"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	SES       SESConfig       `yaml:"ses"`
	Graph     GraphConfig     `yaml:"graph"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Media     MediaConfig     `yaml:"media"`
	TLS       TLSConfig       `yaml:"tls"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// HTTPConfig holds the API listener settings.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
	// TrustProxy keys clients on X-Forwarded-For / X-Real-IP. Enable only
	// behind a proxy that overwrites those headers.
	TrustProxy     bool     `yaml:"trust_proxy"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
}

// ContactConfig holds user-facing contact settings.
type ContactConfig struct {
	BusinessName    string `yaml:"business_name"`
	FallbackContact string `yaml:"fallback_contact"`
}

// MailConfig selects the delivery provider and fixed addresses.
type MailConfig struct {
	Provider        string        `yaml:"provider"`
	Sender          string        `yaml:"sender"`
	Receiver        string        `yaml:"receiver"`
	SendAttempts    int           `yaml:"send_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
	Timezone        string        `yaml:"timezone"`
}

// SMTPConfig holds outbound SMTP relay settings.
type SMTPConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	SSL      bool          `yaml:"ssl"`
	Timeout  time.Duration `yaml:"timeout"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Sender       string `yaml:"sender"`
}

// RateLimitConfig holds contact rate limiter settings.
type RateLimitConfig struct {
	Backend       string        `yaml:"backend"`
	Window        time.Duration `yaml:"window"`
	Max           int           `yaml:"max"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	RedisURL      string        `yaml:"redis_url"`
}

// AdminConfig holds blog administrator credentials.
type AdminConfig struct {
	Email        string        `yaml:"email"`
	Password     string        `yaml:"password"`
	PasswordHash string        `yaml:"password_hash"`
	JWTSecret    string        `yaml:"jwt_secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

// DatabaseConfig holds the blog database DSN. Empty keeps posts in memory.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// MediaConfig holds S3 image upload settings. Empty bucket disables uploads.
type MediaConfig struct {
	Bucket        string `yaml:"bucket"`
	Region        string `yaml:"region"`
	Prefix        string `yaml:"prefix"`
	PublicBaseURL string `yaml:"public_base_url"`
}

// TLSConfig holds TLS certificate file paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvVars()

	return cfg, nil
}

// LoadDotEnv loads variables from .env files into the process environment
// without overriding variables that are already set. Missing files are
// ignored.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Validate reports configuration that would leave the server unusable.
func (c *Config) Validate() error {
	var problems []string

	switch c.Mail.Provider {
	case ProviderSMTP:
		if c.SMTP.Host == "" {
			problems = append(problems, "smtp.host is required for the smtp provider")
		}
	case ProviderSES:
		if c.SES.Region == "" {
			problems = append(problems, "ses.region is required for the ses provider")
		}
	case ProviderGraph:
		if !c.GraphConfigured() {
			problems = append(problems, "graph tenant_id, client_id, client_secret and sender are required for the graph provider")
		}
	case ProviderStdout:
	default:
		problems = append(problems, fmt.Sprintf("unknown mail provider %q", c.Mail.Provider))
	}

	if c.Mail.Receiver == "" {
		problems = append(problems, "mail.receiver is required")
	}
	if c.MailSender() == "" {
		problems = append(problems, "mail.sender is required")
	}
	if c.Mail.SendAttempts <= 0 {
		problems = append(problems, "mail.send_attempts must be positive")
	}

	switch c.RateLimit.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.RateLimit.RedisURL == "" {
			problems = append(problems, "rate_limit.redis_url is required for the redis backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown rate limit backend %q", c.RateLimit.Backend))
	}
	if c.RateLimit.Max <= 0 {
		problems = append(problems, "rate_limit.max must be positive")
	}
	if c.RateLimit.Window <= 0 {
		problems = append(problems, "rate_limit.window must be positive")
	}

	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		problems = append(problems, "tls.cert_file and tls.key_file must be set together")
	}
	if c.Database.URL != "" && c.Admin.JWTSecret == "" {
		problems = append(problems, "admin.jwt_secret is required when the blog is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// GraphConfigured returns true if all four Graph API credentials are set.
func (c *Config) GraphConfigured() bool {
	return c.Graph.TenantID != "" &&
		c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != "" &&
		c.Graph.Sender != ""
}

// MailSender returns the From address, falling back to the SMTP user
// (the account Gmail-style relays send as) and then the Graph mailbox.
func (c *Config) MailSender() string {
	switch {
	case c.Mail.Sender != "":
		return c.Mail.Sender
	case c.SMTP.Username != "":
		return c.SMTP.Username
	default:
		return c.Graph.Sender
	}
}

// TLSEnabled returns true when a certificate pair is configured.
func (c *Config) TLSEnabled() bool {
	return c.TLS.CertFile != "" && c.TLS.KeyFile != ""
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.HTTP.Listen = ":4000"
	c.HTTP.AllowedOrigins = []string{"http://localhost:3000", "https://www.mopstarcleaning.com"}
	c.HTTP.MaxBodyBytes = 64 << 10
	c.HTTP.MaxUploadBytes = 10 << 20

	c.Contact.BusinessName = "Mopstar Cleaning"
	c.Contact.FallbackContact = "info@mopstarcleaning.com"

	c.Mail.Provider = ProviderSMTP
	c.Mail.SendAttempts = 2
	c.Mail.RetryDelay = 500 * time.Millisecond
	c.Mail.DispatchTimeout = 30 * time.Second
	c.Mail.Timezone = "UTC"

	c.SMTP.Host = "smtp.gmail.com"
	c.SMTP.Port = 465
	c.SMTP.SSL = true
	c.SMTP.Timeout = 10 * time.Second

	c.RateLimit.Backend = BackendMemory
	c.RateLimit.Window = 15 * time.Minute
	c.RateLimit.Max = 5
	c.RateLimit.SweepInterval = time.Minute

	c.Admin.TokenTTL = 24 * time.Hour

	c.Logging.Level = "info"
	c.Logging.Format = "json"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("PORT"); v != "" {
		c.HTTP.Listen = ":" + v
	}
	if v := os.Getenv("HTTP_LISTEN"); v != "" {
		c.HTTP.Listen = v
	}
	setBool("HTTP_TRUST_PROXY", &c.HTTP.TrustProxy)
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		c.HTTP.AllowedOrigins = splitList(v)
	}

	setString("BUSINESS_NAME", &c.Contact.BusinessName)
	setString("FALLBACK_CONTACT", &c.Contact.FallbackContact)

	if v := os.Getenv("MAIL_PROVIDER"); v != "" {
		c.Mail.Provider = strings.ToLower(v)
	}
	setString("MAIL_SENDER", &c.Mail.Sender)
	setString("RECEIVER_EMAIL", &c.Mail.Receiver)
	setInt("MAIL_SEND_ATTEMPTS", &c.Mail.SendAttempts)
	setDuration("MAIL_RETRY_DELAY", &c.Mail.RetryDelay)
	setDuration("MAIL_DISPATCH_TIMEOUT", &c.Mail.DispatchTimeout)
	setString("MAIL_TIMEZONE", &c.Mail.Timezone)

	setString("SMTP_HOST", &c.SMTP.Host)
	setInt("SMTP_PORT", &c.SMTP.Port)
	setBool("SMTP_SSL", &c.SMTP.SSL)
	setString("SENDER_EMAIL", &c.SMTP.Username)
	setString("SENDER_PASS", &c.SMTP.Password)
	setDuration("SMTP_TIMEOUT", &c.SMTP.Timeout)

	setString("SES_REGION", &c.SES.Region)
	setString("SES_ACCESS_KEY_ID", &c.SES.AccessKeyID)
	setString("SES_SECRET_ACCESS_KEY", &c.SES.SecretAccessKey)

	setString("GRAPH_TENANT_ID", &c.Graph.TenantID)
	setString("GRAPH_CLIENT_ID", &c.Graph.ClientID)
	setString("GRAPH_CLIENT_SECRET", &c.Graph.ClientSecret)
	setString("GRAPH_SENDER", &c.Graph.Sender)

	if v := os.Getenv("RATE_LIMIT_BACKEND"); v != "" {
		c.RateLimit.Backend = strings.ToLower(v)
	}
	setDuration("RATE_LIMIT_WINDOW", &c.RateLimit.Window)
	setInt("RATE_LIMIT_MAX", &c.RateLimit.Max)
	setString("REDIS_URL", &c.RateLimit.RedisURL)

	setString("ADMIN_EMAIL", &c.Admin.Email)
	setString("ADMIN_PASSWORD", &c.Admin.Password)
	setString("ADMIN_PASSWORD_HASH", &c.Admin.PasswordHash)
	setString("JWT_SECRET", &c.Admin.JWTSecret)

	setString("DATABASE_URL", &c.Database.URL)

	setString("MEDIA_S3_BUCKET", &c.Media.Bucket)
	setString("MEDIA_S3_REGION", &c.Media.Region)
	setString("MEDIA_S3_PREFIX", &c.Media.Prefix)
	setString("MEDIA_PUBLIC_BASE_URL", &c.Media.PublicBaseURL)

	setString("TLS_CERT_FILE", &c.TLS.CertFile)
	setString("TLS_KEY_FILE", &c.TLS.KeyFile)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
}

func setString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// setInt ignores unparseable values, keeping the previous layer.
func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// setDuration accepts Go durations ("15m") or whole milliseconds ("900000"),
// the unit the rate limit window was historically configured in.
func setDuration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
		return
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		*dst = time.Duration(ms) * time.Millisecond
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

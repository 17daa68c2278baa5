// Package config loads process configuration from the environment.
//
// Sources are applied in order: an optional AWS Secrets Manager secret and
// an optional .env file are merged into the process environment, the
// environment is parsed into Config, and finally Cloud Foundry VCAP
// bindings fill provider settings the environment left empty.
package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	dErrors "cloudgate/pkg/domain-errors"
	"cloudgate/pkg/platform/middleware/metadata"
)

// DefaultCallbackPath is appended to the bound application URI when the
// redirect URI is derived from VCAP_APPLICATION.
const DefaultCallbackPath = "/ibm/bluemix/appid/callback"

// Config is the full process configuration.
type Config struct {
	Server     ServerConfig
	Provider   ProviderConfig
	Management ManagementConfig
	Session    SessionConfig
	Redis      RedisConfig
	RateLimit  RateLimitConfig
	Audit      AuditConfig

	HTTPClientTimeout time.Duration `env:"HTTP_CLIENT_TIMEOUT" envDefault:"10s"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port            int           `env:"PORT" envDefault:"1234"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// TrustedProxies lists the peers allowed to set X-Forwarded-For and
	// X-Real-IP. Empty means forwarded headers are ignored.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

// Addr is the listen address for Port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// ProviderConfig identifies this application to the IdP.
type ProviderConfig struct {
	TenantID          string `env:"APPID_TENANT_ID"`
	ClientID          string `env:"APPID_CLIENT_ID"`
	Secret            string `env:"APPID_SECRET"`
	OAuthServerURL    string `env:"APPID_OAUTH_SERVER_URL"`
	RedirectURI       string `env:"APPID_REDIRECT_URI"`
	TokenVersion      string `env:"APPID_TOKEN_VERSION"`
	DefaultSuccessURL string `env:"DEFAULT_SUCCESS_URL"`
}

// ManagementConfig points at the cloud directory management API. An empty
// IAMAPIKey means the app-to-app token is used as the bearer.
type ManagementConfig struct {
	URL         string `env:"APPID_MANAGEMENT_URL"`
	IAMAPIKey   string `env:"IAM_API_KEY"`
	IAMTokenURL string `env:"IAM_TOKEN_URL" envDefault:"https://iam.cloud.ibm.com/identity/token"`
}

// SessionConfig controls session lifetime and the session cookie.
type SessionConfig struct {
	TTL            time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	TransactionTTL time.Duration `env:"TRANSACTION_TTL" envDefault:"10m"`
	CookieName     string        `env:"SESSION_COOKIE_NAME" envDefault:"cloudgate_sid"`
	CookieSecure   bool          `env:"SESSION_COOKIE_SECURE" envDefault:"false"`
}

// RedisConfig configures the optional Redis session store. An empty URL
// selects the in-memory store.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// RateLimitConfig bounds credential and account form submissions per client.
type RateLimitConfig struct {
	LoginPerSecond float64 `env:"LOGIN_RATE_LIMIT" envDefault:"5"`
	LoginBurst     int     `env:"LOGIN_RATE_BURST" envDefault:"10"`
	Disabled       bool    `env:"RATE_LIMIT_DISABLED" envDefault:"false"`
}

// AuditConfig sizes the asynchronous audit trail.
type AuditConfig struct {
	BufferSize    int           `env:"AUDIT_BUFFER_SIZE" envDefault:"1024"`
	FlushInterval time.Duration `env:"AUDIT_FLUSH_INTERVAL" envDefault:"1s"`
}

// Load merges the optional secret and .env sources into the process
// environment and parses the result.
func Load(ctx context.Context) (*Config, error) {
	if err := loadSecrets(ctx, nil); err != nil {
		return nil, err
	}
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	return Parse(environMap(os.Environ()))
}

// Parse builds a Config from environ alone and validates it.
func Parse(environ map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "parse environment")
	}
	if err := applyVCAP(&cfg, environ[vcapServicesVar], environ[vcapApplicationVar]); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every missing or malformed required setting at once.
func (c *Config) Validate() error {
	var errs []error
	for _, f := range []struct{ name, value string }{
		{"APPID_TENANT_ID", c.Provider.TenantID},
		{"APPID_CLIENT_ID", c.Provider.ClientID},
		{"APPID_SECRET", c.Provider.Secret},
		{"APPID_OAUTH_SERVER_URL", c.Provider.OAuthServerURL},
		{"APPID_REDIRECT_URI", c.Provider.RedirectURI},
	} {
		if strings.TrimSpace(f.value) == "" {
			errs = append(errs, dErrors.New(dErrors.CodeValidation, f.name+" is required"))
		}
	}
	for _, f := range []struct{ name, value string }{
		{"APPID_OAUTH_SERVER_URL", c.Provider.OAuthServerURL},
		{"APPID_REDIRECT_URI", c.Provider.RedirectURI},
		{"APPID_MANAGEMENT_URL", c.Management.URL},
	} {
		if f.value != "" && !absoluteURL(f.value) {
			errs = append(errs, dErrors.New(dErrors.CodeValidation, f.name+" must be an absolute URL"))
		}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, dErrors.New(dErrors.CodeValidation, "PORT is out of range"))
	}
	if _, err := metadata.ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		errs = append(errs, dErrors.Wrap(err, dErrors.CodeValidation, "TRUSTED_PROXIES"))
	}
	if c.Session.TTL <= 0 || c.Session.TransactionTTL <= 0 {
		errs = append(errs, dErrors.New(dErrors.CodeValidation, "session and transaction TTLs must be positive"))
	}
	if c.RateLimit.LoginPerSecond <= 0 || c.RateLimit.LoginBurst <= 0 {
		errs = append(errs, dErrors.New(dErrors.CodeValidation, "login rate limit must be positive"))
	}
	if c.Audit.BufferSize <= 0 || c.Audit.FlushInterval <= 0 {
		errs = append(errs, dErrors.New(dErrors.CodeValidation, "audit buffer size and flush interval must be positive"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, dErrors.New(dErrors.CodeValidation, "LOG_LEVEL must be debug, info, warn or error"))
	}
	return errors.Join(errs...)
}

// ManagementEnabled reports whether the account routes can be served.
func (c *Config) ManagementEnabled() bool {
	return c.Management.URL != ""
}

func absoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func loadDotEnv() error {
	path := os.Getenv("ENV_FILE_PATH")
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	// existing variables win over the file
	if err := godotenv.Load(path); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "load "+path)
	}
	return nil
}

func environMap(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}

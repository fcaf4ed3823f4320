package config

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

var errMissingSecret = errors.New("APP_SECRET is not set")

// Config holds the orgkit-backend settings read from the environment.
type Config struct {
	Environment string
	HTTP        struct {
		Addr string
	}
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string
		SSLMode  string
	}
	RedisURL string
	NATSURL  string
	Log      struct {
		Level  string
		Format string
	}

	AppSecret    string
	SiteURL      string
	CookieSecure bool
	SessionTTL   time.Duration

	InviteLinkTTL     time.Duration
	EmailInviteTTL    time.Duration
	InviteReaperEvery time.Duration

	AuthProvider struct {
		URL    string
		APIKey string
	}
	Mailer struct {
		URL    string
		APIKey string
		From   string
	}
	SlackWebhookURL string
	SentryDSN       string
}

func Load() *Config {
	cfg := &Config{}
	cfg.Environment = getEnv("APP_ENV", "development")
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "orgkit")
	cfg.Database.Password = getEnv("DB_PASSWORD", "orgkit")
	cfg.Database.Name = getEnv("DB_NAME", "orgkit")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.RedisURL = getEnv("REDIS_URL", "redis://localhost:6379/0")
	cfg.NATSURL = getEnv("NATS_URL", "nats://127.0.0.1:4222")
	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.AppSecret = os.Getenv("APP_SECRET")
	cfg.SiteURL = strings.TrimRight(getEnv("SITE_URL", "http://localhost:3000"), "/")
	cfg.CookieSecure = getEnv("COOKIE_SECURE", "false") == "true"
	cfg.SessionTTL = parseDuration(getEnv("SESSION_TTL", "168h"), 7*24*time.Hour)

	cfg.InviteLinkTTL = parseDuration(getEnv("INVITE_LINK_TTL", "168h"), 7*24*time.Hour)
	cfg.EmailInviteTTL = parseDuration(getEnv("EMAIL_INVITE_TTL", "168h"), 7*24*time.Hour)
	cfg.InviteReaperEvery = parseDuration(getEnv("INVITE_REAPER_INTERVAL", "10m"), 10*time.Minute)

	cfg.AuthProvider.URL = strings.TrimRight(getEnv("AUTH_PROVIDER_URL", "http://localhost:9999"), "/")
	cfg.AuthProvider.APIKey = os.Getenv("AUTH_PROVIDER_API_KEY")
	cfg.Mailer.URL = strings.TrimRight(os.Getenv("MAILER_URL"), "/")
	cfg.Mailer.APIKey = os.Getenv("MAILER_API_KEY")
	cfg.Mailer.From = getEnv("MAILER_FROM", "no-reply@localhost")
	cfg.SlackWebhookURL = os.Getenv("SLACK_WEBHOOK_URL")
	cfg.SentryDSN = os.Getenv("SENTRY_DSN")

	return cfg
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	if c.AppSecret == "" {
		return errMissingSecret
	}
	if len(c.AppSecret) < 32 && c.IsProduction() {
		return fmt.Errorf("APP_SECRET must be at least 32 bytes in production")
	}
	if c.InviteLinkTTL <= 0 || c.EmailInviteTTL <= 0 {
		return fmt.Errorf("invite TTLs must be positive")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.Name, c.Database.SSLMode)
}

// DeriveKey expands APP_SECRET into a 32-byte key bound to purpose, so the
// session and invite-cookie signers never share key material.
func (c *Config) DeriveKey(purpose string) ([]byte, error) {
	if c.AppSecret == "" {
		return nil, errMissingSecret
	}
	r := hkdf.New(sha256.New, []byte(c.AppSecret), nil, []byte("orgkit:"+purpose))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", purpose, err)
	}
	return key, nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

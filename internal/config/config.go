package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvLive        = "live"
)

type Config struct {
	Env       string
	Addr      string
	BaseURL   string
	EventName string
	LogLevel  string

	DBDriver string // sqlite | postgres
	DBDSN    string

	AdminPasswordHash string // bcrypt
	AdminPassword     string // plain fallback, development only
	SessionSecret     string
	SessionTTL        time.Duration

	StripeSecretKey     string
	StripeWebhookSecret string
	PricePerChildCents  int64
	Currency            string

	SendgridAPIKey string
	FromEmail      string
	FromName       string

	GradesFile string
}

// Live reports whether confirmations go out to real parents.
func (c *Config) Live() bool { return c.Env == EnvLive }

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return errors.Errorf("config: unknown DB_DRIVER %q", c.DBDriver)
	}
	if c.Live() {
		var missing []string
		for k, v := range map[string]string{
			"STRIPE_SECRET_KEY":     c.StripeSecretKey,
			"STRIPE_WEBHOOK_SECRET": c.StripeWebhookSecret,
			"SENDGRID_API_KEY":      c.SendgridAPIKey,
			"SESSION_SECRET":        c.SessionSecret,
			"ADMIN_PASSWORD_HASH":   c.AdminPasswordHash,
		} {
			if v == "" {
				missing = append(missing, k)
			}
		}
		if len(missing) > 0 {
			return errors.Errorf("config: live mode requires %s", strings.Join(missing, ", "))
		}
	}
	if c.PricePerChildCents < 0 {
		return errors.New("config: PRICE_PER_CHILD_CENTS must not be negative")
	}
	return nil
}

// Load reads settings from the environment, optionally seeded by
// config/.env.<env> in the working directory.
func Load() (*Config, error) {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
	if env == "" {
		env = EnvDevelopment
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+env)
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "config.godotenv(%s)", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "config.os.Stat(%s)", dotEnvPath)
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetDefault("addr", ":8080")
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("event_name", "Vacation Bible School")
	v.SetDefault("log_level", "info")
	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("db_dsn", "vbs.db?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	v.SetDefault("admin_password_hash", "")
	v.SetDefault("admin_password", "")
	v.SetDefault("session_secret", "")
	v.SetDefault("session_ttl", 12*time.Hour)
	v.SetDefault("stripe_secret_key", "")
	v.SetDefault("stripe_webhook_secret", "")
	v.SetDefault("price_per_child_cents", int64(2500))
	v.SetDefault("currency", "usd")
	v.SetDefault("sendgrid_api_key", "")
	v.SetDefault("from_email", "noreply@localhost")
	v.SetDefault("from_name", "VBS Registration")
	v.SetDefault("grades_file", "")
	v.AutomaticEnv()

	cfg := &Config{
		Env:                 env,
		Addr:                v.GetString("addr"),
		BaseURL:             strings.TrimRight(v.GetString("base_url"), "/"),
		EventName:           v.GetString("event_name"),
		LogLevel:            v.GetString("log_level"),
		DBDriver:            strings.ToLower(v.GetString("db_driver")),
		DBDSN:               v.GetString("db_dsn"),
		AdminPasswordHash:   v.GetString("admin_password_hash"),
		AdminPassword:       v.GetString("admin_password"),
		SessionSecret:       v.GetString("session_secret"),
		SessionTTL:          v.GetDuration("session_ttl"),
		StripeSecretKey:     v.GetString("stripe_secret_key"),
		StripeWebhookSecret: v.GetString("stripe_webhook_secret"),
		PricePerChildCents:  v.GetInt64("price_per_child_cents"),
		Currency:            strings.ToLower(v.GetString("currency")),
		SendgridAPIKey:      v.GetString("sendgrid_api_key"),
		FromEmail:           v.GetString("from_email"),
		FromName:            v.GetString("from_name"),
		GradesFile:          v.GetString("grades_file"),
	}
	if cfg.Env != EnvLive {
		if cfg.AdminPassword == "" && cfg.AdminPasswordHash == "" {
			cfg.AdminPassword = "admin123" // change in production: export ADMIN_PASSWORD_HASH=...
		}
		if cfg.SessionSecret == "" {
			cfg.SessionSecret = "dev-session-secret"
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

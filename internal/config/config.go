// Package config loads process configuration from a .env file and the
// environment through viper.
package config

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Ledger   LedgerConfig
	Tokens   TokenConfig
	Payments PaymentsConfig
	Workers  WorkerConfig
	JWT      JWTConfig
}

type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
	OpenAPIPath     string
}

type LedgerConfig struct {
	PlatformFeeBps     int64
	DailyCapCents      int64
	RefundWindow       time.Duration
	TopupDenominations []int64
	SplitPolicy        string
}

type TokenConfig struct {
	SecretKey          string
	TTL                time.Duration
	RevocationCacheTTL time.Duration
}

type PaymentsConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	SuccessURL string
	CancelURL  string
	Currency   string
}

type WorkerConfig struct {
	Interval   time.Duration
	DrainBatch int
}

type JWTConfig struct {
	SecretKey string
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"server.port":                 "PORT",
	"server.shutdown_timeout":     "SHUTDOWN_TIMEOUT",
	"server.openapi_path":         "OPENAPI_PATH",
	"ledger.platform_fee_bps":     "PLATFORM_FEE_BPS",
	"ledger.daily_cap_cents":      "DAILY_SPEND_CAP_CENTS",
	"ledger.refund_window":        "REFUND_WINDOW",
	"ledger.topup_denominations":  "TOPUP_DENOMINATIONS",
	"ledger.split_policy":         "SPLIT_POLICY",
	"tokens.secret_key":           "UNLOCK_TOKEN_SECRET",
	"tokens.ttl":                  "UNLOCK_TOKEN_TTL",
	"tokens.revocation_cache_ttl": "REVOCATION_CACHE_TTL",
	"payments.base_url":           "PAYMENTS_BASE_URL",
	"payments.api_key":            "PAYMENTS_API_KEY",
	"payments.timeout":            "PAYMENTS_TIMEOUT",
	"payments.success_url":        "PAYMENTS_SUCCESS_URL",
	"payments.cancel_url":         "PAYMENTS_CANCEL_URL",
	"payments.currency":           "PAYMENTS_CURRENCY",
	"workers.interval":            "WORKERS_INTERVAL",
	"workers.drain_batch":         "WORKERS_DRAIN_BATCH",
	"jwt.secret_key":              "JWT_SECRET_KEY",
	"database.host":               "DATABASE_HOST",
	"database.port":               "DATABASE_PORT",
	"database.user":               "DATABASE_USER",
	"database.password":           "DATABASE_PASSWORD",
	"database.name":               "DATABASE_NAME",
	"database.ssl_mode":           "DATABASE_SSL_MODE",
	"redis.host":                  "REDIS_HOST",
	"redis.port":                  "REDIS_PORT",
	"redis.password":              "REDIS_PASSWORD",
	"redis.db":                    "REDIS_DB",
}

// Init reads .env if present and binds the environment. Safe to call more than
// once.
func Init() {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}
	for key, env := range envBindings {
		viper.BindEnv(key, env)
	}
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.shutdown_timeout", 30*time.Second)
	viper.SetDefault("server.openapi_path", "./api/openapi.yaml")

	viper.SetDefault("ledger.platform_fee_bps", 1000)
	viper.SetDefault("ledger.daily_cap_cents", 1500)
	viper.SetDefault("ledger.refund_window", 10*time.Minute)
	viper.SetDefault("ledger.topup_denominations", []string{"500", "1000", "2500", "5000", "10000"})
	viper.SetDefault("ledger.split_policy", "warn")

	viper.SetDefault("tokens.ttl", 10*time.Minute)
	viper.SetDefault("tokens.revocation_cache_ttl", 24*time.Hour)

	viper.SetDefault("payments.base_url", "https://api.stripe.com")
	viper.SetDefault("payments.timeout", 10*time.Second)
	viper.SetDefault("payments.success_url", "http://localhost:8080/#/payment-success?session_id={CHECKOUT_SESSION_ID}")
	viper.SetDefault("payments.cancel_url", "http://localhost:8080/#/payment-cancel")
	viper.SetDefault("payments.currency", "usd")

	viper.SetDefault("workers.interval", time.Minute)
	viper.SetDefault("workers.drain_batch", 100)
}

// Load returns the validated configuration.
func Load() (*Config, error) {
	setDefaults()

	denominations, err := parseDenominations(viper.GetStringSlice("ledger.topup_denominations"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            viper.GetString("server.port"),
			ShutdownTimeout: viper.GetDuration("server.shutdown_timeout"),
			OpenAPIPath:     viper.GetString("server.openapi_path"),
		},
		Ledger: LedgerConfig{
			PlatformFeeBps:     viper.GetInt64("ledger.platform_fee_bps"),
			DailyCapCents:      viper.GetInt64("ledger.daily_cap_cents"),
			RefundWindow:       viper.GetDuration("ledger.refund_window"),
			TopupDenominations: denominations,
			SplitPolicy:        strings.ToLower(viper.GetString("ledger.split_policy")),
		},
		Tokens: TokenConfig{
			SecretKey:          viper.GetString("tokens.secret_key"),
			TTL:                viper.GetDuration("tokens.ttl"),
			RevocationCacheTTL: viper.GetDuration("tokens.revocation_cache_ttl"),
		},
		Payments: PaymentsConfig{
			BaseURL:    viper.GetString("payments.base_url"),
			APIKey:     viper.GetString("payments.api_key"),
			Timeout:    viper.GetDuration("payments.timeout"),
			SuccessURL: viper.GetString("payments.success_url"),
			CancelURL:  viper.GetString("payments.cancel_url"),
			Currency:   viper.GetString("payments.currency"),
		},
		Workers: WorkerConfig{
			Interval:   viper.GetDuration("workers.interval"),
			DrainBatch: viper.GetInt("workers.drain_batch"),
		},
		JWT: JWTConfig{
			SecretKey: viper.GetString("jwt.secret_key"),
		},
	}

	if cfg.Tokens.SecretKey == "" {
		cfg.Tokens.SecretKey = cfg.JWT.SecretKey
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Ledger.PlatformFeeBps < 0 || c.Ledger.PlatformFeeBps > 10000 {
		return fmt.Errorf("ledger.platform_fee_bps must be within 0..10000, got %d", c.Ledger.PlatformFeeBps)
	}
	if c.Ledger.DailyCapCents < 0 {
		return errors.New("ledger.daily_cap_cents must not be negative")
	}
	if c.Ledger.RefundWindow <= 0 {
		return errors.New("ledger.refund_window must be positive")
	}
	if c.Ledger.SplitPolicy != "warn" && c.Ledger.SplitPolicy != "reject" {
		return fmt.Errorf("ledger.split_policy must be warn or reject, got %q", c.Ledger.SplitPolicy)
	}
	if c.Tokens.SecretKey == "" {
		return errors.New("tokens.secret_key (or jwt.secret_key) is required")
	}
	if c.Tokens.TTL <= 0 {
		return errors.New("tokens.ttl must be positive")
	}
	if c.Workers.Interval <= 0 || c.Workers.DrainBatch <= 0 {
		return errors.New("workers.interval and workers.drain_batch must be positive")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("server.shutdown_timeout must be positive")
	}
	return nil
}

// parseDenominations accepts both list values and a single comma separated
// string such as "500,1000,2500".
func parseDenominations(raw []string) ([]int64, error) {
	var out []int64
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			v, err := strconv.ParseInt(part, 10, 64)
			if err != nil || v <= 0 {
				return nil, fmt.Errorf("invalid top-up denomination %q", part)
			}
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("ledger.topup_denominations must not be empty")
	}
	return out, nil
}

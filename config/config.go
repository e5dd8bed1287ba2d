package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Pool     PoolConfig     `mapstructure:"pool"`
	Masking  MaskingConfig  `mapstructure:"masking"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig selects the record store backing the journal and wallets.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // memory, postgres
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Migrate         bool          `mapstructure:"migrate"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// WebhookConfig configures inbound callback authentication and outbound
// status notifications.
type WebhookConfig struct {
	Secret        string        `mapstructure:"secret"`
	Expiry        time.Duration `mapstructure:"expiry"`
	Issuer        string        `mapstructure:"issuer"`
	NotifyTimeout time.Duration `mapstructure:"notify_timeout"`
	ResultTTL     time.Duration `mapstructure:"result_ttl"`
	RateLimit     int           `mapstructure:"rate_limit"` // requests per window per bank slug
	RateWindow    time.Duration `mapstructure:"rate_window"`
}

type LedgerConfig struct {
	Currency          string `mapstructure:"currency"`
	FeeRate           string `mapstructure:"fee_rate"`
	ProcessingFeeRate string `mapstructure:"processing_fee_rate"`
	FeeAccount        string `mapstructure:"fee_account"`
}

// Rates parses the configured fee rates. Rates must lie in [0, 1).
func (l LedgerConfig) Rates() (fee decimal.Decimal, processing decimal.Decimal, err error) {
	fee, err = parseRate("ledger.fee_rate", l.FeeRate)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	processing, err = parseRate("ledger.processing_fee_rate", l.ProcessingFeeRate)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return fee, processing, nil
}

func parseRate(key, raw string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s: %w", key, err)
	}
	if d.IsNegative() || d.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("%s must be in [0, 1), got %s", key, d.String())
	}
	return d, nil
}

// IdentifierConfig is one settlement identifier of the rotation pool.
type IdentifierConfig struct {
	Handle     string `mapstructure:"handle"`
	Issuer     string `mapstructure:"issuer"`
	DailyLimit int64  `mapstructure:"daily_limit"`
	Active     bool   `mapstructure:"active"`
}

type PoolConfig struct {
	Identifiers   []IdentifierConfig `mapstructure:"identifiers"`
	DefaultHandle string             `mapstructure:"default_handle"`
	Timezone      string             `mapstructure:"timezone"`
}

// Location resolves the pool timezone used for the daily reset boundary.
func (p PoolConfig) Location() (*time.Location, error) {
	if p.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading pool.timezone: %w", err)
	}
	return loc, nil
}

type MaskingRuleConfig struct {
	Pattern     string `mapstructure:"pattern"`
	Replacement string `mapstructure:"replacement"`
	Priority    int    `mapstructure:"priority"`
}

// MaskingConfig overrides the built-in restricted-term policy. Empty lists
// keep the defaults.
type MaskingConfig struct {
	Rules           []MaskingRuleConfig `mapstructure:"rules"`
	Labels          []string            `mapstructure:"labels"`
	PartyNames      []string            `mapstructure:"party_names"`
	ReferenceSuffix bool                `mapstructure:"reference_suffix"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: MLE_ (Merchant Ledger Engine).
// Nested keys use underscore: MLE_DATABASE_HOST, MLE_WEBHOOK_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "merchant_ledger")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrate", true)
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.expiry", "24h")
	v.SetDefault("webhook.issuer", "merchant-ledger")
	v.SetDefault("webhook.notify_timeout", "10s")
	v.SetDefault("webhook.result_ttl", "24h")
	v.SetDefault("webhook.rate_limit", 120)
	v.SetDefault("webhook.rate_window", "1m")
	v.SetDefault("ledger.currency", "INR")
	v.SetDefault("ledger.fee_rate", "0.01")
	v.SetDefault("ledger.processing_fee_rate", "0")
	v.SetDefault("ledger.fee_account", "platform:fees")
	v.SetDefault("pool.default_handle", "")
	v.SetDefault("pool.timezone", "UTC")
	v.SetDefault("masking.reference_suffix", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: MLE_DATABASE_HOST -> database.host
	v.SetEnvPrefix("MLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The file is optional; env vars can suffice.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if _, _, err := cfg.Ledger.Rates(); err != nil {
		return nil, err
	}
	if cfg.Storage.Driver != "memory" && cfg.Storage.Driver != "postgres" {
		return nil, fmt.Errorf("storage.driver must be memory or postgres, got %q", cfg.Storage.Driver)
	}

	return &cfg, nil
}

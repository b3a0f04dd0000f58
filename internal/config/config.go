// Package config defines the top-level configuration for the basket bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BASKETBOT_* environment variables.
type Config struct {
	Instruments InstrumentsConfig `toml:"instruments"`
	Engine      EngineConfig      `toml:"engine"`
	Exchange    ExchangeConfig    `toml:"exchange"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Calibrate   CalibrateConfig   `toml:"calibrate"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// InstrumentsConfig names the two basket listings and the constituent legs.
type InstrumentsConfig struct {
	BasketUS     string   `toml:"basket_us"`
	BasketEU     string   `toml:"basket_eu"`
	Constituents []string `toml:"constituents"`
}

// All returns every traded instrument, basket listings first.
func (c InstrumentsConfig) All() []string {
	out := make([]string, 0, 2+len(c.Constituents))
	out = append(out, c.BasketUS, c.BasketEU)
	return append(out, c.Constituents...)
}

// EngineConfig holds the trading constants. They are read once at startup.
type EngineConfig struct {
	ArbThreshold      float64  `toml:"arb_threshold"`
	BasketThreshold   float64  `toml:"basket_threshold"`
	MaxPosition       int64    `toml:"max_position"`
	BasketHardLimit   int64    `toml:"basket_hard_limit"`
	BasketSoftLimit   int64    `toml:"basket_soft_limit"`
	BreachPersistence duration `toml:"breach_persistence"`
	GridThreshold     float64  `toml:"grid_threshold"`
	PressureRatio     float64  `toml:"pressure_ratio"`
	TickInterval      duration `toml:"tick_interval"`
	HedgeLotCap       int64    `toml:"hedge_lot_cap"`
	BasketRatio       int64    `toml:"basket_ratio"`
	// FlattenOnStart liquidates every open position before the first tick.
	FlattenOnStart bool `toml:"flatten_on_start"`
	// OrderRateLimit caps order submissions per OrderRateWindow when Redis is
	// enabled. Zero disables the limiter.
	OrderRateLimit  int      `toml:"order_rate_limit"`
	OrderRateWindow duration `toml:"order_rate_window"`
}

// ExchangeConfig holds the execution gateway endpoints and credentials.
type ExchangeConfig struct {
	BaseURL        string   `toml:"base_url"`
	WsURL          string   `toml:"ws_url"`
	ApiKey         string   `toml:"api_key"`
	ApiSecret      string   `toml:"api_secret"`
	RequestTimeout duration `toml:"request_timeout"`
	// PaperPositions seeds positions for the in-memory exchange in paper mode.
	PaperPositions map[string]int64 `toml:"paper_positions"`
}

// PostgresConfig holds PostgreSQL connection parameters for the trade journal.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled         bool     `toml:"enabled"`
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	UseSSL          bool     `toml:"use_ssl"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	ArchiveInterval duration `toml:"archive_interval"`
	RetentionDays   int      `toml:"retention_days"`
}

// CalibrateConfig controls the historical range sampler.
type CalibrateConfig struct {
	Samples    int      `toml:"samples"`
	Interval   duration `toml:"interval"`
	LowerPct   float64  `toml:"lower_pct"`
	UpperPct   float64  `toml:"upper_pct"`
	OutputPath string   `toml:"output_path"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "50ms", "2.5s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "50ms" or "2.5s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards every route except /api/health. Empty disables auth.
	APIKey string `toml:"api_key"`
	// RateLimit is requests per minute per client IP, enforced through Redis.
	RateLimit int `toml:"rate_limit"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with the production trading constants.
func Defaults() Config {
	return Config{
		Instruments: InstrumentsConfig{
			BasketUS:     "SEMIS_ETF_US",
			BasketEU:     "SEMIS_ETF_EU",
			Constituents: []string{"NVDA", "AMD", "ASML"},
		},
		Engine: EngineConfig{
			ArbThreshold:      0.05,
			BasketThreshold:   10,
			MaxPosition:       750,
			BasketHardLimit:   300,
			BasketSoftLimit:   250,
			BreachPersistence: duration{2500 * time.Millisecond},
			GridThreshold:     0.2,
			PressureRatio:     0.8,
			TickInterval:      duration{50 * time.Millisecond},
			HedgeLotCap:       10,
			BasketRatio:       3,
			FlattenOnStart:    true,
			OrderRateWindow:   duration{time.Second},
		},
		Exchange: ExchangeConfig{
			BaseURL:        "http://localhost:7001",
			RequestTimeout: duration{2 * time.Second},
			PaperPositions: map[string]int64{},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "basketbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:        "http://localhost:9000",
			Region:          "us-east-1",
			Bucket:          "basketbot-data",
			ForcePathStyle:  true,
			ArchiveInterval: duration{24 * time.Hour},
			RetentionDays:   30,
		},
		Calibrate: CalibrateConfig{
			Samples:  100,
			Interval: duration{100 * time.Millisecond},
			LowerPct: 0.1,
			UpperPct: 0.9,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"basket_correction", "order_rejected", "engine_error"},
		},
		Mode:     "paper",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"paper":   true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, paper, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Instruments
	if c.Instruments.BasketUS == "" || c.Instruments.BasketEU == "" {
		errs = append(errs, "instruments: basket_us and basket_eu must both be set")
	}
	if c.Instruments.BasketUS == c.Instruments.BasketEU {
		errs = append(errs, "instruments: basket_us and basket_eu must differ")
	}
	if len(c.Instruments.Constituents) == 0 {
		errs = append(errs, "instruments: at least one constituent is required")
	}
	seen := map[string]bool{}
	for _, id := range c.Instruments.All() {
		if seen[id] {
			errs = append(errs, fmt.Sprintf("instruments: %q listed twice", id))
		}
		seen[id] = true
	}

	// Engine
	e := c.Engine
	if e.ArbThreshold < 0 {
		errs = append(errs, "engine: arb_threshold must be >= 0")
	}
	if e.BasketThreshold < 0 {
		errs = append(errs, "engine: basket_threshold must be >= 0")
	}
	if e.MaxPosition <= 0 {
		errs = append(errs, "engine: max_position must be > 0")
	}
	if e.BasketSoftLimit <= 0 || e.BasketHardLimit < e.BasketSoftLimit {
		errs = append(errs, "engine: require 0 < basket_soft_limit <= basket_hard_limit")
	}
	if e.BreachPersistence.Duration <= 0 {
		errs = append(errs, "engine: breach_persistence must be > 0")
	}
	if e.GridThreshold <= 0 {
		errs = append(errs, "engine: grid_threshold must be > 0")
	}
	if e.PressureRatio <= 0 || e.PressureRatio > 1 {
		errs = append(errs, "engine: pressure_ratio must be in (0, 1]")
	}
	if e.TickInterval.Duration <= 0 {
		errs = append(errs, "engine: tick_interval must be > 0")
	}
	if e.HedgeLotCap <= 0 {
		errs = append(errs, "engine: hedge_lot_cap must be > 0")
	}
	if e.BasketRatio <= 0 {
		errs = append(errs, "engine: basket_ratio must be > 0")
	}
	if e.OrderRateLimit < 0 || (e.OrderRateLimit > 0 && e.OrderRateWindow.Duration <= 0) {
		errs = append(errs, "engine: order_rate_limit must be >= 0 with a positive order_rate_window")
	}

	// Exchange
	if c.Mode == "trade" {
		if c.Exchange.BaseURL == "" {
			errs = append(errs, "exchange: base_url is required for mode trade")
		}
		if c.Exchange.ApiKey == "" || c.Exchange.ApiSecret == "" {
			errs = append(errs, "exchange: api_key and api_secret are required for mode trade")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if !c.Postgres.Enabled {
			errs = append(errs, "s3: archiving requires postgres.enabled")
		}
	}

	// Calibrate
	if c.Calibrate.Samples < 1 {
		errs = append(errs, "calibrate: samples must be >= 1")
	}
	if c.Calibrate.LowerPct < 0 || c.Calibrate.UpperPct > 1 || c.Calibrate.LowerPct > c.Calibrate.UpperPct {
		errs = append(errs, "calibrate: require 0 <= lower_pct <= upper_pct <= 1")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

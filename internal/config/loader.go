package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BASKETBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file and uses defaults.
// The returned Config has NOT been validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads BASKETBOT_* environment variables and overwrites the
// corresponding Config fields when a variable is set and non-empty.
func applyEnvOverrides(cfg *Config) {
	// ── Instruments ──
	setStr(&cfg.Instruments.BasketUS, "BASKETBOT_INSTRUMENTS_BASKET_US")
	setStr(&cfg.Instruments.BasketEU, "BASKETBOT_INSTRUMENTS_BASKET_EU")
	setStringSlice(&cfg.Instruments.Constituents, "BASKETBOT_INSTRUMENTS_CONSTITUENTS")

	// ── Engine ──
	setFloat64(&cfg.Engine.ArbThreshold, "BASKETBOT_ENGINE_ARB_THRESHOLD")
	setFloat64(&cfg.Engine.BasketThreshold, "BASKETBOT_ENGINE_BASKET_THRESHOLD")
	setInt64(&cfg.Engine.MaxPosition, "BASKETBOT_ENGINE_MAX_POSITION")
	setInt64(&cfg.Engine.BasketHardLimit, "BASKETBOT_ENGINE_BASKET_HARD_LIMIT")
	setInt64(&cfg.Engine.BasketSoftLimit, "BASKETBOT_ENGINE_BASKET_SOFT_LIMIT")
	setDuration(&cfg.Engine.BreachPersistence, "BASKETBOT_ENGINE_BREACH_PERSISTENCE")
	setFloat64(&cfg.Engine.GridThreshold, "BASKETBOT_ENGINE_GRID_THRESHOLD")
	setFloat64(&cfg.Engine.PressureRatio, "BASKETBOT_ENGINE_PRESSURE_RATIO")
	setDuration(&cfg.Engine.TickInterval, "BASKETBOT_ENGINE_TICK_INTERVAL")
	setInt64(&cfg.Engine.HedgeLotCap, "BASKETBOT_ENGINE_HEDGE_LOT_CAP")
	setBool(&cfg.Engine.FlattenOnStart, "BASKETBOT_ENGINE_FLATTEN_ON_START")
	setInt(&cfg.Engine.OrderRateLimit, "BASKETBOT_ENGINE_ORDER_RATE_LIMIT")
	setDuration(&cfg.Engine.OrderRateWindow, "BASKETBOT_ENGINE_ORDER_RATE_WINDOW")

	// ── Exchange ──
	setStr(&cfg.Exchange.BaseURL, "BASKETBOT_EXCHANGE_BASE_URL")
	setStr(&cfg.Exchange.WsURL, "BASKETBOT_EXCHANGE_WS_URL")
	setStr(&cfg.Exchange.ApiKey, "BASKETBOT_EXCHANGE_API_KEY")
	setStr(&cfg.Exchange.ApiSecret, "BASKETBOT_EXCHANGE_API_SECRET")
	setDuration(&cfg.Exchange.RequestTimeout, "BASKETBOT_EXCHANGE_REQUEST_TIMEOUT")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "BASKETBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "BASKETBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "BASKETBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "BASKETBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "BASKETBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "BASKETBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "BASKETBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "BASKETBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "BASKETBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "BASKETBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "BASKETBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "BASKETBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "BASKETBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BASKETBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BASKETBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BASKETBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BASKETBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BASKETBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "BASKETBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "BASKETBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BASKETBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "BASKETBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "BASKETBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BASKETBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BASKETBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BASKETBOT_S3_FORCE_PATH_STYLE")
	setDuration(&cfg.S3.ArchiveInterval, "BASKETBOT_S3_ARCHIVE_INTERVAL")
	setInt(&cfg.S3.RetentionDays, "BASKETBOT_S3_RETENTION_DAYS")

	// ── Calibrate ──
	setInt(&cfg.Calibrate.Samples, "BASKETBOT_CALIBRATE_SAMPLES")
	setDuration(&cfg.Calibrate.Interval, "BASKETBOT_CALIBRATE_INTERVAL")
	setStr(&cfg.Calibrate.OutputPath, "BASKETBOT_CALIBRATE_OUTPUT_PATH")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "BASKETBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BASKETBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BASKETBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "BASKETBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "BASKETBOT_SERVER_RATE_LIMIT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "BASKETBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "BASKETBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "BASKETBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BASKETBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "BASKETBOT_MODE")
	setStr(&cfg.LogLevel, "BASKETBOT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

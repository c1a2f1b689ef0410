package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads configuration in layered order: defaults, then the TOML file at
// path (if non-empty), then a .env file in the working directory (if
// present), then POLYTRADER_* environment variables. The result is validated
// before being returned.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return cfg, fmt.Errorf("config file %s: %w", path, err)
		}
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnvOverrides maps POLYTRADER_* environment variables onto cfg.
// Only scalar fields are overridable; markets are file-only.
func applyEnvOverrides(cfg *Config) {
	setStr("POLYTRADER_MODE", &cfg.Mode)
	setStr("POLYTRADER_LOG_LEVEL", &cfg.LogLevel)

	setStr("POLYTRADER_VENUE_REST_HOST", &cfg.Venue.RestHost)
	setStr("POLYTRADER_VENUE_WS_HOST", &cfg.Venue.WsHost)
	setStr("POLYTRADER_VENUE_DATA_HOST", &cfg.Venue.DataHost)
	setStr("POLYTRADER_VENUE_API_KEY", &cfg.Venue.ApiKey)
	setStr("POLYTRADER_VENUE_API_SECRET", &cfg.Venue.ApiSecret)
	setStr("POLYTRADER_VENUE_API_PASSPHRASE", &cfg.Venue.ApiPassphrase)

	setStr("POLYTRADER_REFERENCE_WS_URL", &cfg.Reference.WsURL)
	setStringSlice("POLYTRADER_REFERENCE_SOURCES", &cfg.Reference.Sources)

	setBool("POLYTRADER_POSTGRES_ENABLED", &cfg.Postgres.Enabled)
	setStr("POLYTRADER_POSTGRES_DSN", &cfg.Postgres.DSN)
	setStr("POLYTRADER_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("POLYTRADER_POSTGRES_PORT", &cfg.Postgres.Port)
	setStr("POLYTRADER_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setStr("POLYTRADER_POSTGRES_USER", &cfg.Postgres.User)
	setStr("POLYTRADER_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setStr("POLYTRADER_POSTGRES_SSL_MODE", &cfg.Postgres.SSLMode)

	setBool("POLYTRADER_REDIS_ENABLED", &cfg.Redis.Enabled)
	setStr("POLYTRADER_REDIS_ADDR", &cfg.Redis.Addr)
	setStr("POLYTRADER_REDIS_PASSWORD", &cfg.Redis.Password)
	setInt("POLYTRADER_REDIS_DB", &cfg.Redis.DB)
	setBool("POLYTRADER_REDIS_TLS_ENABLED", &cfg.Redis.TLSEnabled)

	setBool("POLYTRADER_S3_ENABLED", &cfg.S3.Enabled)
	setStr("POLYTRADER_S3_ENDPOINT", &cfg.S3.Endpoint)
	setStr("POLYTRADER_S3_REGION", &cfg.S3.Region)
	setStr("POLYTRADER_S3_BUCKET", &cfg.S3.Bucket)
	setStr("POLYTRADER_S3_ACCESS_KEY", &cfg.S3.AccessKey)
	setStr("POLYTRADER_S3_SECRET_KEY", &cfg.S3.SecretKey)

	setFloat64("POLYTRADER_LEDGER_MIN_ORDER_SIZE", &cfg.Ledger.MinOrderSize)
	setInt("POLYTRADER_LEDGER_DEGRADE_THRESHOLD", &cfg.Ledger.DegradeThreshold)
	setDuration("POLYTRADER_LEDGER_DEGRADED_CLEAR_AFTER", &cfg.Ledger.DegradedClearAfter)

	setDuration("POLYTRADER_LIFECYCLE_EXEC_TIMEOUT", &cfg.Lifecycle.ExecTimeout)
	setFloat64("POLYTRADER_LIFECYCLE_CONVERGENCE_TOLERANCE", &cfg.Lifecycle.ConvergenceTolerance)
	setDuration("POLYTRADER_LIFECYCLE_STALENESS_BOUND", &cfg.Lifecycle.StalenessBound)
	setDuration("POLYTRADER_LIFECYCLE_LAG_COOLDOWN", &cfg.Lifecycle.LagCooldown)

	setBool("POLYTRADER_ARBITRAGE_ENABLED", &cfg.Arbitrage.Enabled)
	setFloat64("POLYTRADER_ARBITRAGE_POOL_BALANCE", &cfg.Arbitrage.PoolBalance)
	setFloat64("POLYTRADER_ARBITRAGE_THRESHOLD", &cfg.Arbitrage.Threshold)
	setDuration("POLYTRADER_ARBITRAGE_TICK_INTERVAL", &cfg.Arbitrage.TickInterval)

	setBool("POLYTRADER_BREAKOUT_ENABLED", &cfg.Breakout.Enabled)
	setFloat64("POLYTRADER_BREAKOUT_POOL_BALANCE", &cfg.Breakout.PoolBalance)
	setFloat64("POLYTRADER_BREAKOUT_EDGE_THRESHOLD", &cfg.Breakout.EdgeThreshold)
	setFloat64("POLYTRADER_BREAKOUT_VOLATILITY", &cfg.Breakout.Volatility)
	setDuration("POLYTRADER_BREAKOUT_TICK_INTERVAL", &cfg.Breakout.TickInterval)

	setBool("POLYTRADER_LAG_ENABLED", &cfg.Lag.Enabled)
	setFloat64("POLYTRADER_LAG_POOL_BALANCE", &cfg.Lag.PoolBalance)
	setFloat64("POLYTRADER_LAG_MOVE_THRESHOLD", &cfg.Lag.MoveThreshold)
	setDuration("POLYTRADER_LAG_MAX_HOLD", &cfg.Lag.MaxHold)
	setDuration("POLYTRADER_LAG_TICK_INTERVAL", &cfg.Lag.TickInterval)

	setBool("POLYTRADER_COPY_ENABLED", &cfg.Copy.Enabled)
	setFloat64("POLYTRADER_COPY_TOTAL_BUDGET", &cfg.Copy.TotalBudget)
	setBool("POLYTRADER_COUNTER_ENABLED", &cfg.Counter.Enabled)
	setFloat64("POLYTRADER_COUNTER_TOTAL_BUDGET", &cfg.Counter.TotalBudget)
	setDuration("POLYTRADER_REBALANCE_INTERVAL", &cfg.Rebalance.Interval)

	setDuration("POLYTRADER_ARCHIVE_INTERVAL", &cfg.Archive.Interval)
	setStr("POLYTRADER_ARCHIVE_PREFIX", &cfg.Archive.Prefix)

	setStr("POLYTRADER_TELEGRAM_TOKEN", &cfg.Notify.TelegramToken)
	setStr("POLYTRADER_TELEGRAM_CHAT_ID", &cfg.Notify.TelegramChatID)
	setStr("POLYTRADER_DISCORD_WEBHOOK_URL", &cfg.Notify.DiscordWebhookURL)
	setStringSlice("POLYTRADER_NOTIFY_EVENTS", &cfg.Notify.Events)
}

func setStr(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(key string, dst *float64) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *duration) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(key string, dst *[]string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}

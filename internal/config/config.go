// Package config defines the top-level configuration for the trading engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by POLYTRADER_* environment
// variables.
type Config struct {
	Venue     VenueConfig     `toml:"venue"`
	Reference ReferenceConfig `toml:"reference"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Markets   []MarketConfig  `toml:"markets"`
	Ledger    LedgerConfig    `toml:"ledger"`
	Lifecycle LifecycleConfig `toml:"lifecycle"`
	Arbitrage ArbitrageConfig `toml:"arbitrage"`
	Breakout  BreakoutConfig  `toml:"breakout"`
	Lag       LagConfig       `toml:"lag"`
	Copy      MirrorConfig    `toml:"copy"`
	Counter   MirrorConfig    `toml:"counter"`
	Rebalance RebalanceConfig `toml:"rebalance"`
	Archive   ArchiveConfig   `toml:"archive"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// VenueConfig holds the prediction-market venue endpoints and credentials.
type VenueConfig struct {
	RestHost string `toml:"rest_host"`
	WsHost   string `toml:"ws_host"`
	// DataHost serves the public leaderboard and trade history used by the
	// mirror strategies.
	DataHost      string `toml:"data_host"`
	ApiKey        string `toml:"api_key"`
	ApiSecret     string `toml:"api_secret"`
	ApiPassphrase string `toml:"api_passphrase"`
}

// ReferenceConfig holds the external reference feed endpoints.
type ReferenceConfig struct {
	WsURL string `toml:"ws_url"`
	// Sources are the reference streams to subscribe, e.g.
	// "binance:BTCUSDT". Markets name these in reference_source.
	Sources []string `toml:"sources"`
}

// PostgresConfig holds PostgreSQL connection parameters for the durable
// journal and pool mirrors.
type PostgresConfig struct {
	DSN          string `toml:"dsn"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Database     string `toml:"database"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	SSLMode      string `toml:"ssl_mode"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
	// Enabled switches the durable mirror on; the in-memory journal stays
	// authoritative either way.
	Enabled bool `toml:"enabled"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Enabled    bool   `toml:"enabled"`
}

// S3Config holds S3-compatible object storage parameters for journal
// archives.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Enabled        bool   `toml:"enabled"`
}

// MarketConfig describes one watched binary market.
type MarketConfig struct {
	Name             string  `toml:"name"`
	YesInstrument    string  `toml:"yes_instrument"`
	NoInstrument     string  `toml:"no_instrument"`
	ReferenceSource  string  `toml:"reference_source"`
	VolatilitySource string  `toml:"volatility_source"`
	BandLow          float64 `toml:"band_low"`
	BandHigh         float64 `toml:"band_high"`
	ExpiresAt        string  `toml:"expires_at"` // RFC 3339
}

// Expiry parses the market's settlement instant. Zero time when unset.
func (m MarketConfig) Expiry() (time.Time, error) {
	if m.ExpiresAt == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, m.ExpiresAt)
}

// LedgerConfig bounds the capital pool ledger.
type LedgerConfig struct {
	MinOrderSize       float64  `toml:"min_order_size"`
	DegradeThreshold   int      `toml:"degrade_threshold"`
	DegradedClearAfter duration `toml:"degraded_clear_after"`
}

// LifecycleConfig tunes the position state machine.
type LifecycleConfig struct {
	ExecTimeout          duration `toml:"exec_timeout"`
	ConvergenceTolerance float64  `toml:"convergence_tolerance"`
	StalenessBound       duration `toml:"staleness_bound"`
	LagCooldown          duration `toml:"lag_cooldown"`
}

// ArbitrageConfig holds the Dutch-book sum detector parameters.
type ArbitrageConfig struct {
	Enabled             bool     `toml:"enabled"`
	PoolBalance         float64  `toml:"pool_balance"`
	MaxPositionFraction float64  `toml:"max_position_fraction"`
	TickInterval        duration `toml:"tick_interval"`
	Threshold           float64  `toml:"threshold"`
	MaxSize             float64  `toml:"max_size"`
	StalenessBound      duration `toml:"staleness_bound"`
}

// BreakoutConfig holds the lognormal band estimator parameters.
type BreakoutConfig struct {
	Enabled             bool     `toml:"enabled"`
	PoolBalance         float64  `toml:"pool_balance"`
	MaxPositionFraction float64  `toml:"max_position_fraction"`
	TickInterval        duration `toml:"tick_interval"`
	EdgeThreshold       float64  `toml:"edge_threshold"`
	FeeRate             float64  `toml:"fee_rate"`
	Volatility          float64  `toml:"volatility"`
	MaxSize             float64  `toml:"max_size"`
	StalenessBound      duration `toml:"staleness_bound"`
	TakeProfitPct       float64  `toml:"take_profit_pct"`
	StopLossPct         float64  `toml:"stop_loss_pct"`
}

// LagConfig holds the stale-quote detector parameters.
type LagConfig struct {
	Enabled             bool     `toml:"enabled"`
	PoolBalance         float64  `toml:"pool_balance"`
	MaxPositionFraction float64  `toml:"max_position_fraction"`
	TickInterval        duration `toml:"tick_interval"`
	MoveThreshold       float64  `toml:"move_threshold"`
	MaxSize             float64  `toml:"max_size"`
	MaxHold             duration `toml:"max_hold"`
	StalenessBound      duration `toml:"staleness_bound"`
}

// MirrorConfig holds one copy/counter family's parameters. Pool allocation
// for these strategies is owned by the rebalancer.
type MirrorConfig struct {
	Enabled                 bool     `toml:"enabled"`
	TickInterval            duration `toml:"tick_interval"`
	MaxTradeAge             duration `toml:"max_trade_age"`
	StalenessBound          duration `toml:"staleness_bound"`
	Confidence              float64  `toml:"confidence"`
	TotalBudget             float64  `toml:"total_budget"`
	MinPoolSize             float64  `toml:"min_pool_size"`
	MaxEntityFraction       float64  `toml:"max_entity_fraction"`
	MinTrades               int      `toml:"min_trades"`
	MinWinRate              float64  `toml:"min_win_rate"`
	MaxPositionFraction     float64  `toml:"max_position_fraction"`
	MaxCounterpartyFraction float64  `toml:"max_counterparty_fraction"`
}

// RebalanceConfig holds the slow-cadence loops.
type RebalanceConfig struct {
	Interval            duration `toml:"interval"`
	MaintenanceInterval duration `toml:"maintenance_interval"`
}

// ArchiveConfig holds the journal archiver parameters.
type ArchiveConfig struct {
	Interval duration `toml:"interval"`
	Prefix   string   `toml:"prefix"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Venue: VenueConfig{
			RestHost: "https://clob.polymarket.com",
			WsHost:   "wss://ws-subscriptions-clob.polymarket.com",
			DataHost: "https://data-api.polymarket.com",
		},
		Reference: ReferenceConfig{
			WsURL:   "wss://stream.binance.com:9443/ws",
			Sources: []string{"binance:BTCUSDT"},
		},
		Postgres: PostgresConfig{
			Host:         "localhost",
			Port:         5432,
			Database:     "polytrader",
			User:         "postgres",
			SSLMode:      "disable",
			PoolMaxConns: 10,
			PoolMinConns: 2,
			Enabled:      false,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			Enabled:    false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polytrader-archives",
			UseSSL:         false,
			ForcePathStyle: true,
			Enabled:        false,
		},
		Ledger: LedgerConfig{
			MinOrderSize:       1.0,
			DegradeThreshold:   5,
			DegradedClearAfter: duration{30 * time.Minute},
		},
		Lifecycle: LifecycleConfig{
			ExecTimeout:          duration{10 * time.Second},
			ConvergenceTolerance: 0.01,
			StalenessBound:       duration{5 * time.Second},
			LagCooldown:          duration{30 * time.Second},
		},
		Arbitrage: ArbitrageConfig{
			Enabled:             true,
			PoolBalance:         500,
			MaxPositionFraction: 0.2,
			TickInterval:        duration{time.Second},
			Threshold:           0.01,
			MaxSize:             100,
			StalenessBound:      duration{5 * time.Second},
		},
		Breakout: BreakoutConfig{
			Enabled:             false,
			PoolBalance:         500,
			MaxPositionFraction: 0.1,
			TickInterval:        duration{5 * time.Second},
			EdgeThreshold:       0.05,
			FeeRate:             0.0,
			Volatility:          0.60,
			MaxSize:             50,
			StalenessBound:      duration{10 * time.Second},
			TakeProfitPct:       0.10,
			StopLossPct:         0.05,
		},
		Lag: LagConfig{
			Enabled:             false,
			PoolBalance:         250,
			MaxPositionFraction: 0.1,
			TickInterval:        duration{500 * time.Millisecond},
			MoveThreshold:       0.001,
			MaxSize:             25,
			MaxHold:             duration{60 * time.Second},
			StalenessBound:      duration{2 * time.Second},
		},
		Copy: MirrorConfig{
			Enabled:                 false,
			TickInterval:            duration{15 * time.Second},
			MaxTradeAge:             duration{24 * time.Hour},
			StalenessBound:          duration{time.Minute},
			Confidence:              0.7,
			TotalBudget:             1000,
			MinPoolSize:             50,
			MaxEntityFraction:       0.25,
			MinTrades:               30,
			MinWinRate:              0.5,
			MaxPositionFraction:     0.1,
			MaxCounterpartyFraction: 0.001,
		},
		Counter: MirrorConfig{
			Enabled:                 false,
			TickInterval:            duration{15 * time.Second},
			MaxTradeAge:             duration{24 * time.Hour},
			StalenessBound:          duration{time.Minute},
			Confidence:              0.5,
			TotalBudget:             500,
			MinPoolSize:             50,
			MaxEntityFraction:       0.25,
			MinTrades:               30,
			MinWinRate:              0.5,
			MaxPositionFraction:     0.1,
			MaxCounterpartyFraction: 0.001,
		},
		Rebalance: RebalanceConfig{
			Interval:            duration{time.Hour},
			MaintenanceInterval: duration{time.Minute},
		},
		Archive: ArchiveConfig{
			Interval: duration{time.Hour},
			Prefix:   "journal",
		},
		Notify: NotifyConfig{
			Events: []string{"opened", "closed", "unwound", "entry_failed"},
		},
		Mode:     "dry_run",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"dry_run": true,
	"live":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: dry_run, live)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Venue credentials are only required when orders actually reach it.
	if strings.ToLower(c.Mode) == "live" {
		if c.Venue.RestHost == "" {
			errs = append(errs, "venue: rest_host must not be empty in live mode")
		}
		if c.Venue.ApiKey == "" || c.Venue.ApiSecret == "" {
			errs = append(errs, "venue: api_key and api_secret are required in live mode")
		}
	}

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

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	if c.Ledger.MinOrderSize <= 0 {
		errs = append(errs, "ledger: min_order_size must be > 0")
	}
	if c.Ledger.DegradeThreshold < 1 {
		errs = append(errs, "ledger: degrade_threshold must be >= 1")
	}

	seen := make(map[string]bool, len(c.Markets))
	for i, m := range c.Markets {
		where := fmt.Sprintf("markets[%d]", i)
		if m.Name == "" {
			errs = append(errs, where+": name must not be empty")
		} else if seen[m.Name] {
			errs = append(errs, fmt.Sprintf("%s: duplicate market name %q", where, m.Name))
		}
		seen[m.Name] = true
		if m.YesInstrument == "" || m.NoInstrument == "" {
			errs = append(errs, where+": yes_instrument and no_instrument must both be set")
		}
		if _, err := m.Expiry(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: expires_at: %v", where, err))
		}
		if m.BandHigh != 0 && m.BandHigh <= m.BandLow {
			errs = append(errs, where+": band_high must exceed band_low")
		}
	}

	for _, s := range []struct {
		name     string
		enabled  bool
		balance  float64
		fraction float64
		interval time.Duration
	}{
		{"arbitrage", c.Arbitrage.Enabled, c.Arbitrage.PoolBalance, c.Arbitrage.MaxPositionFraction, c.Arbitrage.TickInterval.Duration},
		{"breakout", c.Breakout.Enabled, c.Breakout.PoolBalance, c.Breakout.MaxPositionFraction, c.Breakout.TickInterval.Duration},
		{"lag", c.Lag.Enabled, c.Lag.PoolBalance, c.Lag.MaxPositionFraction, c.Lag.TickInterval.Duration},
	} {
		if !s.enabled {
			continue
		}
		if s.balance <= 0 {
			errs = append(errs, s.name+": pool_balance must be > 0 when enabled")
		}
		if s.fraction <= 0 || s.fraction > 1 {
			errs = append(errs, s.name+": max_position_fraction must be in (0, 1]")
		}
		if s.interval <= 0 {
			errs = append(errs, s.name+": tick_interval must be > 0")
		}
	}

	if c.Breakout.Enabled && c.Breakout.Volatility <= 0 {
		errs = append(errs, "breakout: volatility must be > 0 when enabled")
	}
	if c.Lag.Enabled && c.Lag.MoveThreshold <= 0 {
		errs = append(errs, "lag: move_threshold must be > 0 when enabled")
	}

	for _, mc := range []struct {
		name string
		cfg  MirrorConfig
	}{{"copy", c.Copy}, {"counter", c.Counter}} {
		if !mc.cfg.Enabled {
			continue
		}
		if mc.cfg.TotalBudget <= 0 {
			errs = append(errs, mc.name+": total_budget must be > 0 when enabled")
		}
		if mc.cfg.MinPoolSize <= 0 {
			errs = append(errs, mc.name+": min_pool_size must be > 0 when enabled")
		}
		if mc.cfg.MaxEntityFraction <= 0 || mc.cfg.MaxEntityFraction > 1 {
			errs = append(errs, mc.name+": max_entity_fraction must be in (0, 1]")
		}
		if mc.cfg.Confidence <= 0 || mc.cfg.Confidence > 1 {
			errs = append(errs, mc.name+": confidence must be in (0, 1]")
		}
		if mc.cfg.TickInterval.Duration <= 0 {
			errs = append(errs, mc.name+": tick_interval must be > 0")
		}
	}

	if c.Copy.Enabled || c.Counter.Enabled {
		if c.Rebalance.Interval.Duration <= 0 {
			errs = append(errs, "rebalance: interval must be > 0 when a mirror strategy is enabled")
		}
		if strings.TrimSpace(c.Venue.DataHost) == "" {
			errs = append(errs, "venue: data_host is required when a mirror strategy is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

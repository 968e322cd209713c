// Package config defines the top-level configuration for snipebot and
// provides validation, loading, and hot-reload helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SNIPE_* environment variables.
// A Config value is immutable once published through a Store; updates swap
// the whole snapshot atomically.
type Config struct {
	Storage   StorageConfig   `toml:"storage"`
	Redis     RedisConfig     `toml:"redis"`
	Wallet    WalletConfig    `toml:"wallet"`
	Venue     VenueConfig     `toml:"venue"`
	PriceFeed PriceFeedConfig `toml:"pricefeed"`
	Discovery DiscoveryConfig `toml:"discovery"`
	Trade     TradeConfig     `toml:"trade"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Ladder    LadderConfig    `toml:"ladder"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// StorageConfig selects and parameterizes the position store backend.
type StorageConfig struct {
	// Backend is "file" (single JSON document) or "postgres".
	Backend string `toml:"backend"`
	// Path is the JSON document location for the file backend.
	Path string `toml:"path"`

	DSN      string `toml:"dsn"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Database string `toml:"database"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	SSLMode  string `toml:"ssl_mode"`
	MaxConns int    `toml:"pool_max_conns"`
	MinConns int    `toml:"pool_min_conns"`
}

// RedisConfig holds parameters for the optional price cache and event mirror.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
}

// WalletConfig holds the chain accessor parameters.
type WalletConfig struct {
	RPCURL string `toml:"rpc_url"`
	Owner  string `toml:"owner"`
}

// VenueConfig holds the swap execution venue parameters.
type VenueConfig struct {
	BaseURL     string `toml:"base_url"`
	QuoteMint   string `toml:"quote_mint"`
	SlippageBps int    `toml:"slippage_bps"`
}

// PriceFeedConfig holds the price source parameters.
type PriceFeedConfig struct {
	BaseURL string `toml:"base_url"`
}

// DiscoveryConfig holds the candidate feed parameters.
type DiscoveryConfig struct {
	Enabled  bool     `toml:"enabled"`
	URL      string   `toml:"url"`
	Interval duration `toml:"interval"`
	MinScore float64  `toml:"min_score"`
}

// TradeConfig holds position sizing and entry/reactivation cadence.
type TradeConfig struct {
	// QuoteAmount is the fixed quote-currency amount committed per buy.
	QuoteAmount        float64  `toml:"quote_amount"`
	EntryRetryAttempts int      `toml:"entry_retry_attempts"`
	EntryRetryDelay    duration `toml:"entry_retry_delay"`
	ReactivateInterval duration `toml:"reactivate_interval"`
}

// SchedulerConfig holds the polling cadence and batch shape.
type SchedulerConfig struct {
	Interval   duration `toml:"interval"`
	BatchSize  int      `toml:"batch_size"`
	BatchPause duration `toml:"batch_pause"`
}

// LadderConfig carries the user-configured take-profit and stop-loss rungs in
// ladder order.
type LadderConfig struct {
	TakeProfit []domain.Stage `toml:"take_profit"`
	StopLoss   []domain.Stage `toml:"stop_loss"`
}

// TakeProfitLadder returns the take-profit rungs as a typed ladder.
func (l LadderConfig) TakeProfitLadder() domain.Ladder {
	return ladder(domain.StageTakeProfit, l.TakeProfit)
}

// StopLossLadder returns the stop-loss rungs as a typed ladder.
func (l LadderConfig) StopLossLadder() domain.Ladder {
	return ladder(domain.StageStopLoss, l.StopLoss)
}

func ladder(kind domain.StageKind, stages []domain.Stage) domain.Ladder {
	out := make([]domain.Stage, len(stages))
	copy(out, stages)
	for i := range out {
		out[i].Kind = kind
	}
	return domain.Ladder{Kind: kind, Stages: out}
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5s", "2m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values. These
// match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Storage: StorageConfig{
			Backend:  "file",
			Path:     "snipebot.json",
			Host:     "localhost",
			Port:     5432,
			Database: "snipebot",
			User:     "postgres",
			SSLMode:  "disable",
			MaxConns: 10,
			MinConns: 2,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		Wallet: WalletConfig{
			RPCURL: "https://api.mainnet-beta.solana.com",
		},
		Venue: VenueConfig{
			BaseURL:     "https://quote-api.jup.ag/v6",
			QuoteMint:   "So11111111111111111111111111111111111111112",
			SlippageBps: 250,
		},
		PriceFeed: PriceFeedConfig{
			BaseURL: "https://api.dexscreener.com/latest/dex",
		},
		Discovery: DiscoveryConfig{
			Enabled:  true,
			Interval: duration{60 * time.Second},
			MinScore: 70,
		},
		Trade: TradeConfig{
			QuoteAmount:        0.1,
			EntryRetryAttempts: 20,
			EntryRetryDelay:    duration{3 * time.Second},
			ReactivateInterval: duration{30 * time.Second},
		},
		Scheduler: SchedulerConfig{
			Interval:   duration{10 * time.Second},
			BatchSize:  5,
			BatchPause: duration{200 * time.Millisecond},
		},
		Ladder: LadderConfig{
			TakeProfit: []domain.Stage{
				{Name: "tp1", Multiple: 2, SellPercent: 50, Enabled: true},
				{Name: "tp2", Multiple: 5, SellPercent: 50, Enabled: true},
				{Name: "tp3", Multiple: 10, SellPercent: 100, Enabled: true},
			},
			StopLoss: []domain.Stage{
				{Name: "sl1", Multiple: 0.8, SellPercent: 100, Enabled: true},
			},
		},
		Notify: NotifyConfig{
			Events: []string{"position:created", "takeprofit:triggered", "position:paused", "position:closed"},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for invalid or missing values and returns a combined
// error describing every problem found. A config that fails validation is
// never applied, not even partially.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	switch c.Storage.Backend {
	case "file":
		if c.Storage.Path == "" {
			errs = append(errs, "storage: path must not be empty for the file backend")
		}
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			if c.Storage.Host == "" {
				errs = append(errs, "storage: host must not be empty (or set storage.dsn)")
			}
			if c.Storage.Database == "" {
				errs = append(errs, "storage: database must not be empty")
			}
		}
		if c.Storage.MaxConns < 1 {
			errs = append(errs, "storage: pool_max_conns must be >= 1")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage: unknown backend %q (valid: file, postgres)", c.Storage.Backend))
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.Wallet.RPCURL == "" {
		errs = append(errs, "wallet: rpc_url must not be empty")
	}
	if c.Mode == "trade" && c.Wallet.Owner == "" {
		errs = append(errs, "wallet: owner must be set for trade mode")
	}

	if c.Venue.BaseURL == "" {
		errs = append(errs, "venue: base_url must not be empty")
	}
	if c.Venue.QuoteMint == "" {
		errs = append(errs, "venue: quote_mint must not be empty")
	}
	if c.Venue.SlippageBps < 0 || c.Venue.SlippageBps > 10_000 {
		errs = append(errs, fmt.Sprintf("venue: slippage_bps must be 0-10000, got %d", c.Venue.SlippageBps))
	}

	if c.PriceFeed.BaseURL == "" {
		errs = append(errs, "pricefeed: base_url must not be empty")
	}

	if c.Discovery.Enabled {
		if c.Discovery.URL == "" {
			errs = append(errs, "discovery: url must not be empty when enabled")
		}
		if c.Discovery.Interval.Duration <= 0 {
			errs = append(errs, "discovery: interval must be positive")
		}
	}

	if c.Trade.QuoteAmount <= 0 {
		errs = append(errs, "trade: quote_amount must be > 0")
	}
	if c.Trade.EntryRetryAttempts < 1 {
		errs = append(errs, "trade: entry_retry_attempts must be >= 1")
	}
	if c.Trade.EntryRetryDelay.Duration <= 0 {
		errs = append(errs, "trade: entry_retry_delay must be positive")
	}
	if c.Trade.ReactivateInterval.Duration <= 0 {
		errs = append(errs, "trade: reactivate_interval must be positive")
	}

	if c.Scheduler.Interval.Duration <= 0 {
		errs = append(errs, "scheduler: interval must be positive")
	}
	if c.Scheduler.BatchSize < 1 {
		errs = append(errs, "scheduler: batch_size must be >= 1")
	}
	if c.Scheduler.BatchPause.Duration < 0 {
		errs = append(errs, "scheduler: batch_pause must not be negative")
	}

	if err := c.Ladder.TakeProfitLadder().Validate(); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.Ladder.StopLossLadder().Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

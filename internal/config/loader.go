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
// built-in defaults, applies SNIPE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SNIPE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Storage ──
	setStr(&cfg.Storage.Backend, "SNIPE_STORAGE_BACKEND")
	setStr(&cfg.Storage.Path, "SNIPE_STORAGE_PATH")
	setStr(&cfg.Storage.DSN, "SNIPE_STORAGE_DSN")
	setStr(&cfg.Storage.Host, "SNIPE_STORAGE_HOST")
	setInt(&cfg.Storage.Port, "SNIPE_STORAGE_PORT")
	setStr(&cfg.Storage.Database, "SNIPE_STORAGE_DATABASE")
	setStr(&cfg.Storage.User, "SNIPE_STORAGE_USER")
	setStr(&cfg.Storage.Password, "SNIPE_STORAGE_PASSWORD")
	setStr(&cfg.Storage.SSLMode, "SNIPE_STORAGE_SSLMODE")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SNIPE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SNIPE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SNIPE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SNIPE_REDIS_DB")

	// ── Wallet ──
	setStr(&cfg.Wallet.RPCURL, "SNIPE_WALLET_RPC_URL")
	setStr(&cfg.Wallet.Owner, "SNIPE_WALLET_OWNER")

	// ── Venue ──
	setStr(&cfg.Venue.BaseURL, "SNIPE_VENUE_BASE_URL")
	setStr(&cfg.Venue.QuoteMint, "SNIPE_VENUE_QUOTE_MINT")
	setInt(&cfg.Venue.SlippageBps, "SNIPE_VENUE_SLIPPAGE_BPS")

	// ── Price feed ──
	setStr(&cfg.PriceFeed.BaseURL, "SNIPE_PRICEFEED_BASE_URL")

	// ── Discovery ──
	setBool(&cfg.Discovery.Enabled, "SNIPE_DISCOVERY_ENABLED")
	setStr(&cfg.Discovery.URL, "SNIPE_DISCOVERY_URL")
	setDuration(&cfg.Discovery.Interval, "SNIPE_DISCOVERY_INTERVAL")
	setFloat64(&cfg.Discovery.MinScore, "SNIPE_DISCOVERY_MIN_SCORE")

	// ── Trade ──
	setFloat64(&cfg.Trade.QuoteAmount, "SNIPE_TRADE_QUOTE_AMOUNT")
	setInt(&cfg.Trade.EntryRetryAttempts, "SNIPE_TRADE_ENTRY_RETRY_ATTEMPTS")
	setDuration(&cfg.Trade.EntryRetryDelay, "SNIPE_TRADE_ENTRY_RETRY_DELAY")
	setDuration(&cfg.Trade.ReactivateInterval, "SNIPE_TRADE_REACTIVATE_INTERVAL")

	// ── Scheduler ──
	setDuration(&cfg.Scheduler.Interval, "SNIPE_SCHEDULER_INTERVAL")
	setInt(&cfg.Scheduler.BatchSize, "SNIPE_SCHEDULER_BATCH_SIZE")
	setDuration(&cfg.Scheduler.BatchPause, "SNIPE_SCHEDULER_BATCH_PAUSE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SNIPE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SNIPE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SNIPE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SNIPE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SNIPE_MODE")
	setStr(&cfg.LogLevel, "SNIPE_LOG_LEVEL")
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

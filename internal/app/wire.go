package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/snipebot/internal/bus"
	"github.com/alanyoungcy/snipebot/internal/cache/redis"
	"github.com/alanyoungcy/snipebot/internal/config"
	"github.com/alanyoungcy/snipebot/internal/discovery"
	"github.com/alanyoungcy/snipebot/internal/domain"
	"github.com/alanyoungcy/snipebot/internal/engine"
	"github.com/alanyoungcy/snipebot/internal/notify"
	"github.com/alanyoungcy/snipebot/internal/pricefeed"
	"github.com/alanyoungcy/snipebot/internal/scheduler"
	"github.com/alanyoungcy/snipebot/internal/store/file"
	"github.com/alanyoungcy/snipebot/internal/store/postgres"
	"github.com/alanyoungcy/snipebot/internal/venue"
	"github.com/alanyoungcy/snipebot/internal/wallet"
)

// Dependencies bundles everything the operating modes run. Constructed by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Bus       *bus.Bus
	Store     domain.PositionStore
	Scheduler *scheduler.Scheduler
	Engine    *engine.Engine
	Discovery *discovery.Feed
	Notifier  *notify.Notifier
	Watcher   *config.Watcher
}

// Wire constructs every concrete dependency from the current configuration
// snapshot and returns them with a cleanup function for shutdown.
func Wire(ctx context.Context, cfg *config.Store, configPath string, logger *slog.Logger) (*Dependencies, func(), error) {
	snapshot := cfg.Current()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	b := bus.New(logger)
	deps := &Dependencies{Bus: b}

	// Position store: file backend by default, postgres when configured.
	switch snapshot.Storage.Backend {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      snapshot.Storage.DSN,
			Host:     snapshot.Storage.Host,
			Port:     snapshot.Storage.Port,
			Database: snapshot.Storage.Database,
			User:     snapshot.Storage.User,
			Password: snapshot.Storage.Password,
			SSLMode:  snapshot.Storage.SSLMode,
			MaxConns: snapshot.Storage.MaxConns,
			MinConns: snapshot.Storage.MinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
		deps.Store = postgres.NewStore(pgClient.Pool(), logger)
	default:
		fileStore, err := file.Open(snapshot.Storage.Path, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: open position store: %w", err)
		}
		deps.Store = fileStore
	}

	// Redis: optional price cache plus an event mirror for external consumers.
	var priceCache pricefeed.Cache
	if snapshot.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       snapshot.Redis.Addr,
			Password:   snapshot.Redis.Password,
			DB:         snapshot.Redis.DB,
			PoolSize:   snapshot.Redis.PoolSize,
			MaxRetries: snapshot.Redis.MaxRetries,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		priceCache = redis.NewPriceCache(redisClient, 0)
		detach := redis.NewMirror(redisClient, logger).Attach(b)
		closers = append(closers, detach)
	}

	prices := pricefeed.New(snapshot.PriceFeed.BaseURL, priceCache, logger)
	swaps := venue.New(snapshot.Venue.BaseURL, snapshot.Venue.QuoteMint, snapshot.Venue.SlippageBps)
	balances := wallet.New(snapshot.Wallet.RPCURL, snapshot.Wallet.Owner)

	deps.Scheduler = scheduler.New(cfg, prices, b, logger)

	dryRun := strings.EqualFold(snapshot.Mode, "monitor")
	deps.Engine = engine.New(cfg, deps.Store, swaps, balances, prices, deps.Scheduler, b, logger, dryRun)

	if snapshot.Discovery.Enabled && !dryRun {
		deps.Discovery = discovery.New(cfg, deps.Store, deps.Engine, logger)
	}

	var senders []notify.Sender
	if snapshot.Notify.TelegramToken != "" && snapshot.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(snapshot.Notify.TelegramToken, snapshot.Notify.TelegramChatID))
	}
	if snapshot.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(snapshot.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.New(senders, snapshot.Notify.Events, logger)
	deps.Notifier.Attach(b)

	deps.Watcher = config.NewWatcher(configPath, cfg, logger)

	return deps, cleanup, nil
}

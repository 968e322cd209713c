package redis

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/snipebot/internal/bus"
	"github.com/alanyoungcy/snipebot/internal/domain"
)

// eventChannelPrefix namespaces mirrored events on Redis Pub/Sub.
const eventChannelPrefix = "snipebot:events:"

// Mirror republishes every in-process bus event to a Redis Pub/Sub channel so
// dashboards and other external consumers can observe the engine without
// being in-process. Mirroring is best-effort and carries no control-flow
// weight; publish failures are logged and dropped.
type Mirror struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewMirror creates a Mirror backed by the given Client.
func NewMirror(c *Client, logger *slog.Logger) *Mirror {
	return &Mirror{
		rdb:    c.Underlying(),
		logger: logger.With(slog.String("component", "event_mirror")),
	}
}

// Attach subscribes the mirror to all bus events and returns the unsubscribe
// function.
func (m *Mirror) Attach(b *bus.Bus) (detach func()) {
	return b.SubscribeAll(func(ctx context.Context, ev domain.Event) {
		payload, err := json.Marshal(ev)
		if err != nil {
			m.logger.ErrorContext(ctx, "event marshal failed",
				slog.String("event_type", string(ev.Type)),
				slog.String("error", err.Error()),
			)
			return
		}
		channel := eventChannelPrefix + string(ev.Type)
		if err := m.rdb.Publish(ctx, channel, payload).Err(); err != nil {
			m.logger.WarnContext(ctx, "event mirror publish failed",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
		}
	})
}

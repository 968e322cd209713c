package bus

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

func newTestBus() *Bus {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublishDeliversInSubscriptionOrder(t *testing.T) {
	b := newTestBus()
	ctx := context.Background()

	var order []int
	b.Subscribe(domain.EventPriceUpdated, func(ctx context.Context, ev domain.Event) {
		order = append(order, 1)
	})
	b.Subscribe(domain.EventPriceUpdated, func(ctx context.Context, ev domain.Event) {
		order = append(order, 2)
	})
	b.Subscribe(domain.EventPriceUpdated, func(ctx context.Context, ev domain.Event) {
		order = append(order, 3)
	})

	b.Publish(ctx, domain.EventPriceUpdated, domain.PriceUpdated{Mint: "abc", Price: 1.5})

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestPanickingHandlerDoesNotBlockDelivery(t *testing.T) {
	b := newTestBus()
	ctx := context.Background()

	var delivered bool
	b.Subscribe(domain.EventPriceStale, func(ctx context.Context, ev domain.Event) {
		panic("boom")
	})
	b.Subscribe(domain.EventPriceStale, func(ctx context.Context, ev domain.Event) {
		delivered = true
	})

	b.Publish(ctx, domain.EventPriceStale, domain.PriceStale{Mint: "abc", Attempts: 1})

	assert.True(t, delivered)
}

func TestUnsubscribeRemovesExactlyThatHandler(t *testing.T) {
	b := newTestBus()
	ctx := context.Background()

	var first, second int
	unsub := b.Subscribe(domain.EventPositionCreated, func(ctx context.Context, ev domain.Event) {
		first++
	})
	b.Subscribe(domain.EventPositionCreated, func(ctx context.Context, ev domain.Event) {
		second++
	})

	b.Publish(ctx, domain.EventPositionCreated, domain.PositionCreated{Mint: "abc"})
	unsub()
	b.Publish(ctx, domain.EventPositionCreated, domain.PositionCreated{Mint: "abc"})

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestNoDeliveryAcrossTypes(t *testing.T) {
	b := newTestBus()
	ctx := context.Background()

	var got int
	b.Subscribe(domain.EventPriceUpdated, func(ctx context.Context, ev domain.Event) {
		got++
	})

	b.Publish(ctx, domain.EventPriceStale, domain.PriceStale{Mint: "abc"})

	assert.Zero(t, got)
}

func TestSubscribeAllSeesEveryType(t *testing.T) {
	b := newTestBus()
	ctx := context.Background()

	var types []domain.EventType
	b.SubscribeAll(func(ctx context.Context, ev domain.Event) {
		types = append(types, ev.Type)
	})

	b.Publish(ctx, domain.EventPriceUpdated, domain.PriceUpdated{Mint: "abc"})
	b.Publish(ctx, domain.EventPositionPaused, domain.PositionPaused{Mint: "abc"})

	require.Len(t, types, 2)
	assert.Equal(t, domain.EventPriceUpdated, types[0])
	assert.Equal(t, domain.EventPositionPaused, types[1])
}

package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/snipebot/internal/bus"
	"github.com/alanyoungcy/snipebot/internal/domain"
)

type fakeSender struct {
	name   string
	titles []string
	err    error
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.titles = append(f.titles, title)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierForwardsAllowedEvents(t *testing.T) {
	ctx := context.Background()
	b := bus.New(testLogger())
	sender := &fakeSender{name: "fake"}

	n := New([]Sender{sender}, []string{"takeprofit:triggered"}, testLogger())
	n.Attach(b)

	b.Publish(ctx, domain.EventStageTriggered, domain.StageTriggered{
		Mint: "mintA", Stage: "tp1", Multiple: 2, Percentage: 50,
	})
	b.Publish(ctx, domain.EventPositionPaused, domain.PositionPaused{
		Mint: "mintA", Reason: "drained",
	})

	require.Len(t, sender.titles, 1, "only the allowed event type is forwarded")
	assert.Equal(t, "Stage sold", sender.titles[0])
}

func TestNotifierEmptyFilterAllowsEverything(t *testing.T) {
	ctx := context.Background()
	b := bus.New(testLogger())
	sender := &fakeSender{name: "fake"}

	New([]Sender{sender}, nil, testLogger()).Attach(b)

	b.Publish(ctx, domain.EventPositionClosed, domain.PositionClosed{Mint: "mintA", Reason: "done"})
	b.Publish(ctx, domain.EventPositionResumed, domain.PositionResumed{Mint: "mintA"})

	assert.Len(t, sender.titles, 2)
}

func TestNotifierSkipsUnrenderedEvents(t *testing.T) {
	ctx := context.Background()
	b := bus.New(testLogger())
	sender := &fakeSender{name: "fake"}

	New([]Sender{sender}, nil, testLogger()).Attach(b)

	b.Publish(ctx, domain.EventMonitorSummary, domain.MonitorSummary{Registered: 3})
	b.Publish(ctx, domain.EventPriceUpdated, domain.PriceUpdated{Mint: "mintA", Price: 1})

	assert.Empty(t, sender.titles, "internal events produce no alerts")
}

func TestNotifierFailingSenderDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	b := bus.New(testLogger())
	broken := &fakeSender{name: "broken", err: errors.New("down")}
	healthy := &fakeSender{name: "healthy"}

	New([]Sender{broken, healthy}, nil, testLogger()).Attach(b)

	b.Publish(ctx, domain.EventPositionClosed, domain.PositionClosed{Mint: "mintA"})

	assert.Len(t, healthy.titles, 1)
}

func TestShortMint(t *testing.T) {
	assert.Equal(t, "short", shortMint("short"))
	assert.Equal(t, "So1111..1112", shortMint("So11111111111111111111111111111111111111112"))
}

package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/snipebot/internal/bus"
	"github.com/alanyoungcy/snipebot/internal/config"
	"github.com/alanyoungcy/snipebot/internal/domain"
)

type fakeSource struct {
	prices map[string]float64
	errs   map[string]error
	onCall func(mint string)
}

func (f *fakeSource) Price(_ context.Context, mint string) (float64, error) {
	if f.onCall != nil {
		f.onCall(mint)
	}
	if err, ok := f.errs[mint]; ok {
		return 0, err
	}
	return f.prices[mint], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(t *testing.T, src *fakeSource) (*Scheduler, *bus.Bus) {
	t.Helper()
	cfg := config.Defaults()
	cfg.Wallet.Owner = "ownerPubkey"
	cfg.Discovery.URL = "http://localhost:9999/candidates"
	require.NoError(t, cfg.Validate())
	b := bus.New(testLogger())
	return New(config.NewStore(&cfg), src, b, testLogger()), b
}

func TestTickPublishesPriceUpdated(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{prices: map[string]float64{"mintA": 1.5}}
	s, b := newTestScheduler(t, src)

	var got []domain.PriceUpdated
	b.Subscribe(domain.EventPriceUpdated, func(_ context.Context, ev domain.Event) {
		got = append(got, ev.Payload.(domain.PriceUpdated))
	})

	s.Register(ctx, "mintA", "AAA", PriorityHigh)
	s.Tick(ctx)

	require.Len(t, got, 1)
	assert.Equal(t, "mintA", got[0].Mint)
	assert.Equal(t, 1.5, got[0].Price)
	assert.Nil(t, got[0].PreviousPrice, "first observation has no previous price")

	src.prices["mintA"] = 2.0
	s.Tick(ctx)

	require.Len(t, got, 2)
	require.NotNil(t, got[1].PreviousPrice)
	assert.Equal(t, 1.5, *got[1].PreviousPrice)
	assert.Equal(t, 2.0, got[1].Price)
}

func TestTickPublishesPriceStaleWithAttemptCount(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{errs: map[string]error{"mintA": errors.New("boom")}}
	s, b := newTestScheduler(t, src)

	var stale []domain.PriceStale
	b.Subscribe(domain.EventPriceStale, func(_ context.Context, ev domain.Event) {
		stale = append(stale, ev.Payload.(domain.PriceStale))
	})

	s.Register(ctx, "mintA", "AAA", PriorityMedium)
	s.Tick(ctx)
	s.Tick(ctx)
	s.Tick(ctx)

	require.Len(t, stale, 3)
	assert.Equal(t, 1, stale[0].Attempts)
	assert.Equal(t, 2, stale[1].Attempts)
	assert.Equal(t, 3, stale[2].Attempts)
}

func TestSuccessResetsFailureCounter(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{errs: map[string]error{"mintA": errors.New("boom")}}
	s, b := newTestScheduler(t, src)

	var stale []domain.PriceStale
	b.Subscribe(domain.EventPriceStale, func(_ context.Context, ev domain.Event) {
		stale = append(stale, ev.Payload.(domain.PriceStale))
	})

	s.Register(ctx, "mintA", "AAA", PriorityHigh)
	s.Tick(ctx)
	s.Tick(ctx)

	delete(src.errs, "mintA")
	src.prices = map[string]float64{"mintA": 1.0}
	s.Tick(ctx)

	src.errs = map[string]error{"mintA": errors.New("boom")}
	s.Tick(ctx)

	require.Len(t, stale, 3)
	assert.Equal(t, 1, stale[2].Attempts, "successful lookup resets the counter")
}

func TestDemotionHappensOnceAtThreshold(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{errs: map[string]error{"mintA": errors.New("boom")}}
	s, _ := newTestScheduler(t, src)

	s.Register(ctx, "mintA", "AAA", PriorityHigh)

	for i := 0; i < 4; i++ {
		s.Tick(ctx)
	}
	s.mu.Lock()
	assert.Equal(t, PriorityHigh, s.tokens["mintA"].priority, "below threshold stays high")
	s.mu.Unlock()

	s.Tick(ctx)
	s.mu.Lock()
	assert.Equal(t, PriorityMedium, s.tokens["mintA"].priority, "fifth consecutive failure demotes")
	s.mu.Unlock()

	s.Tick(ctx)
	s.Tick(ctx)
	s.mu.Lock()
	assert.Equal(t, PriorityMedium, s.tokens["mintA"].priority, "demotion never goes past medium")
	s.mu.Unlock()
}

func TestSnapshotOrdersByPriorityTier(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{prices: map[string]float64{}}
	s, _ := newTestScheduler(t, src)

	s.Register(ctx, "low1", "L1", PriorityLow)
	s.Register(ctx, "high1", "H1", PriorityHigh)
	s.Register(ctx, "med1", "M1", PriorityMedium)
	s.Register(ctx, "high2", "H2", PriorityHigh)

	mints := s.snapshot()
	require.Len(t, mints, 4)
	assert.ElementsMatch(t, []string{"high1", "high2"}, mints[:2])
	assert.Equal(t, "med1", mints[2])
	assert.Equal(t, "low1", mints[3])
}

func TestUnregisterMidFlightDiscardsResult(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{prices: map[string]float64{"mintA": 3.0}}
	s, b := newTestScheduler(t, src)

	var updated int
	b.Subscribe(domain.EventPriceUpdated, func(_ context.Context, _ domain.Event) {
		updated++
	})

	s.Register(ctx, "mintA", "AAA", PriorityHigh)
	src.onCall = func(mint string) {
		s.Unregister(ctx, mint, "closed during lookup")
	}
	s.Tick(ctx)

	assert.Zero(t, updated, "result for an unregistered token must be discarded")
	assert.False(t, s.Registered("mintA"))
}

func TestRegisterIsIdempotent(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{errs: map[string]error{"mintA": errors.New("boom")}}
	s, b := newTestScheduler(t, src)

	var started int
	b.Subscribe(domain.EventMonitorStarted, func(_ context.Context, _ domain.Event) {
		started++
	})

	s.Register(ctx, "mintA", "AAA", PriorityHigh)
	s.Tick(ctx)
	s.Tick(ctx)

	s.Register(ctx, "mintA", "AAA", PriorityHigh)
	assert.Equal(t, 1, started, "re-registration publishes no second monitor:started")

	s.mu.Lock()
	assert.Equal(t, 2, s.tokens["mintA"].failures, "re-registration preserves the failure counter")
	s.mu.Unlock()
	assert.Equal(t, 1, s.Count())
}

func TestTickPublishesSummary(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{
		prices: map[string]float64{"good": 1.0},
		errs:   map[string]error{"bad": errors.New("boom")},
	}
	s, b := newTestScheduler(t, src)

	var summaries []domain.MonitorSummary
	b.Subscribe(domain.EventMonitorSummary, func(_ context.Context, ev domain.Event) {
		summaries = append(summaries, ev.Payload.(domain.MonitorSummary))
	})

	s.Register(ctx, "good", "GG", PriorityHigh)
	s.Register(ctx, "bad", "BB", PriorityLow)
	s.Tick(ctx)

	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].Registered)
	assert.Equal(t, 1, summaries[0].Succeeded)
	assert.Equal(t, 1, summaries[0].Failed)
}

func TestEmptyTickPublishesNothing(t *testing.T) {
	ctx := context.Background()
	s, b := newTestScheduler(t, &fakeSource{})

	var events int
	b.SubscribeAll(func(_ context.Context, _ domain.Event) { events++ })

	s.Tick(ctx)
	assert.Zero(t, events)
}

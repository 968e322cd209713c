package file

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "positions.json")
	s, err := Open(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func createWithEntry(t *testing.T, s *Store, mint string, entry float64) {
	t.Helper()
	_, err := s.Create(context.Background(), mint, "TEST", &entry, 0.1)
	require.NoError(t, err)
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := 1.25
	created, err := s.Create(ctx, "mintA", "AAA", &entry, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 1.25, *created.EntryPrice)
	assert.Equal(t, 1.25, created.HighestPrice)

	got, err := s.Get(ctx, "mintA")
	require.NoError(t, err)
	assert.Equal(t, created.Mint, got.Mint)
	assert.Equal(t, 0.5, got.EntrySize)
}

func TestCreateRejectsDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createWithEntry(t, s, "mintA", 1)
	_, err := s.Create(ctx, "mintA", "AAA", nil, 0.1)
	require.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestSetEntryPriceOnlyOncePerActivation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "mintA", "AAA", nil, 0.1)
	require.NoError(t, err)

	pos, err := s.SetEntryPrice(ctx, "mintA", 2.0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, *pos.EntryPrice)

	_, err = s.SetEntryPrice(ctx, "mintA", 3.0)
	require.ErrorIs(t, err, domain.ErrEntryPriceSet)
}

func TestUpdatePriceIsNoOpWithoutEntryPrice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, "mintA", "AAA", nil, 0.1)
	require.NoError(t, err)

	pos, err := s.UpdatePrice(ctx, "mintA", 5.0)
	require.NoError(t, err)
	assert.Zero(t, pos.CurrentPrice)
	assert.Empty(t, pos.PriceHistory)
}

func TestHighestPriceIsMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createWithEntry(t, s, "mintA", 1.0)

	prices := []float64{2, 5, 3, 1, 4, 0.5}
	var highest float64
	for _, p := range prices {
		pos, err := s.UpdatePrice(ctx, "mintA", p)
		require.NoError(t, err)
		require.GreaterOrEqual(t, pos.HighestPrice, highest)
		highest = pos.HighestPrice
	}
	pos, err := s.Get(ctx, "mintA")
	require.NoError(t, err)
	assert.Equal(t, 5.0, pos.HighestPrice)
	assert.Equal(t, 5.0, pos.HighestMultiple)
	assert.Equal(t, 0.5, pos.CurrentPrice)
}

func TestPriceHistoryCapped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createWithEntry(t, s, "mintA", 1.0)

	for i := 0; i < domain.PriceHistoryCap+50; i++ {
		_, err := s.UpdatePrice(ctx, "mintA", float64(i+1))
		require.NoError(t, err)
	}

	pos, err := s.Get(ctx, "mintA")
	require.NoError(t, err)
	require.Len(t, pos.PriceHistory, domain.PriceHistoryCap)
	// Oldest entries evicted first.
	assert.Equal(t, 51.0, pos.PriceHistory[0].Price)
	assert.Equal(t, 150.0, pos.PriceHistory[len(pos.PriceHistory)-1].Price)
}

func TestStageFlagNeverRegresses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createWithEntry(t, s, "mintA", 1.0)

	require.NoError(t, s.MarkStageSold(ctx, "mintA", "tp1"))
	require.NoError(t, s.MarkStageSold(ctx, "mintA", "tp1")) // idempotent flush retry

	pos, err := s.Get(ctx, "mintA")
	require.NoError(t, err)
	assert.True(t, pos.StageSold("tp1"))
	assert.False(t, pos.StageSold("tp2"))
}

func TestPauseAndReactivateResetsLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createWithEntry(t, s, "mintA", 1.0)
	_, err := s.UpdatePrice(ctx, "mintA", 3.0)
	require.NoError(t, err)
	require.NoError(t, s.MarkStageSold(ctx, "mintA", "tp1"))
	require.NoError(t, s.Pause(ctx, "mintA"))

	pos, err := s.Get(ctx, "mintA")
	require.NoError(t, err)
	assert.True(t, pos.Paused)
	require.NotNil(t, pos.PausedAt)

	pos, err = s.Reactivate(ctx, "mintA", 0.4)
	require.NoError(t, err)
	assert.False(t, pos.Paused)
	assert.Nil(t, pos.PausedAt)
	assert.Equal(t, 0.4, *pos.EntryPrice)
	assert.Equal(t, 0.4, pos.HighestPrice)
	assert.Equal(t, 1.0, pos.HighestMultiple)
	assert.Empty(t, pos.StageCompletion)
	assert.Empty(t, pos.PriceHistory)
}

func TestReactivateRequiresPaused(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createWithEntry(t, s, "mintA", 1.0)
	_, err := s.Reactivate(ctx, "mintA", 2.0)
	require.ErrorIs(t, err, domain.ErrNotPaused)
}

func TestListActiveExcludesPaused(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	createWithEntry(t, s, "mintA", 1.0)
	createWithEntry(t, s, "mintB", 1.0)
	require.NoError(t, s.Pause(ctx, "mintB"))

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "mintA", active[0].Mint)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDocumentSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.json")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	s, err := Open(path, logger)
	require.NoError(t, err)
	entry := 1.0
	_, err = s.Create(ctx, "mintA", "AAA", &entry, 0.1)
	require.NoError(t, err)
	require.NoError(t, s.MarkStageSold(ctx, "mintA", "tp1"))
	require.NoError(t, s.MarkSeen(ctx, "mintA"))

	reopened, err := Open(path, logger)
	require.NoError(t, err)

	pos, err := reopened.Get(ctx, "mintA")
	require.NoError(t, err)
	assert.True(t, pos.StageSold("tp1"))

	seen, err := reopened.WasSeen(ctx, "mintA")
	require.NoError(t, err)
	assert.True(t, seen)
}

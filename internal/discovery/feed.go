// Package discovery consumes the external candidate feed: it polls for scored
// token candidates, filters them, and hands survivors to the engine's buy
// path. Which assets are worth trading is entirely the feed's call; this
// package only de-duplicates and enforces the minimum score.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/snipebot/internal/config"
	"github.com/alanyoungcy/snipebot/internal/domain"
)

// Buyer opens a position for a discovered candidate.
type Buyer interface {
	OpenPosition(ctx context.Context, cand domain.Candidate) error
}

// Feed polls the discovery endpoint on a ticker.
type Feed struct {
	cfg    *config.Store
	store  domain.PositionStore
	buyer  Buyer
	http   *http.Client
	logger *slog.Logger
}

// New creates a Feed.
func New(cfg *config.Store, store domain.PositionStore, buyer Buyer, logger *slog.Logger) *Feed {
	return &Feed{
		cfg:    cfg,
		store:  store,
		buyer:  buyer,
		http:   &http.Client{Timeout: 20 * time.Second},
		logger: logger.With(slog.String("component", "discovery")),
	}
}

// Run polls the feed until the context is cancelled. The interval and minimum
// score are re-read from the live config snapshot on every cycle.
func (f *Feed) Run(ctx context.Context) error {
	f.logger.Info("discovery feed starting",
		slog.Duration("interval", f.cfg.Current().Discovery.Interval.Duration),
	)

	for {
		interval := f.cfg.Current().Discovery.Interval.Duration

		select {
		case <-ctx.Done():
			f.logger.Info("discovery feed stopped")
			return ctx.Err()
		case <-time.After(interval):
			if err := f.cycle(ctx); err != nil {
				f.logger.ErrorContext(ctx, "discovery cycle failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// cycle fetches the candidate list once and processes every survivor. A
// failed buy does not mark the candidate seen, so a later discovery cycle may
// retry the same asset.
func (f *Feed) cycle(ctx context.Context) error {
	snapshot := f.cfg.Current()

	candidates, err := f.fetch(ctx, snapshot.Discovery.URL)
	if err != nil {
		return err
	}

	for _, cand := range candidates {
		if cand.Score < snapshot.Discovery.MinScore {
			continue
		}

		seen, err := f.store.WasSeen(ctx, cand.Mint)
		if err != nil {
			f.logger.ErrorContext(ctx, "seen lookup failed",
				slog.String("mint", cand.Mint),
				slog.String("error", err.Error()),
			)
			continue
		}
		if seen {
			continue
		}

		f.logger.InfoContext(ctx, "candidate accepted",
			slog.String("mint", cand.Mint),
			slog.String("symbol", cand.Symbol),
			slog.Float64("score", cand.Score),
		)

		if err := f.buyer.OpenPosition(ctx, cand); err != nil {
			f.logger.ErrorContext(ctx, "buy failed, candidate left for retry",
				slog.String("mint", cand.Mint),
				slog.String("error", err.Error()),
			)
			continue
		}

		if err := f.store.MarkSeen(ctx, cand.Mint); err != nil {
			f.logger.ErrorContext(ctx, "mark seen failed",
				slog.String("mint", cand.Mint),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// fetch retrieves the candidate list from the feed endpoint.
func (f *Feed) fetch(ctx context.Context, feedURL string) ([]domain.Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: create request: %w", err)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery: fetch candidates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("discovery: fetch candidates: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var out []domain.Candidate
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("discovery: decode candidates: %w", err)
	}
	return out, nil
}

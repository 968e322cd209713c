// Package scheduler owns the set of currently-watched tokens and drives the
// polling loop that publishes price events. Tokens move through exactly one
// lifecycle: registered -> (batch tick)* -> unregistered. Registration state
// is ephemeral; the engine re-registers active positions on startup.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/snipebot/internal/bus"
	"github.com/alanyoungcy/snipebot/internal/config"
	"github.com/alanyoungcy/snipebot/internal/domain"
)

// Priority orders tokens within a tick. It is a scheduling hint, not a hard
// guarantee.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// demoteAfter is the consecutive-failure count at which a high-priority token
// is shed to medium. Demotion is one-shot; the scheduler never promotes.
const demoteAfter = 5

func rank(p Priority) int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// monitoredToken is the scheduler-internal bookkeeping for one watched mint.
// Never persisted and never shared outside this package.
type monitoredToken struct {
	mint       string
	symbol     string
	priority   Priority
	lastPrice  float64
	lastUpdate time.Time
	failures   int
}

// Scheduler batches price lookups on a fixed cadence with priority ordering.
type Scheduler struct {
	cfg    *config.Store
	prices domain.PriceSource
	bus    *bus.Bus
	logger *slog.Logger

	mu     sync.Mutex
	tokens map[string]*monitoredToken
}

// New creates a Scheduler.
func New(cfg *config.Store, prices domain.PriceSource, b *bus.Bus, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		prices: prices,
		bus:    b,
		logger: logger.With(slog.String("component", "scheduler")),
		tokens: make(map[string]*monitoredToken),
	}
}

// Register adds a mint to the watched set. Idempotent: when the mint is
// already registered only the symbol and priority are updated; failure
// counters and last-known prices are preserved.
func (s *Scheduler) Register(ctx context.Context, mint, symbol string, priority Priority) {
	interval := s.cfg.Current().Scheduler.Interval.Duration

	s.mu.Lock()
	t, exists := s.tokens[mint]
	if exists {
		t.symbol = symbol
		t.priority = priority
	} else {
		s.tokens[mint] = &monitoredToken{
			mint:     mint,
			symbol:   symbol,
			priority: priority,
		}
	}
	s.mu.Unlock()

	if exists {
		s.logger.DebugContext(ctx, "token registration refreshed",
			slog.String("mint", mint),
			slog.String("priority", string(priority)),
		)
		return
	}

	s.logger.InfoContext(ctx, "token registered",
		slog.String("mint", mint),
		slog.String("symbol", symbol),
		slog.String("priority", string(priority)),
	)
	s.bus.Publish(ctx, domain.EventMonitorStarted, domain.MonitorStarted{
		Mint:     mint,
		Interval: interval,
	})
}

// Unregister removes a mint immediately. An in-flight lookup for the mint may
// still complete, but its result is discarded.
func (s *Scheduler) Unregister(ctx context.Context, mint, reason string) {
	s.mu.Lock()
	_, exists := s.tokens[mint]
	delete(s.tokens, mint)
	s.mu.Unlock()

	if !exists {
		return
	}

	s.logger.InfoContext(ctx, "token unregistered",
		slog.String("mint", mint),
		slog.String("reason", reason),
	)
	s.bus.Publish(ctx, domain.EventMonitorStopped, domain.MonitorStopped{
		Mint:   mint,
		Reason: reason,
	})
}

// SetPriority explicitly changes a token's tier. This is the only promotion
// path; the scheduler itself only ever demotes.
func (s *Scheduler) SetPriority(ctx context.Context, mint string, priority Priority) {
	s.mu.Lock()
	t, ok := s.tokens[mint]
	if ok {
		t.priority = priority
		t.failures = 0
	}
	s.mu.Unlock()

	if ok {
		s.logger.InfoContext(ctx, "token priority changed",
			slog.String("mint", mint),
			slog.String("priority", string(priority)),
		)
	}
}

// Registered reports whether a mint is currently watched.
func (s *Scheduler) Registered(mint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tokens[mint]
	return ok
}

// Count returns the size of the watched set.
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// Run drives the tick loop until the context is cancelled. The interval is
// re-read from the live config snapshot before every tick, so cadence changes
// apply without a restart. Ticks never overlap: the next one is not armed
// until the previous tick's batches (and the synchronous event handling they
// trigger) have finished, which also guarantees at most one in-flight
// evaluation per token.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler starting",
		slog.Duration("interval", s.cfg.Current().Scheduler.Interval.Duration),
		slog.Int("batch_size", s.cfg.Current().Scheduler.BatchSize),
	)

	for {
		interval := s.cfg.Current().Scheduler.Interval.Duration

		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-time.After(interval):
			s.Tick(ctx)
		}
	}
}

// Tick snapshots the watched set, sorts it by priority tier, and processes it
// in fixed-size concurrent batches with a short pause between batches to
// bound burst load on the price source.
func (s *Scheduler) Tick(ctx context.Context) {
	snapshot := s.snapshot()
	if len(snapshot) == 0 {
		return
	}

	cfg := s.cfg.Current().Scheduler
	batchSize := cfg.BatchSize

	started := time.Now()
	var succeeded, failed atomic.Int32

	for i := 0; i < len(snapshot); i += batchSize {
		end := i + batchSize
		if end > len(snapshot) {
			end = len(snapshot)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, mint := range snapshot[i:end] {
			mint := mint
			g.Go(func() error {
				if s.lookup(gctx, mint) {
					succeeded.Add(1)
				} else {
					failed.Add(1)
				}
				return nil
			})
		}
		_ = g.Wait()

		if end < len(snapshot) && cfg.BatchPause.Duration > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(cfg.BatchPause.Duration):
			}
		}
	}

	s.bus.Publish(ctx, domain.EventMonitorSummary, domain.MonitorSummary{
		Registered: len(snapshot),
		Succeeded:  int(succeeded.Load()),
		Failed:     int(failed.Load()),
		Elapsed:    time.Since(started),
	})
}

// snapshot copies the registered mints sorted descending by priority tier.
// Registration order is preserved within a tier.
func (s *Scheduler) snapshot() []string {
	s.mu.Lock()
	tokens := make([]*monitoredToken, 0, len(s.tokens))
	for _, t := range s.tokens {
		tokens = append(tokens, t)
	}
	s.mu.Unlock()

	sort.SliceStable(tokens, func(i, j int) bool {
		return rank(tokens[i].priority) > rank(tokens[j].priority)
	})

	mints := make([]string, len(tokens))
	for i, t := range tokens {
		mints[i] = t.mint
	}
	return mints
}

// lookup fetches one price and publishes the outcome. Returns true on
// success. The token's registration is re-verified after the fetch: a mint
// unregistered mid-flight has its result discarded.
func (s *Scheduler) lookup(ctx context.Context, mint string) bool {
	price, err := s.prices.Price(ctx, mint)

	s.mu.Lock()
	t, ok := s.tokens[mint]
	if !ok {
		s.mu.Unlock()
		s.logger.DebugContext(ctx, "lookup result discarded, token unregistered",
			slog.String("mint", mint),
		)
		return err == nil
	}

	if err != nil {
		t.failures++
		attempts := t.failures
		demoted := false
		if t.failures >= demoteAfter && t.priority == PriorityHigh {
			t.priority = PriorityMedium
			demoted = true
		}
		s.mu.Unlock()

		s.logger.WarnContext(ctx, "price lookup failed",
			slog.String("mint", mint),
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()),
		)
		if demoted {
			s.logger.WarnContext(ctx, "token demoted after consecutive failures",
				slog.String("mint", mint),
				slog.Int("failures", attempts),
			)
		}
		s.bus.Publish(ctx, domain.EventPriceStale, domain.PriceStale{
			Mint:     mint,
			Attempts: attempts,
		})
		return false
	}

	var previous *float64
	if !t.lastUpdate.IsZero() {
		v := t.lastPrice
		previous = &v
	}
	t.failures = 0
	t.lastPrice = price
	t.lastUpdate = time.Now().UTC()
	s.mu.Unlock()

	s.bus.Publish(ctx, domain.EventPriceUpdated, domain.PriceUpdated{
		Mint:          mint,
		Price:         price,
		PreviousPrice: previous,
	})
	return true
}

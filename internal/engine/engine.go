// Package engine implements the position lifecycle: opening positions from
// discovered candidates, evaluating every price observation against the
// configured take-profit and stop-loss ladders, executing stage sells, and
// pausing or closing positions as balances drain.
//
// Per-asset mutual exclusion is structural, not locked: price events are
// delivered synchronously on the scheduler's lookup goroutine and the
// scheduler never has two lookups in flight for one mint, so at most one
// evaluation runs per asset at any time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/snipebot/internal/bus"
	"github.com/alanyoungcy/snipebot/internal/config"
	"github.com/alanyoungcy/snipebot/internal/domain"
	"github.com/alanyoungcy/snipebot/internal/scheduler"
)

// dustBalance is the threshold below which a holding counts as drained.
// On-chain token accounts often retain sub-atomic rounding residue after a
// full sell.
const dustBalance = 1e-9

// markSoldAttempts bounds the flush retries after a confirmed sell. The
// in-memory latch is already set after the first call; the retries only
// re-attempt the durable write.
const markSoldAttempts = 3

// Registrar is the scheduler surface the engine drives.
type Registrar interface {
	Register(ctx context.Context, mint, symbol string, priority scheduler.Priority)
	Unregister(ctx context.Context, mint, reason string)
}

// Engine coordinates buys, ladder evaluation, sells, and pause/resume.
type Engine struct {
	cfg    *config.Store
	store  domain.PositionStore
	venue  domain.SwapVenue
	wallet domain.BalanceReader
	prices domain.PriceSource
	sched  Registrar
	bus    *bus.Bus
	logger *slog.Logger
	dryRun bool
	wg     sync.WaitGroup
}

// New creates an Engine. dryRun disables venue calls: evaluation runs in full
// but no swap is ever executed (monitor mode).
func New(
	cfg *config.Store,
	store domain.PositionStore,
	venue domain.SwapVenue,
	wallet domain.BalanceReader,
	prices domain.PriceSource,
	sched Registrar,
	b *bus.Bus,
	logger *slog.Logger,
	dryRun bool,
) *Engine {
	return &Engine{
		cfg:    cfg,
		store:  store,
		venue:  venue,
		wallet: wallet,
		prices: prices,
		sched:  sched,
		bus:    b,
		logger: logger.With(slog.String("component", "engine")),
		dryRun: dryRun,
	}
}

// Start wires the engine to the bus and re-registers every stored active
// position with the scheduler. Positions whose ladder is already exhausted are
// left alone.
func (e *Engine) Start(ctx context.Context) error {
	e.bus.Subscribe(domain.EventPriceUpdated, e.onPriceUpdated)

	positions, err := e.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("engine: list active positions: %w", err)
	}

	snapshot := e.cfg.Current()
	ladders := []domain.Ladder{
		snapshot.Ladder.StopLossLadder(),
		snapshot.Ladder.TakeProfitLadder(),
	}

	resumed := 0
	for _, pos := range positions {
		if allStagesSold(pos, ladders) {
			continue
		}
		e.sched.Register(ctx, pos.Mint, pos.Symbol, scheduler.PriorityMedium)
		resumed++
	}

	e.logger.InfoContext(ctx, "engine started",
		slog.Int("resumed_positions", resumed),
		slog.Bool("dry_run", e.dryRun),
	)
	return nil
}

// Run drives the reactivation poller until the context is cancelled, then
// waits for any in-flight entry-price acquisitions to wind down.
func (e *Engine) Run(ctx context.Context) error {
	defer e.wg.Wait()

	for {
		interval := e.cfg.Current().Trade.ReactivateInterval.Duration

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopped")
			return ctx.Err()
		case <-time.After(interval):
			e.reactivationSweep(ctx)
		}
	}
}

// OpenPosition buys the candidate and stores the resulting position. When the
// venue does not report an execution price the position is created without an
// entry price and a background acquisition loop polls the price source for it.
func (e *Engine) OpenPosition(ctx context.Context, cand domain.Candidate) error {
	if e.dryRun {
		return fmt.Errorf("engine: open %s: buys disabled in monitor mode", cand.Mint)
	}

	snapshot := e.cfg.Current()

	result, err := e.venue.Buy(ctx, cand.Mint, snapshot.Trade.QuoteAmount)
	if err != nil {
		return fmt.Errorf("engine: buy %s: %w", cand.Mint, err)
	}

	var entry *float64
	if result.Price > 0 {
		v := result.Price
		entry = &v
	}

	pos, err := e.store.Create(ctx, cand.Mint, cand.Symbol, entry, result.OutAmount)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			e.logger.WarnContext(ctx, "position already exists, buy executed twice",
				slog.String("mint", cand.Mint),
				slog.String("signature", result.Signature),
			)
			return nil
		}
		return fmt.Errorf("engine: store position %s: %w", cand.Mint, err)
	}

	e.logger.InfoContext(ctx, "position opened",
		slog.String("mint", pos.Mint),
		slog.String("symbol", pos.Symbol),
		slog.Float64("size", pos.EntrySize),
		slog.String("signature", result.Signature),
	)
	e.bus.Publish(ctx, domain.EventPositionCreated, domain.PositionCreated{
		Mint:       pos.Mint,
		Symbol:     pos.Symbol,
		EntryPrice: pos.EntryPrice,
		Size:       pos.EntrySize,
	})

	if pos.EntryPrice != nil {
		e.sched.Register(ctx, pos.Mint, pos.Symbol, scheduler.PriorityHigh)
		return nil
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.acquireEntryPrice(ctx, pos.Mint, pos.Symbol)
	}()
	return nil
}

// acquireEntryPrice polls the price source until it yields a price, the
// attempt budget runs out, or the context ends. On success the position gets
// its entry price and joins the scheduler; on terminal failure it stays
// stored but unmonitored, for an operator to resolve.
func (e *Engine) acquireEntryPrice(ctx context.Context, mint, symbol string) {
	trade := e.cfg.Current().Trade

	for attempt := 1; attempt <= trade.EntryRetryAttempts; attempt++ {
		price, err := e.prices.Price(ctx, mint)
		if err == nil {
			if _, err := e.store.SetEntryPrice(ctx, mint, price); err != nil {
				if errors.Is(err, domain.ErrEntryPriceSet) {
					return
				}
				e.logger.ErrorContext(ctx, "entry price write failed",
					slog.String("mint", mint),
					slog.String("error", err.Error()),
				)
				return
			}
			e.logger.InfoContext(ctx, "entry price acquired",
				slog.String("mint", mint),
				slog.Float64("price", price),
				slog.Int("attempt", attempt),
			)
			e.sched.Register(ctx, mint, symbol, scheduler.PriorityHigh)
			return
		}

		e.logger.DebugContext(ctx, "entry price attempt failed",
			slog.String("mint", mint),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(trade.EntryRetryDelay.Duration):
		}
	}

	e.logger.ErrorContext(ctx, "entry price unavailable, position left unmonitored",
		slog.String("mint", mint),
		slog.Int("attempts", trade.EntryRetryAttempts),
	)
}

// onPriceUpdated is the single evaluation path for one price observation.
func (e *Engine) onPriceUpdated(ctx context.Context, ev domain.Event) {
	update, ok := ev.Payload.(domain.PriceUpdated)
	if !ok {
		return
	}

	pos, err := e.store.Get(ctx, update.Mint)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			e.sched.Unregister(ctx, update.Mint, "no stored position")
			return
		}
		e.logger.ErrorContext(ctx, "position lookup failed",
			slog.String("mint", update.Mint),
			slog.String("error", err.Error()),
		)
		return
	}
	if pos.Paused {
		return
	}

	if pos.EntryPrice == nil {
		if pos, err = e.store.SetEntryPrice(ctx, update.Mint, update.Price); err != nil {
			e.logger.ErrorContext(ctx, "entry price write failed",
				slog.String("mint", update.Mint),
				slog.String("error", err.Error()),
			)
			return
		}
		e.logger.InfoContext(ctx, "entry price set from first observation",
			slog.String("mint", update.Mint),
			slog.Float64("price", update.Price),
		)
	}

	pos, err = e.store.UpdatePrice(ctx, update.Mint, update.Price)
	if err != nil {
		e.logger.ErrorContext(ctx, "price update flush failed, continuing on memory state",
			slog.String("mint", update.Mint),
			slog.String("error", err.Error()),
		)
	}

	e.bus.Publish(ctx, domain.EventPositionUpdated, domain.PositionUpdated{
		Mint:            pos.Mint,
		Symbol:          pos.Symbol,
		CurrentPrice:    pos.CurrentPrice,
		Multiple:        pos.Multiple(),
		PercentChange:   pos.PercentChange(),
		HighestMultiple: pos.HighestMultiple,
	})

	e.evaluate(ctx, pos)
}

// evaluate runs the stage state machine for one price observation. The
// holding is re-read fresh on every evaluation because balances move outside
// this process: a zero balance transitions the position to completed when the
// ladder is exhausted, or to paused when rungs remain unsold. Stop-loss rungs
// are checked before take-profit rungs.
func (e *Engine) evaluate(ctx context.Context, pos domain.Position) {
	multiple := pos.Multiple()
	if multiple <= 0 {
		return
	}

	snapshot := e.cfg.Current()
	ladders := []domain.Ladder{
		snapshot.Ladder.StopLossLadder(),
		snapshot.Ladder.TakeProfitLadder(),
	}

	if e.dryRun {
		for _, ladder := range ladders {
			for _, stage := range ladder.Enabled() {
				if !pos.StageSold(stage.Name) && stage.Crossed(multiple) {
					e.logger.InfoContext(ctx, "stage crossed, sell skipped in monitor mode",
						slog.String("mint", pos.Mint),
						slog.String("stage", stage.Name),
						slog.Float64("multiple", multiple),
					)
				}
			}
		}
		return
	}

	balance, err := e.wallet.Balance(ctx, pos.Mint)
	if err != nil {
		e.logger.ErrorContext(ctx, "balance read failed, evaluation skipped",
			slog.String("mint", pos.Mint),
			slog.String("error", err.Error()),
		)
		return
	}
	if balance <= dustBalance {
		if allStagesSold(pos, ladders) {
			e.close(ctx, pos.Mint, "all stages sold, balance exhausted")
		} else {
			e.pause(ctx, pos.Mint, "balance drained with stages remaining")
		}
		return
	}

	for _, ladder := range ladders {
		for _, stage := range ladder.Enabled() {
			if pos.StageSold(stage.Name) || !stage.Crossed(multiple) {
				continue
			}
			if err := e.executeStage(ctx, &pos, stage, multiple); err != nil {
				e.logger.ErrorContext(ctx, "stage sell failed",
					slog.String("mint", pos.Mint),
					slog.String("stage", stage.Name),
					slog.String("error", err.Error()),
				)
				return
			}
		}
	}
}

// executeStage sells the stage's percentage of the current holding. The
// completion flag is re-checked against the freshest store state immediately
// before the venue call so a stage can never sell twice, and the balance is
// re-read immediately before each sell rather than reused across stages.
func (e *Engine) executeStage(ctx context.Context, pos *domain.Position, stage domain.Stage, multiple float64) error {
	current, err := e.store.Get(ctx, pos.Mint)
	if err != nil {
		return fmt.Errorf("engine: refresh position: %w", err)
	}
	if current.StageSold(stage.Name) || current.Paused {
		*pos = current
		return nil
	}

	balance, err := e.wallet.Balance(ctx, pos.Mint)
	if err != nil {
		return fmt.Errorf("engine: read balance: %w", err)
	}
	if balance <= dustBalance {
		// The next observation handles the completed/paused transition.
		return nil
	}

	// A 100% rung sells the exact remaining balance so rounding cannot leave
	// dust behind.
	amount := balance
	if stage.SellPercent < 100 {
		amount = balance * stage.SellPercent / 100
	}

	result, err := e.venue.Sell(ctx, pos.Mint, amount)
	if err != nil {
		return fmt.Errorf("engine: sell %g of %s: %w", amount, pos.Mint, err)
	}

	if result.ZeroBalance {
		// Nothing left to capture; latch the stage instead of retrying forever.
		e.logger.WarnContext(ctx, "venue reported zero balance, stage marked sold",
			slog.String("mint", pos.Mint),
			slog.String("stage", stage.Name),
		)
		e.markStageSold(ctx, pos.Mint, stage.Name)
		pos.StageCompletion[stage.Name] = true
		return nil
	}

	e.markStageSold(ctx, pos.Mint, stage.Name)
	pos.StageCompletion[stage.Name] = true

	e.logger.InfoContext(ctx, "stage sold",
		slog.String("mint", pos.Mint),
		slog.String("stage", stage.Name),
		slog.Float64("multiple", multiple),
		slog.Float64("amount", amount),
		slog.String("signature", result.Signature),
	)
	e.bus.Publish(ctx, domain.EventStageTriggered, domain.StageTriggered{
		Mint:       pos.Mint,
		Stage:      stage.Name,
		Multiple:   stage.Multiple,
		Percentage: stage.SellPercent,
		Signature:  result.Signature,
	})
	return nil
}

// markStageSold latches the stage flag with a bounded flush retry. The first
// call applies the latch in memory even when the flush fails, so repeats only
// re-attempt the durable write.
func (e *Engine) markStageSold(ctx context.Context, mint, stage string) {
	var err error
	for attempt := 1; attempt <= markSoldAttempts; attempt++ {
		if err = e.store.MarkStageSold(ctx, mint, stage); err == nil {
			return
		}
		e.logger.WarnContext(ctx, "stage flag flush failed",
			slog.String("mint", mint),
			slog.String("stage", stage),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}
	e.logger.ErrorContext(ctx, "stage flag not durable, relying on memory latch",
		slog.String("mint", mint),
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
}

// pause takes the position out of monitoring, preserving its stage history so
// a later reactivation starts from a clean ladder but the record shows what
// happened.
func (e *Engine) pause(ctx context.Context, mint, reason string) {
	if err := e.store.Pause(ctx, mint); err != nil {
		e.logger.ErrorContext(ctx, "pause flush failed",
			slog.String("mint", mint),
			slog.String("error", err.Error()),
		)
	}
	e.logger.WarnContext(ctx, "position paused",
		slog.String("mint", mint),
		slog.String("reason", reason),
	)
	e.bus.Publish(ctx, domain.EventPositionPaused, domain.PositionPaused{
		Mint:   mint,
		Reason: reason,
	})
	e.sched.Unregister(ctx, mint, reason)
}

// close ends monitoring for a position whose ladder has run out.
func (e *Engine) close(ctx context.Context, mint, reason string) {
	e.logger.InfoContext(ctx, "position closed",
		slog.String("mint", mint),
		slog.String("reason", reason),
	)
	e.bus.Publish(ctx, domain.EventPositionClosed, domain.PositionClosed{
		Mint:   mint,
		Reason: reason,
	})
	e.sched.Unregister(ctx, mint, reason)
}

// reactivationSweep re-arms paused positions whose balance has come back. The
// current price becomes the new entry price; prior stage history is discarded.
func (e *Engine) reactivationSweep(ctx context.Context) {
	positions, err := e.store.ListAll(ctx)
	if err != nil {
		e.logger.ErrorContext(ctx, "reactivation sweep failed",
			slog.String("error", err.Error()),
		)
		return
	}

	for _, pos := range positions {
		if !pos.Paused {
			continue
		}

		balance, err := e.wallet.Balance(ctx, pos.Mint)
		if err != nil {
			e.logger.WarnContext(ctx, "reactivation balance read failed",
				slog.String("mint", pos.Mint),
				slog.String("error", err.Error()),
			)
			continue
		}
		if balance <= dustBalance {
			continue
		}

		price, err := e.prices.Price(ctx, pos.Mint)
		if err != nil {
			e.logger.WarnContext(ctx, "reactivation price lookup failed",
				slog.String("mint", pos.Mint),
				slog.String("error", err.Error()),
			)
			continue
		}

		if _, err := e.store.Reactivate(ctx, pos.Mint, price); err != nil {
			e.logger.ErrorContext(ctx, "reactivate failed",
				slog.String("mint", pos.Mint),
				slog.String("error", err.Error()),
			)
			continue
		}

		e.logger.InfoContext(ctx, "position reactivated",
			slog.String("mint", pos.Mint),
			slog.Float64("balance", balance),
			slog.Float64("new_entry_price", price),
		)
		e.bus.Publish(ctx, domain.EventPositionResumed, domain.PositionResumed{
			Mint: pos.Mint,
		})
		e.sched.Register(ctx, pos.Mint, pos.Symbol, scheduler.PriorityHigh)
	}
}

// allStagesSold reports whether every enabled rung of every ladder has been
// sold.
func allStagesSold(pos domain.Position, ladders []domain.Ladder) bool {
	any := false
	for _, ladder := range ladders {
		for _, stage := range ladder.Enabled() {
			any = true
			if !pos.StageSold(stage.Name) {
				return false
			}
		}
	}
	return any
}

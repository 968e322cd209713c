package domain

import "context"

// PositionStore is the durable record of every position and its
// stage-completion flags. Every mutating call is write-through: the change is
// flushed to the underlying storage before the call returns. A storage write
// failure is surfaced to the caller without rolling back the in-memory state,
// so the caller retries the flush, not the logical operation.
type PositionStore interface {
	// Create inserts a new position record. entryPrice may be nil when the
	// buy confirmed before a price could be observed.
	Create(ctx context.Context, mint, symbol string, entryPrice *float64, size float64) (Position, error)
	// Get returns a copy of the position for the given mint.
	Get(ctx context.Context, mint string) (Position, error)
	// SetEntryPrice records the entry price for a position that was created
	// without one. It fails with ErrEntryPriceSet if already set for the
	// current activation.
	SetEntryPrice(ctx context.Context, mint string, price float64) (Position, error)
	// UpdatePrice records a price observation: recomputes the multiple,
	// appends to the capped history, and raises highestPrice /
	// highestMultiple when exceeded. It is a no-op (logged) while the entry
	// price is unknown.
	UpdatePrice(ctx context.Context, mint string, price float64) (Position, error)
	// MarkStageSold latches the named stage's completion flag. The flag
	// transitions false -> true exactly once and never back; marking an
	// already-sold stage only retries the flush.
	MarkStageSold(ctx context.Context, mint, stage string) error
	// Pause marks the position paused, preserving stage history.
	Pause(ctx context.Context, mint string) error
	// Reactivate clears all stage flags and history, resets the entry and
	// highest price to newEntryPrice, and clears the paused state. Prior
	// performance is intentionally discarded.
	Reactivate(ctx context.Context, mint string, newEntryPrice float64) (Position, error)
	// ListAll returns every stored position.
	ListAll(ctx context.Context) ([]Position, error)
	// ListActive returns every position that is not paused.
	ListActive(ctx context.Context) ([]Position, error)
	// MarkSeen records a mint in the discovery de-duplication set.
	MarkSeen(ctx context.Context, mint string) error
	// WasSeen reports whether a mint is in the discovery de-duplication set.
	WasSeen(ctx context.Context, mint string) (bool, error)
}

// PriceSource answers the current quote-currency price for a mint.
type PriceSource interface {
	Price(ctx context.Context, mint string) (float64, error)
}

// BalanceReader reads the current holding of a mint from the chain. Reads are
// always fresh; balances change outside this process.
type BalanceReader interface {
	Balance(ctx context.Context, mint string) (float64, error)
}

// SwapResult reports the outcome of a swap execution.
type SwapResult struct {
	Signature string
	Price     float64
	OutAmount float64
	// ZeroBalance is set when the venue reported no balance left to sell.
	ZeroBalance bool
}

// SwapVenue executes swaps. It is opaque: routing, signing, and broadcasting
// are the venue's concern, the caller only sees success or failure.
type SwapVenue interface {
	// Buy swaps quoteAmount of the quote currency into the given mint.
	Buy(ctx context.Context, mint string, quoteAmount float64) (SwapResult, error)
	// Sell swaps amount tokens of the given mint back into the quote currency.
	Sell(ctx context.Context, mint string, amount float64) (SwapResult, error)
}

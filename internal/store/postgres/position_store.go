package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

// Store implements domain.PositionStore using PostgreSQL. Each mutation is a
// read-modify-write inside one transaction with a row lock, so the invariants
// (entry price set once, stage flags latch, highest price monotone, capped
// history) are enforced against the stored row, not a cached one.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	return &Store{
		pool:   pool,
		logger: logger.With(slog.String("component", "position_store")),
	}
}

const positionCols = `mint, symbol, entry_price, entry_size, current_price,
	highest_price, highest_multiple, stage_completion, paused, paused_at,
	price_history, created_at, last_updated`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p          domain.Position
		stagesJSON []byte
		histJSON   []byte
	)
	err := row.Scan(
		&p.Mint, &p.Symbol, &p.EntryPrice, &p.EntrySize, &p.CurrentPrice,
		&p.HighestPrice, &p.HighestMultiple, &stagesJSON, &p.Paused, &p.PausedAt,
		&histJSON, &p.CreatedAt, &p.LastUpdated,
	)
	if err != nil {
		return domain.Position{}, err
	}
	if err := json.Unmarshal(stagesJSON, &p.StageCompletion); err != nil {
		return domain.Position{}, fmt.Errorf("decode stage_completion: %w", err)
	}
	if err := json.Unmarshal(histJSON, &p.PriceHistory); err != nil {
		return domain.Position{}, fmt.Errorf("decode price_history: %w", err)
	}
	if p.StageCompletion == nil {
		p.StageCompletion = make(map[string]bool)
	}
	return p, nil
}

// lockPosition loads a position row under FOR UPDATE within tx.
func lockPosition(ctx context.Context, tx pgx.Tx, mint string) (domain.Position, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions WHERE mint = $1 FOR UPDATE`, mint)
	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, err
}

// savePosition writes all mutable fields of a locked position row.
func savePosition(ctx context.Context, tx pgx.Tx, p domain.Position) error {
	stagesJSON, err := json.Marshal(p.StageCompletion)
	if err != nil {
		return fmt.Errorf("encode stage_completion: %w", err)
	}
	histJSON, err := json.Marshal(p.PriceHistory)
	if err != nil {
		return fmt.Errorf("encode price_history: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE positions SET
			symbol           = $2,
			entry_price      = $3,
			current_price    = $4,
			highest_price    = $5,
			highest_multiple = $6,
			stage_completion = $7,
			paused           = $8,
			paused_at        = $9,
			price_history    = $10,
			last_updated     = $11
		WHERE mint = $1`,
		p.Mint, p.Symbol, p.EntryPrice, p.CurrentPrice,
		p.HighestPrice, p.HighestMultiple, stagesJSON,
		p.Paused, p.PausedAt, histJSON, p.LastUpdated,
	)
	return err
}

// mutate runs fn against a locked position row and persists the result.
func (s *Store) mutate(ctx context.Context, mint string, fn func(*domain.Position) error) (domain.Position, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p, err := lockPosition(ctx, tx, mint)
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: lock position %s: %w", mint, err)
	}
	if err := fn(&p); err != nil {
		return domain.Position{}, err
	}
	if err := savePosition(ctx, tx, p); err != nil {
		return p, fmt.Errorf("postgres: save position %s: %w", mint, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return p, fmt.Errorf("postgres: commit position %s: %w", mint, err)
	}
	return p, nil
}

// Create inserts a new position record.
func (s *Store) Create(ctx context.Context, mint, symbol string, entryPrice *float64, size float64) (domain.Position, error) {
	now := time.Now().UTC()
	p := domain.Position{
		Mint:            mint,
		Symbol:          symbol,
		EntrySize:       size,
		StageCompletion: make(map[string]bool),
		PriceHistory:    []domain.PricePoint{},
		CreatedAt:       now,
		LastUpdated:     now,
	}
	if entryPrice != nil {
		v := *entryPrice
		p.EntryPrice = &v
		p.CurrentPrice = v
		p.HighestPrice = v
		p.HighestMultiple = 1
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO positions (
			mint, symbol, entry_price, entry_size, current_price,
			highest_price, highest_multiple, stage_completion, paused,
			paused_at, price_history, created_at, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, '{}'::jsonb, FALSE, NULL, '[]'::jsonb, $8, $8)`,
		p.Mint, p.Symbol, p.EntryPrice, p.EntrySize, p.CurrentPrice,
		p.HighestPrice, p.HighestMultiple, now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Position{}, fmt.Errorf("postgres: create position %s: %w", mint, domain.ErrAlreadyExists)
		}
		return domain.Position{}, fmt.Errorf("postgres: create position %s: %w", mint, err)
	}
	return p, nil
}

// Get retrieves a single position by mint.
func (s *Store) Get(ctx context.Context, mint string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions WHERE mint = $1`, mint)
	p, err := scanPosition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", mint, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", mint, err)
	}
	return p, nil
}

// SetEntryPrice records the entry price for the current activation.
func (s *Store) SetEntryPrice(ctx context.Context, mint string, price float64) (domain.Position, error) {
	return s.mutate(ctx, mint, func(p *domain.Position) error {
		if p.EntryPrice != nil {
			return fmt.Errorf("postgres: set entry price %s: %w", mint, domain.ErrEntryPriceSet)
		}
		p.EntryPrice = &price
		p.CurrentPrice = price
		p.HighestPrice = price
		p.HighestMultiple = 1
		p.LastUpdated = time.Now().UTC()
		return nil
	})
}

// UpdatePrice records a price observation. While the entry price is unknown
// the call is a logged no-op.
func (s *Store) UpdatePrice(ctx context.Context, mint string, price float64) (domain.Position, error) {
	return s.mutate(ctx, mint, func(p *domain.Position) error {
		if p.EntryPrice == nil || *p.EntryPrice <= 0 {
			s.logger.WarnContext(ctx, "price update skipped, entry price unknown",
				slog.String("mint", mint),
			)
			return nil
		}

		now := time.Now().UTC()
		multiple := price / *p.EntryPrice

		p.CurrentPrice = price
		p.LastUpdated = now
		if price > p.HighestPrice {
			p.HighestPrice = price
		}
		if multiple > p.HighestMultiple {
			p.HighestMultiple = multiple
		}
		p.PriceHistory = append(p.PriceHistory, domain.PricePoint{
			Timestamp: now,
			Price:     price,
			Multiple:  multiple,
		})
		if n := len(p.PriceHistory); n > domain.PriceHistoryCap {
			p.PriceHistory = p.PriceHistory[n-domain.PriceHistoryCap:]
		}
		return nil
	})
}

// MarkStageSold latches the stage completion flag.
func (s *Store) MarkStageSold(ctx context.Context, mint, stage string) error {
	_, err := s.mutate(ctx, mint, func(p *domain.Position) error {
		p.StageCompletion[stage] = true
		p.LastUpdated = time.Now().UTC()
		return nil
	})
	return err
}

// Pause marks the position paused, preserving stage history.
func (s *Store) Pause(ctx context.Context, mint string) error {
	_, err := s.mutate(ctx, mint, func(p *domain.Position) error {
		now := time.Now().UTC()
		p.Paused = true
		p.PausedAt = &now
		p.LastUpdated = now
		return nil
	})
	return err
}

// Reactivate resets a paused position to a fresh lifecycle.
func (s *Store) Reactivate(ctx context.Context, mint string, newEntryPrice float64) (domain.Position, error) {
	return s.mutate(ctx, mint, func(p *domain.Position) error {
		if !p.Paused {
			return fmt.Errorf("postgres: reactivate %s: %w", mint, domain.ErrNotPaused)
		}
		p.EntryPrice = &newEntryPrice
		p.CurrentPrice = newEntryPrice
		p.HighestPrice = newEntryPrice
		p.HighestMultiple = 1
		p.StageCompletion = make(map[string]bool)
		p.PriceHistory = []domain.PricePoint{}
		p.Paused = false
		p.PausedAt = nil
		p.LastUpdated = time.Now().UTC()
		return nil
	})
}

func (s *Store) list(ctx context.Context, query string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListAll returns every stored position.
func (s *Store) ListAll(ctx context.Context) ([]domain.Position, error) {
	return s.list(ctx, `SELECT `+positionCols+` FROM positions ORDER BY created_at`)
}

// ListActive returns every position that is not paused.
func (s *Store) ListActive(ctx context.Context) ([]domain.Position, error) {
	return s.list(ctx, `SELECT `+positionCols+` FROM positions WHERE NOT paused ORDER BY created_at`)
}

// MarkSeen records a mint in the discovery de-duplication set.
func (s *Store) MarkSeen(ctx context.Context, mint string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO seen_tokens (mint) VALUES ($1) ON CONFLICT (mint) DO NOTHING`, mint)
	if err != nil {
		return fmt.Errorf("postgres: mark seen %s: %w", mint, err)
	}
	return nil
}

// WasSeen reports whether a mint is in the discovery de-duplication set.
func (s *Store) WasSeen(ctx context.Context, mint string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM seen_tokens WHERE mint = $1)`, mint).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: was seen %s: %w", mint, err)
	}
	return exists, nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*Store)(nil)

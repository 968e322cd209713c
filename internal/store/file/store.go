// Package file implements domain.PositionStore as a single JSON document on
// disk. Every mutating call rewrites the whole document before returning
// (write-through), so a crash between two calls never loses more than the
// in-flight mutation.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

// document is the persisted layout: the discovery de-duplication set plus
// every position keyed by mint.
type document struct {
	Seen      map[string]bool             `json:"seen"`
	Positions map[string]*domain.Position `json:"positions"`
}

// Store is a file-backed position store. It is safe for concurrent use;
// mutations are serialized under a single mutex and flushed as one document.
type Store struct {
	path   string
	logger *slog.Logger

	mu  sync.Mutex
	doc document
}

// Open loads the document at path, creating an empty one if the file does not
// exist yet.
func Open(path string, logger *slog.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		logger: logger.With(slog.String("component", "position_store")),
		doc: document{
			Seen:      make(map[string]bool),
			Positions: make(map[string]*domain.Position),
		},
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("file: parse %s: %w", path, err)
	}
	if s.doc.Seen == nil {
		s.doc.Seen = make(map[string]bool)
	}
	if s.doc.Positions == nil {
		s.doc.Positions = make(map[string]*domain.Position)
	}
	return s, nil
}

// flush rewrites the whole document durably. Caller must hold s.mu. The write
// goes to a temp file in the same directory followed by a rename so a crash
// mid-write cannot corrupt the document.
func (s *Store) flush() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("file: marshal document: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".snipebot-*.json")
	if err != nil {
		return fmt.Errorf("file: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("file: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("file: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("file: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("file: rename temp: %w", err)
	}
	return nil
}

// Create inserts a new position record.
func (s *Store) Create(ctx context.Context, mint, symbol string, entryPrice *float64, size float64) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.doc.Positions[mint]; ok {
		return domain.Position{}, fmt.Errorf("file: create position %s: %w", mint, domain.ErrAlreadyExists)
	}

	now := time.Now().UTC()
	pos := &domain.Position{
		Mint:            mint,
		Symbol:          symbol,
		EntrySize:       size,
		StageCompletion: make(map[string]bool),
		PriceHistory:    make([]domain.PricePoint, 0, domain.PriceHistoryCap),
		CreatedAt:       now,
		LastUpdated:     now,
	}
	if entryPrice != nil {
		v := *entryPrice
		pos.EntryPrice = &v
		pos.CurrentPrice = v
		pos.HighestPrice = v
		pos.HighestMultiple = 1
	}
	s.doc.Positions[mint] = pos

	if err := s.flush(); err != nil {
		return pos.Clone(), err
	}
	return pos.Clone(), nil
}

// Get returns a copy of the position for the given mint.
func (s *Store) Get(ctx context.Context, mint string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.doc.Positions[mint]
	if !ok {
		return domain.Position{}, fmt.Errorf("file: get position %s: %w", mint, domain.ErrNotFound)
	}
	return pos.Clone(), nil
}

// SetEntryPrice records the entry price for the current activation. It fails
// if the entry price is already known.
func (s *Store) SetEntryPrice(ctx context.Context, mint string, price float64) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.doc.Positions[mint]
	if !ok {
		return domain.Position{}, fmt.Errorf("file: set entry price %s: %w", mint, domain.ErrNotFound)
	}
	if pos.EntryPrice != nil {
		return domain.Position{}, fmt.Errorf("file: set entry price %s: %w", mint, domain.ErrEntryPriceSet)
	}

	pos.EntryPrice = &price
	pos.CurrentPrice = price
	pos.HighestPrice = price
	pos.HighestMultiple = 1
	pos.LastUpdated = time.Now().UTC()

	if err := s.flush(); err != nil {
		return pos.Clone(), err
	}
	return pos.Clone(), nil
}

// UpdatePrice records a price observation. While the entry price is unknown
// the call is a logged no-op: a multiple cannot be computed yet.
func (s *Store) UpdatePrice(ctx context.Context, mint string, price float64) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.doc.Positions[mint]
	if !ok {
		return domain.Position{}, fmt.Errorf("file: update price %s: %w", mint, domain.ErrNotFound)
	}
	if pos.EntryPrice == nil || *pos.EntryPrice <= 0 {
		s.logger.WarnContext(ctx, "price update skipped, entry price unknown",
			slog.String("mint", mint),
		)
		return pos.Clone(), nil
	}

	now := time.Now().UTC()
	multiple := price / *pos.EntryPrice

	pos.CurrentPrice = price
	pos.LastUpdated = now
	if price > pos.HighestPrice {
		pos.HighestPrice = price
	}
	if multiple > pos.HighestMultiple {
		pos.HighestMultiple = multiple
	}

	pos.PriceHistory = append(pos.PriceHistory, domain.PricePoint{
		Timestamp: now,
		Price:     price,
		Multiple:  multiple,
	})
	if n := len(pos.PriceHistory); n > domain.PriceHistoryCap {
		pos.PriceHistory = pos.PriceHistory[n-domain.PriceHistoryCap:]
	}

	if err := s.flush(); err != nil {
		return pos.Clone(), err
	}
	return pos.Clone(), nil
}

// MarkStageSold latches the stage completion flag. Marking an already-sold
// stage is idempotent in memory and only retries the flush.
func (s *Store) MarkStageSold(ctx context.Context, mint, stage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.doc.Positions[mint]
	if !ok {
		return fmt.Errorf("file: mark stage sold %s/%s: %w", mint, stage, domain.ErrNotFound)
	}
	pos.StageCompletion[stage] = true
	pos.LastUpdated = time.Now().UTC()

	return s.flush()
}

// Pause marks the position paused, preserving stage history.
func (s *Store) Pause(ctx context.Context, mint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.doc.Positions[mint]
	if !ok {
		return fmt.Errorf("file: pause %s: %w", mint, domain.ErrNotFound)
	}
	now := time.Now().UTC()
	pos.Paused = true
	pos.PausedAt = &now
	pos.LastUpdated = now

	return s.flush()
}

// Reactivate resets a paused position to a fresh lifecycle: all stage flags
// and history are cleared and the new price becomes the entry and highest
// price. Prior performance is intentionally discarded.
func (s *Store) Reactivate(ctx context.Context, mint string, newEntryPrice float64) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.doc.Positions[mint]
	if !ok {
		return domain.Position{}, fmt.Errorf("file: reactivate %s: %w", mint, domain.ErrNotFound)
	}
	if !pos.Paused {
		return domain.Position{}, fmt.Errorf("file: reactivate %s: %w", mint, domain.ErrNotPaused)
	}

	now := time.Now().UTC()
	pos.EntryPrice = &newEntryPrice
	pos.CurrentPrice = newEntryPrice
	pos.HighestPrice = newEntryPrice
	pos.HighestMultiple = 1
	pos.StageCompletion = make(map[string]bool)
	pos.PriceHistory = pos.PriceHistory[:0]
	pos.Paused = false
	pos.PausedAt = nil
	pos.LastUpdated = now

	if err := s.flush(); err != nil {
		return pos.Clone(), err
	}
	return pos.Clone(), nil
}

// ListAll returns every stored position.
func (s *Store) ListAll(ctx context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Position, 0, len(s.doc.Positions))
	for _, pos := range s.doc.Positions {
		out = append(out, pos.Clone())
	}
	return out, nil
}

// ListActive returns every position that is not paused.
func (s *Store) ListActive(ctx context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Position, 0, len(s.doc.Positions))
	for _, pos := range s.doc.Positions {
		if pos.Paused {
			continue
		}
		out = append(out, pos.Clone())
	}
	return out, nil
}

// MarkSeen records a mint in the discovery de-duplication set.
func (s *Store) MarkSeen(ctx context.Context, mint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.Seen[mint] = true
	return s.flush()
}

// WasSeen reports whether a mint is in the discovery de-duplication set.
func (s *Store) WasSeen(ctx context.Context, mint string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.doc.Seen[mint], nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*Store)(nil)

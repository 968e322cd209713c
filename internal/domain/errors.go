package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrEntryPriceSet    = errors.New("entry price already set")
	ErrNoEntryPrice     = errors.New("entry price not yet known")
	ErrNotPaused        = errors.New("position is not paused")
	ErrInvalidLadder    = errors.New("invalid ladder configuration")
	ErrPriceUnavailable = errors.New("price unavailable")
)

package domain

import "time"

// PriceHistoryCap bounds the per-position price history. Oldest entries are
// evicted first once the cap is reached.
const PriceHistoryCap = 100

// PricePoint records a single price observation at a point in time together
// with the multiple it implied against the entry price.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Multiple  float64   `json:"multiple"`
}

// Position is the durable record of one watched token, keyed by its mint.
// EntryPrice is nil until the first price observation after a buy; it is set
// at most once per activation (initial creation or reactivation).
type Position struct {
	Mint            string          `json:"mint"`
	Symbol          string          `json:"symbol"`
	EntryPrice      *float64        `json:"entryPrice"`
	EntrySize       float64         `json:"entrySize"`
	CurrentPrice    float64         `json:"currentPrice"`
	HighestPrice    float64         `json:"highestPrice"`
	HighestMultiple float64         `json:"highestMultiple"`
	StageCompletion map[string]bool `json:"stageCompletion"`
	Paused          bool            `json:"paused"`
	PausedAt        *time.Time      `json:"pausedAt,omitempty"`
	PriceHistory    []PricePoint    `json:"priceHistory"`
	CreatedAt       time.Time       `json:"createdAt"`
	LastUpdated     time.Time       `json:"lastUpdated"`
}

// Multiple returns the current price ratio against the entry price, or 0 when
// the entry price is not yet known.
func (p Position) Multiple() float64 {
	if p.EntryPrice == nil || *p.EntryPrice <= 0 {
		return 0
	}
	return p.CurrentPrice / *p.EntryPrice
}

// PercentChange returns the percent move from the entry price, or 0 when the
// entry price is not yet known.
func (p Position) PercentChange() float64 {
	if p.EntryPrice == nil || *p.EntryPrice <= 0 {
		return 0
	}
	return (p.CurrentPrice - *p.EntryPrice) / *p.EntryPrice * 100
}

// StageSold reports whether the named stage has already been sold.
func (p Position) StageSold(stage string) bool {
	return p.StageCompletion[stage]
}

// Clone returns a deep copy so callers never alias store-owned state.
func (p Position) Clone() Position {
	out := p
	if p.EntryPrice != nil {
		v := *p.EntryPrice
		out.EntryPrice = &v
	}
	if p.PausedAt != nil {
		t := *p.PausedAt
		out.PausedAt = &t
	}
	out.StageCompletion = make(map[string]bool, len(p.StageCompletion))
	for k, v := range p.StageCompletion {
		out.StageCompletion[k] = v
	}
	out.PriceHistory = make([]PricePoint, len(p.PriceHistory))
	copy(out.PriceHistory, p.PriceHistory)
	return out
}

// Candidate is one record from the discovery feed: a token worth considering
// together with the relevance score the feed assigned to it.
type Candidate struct {
	Mint   string  `json:"mint"`
	Symbol string  `json:"symbol"`
	Score  float64 `json:"score"`
}

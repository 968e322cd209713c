package domain

import "fmt"

// StageKind separates the two families of ladder rungs.
type StageKind string

const (
	StageTakeProfit StageKind = "take_profit"
	StageStopLoss   StageKind = "stop_loss"
)

// Stage is one rung of a take-profit or stop-loss ladder: a price multiple
// against the entry price and the percentage of the remaining holding to
// liquidate when the multiple is crossed.
type Stage struct {
	Name        string    `json:"name" toml:"name"`
	Kind        StageKind `json:"kind" toml:"-"`
	Multiple    float64   `json:"multiple" toml:"multiple"`
	SellPercent float64   `json:"sellPercent" toml:"sell_percent"`
	Enabled     bool      `json:"enabled" toml:"enabled"`
}

// Crossed reports whether the given current multiple has reached this stage's
// threshold: >= for take-profit rungs, <= for stop-loss rungs.
func (s Stage) Crossed(multiple float64) bool {
	if s.Kind == StageStopLoss {
		return multiple <= s.Multiple
	}
	return multiple >= s.Multiple
}

// Ladder is the ordered list of enabled and disabled stages of one family.
type Ladder struct {
	Kind   StageKind
	Stages []Stage
}

// Enabled returns the enabled stages in ladder order.
func (l Ladder) Enabled() []Stage {
	out := make([]Stage, 0, len(l.Stages))
	for _, s := range l.Stages {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// Validate rejects ladders whose enabled stages are not strictly monotonic in
// the ladder's direction, or whose parameters are out of range. Take-profit
// multiples must be > 1 and strictly increasing; stop-loss multiples must sit
// in (0, 1) and be strictly decreasing (each rung a deeper loss).
func (l Ladder) Validate() error {
	var prev *float64
	for _, s := range l.Stages {
		if s.Name == "" {
			return fmt.Errorf("ladder %s: stage with empty name", l.Kind)
		}
		if s.SellPercent <= 0 || s.SellPercent > 100 {
			return fmt.Errorf("ladder %s: stage %s: sell_percent must be in (0,100], got %g", l.Kind, s.Name, s.SellPercent)
		}
		switch l.Kind {
		case StageTakeProfit:
			if s.Multiple <= 1 {
				return fmt.Errorf("ladder %s: stage %s: multiple must be > 1, got %g", l.Kind, s.Name, s.Multiple)
			}
		case StageStopLoss:
			if s.Multiple <= 0 || s.Multiple >= 1 {
				return fmt.Errorf("ladder %s: stage %s: multiple must be in (0,1), got %g", l.Kind, s.Name, s.Multiple)
			}
		}
		if !s.Enabled {
			continue
		}
		if prev != nil {
			if l.Kind == StageTakeProfit && s.Multiple <= *prev {
				return fmt.Errorf("ladder %s: enabled multiples must be strictly increasing, %g after %g", l.Kind, s.Multiple, *prev)
			}
			if l.Kind == StageStopLoss && s.Multiple >= *prev {
				return fmt.Errorf("ladder %s: enabled multiples must be strictly decreasing, %g after %g", l.Kind, s.Multiple, *prev)
			}
		}
		m := s.Multiple
		prev = &m
	}
	return nil
}

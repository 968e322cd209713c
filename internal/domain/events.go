package domain

import "time"

// EventType enumerates the closed set of event types carried by the bus.
type EventType string

const (
	EventPriceUpdated    EventType = "price:updated"
	EventPriceStale      EventType = "price:stale"
	EventPositionCreated EventType = "position:created"
	EventPositionUpdated EventType = "position:updated"
	EventPositionPaused  EventType = "position:paused"
	EventPositionResumed EventType = "position:resumed"
	EventPositionClosed  EventType = "position:closed"
	EventStageTriggered  EventType = "takeprofit:triggered"
	EventMonitorStarted  EventType = "monitor:started"
	EventMonitorStopped  EventType = "monitor:stopped"
	EventMonitorSummary  EventType = "monitor:summary"
)

// Event is an immutable fire-and-forget tuple delivered to subscribers.
// There is no acknowledgment, persistence, or replay.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceUpdated is published after a successful scheduler price lookup.
type PriceUpdated struct {
	Mint          string   `json:"mint"`
	Price         float64  `json:"price"`
	PreviousPrice *float64 `json:"previousPrice,omitempty"`
}

// PriceStale is published when a price lookup fails or returns nothing.
type PriceStale struct {
	Mint     string `json:"mint"`
	Attempts int    `json:"attempts"`
}

// PositionCreated is published after a buy has been confirmed and stored.
type PositionCreated struct {
	Mint       string   `json:"mint"`
	Symbol     string   `json:"symbol"`
	EntryPrice *float64 `json:"entryPrice"`
	Size       float64  `json:"size"`
}

// PositionUpdated is published after each stored price observation.
type PositionUpdated struct {
	Mint            string  `json:"mint"`
	Symbol          string  `json:"symbol"`
	CurrentPrice    float64 `json:"currentPrice"`
	Multiple        float64 `json:"multiple"`
	PercentChange   float64 `json:"percentChange"`
	HighestMultiple float64 `json:"highestMultiple"`
}

// PositionPaused is published when a position's balance drains externally.
type PositionPaused struct {
	Mint   string `json:"mint"`
	Reason string `json:"reason"`
}

// PositionResumed is published when a paused position regains balance.
type PositionResumed struct {
	Mint string `json:"mint"`
}

// PositionClosed is published when every enabled stage has been sold and the
// remaining balance reads zero.
type PositionClosed struct {
	Mint   string `json:"mint"`
	Reason string `json:"reason"`
}

// StageTriggered is published after a stage sell has been executed and the
// stage marked sold.
type StageTriggered struct {
	Mint       string  `json:"mint"`
	Stage      string  `json:"stage"`
	Multiple   float64 `json:"multiple"`
	Percentage float64 `json:"percentage"`
	Signature  string  `json:"signature,omitempty"`
}

// MonitorStarted is published when a token is registered with the scheduler.
type MonitorStarted struct {
	Mint     string        `json:"mint"`
	Interval time.Duration `json:"interval"`
}

// MonitorStopped is published when a token is unregistered.
type MonitorStopped struct {
	Mint   string `json:"mint"`
	Reason string `json:"reason"`
}

// MonitorSummary carries per-tick scheduler batch metrics. Observability
// only; it carries no control-flow weight.
type MonitorSummary struct {
	Registered int           `json:"registered"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Package notify turns bus events into operator alerts. A Notifier taps the
// bus, renders the events it cares about into short human-readable messages,
// and fans them out to every configured channel (Telegram, Discord).
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/snipebot/internal/bus"
	"github.com/alanyoungcy/snipebot/internal/domain"
)

// Sender is one delivery channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel in logs (e.g. "telegram").
	Name() string
}

// Notifier renders and fans out bus events. Only event types in the allowed
// set are forwarded; an empty set allows everything.
type Notifier struct {
	senders []Sender
	allowed map[domain.EventType]bool
	logger  *slog.Logger
}

// New creates a Notifier delivering to the given senders, filtered to the
// given event types.
func New(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool, len(events))
	for _, e := range events {
		allowed[domain.EventType(strings.TrimSpace(e))] = true
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Attach subscribes the notifier to every bus event. Delivery runs on the
// publisher's goroutine, so senders must stay fast; channel HTTP timeouts
// bound the worst case.
func (n *Notifier) Attach(b *bus.Bus) {
	if len(n.senders) == 0 {
		return
	}
	b.SubscribeAll(func(ctx context.Context, ev domain.Event) {
		if len(n.allowed) > 0 && !n.allowed[ev.Type] {
			return
		}
		title, message, ok := render(ev)
		if !ok {
			return
		}
		n.dispatch(ctx, title, message)
	})
}

// dispatch sends to every channel. One failing channel never blocks the rest;
// failures are logged, not returned, because the publisher cannot act on them.
func (n *Notifier) dispatch(ctx context.Context, title, message string) {
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "notification send failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
}

// render maps an event to a title and body. Unknown or purely internal event
// types render nothing.
func render(ev domain.Event) (title, message string, ok bool) {
	switch p := ev.Payload.(type) {
	case domain.PositionCreated:
		body := fmt.Sprintf("%s (%s)\nsize: %g", p.Symbol, shortMint(p.Mint), p.Size)
		if p.EntryPrice != nil {
			body += fmt.Sprintf("\nentry: %.8g", *p.EntryPrice)
		}
		return "Position opened", body, true
	case domain.StageTriggered:
		return "Stage sold", fmt.Sprintf("%s\nstage: %s at %gx, sold %g%%",
			shortMint(p.Mint), p.Stage, p.Multiple, p.Percentage), true
	case domain.PositionPaused:
		return "Position paused", fmt.Sprintf("%s\n%s", shortMint(p.Mint), p.Reason), true
	case domain.PositionResumed:
		return "Position resumed", shortMint(p.Mint), true
	case domain.PositionClosed:
		return "Position closed", fmt.Sprintf("%s\n%s", shortMint(p.Mint), p.Reason), true
	case domain.PriceStale:
		return "Price feed stale", fmt.Sprintf("%s\n%d consecutive failed lookups",
			shortMint(p.Mint), p.Attempts), true
	default:
		return "", "", false
	}
}

// shortMint abbreviates a mint address for display.
func shortMint(mint string) string {
	if len(mint) <= 12 {
		return mint
	}
	return mint[:6] + ".." + mint[len(mint)-4:]
}

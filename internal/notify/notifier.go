// Package notify delivers operator alerts for detected opportunities and
// feed health transitions. Alerts fan out to every configured sender
// (Telegram, Discord) and can be filtered by event kind so operators
// receive only what they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Event kinds accepted by Notify. Configuration validation rejects
// anything else.
const (
	EventOpportunity = "opportunity"
	EventHealth      = "health"
)

// EventNames lists the recognized event kinds.
func EventNames() []string {
	return []string{EventOpportunity, EventHealth}
}

// Sender is one delivery channel.
type Sender interface {
	// Send delivers an alert with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel, e.g. "telegram".
	Name() string
}

// Notifier fans alerts out to its senders. It holds an allow-list of
// event kinds; Notify forwards only listed events, NotifyAll bypasses
// the filter. An empty list allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers to all senders if the event kind passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll delivers to all senders regardless of event kind.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch tries every sender; one failing channel does not stop the
// rest. Failures are collected into a combined error.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

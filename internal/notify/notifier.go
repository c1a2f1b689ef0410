// Package notify pushes position lifecycle alerts (entries, exits, forced
// unwinds) to operator channels. Delivery is fan-out: every configured
// channel receives every alert that passes the event filter, and a broken
// channel never prevents the others from being tried.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Sender delivers one alert to a single channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	// Name identifies the channel in logs and error messages.
	Name() string
}

// Notifier fans alerts out to the configured channels, filtered by lifecycle
// event type ("opened", "closed", "unwound", "entry_failed", ...).
type Notifier struct {
	senders []Sender
	allowed map[string]bool
	logger  *slog.Logger
}

// NewNotifier builds a Notifier over the given channels. events lists the
// lifecycle event types to forward; an empty list forwards everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With("component", "notifier"),
	}
}

// Notify delivers an alert for the given lifecycle event type, applying the
// configured event filter. Filtered events are dropped silently.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.allowed) > 0 && !n.allowed[event] {
		n.logger.Debug("alert filtered", "event", event)
		return nil
	}
	return n.fanOut(ctx, title, message)
}

// NotifyAll delivers an alert to every channel, bypassing the event filter.
// Used for operational messages like startup and shutdown.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.fanOut(ctx, title, message)
}

// fanOut tries every channel and joins the failures. Partial delivery is
// still delivery: one channel erroring does not skip the rest.
func (n *Notifier) fanOut(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.Error("alert delivery failed", "channel", s.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.Debug("alert delivered", "channel", s.Name(), "title", title)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/rrijal1/poly-trader/internal/domain"
	"github.com/rrijal1/poly-trader/internal/lifecycle"
)

// Listener subscribes to the lifecycle event channel and forwards formatted
// notifications to the configured senders.
type Listener struct {
	bus      domain.EventBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewListener creates a Listener over the given bus and notifier.
func NewListener(bus domain.EventBus, notifier *Notifier, logger *slog.Logger) *Listener {
	return &Listener{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With("component", "notify.listener"),
	}
}

// Run consumes lifecycle events until ctx is cancelled. Malformed payloads
// are dropped; delivery failures are logged and never stop the loop.
func (l *Listener) Run(ctx context.Context) error {
	ch, err := l.bus.Subscribe(ctx, lifecycle.EventsChannel)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", lifecycle.EventsChannel, err)
	}
	l.logger.Info("lifecycle listener started")
	defer l.logger.Info("lifecycle listener stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			event, title, message, ok := formatEvent(payload)
			if !ok {
				continue
			}
			if err := l.notifier.Notify(ctx, event, title, message); err != nil {
				l.logger.Warn("notification delivery failed", "event", event, "error", err)
			}
		}
	}
}

// formatEvent renders a lifecycle event payload into a notification. The
// payload shape is the lifecycle manager's published JSON.
func formatEvent(payload []byte) (event, title, message string, ok bool) {
	var ev struct {
		Type         string   `json:"type"`
		PositionID   string   `json:"position_id"`
		PoolID       string   `json:"pool_id"`
		Strategy     string   `json:"strategy"`
		InstrumentID string   `json:"instrument_id"`
		State        string   `json:"state"`
		PnL          *float64 `json:"pnl"`
	}
	if err := json.Unmarshal(payload, &ev); err != nil || ev.Type == "" {
		return "", "", "", false
	}

	switch ev.Type {
	case "closed":
		title = "Position closed"
	case "unwound":
		title = "Position force-unwound"
	case "entry_failed":
		title = "Entry failed"
	case "opened":
		title = "Position opened"
	default:
		title = "Position " + ev.Type
	}

	message = fmt.Sprintf("pool %s\nstrategy %s\ninstrument %s", ev.PoolID, ev.Strategy, ev.InstrumentID)
	if ev.PnL != nil {
		message += fmt.Sprintf("\npnl %+.2f USDC", *ev.PnL)
	}
	return ev.Type, title, message, true
}

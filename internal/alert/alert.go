// Package alert fans monitoring events out to the configured channels.
// Delivery is best-effort: the durable alert record is written by the
// monitor before any channel is tried.
package alert

import (
	"context"
	"log/slog"

	"newsdesk/internal/domain"
)

// Channel delivers one alert to an external destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, event domain.AlertEvent) error
}

// Dispatcher sends each event to every channel, logging failures instead
// of propagating them.
type Dispatcher struct {
	channels []Channel
	logger   *slog.Logger
}

// NewDispatcher builds a dispatcher over the given channels.
func NewDispatcher(logger *slog.Logger, channels ...Channel) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{channels: channels, logger: logger}
}

// Dispatch delivers the event to all channels. A channel failure is logged
// and does not block the others.
func (d *Dispatcher) Dispatch(ctx context.Context, event domain.AlertEvent) {
	for _, ch := range d.channels {
		if err := ch.Send(ctx, event); err != nil {
			d.logger.Error("alert delivery failed",
				"channel", ch.Name(), "subject", event.Subject, "error", err)
			continue
		}
		d.logger.Info("alert delivered", "channel", ch.Name(), "subject", event.Subject)
	}
}

// Package notify delivers best-effort user notifications. Delivery is
// fire-and-forget: a failed notification is logged and must never fail the
// booking or cancellation that produced it.
package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	EventBookingRequested = "BOOKING_REQUESTED"
	EventBookingAccepted  = "BOOKING_ACCEPTED"
	EventBookingConfirmed = "BOOKING_CONFIRMED"
	EventBookingCompleted = "BOOKING_COMPLETED"
	EventBookingCancelled = "BOOKING_CANCELLED"
)

// Notifier pushes an event to a single user.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, payload map[string]any)
}

// LogNotifier writes notifications to the structured log. It stands in for
// the external push/socket delivery service.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, userID uuid.UUID, event string, payload map[string]any) {
	n.logger.Info().
		Str("user_id", userID.String()).
		Str("event", event).
		Fields(payload).
		Msg("notification dispatched")
}

// Noop discards notifications. Used in tests and the simulator.
type Noop struct{}

func (Noop) Notify(context.Context, uuid.UUID, string, map[string]any) {}

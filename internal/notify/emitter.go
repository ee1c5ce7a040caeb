// Package notify emits semantic settlement events for the notification
// dispatcher. The core never formats human-readable messages; it enqueues a
// typed event with a small detail record and recipients, and the dispatcher
// owns rendering and delivery.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/farmtally/farmtally/jobs"
)

// EventType identifies the closed set of semantic events the core emits.
type EventType string

const (
	EventLorryRequest      EventType = "lorry_request"
	EventLorryApproved     EventType = "lorry_approved"
	EventDeliveryCompleted EventType = "delivery_completed"
	EventPaymentProcessed  EventType = "payment_processed"
	EventAdvancePayment    EventType = "advance_payment"
)

// IsValid checks if the event type belongs to the closed set.
func (t EventType) IsValid() bool {
	switch t {
	case EventLorryRequest, EventLorryApproved, EventDeliveryCompleted,
		EventPaymentProcessed, EventAdvancePayment:
		return true
	default:
		return false
	}
}

// Event is the payload handed to the notification dispatcher.
type Event struct {
	ID             string         `json:"id"`
	Type           EventType      `json:"type"`
	OrganizationID int64          `json:"organization_id"`
	Recipients     []int64        `json:"recipients"`
	Detail         map[string]any `json:"detail,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

// Emitter enqueues events as background tasks. A nil asynq client downgrades
// emission to logging so the engine stays usable without a broker.
type Emitter struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewEmitter constructs an Emitter.
func NewEmitter(client *asynq.Client, logger *slog.Logger) *Emitter {
	return &Emitter{client: client, logger: logger}
}

// Emit enqueues the event for dispatch. The event ID and timestamp are
// assigned here when unset.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	if e == nil || e.client == nil {
		if e != nil && e.logger != nil {
			e.logger.Info("notification event (no broker)",
				slog.String("event_id", event.ID),
				slog.String("type", string(event.Type)),
				slog.Int64("organization_id", event.OrganizationID),
			)
		}
		return nil
	}

	task, err := jobs.NewNotificationTask(jobs.NotificationPayload{
		EventID:        event.ID,
		EventType:      string(event.Type),
		OrganizationID: event.OrganizationID,
		Recipients:     event.Recipients,
		Detail:         event.Detail,
		OccurredAt:     event.OccurredAt,
	})
	if err != nil {
		return err
	}

	if _, err := e.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault)); err != nil {
		return err
	}
	return nil
}

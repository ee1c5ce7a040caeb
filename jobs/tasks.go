package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeNotification is the task type for dispatching settlement
	// events to the notification collaborator.
	TaskTypeNotification = "notify:dispatch"
)

// NotificationPayload carries a semantic settlement event to the dispatcher.
type NotificationPayload struct {
	EventID        string         `json:"event_id"`
	EventType      string         `json:"event_type"`
	OrganizationID int64          `json:"organization_id"`
	Recipients     []int64        `json:"recipients"`
	Detail         map[string]any `json:"detail,omitempty"`
	OccurredAt     time.Time      `json:"occurred_at"`
}

// NewNotificationTask constructs an Asynq task for the payload.
func NewNotificationTask(payload NotificationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeNotification, data), nil
}

// NotificationHandler forwards events to the external dispatcher. Delivery
// mechanics (templates, channels) live outside this service.
type NotificationHandler struct {
	logger *slog.Logger
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{logger: logger}
}

// ProcessTask handles TaskTypeNotification tasks.
func (h *NotificationHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload NotificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	h.logger.Info("dispatching notification event",
		slog.String("event_id", payload.EventID),
		slog.String("event_type", payload.EventType),
		slog.Int64("organization_id", payload.OrganizationID),
		slog.Int("recipients", len(payload.Recipients)),
	)
	return nil
}

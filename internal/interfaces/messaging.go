package interfaces

import (
	"context"
	"time"

	"github.com/BekzhanKaspakov/mesa/internal/domain"
)

// Event names on the real-time surface.
type EventName string

const (
	EventNewOrder             EventName = "new-order"
	EventOrderUpdated         EventName = "order-updated"
	EventOrderCompleted       EventName = "order-completed"
	EventOrderCancelled       EventName = "order-cancelled"
	EventItemUpdated          EventName = "item-updated"
	EventTableUpdated         EventName = "table-updated"
	EventPaymentCompleted     EventName = "payment-completed"
	EventNewNotification      EventName = "new-notification"
	EventNotificationsRead    EventName = "notifications-read"
	EventNotificationsReadAll EventName = "notifications-read-all"
)

// TableDelta is the minimal payload for table events; clients reconcile by id
// and only need the fields that changed.
type TableDelta struct {
	ID       string             `json:"id"`
	Status   domain.TableStatus `json:"status"`
	LockedBy string             `json:"locked_by,omitempty"`
	Version  int64              `json:"version"`
}

// ReadDelta is the minimal payload for per-user read-state sync events.
type ReadDelta struct {
	UserID          string   `json:"user_id"`
	NotificationIDs []string `json:"notification_ids,omitempty"`
	All             bool     `json:"all,omitempty"`
}

// Envelope is the wire format for every broadcast event. EntityID plus
// Version give subscribers enough to drop stale replays after a reconnect.
type Envelope struct {
	Event      EventName `json:"event"`
	BranchID   string    `json:"branch_id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Version    int64     `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`

	Order        *domain.Order          `json:"order,omitempty"`
	Table        *TableDelta            `json:"table,omitempty"`
	Payment      *domain.PaymentSession `json:"payment,omitempty"`
	Notification *domain.Notification   `json:"notification,omitempty"`
	Read         *ReadDelta             `json:"read,omitempty"`
}

// EventPublisher fans a committed domain change out to subscribed clients.
// Role events reach every session of the target role in the branch; user
// events reach only that user's sessions.
type EventPublisher interface {
	PublishRole(ctx context.Context, target domain.RoleTarget, env Envelope) error
	PublishUser(ctx context.Context, userID string, env Envelope) error
}

type EventHandler func(ctx context.Context, body []byte) error

// EventConsumer subscribes a client session to its slice of the stream.
type EventConsumer interface {
	// ConsumeRole delivers events addressed to the role plus events addressed
	// to all roles within the branch.
	ConsumeRole(ctx context.Context, branchID string, role domain.RoleTarget, handler EventHandler) error
	// ConsumeUser delivers the user-scoped sync stream.
	ConsumeUser(ctx context.Context, branchID, userID string, handler EventHandler) error
}

package interfaces

import (
	"context"
	"time"

	"github.com/BekzhanKaspakov/mesa/internal/domain"
)

// OrderFilter narrows order list/search queries.
type OrderFilter struct {
	BranchID string
	Status   domain.OrderStatus
	Type     domain.OrderType
	TableID  string
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// OrderRepository owns order documents and their embedded items. Status
// mutations are conditional on the expected prior state so that two actors
// racing on the same order cannot both win.
type OrderRepository interface {
	Create(ctx context.Context, o *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, f OrderFilter) ([]*domain.Order, error)

	// UpdateStatus moves the order from one of the expected statuses to the
	// target and bumps the version in the same statement. Returns
	// domain.ErrInvalidStateTransition when the order is no longer in an
	// expected status.
	UpdateStatus(ctx context.Context, orderID string, expect []domain.OrderStatus, to domain.OrderStatus, cancelledBy, cancelReason string) (*domain.Order, error)

	// UpdateItemStatus moves one item and recomputes the order totals inside
	// the same transaction.
	UpdateItemStatus(ctx context.Context, orderID, itemID string, expect []domain.ItemStatus, to domain.ItemStatus, cancelledBy, cancelReason string) (*domain.Order, error)

	// MarkPaid records a completed payment and completes the order. Only the
	// payment flow calls this.
	MarkPaid(ctx context.Context, orderID string, method domain.PaymentMethod, paidAt time.Time) (*domain.Order, error)

	// HasActiveOrderForTable reports whether a non-terminal order references
	// the table.
	HasActiveOrderForTable(ctx context.Context, tableID string) (bool, error)

	NextOrderNumber(ctx context.Context, branchID string) (string, error)
}

// TableRepository serializes access to table occupancy. Every mutation is a
// single atomic conditional update keyed on the expected prior status; the
// loser of a race observes domain.ErrTableUnavailable.
type TableRepository interface {
	Create(ctx context.Context, t *domain.Table) error
	GetByID(ctx context.Context, id string) (*domain.Table, error)
	List(ctx context.Context, branchID string) ([]*domain.Table, error)

	Reserve(ctx context.Context, tableID, actor string, at time.Time) (*domain.Table, error)
	// Release clears a reservation. Only the lock holder may release unless
	// override is set (admin).
	Release(ctx context.Context, tableID, actor string, override bool) (*domain.Table, error)
	Occupy(ctx context.Context, tableID string) (*domain.Table, error)
	EnterBilling(ctx context.Context, tableID string) (*domain.Table, error)
	EnterCleaning(ctx context.Context, tableID string) (*domain.Table, error)
	MarkClean(ctx context.Context, tableID string) (*domain.Table, error)
	// FreeAfterCancel returns an occupied or billing table straight to
	// available, skipping the cleaning step.
	FreeAfterCancel(ctx context.Context, tableID string) (*domain.Table, error)
	ForceReset(ctx context.Context, tableID string) (*domain.Table, error)
	ReturnToOccupied(ctx context.Context, tableID string) (*domain.Table, error)

	// ReleaseExpired frees reserved tables whose hold is older than cutoff.
	// Idempotent; safe to run on a schedule.
	ReleaseExpired(ctx context.Context, cutoff time.Time) ([]*domain.Table, error)
}

// PaymentRepository owns payment sessions. The single-active-session
// invariant is enforced at insert time by the store, not by read-then-write.
type PaymentRepository interface {
	// Create inserts the session unless the order already has an active one,
	// in which case domain.ErrPaymentSessionConflict is returned.
	Create(ctx context.Context, s *domain.PaymentSession) error
	GetByID(ctx context.Context, id string) (*domain.PaymentSession, error)
	FindActiveByOrder(ctx context.Context, orderID string) (*domain.PaymentSession, error)

	Complete(ctx context.Context, id string, method domain.PaymentMethod, txnID string, amountReceived, change float64) (*domain.PaymentSession, error)
	Cancel(ctx context.Context, id string) (*domain.PaymentSession, error)

	// CancelExpired cancels initiated sessions older than cutoff. Used only
	// when a session TTL is configured.
	CancelExpired(ctx context.Context, cutoff time.Time) ([]*domain.PaymentSession, error)
}

// NotificationRepository persists notifications and per-user read receipts.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	// ListForUser pages through notifications visible to the user's role,
	// newest first, with the user's read flag resolved.
	ListForUser(ctx context.Context, branchID, userID string, role domain.RoleTarget, limit, offset int) ([]*domain.UserNotification, error)
	UnreadCount(ctx context.Context, branchID, userID string, role domain.RoleTarget) (int64, error)
	// MarkRead records receipts for the given user only and returns the ids
	// that actually flipped.
	MarkRead(ctx context.Context, userID string, ids []string) ([]string, error)
	MarkAllRead(ctx context.Context, branchID, userID string, role domain.RoleTarget) (int64, error)
}

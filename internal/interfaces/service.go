package interfaces

import (
	"context"

	"github.com/BekzhanKaspakov/mesa/internal/domain"
)

// Actor identifies who is performing a request. Identity is established by
// the external auth collaborator and arrives as verified headers.
type Actor struct {
	ID       string
	Role     domain.Role
	BranchID string
}

// Commands.

type CreateOrderCommand struct {
	Type     domain.OrderType
	TableID  string
	Items    []CreateOrderItemCommand
	TaxRate  float64
	Discount float64
}

type CreateOrderItemCommand struct {
	MenuItemRef string
	Name        string
	Price       float64
	Quantity    int
	Notes       string
}

// Service contracts.

type OrderService interface {
	CreateOrder(ctx context.Context, actor Actor, cmd CreateOrderCommand) (*domain.Order, error)
	UpdateStatus(ctx context.Context, actor Actor, orderID string, to domain.OrderStatus) (*domain.Order, error)
	UpdateItemStatus(ctx context.Context, actor Actor, orderID, itemID string, to domain.ItemStatus) (*domain.Order, error)
	CancelOrder(ctx context.Context, actor Actor, orderID, reason string) (*domain.Order, error)
	CancelItem(ctx context.Context, actor Actor, orderID, itemID, reason string) (*domain.Order, error)
	GetOrder(ctx context.Context, actor Actor, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, actor Actor, f OrderFilter) ([]*domain.Order, error)
}

type TableService interface {
	CreateTable(ctx context.Context, actor Actor, number, capacity int) (*domain.Table, error)
	ListTables(ctx context.Context, actor Actor) ([]*domain.Table, error)
	Reserve(ctx context.Context, actor Actor, tableID string) (*domain.Table, error)
	Release(ctx context.Context, actor Actor, tableID string) (*domain.Table, error)
	MarkClean(ctx context.Context, actor Actor, tableID string) (*domain.Table, error)
	ForceReset(ctx context.Context, actor Actor, tableID string) (*domain.Table, error)
}

type PaymentService interface {
	Initiate(ctx context.Context, actor Actor, orderID string) (*domain.PaymentSession, error)
	Process(ctx context.Context, actor Actor, sessionID string, in domain.PaymentInput) (*domain.PaymentSession, error)
	Cancel(ctx context.Context, actor Actor, sessionID string) (*domain.PaymentSession, error)
}

type NotificationService interface {
	// Notify persists a notification and broadcasts it live. Called by the
	// other components on their trigger points.
	Notify(ctx context.Context, branchID string, typ domain.NotificationType, title, message string, target domain.RoleTarget) (*domain.Notification, error)
	SendOffer(ctx context.Context, actor Actor, title, message string, target domain.RoleTarget) (*domain.Notification, error)
	List(ctx context.Context, actor Actor, limit, offset int) ([]*domain.UserNotification, error)
	UnreadCount(ctx context.Context, actor Actor) (int64, error)
	MarkRead(ctx context.Context, actor Actor, ids []string) error
	MarkAllRead(ctx context.Context, actor Actor) error
}

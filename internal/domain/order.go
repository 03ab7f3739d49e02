package domain

import (
	"time"
)

// OrderItem is embedded in an order. Name and price are snapshotted at order
// time so later menu edits never change what the guest was charged.
type OrderItem struct {
	ID           string     `json:"id"`
	MenuItemRef  string     `json:"menu_item_ref"`
	Name         string     `json:"name"`
	Price        float64    `json:"price"`
	Quantity     int        `json:"quantity"`
	Notes        string     `json:"notes,omitempty"`
	Status       ItemStatus `json:"status"`
	CancelledBy  string     `json:"cancelled_by,omitempty"`
	CancelReason string     `json:"cancel_reason,omitempty"`
}

// Order is the authoritative order document. Version increases on every
// committed mutation and rides on every broadcast so clients can discard
// stale events.
type Order struct {
	ID          string    `json:"id"`
	OrderNumber string    `json:"order_number"`
	TokenNumber string    `json:"token_number,omitempty"`
	BranchID    string    `json:"branch_id"`
	CreatedBy   string    `json:"created_by"`
	Type        OrderType `json:"order_type"`
	TableID     string    `json:"table_id,omitempty"`

	Items []OrderItem `json:"items"`

	Status        OrderStatus   `json:"order_status"`
	KOTStatus     KOTStatus     `json:"kot_status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentMethod PaymentMethod `json:"payment_method,omitempty"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`

	TotalAmount float64 `json:"total_amount"`
	TaxRate     float64 `json:"tax_rate"`
	Tax         float64 `json:"tax"`
	Discount    float64 `json:"discount"`
	FinalAmount float64 `json:"final_amount"`

	CancelledBy  string `json:"cancelled_by,omitempty"`
	CancelReason string `json:"cancel_reason,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewOrder builds a pending order and computes its financial snapshot.
func NewOrder(branchID, createdBy string, orderType OrderType, tableID string, items []OrderItem, taxRate, discount float64) (*Order, error) {
	if orderType != OrderTypeDineIn && orderType != OrderTypeTakeaway {
		return nil, Invalidf("order_type", "must be one of: dine_in, takeaway")
	}
	if orderType == OrderTypeDineIn && tableID == "" {
		return nil, Invalidf("table_id", "table is required for dine-in orders")
	}
	if orderType == OrderTypeTakeaway && tableID != "" {
		return nil, Invalidf("table_id", "table must not be present for takeaway orders")
	}
	if len(items) == 0 {
		return nil, Invalidf("items", "order must contain at least 1 item")
	}
	for i := range items {
		if items[i].Name == "" {
			return nil, Invalidf("items", "item name is required")
		}
		if items[i].Quantity < 1 {
			return nil, Invalidf("items", "item quantity must be at least 1")
		}
		if items[i].Price < 0 {
			return nil, Invalidf("items", "item price must not be negative")
		}
		items[i].Status = ItemPending
	}
	if taxRate < 0 {
		return nil, Invalidf("tax_rate", "must not be negative")
	}
	if discount < 0 {
		return nil, Invalidf("discount", "must not be negative")
	}

	now := time.Now().UTC()
	o := &Order{
		BranchID:      branchID,
		CreatedBy:     createdBy,
		Type:          orderType,
		TableID:       tableID,
		Items:         items,
		Status:        OrderStatusPending,
		KOTStatus:     KOTOpen,
		PaymentStatus: PaymentUnpaid,
		TaxRate:       taxRate,
		Discount:      discount,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	o.RecalculateTotals()
	return o, nil
}

// RecalculateTotals recomputes the financial snapshot from the currently
// active (non-cancelled) items. Cancelled items stay on the order for audit
// but never count toward totals.
func (o *Order) RecalculateTotals() {
	total := 0.0
	for _, it := range o.Items {
		if it.Status == ItemCancelled {
			continue
		}
		total += it.Price * float64(it.Quantity)
	}
	o.TotalAmount = total
	o.Tax = total * o.TaxRate / 100
	o.FinalAmount = o.TotalAmount + o.Tax - o.Discount
}

// Item returns the embedded item with the given id, or nil.
func (o *Order) Item(itemID string) *OrderItem {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i]
		}
	}
	return nil
}

// Terminal reports whether no further transitions are accepted.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

func (s ItemStatus) Terminal() bool {
	return s == ItemReady || s == ItemCancelled
}

// Policy carries the configurable role gates that are deliberately not hard
// invariants.
type Policy struct {
	// ReadyCancelRoles may cancel an order that is already ready
	// (post-kitchen, pre-payment).
	ReadyCancelRoles []Role
}

func DefaultPolicy() Policy {
	return Policy{ReadyCancelRoles: []Role{RoleCashier, RoleAdmin, RoleSuperAdmin}}
}

type orderEdge struct {
	from, to OrderStatus
}

var kitchenRoles = []Role{RoleKitchen, RoleAdmin, RoleSuperAdmin}

// cancel authority below ready; waiter ownership is checked by the caller.
var cancelRoles = []Role{RoleWaiter, RoleKitchen, RoleCashier, RoleAdmin, RoleSuperAdmin}

var orderTransitions = map[orderEdge][]Role{
	{OrderStatusPending, OrderStatusAccepted}:    kitchenRoles,
	{OrderStatusAccepted, OrderStatusPreparing}:  kitchenRoles,
	{OrderStatusPreparing, OrderStatusReady}:     kitchenRoles,
	{OrderStatusPending, OrderStatusCancelled}:   cancelRoles,
	{OrderStatusAccepted, OrderStatusCancelled}:  cancelRoles,
	{OrderStatusPreparing, OrderStatusCancelled}: cancelRoles,
	{OrderStatusReady, OrderStatusCancelled}:     nil, // policy-driven
}

// AuthorizeOrderTransition answers allow/deny for (currentState, requested,
// actorRole). Completed is never reachable by request: an order completes
// only as a side effect of a successful payment.
func AuthorizeOrderTransition(from, to OrderStatus, role Role, p Policy) error {
	if to == OrderStatusCompleted {
		if from == OrderStatusReady {
			return ErrPaymentRequired
		}
		return ErrInvalidStateTransition
	}
	roles, ok := orderTransitions[orderEdge{from, to}]
	if !ok {
		return ErrInvalidStateTransition
	}
	if from == OrderStatusReady && to == OrderStatusCancelled {
		roles = p.ReadyCancelRoles
	}
	if !roleIn(roles, role) {
		return ErrAuthorizationDenied
	}
	return nil
}

type itemEdge struct {
	from, to ItemStatus
}

var itemTransitions = map[itemEdge][]Role{
	{ItemPending, ItemPreparing}: kitchenRoles,
	{ItemPreparing, ItemReady}:   kitchenRoles,
}

// AuthorizeItemTransition gates item status changes. Item statuses never
// regress; READY and CANCELLED are terminal.
func AuthorizeItemTransition(from, to ItemStatus, role Role) error {
	if to == ItemCancelled {
		return authorizeItemCancel(from, role)
	}
	roles, ok := itemTransitions[itemEdge{from, to}]
	if !ok {
		return ErrInvalidStateTransition
	}
	if !roleIn(roles, role) {
		return ErrAuthorizationDenied
	}
	return nil
}

func authorizeItemCancel(from ItemStatus, role Role) error {
	if from.Terminal() {
		// READY means already fired; too late to cancel.
		return ErrInvalidStateTransition
	}
	switch role {
	case RoleWaiter:
		if from != ItemPending {
			return ErrAuthorizationDenied
		}
		return nil
	case RoleKitchen:
		return nil // PENDING or PREPARING, both allowed
	case RoleCashier, RoleAdmin, RoleSuperAdmin:
		return nil
	}
	return ErrAuthorizationDenied
}

func roleIn(roles []Role, r Role) bool {
	for _, x := range roles {
		if x == r {
			return true
		}
	}
	return false
}

package domain

// Role is the operational role an actor acts under. Authentication is
// external; the role arrives already verified on each request.
type Role string

const (
	RoleWaiter     Role = "waiter"
	RoleKitchen    Role = "kitchen"
	RoleCashier    Role = "cashier"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

type OrderType string

const (
	OrderTypeDineIn   OrderType = "dine_in"
	OrderTypeTakeaway OrderType = "takeaway"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusAccepted  OrderStatus = "accepted"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// KOTStatus tracks whether the kitchen ticket is still actionable,
// independent of payment.
type KOTStatus string

const (
	KOTOpen   KOTStatus = "open"
	KOTClosed KOTStatus = "closed"
)

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

type ItemStatus string

const (
	ItemPending   ItemStatus = "PENDING"
	ItemPreparing ItemStatus = "PREPARING"
	ItemReady     ItemStatus = "READY"
	ItemCancelled ItemStatus = "CANCELLED"
)

type TableStatus string

const (
	TableAvailable TableStatus = "available"
	TableReserved  TableStatus = "reserved"
	TableOccupied  TableStatus = "occupied"
	TableBilling   TableStatus = "billing"
	TableCleaning  TableStatus = "cleaning"
)

type PaymentMethod string

const (
	MethodCash       PaymentMethod = "cash"
	MethodQR         PaymentMethod = "qr"
	MethodUPI        PaymentMethod = "upi"
	MethodCreditCard PaymentMethod = "credit_card"
)

type PaymentState string

const (
	SessionInitiated  PaymentState = "initiated"
	SessionProcessing PaymentState = "processing"
	SessionCompleted  PaymentState = "completed"
	SessionCancelled  PaymentState = "cancelled"
)

type NotificationType string

const (
	NotifyNewOrder          NotificationType = "NEW_ORDER"
	NotifyOrderReady        NotificationType = "ORDER_READY"
	NotifyPaymentSuccess    NotificationType = "PAYMENT_SUCCESS"
	NotifyOrderCancelled    NotificationType = "ORDER_CANCELLED"
	NotifyOfferAnnouncement NotificationType = "OFFER_ANNOUNCEMENT"
	NotifySystemAlert       NotificationType = "SYSTEM_ALERT"
)

// RoleTarget is the audience scope a notification or event is broadcast to.
type RoleTarget string

const (
	TargetAll     RoleTarget = "all"
	TargetKitchen RoleTarget = "kitchen"
	TargetWaiter  RoleTarget = "waiter"
	TargetCashier RoleTarget = "cashier"
)

func ValidRole(r Role) bool {
	switch r {
	case RoleWaiter, RoleKitchen, RoleCashier, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

func ValidRoleTarget(t RoleTarget) bool {
	switch t {
	case TargetAll, TargetKitchen, TargetWaiter, TargetCashier:
		return true
	}
	return false
}

func ValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case MethodCash, MethodQR, MethodUPI, MethodCreditCard:
		return true
	}
	return false
}

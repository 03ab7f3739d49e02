package domain

import "time"

// Notification is an alert record broadcast to a role audience. Read state is
// tracked per recipient user, never globally on the notification, so marking
// one colleague's copy read leaves everyone else's unread count alone.
type Notification struct {
	ID         string           `json:"id"`
	BranchID   string           `json:"branch_id"`
	Type       NotificationType `json:"type"`
	Title      string           `json:"title"`
	Message    string           `json:"message"`
	RoleTarget RoleTarget       `json:"role_target"`
	CreatedAt  time.Time        `json:"created_at"`
}

// UserNotification is a notification as seen by one user.
type UserNotification struct {
	Notification
	IsRead bool `json:"is_read"`
}

func NewNotification(branchID string, typ NotificationType, title, message string, target RoleTarget) (*Notification, error) {
	if title == "" {
		return nil, Invalidf("title", "required")
	}
	if !ValidRoleTarget(target) {
		return nil, Invalidf("role_target", "must be one of: all, kitchen, waiter, cashier")
	}
	return &Notification{
		BranchID:   branchID,
		Type:       typ,
		Title:      title,
		Message:    message,
		RoleTarget: target,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

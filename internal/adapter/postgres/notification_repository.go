package postgres

import (
	"context"
	"fmt"

	"github.com/BekzhanKaspakov/mesa/internal/domain"
	"github.com/BekzhanKaspakov/mesa/internal/interfaces"
)

// notificationRepository stores notifications once and read receipts per
// (notification, user) pair, so one user's read state never leaks into a
// colleague's unread count.
type notificationRepository struct {
	db DB
}

func NewNotificationRepository(db DB) interfaces.NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO notifications (id, branch_id, type, title, message, role_target, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.ID, n.BranchID, n.Type, n.Title, n.Message, n.RoleTarget, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) ListForUser(ctx context.Context, branchID, userID string, role domain.RoleTarget, limit, offset int) ([]*domain.UserNotification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT n.id, n.branch_id, n.type, n.title, n.message, n.role_target, n.created_at,
		       (rd.user_id IS NOT NULL) AS is_read
		FROM notifications n
		LEFT JOIN notification_reads rd ON rd.notification_id = n.id AND rd.user_id = $2
		WHERE n.branch_id = $1 AND ($3 OR n.role_target IN ($4, 'all'))
		ORDER BY n.created_at DESC
		LIMIT $5 OFFSET $6
	`, branchID, userID, role == domain.TargetAll, role, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []*domain.UserNotification
	for rows.Next() {
		var un domain.UserNotification
		if err := rows.Scan(&un.ID, &un.BranchID, &un.Type, &un.Title, &un.Message, &un.RoleTarget, &un.CreatedAt, &un.IsRead); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, &un)
	}
	return out, nil
}

func (r *notificationRepository) UnreadCount(ctx context.Context, branchID, userID string, role domain.RoleTarget) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM notifications n
		LEFT JOIN notification_reads rd ON rd.notification_id = n.id AND rd.user_id = $2
		WHERE n.branch_id = $1 AND ($3 OR n.role_target IN ($4, 'all')) AND rd.user_id IS NULL
	`, branchID, userID, role == domain.TargetAll, role).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID string, ids []string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		INSERT INTO notification_reads (notification_id, user_id, read_at)
		SELECT id, $2, now() FROM notifications WHERE id = ANY($1)
		ON CONFLICT DO NOTHING
		RETURNING notification_id
	`, ids, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	defer rows.Close()

	var marked []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		marked = append(marked, id)
	}
	return marked, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, branchID, userID string, role domain.RoleTarget) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO notification_reads (notification_id, user_id, read_at)
		SELECT n.id, $2, now()
		FROM notifications n
		WHERE n.branch_id = $1 AND ($3 OR n.role_target IN ($4, 'all'))
		ON CONFLICT DO NOTHING
	`, branchID, userID, role == domain.TargetAll, role)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all read: %w", err)
	}
	return tag.RowsAffected(), nil
}

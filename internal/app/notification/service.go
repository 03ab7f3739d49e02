package notification

import (
	"context"
	"time"

	"github.com/BekzhanKaspakov/mesa/internal/adapter/logger"
	"github.com/BekzhanKaspakov/mesa/internal/domain"
	"github.com/BekzhanKaspakov/mesa/internal/interfaces"

	"github.com/google/uuid"
)

// Service is the Notification Center. Fan-out-on-write: a trigger creates one
// persisted notification per event, the broadcaster delivers it live, and the
// stored copy backs history paging and unread counts when a client was
// offline. Read state is per user.
type Service struct {
	repo      interfaces.NotificationRepository
	publisher interfaces.EventPublisher
	logger    logger.Logger
}

func NewService(repo interfaces.NotificationRepository, publisher interfaces.EventPublisher, lgr logger.Logger) *Service {
	return &Service{repo: repo, publisher: publisher, logger: lgr}
}

func (s *Service) Notify(ctx context.Context, branchID string, typ domain.NotificationType, title, message string, target domain.RoleTarget) (*domain.Notification, error) {
	n, err := domain.NewNotification(branchID, typ, title, message, target)
	if err != nil {
		return nil, err
	}
	n.ID = uuid.NewString()
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, err
	}

	env := interfaces.Envelope{
		Event:        interfaces.EventNewNotification,
		BranchID:     branchID,
		EntityType:   "notification",
		EntityID:     n.ID,
		Version:      1,
		OccurredAt:   time.Now().UTC(),
		Notification: n,
	}
	if err := s.publisher.PublishRole(ctx, target, env); err != nil {
		s.logger.Error("event_publish_failed", "Failed to broadcast notification", "", map[string]interface{}{
			"notification_id": n.ID,
		}, err)
	}
	return n, nil
}

// SendOffer is the explicit admin broadcast.
func (s *Service) SendOffer(ctx context.Context, actor interfaces.Actor, title, message string, target domain.RoleTarget) (*domain.Notification, error) {
	if actor.Role != domain.RoleAdmin && actor.Role != domain.RoleSuperAdmin {
		return nil, domain.ErrAuthorizationDenied
	}
	return s.Notify(ctx, actor.BranchID, domain.NotifyOfferAnnouncement, title, message, target)
}

func (s *Service) List(ctx context.Context, actor interfaces.Actor, limit, offset int) ([]*domain.UserNotification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListForUser(ctx, actor.BranchID, actor.ID, roleTargetFor(actor.Role), limit, offset)
}

func (s *Service) UnreadCount(ctx context.Context, actor interfaces.Actor) (int64, error) {
	return s.repo.UnreadCount(ctx, actor.BranchID, actor.ID, roleTargetFor(actor.Role))
}

// MarkRead flips read markers for this user only and emits a sync event
// scoped to the user so the same human's other devices converge without
// re-broadcasting to colleagues.
func (s *Service) MarkRead(ctx context.Context, actor interfaces.Actor, ids []string) error {
	if len(ids) == 0 {
		return domain.Invalidf("ids", "at least one notification id required")
	}
	marked, err := s.repo.MarkRead(ctx, actor.ID, ids)
	if err != nil {
		return err
	}
	if len(marked) == 0 {
		return nil
	}
	s.publishReadSync(ctx, actor, interfaces.EventNotificationsRead, &interfaces.ReadDelta{
		UserID:          actor.ID,
		NotificationIDs: marked,
	})
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, actor interfaces.Actor) error {
	n, err := s.repo.MarkAllRead(ctx, actor.BranchID, actor.ID, roleTargetFor(actor.Role))
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	s.publishReadSync(ctx, actor, interfaces.EventNotificationsReadAll, &interfaces.ReadDelta{
		UserID: actor.ID,
		All:    true,
	})
	return nil
}

func (s *Service) publishReadSync(ctx context.Context, actor interfaces.Actor, event interfaces.EventName, delta *interfaces.ReadDelta) {
	env := interfaces.Envelope{
		Event:      event,
		BranchID:   actor.BranchID,
		EntityType: "notification_read",
		EntityID:   actor.ID,
		OccurredAt: time.Now().UTC(),
		Read:       delta,
	}
	if err := s.publisher.PublishUser(ctx, actor.ID, env); err != nil {
		s.logger.Error("event_publish_failed", "Failed to broadcast read sync", "", map[string]interface{}{
			"user_id": actor.ID,
		}, err)
	}
}

// roleTargetFor maps an operational role to the notification audiences it
// sees: its own role plus "all". Admin roles see everything.
func roleTargetFor(r domain.Role) domain.RoleTarget {
	switch r {
	case domain.RoleKitchen:
		return domain.TargetKitchen
	case domain.RoleWaiter:
		return domain.TargetWaiter
	case domain.RoleCashier:
		return domain.TargetCashier
	}
	return domain.TargetAll
}

package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BekzhanKaspakov/mesa/internal/adapter/logger"
	"github.com/BekzhanKaspakov/mesa/internal/app/table"
	"github.com/BekzhanKaspakov/mesa/internal/domain"
	"github.com/BekzhanKaspakov/mesa/internal/interfaces"

	"github.com/google/uuid"
)

// Service is the Order Ledger: it owns order documents and their embedded
// items, applies the role-gated state machines and keeps the financial
// snapshot consistent with the active item set.
type Service struct {
	repo      interfaces.OrderRepository
	tables    *table.Service
	publisher interfaces.EventPublisher
	notifier  interfaces.NotificationService
	logger    logger.Logger
	policy    domain.Policy
}

func NewService(repo interfaces.OrderRepository, tables *table.Service, publisher interfaces.EventPublisher, notifier interfaces.NotificationService, lgr logger.Logger, policy domain.Policy) *Service {
	return &Service{
		repo:      repo,
		tables:    tables,
		publisher: publisher,
		notifier:  notifier,
		logger:    lgr,
		policy:    policy,
	}
}

var createRoles = []domain.Role{domain.RoleWaiter, domain.RoleCashier, domain.RoleAdmin, domain.RoleSuperAdmin}

func (s *Service) CreateOrder(ctx context.Context, actor interfaces.Actor, cmd interfaces.CreateOrderCommand) (*domain.Order, error) {
	if !roleIn(createRoles, actor.Role) {
		return nil, domain.ErrAuthorizationDenied
	}

	items := make([]domain.OrderItem, len(cmd.Items))
	for i, it := range cmd.Items {
		items[i] = domain.OrderItem{
			ID:          uuid.NewString(),
			MenuItemRef: it.MenuItemRef,
			Name:        strings.TrimSpace(it.Name),
			Price:       it.Price,
			Quantity:    it.Quantity,
			Notes:       it.Notes,
		}
	}

	o, err := domain.NewOrder(actor.BranchID, actor.ID, cmd.Type, cmd.TableID, items, cmd.TaxRate, cmd.Discount)
	if err != nil {
		return nil, err
	}
	o.ID = uuid.NewString()

	number, err := s.repo.NextOrderNumber(ctx, actor.BranchID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate order number: %w", err)
	}
	o.OrderNumber = number

	if o.Type == domain.OrderTypeTakeaway {
		// Token is the short sequential suffix called out to guests.
		if i := strings.LastIndex(number, "_"); i >= 0 {
			o.TokenNumber = number[i+1:]
		} else {
			o.TokenNumber = number
		}
	}

	if o.Type == domain.OrderTypeDineIn {
		// A table serves one active order at a time. The status CAS in the
		// registry is the lock; the explicit check catches desyncs left by a
		// force-reset.
		busy, err := s.repo.HasActiveOrderForTable(ctx, o.TableID)
		if err != nil {
			return nil, err
		}
		if busy {
			return nil, domain.ErrTableUnavailable
		}
		if _, err := s.tables.Occupy(ctx, o.TableID); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Create(ctx, o); err != nil {
		if o.Type == domain.OrderTypeDineIn {
			if _, rerr := s.tables.FreeAfterCancel(ctx, o.TableID); rerr != nil {
				s.logger.Error("table_rollback_failed", "Failed to free table after order create failed", "", map[string]interface{}{
					"table_id": o.TableID,
				}, rerr)
			}
		}
		return nil, err
	}

	s.logger.Info("order_created", fmt.Sprintf("Order %s created", o.OrderNumber), "", map[string]interface{}{
		"order_id":   o.ID,
		"order_type": string(o.Type),
		"final":      o.FinalAmount,
	})

	s.broadcast(ctx, interfaces.EventNewOrder, o)
	s.notify(ctx, o.BranchID, domain.NotifyNewOrder, "New order placed",
		fmt.Sprintf("Order %s: %d item(s)", o.OrderNumber, len(o.Items)), domain.TargetKitchen)
	return o, nil
}

// UpdateStatus advances the order along
// pending -> accepted -> preparing -> ready. Cancellation has its own
// operation, and completed is reachable only through a successful payment.
func (s *Service) UpdateStatus(ctx context.Context, actor interfaces.Actor, orderID string, to domain.OrderStatus) (*domain.Order, error) {
	if to == domain.OrderStatusCancelled {
		return nil, domain.Invalidf("status", "use the cancel operation")
	}
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := domain.AuthorizeOrderTransition(o.Status, to, actor.Role, s.policy); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, orderID, []domain.OrderStatus{o.Status}, to, "", "")
	if err != nil {
		return nil, err
	}

	s.broadcast(ctx, interfaces.EventOrderUpdated, updated)
	if to == domain.OrderStatusReady {
		s.notify(ctx, updated.BranchID, domain.NotifyOrderReady, "Order ready",
			fmt.Sprintf("Order %s is ready to serve", updated.OrderNumber), domain.TargetWaiter)
	}
	return updated, nil
}

func (s *Service) UpdateItemStatus(ctx context.Context, actor interfaces.Actor, orderID, itemID string, to domain.ItemStatus) (*domain.Order, error) {
	if to == domain.ItemCancelled {
		return nil, domain.Invalidf("status", "use the cancel operation")
	}
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status.Terminal() || o.KOTStatus == domain.KOTClosed {
		return nil, domain.ErrInvalidStateTransition
	}
	item := o.Item(itemID)
	if item == nil {
		return nil, domain.ErrNotFound
	}
	if err := domain.AuthorizeItemTransition(item.Status, to, actor.Role); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateItemStatus(ctx, orderID, itemID, []domain.ItemStatus{item.Status}, to, "", "")
	if err != nil {
		return nil, err
	}

	s.broadcast(ctx, interfaces.EventItemUpdated, updated)
	return updated, nil
}

// CancelOrder moves the order to its terminal cancelled state, closes the
// kitchen ticket and releases a dine-in table straight back to available.
// Item statuses stay as recorded for audit.
func (s *Service) CancelOrder(ctx context.Context, actor interfaces.Actor, orderID, reason string) (*domain.Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := domain.AuthorizeOrderTransition(o.Status, domain.OrderStatusCancelled, actor.Role, s.policy); err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleWaiter && o.CreatedBy != actor.ID {
		return nil, domain.ErrAuthorizationDenied
	}

	updated, err := s.repo.UpdateStatus(ctx, orderID, []domain.OrderStatus{o.Status}, domain.OrderStatusCancelled, actor.ID, reason)
	if err != nil {
		return nil, err
	}

	if updated.Type == domain.OrderTypeDineIn && updated.TableID != "" {
		if _, err := s.tables.FreeAfterCancel(ctx, updated.TableID); err != nil {
			s.logger.Error("table_release_failed", "Failed to free table after order cancel", "", map[string]interface{}{
				"order_id": updated.ID,
				"table_id": updated.TableID,
			}, err)
		}
	}

	s.broadcast(ctx, interfaces.EventOrderCancelled, updated)
	s.notify(ctx, updated.BranchID, domain.NotifyOrderCancelled, "Order cancelled",
		fmt.Sprintf("Order %s was cancelled: %s", updated.OrderNumber, reason), domain.TargetKitchen)
	return updated, nil
}

// CancelItem cancels a single item without disturbing its siblings or the
// order status; totals are recomputed from the remaining active items inside
// the same mutation.
func (s *Service) CancelItem(ctx context.Context, actor interfaces.Actor, orderID, itemID, reason string) (*domain.Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status.Terminal() {
		return nil, domain.ErrInvalidStateTransition
	}
	item := o.Item(itemID)
	if item == nil {
		return nil, domain.ErrNotFound
	}
	if err := domain.AuthorizeItemTransition(item.Status, domain.ItemCancelled, actor.Role); err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleWaiter && o.CreatedBy != actor.ID {
		return nil, domain.ErrAuthorizationDenied
	}

	updated, err := s.repo.UpdateItemStatus(ctx, orderID, itemID, []domain.ItemStatus{item.Status}, domain.ItemCancelled, actor.ID, reason)
	if err != nil {
		return nil, err
	}

	s.broadcast(ctx, interfaces.EventItemUpdated, updated)
	return updated, nil
}

func (s *Service) GetOrder(ctx context.Context, actor interfaces.Actor, orderID string) (*domain.Order, error) {
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BranchID != actor.BranchID {
		return nil, domain.ErrNotFound
	}
	return o, nil
}

func (s *Service) ListOrders(ctx context.Context, actor interfaces.Actor, f interfaces.OrderFilter) ([]*domain.Order, error) {
	f.BranchID = actor.BranchID
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	return s.repo.List(ctx, f)
}

func (s *Service) broadcast(ctx context.Context, event interfaces.EventName, o *domain.Order) {
	env := interfaces.Envelope{
		Event:      event,
		BranchID:   o.BranchID,
		EntityType: "order",
		EntityID:   o.ID,
		Version:    o.Version,
		OccurredAt: time.Now().UTC(),
		Order:      o,
	}
	if err := s.publisher.PublishRole(ctx, domain.TargetAll, env); err != nil {
		s.logger.Error("event_publish_failed", "Failed to broadcast order event", "", map[string]interface{}{
			"event":    string(event),
			"order_id": o.ID,
		}, err)
	}
}

func (s *Service) notify(ctx context.Context, branchID string, typ domain.NotificationType, title, message string, target domain.RoleTarget) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, branchID, typ, title, message, target); err != nil {
		s.logger.Error("notification_failed", "Failed to create notification", "", map[string]interface{}{
			"type": string(typ),
		}, err)
	}
}

func roleIn(roles []domain.Role, r domain.Role) bool {
	for _, x := range roles {
		if x == r {
			return true
		}
	}
	return false
}

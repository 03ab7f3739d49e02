package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BekzhanKaspakov/mesa/internal/adapter/logger"
	"github.com/BekzhanKaspakov/mesa/internal/app/table"
	"github.com/BekzhanKaspakov/mesa/internal/domain"
	"github.com/BekzhanKaspakov/mesa/internal/interfaces"

	"github.com/google/uuid"
)

// Service is the Payment Session Controller: a transient payment-in-progress
// state machine attached 1:1 to an order. Initiate is idempotent in effect,
// process is the only path that completes an order, and every money mutation
// is guarded against double-processing.
type Service struct {
	repo       interfaces.PaymentRepository
	orders     interfaces.OrderRepository
	tables     *table.Service
	publisher  interfaces.EventPublisher
	notifier   interfaces.NotificationService
	logger     logger.Logger
	sessionTTL time.Duration // 0 disables automatic expiry
}

func NewService(repo interfaces.PaymentRepository, orders interfaces.OrderRepository, tables *table.Service, publisher interfaces.EventPublisher, notifier interfaces.NotificationService, lgr logger.Logger, sessionTTL time.Duration) *Service {
	return &Service{
		repo:       repo,
		orders:     orders,
		tables:     tables,
		publisher:  publisher,
		notifier:   notifier,
		logger:     lgr,
		sessionTTL: sessionTTL,
	}
}

var paymentRoles = []domain.Role{domain.RoleCashier, domain.RoleAdmin, domain.RoleSuperAdmin}

// Initiate opens a payment session for the order. Calling it again while a
// session is active returns the existing session, so a reconnect or a
// duplicate click never creates a second concurrent session.
func (s *Service) Initiate(ctx context.Context, actor interfaces.Actor, orderID string) (*domain.PaymentSession, error) {
	if !roleIn(paymentRoles, actor.Role) {
		return nil, domain.ErrAuthorizationDenied
	}
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.BranchID != actor.BranchID {
		return nil, domain.ErrNotFound
	}
	if o.PaymentStatus == domain.PaymentPaid {
		return nil, domain.ErrAlreadyPaid
	}
	// Payment departs from ready only; earlier statuses cannot settle.
	if o.Status != domain.OrderStatusReady {
		return nil, domain.ErrInvalidStateTransition
	}

	if existing, err := s.repo.FindActiveByOrder(ctx, orderID); err == nil && existing != nil {
		return existing, nil
	}

	now := time.Now().UTC()
	sess := &domain.PaymentSession{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		BranchID:    o.BranchID,
		State:       domain.SessionInitiated,
		InitiatedBy: actor.ID,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		if errors.Is(err, domain.ErrPaymentSessionConflict) {
			// Lost the insert race; the winner's session is the session.
			if existing, ferr := s.repo.FindActiveByOrder(ctx, orderID); ferr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	if o.Type == domain.OrderTypeDineIn && o.TableID != "" {
		if _, err := s.tables.EnterBilling(ctx, o.TableID); err != nil {
			// The table must read as billing while a session is active.
			// Roll the session back rather than leave the two out of step.
			if _, cerr := s.repo.Cancel(ctx, sess.ID); cerr != nil {
				s.logger.Error("session_rollback_failed", "Failed to cancel session after billing handoff failure", "", map[string]interface{}{
					"session_id": sess.ID,
					"table_id":   o.TableID,
				}, cerr)
			}
			return nil, err
		}
	}

	s.logger.Info("payment_initiated", fmt.Sprintf("Payment session opened for order %s", o.OrderNumber), "", map[string]interface{}{
		"session_id": sess.ID,
		"order_id":   orderID,
	})
	return sess, nil
}

// Process validates the method-specific payload and, on success, completes
// the session, the order and the table handoff as one unit. A partial
// failure after the money is recorded is retried once and then surfaced as a
// consistency fault, never left as a silent partial commit.
func (s *Service) Process(ctx context.Context, actor interfaces.Actor, sessionID string, in domain.PaymentInput) (*domain.PaymentSession, error) {
	if !roleIn(paymentRoles, actor.Role) {
		return nil, domain.ErrAuthorizationDenied
	}
	sess, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.State.Active() {
		return nil, domain.ErrInvalidStateTransition
	}
	o, err := s.orders.GetByID(ctx, sess.OrderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus == domain.PaymentPaid {
		return nil, domain.ErrAlreadyPaid
	}

	change, err := domain.ValidatePayment(in, o.FinalAmount)
	if err != nil {
		return nil, err
	}

	completed, err := s.repo.Complete(ctx, sessionID, in.Method, in.TransactionID, in.AmountReceived, change)
	if err != nil {
		return nil, err
	}

	paidAt := time.Now().UTC()
	paid, err := s.orders.MarkPaid(ctx, o.ID, in.Method, paidAt)
	if err != nil {
		// The session committed but the order did not. Retry once, then
		// escalate; this is the one error class that needs an operator.
		paid, err = s.orders.MarkPaid(ctx, o.ID, in.Method, paidAt)
		if err != nil {
			return nil, s.consistencyFault(ctx, o, "order not marked paid after completed session", err)
		}
	}

	if paid.Type == domain.OrderTypeDineIn && paid.TableID != "" {
		if _, err := s.tables.EnterCleaning(ctx, paid.TableID); err != nil {
			if _, err = s.tables.EnterCleaning(ctx, paid.TableID); err != nil {
				return nil, s.consistencyFault(ctx, paid, "table not moved to cleaning after payment", err)
			}
		}
	}

	s.logger.Info("payment_completed", fmt.Sprintf("Order %s paid via %s", paid.OrderNumber, in.Method), "", map[string]interface{}{
		"session_id": completed.ID,
		"order_id":   paid.ID,
		"amount":     in.AmountReceived,
		"change":     change,
	})

	s.broadcastPayment(ctx, completed)
	s.broadcastOrder(ctx, interfaces.EventOrderCompleted, paid)
	if s.notifier != nil {
		if _, err := s.notifier.Notify(ctx, paid.BranchID, domain.NotifyPaymentSuccess, "Payment received",
			fmt.Sprintf("Order %s paid %.2f via %s", paid.OrderNumber, paid.FinalAmount, in.Method), domain.TargetCashier); err != nil {
			s.logger.Error("notification_failed", "Failed to create payment notification", "", nil, err)
		}
	}
	return completed, nil
}

// Cancel abandons an active session. The order stays untouched; a billing
// table falls back to occupied so the order can be paid again later.
func (s *Service) Cancel(ctx context.Context, actor interfaces.Actor, sessionID string) (*domain.PaymentSession, error) {
	if !roleIn(paymentRoles, actor.Role) {
		return nil, domain.ErrAuthorizationDenied
	}
	sess, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.State.Active() {
		return nil, domain.ErrInvalidStateTransition
	}

	cancelled, err := s.repo.Cancel(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	o, err := s.orders.GetByID(ctx, sess.OrderID)
	if err == nil && o.Type == domain.OrderTypeDineIn && o.TableID != "" {
		if _, terr := s.tables.ReturnToOccupied(ctx, o.TableID); terr != nil {
			s.logger.Error("table_unbilling_failed", "Failed to return table to occupied", "", map[string]interface{}{
				"table_id": o.TableID,
			}, terr)
		}
	}

	s.logger.Info("payment_cancelled", "Payment session cancelled", "", map[string]interface{}{
		"session_id": sessionID,
	})
	return cancelled, nil
}

// RunSweeper expires abandoned initiated sessions when a TTL is configured.
// With a zero TTL an abandoned session blocks further payment attempts until
// cancelled or overridden.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if s.sessionTTL <= 0 {
		return
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Service) sweepOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.sessionTTL)
	expired, err := s.repo.CancelExpired(ctx, cutoff)
	if err != nil {
		s.logger.Error("payment_sweep_failed", "Failed to cancel expired payment sessions", "", nil, err)
		return
	}
	for _, sess := range expired {
		s.logger.Info("payment_session_expired", "Abandoned payment session cancelled", "", map[string]interface{}{
			"session_id": sess.ID,
			"order_id":   sess.OrderID,
		})
		if o, err := s.orders.GetByID(ctx, sess.OrderID); err == nil && o.Type == domain.OrderTypeDineIn && o.TableID != "" {
			if _, terr := s.tables.ReturnToOccupied(ctx, o.TableID); terr != nil {
				s.logger.Error("table_unbilling_failed", "Failed to return table to occupied after expiry", "", map[string]interface{}{
					"table_id": o.TableID,
				}, terr)
			}
		}
	}
}

func (s *Service) consistencyFault(ctx context.Context, o *domain.Order, msg string, cause error) error {
	s.logger.Error("consistency_fault", msg, "", map[string]interface{}{
		"order_id": o.ID,
	}, cause)
	if s.notifier != nil {
		_, _ = s.notifier.Notify(ctx, o.BranchID, domain.NotifySystemAlert, "Payment consistency fault",
			fmt.Sprintf("Order %s needs attention: %s", o.OrderNumber, msg), domain.TargetAll)
	}
	return fmt.Errorf("%s: %w", msg, domain.ErrConsistencyFault)
}

func (s *Service) broadcastPayment(ctx context.Context, sess *domain.PaymentSession) {
	env := interfaces.Envelope{
		Event:      interfaces.EventPaymentCompleted,
		BranchID:   sess.BranchID,
		EntityType: "payment_session",
		EntityID:   sess.ID,
		Version:    sess.Version,
		OccurredAt: time.Now().UTC(),
		Payment:    sess,
	}
	if err := s.publisher.PublishRole(ctx, domain.TargetAll, env); err != nil {
		s.logger.Error("event_publish_failed", "Failed to broadcast payment event", "", map[string]interface{}{
			"session_id": sess.ID,
		}, err)
	}
}

func (s *Service) broadcastOrder(ctx context.Context, event interfaces.EventName, o *domain.Order) {
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
			"order_id": o.ID,
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

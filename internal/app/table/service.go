package table

import (
	"context"
	"fmt"
	"time"

	"github.com/BekzhanKaspakov/mesa/internal/adapter/logger"
	"github.com/BekzhanKaspakov/mesa/internal/domain"
	"github.com/BekzhanKaspakov/mesa/internal/interfaces"

	"github.com/google/uuid"
)

// Service is the Table Registry: it owns table identity and occupancy state
// and serializes concurrent access to the physical resource. All status
// mutations go through conditional updates in the repository; this service
// adds role gating, event fan-out and the stale-reservation sweep.
type Service struct {
	repo          interfaces.TableRepository
	publisher     interfaces.EventPublisher
	logger        logger.Logger
	reserveTTL    time.Duration
	sweepInterval time.Duration
}

func NewService(repo interfaces.TableRepository, publisher interfaces.EventPublisher, lgr logger.Logger, reserveTTL, sweepInterval time.Duration) *Service {
	if sweepInterval <= 0 {
		sweepInterval = 30 * time.Second
	}
	return &Service{
		repo:          repo,
		publisher:     publisher,
		logger:        lgr,
		reserveTTL:    reserveTTL,
		sweepInterval: sweepInterval,
	}
}

func (s *Service) CreateTable(ctx context.Context, actor interfaces.Actor, number, capacity int) (*domain.Table, error) {
	if actor.Role != domain.RoleAdmin && actor.Role != domain.RoleSuperAdmin {
		return nil, domain.ErrAuthorizationDenied
	}
	t, err := domain.NewTable(actor.BranchID, number, capacity)
	if err != nil {
		return nil, err
	}
	t.ID = uuid.NewString()
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	s.broadcast(ctx, t)
	return t, nil
}

func (s *Service) ListTables(ctx context.Context, actor interfaces.Actor) ([]*domain.Table, error) {
	return s.repo.List(ctx, actor.BranchID)
}

// Reserve places a temporary actor-held hold on an available table. Two
// concurrent reserves resolve in the store: exactly one wins, the loser gets
// domain.ErrTableUnavailable.
func (s *Service) Reserve(ctx context.Context, actor interfaces.Actor, tableID string) (*domain.Table, error) {
	t, err := s.repo.Reserve(ctx, tableID, actor.ID, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	s.logger.Info("table_reserved", fmt.Sprintf("Table %d reserved", t.Number), "", map[string]interface{}{
		"table_id": t.ID,
		"actor":    actor.ID,
	})
	s.broadcast(ctx, t)
	return t, nil
}

func (s *Service) Release(ctx context.Context, actor interfaces.Actor, tableID string) (*domain.Table, error) {
	override := actor.Role == domain.RoleAdmin || actor.Role == domain.RoleSuperAdmin
	t, err := s.repo.Release(ctx, tableID, actor.ID, override)
	if err != nil {
		return nil, err
	}
	s.broadcast(ctx, t)
	return t, nil
}

// Occupy is invoked by the Order Ledger when a dine-in order is created
// against a reserved (or, for walk-ins, available) table.
func (s *Service) Occupy(ctx context.Context, tableID string) (*domain.Table, error) {
	t, err := s.repo.Occupy(ctx, tableID)
	if err != nil {
		return nil, err
	}
	s.broadcast(ctx, t)
	return t, nil
}

// EnterBilling is invoked by the Payment Session Controller so the table is
// not perceived as orderable while billing is underway.
func (s *Service) EnterBilling(ctx context.Context, tableID string) (*domain.Table, error) {
	t, err := s.repo.EnterBilling(ctx, tableID)
	if err != nil {
		return nil, err
	}
	s.broadcast(ctx, t)
	return t, nil
}

func (s *Service) EnterCleaning(ctx context.Context, tableID string) (*domain.Table, error) {
	t, err := s.repo.EnterCleaning(ctx, tableID)
	if err != nil {
		return nil, err
	}
	s.broadcast(ctx, t)
	return t, nil
}

// ReturnToOccupied moves a billing table back when a payment session is
// cancelled; the order is still active, just no longer in the payment flow.
func (s *Service) ReturnToOccupied(ctx context.Context, tableID string) (*domain.Table, error) {
	t, err := s.repo.ReturnToOccupied(ctx, tableID)
	if err != nil {
		return nil, err
	}
	s.broadcast(ctx, t)
	return t, nil
}

// FreeAfterCancel releases a table straight to available when its order is
// cancelled; no billing/cleaning intermediate step applies.
func (s *Service) FreeAfterCancel(ctx context.Context, tableID string) (*domain.Table, error) {
	t, err := s.repo.FreeAfterCancel(ctx, tableID)
	if err != nil {
		return nil, err
	}
	s.broadcast(ctx, t)
	return t, nil
}

func (s *Service) MarkClean(ctx context.Context, actor interfaces.Actor, tableID string) (*domain.Table, error) {
	t, err := s.repo.MarkClean(ctx, tableID)
	if err != nil {
		return nil, err
	}
	s.broadcast(ctx, t)
	return t, nil
}

// ForceReset is the admin-only escape hatch for stuck or orphaned sessions.
// It bypasses the normal status chain and is logged as a privileged override.
func (s *Service) ForceReset(ctx context.Context, actor interfaces.Actor, tableID string) (*domain.Table, error) {
	if actor.Role != domain.RoleAdmin && actor.Role != domain.RoleSuperAdmin {
		return nil, domain.ErrAuthorizationDenied
	}
	t, err := s.repo.ForceReset(ctx, tableID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("table_force_reset", fmt.Sprintf("Table %d force-reset by %s", t.Number, actor.ID), "", map[string]interface{}{
		"table_id": t.ID,
		"actor":    actor.ID,
		"role":     string(actor.Role),
		"override": true,
	})
	s.broadcast(ctx, t)
	return t, nil
}

// RunSweeper releases stale reservations on a schedule. The sweep is a
// background idempotent operation rather than a blocking check on read, so
// table-list queries never pay for expiry.
func (s *Service) RunSweeper(ctx context.Context) {
	if s.reserveTTL <= 0 {
		return
	}
	ticker := time.NewTicker(s.sweepInterval)
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
	cutoff := time.Now().UTC().Add(-s.reserveTTL)
	released, err := s.repo.ReleaseExpired(ctx, cutoff)
	if err != nil {
		s.logger.Error("reservation_sweep_failed", "Failed to release expired reservations", "", nil, err)
		return
	}
	for _, t := range released {
		s.logger.Info("reservation_expired", fmt.Sprintf("Reservation on table %d expired", t.Number), "", map[string]interface{}{
			"table_id": t.ID,
		})
		s.broadcast(ctx, t)
	}
}

func (s *Service) broadcast(ctx context.Context, t *domain.Table) {
	env := interfaces.Envelope{
		Event:      interfaces.EventTableUpdated,
		BranchID:   t.BranchID,
		EntityType: "table",
		EntityID:   t.ID,
		Version:    t.Version,
		OccurredAt: time.Now().UTC(),
		Table: &interfaces.TableDelta{
			ID:       t.ID,
			Status:   t.Status,
			LockedBy: t.LockedBy,
			Version:  t.Version,
		},
	}
	if err := s.publisher.PublishRole(ctx, domain.TargetAll, env); err != nil {
		s.logger.Error("event_publish_failed", "Failed to broadcast table update", "", map[string]interface{}{
			"table_id": t.ID,
		}, err)
	}
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BekzhanKaspakov/mesa/internal/domain"
	"github.com/BekzhanKaspakov/mesa/internal/interfaces"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type paymentRepository struct {
	db DB
}

func NewPaymentRepository(db DB) interfaces.PaymentRepository {
	return &paymentRepository{db: db}
}

const sessionColumns = `id, order_id, branch_id, state, method, transaction_id, amount_received, change, initiated_by, version, created_at, updated_at`

func scanSession(s scanner) (*domain.PaymentSession, error) {
	var p domain.PaymentSession
	err := s.Scan(&p.ID, &p.OrderID, &p.BranchID, &p.State, &p.Method, &p.TransactionID, &p.AmountReceived, &p.Change, &p.InitiatedBy, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create enforces the single-active-session invariant at insert time: the
// insert only lands when no initiated/processing session exists for the
// order. Two concurrent initiates resolve in the store, not in Go: under
// READ COMMITTED both can pass the NOT EXISTS subquery, so the partial
// unique index on active sessions catches the loser and that unique
// violation surfaces as the same conflict error.
func (r *paymentRepository) Create(ctx context.Context, p *domain.PaymentSession) error {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO payment_sessions (`+sessionColumns+`)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		WHERE NOT EXISTS (
			SELECT 1 FROM payment_sessions
			WHERE order_id = $2 AND state IN ('initiated', 'processing')
		)
	`, p.ID, p.OrderID, p.BranchID, p.State, p.Method, p.TransactionID, p.AmountReceived, p.Change, p.InitiatedBy, p.Version, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrPaymentSessionConflict
		}
		return fmt.Errorf("failed to insert payment session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPaymentSessionConflict
	}
	return nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (*domain.PaymentSession, error) {
	p, err := scanSession(r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM payment_sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load payment session: %w", err)
	}
	return p, nil
}

func (r *paymentRepository) FindActiveByOrder(ctx context.Context, orderID string) (*domain.PaymentSession, error) {
	p, err := scanSession(r.db.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM payment_sessions
		WHERE order_id = $1 AND state IN ('initiated', 'processing')
		LIMIT 1
	`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find active session: %w", err)
	}
	return p, nil
}

func (r *paymentRepository) Complete(ctx context.Context, id string, method domain.PaymentMethod, txnID string, amountReceived, change float64) (*domain.PaymentSession, error) {
	p, err := scanSession(r.db.QueryRow(ctx, `
		UPDATE payment_sessions
		SET state = 'completed', method = $1, transaction_id = $2, amount_received = $3, change = $4,
		    version = version + 1, updated_at = now()
		WHERE id = $5 AND state IN ('initiated', 'processing')
		RETURNING `+sessionColumns, method, txnID, amountReceived, change, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.stateConflict(ctx, id)
		}
		return nil, fmt.Errorf("failed to complete payment session: %w", err)
	}
	return p, nil
}

func (r *paymentRepository) Cancel(ctx context.Context, id string) (*domain.PaymentSession, error) {
	p, err := scanSession(r.db.QueryRow(ctx, `
		UPDATE payment_sessions
		SET state = 'cancelled', version = version + 1, updated_at = now()
		WHERE id = $1 AND state IN ('initiated', 'processing')
		RETURNING `+sessionColumns, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.stateConflict(ctx, id)
		}
		return nil, fmt.Errorf("failed to cancel payment session: %w", err)
	}
	return p, nil
}

func (r *paymentRepository) CancelExpired(ctx context.Context, cutoff time.Time) ([]*domain.PaymentSession, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE payment_sessions
		SET state = 'cancelled', version = version + 1, updated_at = now()
		WHERE state = 'initiated' AND created_at < $1
		RETURNING `+sessionColumns, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel expired sessions: %w", err)
	}
	defer rows.Close()

	var expired []*domain.PaymentSession
	for rows.Next() {
		p, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment session: %w", err)
		}
		expired = append(expired, p)
	}
	return expired, nil
}

func (r *paymentRepository) stateConflict(ctx context.Context, id string) error {
	var state string
	if err := r.db.QueryRow(ctx, `SELECT state FROM payment_sessions WHERE id = $1`, id).Scan(&state); err != nil {
		return domain.ErrNotFound
	}
	return domain.ErrInvalidStateTransition
}

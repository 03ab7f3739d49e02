package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BekzhanKaspakov/mesa/internal/domain"
	"github.com/BekzhanKaspakov/mesa/internal/interfaces"

	"github.com/jackc/pgx/v5"
)

// tableRepository serializes table occupancy through compare-and-swap
// updates: every transition is one conditional UPDATE keyed on the expected
// prior status, never read-then-write.
type tableRepository struct {
	db DB
}

func NewTableRepository(db DB) interfaces.TableRepository {
	return &tableRepository{db: db}
}

const tableColumns = `id, branch_id, number, capacity, status, locked_by, reserved_at, version, created_at, updated_at`

func scanTable(s scanner) (*domain.Table, error) {
	var t domain.Table
	err := s.Scan(&t.ID, &t.BranchID, &t.Number, &t.Capacity, &t.Status, &t.LockedBy, &t.ReservedAt, &t.Version, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tableRepository) Create(ctx context.Context, t *domain.Table) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO tables (`+tableColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, t.ID, t.BranchID, t.Number, t.Capacity, t.Status, t.LockedBy, t.ReservedAt, t.Version, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert table: %w", err)
	}
	return nil
}

func (r *tableRepository) GetByID(ctx context.Context, id string) (*domain.Table, error) {
	t, err := scanTable(r.db.QueryRow(ctx, `SELECT `+tableColumns+` FROM tables WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load table: %w", err)
	}
	return t, nil
}

func (r *tableRepository) List(ctx context.Context, branchID string) ([]*domain.Table, error) {
	rows, err := r.db.Query(ctx, `SELECT `+tableColumns+` FROM tables WHERE branch_id = $1 ORDER BY number`, branchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tables []*domain.Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func (r *tableRepository) Reserve(ctx context.Context, tableID, actor string, at time.Time) (*domain.Table, error) {
	t, err := scanTable(r.db.QueryRow(ctx, `
		UPDATE tables
		SET status = 'reserved', locked_by = $1, reserved_at = $2, version = version + 1, updated_at = now()
		WHERE id = $3 AND status = 'available'
		RETURNING `+tableColumns, actor, at, tableID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.unavailableOrMissing(ctx, tableID)
		}
		return nil, fmt.Errorf("failed to reserve table: %w", err)
	}
	return t, nil
}

func (r *tableRepository) Release(ctx context.Context, tableID, actor string, override bool) (*domain.Table, error) {
	t, err := scanTable(r.db.QueryRow(ctx, `
		UPDATE tables
		SET status = 'available', locked_by = '', reserved_at = NULL, version = version + 1, updated_at = now()
		WHERE id = $1 AND status = 'reserved' AND (locked_by = $2 OR $3)
		RETURNING `+tableColumns, tableID, actor, override))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.releaseConflict(ctx, tableID, actor)
		}
		return nil, fmt.Errorf("failed to release table: %w", err)
	}
	return t, nil
}

func (r *tableRepository) Occupy(ctx context.Context, tableID string) (*domain.Table, error) {
	return r.transition(ctx, tableID, domain.TableOccupied, []domain.TableStatus{domain.TableReserved, domain.TableAvailable})
}

func (r *tableRepository) EnterBilling(ctx context.Context, tableID string) (*domain.Table, error) {
	return r.transition(ctx, tableID, domain.TableBilling, []domain.TableStatus{domain.TableOccupied})
}

func (r *tableRepository) EnterCleaning(ctx context.Context, tableID string) (*domain.Table, error) {
	return r.transition(ctx, tableID, domain.TableCleaning, []domain.TableStatus{domain.TableBilling, domain.TableOccupied})
}

func (r *tableRepository) MarkClean(ctx context.Context, tableID string) (*domain.Table, error) {
	return r.transition(ctx, tableID, domain.TableAvailable, []domain.TableStatus{domain.TableCleaning})
}

func (r *tableRepository) FreeAfterCancel(ctx context.Context, tableID string) (*domain.Table, error) {
	return r.transition(ctx, tableID, domain.TableAvailable, []domain.TableStatus{domain.TableOccupied, domain.TableBilling})
}

func (r *tableRepository) ReturnToOccupied(ctx context.Context, tableID string) (*domain.Table, error) {
	return r.transition(ctx, tableID, domain.TableOccupied, []domain.TableStatus{domain.TableBilling})
}

func (r *tableRepository) ForceReset(ctx context.Context, tableID string) (*domain.Table, error) {
	t, err := scanTable(r.db.QueryRow(ctx, `
		UPDATE tables
		SET status = 'available', locked_by = '', reserved_at = NULL, version = version + 1, updated_at = now()
		WHERE id = $1
		RETURNING `+tableColumns, tableID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to force-reset table: %w", err)
	}
	return t, nil
}

func (r *tableRepository) ReleaseExpired(ctx context.Context, cutoff time.Time) ([]*domain.Table, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE tables
		SET status = 'available', locked_by = '', reserved_at = NULL, version = version + 1, updated_at = now()
		WHERE status = 'reserved' AND reserved_at < $1
		RETURNING `+tableColumns, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to release expired reservations: %w", err)
	}
	defer rows.Close()

	var released []*domain.Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		released = append(released, t)
	}
	return released, nil
}

func (r *tableRepository) transition(ctx context.Context, tableID string, to domain.TableStatus, expect []domain.TableStatus) (*domain.Table, error) {
	expectStr := make([]string, len(expect))
	for i, s := range expect {
		expectStr[i] = string(s)
	}
	// Leaving the reserved state always clears the hold.
	t, err := scanTable(r.db.QueryRow(ctx, `
		UPDATE tables
		SET status = $1, locked_by = '', reserved_at = NULL, version = version + 1, updated_at = now()
		WHERE id = $2 AND status = ANY($3)
		RETURNING `+tableColumns, to, tableID, expectStr))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.unavailableOrMissing(ctx, tableID)
		}
		return nil, fmt.Errorf("failed to update table status: %w", err)
	}
	return t, nil
}

func (r *tableRepository) unavailableOrMissing(ctx context.Context, tableID string) error {
	var status string
	if err := r.db.QueryRow(ctx, `SELECT status FROM tables WHERE id = $1`, tableID).Scan(&status); err != nil {
		return domain.ErrNotFound
	}
	return domain.ErrTableUnavailable
}

func (r *tableRepository) releaseConflict(ctx context.Context, tableID, actor string) error {
	var status, lockedBy string
	if err := r.db.QueryRow(ctx, `SELECT status, locked_by FROM tables WHERE id = $1`, tableID).Scan(&status, &lockedBy); err != nil {
		return domain.ErrNotFound
	}
	if status == string(domain.TableReserved) && lockedBy != actor {
		return domain.ErrAuthorizationDenied
	}
	return domain.ErrTableUnavailable
}

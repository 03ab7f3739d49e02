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

type orderRepository struct {
	db DB
}

func NewOrderRepository(db DB) interfaces.OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `id, order_number, token_number, branch_id, created_by, order_type, table_id,
	status, kot_status, payment_status, payment_method, paid_at,
	total_amount, tax_rate, tax, discount, final_amount,
	cancelled_by, cancel_reason, version, created_at, updated_at`

const itemColumns = `id, menu_item_ref, name, price, quantity, notes, status, cancelled_by, cancel_reason`

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(s scanner) (*domain.Order, error) {
	var o domain.Order
	err := s.Scan(
		&o.ID, &o.OrderNumber, &o.TokenNumber, &o.BranchID, &o.CreatedBy, &o.Type, &o.TableID,
		&o.Status, &o.KOTStatus, &o.PaymentStatus, &o.PaymentMethod, &o.PaidAt,
		&o.TotalAmount, &o.TaxRate, &o.Tax, &o.Discount, &o.FinalAmount,
		&o.CancelledBy, &o.CancelReason, &o.Version, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepository) Create(ctx context.Context, o *domain.Order) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
	`
	_, err = tx.Exec(ctx, query,
		o.ID, o.OrderNumber, o.TokenNumber, o.BranchID, o.CreatedBy, o.Type, o.TableID,
		o.Status, o.KOTStatus, o.PaymentStatus, o.PaymentMethod, o.PaidAt,
		o.TotalAmount, o.TaxRate, o.Tax, o.Discount, o.FinalAmount,
		o.CancelledBy, o.CancelReason, o.Version, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (order_id, position, ` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	for i := range o.Items {
		it := &o.Items[i]
		_, err = tx.Exec(ctx, itemQuery,
			o.ID, i, it.ID, it.MenuItemRef, it.Name, it.Price, it.Quantity, it.Notes,
			it.Status, it.CancelledBy, it.CancelReason,
		)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepository) loadItems(ctx context.Context, o *domain.Order) error {
	rows, err := r.db.Query(ctx, `SELECT `+itemColumns+` FROM order_items WHERE order_id = $1 ORDER BY position`, o.ID)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	o.Items = o.Items[:0]
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.MenuItemRef, &it.Name, &it.Price, &it.Quantity, &it.Notes, &it.Status, &it.CancelledBy, &it.CancelReason); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	return nil
}

func (r *orderRepository) List(ctx context.Context, f interfaces.OrderFilter) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE branch_id = $1`
	args := []any{f.BranchID}

	if f.Status != "" {
		args = append(args, f.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		query += fmt.Sprintf(" AND order_type = $%d", len(args))
	}
	if f.TableID != "" {
		args = append(args, f.TableID)
		query += fmt.Sprintf(" AND table_id = $%d", len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	args = append(args, f.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	for _, o := range orders {
		if err := r.loadItems(ctx, o); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, orderID string, expect []domain.OrderStatus, to domain.OrderStatus, cancelledBy, cancelReason string) (*domain.Order, error) {
	var (
		query string
		args  []any
	)
	if to == domain.OrderStatusCancelled {
		// Cancellation also closes the kitchen ticket.
		query = `
			UPDATE orders
			SET status = $1, kot_status = 'closed', cancelled_by = $2, cancel_reason = $3,
			    version = version + 1, updated_at = now()
			WHERE id = $4 AND status = ANY($5)
			RETURNING ` + orderColumns
		args = []any{to, cancelledBy, cancelReason, orderID, statusStrings(expect)}
	} else {
		query = `
			UPDATE orders
			SET status = $1, version = version + 1, updated_at = now()
			WHERE id = $2 AND status = ANY($3)
			RETURNING ` + orderColumns
		args = []any{to, orderID, statusStrings(expect)}
	}

	o, err := scanOrder(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.conflictOrMissing(ctx, orderID)
		}
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepository) UpdateItemStatus(ctx context.Context, orderID, itemID string, expect []domain.ItemStatus, to domain.ItemStatus, cancelledBy, cancelReason string) (*domain.Order, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the order document so the totals below are computed against a
	// stable item set.
	o, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}

	expectStr := make([]string, len(expect))
	for i, s := range expect {
		expectStr[i] = string(s)
	}
	tag, err := tx.Exec(ctx, `
		UPDATE order_items
		SET status = $1, cancelled_by = $2, cancel_reason = $3
		WHERE id = $4 AND order_id = $5 AND status = ANY($6)
	`, to, cancelledBy, cancelReason, itemID, orderID, expectStr)
	if err != nil {
		return nil, fmt.Errorf("failed to update order item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrInvalidStateTransition
	}

	rows, err := tx.Query(ctx, `SELECT `+itemColumns+` FROM order_items WHERE order_id = $1 ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	o.Items = o.Items[:0]
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.MenuItemRef, &it.Name, &it.Price, &it.Quantity, &it.Notes, &it.Status, &it.CancelledBy, &it.CancelReason); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	rows.Close()

	o.RecalculateTotals()
	o.Version++
	o.UpdatedAt = time.Now().UTC()

	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET total_amount = $1, tax = $2, final_amount = $3, version = $4, updated_at = $5
		WHERE id = $6
	`, o.TotalAmount, o.Tax, o.FinalAmount, o.Version, o.UpdatedAt, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to update order totals: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit item update: %w", err)
	}
	return o, nil
}

func (r *orderRepository) MarkPaid(ctx context.Context, orderID string, method domain.PaymentMethod, paidAt time.Time) (*domain.Order, error) {
	query := `
		UPDATE orders
		SET payment_status = 'paid', payment_method = $1, paid_at = $2,
		    status = 'completed', kot_status = 'closed',
		    version = version + 1, updated_at = now()
		WHERE id = $3 AND payment_status = 'unpaid' AND status <> 'cancelled'
		RETURNING ` + orderColumns

	o, err := scanOrder(r.db.QueryRow(ctx, query, method, paidAt, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.paidConflict(ctx, orderID)
		}
		return nil, fmt.Errorf("failed to mark order paid: %w", err)
	}
	if err := r.loadItems(ctx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepository) HasActiveOrderForTable(ctx context.Context, tableID string) (bool, error) {
	var busy bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM orders
			WHERE table_id = $1 AND status NOT IN ('completed', 'cancelled')
		)
	`, tableID).Scan(&busy)
	if err != nil {
		return false, fmt.Errorf("failed to check active orders: %w", err)
	}
	return busy, nil
}

// NextOrderNumber draws from an atomic per-branch daily counter, so two
// concurrent creates (or two branches on the same day) never pick the same
// number.
func (r *orderRepository) NextOrderNumber(ctx context.Context, branchID string) (string, error) {
	now := time.Now().UTC()

	var seq int
	err := r.db.QueryRow(ctx, `
		INSERT INTO order_counters (branch_id, day, counter)
		VALUES ($1, $2, 1)
		ON CONFLICT (branch_id, day) DO UPDATE SET counter = order_counters.counter + 1
		RETURNING counter
	`, branchID, now.Format("2006-01-02")).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("failed to advance order counter: %w", err)
	}
	return fmt.Sprintf("ORD_%s_%03d", now.Format("20060102"), seq), nil
}

// conflictOrMissing distinguishes a lost CAS from a missing order.
func (r *orderRepository) conflictOrMissing(ctx context.Context, orderID string) error {
	var status string
	err := r.db.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status)
	if err != nil {
		return domain.ErrNotFound
	}
	return domain.ErrInvalidStateTransition
}

func (r *orderRepository) paidConflict(ctx context.Context, orderID string) error {
	var paymentStatus string
	err := r.db.QueryRow(ctx, `SELECT payment_status FROM orders WHERE id = $1`, orderID).Scan(&paymentStatus)
	if err != nil {
		return domain.ErrNotFound
	}
	if paymentStatus == string(domain.PaymentPaid) {
		return domain.ErrAlreadyPaid
	}
	return domain.ErrInvalidStateTransition
}

func statusStrings(expect []domain.OrderStatus) []string {
	out := make([]string, len(expect))
	for i, s := range expect {
		out[i] = string(s)
	}
	return out
}

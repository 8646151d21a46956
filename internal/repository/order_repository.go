package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aanampa/shm-payment-orders/internal/apperr"
	"github.com/aanampa/shm-payment-orders/internal/database"
)

// uniqueViolation is the Postgres error code raised by the partial unique
// indexes guarding duplicate orders and double-linked invoices.
const uniqueViolation = "23505"

// OrderRepository persists payment order headers and membership links.
// All writes happen inside a transaction supplied by the caller.
type OrderRepository struct{}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{}
}

// ExistsActive reports whether a live (active, non-rejected) order already
// covers the (site, bank, liquidation code) key.
func (r *OrderRepository) ExistsActive(ctx context.Context, q database.Querier, siteID, bankID int64, liquidationCode string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM payment_orders
			WHERE site_id = $1 AND bank_id = $2 AND liquidation_code = $3
			  AND lifecycle_state = 'ACTIVE'
			  AND approval_state <> 'REJECTED'
		)
	`

	var exists bool
	if err := q.QueryRow(ctx, query, siteID, bankID, liquidationCode).Scan(&exists); err != nil {
		return false, apperr.Wrap(err, apperr.CodeInternal, "failed to check for existing order")
	}
	return exists, nil
}

// NextOrderNumber allocates the next human-readable order number from the
// site/bank-scoped sequence. Must run inside the creation transaction.
func (r *OrderRepository) NextOrderNumber(ctx context.Context, q database.Querier, siteID, bankID int64) (string, error) {
	query := `
		INSERT INTO payment_order_sequences (site_id, bank_id, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (site_id, bank_id)
		DO UPDATE SET last_value = payment_order_sequences.last_value + 1
		RETURNING last_value
	`

	var n int64
	if err := q.QueryRow(ctx, query, siteID, bankID).Scan(&n); err != nil {
		return "", apperr.Wrap(err, apperr.CodeInternal, "failed to allocate order number")
	}
	return fmt.Sprintf("OP-%03d-%03d-%06d", siteID, bankID, n), nil
}

// InsertHeader inserts the order header. The guid is generated
// application-side; created_at comes from the database clock.
func (r *OrderRepository) InsertHeader(ctx context.Context, q database.Querier, order *PaymentOrder) error {
	order.GUID = uuid.NewString()

	query := `
		INSERT INTO payment_orders
		    (guid, order_number, site_id, bank_id, liquidation_code,
		     consumption_amount, discount_amount, subtotal_amount,
		     withholding_amount, tax_amount, total_amount,
		     invoice_count, liquidation_count,
		     approval_state, current_level, total_levels,
		     lifecycle_state, created_by)
		VALUES ($1, $2, $3, $4, $5,
		        $6, $7, $8,
		        $9, $10, $11,
		        $12, $13,
		        $14, $15, $16,
		        $17, $18)
		RETURNING id, created_at, updated_at
	`

	err := q.QueryRow(ctx, query,
		order.GUID,
		order.OrderNumber,
		order.SiteID,
		order.BankID,
		order.LiquidationCode,
		order.Totals.ConsumptionAmount,
		order.Totals.DiscountAmount,
		order.Totals.SubtotalAmount,
		order.Totals.WithholdingAmount,
		order.Totals.TaxAmount,
		order.Totals.TotalAmount,
		order.Totals.InvoiceCount,
		order.Totals.LiquidationCount,
		order.ApprovalState,
		order.CurrentLevel,
		order.TotalLevels,
		order.Lifecycle,
		order.CreatedBy,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)

	if isUniqueViolation(err) {
		return apperr.New(apperr.CodeAlreadyBatched, "an active payment order already exists for this liquidation group")
	}
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to create payment order")
	}
	return nil
}

// InsertLinks binds each candidate invoice to the order. The partial unique
// index on active links rejects an invoice already bound to another active
// order; the whole transaction rolls back in that case.
func (r *OrderRepository) InsertLinks(ctx context.Context, q database.Querier, orderID int64, invoiceIDs []int64, createdBy int64) error {
	query := `
		INSERT INTO payment_order_invoices (guid, payment_order_id, invoice_id, is_active, created_by)
		VALUES ($1, $2, $3, TRUE, $4)
	`

	for _, invoiceID := range invoiceIDs {
		_, err := q.Exec(ctx, query, uuid.NewString(), orderID, invoiceID, createdBy)
		if isUniqueViolation(err) {
			return apperr.Newf(apperr.CodeAlreadyBatched, "invoice %d is already linked to an active payment order", invoiceID)
		}
		if err != nil {
			return apperr.Wrap(err, apperr.CodeInternal, "failed to link invoice to payment order")
		}
	}
	return nil
}

const orderColumns = `
	id, guid, order_number, site_id, bank_id, liquidation_code,
	consumption_amount, discount_amount, subtotal_amount,
	withholding_amount, tax_amount, total_amount,
	invoice_count, liquidation_count,
	approval_state, current_level, total_levels,
	lifecycle_state, created_by, created_at, updated_by, updated_at
`

// GetByGUID retrieves an order header by external identifier.
func (r *OrderRepository) GetByGUID(ctx context.Context, q database.Querier, guid string) (*PaymentOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM payment_orders WHERE guid = $1`
	return r.scanOrder(q.QueryRow(ctx, query, guid), guid)
}

// GetByGUIDForUpdate locks the order row for the rest of the transaction.
// This is the serialization point for competing decisions: the second of
// two concurrent calls blocks here and then observes the first one's write.
func (r *OrderRepository) GetByGUIDForUpdate(ctx context.Context, q database.Querier, guid string) (*PaymentOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM payment_orders WHERE guid = $1 FOR UPDATE`
	return r.scanOrder(q.QueryRow(ctx, query, guid), guid)
}

// GetMembers returns the order's currently active linked invoices with
// payee display data for the detail view.
func (r *OrderRepository) GetMembers(ctx context.Context, q database.Querier, orderID int64) ([]LiquidationInvoice, error) {
	query := `
		SELECT i.id, i.guid, i.site_id, i.payee_id, p.full_name, o.bank_id,
		       i.liquidation_code, i.liquidation_number, i.liquidation_period,
		       i.consumption_amount, i.discount_amount, i.subtotal_amount,
		       i.withholding_amount, i.tax_amount, i.total_amount
		FROM payment_order_invoices l
		JOIN payment_orders o ON o.id = l.payment_order_id
		JOIN invoice_ledger i ON i.id = l.invoice_id
		JOIN payees p ON p.id = i.payee_id
		WHERE l.payment_order_id = $1 AND l.is_active
		ORDER BY i.id
	`

	rows, err := q.Query(ctx, query, orderID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to get order members")
	}
	defer rows.Close()

	members := make([]LiquidationInvoice, 0)
	for rows.Next() {
		var m LiquidationInvoice
		if err := rows.Scan(&m.ID, &m.GUID, &m.SiteID, &m.PayeeID, &m.PayeeName, &m.BankID,
			&m.LiquidationCode, &m.LiquidationNumber, &m.LiquidationPeriod,
			&m.ConsumptionAmount, &m.DiscountAmount, &m.SubtotalAmount,
			&m.WithholdingAmount, &m.TaxAmount, &m.TotalAmount); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan order member")
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// GetPendingForUser is the approver inbox: non-terminal active orders whose
// current pending level's snapshotted user set contains userID. Only the
// current level is consulted, never the full chain.
func (r *OrderRepository) GetPendingForUser(ctx context.Context, q database.Querier, userID int64) ([]OrderSummary, error) {
	query := `
		SELECT o.guid, o.order_number, o.site_id, s.name, o.bank_id, b.name,
		       o.liquidation_code, o.total_amount, o.invoice_count,
		       o.approval_state, o.current_level, o.total_levels, o.created_at
		FROM payment_orders o
		JOIN payment_order_approvals a
		  ON a.payment_order_id = o.id AND a.position = o.current_level
		JOIN sites s ON s.id = o.site_id
		JOIN banks b ON b.id = o.bank_id
		WHERE o.lifecycle_state = 'ACTIVE'
		  AND o.approval_state IN ('PENDING', 'PARTIALLY_APPROVED')
		  AND a.status = 'PENDING'
		  AND a.is_active
		  AND $1 = ANY (a.authorized_users)
		ORDER BY o.created_at ASC
	`

	rows, err := q.Query(ctx, query, userID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to get pending orders for user")
	}
	defer rows.Close()

	summaries := make([]OrderSummary, 0)
	for rows.Next() {
		var s OrderSummary
		if err := rows.Scan(&s.GUID, &s.OrderNumber, &s.SiteID, &s.SiteName, &s.BankID, &s.BankName,
			&s.LiquidationCode, &s.TotalAmount, &s.InvoiceCount,
			&s.ApprovalState, &s.CurrentLevel, &s.TotalLevels, &s.CreatedAt); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan order summary")
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// AdvanceLevel moves the pending pointer to nextLevel and marks the order
// partially approved.
func (r *OrderRepository) AdvanceLevel(ctx context.Context, q database.Querier, orderID int64, nextLevel int, updatedBy int64) error {
	query := `
		UPDATE payment_orders
		SET current_level  = $2,
		    approval_state = 'PARTIALLY_APPROVED',
		    updated_by     = $3,
		    updated_at     = NOW()
		WHERE id = $1
		RETURNING id
	`

	var id int64
	err := q.QueryRow(ctx, query, orderID, nextLevel, updatedBy).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("payment order", fmt.Sprint(orderID))
	}
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to advance approval level")
	}
	return nil
}

// SetTerminal moves the order to APPROVED or REJECTED.
func (r *OrderRepository) SetTerminal(ctx context.Context, q database.Querier, orderID int64, state ApprovalState, updatedBy int64) error {
	query := `
		UPDATE payment_orders
		SET approval_state = $2,
		    updated_by     = $3,
		    updated_at     = NOW()
		WHERE id = $1
		RETURNING id
	`

	var id int64
	err := q.QueryRow(ctx, query, orderID, state, updatedBy).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("payment order", fmt.Sprint(orderID))
	}
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to set terminal state")
	}
	return nil
}

// SoftDelete marks the order's lifecycle Deleted. The workflow state is
// left untouched.
func (r *OrderRepository) SoftDelete(ctx context.Context, q database.Querier, orderID int64, updatedBy int64) error {
	query := `
		UPDATE payment_orders
		SET lifecycle_state = 'DELETED',
		    updated_by      = $2,
		    updated_at      = NOW()
		WHERE id = $1
		RETURNING id
	`

	var id int64
	err := q.QueryRow(ctx, query, orderID, updatedBy).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("payment order", fmt.Sprint(orderID))
	}
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to soft-delete payment order")
	}
	return nil
}

// ReleaseLinks deactivates the order's membership rows so the invoices can
// be batched again.
func (r *OrderRepository) ReleaseLinks(ctx context.Context, q database.Querier, orderID int64, updatedBy int64) error {
	query := `
		UPDATE payment_order_invoices
		SET is_active  = FALSE,
		    updated_by = $2,
		    updated_at = NOW()
		WHERE payment_order_id = $1 AND is_active
	`

	if _, err := q.Exec(ctx, query, orderID, updatedBy); err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to release order links")
	}
	return nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

type orderScanner interface {
	Scan(dest ...any) error
}

func (r *OrderRepository) scanOrder(row orderScanner, guid string) (*PaymentOrder, error) {
	o := &PaymentOrder{}
	err := row.Scan(
		&o.ID,
		&o.GUID,
		&o.OrderNumber,
		&o.SiteID,
		&o.BankID,
		&o.LiquidationCode,
		&o.Totals.ConsumptionAmount,
		&o.Totals.DiscountAmount,
		&o.Totals.SubtotalAmount,
		&o.Totals.WithholdingAmount,
		&o.Totals.TaxAmount,
		&o.Totals.TotalAmount,
		&o.Totals.InvoiceCount,
		&o.Totals.LiquidationCount,
		&o.ApprovalState,
		&o.CurrentLevel,
		&o.TotalLevels,
		&o.Lifecycle,
		&o.CreatedBy,
		&o.CreatedAt,
		&o.UpdatedBy,
		&o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("payment order", guid)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to get payment order")
	}
	return o, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

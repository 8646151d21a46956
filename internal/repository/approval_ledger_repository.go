package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aanampa/shm-payment-orders/internal/apperr"
	"github.com/aanampa/shm-payment-orders/internal/database"
)

// ApprovalLedgerRepository manages the per-order approval ledger: one row
// per resolved chain level, materialized at order creation, append-only
// while the order is non-terminal.
type ApprovalLedgerRepository struct{}

// NewApprovalLedgerRepository creates a new ApprovalLedgerRepository.
func NewApprovalLedgerRepository() *ApprovalLedgerRepository {
	return &ApprovalLedgerRepository{}
}

// InsertChain materializes the resolved chain for an order: the first row
// PENDING, the rest NOT_STARTED. The authorized user sets are snapshotted
// so later profile edits never change this chain.
func (r *ApprovalLedgerRepository) InsertChain(ctx context.Context, q database.Querier, orderID int64, levels []ApprovalChainLevel, createdBy int64) error {
	query := `
		INSERT INTO payment_order_approvals
		    (guid, payment_order_id, position, level, profile_name,
		     authorized_users, status, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8)
	`

	for i, level := range levels {
		status := LedgerNotStarted
		if i == 0 {
			status = LedgerPending
		}
		_, err := q.Exec(ctx, query,
			uuid.NewString(), orderID, i+1, level.Level, level.ProfileName,
			level.AuthorizedUsers, status, createdBy)
		if err != nil {
			return apperr.Wrap(err, apperr.CodeInternal, "failed to materialize approval chain")
		}
	}
	return nil
}

const ledgerColumns = `
	id, guid, payment_order_id, position, level, profile_name,
	authorized_users, status, decided_by, decided_at, comment,
	is_active, created_at, updated_at
`

// GetByOrder returns the full ledger for an order ordered by position.
func (r *ApprovalLedgerRepository) GetByOrder(ctx context.Context, q database.Querier, orderID int64) ([]ApprovalLedgerRow, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM payment_order_approvals
		WHERE payment_order_id = $1
		ORDER BY position ASC
	`

	rows, err := q.Query(ctx, query, orderID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to get approval ledger")
	}
	defer rows.Close()

	ledger := make([]ApprovalLedgerRow, 0)
	for rows.Next() {
		row, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		ledger = append(ledger, *row)
	}
	return ledger, rows.Err()
}

// Decide records the outcome for a ledger row. The status guard makes the
// write race-safe: a row decided by a concurrent transaction no longer
// matches, and the loser observes AlreadyDecided.
func (r *ApprovalLedgerRepository) Decide(ctx context.Context, q database.Querier, rowID int64, status LedgerStatus, decidedBy int64, comment *string) error {
	query := `
		UPDATE payment_order_approvals
		SET status     = $2,
		    decided_by = $3,
		    decided_at = NOW(),
		    comment    = $4,
		    updated_by = $3,
		    updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'
		RETURNING id
	`

	var id int64
	err := q.QueryRow(ctx, query, rowID, status, decidedBy, comment).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.New(apperr.CodeAlreadyDecided, "approval level has already been decided")
	}
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to record approval decision")
	}
	return nil
}

// ActivateLevel moves the row at position from NOT_STARTED to PENDING.
func (r *ApprovalLedgerRepository) ActivateLevel(ctx context.Context, q database.Querier, orderID int64, position int) error {
	query := `
		UPDATE payment_order_approvals
		SET status     = 'PENDING',
		    updated_at = NOW()
		WHERE payment_order_id = $1 AND position = $2 AND status = 'NOT_STARTED'
		RETURNING id
	`

	var id int64
	err := q.QueryRow(ctx, query, orderID, position).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("approval level", fmt.Sprintf("order %d position %d", orderID, position))
	}
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "failed to activate approval level")
	}
	return nil
}

// ── scan helper ──────────────────────────────────────────────────────────────

type ledgerScanner interface {
	Scan(dest ...any) error
}

func (r *ApprovalLedgerRepository) scanRow(sc ledgerScanner) (*ApprovalLedgerRow, error) {
	row := &ApprovalLedgerRow{}
	err := sc.Scan(
		&row.ID,
		&row.GUID,
		&row.PaymentOrderID,
		&row.Position,
		&row.Level,
		&row.ProfileName,
		&row.AuthorizedUsers,
		&row.Status,
		&row.DecidedBy,
		&row.DecidedAt,
		&row.Comment,
		&row.IsActive,
		&row.CreatedAt,
		&row.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan approval ledger row")
	}
	return row, nil
}

package repository

import (
	"context"

	"github.com/aanampa/shm-payment-orders/internal/apperr"
	"github.com/aanampa/shm-payment-orders/internal/database"
)

// LiquidationRepository reads the liquidation view: active invoices already
// marked liquidated upstream, joined to each payee's primary bank account.
// The primary account is deterministically the lowest-id active account.
// Read-only; the invoice ledger is owned by the upstream lifecycle.
type LiquidationRepository struct{}

// NewLiquidationRepository creates a new LiquidationRepository.
func NewLiquidationRepository() *LiquidationRepository {
	return &LiquidationRepository{}
}

// primaryAccountJoin resolves the bank anchoring each payee's batch.
const primaryAccountJoin = `
	JOIN LATERAL (
		SELECT a.bank_id
		FROM payee_bank_accounts a
		WHERE a.payee_id = i.payee_id AND a.is_active
		ORDER BY a.id ASC
		LIMIT 1
	) acct ON TRUE
`

// ListGroups returns payment-order candidates grouped by
// (site, liquidation code, bank), restricted to active liquidated invoices.
func (r *LiquidationRepository) ListGroups(ctx context.Context, q database.Querier, siteID int64, bankID *int64) ([]LiquidationGroup, error) {
	f := &condSet{}
	f.add("i.site_id = $%d", siteID)
	if bankID != nil {
		f.add("acct.bank_id = $%d", *bankID)
	}

	query := `
		SELECT i.site_id, i.liquidation_code, acct.bank_id, b.name,
		       COUNT(*), COALESCE(SUM(i.total_amount), 0)
		FROM invoice_ledger i
	` + primaryAccountJoin + `
		JOIN banks b ON b.id = acct.bank_id
		WHERE i.is_active AND i.state = 'LIQUIDATED' AND ` + f.where() + `
		GROUP BY i.site_id, i.liquidation_code, acct.bank_id, b.name
		ORDER BY i.liquidation_code, acct.bank_id
	`

	rows, err := q.Query(ctx, query, f.args...)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list liquidation groups")
	}
	defer rows.Close()

	groups := make([]LiquidationGroup, 0)
	for rows.Next() {
		var g LiquidationGroup
		if err := rows.Scan(&g.SiteID, &g.LiquidationCode, &g.BankID, &g.BankName,
			&g.InvoiceCount, &g.TotalAmount); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan liquidation group")
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// ListMembers returns the concrete candidate invoices for a chosen group.
func (r *LiquidationRepository) ListMembers(ctx context.Context, q database.Querier, siteID int64, liquidationCode string, bankID *int64) ([]LiquidationInvoice, error) {
	return r.listMembers(ctx, q, siteID, liquidationCode, bankID, false)
}

// ListMembersForUpdate is ListMembers with the invoice rows locked, so an
// invoice cannot be reverted upstream while it is being batched.
func (r *LiquidationRepository) ListMembersForUpdate(ctx context.Context, q database.Querier, siteID int64, liquidationCode string, bankID *int64) ([]LiquidationInvoice, error) {
	return r.listMembers(ctx, q, siteID, liquidationCode, bankID, true)
}

func (r *LiquidationRepository) listMembers(ctx context.Context, q database.Querier, siteID int64, liquidationCode string, bankID *int64, forUpdate bool) ([]LiquidationInvoice, error) {
	f := &condSet{}
	f.add("i.site_id = $%d", siteID)
	f.add("i.liquidation_code = $%d", liquidationCode)
	if bankID != nil {
		f.add("acct.bank_id = $%d", *bankID)
	}

	query := `
		SELECT i.id, i.guid, i.site_id, i.payee_id, p.full_name, acct.bank_id,
		       i.liquidation_code, i.liquidation_number, i.liquidation_period,
		       i.consumption_amount, i.discount_amount, i.subtotal_amount,
		       i.withholding_amount, i.tax_amount, i.total_amount
		FROM invoice_ledger i
		JOIN payees p ON p.id = i.payee_id
	` + primaryAccountJoin + `
		WHERE i.is_active AND i.state = 'LIQUIDATED' AND ` + f.where() + `
		ORDER BY i.id
	`
	if forUpdate {
		query += " FOR UPDATE OF i"
	}

	rows, err := q.Query(ctx, query, f.args...)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to list liquidation members")
	}
	defer rows.Close()

	members := make([]LiquidationInvoice, 0)
	for rows.Next() {
		var m LiquidationInvoice
		if err := rows.Scan(&m.ID, &m.GUID, &m.SiteID, &m.PayeeID, &m.PayeeName, &m.BankID,
			&m.LiquidationCode, &m.LiquidationNumber, &m.LiquidationPeriod,
			&m.ConsumptionAmount, &m.DiscountAmount, &m.SubtotalAmount,
			&m.WithholdingAmount, &m.TaxAmount, &m.TotalAmount); err != nil {
			return nil, apperr.Wrap(err, apperr.CodeInternal, "failed to scan liquidation member")
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

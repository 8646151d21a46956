package repository

import (
	"time"

	"github.com/shopspring/decimal"
)

// ── Workflow and lifecycle states ────────────────────────────────────────────

// ApprovalState is the payment order's position in the approval chain.
type ApprovalState string

const (
	StatePending           ApprovalState = "PENDING"
	StatePartiallyApproved ApprovalState = "PARTIALLY_APPROVED"
	StateApproved          ApprovalState = "APPROVED"
	StateRejected          ApprovalState = "REJECTED"
)

// IsTerminal reports whether no further decisions are accepted.
func (s ApprovalState) IsTerminal() bool {
	return s == StateApproved || s == StateRejected
}

// LifecycleState is the soft-delete flag, kept apart from the workflow
// state so a cancelled order is never conflated with a rejected one.
type LifecycleState string

const (
	LifecycleActive  LifecycleState = "ACTIVE"
	LifecycleDeleted LifecycleState = "DELETED"
)

// LedgerStatus is the status of one approval-ledger row.
type LedgerStatus string

const (
	LedgerNotStarted LedgerStatus = "NOT_STARTED"
	LedgerPending    LedgerStatus = "PENDING"
	LedgerApproved   LedgerStatus = "APPROVED"
	LedgerRejected   LedgerStatus = "REJECTED"
)

// ── Liquidation view ─────────────────────────────────────────────────────────

// LiquidationGroup is one payment-order candidate: liquidated invoices
// sharing (site, liquidation code, bank).
type LiquidationGroup struct {
	SiteID          int64
	LiquidationCode string
	BankID          int64
	BankName        string
	InvoiceCount    int
	TotalAmount     decimal.Decimal
}

// LiquidationInvoice is one liquidated invoice row joined to the payee's
// primary bank account. Liquidation code/number/period are assigned
// upstream and consumed as given.
type LiquidationInvoice struct {
	ID                int64
	GUID              string
	SiteID            int64
	PayeeID           int64
	PayeeName         string
	BankID            int64
	LiquidationCode   string
	LiquidationNumber string
	LiquidationPeriod string
	ConsumptionAmount decimal.Decimal
	DiscountAmount    decimal.Decimal
	SubtotalAmount    decimal.Decimal
	WithholdingAmount decimal.Decimal
	TaxAmount         decimal.Decimal
	TotalAmount       decimal.Decimal
}

// ── Payment order aggregate ──────────────────────────────────────────────────

// OrderTotals are the aggregated monetary components and counts of a
// payment order. The header must always equal the sum over the order's
// currently active linked invoices.
type OrderTotals struct {
	ConsumptionAmount decimal.Decimal
	DiscountAmount    decimal.Decimal
	SubtotalAmount    decimal.Decimal
	WithholdingAmount decimal.Decimal
	TaxAmount         decimal.Decimal
	TotalAmount       decimal.Decimal
	InvoiceCount      int
	LiquidationCount  int
}

// SumCandidates computes the order totals over a candidate invoice set.
func SumCandidates(candidates []LiquidationInvoice) OrderTotals {
	var t OrderTotals
	groups := make(map[string]struct{})
	for _, c := range candidates {
		t.ConsumptionAmount = t.ConsumptionAmount.Add(c.ConsumptionAmount)
		t.DiscountAmount = t.DiscountAmount.Add(c.DiscountAmount)
		t.SubtotalAmount = t.SubtotalAmount.Add(c.SubtotalAmount)
		t.WithholdingAmount = t.WithholdingAmount.Add(c.WithholdingAmount)
		t.TaxAmount = t.TaxAmount.Add(c.TaxAmount)
		t.TotalAmount = t.TotalAmount.Add(c.TotalAmount)
		groups[c.LiquidationCode] = struct{}{}
	}
	t.InvoiceCount = len(candidates)
	t.LiquidationCount = len(groups)
	return t
}

// PaymentOrder is the aggregate root header.
type PaymentOrder struct {
	ID              int64
	GUID            string
	OrderNumber     string
	SiteID          int64
	BankID          int64
	LiquidationCode string
	Totals          OrderTotals
	ApprovalState   ApprovalState
	CurrentLevel    int // 1-based position into the materialized chain
	TotalLevels     int
	Lifecycle       LifecycleState
	CreatedBy       int64
	CreatedAt       time.Time
	UpdatedBy       *int64
	UpdatedAt       time.Time
}

// OrderInvoiceLink binds one invoice into a payment order.
type OrderInvoiceLink struct {
	ID             int64
	GUID           string
	PaymentOrderID int64
	InvoiceID      int64
	IsActive       bool
	CreatedBy      int64
	CreatedAt      time.Time
}

// OrderSummary is one row of the approver inbox or a listing.
type OrderSummary struct {
	GUID            string
	OrderNumber     string
	SiteID          int64
	SiteName        string
	BankID          int64
	BankName        string
	LiquidationCode string
	TotalAmount     decimal.Decimal
	InvoiceCount    int
	ApprovalState   ApprovalState
	CurrentLevel    int
	TotalLevels     int
	CreatedAt       time.Time
}

// OrderDetail is the audit/detail view: header plus memberships and the
// full approval ledger.
type OrderDetail struct {
	Order   PaymentOrder
	Members []LiquidationInvoice
	Ledger  []ApprovalLedgerRow
}

// ── Approval chain configuration ─────────────────────────────────────────────

// ApprovalProfile is one ordered step within a named workflow group,
// configured independently of any specific order.
type ApprovalProfile struct {
	ID            int64
	GUID          string
	WorkflowGroup string
	Level         int
	Sequence      int
	Name          string
	IsActive      bool
}

// ApprovalChainLevel is one resolved step of a chain: the profile plus the
// users authorized to act on it for one site.
type ApprovalChainLevel struct {
	Level           int
	Sequence        int
	ProfileName     string
	AuthorizedUsers []int64
}

// Authorizes reports whether userID may decide this level.
func (l ApprovalChainLevel) Authorizes(userID int64) bool {
	for _, id := range l.AuthorizedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// ApprovalLedgerRow is one materialized chain level for one order. The
// authorized user set is snapshotted at order creation so later profile
// edits never alter an in-flight chain.
type ApprovalLedgerRow struct {
	ID              int64
	GUID            string
	PaymentOrderID  int64
	Position        int // 1-based order within the chain
	Level           int
	ProfileName     string
	AuthorizedUsers []int64
	Status          LedgerStatus
	DecidedBy       *int64
	DecidedAt       *time.Time
	Comment         *string
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Authorizes reports whether userID may decide this ledger row.
func (r ApprovalLedgerRow) Authorizes(userID int64) bool {
	for _, id := range r.AuthorizedUsers {
		if id == userID {
			return true
		}
	}
	return false
}

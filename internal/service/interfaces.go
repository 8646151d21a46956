package service

import (
	"context"

	"github.com/aanampa/shm-payment-orders/internal/database"
	"github.com/aanampa/shm-payment-orders/internal/repository"
)

// Consumer-side interfaces over the repositories and the unit of work.
// The pgx-backed implementations live in internal/repository; tests
// substitute in-memory fakes.

// TxRunner runs a function inside one database transaction. The Querier it
// hands to fn is the explicit unit of work passed down to every repository
// call, so composed operations commit or roll back together.
type TxRunner interface {
	InTransaction(ctx context.Context, fn func(q database.Querier) error) error
}

// LiquidationReader reads the liquidation view.
type LiquidationReader interface {
	ListGroups(ctx context.Context, q database.Querier, siteID int64, bankID *int64) ([]repository.LiquidationGroup, error)
	ListMembers(ctx context.Context, q database.Querier, siteID int64, liquidationCode string, bankID *int64) ([]repository.LiquidationInvoice, error)
	ListMembersForUpdate(ctx context.Context, q database.Querier, siteID int64, liquidationCode string, bankID *int64) ([]repository.LiquidationInvoice, error)
}

// OrderStore persists payment order headers, links, and inbox queries.
type OrderStore interface {
	ExistsActive(ctx context.Context, q database.Querier, siteID, bankID int64, liquidationCode string) (bool, error)
	NextOrderNumber(ctx context.Context, q database.Querier, siteID, bankID int64) (string, error)
	InsertHeader(ctx context.Context, q database.Querier, order *repository.PaymentOrder) error
	InsertLinks(ctx context.Context, q database.Querier, orderID int64, invoiceIDs []int64, createdBy int64) error
	GetByGUID(ctx context.Context, q database.Querier, guid string) (*repository.PaymentOrder, error)
	GetByGUIDForUpdate(ctx context.Context, q database.Querier, guid string) (*repository.PaymentOrder, error)
	GetMembers(ctx context.Context, q database.Querier, orderID int64) ([]repository.LiquidationInvoice, error)
	GetPendingForUser(ctx context.Context, q database.Querier, userID int64) ([]repository.OrderSummary, error)
	AdvanceLevel(ctx context.Context, q database.Querier, orderID int64, nextLevel int, updatedBy int64) error
	SetTerminal(ctx context.Context, q database.Querier, orderID int64, state repository.ApprovalState, updatedBy int64) error
	SoftDelete(ctx context.Context, q database.Querier, orderID int64, updatedBy int64) error
	ReleaseLinks(ctx context.Context, q database.Querier, orderID int64, updatedBy int64) error
}

// ChainResolver resolves the configured approval chain for a site.
type ChainResolver interface {
	ResolveChain(ctx context.Context, q database.Querier, siteID int64, workflowGroup string) ([]repository.ApprovalChainLevel, error)
}

// LedgerStore manages the materialized approval ledger of an order.
type LedgerStore interface {
	InsertChain(ctx context.Context, q database.Querier, orderID int64, levels []repository.ApprovalChainLevel, createdBy int64) error
	GetByOrder(ctx context.Context, q database.Querier, orderID int64) ([]repository.ApprovalLedgerRow, error)
	Decide(ctx context.Context, q database.Querier, rowID int64, status repository.LedgerStatus, decidedBy int64, comment *string) error
	ActivateLevel(ctx context.Context, q database.Querier, orderID int64, position int) error
}

package service

import (
	"context"

	"github.com/aanampa/shm-payment-orders/internal/apperr"
	"github.com/aanampa/shm-payment-orders/internal/database"
	"github.com/aanampa/shm-payment-orders/internal/logger"
	"github.com/aanampa/shm-payment-orders/internal/repository"
)

// paymentOrderWorkflowGroup names the approval chain payment orders run
// through.
const paymentOrderWorkflowGroup = "PAYMENT_ORDER"

// BatchService groups liquidated invoices into payment orders. Creation is
// all-or-nothing: header, membership links, and the materialized approval
// chain commit in one transaction.
type BatchService struct {
	db           TxRunner
	pool         database.Querier
	liquidations LiquidationReader
	orders       OrderStore
	chains       ChainResolver
	ledger       LedgerStore
	log          *logger.Logger
}

// NewBatchService creates a new BatchService. pool serves read-only
// queries that need no transaction.
func NewBatchService(
	db TxRunner,
	pool database.Querier,
	liquidations LiquidationReader,
	orders OrderStore,
	chains ChainResolver,
	ledger LedgerStore,
	log *logger.Logger,
) *BatchService {
	return &BatchService{
		db:           db,
		pool:         pool,
		liquidations: liquidations,
		orders:       orders,
		chains:       chains,
		ledger:       ledger,
		log:          log,
	}
}

// ListGroups returns the payment-order candidates for a site, optionally
// restricted to one bank.
func (s *BatchService) ListGroups(ctx context.Context, siteID int64, bankID *int64) ([]repository.LiquidationGroup, error) {
	if siteID <= 0 {
		return nil, apperr.InvalidInput("site_id", "must be a positive identifier")
	}
	return s.liquidations.ListGroups(ctx, s.pool, siteID, bankID)
}

// ListMembers returns the candidate invoices of one liquidation group.
func (s *BatchService) ListMembers(ctx context.Context, siteID int64, liquidationCode string, bankID *int64) ([]repository.LiquidationInvoice, error) {
	if siteID <= 0 {
		return nil, apperr.InvalidInput("site_id", "must be a positive identifier")
	}
	if liquidationCode == "" {
		return nil, apperr.InvalidInput("liquidation_code", "must not be empty")
	}
	return s.liquidations.ListMembers(ctx, s.pool, siteID, liquidationCode, bankID)
}

// CreateOrder batches the liquidation group (site, bank, code) into one
// payment order and materializes its approval chain. A repeated call for
// the same key fails AlreadyBatched, never duplicates.
func (s *BatchService) CreateOrder(ctx context.Context, siteID, bankID int64, liquidationCode string, actor int64) (*repository.PaymentOrder, error) {
	if siteID <= 0 {
		return nil, apperr.InvalidInput("site_id", "must be a positive identifier")
	}
	if bankID <= 0 {
		return nil, apperr.InvalidInput("bank_id", "must be a positive identifier")
	}
	if liquidationCode == "" {
		return nil, apperr.InvalidInput("liquidation_code", "must not be empty")
	}
	if actor <= 0 {
		return nil, apperr.InvalidInput("actor", "acting user is required")
	}

	var order *repository.PaymentOrder

	err := s.db.InTransaction(ctx, func(q database.Querier) error {
		// Duplicate guard inside the transaction; the partial unique index
		// backs it up under concurrency.
		exists, err := s.orders.ExistsActive(ctx, q, siteID, bankID, liquidationCode)
		if err != nil {
			return err
		}
		if exists {
			return apperr.New(apperr.CodeAlreadyBatched, "an active payment order already exists for this liquidation group")
		}

		// Candidate rows are locked so an invoice cannot be reverted
		// upstream while it is being batched.
		candidates, err := s.liquidations.ListMembersForUpdate(ctx, q, siteID, liquidationCode, &bankID)
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return apperr.New(apperr.CodeNoEligibleRecords, "no liquidated invoices found for this group")
		}

		chain, err := s.chains.ResolveChain(ctx, q, siteID, paymentOrderWorkflowGroup)
		if err != nil {
			return err
		}
		if len(chain) == 0 {
			return apperr.InvalidInput("approval chain", "no approval profiles configured for this site")
		}

		orderNumber, err := s.orders.NextOrderNumber(ctx, q, siteID, bankID)
		if err != nil {
			return err
		}

		order = &repository.PaymentOrder{
			OrderNumber:     orderNumber,
			SiteID:          siteID,
			BankID:          bankID,
			LiquidationCode: liquidationCode,
			Totals:          repository.SumCandidates(candidates),
			ApprovalState:   repository.StatePending,
			CurrentLevel:    1,
			TotalLevels:     len(chain),
			Lifecycle:       repository.LifecycleActive,
			CreatedBy:       actor,
		}
		if err := s.orders.InsertHeader(ctx, q, order); err != nil {
			return err
		}

		invoiceIDs := make([]int64, len(candidates))
		for i, c := range candidates {
			invoiceIDs[i] = c.ID
		}
		if err := s.orders.InsertLinks(ctx, q, order.ID, invoiceIDs, actor); err != nil {
			return err
		}

		return s.ledger.InsertChain(ctx, q, order.ID, chain, actor)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("order_guid", order.GUID).
		Str("order_number", order.OrderNumber).
		Int64("site_id", siteID).
		Int64("bank_id", bankID).
		Str("liquidation_code", liquidationCode).
		Int("invoice_count", order.Totals.InvoiceCount).
		Int("total_levels", order.TotalLevels).
		Msg("Payment order created")

	return order, nil
}

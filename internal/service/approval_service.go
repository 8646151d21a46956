package service

import (
	"context"
	"strings"

	"github.com/aanampa/shm-payment-orders/internal/apperr"
	"github.com/aanampa/shm-payment-orders/internal/database"
	"github.com/aanampa/shm-payment-orders/internal/logger"
	"github.com/aanampa/shm-payment-orders/internal/repository"
)

// ApprovalService drives payment orders through their approval chain. Each
// decision executes in one transaction; the order row lock serializes
// competing decisions so exactly one succeeds.
type ApprovalService struct {
	db     TxRunner
	pool   database.Querier
	orders OrderStore
	ledger LedgerStore
	log    *logger.Logger
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	db TxRunner,
	pool database.Querier,
	orders OrderStore,
	ledger LedgerStore,
	log *logger.Logger,
) *ApprovalService {
	return &ApprovalService{
		db:     db,
		pool:   pool,
		orders: orders,
		ledger: ledger,
		log:    log,
	}
}

// Approve records the acting user's approval at the order's current pending
// level. When the final level approves, the order becomes APPROVED;
// otherwise the pending pointer advances one level.
func (s *ApprovalService) Approve(ctx context.Context, orderGUID string, actor int64) (*repository.PaymentOrder, error) {
	if actor <= 0 {
		return nil, apperr.InvalidInput("actor", "acting user is required")
	}

	var order *repository.PaymentOrder

	err := s.db.InTransaction(ctx, func(q database.Querier) error {
		var current *repository.ApprovalLedgerRow
		var err error
		order, current, err = s.lockCurrentLevel(ctx, q, orderGUID, actor)
		if err != nil {
			return err
		}

		if err := s.ledger.Decide(ctx, q, current.ID, repository.LedgerApproved, actor, nil); err != nil {
			return err
		}

		if current.Position == order.TotalLevels {
			order.ApprovalState = repository.StateApproved
			return s.orders.SetTerminal(ctx, q, order.ID, repository.StateApproved, actor)
		}

		if err := s.ledger.ActivateLevel(ctx, q, order.ID, current.Position+1); err != nil {
			return err
		}
		order.CurrentLevel = current.Position + 1
		order.ApprovalState = repository.StatePartiallyApproved
		return s.orders.AdvanceLevel(ctx, q, order.ID, current.Position+1, actor)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("order_guid", order.GUID).
		Int64("actor", actor).
		Str("state", string(order.ApprovalState)).
		Int("current_level", order.CurrentLevel).
		Msg("Payment order approved at current level")

	return order, nil
}

// Reject terminates the order at the current pending level. The comment is
// mandatory; the ledger freezes, no further decisions are processed, and
// the linked invoices are released for re-batching.
func (s *ApprovalService) Reject(ctx context.Context, orderGUID string, actor int64, comment string) (*repository.PaymentOrder, error) {
	if actor <= 0 {
		return nil, apperr.InvalidInput("actor", "acting user is required")
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, apperr.InvalidInput("comment", "a rejection comment is required")
	}

	var order *repository.PaymentOrder

	err := s.db.InTransaction(ctx, func(q database.Querier) error {
		var current *repository.ApprovalLedgerRow
		var err error
		order, current, err = s.lockCurrentLevel(ctx, q, orderGUID, actor)
		if err != nil {
			return err
		}

		if err := s.ledger.Decide(ctx, q, current.ID, repository.LedgerRejected, actor, &comment); err != nil {
			return err
		}
		if err := s.orders.SetTerminal(ctx, q, order.ID, repository.StateRejected, actor); err != nil {
			return err
		}
		order.ApprovalState = repository.StateRejected

		// Release the linked invoices so a corrected batch can be built.
		return s.orders.ReleaseLinks(ctx, q, order.ID, actor)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("order_guid", order.GUID).
		Int64("actor", actor).
		Msg("Payment order rejected")

	return order, nil
}

// Cancel soft-deletes an order. Only the creator may cancel, and only while
// no decision has been recorded yet; the linked invoices are released.
func (s *ApprovalService) Cancel(ctx context.Context, orderGUID string, actor int64) error {
	if actor <= 0 {
		return apperr.InvalidInput("actor", "acting user is required")
	}

	err := s.db.InTransaction(ctx, func(q database.Querier) error {
		order, err := s.orders.GetByGUIDForUpdate(ctx, q, orderGUID)
		if err != nil {
			return err
		}
		if order.Lifecycle == repository.LifecycleDeleted {
			return apperr.NotFound("payment order", orderGUID)
		}
		if order.CreatedBy != actor {
			return apperr.New(apperr.CodeNotAuthorized, "only the order's creator may cancel it")
		}
		if order.ApprovalState.IsTerminal() {
			return apperr.New(apperr.CodeTerminalState, "order is already in a terminal state")
		}
		if order.ApprovalState != repository.StatePending {
			return apperr.New(apperr.CodeValidation, "order already has recorded decisions and cannot be cancelled")
		}

		if err := s.orders.SoftDelete(ctx, q, order.ID, actor); err != nil {
			return err
		}
		return s.orders.ReleaseLinks(ctx, q, order.ID, actor)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("order_guid", orderGUID).
		Int64("actor", actor).
		Msg("Payment order cancelled")

	return nil
}

// GetOrder returns the detail view: header, active memberships, and the
// full approval ledger. Soft-deleted orders remain readable for audit.
func (s *ApprovalService) GetOrder(ctx context.Context, orderGUID string) (*repository.OrderDetail, error) {
	order, err := s.orders.GetByGUID(ctx, s.pool, orderGUID)
	if err != nil {
		return nil, err
	}

	members, err := s.orders.GetMembers(ctx, s.pool, order.ID)
	if err != nil {
		return nil, err
	}

	ledger, err := s.ledger.GetByOrder(ctx, s.pool, order.ID)
	if err != nil {
		return nil, err
	}

	return &repository.OrderDetail{Order: *order, Members: members, Ledger: ledger}, nil
}

// GetPendingForUser is the approver inbox: non-terminal orders whose
// current pending level authorizes the user.
func (s *ApprovalService) GetPendingForUser(ctx context.Context, userID int64) ([]repository.OrderSummary, error) {
	if userID <= 0 {
		return nil, apperr.InvalidInput("user_id", "must be a positive identifier")
	}
	return s.orders.GetPendingForUser(ctx, s.pool, userID)
}

// lockCurrentLevel locks the order row, validates that a decision is still
// possible, and authorizes the actor against the current pending level
// only. An actor whose level was already decided gets AlreadyDecided; an
// actor whose turn has not come gets NotAuthorized.
func (s *ApprovalService) lockCurrentLevel(ctx context.Context, q database.Querier, orderGUID string, actor int64) (*repository.PaymentOrder, *repository.ApprovalLedgerRow, error) {
	order, err := s.orders.GetByGUIDForUpdate(ctx, q, orderGUID)
	if err != nil {
		return nil, nil, err
	}
	if order.Lifecycle == repository.LifecycleDeleted {
		return nil, nil, apperr.NotFound("payment order", orderGUID)
	}
	if order.ApprovalState.IsTerminal() {
		return nil, nil, apperr.New(apperr.CodeTerminalState, "order is already in a terminal state")
	}

	rows, err := s.ledger.GetByOrder(ctx, q, order.ID)
	if err != nil {
		return nil, nil, err
	}

	var current *repository.ApprovalLedgerRow
	for i := range rows {
		if rows[i].Position == order.CurrentLevel {
			current = &rows[i]
			break
		}
	}
	if current == nil || current.Status != repository.LedgerPending {
		return nil, nil, apperr.Newf(apperr.CodeInternal, "order %s has no pending level at position %d", orderGUID, order.CurrentLevel)
	}

	if !current.Authorizes(actor) {
		// An earlier decided level listing the actor means this is a
		// duplicate of an already-processed decision.
		for _, row := range rows {
			if row.Position < current.Position && row.DecidedBy != nil && row.Authorizes(actor) {
				return nil, nil, apperr.New(apperr.CodeAlreadyDecided, "this approval level has already been decided")
			}
		}
		return nil, nil, apperr.New(apperr.CodeNotAuthorized, "user is not authorized for the current pending level")
	}

	return order, current, nil
}

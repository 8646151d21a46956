package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aanampa/shm-payment-orders/internal/apperr"
	"github.com/aanampa/shm-payment-orders/internal/database"
	"github.com/aanampa/shm-payment-orders/internal/logger"
	"github.com/aanampa/shm-payment-orders/internal/repository"
)

// memStore is an in-memory stand-in for the pgx repositories. It implements
// TxRunner, LiquidationReader, OrderStore, ChainResolver, and LedgerStore so
// the services can be exercised without a database. Transactions are not
// simulated; each test drives one operation at a time.
type memStore struct {
	candidates map[string][]repository.LiquidationInvoice // site|code|bank
	chain      []repository.ApprovalChainLevel

	orders     []*repository.PaymentOrder
	members    map[int64][]repository.LiquidationInvoice
	links      map[int64][]int64 // orderID -> active invoice ids
	ledgers    map[int64][]repository.ApprovalLedgerRow
	nextID     int64
	nextSeq    map[string]int64
	nextRowID  int64
}

func newMemStore() *memStore {
	return &memStore{
		candidates: make(map[string][]repository.LiquidationInvoice),
		members:    make(map[int64][]repository.LiquidationInvoice),
		links:      make(map[int64][]int64),
		ledgers:    make(map[int64][]repository.ApprovalLedgerRow),
		nextSeq:    make(map[string]int64),
	}
}

func candidateKey(siteID int64, code string, bankID int64) string {
	return fmt.Sprintf("%d|%s|%d", siteID, code, bankID)
}

func (m *memStore) addCandidate(inv repository.LiquidationInvoice) {
	key := candidateKey(inv.SiteID, inv.LiquidationCode, inv.BankID)
	m.candidates[key] = append(m.candidates[key], inv)
}

// ── TxRunner ─────────────────────────────────────────────────────────────────

func (m *memStore) InTransaction(_ context.Context, fn func(q database.Querier) error) error {
	return fn(nil)
}

// ── LiquidationReader ────────────────────────────────────────────────────────

func (m *memStore) ListGroups(_ context.Context, _ database.Querier, siteID int64, bankID *int64) ([]repository.LiquidationGroup, error) {
	byGroup := make(map[string]*repository.LiquidationGroup)
	var order []string
	for _, invs := range m.candidates {
		for _, inv := range invs {
			if inv.SiteID != siteID {
				continue
			}
			if bankID != nil && inv.BankID != *bankID {
				continue
			}
			key := candidateKey(inv.SiteID, inv.LiquidationCode, inv.BankID)
			g, ok := byGroup[key]
			if !ok {
				g = &repository.LiquidationGroup{
					SiteID:          inv.SiteID,
					LiquidationCode: inv.LiquidationCode,
					BankID:          inv.BankID,
				}
				byGroup[key] = g
				order = append(order, key)
			}
			g.InvoiceCount++
			g.TotalAmount = g.TotalAmount.Add(inv.TotalAmount)
		}
	}
	groups := make([]repository.LiquidationGroup, 0, len(order))
	for _, key := range order {
		groups = append(groups, *byGroup[key])
	}
	return groups, nil
}

func (m *memStore) ListMembers(_ context.Context, _ database.Querier, siteID int64, code string, bankID *int64) ([]repository.LiquidationInvoice, error) {
	var out []repository.LiquidationInvoice
	for _, invs := range m.candidates {
		for _, inv := range invs {
			if inv.SiteID != siteID || inv.LiquidationCode != code {
				continue
			}
			if bankID != nil && inv.BankID != *bankID {
				continue
			}
			out = append(out, inv)
		}
	}
	return out, nil
}

func (m *memStore) ListMembersForUpdate(ctx context.Context, q database.Querier, siteID int64, code string, bankID *int64) ([]repository.LiquidationInvoice, error) {
	return m.ListMembers(ctx, q, siteID, code, bankID)
}

// ── OrderStore ───────────────────────────────────────────────────────────────

func (m *memStore) ExistsActive(_ context.Context, _ database.Querier, siteID, bankID int64, code string) (bool, error) {
	for _, o := range m.orders {
		if o.SiteID == siteID && o.BankID == bankID && o.LiquidationCode == code &&
			o.Lifecycle == repository.LifecycleActive && o.ApprovalState != repository.StateRejected {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) NextOrderNumber(_ context.Context, _ database.Querier, siteID, bankID int64) (string, error) {
	key := fmt.Sprintf("%d|%d", siteID, bankID)
	m.nextSeq[key]++
	return fmt.Sprintf("OP-%03d-%03d-%06d", siteID, bankID, m.nextSeq[key]), nil
}

func (m *memStore) InsertHeader(_ context.Context, _ database.Querier, order *repository.PaymentOrder) error {
	m.nextID++
	order.ID = m.nextID
	order.GUID = uuid.NewString()
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	stored := *order
	m.orders = append(m.orders, &stored)
	return nil
}

func (m *memStore) InsertLinks(_ context.Context, _ database.Querier, orderID int64, invoiceIDs []int64, _ int64) error {
	for _, id := range invoiceIDs {
		for otherID, linked := range m.links {
			if otherID == orderID {
				continue
			}
			for _, l := range linked {
				if l == id {
					return apperr.Newf(apperr.CodeAlreadyBatched, "invoice %d is already linked to an active payment order", id)
				}
			}
		}
	}
	m.links[orderID] = append(m.links[orderID], invoiceIDs...)
	for _, invs := range m.candidates {
		for _, inv := range invs {
			for _, id := range invoiceIDs {
				if inv.ID == id {
					m.members[orderID] = append(m.members[orderID], inv)
				}
			}
		}
	}
	return nil
}

func (m *memStore) findOrder(guid string) *repository.PaymentOrder {
	for _, o := range m.orders {
		if o.GUID == guid {
			return o
		}
	}
	return nil
}

func (m *memStore) GetByGUID(_ context.Context, _ database.Querier, guid string) (*repository.PaymentOrder, error) {
	o := m.findOrder(guid)
	if o == nil {
		return nil, apperr.NotFound("payment order", guid)
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) GetByGUIDForUpdate(ctx context.Context, q database.Querier, guid string) (*repository.PaymentOrder, error) {
	return m.GetByGUID(ctx, q, guid)
}

func (m *memStore) GetMembers(_ context.Context, _ database.Querier, orderID int64) ([]repository.LiquidationInvoice, error) {
	if len(m.links[orderID]) == 0 {
		return nil, nil
	}
	return m.members[orderID], nil
}

func (m *memStore) GetPendingForUser(_ context.Context, _ database.Querier, userID int64) ([]repository.OrderSummary, error) {
	var out []repository.OrderSummary
	for _, o := range m.orders {
		if o.Lifecycle != repository.LifecycleActive || o.ApprovalState.IsTerminal() {
			continue
		}
		for _, row := range m.ledgers[o.ID] {
			if row.Position == o.CurrentLevel && row.Status == repository.LedgerPending && row.Authorizes(userID) {
				out = append(out, repository.OrderSummary{
					GUID:          o.GUID,
					OrderNumber:   o.OrderNumber,
					SiteID:        o.SiteID,
					BankID:        o.BankID,
					TotalAmount:   o.Totals.TotalAmount,
					InvoiceCount:  o.Totals.InvoiceCount,
					ApprovalState: o.ApprovalState,
					CurrentLevel:  o.CurrentLevel,
					TotalLevels:   o.TotalLevels,
					CreatedAt:     o.CreatedAt,
				})
			}
		}
	}
	return out, nil
}

func (m *memStore) AdvanceLevel(_ context.Context, _ database.Querier, orderID int64, nextLevel int, updatedBy int64) error {
	for _, o := range m.orders {
		if o.ID == orderID {
			o.CurrentLevel = nextLevel
			o.ApprovalState = repository.StatePartiallyApproved
			o.UpdatedBy = &updatedBy
			return nil
		}
	}
	return apperr.NotFound("payment order", fmt.Sprint(orderID))
}

func (m *memStore) SetTerminal(_ context.Context, _ database.Querier, orderID int64, state repository.ApprovalState, updatedBy int64) error {
	for _, o := range m.orders {
		if o.ID == orderID {
			o.ApprovalState = state
			o.UpdatedBy = &updatedBy
			return nil
		}
	}
	return apperr.NotFound("payment order", fmt.Sprint(orderID))
}

func (m *memStore) SoftDelete(_ context.Context, _ database.Querier, orderID int64, updatedBy int64) error {
	for _, o := range m.orders {
		if o.ID == orderID {
			o.Lifecycle = repository.LifecycleDeleted
			o.UpdatedBy = &updatedBy
			return nil
		}
	}
	return apperr.NotFound("payment order", fmt.Sprint(orderID))
}

func (m *memStore) ReleaseLinks(_ context.Context, _ database.Querier, orderID int64, _ int64) error {
	delete(m.links, orderID)
	return nil
}

// ── ChainResolver ────────────────────────────────────────────────────────────

func (m *memStore) ResolveChain(_ context.Context, _ database.Querier, _ int64, _ string) ([]repository.ApprovalChainLevel, error) {
	return m.chain, nil
}

// ── LedgerStore ──────────────────────────────────────────────────────────────

func (m *memStore) InsertChain(_ context.Context, _ database.Querier, orderID int64, levels []repository.ApprovalChainLevel, _ int64) error {
	for i, level := range levels {
		status := repository.LedgerNotStarted
		if i == 0 {
			status = repository.LedgerPending
		}
		m.nextRowID++
		m.ledgers[orderID] = append(m.ledgers[orderID], repository.ApprovalLedgerRow{
			ID:              m.nextRowID,
			GUID:            uuid.NewString(),
			PaymentOrderID:  orderID,
			Position:        i + 1,
			Level:           level.Level,
			ProfileName:     level.ProfileName,
			AuthorizedUsers: level.AuthorizedUsers,
			Status:          status,
			IsActive:        true,
		})
	}
	return nil
}

func (m *memStore) GetByOrder(_ context.Context, _ database.Querier, orderID int64) ([]repository.ApprovalLedgerRow, error) {
	rows := m.ledgers[orderID]
	out := make([]repository.ApprovalLedgerRow, len(rows))
	copy(out, rows)
	return out, nil
}

func (m *memStore) Decide(_ context.Context, _ database.Querier, rowID int64, status repository.LedgerStatus, decidedBy int64, comment *string) error {
	for orderID, rows := range m.ledgers {
		for i := range rows {
			if rows[i].ID == rowID {
				if rows[i].Status != repository.LedgerPending {
					return apperr.New(apperr.CodeAlreadyDecided, "approval level has already been decided")
				}
				now := time.Now()
				m.ledgers[orderID][i].Status = status
				m.ledgers[orderID][i].DecidedBy = &decidedBy
				m.ledgers[orderID][i].DecidedAt = &now
				m.ledgers[orderID][i].Comment = comment
				return nil
			}
		}
	}
	return apperr.NotFound("approval level", fmt.Sprint(rowID))
}

func (m *memStore) ActivateLevel(_ context.Context, _ database.Querier, orderID int64, position int) error {
	for i := range m.ledgers[orderID] {
		if m.ledgers[orderID][i].Position == position && m.ledgers[orderID][i].Status == repository.LedgerNotStarted {
			m.ledgers[orderID][i].Status = repository.LedgerPending
			return nil
		}
	}
	return apperr.NotFound("approval level", fmt.Sprintf("order %d position %d", orderID, position))
}

// testLogger keeps service logging quiet during tests.
func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", ServiceName: "test", Version: "test"})
}

package handler

import (
	"time"

	"github.com/aanampa/shm-payment-orders/internal/repository"
)

// ── requests ─────────────────────────────────────────────────────────────────

type createOrderRequest struct {
	SiteID          int64  `json:"site_id"`
	BankID          int64  `json:"bank_id"`
	LiquidationCode string `json:"liquidation_code"`
}

type rejectRequest struct {
	Comment string `json:"comment"`
}

// ── responses ────────────────────────────────────────────────────────────────

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type groupResponse struct {
	SiteID          int64  `json:"site_id"`
	LiquidationCode string `json:"liquidation_code"`
	BankID          int64  `json:"bank_id"`
	BankName        string `json:"bank_name"`
	InvoiceCount    int    `json:"invoice_count"`
	TotalAmount     string `json:"total_amount"`
}

type memberResponse struct {
	GUID              string `json:"guid"`
	SiteID            int64  `json:"site_id"`
	PayeeID           int64  `json:"payee_id"`
	PayeeName         string `json:"payee_name"`
	BankID            int64  `json:"bank_id"`
	LiquidationCode   string `json:"liquidation_code"`
	LiquidationNumber string `json:"liquidation_number"`
	LiquidationPeriod string `json:"liquidation_period"`
	ConsumptionAmount string `json:"consumption_amount"`
	DiscountAmount    string `json:"discount_amount"`
	SubtotalAmount    string `json:"subtotal_amount"`
	WithholdingAmount string `json:"withholding_amount"`
	TaxAmount         string `json:"tax_amount"`
	TotalAmount       string `json:"total_amount"`
}

type orderResponse struct {
	GUID              string    `json:"guid"`
	OrderNumber       string    `json:"order_number"`
	SiteID            int64     `json:"site_id"`
	BankID            int64     `json:"bank_id"`
	LiquidationCode   string    `json:"liquidation_code"`
	ConsumptionAmount string    `json:"consumption_amount"`
	DiscountAmount    string    `json:"discount_amount"`
	SubtotalAmount    string    `json:"subtotal_amount"`
	WithholdingAmount string    `json:"withholding_amount"`
	TaxAmount         string    `json:"tax_amount"`
	TotalAmount       string    `json:"total_amount"`
	InvoiceCount      int       `json:"invoice_count"`
	LiquidationCount  int       `json:"liquidation_count"`
	ApprovalState     string    `json:"approval_state"`
	CurrentLevel      int       `json:"current_level"`
	TotalLevels       int       `json:"total_levels"`
	Lifecycle         string    `json:"lifecycle_state"`
	CreatedAt         time.Time `json:"created_at"`
}

type summaryResponse struct {
	GUID            string    `json:"guid"`
	OrderNumber     string    `json:"order_number"`
	SiteID          int64     `json:"site_id"`
	SiteName        string    `json:"site_name"`
	BankID          int64     `json:"bank_id"`
	BankName        string    `json:"bank_name"`
	LiquidationCode string    `json:"liquidation_code"`
	TotalAmount     string    `json:"total_amount"`
	InvoiceCount    int       `json:"invoice_count"`
	ApprovalState   string    `json:"approval_state"`
	CurrentLevel    int       `json:"current_level"`
	TotalLevels     int       `json:"total_levels"`
	CreatedAt       time.Time `json:"created_at"`
}

type ledgerRowResponse struct {
	GUID        string     `json:"guid"`
	Position    int        `json:"position"`
	Level       int        `json:"level"`
	ProfileName string     `json:"profile_name"`
	Status      string     `json:"status"`
	DecidedBy   *int64     `json:"decided_by,omitempty"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	Comment     *string    `json:"comment,omitempty"`
}

type detailResponse struct {
	Order   orderResponse       `json:"order"`
	Members []memberResponse    `json:"members"`
	Ledger  []ledgerRowResponse `json:"ledger"`
}

// ── converters ───────────────────────────────────────────────────────────────

func toGroupResponses(groups []repository.LiquidationGroup) []groupResponse {
	out := make([]groupResponse, len(groups))
	for i, g := range groups {
		out[i] = groupResponse{
			SiteID:          g.SiteID,
			LiquidationCode: g.LiquidationCode,
			BankID:          g.BankID,
			BankName:        g.BankName,
			InvoiceCount:    g.InvoiceCount,
			TotalAmount:     decimalString(g.TotalAmount),
		}
	}
	return out
}

func toMemberResponses(members []repository.LiquidationInvoice) []memberResponse {
	out := make([]memberResponse, len(members))
	for i, m := range members {
		out[i] = memberResponse{
			GUID:              m.GUID,
			SiteID:            m.SiteID,
			PayeeID:           m.PayeeID,
			PayeeName:         m.PayeeName,
			BankID:            m.BankID,
			LiquidationCode:   m.LiquidationCode,
			LiquidationNumber: m.LiquidationNumber,
			LiquidationPeriod: m.LiquidationPeriod,
			ConsumptionAmount: decimalString(m.ConsumptionAmount),
			DiscountAmount:    decimalString(m.DiscountAmount),
			SubtotalAmount:    decimalString(m.SubtotalAmount),
			WithholdingAmount: decimalString(m.WithholdingAmount),
			TaxAmount:         decimalString(m.TaxAmount),
			TotalAmount:       decimalString(m.TotalAmount),
		}
	}
	return out
}

func toOrderResponse(o *repository.PaymentOrder) orderResponse {
	return orderResponse{
		GUID:              o.GUID,
		OrderNumber:       o.OrderNumber,
		SiteID:            o.SiteID,
		BankID:            o.BankID,
		LiquidationCode:   o.LiquidationCode,
		ConsumptionAmount: decimalString(o.Totals.ConsumptionAmount),
		DiscountAmount:    decimalString(o.Totals.DiscountAmount),
		SubtotalAmount:    decimalString(o.Totals.SubtotalAmount),
		WithholdingAmount: decimalString(o.Totals.WithholdingAmount),
		TaxAmount:         decimalString(o.Totals.TaxAmount),
		TotalAmount:       decimalString(o.Totals.TotalAmount),
		InvoiceCount:      o.Totals.InvoiceCount,
		LiquidationCount:  o.Totals.LiquidationCount,
		ApprovalState:     string(o.ApprovalState),
		CurrentLevel:      o.CurrentLevel,
		TotalLevels:       o.TotalLevels,
		Lifecycle:         string(o.Lifecycle),
		CreatedAt:         o.CreatedAt,
	}
}

func toSummaryResponses(summaries []repository.OrderSummary) []summaryResponse {
	out := make([]summaryResponse, len(summaries))
	for i, s := range summaries {
		out[i] = summaryResponse{
			GUID:            s.GUID,
			OrderNumber:     s.OrderNumber,
			SiteID:          s.SiteID,
			SiteName:        s.SiteName,
			BankID:          s.BankID,
			BankName:        s.BankName,
			LiquidationCode: s.LiquidationCode,
			TotalAmount:     decimalString(s.TotalAmount),
			InvoiceCount:    s.InvoiceCount,
			ApprovalState:   string(s.ApprovalState),
			CurrentLevel:    s.CurrentLevel,
			TotalLevels:     s.TotalLevels,
			CreatedAt:       s.CreatedAt,
		}
	}
	return out
}

func toDetailResponse(d *repository.OrderDetail) detailResponse {
	ledger := make([]ledgerRowResponse, len(d.Ledger))
	for i, row := range d.Ledger {
		ledger[i] = ledgerRowResponse{
			GUID:        row.GUID,
			Position:    row.Position,
			Level:       row.Level,
			ProfileName: row.ProfileName,
			Status:      string(row.Status),
			DecidedBy:   row.DecidedBy,
			DecidedAt:   row.DecidedAt,
			Comment:     row.Comment,
		}
	}
	return detailResponse{
		Order:   toOrderResponse(&d.Order),
		Members: toMemberResponses(d.Members),
		Ledger:  ledger,
	}
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aanampa/shm-payment-orders/internal/apperr"
	"github.com/aanampa/shm-payment-orders/internal/logger"
	"github.com/aanampa/shm-payment-orders/internal/repository"
)

// stubServices implements BatchAPI and ApprovalAPI with canned results so
// the HTTP surface can be tested in isolation.
type stubServices struct {
	order   *repository.PaymentOrder
	detail  *repository.OrderDetail
	inbox   []repository.OrderSummary
	groups  []repository.LiquidationGroup
	members []repository.LiquidationInvoice
	err     error

	lastActor   int64
	lastGUID    string
	lastComment string
}

func (s *stubServices) ListGroups(_ context.Context, _ int64, _ *int64) ([]repository.LiquidationGroup, error) {
	return s.groups, s.err
}

func (s *stubServices) ListMembers(_ context.Context, _ int64, _ string, _ *int64) ([]repository.LiquidationInvoice, error) {
	return s.members, s.err
}

func (s *stubServices) CreateOrder(_ context.Context, _, _ int64, _ string, actor int64) (*repository.PaymentOrder, error) {
	s.lastActor = actor
	return s.order, s.err
}

func (s *stubServices) Approve(_ context.Context, guid string, actor int64) (*repository.PaymentOrder, error) {
	s.lastGUID, s.lastActor = guid, actor
	return s.order, s.err
}

func (s *stubServices) Reject(_ context.Context, guid string, actor int64, comment string) (*repository.PaymentOrder, error) {
	s.lastGUID, s.lastActor, s.lastComment = guid, actor, comment
	return s.order, s.err
}

func (s *stubServices) Cancel(_ context.Context, guid string, actor int64) error {
	s.lastGUID, s.lastActor = guid, actor
	return s.err
}

func (s *stubServices) GetOrder(_ context.Context, guid string) (*repository.OrderDetail, error) {
	s.lastGUID = guid
	return s.detail, s.err
}

func (s *stubServices) GetPendingForUser(_ context.Context, _ int64) ([]repository.OrderSummary, error) {
	return s.inbox, s.err
}

func newTestHandler(s *stubServices) http.Handler {
	log := logger.New(logger.Config{Level: "error", ServiceName: "test", Version: "test"})
	return NewHTTPHandler(s, s, log).Router()
}

func sampleOrder() *repository.PaymentOrder {
	return &repository.PaymentOrder{
		ID:              1,
		GUID:            "b6a6f3a0-0000-0000-0000-000000000001",
		OrderNumber:     "OP-010-005-000001",
		SiteID:          10,
		BankID:          5,
		LiquidationCode: "L-001",
		Totals: repository.OrderTotals{
			TotalAmount:      decimal.RequireFromString("900.00"),
			InvoiceCount:     3,
			LiquidationCount: 1,
		},
		ApprovalState: repository.StatePending,
		CurrentLevel:  1,
		TotalLevels:   2,
		Lifecycle:     repository.LifecycleActive,
	}
}

func doRequest(t *testing.T, h http.Handler, method, target, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(userIDHeader, userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := doRequest(t, newTestHandler(&stubServices{}), http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestCreateOrder_Created(t *testing.T) {
	stub := &stubServices{order: sampleOrder()}
	rec := doRequest(t, newTestHandler(stub), http.MethodPost, "/api/v1/payment-orders/", "201",
		`{"site_id":10,"bank_id":5,"liquidation_code":"L-001"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int64(201), stub.lastActor)

	var resp orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "OP-010-005-000001", resp.OrderNumber)
	assert.Equal(t, "900.00", resp.TotalAmount)
	assert.Equal(t, "PENDING", resp.ApprovalState)
}

func TestCreateOrder_MissingUserHeader(t *testing.T) {
	rec := doRequest(t, newTestHandler(&stubServices{}), http.MethodPost, "/api/v1/payment-orders/", "",
		`{"site_id":10,"bank_id":5,"liquidation_code":"L-001"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(apperr.CodeValidation), resp.Code)
}

func TestCreateOrder_BadUserHeader(t *testing.T) {
	for _, raw := range []string{"abc", "-1", "0"} {
		rec := doRequest(t, newTestHandler(&stubServices{}), http.MethodPost, "/api/v1/payment-orders/", raw,
			`{"site_id":10,"bank_id":5,"liquidation_code":"L-001"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestCreateOrder_MalformedBody(t *testing.T) {
	rec := doRequest(t, newTestHandler(&stubServices{}), http.MethodPost, "/api/v1/payment-orders/", "201", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorCodeMapping(t *testing.T) {
	tests := []struct {
		code apperr.Code
		want int
	}{
		{apperr.CodeValidation, http.StatusBadRequest},
		{apperr.CodeNotFound, http.StatusNotFound},
		{apperr.CodeNotAuthorized, http.StatusForbidden},
		{apperr.CodeAlreadyDecided, http.StatusConflict},
		{apperr.CodeAlreadyBatched, http.StatusConflict},
		{apperr.CodeTerminalState, http.StatusConflict},
		{apperr.CodeNoEligibleRecords, http.StatusUnprocessableEntity},
		{apperr.CodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			stub := &stubServices{err: apperr.New(tt.code, "boom")}
			rec := doRequest(t, newTestHandler(stub), http.MethodPost,
				"/api/v1/payment-orders/guid-1/approve", "201", "")
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestInternalErrorMessageIsOpaque(t *testing.T) {
	cause := apperr.New(apperr.CodeInternal, "underlying detail")
	stub := &stubServices{err: apperr.Wrap(cause, apperr.CodeInternal, "scan blew up")}
	rec := doRequest(t, newTestHandler(stub), http.MethodPost,
		"/api/v1/payment-orders/guid-1/approve", "201", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "internal error", resp.Message)
	assert.NotContains(t, rec.Body.String(), "scan blew up")
}

func TestApprove_PassesGUIDAndActor(t *testing.T) {
	stub := &stubServices{order: sampleOrder()}
	rec := doRequest(t, newTestHandler(stub), http.MethodPost,
		"/api/v1/payment-orders/guid-42/approve", "202", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "guid-42", stub.lastGUID)
	assert.Equal(t, int64(202), stub.lastActor)
}

func TestReject_PassesComment(t *testing.T) {
	stub := &stubServices{order: sampleOrder()}
	rec := doRequest(t, newTestHandler(stub), http.MethodPost,
		"/api/v1/payment-orders/guid-42/reject", "201", `{"comment":"Monto incorrecto"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Monto incorrecto", stub.lastComment)
}

func TestCancel_NoContent(t *testing.T) {
	stub := &stubServices{}
	rec := doRequest(t, newTestHandler(stub), http.MethodDelete,
		"/api/v1/payment-orders/guid-42", "201", "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "guid-42", stub.lastGUID)
}

func TestGetOrder_NotFound(t *testing.T) {
	stub := &stubServices{err: apperr.NotFound("payment order", "missing")}
	rec := doRequest(t, newTestHandler(stub), http.MethodGet,
		"/api/v1/payment-orders/missing", "", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrder_Detail(t *testing.T) {
	decided := int64(201)
	stub := &stubServices{detail: &repository.OrderDetail{
		Order: *sampleOrder(),
		Members: []repository.LiquidationInvoice{
			{ID: 1, PayeeName: "Dr. Perez", TotalAmount: decimal.RequireFromString("300.00")},
		},
		Ledger: []repository.ApprovalLedgerRow{
			{Position: 1, Level: 1, ProfileName: "Treasurer", Status: repository.LedgerApproved, DecidedBy: &decided},
			{Position: 2, Level: 2, ProfileName: "Manager", Status: repository.LedgerPending},
		},
	}}
	rec := doRequest(t, newTestHandler(stub), http.MethodGet,
		"/api/v1/payment-orders/guid-42", "", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp detailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Members, 1)
	require.Len(t, resp.Ledger, 2)
	assert.Equal(t, "300.00", resp.Members[0].TotalAmount)
	assert.Equal(t, "APPROVED", resp.Ledger[0].Status)
	require.NotNil(t, resp.Ledger[0].DecidedBy)
	assert.Equal(t, int64(201), *resp.Ledger[0].DecidedBy)
	assert.Nil(t, resp.Ledger[1].DecidedBy)
}

func TestInbox_RequiresUserID(t *testing.T) {
	rec := doRequest(t, newTestHandler(&stubServices{}), http.MethodGet,
		"/api/v1/payment-orders/inbox", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInbox_ReturnsSummaries(t *testing.T) {
	stub := &stubServices{inbox: []repository.OrderSummary{
		{GUID: "guid-1", OrderNumber: "OP-010-005-000001", TotalAmount: decimal.RequireFromString("900.00"),
			ApprovalState: repository.StatePending, CurrentLevel: 1, TotalLevels: 2},
	}}
	rec := doRequest(t, newTestHandler(stub), http.MethodGet,
		"/api/v1/payment-orders/inbox?user_id=201", "", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Orders []summaryResponse `json:"orders"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Orders, 1)
	assert.Equal(t, "900.00", resp.Orders[0].TotalAmount)
}

func TestListGroups_QueryValidation(t *testing.T) {
	h := newTestHandler(&stubServices{})

	rec := doRequest(t, h, http.MethodGet, "/api/v1/liquidations/groups", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/liquidations/groups?site_id=abc", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/liquidations/groups?site_id=10&bank_id=xyz", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListGroups_ReturnsGroups(t *testing.T) {
	stub := &stubServices{groups: []repository.LiquidationGroup{
		{SiteID: 10, LiquidationCode: "L-001", BankID: 5, BankName: "BCP",
			InvoiceCount: 3, TotalAmount: decimal.RequireFromString("900.00")},
	}}
	rec := doRequest(t, newTestHandler(stub), http.MethodGet,
		"/api/v1/liquidations/groups?site_id=10", "", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Groups []groupResponse `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Groups, 1)
	assert.Equal(t, "BCP", resp.Groups[0].BankName)
	assert.Equal(t, "900.00", resp.Groups[0].TotalAmount)
}

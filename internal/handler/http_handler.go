package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"

	"github.com/aanampa/shm-payment-orders/internal/apperr"
	"github.com/aanampa/shm-payment-orders/internal/logger"
	"github.com/aanampa/shm-payment-orders/internal/repository"
)

// userIDHeader carries the acting user's numeric id. Authentication itself
// is handled upstream; this header is the identity integration point.
const userIDHeader = "X-User-ID"

// HTTPHandler exposes the payment-order API.
type HTTPHandler struct {
	batch    BatchAPI
	approval ApprovalAPI
	log      *logger.Logger
}

// BatchAPI is the batch-builder surface the handler consumes.
type BatchAPI interface {
	ListGroups(ctx context.Context, siteID int64, bankID *int64) ([]repository.LiquidationGroup, error)
	ListMembers(ctx context.Context, siteID int64, liquidationCode string, bankID *int64) ([]repository.LiquidationInvoice, error)
	CreateOrder(ctx context.Context, siteID, bankID int64, liquidationCode string, actor int64) (*repository.PaymentOrder, error)
}

// ApprovalAPI is the approval-engine surface the handler consumes.
type ApprovalAPI interface {
	Approve(ctx context.Context, orderGUID string, actor int64) (*repository.PaymentOrder, error)
	Reject(ctx context.Context, orderGUID string, actor int64, comment string) (*repository.PaymentOrder, error)
	Cancel(ctx context.Context, orderGUID string, actor int64) error
	GetOrder(ctx context.Context, orderGUID string) (*repository.OrderDetail, error)
	GetPendingForUser(ctx context.Context, userID int64) ([]repository.OrderSummary, error)
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(batch BatchAPI, approval ApprovalAPI, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{batch: batch, approval: approval, log: log}
}

// Router builds the chi router with the service middleware stack.
func (h *HTTPHandler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", userIDHeader},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/liquidations/groups", h.listGroups)
		r.Get("/liquidations/members", h.listMembers)

		r.Route("/payment-orders", func(r chi.Router) {
			r.Post("/", h.createOrder)
			r.Get("/inbox", h.inbox)
			r.Get("/{guid}", h.getOrder)
			r.Post("/{guid}/approve", h.approve)
			r.Post("/{guid}/reject", h.reject)
			r.Delete("/{guid}", h.cancel)
		})
	})

	return r
}

// ── handlers ─────────────────────────────────────────────────────────────────

func (h *HTTPHandler) listGroups(w http.ResponseWriter, r *http.Request) {
	siteID, err := queryInt64(r, "site_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	bankID, err := optionalQueryInt64(r, "bank_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	groups, err := h.batch.ListGroups(r.Context(), siteID, bankID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"groups": toGroupResponses(groups)})
}

func (h *HTTPHandler) listMembers(w http.ResponseWriter, r *http.Request) {
	siteID, err := queryInt64(r, "site_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	bankID, err := optionalQueryInt64(r, "bank_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	code := r.URL.Query().Get("liquidation_code")

	members, err := h.batch.ListMembers(r.Context(), siteID, code, bankID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"members": toMemberResponses(members)})
}

func (h *HTTPHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := actingUser(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperr.InvalidInput("body", "invalid request body"))
		return
	}

	order, err := h.batch.CreateOrder(r.Context(), req.SiteID, req.BankID, req.LiquidationCode, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *HTTPHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	detail, err := h.approval.GetOrder(r.Context(), chi.URLParam(r, "guid"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toDetailResponse(detail))
}

func (h *HTTPHandler) inbox(w http.ResponseWriter, r *http.Request) {
	userID, err := queryInt64(r, "user_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	summaries, err := h.approval.GetPendingForUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"orders": toSummaryResponses(summaries)})
}

func (h *HTTPHandler) approve(w http.ResponseWriter, r *http.Request) {
	actor, err := actingUser(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.approval.Approve(r.Context(), chi.URLParam(r, "guid"), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *HTTPHandler) reject(w http.ResponseWriter, r *http.Request) {
	actor, err := actingUser(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperr.InvalidInput("body", "invalid request body"))
		return
	}

	order, err := h.approval.Reject(r.Context(), chi.URLParam(r, "guid"), actor, req.Comment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *HTTPHandler) cancel(w http.ResponseWriter, r *http.Request) {
	actor, err := actingUser(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.approval.Cancel(r.Context(), chi.URLParam(r, "guid"), actor); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── request helpers ──────────────────────────────────────────────────────────

func actingUser(r *http.Request) (int64, error) {
	raw := r.Header.Get(userIDHeader)
	if raw == "" {
		return 0, apperr.InvalidInput(userIDHeader, "header is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.InvalidInput(userIDHeader, "must be a positive integer")
	}
	return id, nil
}

func queryInt64(r *http.Request, key string) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, apperr.InvalidInput(key, "query parameter is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.InvalidInput(key, "must be an integer")
	}
	return id, nil
}

func optionalQueryInt64(r *http.Request, key string) (*int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, apperr.InvalidInput(key, "must be an integer")
	}
	return &id, nil
}

// ── response writing ─────────────────────────────────────────────────────────

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.CodeOf(err)
	if code == apperr.CodeInternal {
		h.log.Error().Err(err).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request failed")
	}

	h.writeJSON(w, httpStatus(code), errorResponse{
		Code:    string(code),
		Message: apperr.MessageOf(err),
	})
}

func httpStatus(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeNotAuthorized:
		return http.StatusForbidden
	case apperr.CodeAlreadyDecided, apperr.CodeAlreadyBatched, apperr.CodeTerminalState:
		return http.StatusConflict
	case apperr.CodeNoEligibleRecords:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// requestLogger logs one line per request with zerolog.
func (h *HTTPHandler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("Request handled")
	})
}

// decimalString renders monetary values as fixed two-decimal strings.
func decimalString(d decimal.Decimal) string {
	return d.StringFixed(2)
}

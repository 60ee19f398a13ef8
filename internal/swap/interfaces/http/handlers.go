package swaphttp

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"irs-settlement/internal/audit"
	"irs-settlement/internal/auth"
	"irs-settlement/internal/eventing"
	"irs-settlement/internal/observability/metrics"
	"irs-settlement/internal/swap/application"
	swap "irs-settlement/internal/swap/domain"
	"irs-settlement/internal/swap/interfaces"
)

const maxBodyBytes = 1 << 20

var errNoCaller = errors.New("caller address required")

// Handler serves the swap API.
type Handler struct {
	service    *application.SettlementService
	dispatcher application.Dispatcher
	audit      audit.Logger
	logger     *zap.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithAudit records mutating requests.
func WithAudit(logger audit.Logger) Option {
	return func(h *Handler) { h.audit = logger }
}

// WithOutboxDispatcher enables POST /api/v1/outbox/dispatch.
func WithOutboxDispatcher(dispatcher application.Dispatcher) Option {
	return func(h *Handler) { h.dispatcher = dispatcher }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler constructs a Handler.
func NewHandler(service *application.SettlementService, opts ...Option) *Handler {
	h := &Handler{service: service, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/swaps", h.list)
	mux.HandleFunc("POST /api/v1/swaps", h.create)
	mux.HandleFunc("GET /api/v1/swaps/{id}", h.get)
	mux.HandleFunc("GET /api/v1/swaps/{id}/settlements", h.settlements)
	mux.HandleFunc("GET /api/v1/swaps/{id}/obligations", h.obligations)
	mux.HandleFunc("POST /api/v1/swaps/{id}/swap", h.settle)
	mux.HandleFunc("POST /api/v1/swaps/{id}/terminate", h.terminate)
	mux.HandleFunc("GET /api/v1/swaps/{id}/statement.pdf", h.statement("pdf"))
	mux.HandleFunc("GET /api/v1/swaps/{id}/statement.xlsx", h.statement("xlsx"))
	if h.dispatcher != nil {
		mux.HandleFunc("POST /api/v1/outbox/dispatch", h.dispatch)
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	agreements, err := h.service.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	views := make([]agreementView, 0, len(agreements))
	for _, a := range agreements {
		views = append(views, newAgreementView(a))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	var spec application.TermsSpec
	if err := json.Unmarshal(body, &spec); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	terms, err := spec.Terms()
	if err != nil {
		h.writeError(w, err)
		return
	}
	agreement, err := h.service.CreateAgreement(r.Context(), terms)
	h.record(r, "swap.create", idOf(agreement, terms.ID), body, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAgreementView(agreement))
}

func idOf(agreement *swap.Agreement, fallback string) string {
	if agreement != nil {
		return agreement.ID()
	}
	return fallback
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	agreement, err := h.service.Agreement(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAgreementView(agreement))
}

func (h *Handler) settlements(w http.ResponseWriter, r *http.Request) {
	agreement, err := h.service.Agreement(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := agreement.Settlements()
	views := make([]settlementView, 0, len(items))
	for _, item := range items {
		views = append(views, newSettlementView(item, agreement.RatesDecimals()))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) obligations(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Obligations(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newObligationsView(status))
}

type settleRequest struct {
	AsOf string `json:"as_of"`
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	var req settleRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
	}
	var asOf time.Time
	if req.AsOf != "" {
		if asOf, err = time.Parse(timeLayout, req.AsOf); err != nil {
			http.Error(w, "as_of must be RFC3339", http.StatusBadRequest)
			return
		}
	}
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		h.record(r, "swap.settle", id, body, errNoCaller)
		h.writeError(w, errNoCaller)
		return
	}

	record, err := h.service.SettlePeriod(r.Context(), id, caller, asOf)
	h.record(r, "swap.settle", id, body, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	agreement, err := h.service.Agreement(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSettlementView(record, agreement.RatesDecimals()))
}

func (h *Handler) terminate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	caller, ok := auth.CallerFromContext(r.Context())
	if !ok {
		h.record(r, "swap.terminate", id, nil, errNoCaller)
		h.writeError(w, errNoCaller)
		return
	}
	agreement, err := h.service.Terminate(r.Context(), id, caller, time.Time{})
	h.record(r, "swap.terminate", id, nil, err)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAgreementView(agreement))
}

func (h *Handler) statement(format string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		agreement, err := h.service.Agreement(r.Context(), r.PathValue("id"))
		if err != nil {
			metrics.ObserveStatementExport(format, metrics.ResultError, time.Since(start))
			h.writeError(w, err)
			return
		}
		var (
			data        []byte
			contentType string
		)
		switch format {
		case "pdf":
			data, err = interfaces.BuildStatementPDF(agreement)
			contentType = "application/pdf"
		default:
			data, err = interfaces.BuildStatementXLSX(agreement)
			contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		}
		if err != nil {
			metrics.ObserveStatementExport(format, metrics.ResultError, time.Since(start))
			h.logger.Error("statement export failed", zap.String("agreement_id", agreement.ID()), zap.String("format", format), zap.Error(err))
			http.Error(w, "statement export failed", http.StatusInternalServerError)
			return
		}
		metrics.ObserveStatementExport(format, metrics.ResultSuccess, time.Since(start))
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Disposition", "attachment; filename=\""+agreement.ID()+"-statement."+format+"\"")
		_, _ = w.Write(data)
	}
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	result, err := h.dispatcher.Dispatch(r.Context(), eventing.DefaultDispatchLimit)
	if err != nil {
		h.logger.Error("outbox dispatch failed", zap.Error(err))
		http.Error(w, "outbox dispatch failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"claimed": result.Claimed,
		"sent":    result.Sent,
		"failed":  result.Failed,
		"dlq":     result.DLQ,
	})
}

func (h *Handler) record(r *http.Request, action, agreementID string, body []byte, err error) {
	if h.audit == nil {
		return
	}
	ctx := r.Context()
	outcome := "success"
	var metadata json.RawMessage
	if len(body) > 0 && json.Valid(body) {
		metadata = body
	}
	if err != nil {
		outcome = "rejected"
		if status, _ := statusFor(err); status >= http.StatusInternalServerError {
			outcome = "error"
		}
		payload, _ := json.Marshal(map[string]string{"error": err.Error()})
		metadata = payload
	}
	entry := audit.Entry{
		TenantID:    auth.TenantIDFromContext(ctx),
		Actor:       auth.SubjectFromContext(ctx),
		Role:        string(auth.RoleFromContext(ctx)),
		Action:      action,
		AgreementID: agreementID,
		Outcome:     outcome,
		Metadata:    metadata,
		IP:          audit.ClientIP(r),
		UserAgent:   r.UserAgent(),
	}
	if len(body) > 0 {
		entry.PayloadDigest = audit.DigestJSON(body)
	}
	if err := h.audit.Log(ctx, entry); err != nil {
		h.logger.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errNoCaller):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, swap.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, swap.ErrAgreementNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, swap.ErrNotActive):
		return http.StatusConflict, "not_active"
	case errors.Is(err, swap.ErrNothingDue):
		return http.StatusConflict, "nothing_due"
	case errors.Is(err, swap.ErrAlreadySettled):
		return http.StatusConflict, "already_settled"
	case errors.Is(err, swap.ErrAgreementExists):
		return http.StatusConflict, "exists"
	case errors.Is(err, swap.ErrInvalidTerms), errors.Is(err, swap.ErrUnknownDate):
		return http.StatusUnprocessableEntity, "invalid_terms"
	case errors.Is(err, swap.ErrArithmeticOverflow):
		return http.StatusUnprocessableEntity, "overflow"
	case errors.Is(err, swap.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, swap.ErrTransferRejected):
		return http.StatusBadGateway, "transfer_rejected"
	case errors.Is(err, swap.ErrBurnFailed):
		return http.StatusBadGateway, "burn_failed"
	case errors.Is(err, swap.ErrOracleUnavailable):
		return http.StatusServiceUnavailable, "oracle_unavailable"
	case errors.Is(err, swap.ErrStaleQuote):
		return http.StatusServiceUnavailable, "stale_quote"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
		message = "internal error"
	}
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

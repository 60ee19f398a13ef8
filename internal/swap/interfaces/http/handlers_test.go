package swaphttp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"irs-settlement/internal/audit"
	"irs-settlement/internal/auth"
	"irs-settlement/internal/swap/application"
	"irs-settlement/internal/swap/infrastructure/memory"
	swaphttp "irs-settlement/internal/swap/interfaces/http"
)

var (
	secret   = []byte("test-secret")
	payer    = common.HexToAddress("0x1000000000000000000000000000000000000001")
	receiver = common.HexToAddress("0x2000000000000000000000000000000000000002")
	stranger = common.HexToAddress("0x3000000000000000000000000000000000000003")
	asset    = common.HexToAddress("0x4000000000000000000000000000000000000004")
)

const termsJSON = `{
	"id": "swap-1",
	"payer": "0x1000000000000000000000000000000000000001",
	"receiver": "0x2000000000000000000000000000000000000002",
	"asset": "0x4000000000000000000000000000000000000004",
	"notional": 1000000,
	"fixed_rate": "2.50",
	"spread": "0.50",
	"rates_decimals": 2,
	"benchmark": "SOFR",
	"manual_rate": "1.50",
	"frequency": "90d",
	"starting_date": "2026-01-01",
	"maturity_date": "2026-12-27"
}`

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *recordingAudit) Log(ctx context.Context, entry audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

type server struct {
	handler http.Handler
	store   *memory.Store
	audit   *recordingAudit
}

func newServer(t *testing.T) server {
	t.Helper()
	resolver, err := application.NewRateResolver(nil, time.Hour)
	require.NoError(t, err)
	store := memory.NewStore()
	service, err := application.NewSettlementService(store, resolver)
	require.NoError(t, err)

	rec := &recordingAudit{}
	mux := http.NewServeMux()
	swaphttp.NewHandler(service, swaphttp.WithAudit(rec)).Register(mux)
	mw := auth.NewMiddleware(secret, auth.NewDefaultPolicy([]string{"/healthz"}, nil), nil)
	return server{handler: mw.Wrap(mux), store: store, audit: rec}
}

func token(t *testing.T, role, subject string) string {
	t.Helper()
	signed, err := auth.SignJWT(secret, auth.Claims{
		TenantID: "tenant-a",
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)
	return signed
}

func (s server) do(t *testing.T, method, path, bearer, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s server) book(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/swaps", token(t, "admin", "ops"), termsJSON)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Code
}

func TestCreateAndQueryAgreement(t *testing.T) {
	s := newServer(t)
	s.book(t)

	rec := s.do(t, http.MethodGet, "/api/v1/swaps/swap-1", token(t, "viewer", "auditor"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "2.50", view["swap_rate"])
	assert.Equal(t, "0.50", view["spread"])
	assert.Equal(t, payer.Hex(), view["fixed_interest_payer"])
	assert.Equal(t, float64(7776000), view["payment_frequency"])
	assert.Len(t, view["payment_dates"], 4)
	assert.Equal(t, "active", view["status"])

	rec = s.do(t, http.MethodPost, "/api/v1/swaps", token(t, "admin", "ops"), termsJSON)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/swaps/missing", token(t, "viewer", "auditor"), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRejectsInvalidTerms(t *testing.T) {
	s := newServer(t)
	bad := strings.Replace(termsJSON, `"2.50"`, `"2.505"`, 1)
	rec := s.do(t, http.MethodPost, "/api/v1/swaps", token(t, "admin", "ops"), bad)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/swaps", token(t, "admin", "ops"), "{")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettleFlow(t *testing.T) {
	s := newServer(t)
	s.book(t)
	require.NoError(t, s.store.Seed(application.AssetKey(asset), payer, 1_000_000))

	body := `{"as_of":"2026-04-01T00:00:00Z"}`
	rec := s.do(t, http.MethodPost, "/api/v1/swaps/swap-1/swap", token(t, "counterparty", receiver.Hex()), body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var settled map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settled))
	assert.Equal(t, float64(1250), settled["amount"])
	assert.Equal(t, "2.00", settled["floating_rate"])
	assert.Equal(t, receiver.Hex(), settled["to"])

	rec = s.do(t, http.MethodPost, "/api/v1/swaps/swap-1/swap", token(t, "counterparty", receiver.Hex()), body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "nothing_due", errorCode(t, rec))

	rec = s.do(t, http.MethodGet, "/api/v1/swaps/swap-1/settlements", token(t, "viewer", "auditor"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 1)

	rec = s.do(t, http.MethodGet, "/api/v1/swaps/swap-1/obligations", token(t, "viewer", "auditor"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var obligations struct {
		RemainingPeriods int `json:"remaining_periods"`
		Payer            struct {
			ObligationTokens int64 `json:"obligation_tokens"`
			AssetBalance     int64 `json:"asset_balance"`
		} `json:"payer"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &obligations))
	assert.Equal(t, 3, obligations.RemainingPeriods)
	assert.Equal(t, int64(3), obligations.Payer.ObligationTokens)
	assert.Equal(t, int64(1_000_000-1250), obligations.Payer.AssetBalance)
}

func TestSettleErrors(t *testing.T) {
	s := newServer(t)
	s.book(t)

	cases := []struct {
		name   string
		bearer string
		body   string
		status int
	}{
		{name: "no token", status: http.StatusUnauthorized},
		{name: "viewer", bearer: token(t, "viewer", receiver.Hex()), status: http.StatusForbidden},
		{name: "admin without address", bearer: token(t, "admin", "ops"), status: http.StatusUnauthorized},
		{name: "stranger", bearer: token(t, "counterparty", stranger.Hex()), body: `{"as_of":"2026-04-01T00:00:00Z"}`, status: http.StatusForbidden},
		{name: "unfunded", bearer: token(t, "counterparty", payer.Hex()), body: `{"as_of":"2026-04-01T00:00:00Z"}`, status: http.StatusUnprocessableEntity},
		{name: "bad as_of", bearer: token(t, "counterparty", payer.Hex()), body: `{"as_of":"April"}`, status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/v1/swaps/swap-1/swap", tc.bearer, tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}

func TestTerminateAndAudit(t *testing.T) {
	s := newServer(t)
	s.book(t)

	rec := s.do(t, http.MethodPost, "/api/v1/swaps/swap-1/terminate", token(t, "counterparty", payer.Hex()), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "terminated", view["status"])
	assert.Equal(t, payer.Hex(), view["terminated_by"])

	rec = s.do(t, http.MethodPost, "/api/v1/swaps/swap-1/terminate", token(t, "counterparty", receiver.Hex()), "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_active", errorCode(t, rec))

	s.audit.mu.Lock()
	defer s.audit.mu.Unlock()
	require.Len(t, s.audit.entries, 3)
	assert.Equal(t, "swap.create", s.audit.entries[0].Action)
	assert.Equal(t, "swap.terminate", s.audit.entries[1].Action)
	assert.Equal(t, "success", s.audit.entries[1].Outcome)
	assert.Equal(t, payer.Hex(), s.audit.entries[1].Actor)
	assert.Equal(t, "rejected", s.audit.entries[2].Outcome)
	assert.Equal(t, "tenant-a", s.audit.entries[2].TenantID)
}

func TestStatementExport(t *testing.T) {
	s := newServer(t)
	s.book(t)

	rec := s.do(t, http.MethodGet, "/api/v1/swaps/swap-1/statement.pdf", token(t, "viewer", "auditor"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = s.do(t, http.MethodGet, "/api/v1/swaps/swap-1/statement.xlsx", token(t, "viewer", "auditor"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
}

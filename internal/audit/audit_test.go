package audit

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", ClientIP(req))

	req.Header.Set("X-Real-IP", " 10.0.0.2 ")
	assert.Equal(t, "10.0.0.2", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "10.0.0.3, 10.0.0.4")
	assert.Equal(t, "10.0.0.3", ClientIP(req))
}

func TestZapLoggerFillsEntry(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := NewZapLogger(zap.New(core))

	err := logger.Log(context.Background(), Entry{
		Action:      "swap.settle",
		AgreementID: "swap-1",
		Metadata:    []byte(`{"amount":1250}`),
	})
	require.NoError(t, err)
	require.Equal(t, 1, logs.Len())

	fields := logs.All()[0].ContextMap()
	assert.True(t, strings.HasPrefix(fields["audit_id"].(string), "audit-"))
	assert.Equal(t, "swap-1", fields["agreement_id"])
}

func TestDigestJSON(t *testing.T) {
	assert.Empty(t, DigestJSON(nil))
	assert.Len(t, DigestJSON([]byte(`{}`)), 64)
}

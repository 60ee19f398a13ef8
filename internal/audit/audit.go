package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Entry represents an audit log entry.
type Entry struct {
	ID            string
	TenantID      string
	Actor         string
	Role          string
	Action        string
	AgreementID   string
	Outcome       string
	Metadata      json.RawMessage
	PayloadDigest string
	IP            string
	UserAgent     string
	CreatedAt     time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates a random audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (e *Entry) fill() {
	if e.ID == "" {
		e.ID = NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.PayloadDigest == "" {
		e.PayloadDigest = DigestJSON(e.Metadata)
	}
}

// ClientIP extracts the client address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// ZapLogger writes audit entries to a structured log. Used when no database
// is configured.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger constructs a log-backed audit logger.
func NewZapLogger(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger.Named("audit")}
}

// Log writes the entry as one structured line.
func (l *ZapLogger) Log(ctx context.Context, entry Entry) error {
	entry.fill()
	l.logger.Info(entry.Action,
		zap.String("audit_id", entry.ID),
		zap.String("tenant_id", entry.TenantID),
		zap.String("actor", entry.Actor),
		zap.String("role", entry.Role),
		zap.String("agreement_id", entry.AgreementID),
		zap.String("outcome", entry.Outcome),
		zap.ByteString("metadata", entry.Metadata),
		zap.String("ip", entry.IP),
		zap.Time("created_at", entry.CreatedAt),
	)
	return nil
}

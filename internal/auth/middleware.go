package auth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Middleware validates JWTs and enforces RBAC.
type Middleware struct {
	secret []byte
	policy Policy
	logger *zap.Logger
}

// NewMiddleware constructs an auth middleware. logger may be nil.
func NewMiddleware(secret []byte, policy Policy, logger *zap.Logger) *Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Middleware{secret: secret, policy: policy, logger: logger}
}

// Wrap applies auth and RBAC to the handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		required, ok := m.policy.RequiredRole(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := ParseJWT(extractBearer(r), m.secret)
		if err != nil {
			m.logger.Debug("rejected token", zap.String("path", r.URL.Path), zap.Error(err))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !RoleAtLeast(identity.Role, required) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func extractBearer(r *http.Request) string {
	if r == nil {
		return ""
	}
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

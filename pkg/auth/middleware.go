package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/veildata/veil-engine/pkg/audit"
)

// Middleware guards API routes with bearer-token authentication. When
// verification is disabled it is a pass-through, so a local deployment
// without an identity provider still works.
type Middleware struct {
	authService AuthService
	auditor     *audit.SecurityAuditor
	enabled     bool
	logger      *zap.Logger
}

// NewMiddleware creates a new auth middleware. enabled mirrors the
// auth.enable_verification configuration switch.
func NewMiddleware(authService AuthService, enabled bool, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		auditor:     audit.NewSecurityAuditor(logger),
		enabled:     enabled,
		logger:      logger,
	}
}

// RequireAuth validates the bearer JWT and sets claims and token in context
// for downstream handlers. With verification disabled, requests pass
// through without claims.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	if !m.enabled {
		return next
	}

	return func(w http.ResponseWriter, r *http.Request) {
		claims, token, err := m.authService.ValidateRequest(r)
		if err != nil {
			m.auditor.LogTokenRejected(err.Error(), r.RemoteAddr)
			m.unauthorized(w, "Authentication required")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		ctx = context.WithValue(ctx, TokenKey, token)
		next(w, r.WithContext(ctx))
	}
}

// unauthorized returns a 401 response with JSON error body.
func (m *Middleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": message,
	})
}

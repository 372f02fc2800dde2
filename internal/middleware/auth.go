package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/benvon/smart-crm/internal/request"
	"go.uber.org/zap"
)

// CallerHeader optionally names the operator or tool behind an admin request, for audit logs
const CallerHeader = "X-Admin-Caller"

// AdminAuth requires "Authorization: Bearer <token>" on every request. An empty token
// rejects everything so a misconfigured server never exposes the admin API.
func AdminAuth(token string, logger *zap.Logger) func(http.Handler) http.Handler {
	want := sha256.Sum256([]byte(token))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				respondErrorJSON(w, r, http.StatusServiceUnavailable, "admin_disabled", "Admin API is not configured", logger)
				return
			}

			scheme, presented, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || presented == "" {
				respondErrorJSON(w, r, http.StatusUnauthorized, "unauthorized", "Missing or malformed Authorization header", logger)
				return
			}

			got := sha256.Sum256([]byte(presented))
			if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
				respondErrorJSON(w, r, http.StatusUnauthorized, "unauthorized", "Invalid admin token", logger)
				return
			}

			next.ServeHTTP(w, r.WithContext(request.WithCaller(r.Context(), callerOf(r))))
		})
	}
}

// callerOf resolves the admin caller of r. Middleware wrapped outside AdminAuth
// never sees the context value, so it falls back to the header.
func callerOf(r *http.Request) string {
	if c := request.Caller(r); c != "" {
		return c
	}
	if c := r.Header.Get(CallerHeader); c != "" {
		return c
	}
	return "admin"
}

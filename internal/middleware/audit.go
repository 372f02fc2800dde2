package middleware

import (
	"net/http"

	logpkg "github.com/benvon/smart-crm/internal/logger"
	"github.com/benvon/smart-crm/internal/request"
	"go.uber.org/zap"
)

// Audit logs every state-changing admin request along with rejected and throttled ones.
// A mutation only succeeds behind AdminAuth, so the caller header is trusted by then.
func Audit(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			ip := logpkg.SanitizeString(request.ClientIP(r), logpkg.MaxGeneralStringLength)
			status := wrapped.statusCode
			switch {
			case status == http.StatusUnauthorized || status == http.StatusForbidden:
				logger.Warn("security_event",
					zap.Int("status_code", status),
					zap.String("method", r.Method),
					zap.String("path", routePath(r)),
					zap.String("ip", ip),
				)
			case status == http.StatusTooManyRequests:
				logger.Warn("rate_limit_violation",
					zap.String("method", r.Method),
					zap.String("path", routePath(r)),
					zap.String("ip", ip),
				)
			case r.Method != http.MethodGet && r.Method != http.MethodOptions && status < http.StatusBadRequest:
				fields := []zap.Field{
					zap.String("caller", logpkg.SanitizeString(callerOf(r), logpkg.MaxGeneralStringLength)),
					zap.String("method", r.Method),
					zap.String("path", routePath(r)),
					zap.Int("status_code", status),
				}
				if id, err := request.UserID(r); err == nil {
					fields = append(fields, zap.String("user_id", id.String()))
				}
				logger.Info("admin_action", fields...)
			}
		})
	}
}

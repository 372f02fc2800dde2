package middleware

import (
	"net/http"

	"github.com/rs/cors"
	"go.uber.org/zap"
)

// CORS allows browser-based admin consoles served from allowedOrigins. With no
// origins configured cross-origin requests are refused.
func CORS(allowedOrigins []string, logger *zap.Logger) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		// rs/cors treats an empty list as "*"
		logger.Info("cors_disabled")
		return func(next http.Handler) http.Handler { return next }
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", CallerHeader},
		AllowCredentials: false,
		MaxAge:           86400,
	})
	logger.Info("cors_configured", zap.Strings("allowed_origins", allowedOrigins))
	return c.Handler
}

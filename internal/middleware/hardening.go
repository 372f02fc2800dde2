package middleware

import (
	"mime"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultMaxRequestSize bounds admin request bodies; worker config documents are tiny
	DefaultMaxRequestSize int64 = 64 << 10
	// DefaultRequestTimeout bounds a single admin request
	DefaultRequestTimeout = 15 * time.Second
)

// SecurityHeaders sets response headers suitable for a JSON-only API
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'")
		h.Set("Cache-Control", "no-store")
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// JSONBody rejects non-JSON bodies on POST/PATCH/PUT and caps every body at maxBytes
func JSONBody(maxBytes int64, logger *zap.Logger) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxRequestSize
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				respondErrorJSON(w, r, http.StatusRequestEntityTooLarge, "request_too_large", "Request body too large", logger)
				return
			}
			switch r.Method {
			case http.MethodPost, http.MethodPatch, http.MethodPut:
				// Bodiless POSTs such as run-now need no content type
				if r.ContentLength != 0 {
					mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
					if err != nil || mediaType != "application/json" {
						respondErrorJSON(w, r, http.StatusUnsupportedMediaType, "unsupported_media_type", "Content-Type must be application/json", logger)
						return
					}
				}
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// Timeout cancels the request context and answers 503 once timeout elapses
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, `{"success":false,"error":"timeout","message":"Request timed out"}`)
	}
}

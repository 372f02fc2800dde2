package request

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type contextKey string

const callerContextKey contextKey = "admin_caller"

// UserIDVar is the route variable naming the user whose worker is administered
const UserIDVar = "user_id"

// ClientIP extracts the client IP from the request, respecting X-Forwarded-For and X-Real-IP.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	return r.RemoteAddr
}

// UserID parses the {user_id} route variable
func UserID(r *http.Request) (uuid.UUID, error) {
	raw, ok := mux.Vars(r)[UserIDVar]
	if !ok {
		return uuid.Nil, fmt.Errorf("missing %s route variable", UserIDVar)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id %q: %w", raw, err)
	}
	return id, nil
}

// WithCaller records the authenticated admin caller on ctx
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}

// Caller returns the admin caller set by the auth middleware, or "" when absent.
func Caller(r *http.Request) string {
	c, _ := r.Context().Value(callerContextKey).(string)
	return c
}

package ai

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type contextKey string

const (
	userIDContextKey contextKey = "user_id"
	jobIDContextKey  contextKey = "job_id"
)

// WithCallContext annotates ctx with the user and job an LLM call is made for
func WithCallContext(ctx context.Context, userID, jobID fmt.Stringer) context.Context {
	ctx = context.WithValue(ctx, userIDContextKey, userID)
	return context.WithValue(ctx, jobIDContextKey, jobID)
}

// ExtractUserID returns the user id recorded by WithCallContext, or ""
func ExtractUserID(ctx context.Context) string {
	return stringValue(ctx, userIDContextKey)
}

// ExtractJobID returns the job id recorded by WithCallContext, or ""
func ExtractJobID(ctx context.Context) string {
	return stringValue(ctx, jobIDContextKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	switch v := ctx.Value(key).(type) {
	case fmt.Stringer:
		return v.String()
	case string:
		return v
	default:
		return ""
	}
}

const (
	// MaxPreviewLength is the maximum length for preview strings in logs
	MaxPreviewLength = 200
	// MaxDebugContentLength bounds full debug logging of prompts and responses
	MaxDebugContentLength = 10000
)

// SanitizePrompt creates a safe preview of a prompt for logging.
// fullLog raises the size limit; control characters are stripped either way.
func SanitizePrompt(prompt string, fullLog bool) string {
	return sanitizeForLog(prompt, fullLog)
}

// SanitizeResponse creates a safe preview of a model response for logging
func SanitizeResponse(response string, fullLog bool) string {
	return sanitizeForLog(response, fullLog)
}

// SanitizeMessages creates sanitized previews of messages for logging
func SanitizeMessages(messages []string, fullLog bool) []string {
	sanitized := make([]string, 0, len(messages))
	for _, msg := range messages {
		sanitized = append(sanitized, sanitizeForLog(msg, fullLog))
	}
	return sanitized
}

func sanitizeForLog(s string, fullLog bool) string {
	if s == "" {
		return ""
	}
	maxLen := MaxPreviewLength
	if fullLog {
		maxLen = MaxDebugContentLength
	}

	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsPrint(r) || r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			b.WriteRune(r)
		}
	}
	s = b.String()

	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}

package ai

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestSanitizePrompt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		fullLog bool
		want    string
	}{
		{name: "empty", in: "", want: ""},
		{name: "keeps newlines and tabs", in: "deals:\n\t- Acme", want: "deals:\n\t- Acme"},
		{name: "strips escape sequences", in: "Acme\x1b[2J\x00", want: "Acme[2J"},
		{name: "repairs invalid utf8", in: "Acme\xff Corp", want: "Acme Corp"},
		{name: "preview truncated", in: strings.Repeat("x", 250), want: strings.Repeat("x", MaxPreviewLength) + "..."},
		{name: "full log keeps more", in: strings.Repeat("x", 250), fullLog: true, want: strings.Repeat("x", 250)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizePrompt(tt.in, tt.fullLog); got != tt.want {
				t.Errorf("SanitizePrompt() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCallContext(t *testing.T) {
	t.Parallel()

	if got := ExtractUserID(context.Background()); got != "" {
		t.Errorf("ExtractUserID(empty) = %q", got)
	}

	userID, jobID := uuid.New(), uuid.New()
	ctx := WithCallContext(context.Background(), userID, jobID)
	if got := ExtractUserID(ctx); got != userID.String() {
		t.Errorf("ExtractUserID() = %q, want %q", got, userID)
	}
	if got := ExtractJobID(ctx); got != jobID.String() {
		t.Errorf("ExtractJobID() = %q, want %q", got, jobID)
	}
}

package validation

import (
	"strings"
	"testing"

	"github.com/benvon/smart-crm/internal/models"
)

type kindsRequest struct {
	CooldownSeconds int                 `validate:"omitempty,min=60"`
	ObservedKinds   []models.EntityKind `validate:"omitempty,unique,dive,entity_kind"`
}

func TestStruct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		req     kindsRequest
		wantErr string
	}{
		{name: "empty is valid", req: kindsRequest{}},
		{name: "valid", req: kindsRequest{CooldownSeconds: 900, ObservedKinds: []models.EntityKind{"deals", "events"}}},
		{name: "cooldown too short", req: kindsRequest{CooldownSeconds: 30}, wantErr: "CooldownSeconds: must be at least 60"},
		{name: "unknown kind", req: kindsRequest{ObservedKinds: []models.EntityKind{"leads"}}, wantErr: `unknown entity kind "leads"`},
		{name: "duplicate kinds", req: kindsRequest{ObservedKinds: []models.EntityKind{"deals", "deals"}}, wantErr: "must not contain duplicates"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Struct(tt.req)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Struct() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Struct() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateEntityKind(t *testing.T) {
	t.Parallel()

	for _, kind := range []string{"contacts", "deals", "events"} {
		if err := ValidateEntityKind(kind); err != nil {
			t.Errorf("ValidateEntityKind(%q) = %v", kind, err)
		}
	}
	if err := ValidateEntityKind("Deals"); err == nil {
		t.Error("expected kinds to be case sensitive")
	}
}

func TestSanitizeText(t *testing.T) {
	t.Parallel()

	got := SanitizeText("  Call\x00 Acme\tnow \n")
	if got != "Call Acme\tnow" {
		t.Errorf("SanitizeText() = %q", got)
	}
}

package overview

import (
	"testing"

	"github.com/benvon/smart-crm/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		text   string
		tag    string
		want   string
		wantOK bool
	}{
		{"present", "<a> hello </a>", "a", "hello", true},
		{"first occurrence wins", "<a>one</a><a>two</a>", "a", "one", true},
		{"missing open", "hello </a>", "a", "", false},
		{"missing close", "<a>hello", "a", "", false},
		{"close before open", "</a><a>x", "a", "", false},
		{"empty body", "<a></a>", "a", "", true},
		{"multiline body", "<a>\nline1\nline2\n</a>", "a", "line1\nline2", true},
		{"other tag", "<b>x</b>", "a", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ExtractTag(tt.text, tt.tag)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBool(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"true":   true,
		"yes":    true,
		"1":      true,
		" true ": true,
		"True":   false,
		"YES":    false,
		"false":  false,
		"no":     false,
		"0":      false,
		"":       false,
		"maybe":  false,
	}
	for in, want := range tests {
		if got := ParseBool(in); got != want {
			t.Errorf("ParseBool(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseActionItems(t *testing.T) {
	t.Parallel()

	block := `ADD: 📞|Call Acme about renewal|follow_up
ADD: 📝 | Send proposal to Globex | sales
REMOVE: stale report
- ADD: ✅|Bulleted item|misc
ADD: too|few
ADD: a|b|c|d
ADD: icon||category
REMOVE:
Some commentary the model added
add: lowercase|is|ignored`

	ops := ParseActionItems(block)
	require.Len(t, ops, 4)
	assert.Equal(t, models.AddActionItem("📞", "Call Acme about renewal", "follow_up"), ops[0])
	assert.Equal(t, models.AddActionItem("📝", "Send proposal to Globex", "sales"), ops[1])
	assert.Equal(t, models.RemoveMatchingActionItems("stale report"), ops[2])
	assert.Equal(t, models.AddActionItem("✅", "Bulleted item", "misc"), ops[3])
}

func TestParseNotifications(t *testing.T) {
	t.Parallel()

	block := "deal|high|Deal advanced|Acme moved to negotiation\r\n" +
		"meeting|low|Missing fields\n" +
		"a|b|c|d|e\n" +
		"event|medium|Demo tomorrow|Prepare the deck\n"

	drafts := ParseNotifications(block)
	require.Len(t, drafts, 2)
	assert.Equal(t, models.NotificationDraft{Kind: "deal", Priority: "high", Title: "Deal advanced", Message: "Acme moved to negotiation"}, drafts[0])
	assert.Equal(t, "Demo tomorrow", drafts[1].Title)
}

func TestParseInsights(t *testing.T) {
	t.Parallel()

	block := `deals|d-1|Close date slipped twice | consider re-qualifying
contacts|c-9
events|e-4|Rescheduled`

	insights := ParseInsights(block)
	require.Len(t, insights, 2)
	assert.Equal(t, models.Insight{EntityKind: "deals", EntityID: "d-1", Text: "Close date slipped twice | consider re-qualifying"}, insights[0])
	assert.Equal(t, "Rescheduled", insights[1].Text)
}

func TestParseRecommendation_Full(t *testing.T) {
	t.Parallel()

	text := `Here is my analysis.
<forecast_update_needed>yes</forecast_update_needed>
<forecast_update_reason>Acme deal moved to negotiation</forecast_update_reason>
<action_items>
ADD: 📞|Call Acme|follow_up
REMOVE: stale report
</action_items>
<notifications>
deal|high|Deal advanced|Acme moved forward
</notifications>
<insights>
deals|123|Probability rose to 70%
</insights>`

	rec := ParseRecommendation(text)
	assert.True(t, rec.ForecastShouldUpdate)
	assert.Equal(t, "Acme deal moved to negotiation", rec.ForecastReason)
	assert.Len(t, rec.ActionItemOps, 2)
	assert.Len(t, rec.Notifications, 1)
	assert.Len(t, rec.Insights, 1)
}

func TestParseRecommendation_Defaults(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"I could not find anything noteworthy.",
		"<forecast_update_needed>true",
		"<action_items>ADD: a|b|c",
		"</insights><insights>",
		"<notifications>||||</notifications>",
		"<<<>>>|||\n\n\r\n",
		"<forecast_update_needed>definitely</forecast_update_needed>",
	}

	for _, in := range inputs {
		rec := ParseRecommendation(in)
		require.NotNil(t, rec, "input %q", in)
		assert.False(t, rec.ForecastShouldUpdate, "input %q", in)
		assert.Empty(t, rec.ActionItemOps, "input %q", in)
		assert.Empty(t, rec.Notifications, "input %q", in)
		assert.Empty(t, rec.Insights, "input %q", in)
		assert.NotNil(t, rec.ActionItemOps)
	}
}

func TestParseRecommendation_NormalizesUnicode(t *testing.T) {
	t.Parallel()

	rec := ParseRecommendation("<action_items>ADD: x|Cafe\u0301 visit|meeting</action_items>")
	require.Len(t, rec.ActionItemOps, 1)
	assert.Equal(t, "Caf\u00e9 visit", rec.ActionItemOps[0].Title)
}

func FuzzParseRecommendation(f *testing.F) {
	f.Add("<forecast_update_needed>true</forecast_update_needed>")
	f.Add("<action_items>ADD: a|b|c\nREMOVE: x</action_items>")
	f.Add("<notifications>a|b|c|d</notifications><insights>a|b|c|d</insights>")
	f.Add("<insights>\xff|\x00|</insights>")

	f.Fuzz(func(t *testing.T, text string) {
		rec := ParseRecommendation(text)
		if rec == nil {
			t.Fatal("ParseRecommendation returned nil")
		}
		for _, op := range rec.ActionItemOps {
			if op.Type == models.ActionItemOpAdd && op.Title == "" {
				t.Fatalf("add op with empty title from %q", text)
			}
			if op.Type == models.ActionItemOpRemoveMatching && op.Pattern == "" {
				t.Fatalf("remove op with empty pattern from %q", text)
			}
		}
	})
}

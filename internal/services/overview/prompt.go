package overview

import (
	"fmt"
	"strings"
	"time"

	"github.com/benvon/smart-crm/internal/models"
)

// MaxDigestsPerKind bounds how many records of each kind are summarized for the model
const MaxDigestsPerKind = 10

// SystemPrompt instructs the model to answer in the tagged format ParseRecommendation reads
const SystemPrompt = `You are a sales operations assistant reviewing recent CRM activity for one user.
Decide whether the sales forecast should be refreshed, which action items to add or remove,
which notifications to send, and note any insights. Answer using exactly these tags:

<forecast_update_needed>true or false</forecast_update_needed>
<forecast_update_reason>one sentence</forecast_update_reason>
<action_items>
ADD: icon|title|category
REMOVE: text contained in titles of items that are no longer relevant
</action_items>
<notifications>
kind|priority|title|message
</notifications>
<insights>
entity_kind|entity_id|text
</insights>

Use one line per entry. Leave a section empty when there is nothing to report.`

// BuildContext renders the user-turn document: forecast figures followed by
// at most MaxDigestsPerKind one-line digests per entity kind
func BuildContext(forecast *models.ForecastSummary, cs *models.ChangeSet, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Current time: %s\n", now.UTC().Format(time.RFC3339))

	b.WriteString("\n## Forecast\n")
	if forecast == nil {
		b.WriteString("Unavailable\n")
	} else {
		fmt.Fprintf(&b, "Open deals: %d\n", forecast.OpenDeals)
		fmt.Fprintf(&b, "Pipeline value: %.2f\n", forecast.PipelineValue)
		fmt.Fprintf(&b, "Weighted value: %.2f\n", forecast.WeightedValue)
		fmt.Fprintf(&b, "Won this month: %.2f\n", forecast.WonThisMonth)
		fmt.Fprintf(&b, "Lost this month: %.2f\n", forecast.LostThisMonth)
	}

	b.WriteString("\n## Changes since last review\n")
	fmt.Fprintf(&b, "Total changes: %d\n", cs.Summary.TotalChanges)

	for _, kind := range models.AllEntityKinds {
		records := cs.Records(kind)
		fmt.Fprintf(&b, "\n### %s (%d)\n", kindHeading(kind), len(records))
		if len(records) == 0 {
			b.WriteString("- none\n")
			continue
		}
		for i, rec := range records {
			if i == MaxDigestsPerKind {
				fmt.Fprintf(&b, "- ... and %d more\n", len(records)-MaxDigestsPerKind)
				break
			}
			b.WriteString(digest(rec))
			b.WriteByte('\n')
		}
	}

	return b.String()
}

// digest renders one record as "- [type] title (id: ..., name: value, ...)"
func digest(rec models.ChangeRecord) string {
	title := rec.Title
	if title == "" {
		title = "(untitled)"
	}
	parts := make([]string, 0, len(rec.Fields)+1)
	parts = append(parts, "id: "+rec.ID.String())
	for _, f := range rec.Fields {
		parts = append(parts, f.Name+": "+singleLine(f.Value))
	}
	return fmt.Sprintf("- [%s] %s (%s)", rec.ChangeType, singleLine(title), strings.Join(parts, ", "))
}

func kindHeading(kind models.EntityKind) string {
	s := string(kind)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

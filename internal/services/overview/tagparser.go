package overview

import (
	"strings"

	"github.com/benvon/smart-crm/internal/models"
	"golang.org/x/text/unicode/norm"
)

// Section names in a model response
const (
	TagForecastUpdateNeeded = "forecast_update_needed"
	TagForecastUpdateReason = "forecast_update_reason"
	TagActionItems          = "action_items"
	TagNotifications        = "notifications"
	TagInsights             = "insights"
)

const (
	addPrefix    = "ADD:"
	removePrefix = "REMOVE:"
)

// ParseRecommendation decodes the five tagged sections of a model response.
// Missing or malformed sections decode to their zero values; it never fails.
func ParseRecommendation(text string) *models.Recommendation {
	text = norm.NFC.String(text)
	rec := models.NoOpRecommendation()

	if v, ok := ExtractTag(text, TagForecastUpdateNeeded); ok {
		rec.ForecastShouldUpdate = ParseBool(v)
	}
	if v, ok := ExtractTag(text, TagForecastUpdateReason); ok {
		rec.ForecastReason = v
	}
	if v, ok := ExtractTag(text, TagActionItems); ok {
		rec.ActionItemOps = ParseActionItems(v)
	}
	if v, ok := ExtractTag(text, TagNotifications); ok {
		rec.Notifications = ParseNotifications(v)
	}
	if v, ok := ExtractTag(text, TagInsights); ok {
		rec.Insights = ParseInsights(v)
	}
	return rec
}

// ExtractTag returns the trimmed text between the first <name> and the next </name>
func ExtractTag(text, name string) (string, bool) {
	open := "<" + name + ">"
	start := strings.Index(text, open)
	if start < 0 {
		return "", false
	}
	rest := text[start+len(open):]
	end := strings.Index(rest, "</"+name+">")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// ParseBool maps exactly "true", "yes" and "1" to true
func ParseBool(s string) bool {
	switch strings.TrimSpace(s) {
	case "true", "yes", "1":
		return true
	default:
		return false
	}
}

// ParseActionItems decodes ADD: icon|title|category and REMOVE: pattern lines
func ParseActionItems(block string) []models.ActionItemOp {
	ops := make([]models.ActionItemOp, 0)
	for _, line := range splitLines(block) {
		line = trimBullet(line)
		switch {
		case strings.HasPrefix(line, addPrefix):
			fields := splitFields(strings.TrimPrefix(line, addPrefix), -1)
			if len(fields) != 3 || fields[1] == "" {
				continue
			}
			ops = append(ops, models.AddActionItem(fields[0], fields[1], fields[2]))
		case strings.HasPrefix(line, removePrefix):
			pattern := strings.TrimSpace(strings.TrimPrefix(line, removePrefix))
			if pattern == "" {
				continue
			}
			ops = append(ops, models.RemoveMatchingActionItems(pattern))
		}
	}
	return ops
}

// ParseNotifications decodes kind|priority|title|message lines
func ParseNotifications(block string) []models.NotificationDraft {
	drafts := make([]models.NotificationDraft, 0)
	for _, line := range splitLines(block) {
		fields := splitFields(trimBullet(line), -1)
		if len(fields) != 4 || fields[2] == "" {
			continue
		}
		drafts = append(drafts, models.NotificationDraft{
			Kind:     fields[0],
			Priority: fields[1],
			Title:    fields[2],
			Message:  fields[3],
		})
	}
	return drafts
}

// ParseInsights decodes entity_kind|entity_id|text lines; text may itself contain '|'
func ParseInsights(block string) []models.Insight {
	insights := make([]models.Insight, 0)
	for _, line := range splitLines(block) {
		fields := splitFields(trimBullet(line), 3)
		if len(fields) != 3 || fields[2] == "" {
			continue
		}
		insights = append(insights, models.Insight{
			EntityKind: fields[0],
			EntityID:   fields[1],
			Text:       fields[2],
		})
	}
	return insights
}

func splitLines(block string) []string {
	raw := strings.Split(strings.ReplaceAll(block, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func splitFields(s string, n int) []string {
	fields := strings.SplitN(s, "|", n)
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

func trimBullet(line string) string {
	for _, bullet := range []string{"- ", "* "} {
		if strings.HasPrefix(line, bullet) {
			return strings.TrimSpace(line[len(bullet):])
		}
	}
	return line
}

package models

// ActionItemOpType distinguishes action item operations decoded from model output
type ActionItemOpType string

const (
	ActionItemOpAdd            ActionItemOpType = "add"
	ActionItemOpRemoveMatching ActionItemOpType = "remove_matching"
)

// ActionItemOp is either an Add (Icon, Title, Category) or a RemoveMatching (Pattern)
type ActionItemOp struct {
	Type     ActionItemOpType `json:"type"`
	Icon     string           `json:"icon,omitempty"`
	Title    string           `json:"title,omitempty"`
	Category string           `json:"category,omitempty"`
	Pattern  string           `json:"pattern,omitempty"`
}

// AddActionItem returns an Add operation
func AddActionItem(icon, title, category string) ActionItemOp {
	return ActionItemOp{Type: ActionItemOpAdd, Icon: icon, Title: title, Category: category}
}

// RemoveMatchingActionItems returns a RemoveMatching operation
func RemoveMatchingActionItems(pattern string) ActionItemOp {
	return ActionItemOp{Type: ActionItemOpRemoveMatching, Pattern: pattern}
}

// NotificationDraft is a notification proposed by the model, not yet persisted
type NotificationDraft struct {
	Kind     string `json:"kind"`
	Priority string `json:"priority"`
	Title    string `json:"title"`
	Message  string `json:"message"`
}

// Insight is a free-text observation about one entity
type Insight struct {
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	Text       string `json:"text"`
}

// Recommendation is the structured instruction set decoded from a model response
type Recommendation struct {
	ForecastShouldUpdate bool                `json:"forecast_should_update"`
	ForecastReason       string              `json:"forecast_reason,omitempty"`
	ActionItemOps        []ActionItemOp      `json:"action_item_ops"`
	Notifications        []NotificationDraft `json:"notifications"`
	Insights             []Insight           `json:"insights"`
}

// NoOpRecommendation returns a Recommendation that changes nothing
func NoOpRecommendation() *Recommendation {
	return &Recommendation{
		ActionItemOps: []ActionItemOp{},
		Notifications: []NotificationDraft{},
		Insights:      []Insight{},
	}
}

// IsNoOp reports whether executing r would have no effect
func (r *Recommendation) IsNoOp() bool {
	return !r.ForecastShouldUpdate && len(r.ActionItemOps) == 0 && len(r.Notifications) == 0
}

package ai

import (
	"context"
	"fmt"
	"sort"
)

// Gateway is the language-model completion interface used by the overview analyzer
type Gateway interface {
	// Complete sends a system prompt plus conversation messages and returns the model's reply
	Complete(ctx context.Context, systemPrompt string, messages []ChatMessage, opts CompletionOptions) (*Completion, error)
}

// ChatMessage represents a message in a conversation
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// CompletionOptions selects the provider and sampling settings for one call
type CompletionOptions struct {
	Provider    string  `json:"provider,omitempty"`
	Model       string  `json:"model,omitempty"`
	Temperature float64 `json:"temperature"`
}

// Completion is a model reply
type Completion struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
}

// ProviderFactory creates a gateway from provider-specific configuration
type ProviderFactory func(config map[string]string) (Gateway, error)

// ProviderRegistry stores available AI providers
type ProviderRegistry struct {
	providers map[string]ProviderFactory
}

// NewProviderRegistry creates a new provider registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]ProviderFactory),
	}
}

// Register registers a provider factory
func (r *ProviderRegistry) Register(name string, factory ProviderFactory) {
	r.providers[name] = factory
}

// GetProvider builds the named provider
func (r *ProviderRegistry) GetProvider(name string, config map[string]string) (Gateway, error) {
	factory, ok := r.providers[name]
	if !ok {
		return nil, &ErrProviderNotFound{Name: name}
	}
	return factory(config)
}

// Names returns the registered provider names, sorted
func (r *ProviderRegistry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ErrProviderNotFound is returned when a provider is not found
type ErrProviderNotFound struct {
	Name string
}

func (e *ErrProviderNotFound) Error() string {
	return "AI provider not found: " + e.Name
}

// Router dispatches completions to a gateway chosen by CompletionOptions.Provider
type Router struct {
	gateways        map[string]Gateway
	defaultProvider string
}

// NewRouter creates a router whose fallback is defaultProvider
func NewRouter(defaultProvider string, gateways map[string]Gateway) *Router {
	return &Router{gateways: gateways, defaultProvider: defaultProvider}
}

// Complete implements Gateway
func (r *Router) Complete(ctx context.Context, systemPrompt string, messages []ChatMessage, opts CompletionOptions) (*Completion, error) {
	name := opts.Provider
	if name == "" {
		name = r.defaultProvider
	}
	gw, ok := r.gateways[name]
	if !ok {
		return nil, fmt.Errorf("complete: %w", &ErrProviderNotFound{Name: name})
	}
	return gw.Complete(ctx, systemPrompt, messages, opts)
}

var _ Gateway = (*Router)(nil)

package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

const (
	// DefaultOpenAIModel is the default model to use
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultOpenAIBaseURL is the default OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultTimeout bounds a call whose context carries no deadline
	DefaultTimeout = 30 * time.Second

	// ErrNoChoicesInResponse is returned when the API response has no choices
	ErrNoChoicesInResponse = "no choices in response"
)

// OpenAIProvider implements Gateway using OpenAI's chat completions API
type OpenAIProvider struct {
	client    openai.Client
	model     string
	logger    *zap.Logger
	debugMode bool
	timeout   time.Duration
}

// NewOpenAIProviderWithLogger creates a new OpenAI provider with logger support.
// SDK-level retries are disabled; failed cycles are retried by the job queue.
// The HTTP client has no overall timeout: the caller's context deadline governs each call.
func NewOpenAIProviderWithLogger(apiKey string, baseURL string, model string, logger *zap.Logger, debugMode bool) *OpenAIProvider {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := &http.Client{}

	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	)

	return &OpenAIProvider{
		client:    client,
		model:     model,
		logger:    logger,
		debugMode: debugMode,
		timeout:   DefaultTimeout,
	}
}

// Complete implements Gateway
func (p *OpenAIProvider) Complete(ctx context.Context, systemPrompt string, messages []ChatMessage, opts CompletionOptions) (*Completion, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	model := p.model
	if opts.Model != "" {
		model = opts.Model
	}

	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	params = append(params, openai.SystemMessage(systemPrompt))
	for _, msg := range messages {
		switch msg.Role {
		case "assistant":
			params = append(params, openai.AssistantMessage(msg.Content))
		default:
			params = append(params, openai.UserMessage(msg.Content))
		}
	}

	req := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    params,
		Temperature: openai.Float(opts.Temperature),
	}

	userID := ExtractUserID(ctx)
	jobID := ExtractJobID(ctx)
	if p.debugMode {
		previews := make([]string, 0, len(messages))
		for _, msg := range messages {
			previews = append(previews, msg.Content)
		}
		p.logger.Debug("llm_api_request",
			zap.String("operation", "complete"),
			zap.String("model", model),
			zap.Int("message_count", len(messages)),
			zap.String("system_prompt_preview", SanitizePrompt(systemPrompt, false)),
			zap.Strings("message_previews", SanitizeMessages(previews, true)),
			zap.String("user_id", userID),
			zap.String("job_id", jobID),
		)
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, req)
	latency := time.Since(start)
	if err != nil {
		p.logger.Warn("llm_api_error",
			zap.String("operation", "complete"),
			zap.String("model", model),
			zap.Error(err),
			zap.String("user_id", userID),
			zap.String("job_id", jobID),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
		if apiErr := ClassifyError(err); apiErr != nil {
			return nil, fmt.Errorf("chat completion failed: %w", apiErr)
		}
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New(ErrNoChoicesInResponse)
	}

	content := resp.Choices[0].Message.Content
	if p.debugMode {
		p.logger.Debug("llm_api_response",
			zap.String("operation", "complete"),
			zap.String("model", resp.Model),
			zap.Int("response_length", len(content)),
			zap.String("response_preview", SanitizeResponse(content, true)),
			zap.String("user_id", userID),
			zap.String("job_id", jobID),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}

	return &Completion{
		Content:          content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

var _ Gateway = (*OpenAIProvider)(nil)

// RegisterOpenAI registers the OpenAI provider with the registry
func RegisterOpenAI(registry *ProviderRegistry, logger *zap.Logger, debugMode bool) {
	registry.Register("openai", func(config map[string]string) (Gateway, error) {
		apiKey, ok := config["api_key"]
		if !ok || apiKey == "" {
			return nil, fmt.Errorf("openai api_key is required")
		}
		return NewOpenAIProviderWithLogger(apiKey, config["base_url"], config["model"], logger, debugMode), nil
	})
}

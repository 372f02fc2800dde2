package overview

import (
	"context"
	"errors"
	"time"

	"github.com/benvon/smart-crm/internal/database"
	"github.com/benvon/smart-crm/internal/logger"
	"github.com/benvon/smart-crm/internal/metrics"
	"github.com/benvon/smart-crm/internal/models"
	"github.com/benvon/smart-crm/internal/services/ai"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultAnalysisTimeout bounds a single language-model call
const DefaultAnalysisTimeout = 45 * time.Second

// AnalyzerConfig configures the gateway call
type AnalyzerConfig struct {
	Options ai.CompletionOptions
	Timeout time.Duration
}

// Analyzer turns a change set into a Recommendation via the language-model gateway
type Analyzer struct {
	gateway  ai.Gateway
	forecast database.ForecastRepositoryInterface
	cfg      AnalyzerConfig
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *zap.Logger
}

// NewAnalyzer creates an analyzer
func NewAnalyzer(gateway ai.Gateway, forecast database.ForecastRepositoryInterface, cfg AnalyzerConfig, log *zap.Logger) *Analyzer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultAnalysisTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Analyzer{
		gateway:  gateway,
		forecast: forecast,
		cfg:      cfg,
		now:      time.Now,
		logger:   log,
	}
}

// WithClock overrides the clock used for the context document
func (a *Analyzer) WithClock(now func() time.Time) *Analyzer {
	a.now = now
	return a
}

// WithMetrics records token usage of every gateway call on m
func (a *Analyzer) WithMetrics(m *metrics.Metrics) *Analyzer {
	a.metrics = m
	return a
}

// Analyze returns a no-op Recommendation without calling the gateway when cs has no changes.
// Gateway failures are returned as AnalysisError; an unparseable reply yields an empty Recommendation.
func (a *Analyzer) Analyze(ctx context.Context, userID uuid.UUID, cs *models.ChangeSet) (*models.Recommendation, error) {
	if cs == nil || !cs.Summary.HasChanges {
		return models.NoOpRecommendation(), nil
	}

	now := a.now()
	summary, err := a.forecast.Summary(ctx, userID, now)
	if err != nil {
		a.logger.Warn("overview_forecast_summary_unavailable",
			zap.String("user_id", logger.SanitizeUserID(userID.String())),
			zap.String("error", logger.SanitizeError(err)),
		)
		summary = nil
	}

	document := BuildContext(summary, cs, now)

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	completion, err := a.gateway.Complete(callCtx, SystemPrompt,
		[]ai.ChatMessage{{Role: "user", Content: document}}, a.cfg.Options)
	if err != nil {
		a.logger.Warn("overview_gateway_call_failed",
			zap.String("user_id", logger.SanitizeUserID(userID.String())),
			zap.Bool("timeout", ai.IsTimeoutError(err) || errors.Is(callCtx.Err(), context.DeadlineExceeded)),
			zap.Bool("rate_limited", ai.IsRateLimitError(err)),
			zap.Bool("quota_exceeded", ai.IsQuotaError(err)),
			logger.ErrorField(err),
		)
		return nil, &AnalysisError{Err: err}
	}

	a.metrics.AddTokens(completion.PromptTokens, completion.CompletionTokens)

	rec := ParseRecommendation(completion.Content)
	a.logger.Debug("overview_analysis_parsed",
		zap.String("user_id", logger.SanitizeUserID(userID.String())),
		zap.Bool("forecast_should_update", rec.ForecastShouldUpdate),
		zap.Int("action_item_ops", len(rec.ActionItemOps)),
		zap.Int("notifications", len(rec.Notifications)),
		zap.Int("insights", len(rec.Insights)),
		zap.Int64("prompt_tokens", completion.PromptTokens),
	)
	return rec, nil
}

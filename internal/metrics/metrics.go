// Package metrics exposes Prometheus collectors for the overview pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "smart_crm"

// Cycle outcomes
const (
	OutcomeSuccess = "success"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Job dispositions
const (
	JobAcked       = "acked"
	JobRetried     = "retried"
	JobDeadLetter  = "dead_lettered"
	JobRescheduled = "rescheduled"
)

// Metrics holds the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	cycles        *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	actions       *prometheus.CounterVec
	jobs          *prometheus.CounterVec
	schedules     *prometheus.CounterVec
	llmTokens     *prometheus.CounterVec
}

// New registers the collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overview",
			Name:      "cycles_total",
			Help:      "Overview cycles by outcome and reason.",
		}, []string{"outcome", "reason"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "overview",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each overview stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage"}),
		actions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "overview",
			Name:      "actions_total",
			Help:      "Side effects applied by the action executor.",
		}, []string{"action"}),
		jobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "processed_total",
			Help:      "Cycle jobs by final disposition.",
		}, []string{"disposition"}),
		schedules: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "scheduled_total",
			Help:      "Schedule requests by trigger and whether they were enqueued.",
		}, []string{"trigger", "enqueued"}),
		llmTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Language model tokens consumed.",
		}, []string{"direction"}),
	}
}

// CycleFinished counts one cycle
func (m *Metrics) CycleFinished(outcome, reason string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome, reason).Inc()
}

// ObserveStage records how long stage took since start
func (m *Metrics) ObserveStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// AddActions adds n to the counter for action
func (m *Metrics) AddActions(action string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.actions.WithLabelValues(action).Add(float64(n))
}

// JobDisposition counts how a job left the processor
func (m *Metrics) JobDisposition(disposition string) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(disposition).Inc()
}

// Scheduled counts a schedule request
func (m *Metrics) Scheduled(manual, enqueued bool) {
	if m == nil {
		return
	}
	trigger := "routine"
	if manual {
		trigger = "manual"
	}
	label := "false"
	if enqueued {
		label = "true"
	}
	m.schedules.WithLabelValues(trigger, label).Inc()
}

// AddTokens records prompt and completion token usage
func (m *Metrics) AddTokens(prompt, completion int64) {
	if m == nil {
		return
	}
	if prompt > 0 {
		m.llmTokens.WithLabelValues("prompt").Add(float64(prompt))
	}
	if completion > 0 {
		m.llmTokens.WithLabelValues("completion").Add(float64(completion))
	}
}

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

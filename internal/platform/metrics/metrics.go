package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for auth and account flows.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	AuthOutcomes          *prometheus.CounterVec
	TokenExchangeDuration *prometheus.HistogramVec
	AccountOperations     *prometheus.CounterVec
	ManagementDuration    *prometheus.HistogramVec
	RateLimited           *prometheus.CounterVec
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AuthOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudgate_auth_outcomes_total",
			Help: "Authentication attempts by flow and outcome",
		}, []string{"flow", "outcome"}),
		TokenExchangeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cloudgate_token_exchange_duration_seconds",
			Help:    "Duration of token endpoint calls by grant type",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"grant_type"}),
		AccountOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudgate_account_operations_total",
			Help: "Self-service account operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		ManagementDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cloudgate_management_api_duration_seconds",
			Help:    "Duration of management API calls by operation",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}),
		RateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudgate_rate_limited_total",
			Help: "Requests rejected by the per-client limiter",
		}, []string{"route"}),
	}
}

// IncAuthOutcome records one authentication attempt.
func (m *Metrics) IncAuthOutcome(flow, outcome string) {
	if m == nil {
		return
	}
	m.AuthOutcomes.WithLabelValues(flow, outcome).Inc()
}

// ObserveTokenExchange records a token endpoint call started at start.
func (m *Metrics) ObserveTokenExchange(grantType string, start time.Time) {
	if m == nil {
		return
	}
	m.TokenExchangeDuration.WithLabelValues(grantType).Observe(time.Since(start).Seconds())
}

// IncAccountOperation records one account operation outcome.
func (m *Metrics) IncAccountOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.AccountOperations.WithLabelValues(operation, outcome).Inc()
}

// ObserveManagementCall records a management API call started at start.
func (m *Metrics) ObserveManagementCall(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.ManagementDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// IncRateLimited records a rejected request.
func (m *Metrics) IncRateLimited(route string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(route).Inc()
}

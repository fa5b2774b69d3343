package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WeatherPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weather_polls_total",
			Help: "Total number of per-district weather polls (count)",
		},
		[]string{"status"},
	)

	ProviderFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weather_provider_fallback_total",
			Help: "Total number of times a weather provider failed and the chain moved on (count)",
		},
		[]string{"provider"},
	)

	CachedDistricts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "weather_cached_districts",
			Help: "Number of districts with a cached weather snapshot (count)",
		},
	)

	RuleEvaluationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rule_evaluations_total",
			Help: "Total number of advisory rule evaluations (count)",
		},
	)

	ActiveRules = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_rules",
			Help: "Number of active advisory rules (count)",
		},
	)

	CyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "advisory_cycles_total",
			Help: "Total number of completed advisory cycles (count)",
		},
	)

	CycleDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "advisory_cycle_duration_seconds",
			Help:    "Duration of advisory cycles in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	OrchestratorDedupTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orchestrator_dedup_total",
			Help: "Total number of farmers skipped by the cycle dedup set (count)",
		},
	)

	AdvisoriesDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "advisories_dispatched_total",
			Help: "Total number of advisories handed to notification channels (count)",
		},
		[]string{"channel"},
	)

	DeliveryLogsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_logs_total",
			Help: "Total number of delivery log status writes (count)",
		},
		[]string{"status"},
	)

	DeliveryDedupTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_dedup_total",
			Help: "Total number of advisories suppressed by the hour-bucket dedup (count)",
		},
	)

	NotificationsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of notification publishes (count)",
		},
		[]string{"channel", "status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)
)

func RegisterWeatherMetrics() {
	prometheus.MustRegister(WeatherPollsTotal)
	prometheus.MustRegister(ProviderFallbackTotal)
	prometheus.MustRegister(CachedDistricts)
}

func RegisterRuleMetrics() {
	prometheus.MustRegister(RuleEvaluationsTotal)
	prometheus.MustRegister(ActiveRules)
}

func RegisterOrchestratorMetrics() {
	prometheus.MustRegister(CyclesTotal)
	prometheus.MustRegister(CycleDurationSeconds)
	prometheus.MustRegister(OrchestratorDedupTotal)
	prometheus.MustRegister(AdvisoriesDispatchedTotal)
}

func RegisterDeliveryMetrics() {
	prometheus.MustRegister(DeliveryLogsTotal)
	prometheus.MustRegister(DeliveryDedupTotal)
	prometheus.MustRegister(NotificationsSentTotal)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterRateLimitMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func SetCachedDistricts(count int) {
	CachedDistricts.Set(float64(count))
}

func SetActiveRules(count int) {
	ActiveRules.Set(float64(count))
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_events_ingested_total",
			Help: "Total number of event records produced by the normalizer (count)",
		},
		[]string{"shape"},
	)

	EnrichmentStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_enrichment_steps_total",
			Help: "Per-step enrichment outcomes (count)",
		},
		[]string{"step", "status"},
	)

	SinkDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_sink_deliveries_total",
			Help: "Per-sink delivery outcomes (count)",
		},
		[]string{"sink", "status"},
	)

	PipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beacon_pipeline_duration_ms",
			Help:    "End-to-end enrich+dispatch duration per event record in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"status"},
	)

	ProviderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beacon_provider_duration_ms",
			Help:    "Fact provider call duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"provider", "status"},
	)

	GeoCacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_geo_cache_requests_total",
			Help: "Geo lookup cache hits and misses (count)",
		},
		[]string{"result"},
	)

	WebhookRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_webhook_requests_total",
			Help: "Alert webhook relay outcomes (count)",
		},
		[]string{"status"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_rate_limit_requests_total",
			Help: "Requests allowed or limited by the rate limiter (count)",
		},
		[]string{"decision"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "beacon_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_circuit_breaker_requests_total",
			Help: "Requests passing through a circuit breaker (count)",
		},
		[]string{"name", "state"},
	)
)

func RegisterPipelineMetrics() {
	prometheus.MustRegister(
		EventsIngestedTotal,
		EnrichmentStepsTotal,
		SinkDeliveriesTotal,
		PipelineDuration,
		ProviderDuration,
		GeoCacheRequestsTotal,
		WebhookRequestsTotal,
	)
}

func RegisterHTTPMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState, CircuitBreakerRequests)
}

func ObservePipelineDuration(d time.Duration, status string) {
	PipelineDuration.WithLabelValues(status).Observe(float64(d.Milliseconds()))
}

func ObserveProviderDuration(provider string, d time.Duration, status string) {
	ProviderDuration.WithLabelValues(provider, status).Observe(float64(d.Milliseconds()))
}

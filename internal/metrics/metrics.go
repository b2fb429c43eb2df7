package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jobassign/internal/model"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Runs counts finished optimization runs by schedule and final status.
	Runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimizer_runs_total", Help: "Optimization runs by schedule and status."},
		[]string{"schedule", "status"},
	)
	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "optimizer_run_duration_seconds", Help: "Wall time of optimization runs.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60}},
		[]string{"schedule"},
	)
	// Moves counts annealer candidates by what happened to them.
	Moves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimizer_moves_total", Help: "Annealing moves by outcome."},
		[]string{"outcome"},
	)
	FinalUtility = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "optimizer_final_utility", Help: "Utility of the last completed run."},
	)
	ActiveRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "optimizer_active_runs", Help: "Runs currently holding a slot."},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the dedicated registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(Runs, RunDuration, Moves, FinalUtility, ActiveRuns)
		Registry.MustRegister(WebhookDeliveries, WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// Handler serves the dedicated registry.
func Handler() http.Handler {
	RegisterDefault()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// ObserveRun records a finished run.
func ObserveRun(schedule, status string, seconds float64, stats model.RunStats, utility float64) {
	Runs.WithLabelValues(schedule, status).Inc()
	RunDuration.WithLabelValues(schedule).Observe(seconds)
	Moves.WithLabelValues("improved").Add(float64(stats.Improvements))
	Moves.WithLabelValues("accepted_worse").Add(float64(stats.AcceptedWorse))
	Moves.WithLabelValues("rejected").Add(float64(stats.Rejected))
	if status == model.RunCompleted {
		FinalUtility.Set(utility)
	}
}

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service.
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

	// PlanPasses counts optimization passes by outcome
	PlanPasses = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "plan_passes_total", Help: "Optimization passes by status."},
		[]string{"status"},
	)
	// PlanPassDuration tracks whole-pass wall time
	PlanPassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "plan_pass_duration_seconds", Help: "Optimization pass duration in seconds.", Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}},
	)
	// JobsPlaced counts jobs committed to a worker-day per pass
	JobsPlaced = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "plan_jobs_placed_total", Help: "Jobs placed by the assignment heuristic."},
	)
	// JobsUnplaced counts jobs the heuristic could not place, by reason
	JobsUnplaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "plan_jobs_unplaced_total", Help: "Jobs left unplaced, by reason."},
		[]string{"reason"},
	)
	// GeocodeFallbacks counts addresses resolved to the fallback depot
	GeocodeFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "geocode_fallbacks_total", Help: "Geocoding failures resolved via the fallback depot."},
	)
	// TravelFallbacks counts routing-provider failures served geometrically
	TravelFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "travel_fallbacks_total", Help: "Travel estimates served by the geometric fallback."},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(PlanPasses)
		Registry.MustRegister(PlanPassDuration)
		Registry.MustRegister(JobsPlaced)
		Registry.MustRegister(JobsUnplaced)
		Registry.MustRegister(GeocodeFallbacks)
		Registry.MustRegister(TravelFallbacks)
		Registry.MustRegister(WebhookDeliveries)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

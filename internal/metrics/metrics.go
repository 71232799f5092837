package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, route pattern, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// RouteMutations counts route and assignment writes by operation and outcome
	RouteMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "routes_mutations_total", Help: "Route and assignment mutations by operation and outcome."},
		[]string{"op", "outcome"},
	)
	// ExtractionFailures counts order detail extractions downgraded to the empty default
	ExtractionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "routes_order_extraction_failures_total", Help: "Order detail extractions that fell back to the empty default."},
		[]string{"reason"},
	)
	// RosterSize observes the number of clients per enriched roster
	RosterSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "routes_roster_clients", Help: "Clients per enriched roster.", Buckets: []float64{0, 5, 10, 25, 50, 100, 250, 500}},
	)
	// EventsPublished counts route change events by type and outcome
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "routes_events_published_total", Help: "Route change events by type and outcome."},
		[]string{"type", "outcome"},
	)
	// StreamSubscribers tracks open SSE and websocket subscribers
	StreamSubscribers = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "routes_stream_subscribers", Help: "Open event stream subscribers by transport."},
		[]string{"transport"},
	)
	// EventsDropped counts events a broker discarded because a subscriber buffer was full
	EventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "routes_events_dropped_total", Help: "Route events dropped on full subscriber buffers, by broker."},
		[]string{"broker"},
	)
	// WebhookDeliveries counts forwarded events per target by final outcome
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "routes_webhook_deliveries_total", Help: "Webhook deliveries by final outcome."},
		[]string{"outcome"},
	)
)

// RegisterDefault registers collectors to the service registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(RouteMutations, ExtractionFailures, RosterSize, EventsPublished, StreamSubscribers, EventsDropped, WebhookDeliveries)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// Outcome labels a mutation result.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

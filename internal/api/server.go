package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"flagroutes/internal/events"
	"flagroutes/internal/flags"
	"flagroutes/internal/metrics"
	"flagroutes/internal/routes"
	"flagroutes/internal/store"
)

// Pinger is implemented by dependencies checked by /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	Routes *routes.Manager
	Query  *routes.Query
	Broker events.Broker
	Log    logrus.FieldLogger

	// Heartbeat is the idle interval between stream keepalives.
	Heartbeat time.Duration
	limiter   *rate.Limiter
	checks    map[string]Pinger
	settings  map[string]any
}

type Options struct {
	Log   logrus.FieldLogger
	Flags flags.Options
	// RateRPS <= 0 disables rate limiting.
	RateRPS   float64
	RateBurst int
	// Settings is echoed by /debug/info; keep secrets out of it.
	Settings map[string]any
}

// NewServer wires the route services over st. A nil broker selects the in-process one.
func NewServer(st store.Store, broker events.Broker, opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	if broker == nil {
		broker = events.NewMemory().WithLogger(log)
	}
	s := &Server{
		Routes:    routes.NewManager(st, broker, log),
		Query:     routes.NewQuery(st, opts.Flags, log),
		Broker:    broker,
		Log:       log,
		Heartbeat: 15 * time.Second,
		checks:    map[string]Pinger{},
		settings:  opts.Settings,
	}
	if p, ok := st.(Pinger); ok {
		s.checks["database"] = p
	}
	if p, ok := broker.(Pinger); ok {
		s.checks["redis"] = p
	}
	if opts.RateRPS > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = int(opts.RateRPS) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateRPS), burst)
	}
	return s
}

// Handler returns the full route table wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	metrics.RegisterDefault()
	mux := http.NewServeMux()

	// Routes
	mux.HandleFunc("/v1/routes", s.RoutesIndexHandler)
	mux.HandleFunc("/v1/routes/", s.RouteByIDHandler) // includes /clients, /view, /navigation, /events/*

	// Clients
	mux.HandleFunc("/v1/clients/", s.ClientsHandler) // unassigned, {id}/route, {id}/routes

	// All-route event streams
	mux.HandleFunc("/v1/events/stream", func(w http.ResponseWriter, r *http.Request) {
		s.streamSSE(w, r, events.AllRoutes)
	})
	mux.HandleFunc("/v1/events/ws", func(w http.ResponseWriter, r *http.Request) {
		s.streamWS(w, r, events.AllRoutes)
	})

	// Health and ops
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/info", s.DebugJSON)

	var h http.Handler = mux
	h = s.rateLimit(h)
	h = metricsMiddleware(h)
	h = s.logMiddleware(h)
	h = requestID(h)
	return h
}

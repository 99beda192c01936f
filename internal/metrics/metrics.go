// Package metrics provides Prometheus instrumentation for the market engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TicksTotal counts completed market tick sweeps.
	TicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crypto_ticks_total",
		Help: "Total number of completed price tick sweeps",
	})

	// TickDuration tracks how long a full tick sweep takes.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crypto_tick_duration_seconds",
		Help:    "Price tick sweep duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// TradesTotal counts executed trades, partitioned by type.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crypto_trades_total",
		Help: "Total number of trades executed",
	}, []string{"type"})

	// TriggerExecutionsTotal counts trigger order resolutions by outcome.
	TriggerExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crypto_trigger_executions_total",
		Help: "Trigger order executions by outcome",
	}, []string{"outcome"})

	// MarketEventsTotal counts fired market events by scope.
	MarketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crypto_market_events_total",
		Help: "Market events fired, by scope",
	}, []string{"scope"})

	// BalancerMechanismsTotal counts balancer mechanism firings.
	BalancerMechanismsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crypto_balancer_mechanisms_total",
		Help: "Win-rate balancer mechanism firings",
	}, []string{"mechanism"})

	// WinRate tracks the last sampled player win rate.
	WinRate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crypto_win_rate",
		Help: "Last sampled fraction of traded portfolios in profit",
	})

	// BalancerIntensity tracks the current intervention intensity.
	BalancerIntensity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crypto_balancer_intensity",
		Help: "Current win-rate balancer intervention intensity",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crypto_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crypto_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crypto_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Package metrics exposes counters and gauges for the dispatcher and
// receiver engine over an optional HTTP /metrics endpoint. Grounded on
// prometheus.go's promauto.NewCounterVec/NewGaugeVec construction style and
// main.go's promhttp.Handler()-backed /metrics registration.
package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the dispatcher and receiver engine update.
type Metrics struct {
	dispatched      *prometheus.CounterVec
	dispatchErrors  *prometheus.CounterVec
	flushLatency    *prometheus.HistogramVec
	rateLimitDrops  *prometheus.CounterVec
	heartbeatMisses *prometheus.CounterVec
	subscriberCount prometheus.Gauge
}

// New constructs and registers every collector against the default
// registry, matching NewPrometheusMetrics' construction style.
func New() *Metrics {
	return &Metrics{
		dispatched: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oscrouter",
			Name:      "dispatched_total",
			Help:      "Inbound OSC messages successfully routed, by family.",
		}, []string{"family"}),
		dispatchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oscrouter",
			Name:      "dispatch_errors_total",
			Help:      "Inbound OSC messages rejected, by reason.",
		}, []string{"reason"}),
		flushLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "oscrouter",
			Name:      "flush_latency_seconds",
			Help:      "Time spent sending one coalesced update batch to all endpoints of a receiver.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"receiver"}),
		rateLimitDrops: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oscrouter",
			Name:      "rate_limit_skips_total",
			Help:      "Updates that arrived while a (receiver,source) flush was already in flight.",
		}, []string{"receiver"}),
		heartbeatMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oscrouter",
			Name:      "heartbeat_misses_total",
			Help:      "Missed pongs recorded against a view-client subscription.",
		}, []string{"subscriber"}),
		subscriberCount: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "oscrouter",
			Name:      "subscribers",
			Help:      "Currently registered dynamic view-client subscriptions.",
		}),
	}
}

func (m *Metrics) RecordDispatch(family string)            { m.dispatched.WithLabelValues(family).Inc() }
func (m *Metrics) RecordDispatchError(reason string)        { m.dispatchErrors.WithLabelValues(reason).Inc() }
func (m *Metrics) ObserveFlushLatency(receiver string, seconds float64) {
	m.flushLatency.WithLabelValues(receiver).Observe(seconds)
}
func (m *Metrics) RecordRateLimitDrop(receiver string) { m.rateLimitDrops.WithLabelValues(receiver).Inc() }
func (m *Metrics) RecordHeartbeatMiss(subscriber string) {
	m.heartbeatMisses.WithLabelValues(subscriber).Inc()
}
func (m *Metrics) SetSubscriberCount(n int) { m.subscriberCount.Set(float64(n)) }

// Serve registers the /metrics handler and blocks serving HTTP on addr,
// mirroring main.go's http.HandleFunc("/metrics", ...) registration. Callers
// typically run this in its own goroutine.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Printf("metrics: listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("metrics: server stopped: %v", err)
	}
}

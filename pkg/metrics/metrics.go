package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Connections is the number of open WebSocket connections on this instance.
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "docrelay",
		Name:      "ws_connections",
		Help:      "Open WebSocket connections.",
	})

	// Events counts inbound client events by type.
	Events = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docrelay",
		Name:      "events_total",
		Help:      "Inbound client events by type.",
	}, []string{"type"})

	// Dropped counts outbound frames that could not be queued.
	Dropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "docrelay",
		Name:      "frames_dropped_total",
		Help:      "Outbound frames dropped because a send buffer was full.",
	})

	// StoreOps observes document store latency by operation and outcome.
	StoreOps = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "docrelay",
		Name:      "store_op_seconds",
		Help:      "Document store operation latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op", "outcome"})

	// DocumentsCreated counts documents created by the load-or-create handshake.
	DocumentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "docrelay",
		Name:      "documents_created_total",
		Help:      "Documents created lazily on first join.",
	})
)

// ObserveStore records one store call that started at start.
func ObserveStore(op, outcome string, start time.Time) {
	StoreOps.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}

// Handler exposes Prometheus metrics at /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

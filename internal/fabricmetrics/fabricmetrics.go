package fabricmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters and gauges a single node's fabric.Manager
// updates over its lifetime.
type Metrics struct {
	storeSize        prometheus.Gauge
	scaleUpTotal     prometheus.Counter
	migrationTotal   *prometheus.CounterVec
	broadcastFailure *prometheus.CounterVec
	statusErrorTotal *prometheus.CounterVec
}

// NewMetrics registers and returns a fresh Metrics set against the
// default prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{
		storeSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "shardfabric_store_size",
			Help: "Number of keys currently held by this node's store.",
		}),

		scaleUpTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "shardfabric_scale_up_total",
			Help: "Number of scale-up sequences this node has initiated.",
		}),

		migrationTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shardfabric_migration_chunks_total",
			Help: "Number of migration chunks sent, by outcome.",
		}, []string{"outcome"}),

		broadcastFailure: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shardfabric_broadcast_failures_total",
			Help: "Number of event broadcasts that failed, by event kind.",
		}, []string{"event"}),

		statusErrorTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "shardfabric_status_error_total",
			Help: "Number of times the manager entered an Error status, by kind.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) SetStoreSize(n int) {
	m.storeSize.Set(float64(n))
}

func (m *Metrics) IncScaleUp() {
	m.scaleUpTotal.Inc()
}

func (m *Metrics) ObserveMigrationChunk(outcome string) {
	m.migrationTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveBroadcastFailure(event string) {
	m.broadcastFailure.WithLabelValues(event).Inc()
}

func (m *Metrics) ObserveStatusError(kind string) {
	m.statusErrorTotal.WithLabelValues(kind).Inc()
}

// Handler exposes the default registry's scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

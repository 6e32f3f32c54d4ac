package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the ingest counters of the ground station, labelled by stream
type Metrics struct {
	received *prometheus.CounterVec
	closed   *prometheus.CounterVec
	failed   *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uxv_records_received_total",
		Help: "Total records received over ingest streams.",
	}, []string{"stream"})
	closed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uxv_streams_closed_total",
		Help: "Total ingest streams closed by the client and acknowledged.",
	}, []string{"stream"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "uxv_records_failed_total",
		Help: "Records received but not persisted by the recorder.",
	}, []string{"stream"})

	reg.MustRegister(received, closed, failed)

	return &Metrics{
		received: received,
		closed:   closed,
		failed:   failed,
	}
}

// Handler serves the metrics gathered by g in the Prometheus exposition format
func (m *Metrics) Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) recordReceived(stream string) {
	m.received.WithLabelValues(stream).Inc()
}

func (m *Metrics) streamClosed(stream string) {
	m.closed.WithLabelValues(stream).Inc()
}

func (m *Metrics) recordsFailed(stream string, n int) {
	m.failed.WithLabelValues(stream).Add(float64(n))
}

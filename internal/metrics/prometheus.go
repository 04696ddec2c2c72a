package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "stdb_loadgen"

// promMirror mirrors recorded outcomes into Prometheus collectors so a
// run in flight can be scraped live. The mirror is exposition only; the
// Registry's own types stay authoritative for thresholds and reports.
type promMirror struct {
	registry *prometheus.Registry

	transactions  *prometheus.CounterVec
	errors        *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	droppedFrames prometheus.Counter
}

func newPromMirror() *promMirror {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &promMirror{
		registry: reg,
		transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "transactions_total",
			Help:      "Total operations attempted, by kind and outcome",
		}, []string{"kind", "outcome"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "errors_total",
			Help:      "Total failed operations, by error kind",
		}, []string{"error_kind"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: promNamespace,
			Name:      "transaction_duration_seconds",
			Help:      "Successful operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		droppedFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "dropped_frames_total",
			Help:      "Inbound frames dropped as unparsable or unrecognized",
		}),
	}
}

func (p *promMirror) observeSuccess(kind string, d time.Duration) {
	p.transactions.WithLabelValues(kind, "success").Inc()
	p.duration.WithLabelValues(kind).Observe(d.Seconds())
}

func (p *promMirror) observeError(errKind, kind string) {
	p.transactions.WithLabelValues(kind, "error").Inc()
	p.errors.WithLabelValues(errKind).Inc()
}

// Handler returns an HTTP handler serving the Prometheus exposition of
// this registry's metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom.registry, promhttp.HandlerOpts{})
}

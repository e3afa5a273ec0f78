package metric

import (
	"bufio"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

const namespace = "savevault"

// Operation results used as the "result" label.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Registry holds all vault metrics on a private prometheus registry.
type Registry struct {
	registry *prometheus.Registry

	SavesTotal        *prometheus.CounterVec
	LoadsTotal        *prometheus.CounterVec
	FallbacksTotal    prometheus.Counter
	BlobBytes         prometheus.Gauge
	CompressionRatio  prometheus.Gauge
	OperationDuration *prometheus.HistogramVec
}

// NewRegistry creates a registry with the vault metrics and the Go runtime
// and process collectors registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,
		SavesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "saves_total",
			Help:      "Save operations by result.",
		}, []string{"result"}),
		LoadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "loads_total",
			Help:      "Load operations by result and the slot that served them.",
		}, []string{"result", "slot"}),
		FallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "fallbacks_total",
			Help:      "Loads that fell back from the primary to the backup slot.",
		}),
		BlobBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "blob_bytes",
			Help:      "Size of the last written blob in bytes.",
		}),
		CompressionRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "compression_ratio",
			Help:      "Envelope text size divided by blob size for the last save.",
		}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "operation_duration_seconds",
			Help:      "Duration of vault operations.",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"op"}),
	}

	reg.MustRegister(
		r.SavesTotal,
		r.LoadsTotal,
		r.FallbacksTotal,
		r.BlobBytes,
		r.CompressionRatio,
		r.OperationDuration,
	)
	return r
}

// Registerer exposes the underlying registry for components that register
// their own collectors, such as the badger store.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.registry
}

// Gatherer exposes the underlying registry for gathering.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// SaveDone records a finished save. blobBytes and ratio are only
// recorded for successful saves.
func (r *Registry) SaveDone(result string, blobBytes int, ratio float64, elapsed time.Duration) {
	r.SavesTotal.WithLabelValues(result).Inc()
	r.OperationDuration.WithLabelValues("save").Observe(elapsed.Seconds())
	if result == ResultOK {
		r.BlobBytes.Set(float64(blobBytes))
		r.CompressionRatio.Set(ratio)
	}
}

// LoadDone records a finished load. slot is empty when nothing was loaded.
func (r *Registry) LoadDone(result, slot string, elapsed time.Duration) {
	if slot == "" {
		slot = "none"
	}
	r.LoadsTotal.WithLabelValues(result, slot).Inc()
	r.OperationDuration.WithLabelValues("load").Observe(elapsed.Seconds())
}

// Fallback records a load that moved on to the backup slot.
func (r *Registry) Fallback() {
	r.FallbacksTotal.Inc()
}

// Handler returns an HTTP handler serving the registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// WriteText writes every gathered family in the Prometheus text format.
func (r *Registry) WriteText(w io.Writer) error {
	families, err := r.registry.Gather()
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(bw, mf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

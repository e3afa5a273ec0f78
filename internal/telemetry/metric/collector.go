package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is the live vault state read on every scrape.
type Snapshot struct {
	LastSaveAt   time.Time
	LastLoadAt   time.Time
	PayloadBytes int
	Partitions   int
}

// Collector reports vault state through a snapshot callback.
type Collector struct {
	snapshot func() Snapshot

	lastSave   *prometheus.Desc
	lastLoad   *prometheus.Desc
	payload    *prometheus.Desc
	partitions *prometheus.Desc
}

// NewCollector creates a collector backed by snapshot.
func NewCollector(snapshot func() Snapshot) *Collector {
	return &Collector{
		snapshot: snapshot,
		lastSave: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "vault", "last_save_timestamp_seconds"),
			"Unix time of the last successful save.", nil, nil),
		lastLoad: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "vault", "last_load_timestamp_seconds"),
			"Unix time of the last successful load.", nil, nil),
		payload: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "vault", "payload_bytes"),
			"Size of the last saved payload text in bytes.", nil, nil),
		partitions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "vault", "partitions"),
			"Number of registered partitions.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.lastSave
	ch <- c.lastLoad
	ch <- c.payload
	ch <- c.partitions
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.snapshot()
	ch <- prometheus.MustNewConstMetric(c.lastSave, prometheus.GaugeValue, unixSeconds(s.LastSaveAt))
	ch <- prometheus.MustNewConstMetric(c.lastLoad, prometheus.GaugeValue, unixSeconds(s.LastLoadAt))
	ch <- prometheus.MustNewConstMetric(c.payload, prometheus.GaugeValue, float64(s.PayloadBytes))
	ch <- prometheus.MustNewConstMetric(c.partitions, prometheus.GaugeValue, float64(s.Partitions))
}

func unixSeconds(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / 1e9
}

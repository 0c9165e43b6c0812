// Package metrics exposes Prometheus counters for sync activity.
package metrics

import (
	"net/http"
	"time"

	"litman/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sync roles used as label values
const (
	RolePush      = "push"
	RoleMerge     = "merge"
	RoleBootstrap = "bootstrap"
	RoleDump      = "dump"
)

// Metrics holds the Prometheus collectors for one process. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SyncsTotal        *prometheus.CounterVec
	SyncDuration      *prometheus.HistogramVec
	RowsTotal         *prometheus.CounterVec
	PayloadBytes      *prometheus.HistogramVec
	FileFetchesTotal  *prometheus.CounterVec
	LastSyncTimestamp prometheus.Gauge
}

// NewMetrics creates and registers all collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SyncsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "litman",
			Subsystem: "sync",
			Name:      "operations_total",
			Help:      "Total number of sync operations by role and result",
		}, []string{"role", "result"}),
		SyncDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "litman",
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Histogram of sync operation durations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"role"}),
		RowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "litman",
			Subsystem: "sync",
			Name:      "rows_total",
			Help:      "Rows and links moved by sync, by direction and operation",
		}, []string{"direction", "op"}),
		PayloadBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "litman",
			Subsystem: "sync",
			Name:      "payload_bytes",
			Help:      "Histogram of encoded payload sizes",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 10), // 256B to 64MB
		}, []string{"direction"}),
		FileFetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "litman",
			Subsystem: "files",
			Name:      "fetches_total",
			Help:      "Attachment fetches during bootstrap by result",
		}, []string{"result"}),
		LastSyncTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "litman",
			Subsystem: "sync",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful sync",
		}),
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSync records the outcome of a sync operation that began at started.
func (m *Metrics) ObserveSync(role string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.SyncsTotal.WithLabelValues(role, result).Inc()
	m.SyncDuration.WithLabelValues(role).Observe(time.Since(started).Seconds())
	if err == nil && role != RoleDump {
		m.LastSyncTimestamp.SetToCurrentTime()
	}
}

// AddDiff counts the net operations of a diff moving in direction
// ("sent" or "received").
func (m *Metrics) AddDiff(direction string, c models.DiffCounts) {
	if m == nil {
		return
	}
	m.RowsTotal.WithLabelValues(direction, "insert").Add(float64(c.Inserted))
	m.RowsTotal.WithLabelValues(direction, "update").Add(float64(c.Updated))
	m.RowsTotal.WithLabelValues(direction, "delete").Add(float64(c.Deleted))
	m.RowsTotal.WithLabelValues(direction, "link_insert").Add(float64(c.LinksInserted))
	m.RowsTotal.WithLabelValues(direction, "link_delete").Add(float64(c.LinksDeleted))
}

// ObservePayload records the size of an encoded payload.
func (m *Metrics) ObservePayload(direction string, size int) {
	if m == nil {
		return
	}
	m.PayloadBytes.WithLabelValues(direction).Observe(float64(size))
}

// FileFetched counts one attachment fetch.
func (m *Metrics) FileFetched(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.FileFetchesTotal.WithLabelValues(result).Inc()
}

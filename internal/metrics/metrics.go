// Package metrics counts what the sync engine does against the remote store.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	errorvalues "github.com/limbo/hydrosync/internal/error_values"
)

const defaultNamespace = "hydrosync"

// Collector is safe to use as a nil pointer; every Record call is then a no-op.
type Collector struct {
	registry *prometheus.Registry

	remoteFailures     *prometheus.CounterVec
	uploadedLogs       prometheus.Counter
	reconciliations    *prometheus.CounterVec
	reconcileLatency   *prometheus.HistogramVec
	pendingSync        prometheus.Gauge
	remindersScheduled prometheus.Gauge
}

func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = defaultNamespace
	}
	c := &Collector{
		registry: prometheus.NewRegistry(),
	}
	c.remoteFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "failures_total",
			Help:      "Remote store failures by operation and error kind",
		},
		[]string{"op", "kind"},
	)
	c.uploadedLogs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "uploaded_logs_total",
			Help:      "Drink logs uploaded to the remote store",
		},
	)
	c.reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "reconciliations_total",
			Help:      "Reconciliation runs by transition and outcome",
		},
		[]string{"transition", "outcome"},
	)
	c.reconcileLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "reconcile_duration_seconds",
			Help:      "Time taken by a reconciliation run",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"transition"},
	)
	c.pendingSync = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "pending",
			Help:      "1 when local changes are waiting to be synced",
		},
	)
	c.remindersScheduled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "scheduled",
			Help:      "Reminders currently scheduled for the day",
		},
	)
	c.registry.MustRegister(
		c.remoteFailures,
		c.uploadedLogs,
		c.reconciliations,
		c.reconcileLatency,
		c.pendingSync,
		c.remindersScheduled,
	)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) RecordRemoteFailure(op string, err error) {
	if c == nil || err == nil {
		return
	}
	c.remoteFailures.WithLabelValues(op, errorvalues.Kind(err).String()).Inc()
}

func (c *Collector) RecordUploads(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.uploadedLogs.Add(float64(n))
}

func (c *Collector) RecordReconciliation(transition string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = errorvalues.Kind(err).String()
	}
	c.reconciliations.WithLabelValues(transition, outcome).Inc()
	c.reconcileLatency.WithLabelValues(transition).Observe(duration.Seconds())
}

func (c *Collector) SetPendingSync(pending bool) {
	if c == nil {
		return
	}
	if pending {
		c.pendingSync.Set(1)
		return
	}
	c.pendingSync.Set(0)
}

func (c *Collector) SetRemindersScheduled(n int) {
	if c == nil {
		return
	}
	c.remindersScheduled.Set(float64(n))
}

// WriteText writes the current values in the Prometheus text exposition format.
func (c *Collector) WriteText(w io.Writer) error {
	if c == nil {
		return nil
	}
	families, err := c.registry.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("encoding %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteTextfile stores the current values at path, in the format the node_exporter
// textfile collector reads. The file is replaced atomically.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("writing metrics file: %w", err)
	}
	return nil
}

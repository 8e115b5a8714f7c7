// Package metrics adapts the teacher's Prometheus Collector pattern
// (internal/metrics/metrics.go: a custom registry, GaugeVec/HistogramVec/
// CounterVec fields, one constructor registering them all) to the pgwire
// client's own concerns: dial/auth outcomes, wire throughput, query latency,
// and reader lifecycle, instead of pool occupancy and tenant health.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for a pgwire-probe process.
type Collector struct {
	Registry *prometheus.Registry

	dialAttemptsTotal  *prometheus.CounterVec
	dialFailuresTotal  *prometheus.CounterVec
	authOutcomesTotal  *prometheus.CounterVec
	bytesSentTotal     *prometheus.CounterVec
	bytesReceivedTotal *prometheus.CounterVec
	queryDuration      *prometheus.HistogramVec
	rowsStreamedTotal  *prometheus.CounterVec
	readerDrainsTotal  *prometheus.CounterVec
	connectionHealth   *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics using a custom registry.
// Safe to call multiple times (e.g. in tests or on config reload) — each
// call creates an independent registry that doesn't conflict with others.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		dialAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgwire_dial_attempts_total",
				Help: "Total number of TCP dial attempts per connection",
			},
			[]string{"connection"},
		),
		dialFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgwire_dial_failures_total",
				Help: "Total number of failed TCP dial attempts per connection",
			},
			[]string{"connection"},
		),
		authOutcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgwire_auth_outcomes_total",
				Help: "Authentication attempts by mechanism and outcome",
			},
			[]string{"connection", "mechanism", "outcome"},
		),
		bytesSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgwire_bytes_sent_total",
				Help: "Bytes written to the wire per connection",
			},
			[]string{"connection"},
		),
		bytesReceivedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgwire_bytes_received_total",
				Help: "Bytes read from the wire per connection",
			},
			[]string{"connection"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pgwire_query_duration_seconds",
				Help:    "Duration of one liveness probe: connect, authenticate, run the query, close",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
			},
			[]string{"connection"},
		),
		rowsStreamedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgwire_rows_streamed_total",
				Help: "Total rows delivered through the streaming reader",
			},
			[]string{"connection"},
		),
		readerDrainsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgwire_reader_drains_total",
				Help: "Readers closed before reaching ReadyForQuery and forced to drain",
			},
			[]string{"connection"},
		),
		connectionHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pgwire_connection_health",
				Help: "Liveness probe status per connection (1=healthy, 0=unhealthy)",
			},
			[]string{"connection"},
		),
	}

	reg.MustRegister(
		c.dialAttemptsTotal,
		c.dialFailuresTotal,
		c.authOutcomesTotal,
		c.bytesSentTotal,
		c.bytesReceivedTotal,
		c.queryDuration,
		c.rowsStreamedTotal,
		c.readerDrainsTotal,
		c.connectionHealth,
	)

	return c
}

// DialAttempt records one dial attempt, and a failure if err is non-nil.
func (c *Collector) DialAttempt(connection string, err error) {
	c.dialAttemptsTotal.WithLabelValues(connection).Inc()
	if err != nil {
		c.dialFailuresTotal.WithLabelValues(connection).Inc()
	}
}

// AuthOutcome records an authentication attempt's mechanism ("trust",
// "cleartext", "md5", "scram-sha-256") and outcome ("ok", "failed").
func (c *Collector) AuthOutcome(connection, mechanism, outcome string) {
	c.authOutcomesTotal.WithLabelValues(connection, mechanism, outcome).Inc()
}

// BytesSent adds n to the sent-bytes counter.
func (c *Collector) BytesSent(connection string, n int) {
	c.bytesSentTotal.WithLabelValues(connection).Add(float64(n))
}

// BytesReceived adds n to the received-bytes counter.
func (c *Collector) BytesReceived(connection string, n int) {
	c.bytesReceivedTotal.WithLabelValues(connection).Add(float64(n))
}

// QueryCompleted observes the duration of one liveness probe.
func (c *Collector) QueryCompleted(connection string, d time.Duration) {
	c.queryDuration.WithLabelValues(connection).Observe(d.Seconds())
}

// RowsStreamed adds n to the rows-streamed counter.
func (c *Collector) RowsStreamed(connection string, n int) {
	c.rowsStreamedTotal.WithLabelValues(connection).Add(float64(n))
}

// ReaderDrained increments the forced-drain counter, recorded whenever a
// reader is closed before observing ReadyForQuery.
func (c *Collector) ReaderDrained(connection string) {
	c.readerDrainsTotal.WithLabelValues(connection).Inc()
}

// SetConnectionHealth sets the liveness gauge for a named connection.
func (c *Collector) SetConnectionHealth(connection string, healthy bool) {
	val := 0.0
	if healthy {
		val = 1.0
	}
	c.connectionHealth.WithLabelValues(connection).Set(val)
}

// RemoveConnection removes all metrics for a named connection, e.g. after a
// config hot-reload drops it.
func (c *Collector) RemoveConnection(connection string) {
	c.dialAttemptsTotal.DeleteLabelValues(connection)
	c.dialFailuresTotal.DeleteLabelValues(connection)
	c.authOutcomesTotal.DeletePartialMatch(prometheus.Labels{"connection": connection})
	c.bytesSentTotal.DeleteLabelValues(connection)
	c.bytesReceivedTotal.DeleteLabelValues(connection)
	c.queryDuration.DeleteLabelValues(connection)
	c.rowsStreamedTotal.DeleteLabelValues(connection)
	c.readerDrainsTotal.DeleteLabelValues(connection)
	c.connectionHealth.DeleteLabelValues(connection)
}

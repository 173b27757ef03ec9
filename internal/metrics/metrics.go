package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service's Prometheus collectors. A nil *Metrics is a
// valid no-op so tests can skip registration.
type Metrics struct {
	rowsIngested    *prometheus.CounterVec
	ledgerWrites    *prometheus.CounterVec
	scheduleOverlap prometheus.Counter
	auditEntries    prometheus.Counter
	httpDuration    *prometheus.HistogramVec
}

// New builds the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rowsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "hardware_rows_total",
			Help:      "Hardware scan rows processed, by outcome.",
		}, []string{"outcome"}),
		ledgerWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "ledger_writes_total",
			Help:      "Ledger upserts by source and whether they took effect.",
		}, []string{"source", "outcome"}),
		scheduleOverlap: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "schedule_overlaps_total",
			Help:      "Scans that matched more than one period.",
		}),
		auditEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "audit_entries_total",
			Help:      "Ledger writes copied to the audit log.",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "attendance",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
	}
	reg.MustRegister(m.rowsIngested, m.ledgerWrites, m.scheduleOverlap, m.auditEntries, m.httpDuration)
	return m
}

// RowIngested counts one hardware row; outcome is accepted, unscheduled or a rejection kind.
func (m *Metrics) RowIngested(outcome string) {
	if m == nil {
		return
	}
	m.rowsIngested.WithLabelValues(outcome).Inc()
}

// LedgerWrite counts an upsert attempt.
func (m *Metrics) LedgerWrite(source string, applied bool) {
	if m == nil {
		return
	}
	outcome := "applied"
	if !applied {
		outcome = "stale"
	}
	m.ledgerWrites.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) ScheduleOverlap() {
	if m == nil {
		return
	}
	m.scheduleOverlap.Inc()
}

func (m *Metrics) AuditEntry() {
	if m == nil {
		return
	}
	m.auditEntries.Inc()
}

// GinMiddleware observes request latency by matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Report tick metrics
	TicksTotal        *prometheus.CounterVec
	TickDuration      prometheus.Histogram
	ReportsGenerated  *prometheus.CounterVec
	EmailsSent        *prometheus.CounterVec
	EmailsFailed      *prometheus.CounterVec
	LastSuccessfulRun prometheus.Gauge

	// Store metrics
	DatabaseOperations *prometheus.CounterVec
	DatabaseLatency    *prometheus.HistogramVec

	// Redis metrics
	RedisOperations *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New builds unregistered collectors. Call Register to expose them.
func New(namespace string) *Metrics {
	return &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_ticks_total",
			Help:      "Total number of report ticks by outcome",
		}, []string{"outcome"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_tick_duration_seconds",
			Help:      "Time spent running one report tick",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		ReportsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_generated_total",
			Help:      "Total number of report emails produced by policy",
		}, []string{"kind"}),
		EmailsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_sent_total",
			Help:      "Total number of report emails dispatched",
		}, []string{"kind"}),
		EmailsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_failed_total",
			Help:      "Total number of report emails that failed to send",
		}, []string{"kind"}),
		LastSuccessfulRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "report_last_success_timestamp_seconds",
			Help:      "Unix time of the last tick that finished without a store error",
		}),
		DatabaseOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
		DatabaseLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "database_operation_duration_seconds",
			Help:      "Duration of database operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
		RedisOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redis_operations_total",
			Help:      "Total number of Redis operations",
		}, []string{"operation", "status"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.TicksTotal,
		m.TickDuration,
		m.ReportsGenerated,
		m.EmailsSent,
		m.EmailsFailed,
		m.LastSuccessfulRun,
		m.DatabaseOperations,
		m.DatabaseLatency,
		m.RedisOperations,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveDatabase records the outcome of a database operation.
func (m *Metrics) ObserveDatabase(operation string, err error) {
	if m == nil {
		return
	}
	m.DatabaseOperations.WithLabelValues(operation, status(err)).Inc()
}

// ObserveRedis records the outcome of a Redis operation.
func (m *Metrics) ObserveRedis(operation string, err error) {
	if m == nil {
		return
	}
	m.RedisOperations.WithLabelValues(operation, status(err)).Inc()
}

// ObserveTick records one orchestrator tick. outcome is "executed", "noop" or "error".
func (m *Metrics) ObserveTick(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.TicksTotal.WithLabelValues(outcome).Inc()
	m.TickDuration.Observe(d.Seconds())
	if outcome != "error" {
		m.LastSuccessfulRun.SetToCurrentTime()
	}
}

// ObserveReports counts the emails a policy produced.
func (m *Metrics) ObserveReports(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ReportsGenerated.WithLabelValues(kind).Add(float64(n))
}

// ObserveEmail records one send attempt.
func (m *Metrics) ObserveEmail(kind string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.EmailsFailed.WithLabelValues(kind).Inc()
		return
	}
	m.EmailsSent.WithLabelValues(kind).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus metric collectors for the service.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Execution lifecycle metrics.
	ExecutionsTotal           *prometheus.CounterVec
	ExecutionDuration         *prometheus.HistogramVec
	CreditsDebitedTotal       prometheus.Counter
	CreditsRefundedTotal      prometheus.Counter
	CompensationFailuresTotal prometheus.Counter

	// Audit collector metrics.
	AuditBufferSize   prometheus.Gauge
	AuditFlushesTotal *prometheus.CounterVec
	AuditEventsTotal  prometheus.Counter

	// Rate limiting and auth metrics.
	RateLimitRejectionsTotal prometheus.Counter
	AuthFailuresTotal        prometheus.Counter

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scrip_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scrip_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scrip_executions_total",
			Help: "Total number of agent executions by final status.",
		}, []string{"agent_id", "status"}),

		ExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scrip_execution_duration_seconds",
			Help:    "Agent execution duration in seconds.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"agent_id"}),

		CreditsDebitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scrip_credits_debited_total",
			Help: "Total credits debited by reservations.",
		}),

		CreditsRefundedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scrip_credits_refunded_total",
			Help: "Total credits refunded by compensations.",
		}),

		CompensationFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scrip_compensation_failures_total",
			Help: "Total refund attempts that failed and require operator attention.",
		}),

		AuditBufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scrip_audit_buffer_size",
			Help: "Current number of buffered audit events.",
		}),

		AuditFlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scrip_audit_flushes_total",
			Help: "Total number of audit collector flushes.",
		}, []string{"status"}),

		AuditEventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scrip_audit_events_total",
			Help: "Total number of audit events recorded.",
		}),

		RateLimitRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scrip_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}),

		AuthFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scrip_auth_failures_total",
			Help: "Total number of admin authentication failures.",
		}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scrip_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.CreditsDebitedTotal,
		m.CreditsRefundedTotal,
		m.CompensationFailuresTotal,
		m.AuditBufferSize,
		m.AuditFlushesTotal,
		m.AuditEventsTotal,
		m.RateLimitRejectionsTotal,
		m.AuthFailuresTotal,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	// Register Go runtime and process collectors.
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// ObserveHTTPRequest records one completed HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, pathPattern string, statusCode int, seconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(seconds)
}

// IncExecution increments the executions counter for the given final status.
func (m *Metrics) IncExecution(agentID, status string) {
	m.ExecutionsTotal.WithLabelValues(agentID, status).Inc()
}

// ObserveExecutionDuration records the wall-clock duration of an execution.
func (m *Metrics) ObserveExecutionDuration(agentID string, seconds float64) {
	m.ExecutionDuration.WithLabelValues(agentID).Observe(seconds)
}

// AddCreditsDebited adds n to the debited credits counter.
func (m *Metrics) AddCreditsDebited(n int) {
	m.CreditsDebitedTotal.Add(float64(n))
}

// AddCreditsRefunded adds n to the refunded credits counter.
func (m *Metrics) AddCreditsRefunded(n int) {
	m.CreditsRefundedTotal.Add(float64(n))
}

// IncCompensationFailure increments the compensation failure counter.
func (m *Metrics) IncCompensationFailure() {
	m.CompensationFailuresTotal.Inc()
}

// SetAuditBufferSize sets the audit buffer size gauge.
func (m *Metrics) SetAuditBufferSize(n int) {
	m.AuditBufferSize.Set(float64(n))
}

// IncAuditFlush increments the audit flush counter with the given status.
func (m *Metrics) IncAuditFlush(status string) {
	m.AuditFlushesTotal.WithLabelValues(status).Inc()
}

// IncAuditEvents adds n to the recorded audit events counter.
func (m *Metrics) IncAuditEvents(n int) {
	m.AuditEventsTotal.Add(float64(n))
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection() {
	m.RateLimitRejectionsTotal.Inc()
}

// IncAuthFailure increments the admin auth failure counter.
func (m *Metrics) IncAuthFailure() {
	m.AuthFailuresTotal.Inc()
}

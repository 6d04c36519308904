package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "mail_engine"

// Metrics stores Prometheus collectors used by API and worker flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	emailsSentTotal     *prometheus.CounterVec
	emailsFailedTotal   *prometheus.CounterVec
	emailSendDuration   *prometheus.HistogramVec
	workerInflight      prometheus.Gauge
	retryScheduledTotal prometheus.Counter
	deadLetteredTotal   prometheus.Counter
	webhookEventsTotal  *prometheus.CounterVec
	storeSweptTotal     prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		emailsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "emails_sent_total",
				Help:      "Total number of emails accepted by a provider.",
			},
			[]string{"provider"},
		),
		emailsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "emails_failed_total",
				Help:      "Total number of dispatch attempts that ended in failed state.",
			},
			[]string{"provider", "reason"},
		),
		emailSendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "email_send_duration_seconds",
				Help:      "Provider send duration in seconds grouped by provider.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"provider"},
		),
		workerInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "worker_inflight",
				Help:      "Current number of queue deliveries being processed.",
			},
		),
		retryScheduledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "retry_scheduled_total",
				Help:      "Total number of queue deliveries republished for retry.",
			},
		),
		deadLetteredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "dead_lettered_total",
				Help:      "Total number of queue deliveries moved to the dead-letter queue.",
			},
		),
		webhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "webhook_events_total",
				Help:      "Total number of parsed provider webhook events by category.",
			},
			[]string{"provider", "category"},
		),
		storeSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "store_swept_records_total",
				Help:      "Total number of expired records removed by the sweeper.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.emailsSentTotal,
		m.emailsFailedTotal,
		m.emailSendDuration,
		m.workerInflight,
		m.retryScheduledTotal,
		m.deadLetteredTotal,
		m.webhookEventsTotal,
		m.storeSweptTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncEmailSent(provider string) {
	if m == nil {
		return
	}
	m.emailsSentTotal.WithLabelValues(normalizeLabel(provider)).Inc()
}

func (m *Metrics) IncEmailFailed(provider string, reason string) {
	if m == nil {
		return
	}
	m.emailsFailedTotal.WithLabelValues(normalizeLabel(provider), normalizeLabel(reason)).Inc()
}

func (m *Metrics) ObserveSendDuration(provider string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.emailSendDuration.WithLabelValues(normalizeLabel(provider)).Observe(seconds)
}

func (m *Metrics) IncWorkerInFlight() {
	if m == nil {
		return
	}
	m.workerInflight.Inc()
}

func (m *Metrics) DecWorkerInFlight() {
	if m == nil {
		return
	}
	m.workerInflight.Dec()
}

func (m *Metrics) IncRetryScheduled() {
	if m == nil {
		return
	}
	m.retryScheduledTotal.Inc()
}

func (m *Metrics) IncDeadLettered() {
	if m == nil {
		return
	}
	m.deadLetteredTotal.Inc()
}

func (m *Metrics) IncWebhookEvent(provider string, category string) {
	if m == nil {
		return
	}
	m.webhookEventsTotal.WithLabelValues(normalizeLabel(provider), normalizeLabel(category)).Inc()
}

func (m *Metrics) AddSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.storeSweptTotal.Add(float64(n))
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

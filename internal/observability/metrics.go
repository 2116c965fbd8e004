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

// Metrics stores Prometheus collectors used by the scheduler, executors and
// HTTP surface.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	remindersCompletedTotal *prometheus.CounterVec
	remindersSkippedTotal   *prometheus.CounterVec
	remindersFailedTotal    *prometheus.CounterVec
	dispatchDuration        *prometheus.HistogramVec
	retryScheduledTotal     *prometheus.CounterVec
	sweepTimeoutsTotal      *prometheus.CounterVec
	batchErrorRate          prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "reminder_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		remindersCompletedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "reminders_completed_total",
				Help:      "Total number of reminders that reached the completed state.",
			},
			[]string{"channel"},
		),
		remindersSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "reminders_skipped_total",
				Help:      "Total number of reminders skipped, by channel and reason.",
			},
			[]string{"channel", "reason"},
		),
		remindersFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "reminders_failed_total",
				Help:      "Total number of reminders that ended in the failed state.",
			},
			[]string{"channel", "reason"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "reminder_engine",
				Name:      "dispatch_duration_seconds",
				Help:      "Provider dispatch duration in seconds grouped by channel.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"channel"},
		),
		retryScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "retry_scheduled_total",
				Help:      "Total number of reminders scheduled for retry.",
			},
			[]string{"channel"},
		),
		sweepTimeoutsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "reminder_engine",
				Name:      "sweep_timeouts_total",
				Help:      "Total number of in-progress reminders recovered by the timeout sweep.",
			},
			[]string{"channel"},
		),
		batchErrorRate: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "reminder_engine",
				Name:      "scheduler_batch_error_rate",
				Help:      "Fraction of reminders in the last scheduler batch that errored.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.remindersCompletedTotal,
		m.remindersSkippedTotal,
		m.remindersFailedTotal,
		m.dispatchDuration,
		m.retryScheduledTotal,
		m.sweepTimeoutsTotal,
		m.batchErrorRate,
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

func (m *Metrics) IncReminderCompleted(channel string) {
	if m == nil {
		return
	}
	m.remindersCompletedTotal.WithLabelValues(normalizeChannel(channel)).Inc()
}

func (m *Metrics) IncReminderSkipped(channel string, reason string) {
	if m == nil {
		return
	}
	m.remindersSkippedTotal.WithLabelValues(normalizeChannel(channel), normalizeReason(reason)).Inc()
}

func (m *Metrics) IncReminderFailed(channel string, reason string) {
	if m == nil {
		return
	}
	m.remindersFailedTotal.WithLabelValues(normalizeChannel(channel), normalizeReason(reason)).Inc()
}

func (m *Metrics) ObserveDispatchDuration(channel string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.dispatchDuration.WithLabelValues(normalizeChannel(channel)).Observe(seconds)
}

func (m *Metrics) IncRetryScheduled(channel string) {
	if m == nil {
		return
	}
	m.retryScheduledTotal.WithLabelValues(normalizeChannel(channel)).Inc()
}

func (m *Metrics) IncSweepTimeout(channel string) {
	if m == nil {
		return
	}
	m.sweepTimeoutsTotal.WithLabelValues(normalizeChannel(channel)).Inc()
}

func (m *Metrics) SetBatchErrorRate(rate float64) {
	if m == nil {
		return
	}
	if rate < 0 {
		rate = 0
	}
	m.batchErrorRate.Set(rate)
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
		return ""
	}
	if route := c.Route(); route != nil && route.Path != "" {
		return route.Path
	}
	return c.Path()
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}
	return c.Response().StatusCode()
}

func normalizeChannel(channel string) string {
	normalized := strings.ToLower(strings.TrimSpace(channel))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

func normalizeReason(reason string) string {
	normalized := strings.TrimSpace(strings.ToLower(reason))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

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

// Metrics stores Prometheus collectors used by the API and dispatch flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal        *prometheus.CounterVec
	httpRequestDuration      *prometheus.HistogramVec
	dispatchTotal            *prometheus.CounterVec
	channelAttemptsTotal     *prometheus.CounterVec
	channelSendDuration      *prometheus.HistogramVec
	dedupSuppressedTotal     *prometheus.CounterVec
	preferenceOverridesTotal *prometheus.CounterVec
	sweepMembersFlagged      prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "checkin_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "checkin_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "checkin_engine",
				Name:      "dispatch_total",
				Help:      "Total number of finalized dispatches by tier and outcome.",
			},
			[]string{"tier", "outcome"},
		),
		channelAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "checkin_engine",
				Name:      "channel_attempts_total",
				Help:      "Total number of channel delivery attempts by channel and result.",
			},
			[]string{"channel", "result"},
		),
		channelSendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "checkin_engine",
				Name:      "channel_send_duration_seconds",
				Help:      "Channel transport call duration in seconds grouped by channel.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"channel"},
		),
		dedupSuppressedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "checkin_engine",
				Name:      "dedup_suppressed_total",
				Help:      "Total number of dispatches suppressed as duplicates by event type.",
			},
			[]string{"event_type"},
		),
		preferenceOverridesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "checkin_engine",
				Name:      "preference_overrides_total",
				Help:      "Total number of dispatches that overrode recipient channel preferences.",
			},
			[]string{"event_type"},
		),
		sweepMembersFlagged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "checkin_engine",
				Name:      "sweep_members_flagged_total",
				Help:      "Total number of members the missed-check-in sweep flagged as overdue.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.dispatchTotal,
		m.channelAttemptsTotal,
		m.channelSendDuration,
		m.dedupSuppressedTotal,
		m.preferenceOverridesTotal,
		m.sweepMembersFlagged,
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

func (m *Metrics) IncDispatch(tier string, outcome string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(normalizeLabel(tier), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncChannelAttempt(channel string, result string) {
	if m == nil {
		return
	}
	m.channelAttemptsTotal.WithLabelValues(normalizeLabel(channel), normalizeLabel(result)).Inc()
}

func (m *Metrics) ObserveChannelSendDuration(channel string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.channelSendDuration.WithLabelValues(normalizeLabel(channel)).Observe(seconds)
}

func (m *Metrics) IncDedupSuppressed(eventType string) {
	if m == nil {
		return
	}
	m.dedupSuppressedTotal.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *Metrics) IncPreferenceOverride(eventType string) {
	if m == nil {
		return
	}
	m.preferenceOverridesTotal.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *Metrics) IncSweepMemberFlagged() {
	if m == nil {
		return
	}
	m.sweepMembersFlagged.Inc()
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

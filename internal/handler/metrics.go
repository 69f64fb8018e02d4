package handler

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Metrics holds all Prometheus collectors for the vote service.
var Metrics = struct {
	VotesTotal       *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	RateLimitedTotal prometheus.Counter
	CaptchaIssued    prometheus.Counter
	CaptchaVerified  *prometheus.CounterVec
}{}

// InitMetrics registers all Prometheus metrics. Call once at startup.
func InitMetrics() {
	Metrics.VotesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bvote_votes_total",
			Help: "Total ledger mutations, by action (vote/unvote).",
		},
		[]string{"action"},
	)

	Metrics.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bvote_api_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by endpoint, method and status.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	Metrics.RequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bvote_requests_in_flight",
			Help: "Number of HTTP requests currently being served.",
		},
	)

	Metrics.RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bvote_rate_limited_total",
			Help: "Requests that hit an exhausted rate-limit window.",
		},
	)

	Metrics.CaptchaIssued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bvote_captcha_issued_total",
			Help: "Proof-of-work challenges issued.",
		},
	)

	Metrics.CaptchaVerified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bvote_captcha_verified_total",
			Help: "Proof-of-work verification attempts, by result.",
		},
		[]string{"result"},
	)

	prometheus.MustRegister(
		Metrics.VotesTotal,
		Metrics.RequestDuration,
		Metrics.RequestsInFlight,
		Metrics.RateLimitedTotal,
		Metrics.CaptchaIssued,
		Metrics.CaptchaVerified,
	)
}

// MetricsMiddleware records request duration and in-flight count for Prometheus.
func MetricsMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		// Don't instrument the /metrics endpoint itself
		if c.Path() == "/metrics" {
			return c.Next()
		}

		// Copy path and method into owned strings BEFORE c.Next() — Fiber
		// returns slices backed by the fasthttp buffer which can be reused
		// or overwritten by handlers (especially fasthttpadaptor).
		path := string([]byte(c.Path()))
		method := string([]byte(c.Method()))

		Metrics.RequestsInFlight.Inc()
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())

		Metrics.RequestDuration.WithLabelValues(path, method, status).Observe(duration)
		Metrics.RequestsInFlight.Dec()

		return err
	}
}

// MetricsHandler serves the Prometheus /metrics endpoint via Fiber.
func MetricsHandler() fiber.Handler {
	httpHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c fiber.Ctx) error {
		httpHandler(c.RequestCtx())
		return nil
	}
}

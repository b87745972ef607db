package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	agoraAgentsTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agora_agents_total",
		Help: "Total number of registered agents by status.",
	}, []string{"status"})

	agoraRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	agoraRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agora_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	agoraTokensIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_tokens_issued_total",
		Help: "Total session tokens issued by caller type.",
	}, []string{"type"})

	agoraSearchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_searches_total",
		Help: "Total search requests by outcome.",
	}, []string{"outcome"})

	agoraFeedbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agora_feedback_total",
		Help: "Total feedback submissions by outcome.",
	}, []string{"outcome"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		agoraRequestsTotal.WithLabelValues(method, path, status).Inc()
		agoraRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordTokenIssued records a successful session token grant.
func RecordTokenIssued(callerType string) {
	agoraTokensIssuedTotal.WithLabelValues(callerType).Inc()
}

// RecordSearch records a completed search, split by whether it matched.
func RecordSearch(resultCount int) {
	if resultCount > 0 {
		agoraSearchesTotal.WithLabelValues("hit").Inc()
	} else {
		agoraSearchesTotal.WithLabelValues("empty").Inc()
	}
}

// RecordFeedback records a feedback submission outcome.
func RecordFeedback(outcome string) {
	agoraFeedbackTotal.WithLabelValues(outcome).Inc()
}

// SetAgentsGauge sets the agent count gauge for a given status.
func SetAgentsGauge(status string, count float64) {
	agoraAgentsTotal.WithLabelValues(status).Set(count)
}

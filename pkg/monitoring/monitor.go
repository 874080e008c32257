package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	ForcedTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_forced_transitions_total",
			Help: "State transitions executed by the timeout supervisor",
		},
		[]string{"from", "to"},
	)

	TimeoutWarnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_timeout_warnings_total",
			Help: "Warning signals emitted before a state times out",
		},
		[]string{"state"},
	)

	SessionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_sessions_closed_total",
			Help: "Work sessions closed, by cause",
		},
		[]string{"cause"},
	)

	ChallengesIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_challenges_issued_total",
			Help: "Anti-idle challenges issued",
		},
		[]string{"attempt"},
	)

	ChallengesResolved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "presence_challenges_resolved_total",
			Help: "Anti-idle challenge outcomes",
		},
		[]string{"result"},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(ForcedTransitions)
	prometheus.MustRegister(TimeoutWarnings)
	prometheus.MustRegister(SessionsClosed)
	prometheus.MustRegister(ChallengesIssued)
	prometheus.MustRegister(ChallengesResolved)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

package metrics

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
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	SessionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_sessions_started_total",
			Help: "Exam sessions entered, by outcome (created or resumed)",
		},
		[]string{"outcome"},
	)

	SessionsLocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_sessions_locked_total",
			Help: "Exam sessions locked, by lock reason",
		},
		[]string{"reason"},
	)

	ActiveRuntimes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "exam_session_runtimes_active",
			Help: "Exam session runtimes held in memory",
		},
	)

	CheatSignals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_cheat_signals_total",
			Help: "Signals reported by the cheat detector",
		},
		[]string{"signal", "counted"},
	)

	AutosaveFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exam_autosave_failures_total",
			Help: "Failed autosave writes",
		},
	)

	SubmitRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "exam_forced_submit_retries_total",
			Help: "Forced submit attempts that failed and were retried",
		},
	)

	WorkerJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_total",
			Help: "Background worker jobs, by worker and result",
		},
		[]string{"worker", "result"},
	)
)

// Init registers every collector with the default registry. Call once at startup.
func Init() {
	prometheus.MustRegister(
		RequestCounter,
		RequestDuration,
		SessionsStarted,
		SessionsLocked,
		ActiveRuntimes,
		CheatSignals,
		AutosaveFailures,
		SubmitRetries,
		WorkerJobs,
	)
}

func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			path,
		).Observe(time.Since(start).Seconds())
	}
}

func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

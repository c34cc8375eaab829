package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "umadex_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "umadex_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 15},
		},
		[]string{"method", "endpoint"},
	)

	// Evaluations counts answer evaluations by purpose and outcome
	// ("ai" or "fallback").
	Evaluations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "umadex_evaluations_total",
			Help: "Answer evaluations by source",
		},
		[]string{"purpose", "outcome"},
	)

	LLMLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "umadex_llm_request_duration_seconds",
			Help:    "Latency of single LLM provider calls",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"purpose", "success"},
	)

	LLMTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "umadex_llm_tokens_total",
			Help: "Tokens consumed by LLM calls",
		},
		[]string{"purpose", "direction"},
	)

	BypassAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "umadex_bypass_attempts_total",
			Help: "Bypass code validations by resulting code type",
		},
		[]string{"context", "code_type"},
	)

	WorkerJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "umadex_worker_jobs_total",
			Help: "Background jobs processed by queue and result",
		},
		[]string{"queue", "result"},
	)
)

var registerOnce sync.Once

// Init registers all collectors with the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			Evaluations,
			LLMLatency,
			LLMTokens,
			BypassAttempts,
			WorkerJobs,
		)
	})
}

// ObserveLLM records one provider call.
func ObserveLLM(purpose string, elapsed time.Duration, success bool, inputTokens, outputTokens int) {
	LLMLatency.WithLabelValues(purpose, strconv.FormatBool(success)).Observe(elapsed.Seconds())
	if inputTokens > 0 {
		LLMTokens.WithLabelValues(purpose, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		LLMTokens.WithLabelValues(purpose, "output").Add(float64(outputTokens))
	}
}

func MetricsMiddleware() gin.HandlerFunc {
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

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

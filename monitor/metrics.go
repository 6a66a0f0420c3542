package monitor

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	GatewayChallengeCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_challenge_count_total",
		Help: "Total number of 402 challenges issued",
	})
	GatewayVerifySuccessCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_verify_success_total",
		Help: "Total number of successful payment verifications",
	})
	GatewayVerifyFailureCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_verify_failure_total",
		Help: "Total number of rejected payment proofs",
	})
	GatewayForwardCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_forward_count_total",
		Help: "Total number of requests forwarded upstream",
	})
	GatewayForwardErrorCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_forward_errors_total",
		Help: "Total number of upstream forwarding failures",
	})
	ValidationRunCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "validation_run_count_total",
		Help: "Total number of validation runs started",
	})
	ValidationRunErrorCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "validation_run_errors_total",
		Help: "Total number of validation runs that failed",
	})
	AdmissionDeniedCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "admission_denied_count_total",
		Help: "Total number of free-tier admissions denied",
	})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Gateway request duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})
)

// InitPrometheus registers the broker metrics. Counters are usable before
// registration; unregistered increments are simply not exported.
func InitPrometheus() {
	prometheus.MustRegister(
		GatewayChallengeCount,
		GatewayVerifySuccessCount,
		GatewayVerifyFailureCount,
		GatewayForwardCount,
		GatewayForwardErrorCount,
		ValidationRunCount,
		ValidationRunErrorCount,
		AdmissionDeniedCount,
		requestDuration,
	)
}

// TrackMetrics records request durations for the gateway route group.
func TrackMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		requestDuration.WithLabelValues(
			c.Request.Method,
			strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}

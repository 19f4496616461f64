package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	auditWriteFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vulcan",
			Subsystem: "audit",
			Name:      "write_failures_total",
			Help:      "Audit and event writes that failed and were swallowed.",
		},
		[]string{"source"},
	)

	notificationDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vulcan",
			Subsystem: "notifications",
			Name:      "deliveries_total",
			Help:      "Notification delivery attempts by resulting status.",
		},
		[]string{"status"},
	)

	rateLimitRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vulcan",
			Subsystem: "rate_limit",
			Name:      "rejections_total",
			Help:      "Requests rejected by the submission rate limiter.",
		},
		[]string{"action", "method"},
	)

	proofAttachments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vulcan",
			Subsystem: "proofs",
			Name:      "attachments_total",
			Help:      "Proof attachment attempts by outcome.",
		},
		[]string{"proof_type", "outcome"},
	)

	proofAttachmentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vulcan",
			Subsystem: "proofs",
			Name:      "attachment_duration_seconds",
			Help:      "Duration of proof attachment including blob upload.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
		},
		[]string{"outcome"},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vulcan",
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Background job runs by job name and result.",
		},
		[]string{"job", "success"},
	)
)

func init() {
	Registry.MustRegister(
		auditWriteFailures,
		notificationDeliveries,
		rateLimitRejections,
		proofAttachments,
		proofAttachmentDuration,
		jobRuns,
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordAuditFailure(source string) {
	auditWriteFailures.WithLabelValues(source).Inc()
}

func RecordDelivery(status string) {
	notificationDeliveries.WithLabelValues(status).Inc()
}

func RecordRateLimitRejection(action, method string) {
	rateLimitRejections.WithLabelValues(action, method).Inc()
}

func RecordProofAttachment(proofType, outcome string, d time.Duration) {
	proofAttachments.WithLabelValues(proofType, outcome).Inc()
	proofAttachmentDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func RecordJobRun(job string, success bool) {
	s := "false"
	if success {
		s = "true"
	}
	jobRuns.WithLabelValues(job, s).Inc()
}

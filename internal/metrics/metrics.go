package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EmailsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total emails fully dispatched",
		},
	)

	EmailFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_failures_total",
			Help: "Total emails that failed or partially failed",
		},
	)

	BatchesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_batches_sent_total",
			Help: "Total batches handed to the transport",
		},
	)

	BatchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_batch_failures_total",
			Help: "Total batches that exhausted their retry budget",
		},
	)

	QuotaRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_quota_rejections_total",
			Help: "Total sends rejected by admission control",
		},
	)

	QuotaUsage = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "email_quota_usage_ratio",
			Help: "Projected quota usage ratio at the last admission check",
		},
		[]string{"interval"},
	)
)

func Init() {
	prometheus.MustRegister(
		EmailsSent,
		EmailFailures,
		BatchesSent,
		BatchFailures,
		QuotaRejections,
		QuotaUsage,
	)
}

package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaignd_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	Enqueues = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaignd_enqueue_total", Help: "SQS campaign trigger enqueue results"},
		[]string{"result"},
	)
	DispatchRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaignd_dispatch_runs_total", Help: "Dispatch runs by terminal campaign status"},
		[]string{"status"},
	)
	DispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "campaignd_dispatch_duration_seconds",
			Help:    "Wall time of a full dispatch run",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)
	Sends = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaignd_send_total", Help: "Per-recipient send outcomes"},
		[]string{"transport", "result"},
	)
	SendLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "campaignd_send_latency_seconds", Help: "Transport send latency"},
		[]string{"transport"},
	)
	RecipientsExcluded = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaignd_recipients_excluded_total", Help: "Resolved recipients excluded before dispatch"},
		[]string{"reason"},
	)
	WriteFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "campaignd_write_failures_total", Help: "Best-effort and post-dispatch store write failures"},
		[]string{"kind"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, Enqueues, DispatchRuns, DispatchDuration, Sends, SendLatency, RecipientsExcluded, WriteFailures)
}

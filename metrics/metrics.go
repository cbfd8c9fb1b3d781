package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "login_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"result"},
	)

	UsersImportedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "users_imported_total",
			Help: "Total number of users processed by bulk import",
		},
		[]string{"result"},
	)

	AttendanceMarksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_marks_total",
			Help: "Total number of attendance toggle operations",
		},
		[]string{"action"},
	)

	GradeScoreHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grade_score",
			Help:    "Distribution of recorded grade scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
		[]string{"kind"},
	)

	PaymentWebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhooks_total",
			Help: "Total number of billing webhook deliveries",
		},
		[]string{"event", "result"},
	)

	ReportBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "report_build_duration_seconds",
			Help:    "Time spent building XLSX reports",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"report"},
	)

	CronJobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cron_job_runs_total",
			Help: "Total number of cron job executions",
		},
		[]string{"job", "status"},
	)
)

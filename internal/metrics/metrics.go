// Package metrics defines and registers every Prometheus collector named in
// spec §4.6/§4.7/§4.10, and adapts them to the small sink interfaces
// internal/poller, internal/backup, and internal/stager already depend on.
// Grounded on the teacher's pkg/metrics/metrics.go: package-level
// collectors registered in init(), exposed over promhttp.Handler().
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	GmailPollOnceDurationMillis = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gmail_poll_once_duration_ms",
			Help:    "Duration of one email poll cycle in milliseconds",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
	)

	GmailHistoryPagesProcessed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gmail_history_pages_processed",
			Help: "Total history.list pages processed",
		},
	)

	GmailMessagesAddedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gmail_messages_added_total",
			Help: "Total messages staged from history pages",
		},
	)

	GmailBackoffWaitMillis = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gmail_backoff_wait_ms",
			Help:    "Backoff wait duration before a retried Gmail call, in milliseconds",
			Buckets: []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		},
	)

	Gmail429Total = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gmail_429_total",
			Help: "Total 429 responses received from the Gmail API",
		},
	)

	GmailCircuitState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gmail_circuit_state",
			Help: "Email poller circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	GmailCursorAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gmail_cursor_age_seconds",
			Help: "Seconds since sync_state.gmail_history_id was last advanced",
		},
	)

	GmailDuplicatesSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gmail_duplicates_skipped_total",
			Help: "Total messages skipped because their content hash already had a terminal export",
		},
	)

	BackupVerificationResult = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backup_verification_result",
			Help: "Total backup verification attempts by status",
		},
		[]string{"status"},
	)

	CaptureEmailStagingMillis = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "capture_email_staging_ms",
			Help:    "Duration of staging one extracted email capture, in milliseconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		GmailPollOnceDurationMillis,
		GmailHistoryPagesProcessed,
		GmailMessagesAddedTotal,
		GmailBackoffWaitMillis,
		Gmail429Total,
		GmailCircuitState,
		GmailCursorAgeSeconds,
		GmailDuplicatesSkippedTotal,
		BackupVerificationResult,
		CaptureEmailStagingMillis,
	)
}

// Handler exposes the registered collectors for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

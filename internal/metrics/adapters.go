package metrics

// PollerAdapter satisfies internal/poller.Metrics, forwarding every
// observation to the package-level collectors.
type PollerAdapter struct{}

func (PollerAdapter) ObservePollOnceDurationMillis(ms float64) {
	GmailPollOnceDurationMillis.Observe(ms)
}

func (PollerAdapter) IncHistoryPagesProcessed() {
	GmailHistoryPagesProcessed.Inc()
}

func (PollerAdapter) IncMessagesAdded(n int) {
	GmailMessagesAddedTotal.Add(float64(n))
}

func (PollerAdapter) ObserveBackoffWaitMillis(ms float64) {
	GmailBackoffWaitMillis.Observe(ms)
}

func (PollerAdapter) Inc429() {
	Gmail429Total.Inc()
}

func (PollerAdapter) SetCircuitState(state int) {
	GmailCircuitState.Set(float64(state))
}

func (PollerAdapter) SetCursorAgeSeconds(s float64) {
	GmailCursorAgeSeconds.Set(s)
}

func (PollerAdapter) IncDuplicatesSkipped(n int) {
	GmailDuplicatesSkippedTotal.Add(float64(n))
}

// BackupAdapter satisfies internal/backup.ResultRecorder.
type BackupAdapter struct{}

func (BackupAdapter) ObserveBackupVerification(success bool) {
	status := "failure"
	if success {
		status = "success"
	}
	BackupVerificationResult.WithLabelValues(status).Inc()
}

// StagerAdapter satisfies internal/stager.Metrics.
type StagerAdapter struct{}

func (StagerAdapter) ObserveEmailStagingMillis(ms float64) {
	CaptureEmailStagingMillis.Observe(ms)
}

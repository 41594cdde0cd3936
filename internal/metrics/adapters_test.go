package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPollerAdapterIncrementsCollectors(t *testing.T) {
	before := testutil.ToFloat64(GmailHistoryPagesProcessed)
	PollerAdapter{}.IncHistoryPagesProcessed()
	assert.Equal(t, before+1, testutil.ToFloat64(GmailHistoryPagesProcessed))

	PollerAdapter{}.SetCircuitState(2)
	assert.Equal(t, float64(2), testutil.ToFloat64(GmailCircuitState))

	PollerAdapter{}.SetCursorAgeSeconds(42.5)
	assert.Equal(t, 42.5, testutil.ToFloat64(GmailCursorAgeSeconds))
}

func TestBackupAdapterLabelsOutcome(t *testing.T) {
	before := testutil.ToFloat64(BackupVerificationResult.WithLabelValues("success"))
	BackupAdapter{}.ObserveBackupVerification(true)
	assert.Equal(t, before+1, testutil.ToFloat64(BackupVerificationResult.WithLabelValues("success")))

	beforeFail := testutil.ToFloat64(BackupVerificationResult.WithLabelValues("failure"))
	BackupAdapter{}.ObserveBackupVerification(false)
	assert.Equal(t, beforeFail+1, testutil.ToFloat64(BackupVerificationResult.WithLabelValues("failure")))
}

func TestStagerAdapterObservesHistogram(t *testing.T) {
	beforeCount := testutil.CollectAndCount(CaptureEmailStagingMillis)
	StagerAdapter{}.ObserveEmailStagingMillis(12.3)
	assert.Equal(t, beforeCount+1, testutil.CollectAndCount(CaptureEmailStagingMillis))
}

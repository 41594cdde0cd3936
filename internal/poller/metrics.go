package poller

// Metrics receives the gmail_* observations named in spec §4.7. Every
// method must be safe to call with zero values and must never block the
// poll loop; a real implementation backs these with prometheus collectors
// (internal/metrics).
type Metrics interface {
	ObservePollOnceDurationMillis(ms float64)
	IncHistoryPagesProcessed()
	IncMessagesAdded(n int)
	ObserveBackoffWaitMillis(ms float64)
	Inc429()
	SetCircuitState(state int)
	SetCursorAgeSeconds(s float64)
	IncDuplicatesSkipped(n int)
}

type noopMetrics struct{}

func (noopMetrics) ObservePollOnceDurationMillis(float64) {}
func (noopMetrics) IncHistoryPagesProcessed()              {}
func (noopMetrics) IncMessagesAdded(int)                   {}
func (noopMetrics) ObserveBackoffWaitMillis(float64)       {}
func (noopMetrics) Inc429()                                {}
func (noopMetrics) SetCircuitState(int)                    {}
func (noopMetrics) SetCursorAgeSeconds(float64)            {}
func (noopMetrics) IncDuplicatesSkipped(int)               {}

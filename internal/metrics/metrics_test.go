package metrics

import "testing"

func TestInitMetrics(t *testing.T) {
	// Should be idempotent (safe to call multiple times)
	InitMetrics()
	InitMetrics()
}

func TestRecordersDoNotPanic(t *testing.T) {
	InitMetrics()

	RecordReport("imported")
	RecordReport("failed")
	RecordRows("imported", 3)
	RecordRows("skipped", 0)
	RecordStatusTransition()
	RecordStatusHeal()
	RecordTagChange("add", "inbound", 2)
	RecordTagChange("remove", "outbound", 1)
	RecordSourcesOutdated(4)
	RecordFactGraphError("circuit_open")

	timer := StartTimer()
	timer.ObserveDuration()

	var nilTimer *ImportTimer
	nilTimer.ObserveDuration()
}

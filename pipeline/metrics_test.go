package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Tutortoise/frame-detection-service/models"
)

func TestMetricsLatencyWindow(t *testing.T) {
	m := newMetrics(3)

	s := m.snapshot()
	assert.Zero(t, s.LatencySamples)
	assert.Zero(t, s.InferenceMeanMs)

	m.recordSuccess(models.ProcessingTimings{CycleID: "a", Inference: 10 * time.Millisecond})
	s = m.snapshot()
	assert.Equal(t, 1, s.LatencySamples)
	assert.InDelta(t, 10, s.InferenceMeanMs, 1e-9)
	assert.Zero(t, s.InferenceStdDevMs)

	for _, ms := range []int{20, 30, 40} {
		m.recordSuccess(models.ProcessingTimings{CycleID: "b", Inference: time.Duration(ms) * time.Millisecond})
	}
	s = m.snapshot()
	assert.Equal(t, 3, s.LatencySamples, "window holds the newest samples only")
	assert.InDelta(t, 30, s.InferenceMeanMs, 1e-9)
	assert.InDelta(t, 10, s.InferenceStdDevMs, 1e-9)
	assert.Equal(t, "b", s.LastCycleID)
	assert.Equal(t, int64(4), s.Cycles)
}

func TestMetricsFailures(t *testing.T) {
	m := newMetrics(0)
	m.recordFailure("inference_failure")
	m.recordFailure("inference_failure")
	m.recordFailure("invalid_input")

	s := m.snapshot()
	assert.Equal(t, int64(3), s.Failures)
	assert.Equal(t, int64(3), s.ConsecutiveFailures)
	assert.Equal(t, map[string]int64{"inference_failure": 2, "invalid_input": 1}, s.FailuresByKind)

	s.FailuresByKind["invalid_input"] = 99
	assert.Equal(t, int64(1), m.snapshot().FailuresByKind["invalid_input"], "snapshot is a copy")

	m.recordSuccess(models.ProcessingTimings{})
	assert.Zero(t, m.snapshot().ConsecutiveFailures)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "processing", Processing.String())
	assert.Equal(t, "published", Published.String())
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "unknown", State(42).String())
}

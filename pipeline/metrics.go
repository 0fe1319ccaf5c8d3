package pipeline

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/Tutortoise/frame-detection-service/models"
)

// Metrics accumulates per-cycle counters and a sliding window of inference latencies.
type Metrics struct {
	mu             sync.RWMutex
	cycles         int64
	failures       int64
	consecutive    int64
	idlePolls      int64
	failuresByKind map[string]int64
	latencies      []float64 // milliseconds, ring buffer
	next           int
	filled         bool
	last           models.ProcessingTimings
}

// MetricsSnapshot is a copy of Metrics safe to hand to other goroutines.
type MetricsSnapshot struct {
	Cycles               int64            `json:"cycles"`
	Failures             int64            `json:"failures"`
	ConsecutiveFailures  int64            `json:"consecutive_failures"`
	IdlePolls            int64            `json:"idle_polls"`
	FailuresByKind       map[string]int64 `json:"failures_by_kind"`
	InferenceMeanMs      float64          `json:"inference_mean_ms"`
	InferenceStdDevMs    float64          `json:"inference_stddev_ms"`
	LatencySamples       int              `json:"latency_samples"`
	LastCycleID          string           `json:"last_cycle_id,omitempty"`
	LastTotalMs          float64          `json:"last_total_ms"`
	QuantizationFallback bool             `json:"quantization_fallback"`
}

func newMetrics(window int) *Metrics {
	if window <= 0 {
		window = DefaultLatencyWindow
	}
	return &Metrics{
		failuresByKind: make(map[string]int64),
		latencies:      make([]float64, window),
	}
}

func (m *Metrics) recordSuccess(t models.ProcessingTimings) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cycles++
	m.consecutive = 0
	m.last = t
	m.latencies[m.next] = durationMs(t.Inference)
	m.next++
	if m.next == len(m.latencies) {
		m.next = 0
		m.filled = true
	}
}

func (m *Metrics) recordFailure(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cycles++
	m.failures++
	m.consecutive++
	m.failuresByKind[kind]++
}

func (m *Metrics) recordIdle() {
	m.mu.Lock()
	m.idlePolls++
	m.mu.Unlock()
}

func (m *Metrics) snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := MetricsSnapshot{
		Cycles:              m.cycles,
		Failures:            m.failures,
		ConsecutiveFailures: m.consecutive,
		IdlePolls:           m.idlePolls,
		FailuresByKind:      make(map[string]int64, len(m.failuresByKind)),
		LastCycleID:         m.last.CycleID,
		LastTotalMs:         durationMs(m.last.Total),
	}
	for k, v := range m.failuresByKind {
		s.FailuresByKind[k] = v
	}

	samples := m.latencies[:m.next]
	if m.filled {
		samples = m.latencies
	}
	s.LatencySamples = len(samples)
	switch len(samples) {
	case 0:
	case 1:
		s.InferenceMeanMs = samples[0]
	default:
		mean, std := stat.MeanStdDev(samples, nil)
		s.InferenceMeanMs = mean
		if !math.IsNaN(std) {
			s.InferenceStdDevMs = std
		}
	}
	return s
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Package pipeline runs the letterbox, quantize, detect and post-process chain
// over the freshest published frame and exposes the latest results.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tutortoise/frame-detection-service/detections"
	"github.com/Tutortoise/frame-detection-service/models"
)

const (
	DefaultPollInterval  = 5 * time.Millisecond
	DefaultStopTimeout   = time.Second
	DefaultLatencyWindow = 100
)

var (
	ErrAlreadyStarted = errors.New("pipeline already started")
	ErrStopped        = errors.New("pipeline stopped")
	// ErrStopTimeout means the loop did not exit within Config.StopTimeout,
	// usually because a detector call is still in flight.
	ErrStopTimeout = errors.New("pipeline did not stop in time")
)

// Config tunes a Pipeline. ScoreThreshold is used as given; zero durations and
// windows take their defaults.
type Config struct {
	ScoreThreshold float32
	Labels         []string
	PollInterval   time.Duration
	StopTimeout    time.Duration
	LatencyWindow  int

	// Now is the clock used for FPS and publication timestamps.
	Now func() time.Time
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		ScoreThreshold: detections.DefaultScoreThreshold,
		PollInterval:   DefaultPollInterval,
		StopTimeout:    DefaultStopTimeout,
		LatencyWindow:  DefaultLatencyWindow,
	}
}

// Pipeline owns the shared frame slot and the published result slot. One
// goroutine publishes frames, one inference loop consumes them. Locks are held
// only while copying.
type Pipeline struct {
	runID  string
	cfg    Config
	logger *zap.SugaredLogger

	det   detections.Detector
	spec  detections.InputSpec
	quant *detections.Quantizer
	post  *detections.PostProcessor

	frameMu   sync.Mutex
	frame     *models.Frame
	published uint64

	resultMu  sync.RWMutex
	state     State
	dets      []models.Detection
	fps       float64
	frameSeq  uint64
	updatedAt time.Time
	lastErr   string

	metrics *Metrics

	lifeMu  sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New prepares a pipeline for det. Quantization is resolved here, so parameters
// the detector publishes that cannot be honored fail before anything runs.
func New(det detections.Detector, cfg Config, logger *zap.SugaredLogger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if det == nil {
		return nil, fmt.Errorf("%w: nil detector", detections.ErrConfiguration)
	}
	th := cfg.ScoreThreshold
	if math.IsNaN(float64(th)) || th < 0 || th > 1 {
		return nil, fmt.Errorf("%w: score threshold %v outside [0, 1]", detections.ErrConfiguration, th)
	}
	if cfg.PollInterval < 0 || cfg.StopTimeout < 0 || cfg.LatencyWindow < 0 {
		return nil, fmt.Errorf("%w: negative pipeline timing", detections.ErrConfiguration)
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.LatencyWindow == 0 {
		cfg.LatencyWindow = DefaultLatencyWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	spec := det.InputSpec()
	quant, err := detections.NewQuantizer(spec, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve input quantization: %w", err)
	}
	if len(cfg.Labels) == 0 {
		logger.Warnw("no label table, detections will carry synthetic labels")
	}

	return &Pipeline{
		runID:   runID,
		cfg:     cfg,
		logger:  logger,
		det:     det,
		spec:    spec,
		quant:   quant,
		post:    detections.NewPostProcessor(th, cfg.Labels),
		state:   Idle,
		dets:    []models.Detection{},
		metrics: newMetrics(cfg.LatencyWindow),
	}, nil
}

// RunID identifies this pipeline instance in logs and snapshots.
func (p *Pipeline) RunID() string { return p.runID }

// Start launches the inference loop. It runs until Stop is called or ctx ends.
func (p *Pipeline) Start(ctx context.Context) error {
	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()

	if p.stopped {
		return ErrStopped
	}
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx)

	p.logger.Infow("pipeline started",
		"input", p.spec.Shape(),
		"dtype", p.spec.DType,
		"threshold", p.post.Threshold(),
		"poll_interval", p.cfg.PollInterval,
		"quantization_fallback", p.quant.Fallback())
	return nil
}

// Stop signals the loop and waits up to Config.StopTimeout for it to exit.
// The in-flight detector call is never aborted. Stop is idempotent.
func (p *Pipeline) Stop() error {
	p.lifeMu.Lock()
	wasStopped := p.stopped
	p.stopped = true
	started, cancel, done := p.started, p.cancel, p.done
	p.lifeMu.Unlock()

	if !started {
		if !wasStopped {
			p.setState(Stopped)
		}
		return nil
	}
	cancel()

	timer := time.NewTimer(p.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-done:
		if !wasStopped {
			p.logger.Infow("pipeline stopped", "cycles", p.metrics.snapshot().Cycles)
		}
		return nil
	case <-timer.C:
		p.logger.Errorw("pipeline did not stop in time", "timeout", p.cfg.StopTimeout)
		return ErrStopTimeout
	}
}

// Publish stores a copy of frame as the newest frame, replacing any frame the
// loop has not picked up yet. Frames without a sequence number are numbered in
// publication order.
func (p *Pipeline) Publish(frame *models.Frame) {
	if frame == nil {
		return
	}
	c := frame.Clone()

	p.frameMu.Lock()
	p.published++
	if c.Seq == 0 {
		c.Seq = p.published
	}
	p.frame = c
	p.frameMu.Unlock()
}

// latestFrame returns a private copy of the frame slot, or nil before the first
// publication. The slot keeps its frame, so an unchanged source is re-processed.
func (p *Pipeline) latestFrame() *models.Frame {
	p.frameMu.Lock()
	defer p.frameMu.Unlock()
	return p.frame.Clone()
}

// Detections returns a copy of the latest published detection set.
func (p *Pipeline) Detections() []models.Detection {
	p.resultMu.RLock()
	defer p.resultMu.RUnlock()
	out := make([]models.Detection, len(p.dets))
	copy(out, p.dets)
	return out
}

// FPS returns the rate of the last completed cycle. Failed cycles report 0.
func (p *Pipeline) FPS() float64 {
	p.resultMu.RLock()
	defer p.resultMu.RUnlock()
	return p.fps
}

func (p *Pipeline) State() State {
	p.resultMu.RLock()
	defer p.resultMu.RUnlock()
	return p.state
}

// Snapshot returns the consumer view of the latest results.
func (p *Pipeline) Snapshot() models.Snapshot {
	m := p.metrics.snapshot()

	p.resultMu.RLock()
	defer p.resultMu.RUnlock()
	dets := make([]models.Detection, len(p.dets))
	copy(dets, p.dets)
	return models.Snapshot{
		RunID:                p.runID,
		State:                p.state.String(),
		Detections:           dets,
		FPS:                  p.fps,
		FrameSeq:             p.frameSeq,
		UpdatedAt:            p.updatedAt,
		Cycles:               m.Cycles,
		Failures:             m.Failures,
		ConsecutiveFailures:  m.ConsecutiveFailures,
		LastError:            p.lastErr,
		QuantizationFallback: p.quant.Fallback(),
	}
}

// Metrics returns cycle counters and inference latency statistics.
func (p *Pipeline) Metrics() MetricsSnapshot {
	s := p.metrics.snapshot()
	s.QuantizationFallback = p.quant.Fallback()
	return s
}

func (p *Pipeline) setState(s State) {
	p.resultMu.Lock()
	p.state = s
	p.resultMu.Unlock()
}

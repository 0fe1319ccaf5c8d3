package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Tutortoise/frame-detection-service/detections"
	"github.com/Tutortoise/frame-detection-service/models"
)

func (p *Pipeline) run(ctx context.Context) {
	defer close(p.done)
	defer p.setState(Stopped)

	prev := p.cfg.Now()
	for ctx.Err() == nil {
		frame := p.latestFrame()
		if frame == nil {
			p.metrics.recordIdle()
			p.sleep(ctx)
			continue
		}

		p.setState(Processing)
		cycleID := uuid.NewString()
		dets, timings, err := p.process(frame, cycleID)
		now := p.cfg.Now()

		if err != nil {
			p.fail(cycleID, frame, now, err)
			prev = now
			p.sleep(ctx)
			continue
		}

		fps := 0.0
		if now.After(prev) {
			fps = 1 / now.Sub(prev).Seconds()
		}
		prev = now

		p.resultMu.Lock()
		p.dets = dets
		p.fps = fps
		p.frameSeq = frame.Seq
		p.updatedAt = now
		p.lastErr = ""
		p.state = Published
		p.resultMu.Unlock()

		p.metrics.recordSuccess(timings)
		p.logger.Debugw("cycle complete",
			"cycle_id", cycleID,
			"frame_seq", frame.Seq,
			"detections", len(dets),
			"fps", fps,
			"letterbox", timings.Letterbox,
			"quantize", timings.Quantize,
			"inference", timings.Inference,
			"postprocess", timings.Postprocess,
			"total", timings.Total)
	}
}

// process runs one frame through the whole chain. No lock is held.
func (p *Pipeline) process(frame *models.Frame, cycleID string) ([]models.Detection, models.ProcessingTimings, error) {
	t := models.ProcessingTimings{CycleID: cycleID}
	start := time.Now()
	mark := start
	lap := func() time.Duration {
		now := time.Now()
		d := now.Sub(mark)
		mark = now
		return d
	}

	lb, err := detections.Letterbox(frame, p.spec.Width, p.spec.Height)
	if err != nil {
		return nil, t, err
	}
	t.Letterbox = lap()

	tensor, err := p.quant.Quantize(lb)
	if err != nil {
		return nil, t, err
	}
	t.Quantize = lap()

	raw, err := p.detect(tensor)
	if err != nil {
		return nil, t, err
	}
	t.Inference = lap()

	dets := p.post.Process(raw, lb, frame.Width, frame.Height)
	t.Postprocess = lap()
	t.Total = time.Since(start)
	return dets, t, nil
}

// detect calls the detector, turning panics and untyped errors into
// inference failures so they stay inside the cycle.
func (p *Pipeline) detect(t *models.Tensor) (raw *models.RawOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			raw, err = nil, fmt.Errorf("%w: detector panic: %v", detections.ErrInferenceFailure, r)
		}
	}()

	raw, err = p.det.Detect(t)
	if err != nil {
		if detections.KindOf(err) == "unknown" {
			err = fmt.Errorf("%w: %w", detections.ErrInferenceFailure, err)
		}
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: detector returned no output", detections.ErrInferenceFailure)
	}
	return raw, nil
}

// fail publishes an empty result with zero FPS for a skipped cycle.
func (p *Pipeline) fail(cycleID string, frame *models.Frame, now time.Time, err error) {
	kind := detections.KindOf(err)

	p.resultMu.Lock()
	p.dets = []models.Detection{}
	p.fps = 0
	p.frameSeq = frame.Seq
	p.updatedAt = now
	p.lastErr = err.Error()
	p.state = Published
	p.resultMu.Unlock()

	p.metrics.recordFailure(kind)
	p.logger.Errorw("cycle skipped",
		"cycle_id", cycleID,
		"frame_seq", frame.Seq,
		"at", now,
		"kind", kind,
		"error", err)
}

// sleep waits one poll interval or until ctx ends.
func (p *Pipeline) sleep(ctx context.Context) {
	timer := time.NewTimer(p.cfg.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

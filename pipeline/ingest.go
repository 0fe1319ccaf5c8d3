package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/Tutortoise/frame-detection-service/source"
)

// Ingest polls src every interval and publishes each frame it returns until ctx
// ends. Source errors are logged and polling continues; an exhausted source
// ends ingest and leaves its last frame in the slot.
func (p *Pipeline) Ingest(ctx context.Context, src source.FrameSource, interval time.Duration) error {
	if interval <= 0 {
		interval = p.cfg.PollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		frame, err := src.LatestFrame()
		switch {
		case errors.Is(err, source.ErrExhausted):
			p.logger.Infow("frame source exhausted")
			return nil
		case err != nil:
			p.logger.Warnw("frame source failed", "error", err)
		case frame != nil:
			p.Publish(frame)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

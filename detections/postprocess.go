package detections

import (
	"math"
	"strconv"

	"github.com/Tutortoise/frame-detection-service/models"
)

// PostProcessor turns raw detector output into frame-space detections.
type PostProcessor struct {
	threshold float32
	labels    []string
}

// NewPostProcessor copies labels; a nil or empty table yields "id:<n>" labels.
func NewPostProcessor(threshold float32, labels []string) *PostProcessor {
	l := make([]string, len(labels))
	copy(l, labels)
	return &PostProcessor{threshold: threshold, labels: l}
}

// Threshold returns the minimum score a detection needs to be kept.
func (p *PostProcessor) Threshold() float32 { return p.threshold }

// Label resolves a class index. Tables exported 0-based are tried first, then
// 1-based ones; anything else gets a synthetic label.
func (p *PostProcessor) Label(class int) string {
	n := len(p.labels)
	switch {
	case class >= 0 && class < n:
		return p.labels[class]
	case class >= 1 && class <= n:
		return p.labels[class-1]
	}
	return "id:" + strconv.Itoa(class)
}

// Process filters raw by score, resolves labels and maps boxes back through the
// letterbox into a frameW x frameH frame. Detector order is preserved.
func (p *PostProcessor) Process(raw *models.RawOutput, lb *models.LetterboxResult, frameW, frameH int) []models.Detection {
	if raw == nil || lb == nil || frameW <= 0 || frameH <= 0 {
		return []models.Detection{}
	}

	count := raw.Count
	count = min(count, len(raw.Boxes), len(raw.Classes), len(raw.Scores))
	out := make([]models.Detection, 0, max(count, 0))

	tw, th := float64(lb.Width), float64(lb.Height)
	for i := 0; i < count; i++ {
		score := raw.Scores[i]
		if !(score >= p.threshold) {
			continue
		}

		b := raw.Boxes[i]
		x1, y1 := lb.Invert(float64(b[1])*tw, float64(b[0])*th)
		x2, y2 := lb.Invert(float64(b[3])*tw, float64(b[2])*th)

		box := models.Box{
			X1: toPixel(x1, frameW),
			Y1: toPixel(y1, frameH),
			X2: toPixel(x2, frameW),
			Y2: toPixel(y2, frameH),
		}
		if box.X2 <= box.X1 || box.Y2 <= box.Y1 {
			continue
		}

		out = append(out, models.Detection{
			Box:   box,
			Label: p.Label(raw.Classes[i]),
			Score: score,
		})
	}
	return out
}

// toPixel rounds v and clamps it to [0, dim-1]. NaN lands on 0.
func toPixel(v float64, dim int) int {
	if math.IsNaN(v) {
		return 0
	}
	r := math.Round(v)
	if r < 0 {
		return 0
	}
	if r > float64(dim-1) {
		return dim - 1
	}
	return int(r)
}

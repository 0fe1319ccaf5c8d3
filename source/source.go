// Package source provides frames to the detection pipeline.
package source

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Tutortoise/frame-detection-service/models"
)

// FrameSource yields the most recent camera frame. A nil frame with a nil error
// means nothing is available yet.
type FrameSource interface {
	LatestFrame() (*models.Frame, error)
}

// ErrExhausted is returned by an ImageSource that does not loop once every image
// has been served.
var ErrExhausted = errors.New("source exhausted")

// FrameFromImage converts img to a packed RGB frame. Alpha is dropped.
func FrameFromImage(img image.Image) *models.Frame {
	nrgba := imaging.Clone(img)
	w, h := nrgba.Rect.Dx(), nrgba.Rect.Dy()
	pix := make([]uint8, w*h*models.Channels)
	for y := 0; y < h; y++ {
		src := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		dst := pix[y*w*models.Channels : (y+1)*w*models.Channels]
		for x := 0; x < w; x++ {
			dst[x*3] = src[x*4]
			dst[x*3+1] = src[x*4+1]
			dst[x*3+2] = src[x*4+2]
		}
	}
	return &models.Frame{Width: w, Height: h, Pix: pix}
}

// ImageSource replays still images as a simulated camera, one image per call.
type ImageSource struct {
	mu     sync.Mutex
	frames []*models.Frame
	next   int
	seq    uint64
	loop   bool
	now    func() time.Time
}

// NewImageSource decodes every path up front. JPEG, PNG, GIF, BMP, TIFF and WebP
// are accepted; EXIF orientation is applied.
func NewImageSource(paths []string, loop bool) (*ImageSource, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("image source needs at least one image")
	}
	frames := make([]*models.Frame, 0, len(paths))
	for _, p := range paths {
		img, err := imaging.Open(p, imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("failed to open image %s: %w", p, err)
		}
		frames = append(frames, FrameFromImage(img))
	}
	return NewFrameSource(frames, loop), nil
}

// NewFrameSource replays already decoded frames.
func NewFrameSource(frames []*models.Frame, loop bool) *ImageSource {
	return &ImageSource{frames: frames, loop: loop, now: time.Now}
}

// LatestFrame returns a copy of the next image stamped with a fresh sequence number.
func (s *ImageSource) LatestFrame() (*models.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.frames) == 0 {
		return nil, nil
	}
	if s.next >= len(s.frames) {
		if !s.loop {
			return nil, ErrExhausted
		}
		s.next = 0
	}
	f := s.frames[s.next].Clone()
	s.next++
	s.seq++
	f.Seq = s.seq
	f.CapturedAt = s.now()
	return f, nil
}

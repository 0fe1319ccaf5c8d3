package detections

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tutortoise/frame-detection-service/models"
)

func solidFrame(w, h int, r, g, b uint8) *models.Frame {
	pix := make([]uint8, w*h*models.Channels)
	for i := 0; i < len(pix); i += 3 {
		pix[i], pix[i+1], pix[i+2] = r, g, b
	}
	return &models.Frame{Width: w, Height: h, Pix: pix}
}

func pixelAt(lb *models.LetterboxResult, x, y int) [3]uint8 {
	i := (y*lb.Width + x) * models.Channels
	return [3]uint8{lb.Canvas[i], lb.Canvas[i+1], lb.Canvas[i+2]}
}

func TestLetterboxLandscape(t *testing.T) {
	lb, err := Letterbox(solidFrame(640, 480, 200, 100, 50), 320, 320)
	require.NoError(t, err)

	assert.Equal(t, 320, lb.Width)
	assert.Equal(t, 320, lb.Height)
	assert.InDelta(t, 0.5, lb.Scale, 1e-12)
	assert.Equal(t, 0, lb.OffsetX)
	assert.Equal(t, 40, lb.OffsetY)
	assert.Equal(t, 320, lb.ResizedWidth)
	assert.Equal(t, 240, lb.ResizedHeight)
	require.Len(t, lb.Canvas, 320*320*3)

	assert.Equal(t, [3]uint8{0, 0, 0}, pixelAt(lb, 0, 0), "top padding")
	assert.Equal(t, [3]uint8{0, 0, 0}, pixelAt(lb, 319, 39), "last padding row")
	assert.Equal(t, [3]uint8{0, 0, 0}, pixelAt(lb, 160, 280), "bottom padding")

	center := pixelAt(lb, 160, 160)
	assert.InDelta(t, 200, center[0], 1)
	assert.InDelta(t, 100, center[1], 1)
	assert.InDelta(t, 50, center[2], 1)
}

func TestLetterboxPortraitCentersHorizontally(t *testing.T) {
	lb, err := Letterbox(solidFrame(100, 200, 255, 255, 255), 300, 300)
	require.NoError(t, err)

	assert.InDelta(t, 1.5, lb.Scale, 1e-12)
	assert.Equal(t, 150, lb.ResizedWidth)
	assert.Equal(t, 300, lb.ResizedHeight)
	assert.Equal(t, 75, lb.OffsetX)
	assert.Equal(t, 0, lb.OffsetY)
	assert.Equal(t, [3]uint8{0, 0, 0}, pixelAt(lb, 74, 150))
	assert.Equal(t, [3]uint8{0, 0, 0}, pixelAt(lb, 225, 150))
}

func TestLetterboxSameSizeCopiesPixels(t *testing.T) {
	f := &models.Frame{Width: 2, Height: 2, Pix: []uint8{
		1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12,
	}}
	lb, err := Letterbox(f, 2, 2)
	require.NoError(t, err)

	assert.Equal(t, 1.0, lb.Scale)
	assert.Equal(t, f.Pix, lb.Canvas)
}

func TestLetterboxInvert(t *testing.T) {
	lb, err := Letterbox(solidFrame(640, 480, 1, 1, 1), 320, 320)
	require.NoError(t, err)

	x, y := lb.Invert(160, 160)
	assert.InDelta(t, 320, x, 1e-9)
	assert.InDelta(t, 240, y, 1e-9)

	x, y = lb.Invert(0, 40)
	assert.InDelta(t, 0, x, 1e-9)
	assert.InDelta(t, 0, y, 1e-9)
}

func TestLetterboxInvertRecoversCorners(t *testing.T) {
	tests := []struct {
		name   string
		w, h   int
		tw, th int
	}{
		{"landscape", 640, 480, 320, 320},
		{"odd vertical padding", 641, 479, 320, 320},
		{"odd horizontal padding", 479, 641, 320, 320},
		{"non-square target", 1280, 720, 300, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lb, err := Letterbox(solidFrame(tt.w, tt.h, 1, 1, 1), tt.tw, tt.th)
			require.NoError(t, err)

			left, top := float64(lb.OffsetX), float64(lb.OffsetY)
			right, bottom := left+float64(lb.ResizedWidth), top+float64(lb.ResizedHeight)
			w, h := float64(tt.w), float64(tt.h)

			corners := []struct {
				cx, cy float64
				sx, sy float64
			}{
				{left, top, 0, 0},
				{right, top, w, 0},
				{left, bottom, 0, h},
				{right, bottom, w, h},
			}
			for _, c := range corners {
				x, y := lb.Invert(c.cx, c.cy)
				assert.InDelta(t, c.sx, x, 1, "x of canvas corner (%v, %v)", c.cx, c.cy)
				assert.InDelta(t, c.sy, y, 1, "y of canvas corner (%v, %v)", c.cx, c.cy)
			}
		})
	}
}

func TestLetterboxTinySourceKeepsOnePixel(t *testing.T) {
	lb, err := Letterbox(solidFrame(1000, 1, 9, 9, 9), 10, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, lb.ResizedWidth)
	assert.Equal(t, 1, lb.ResizedHeight)
	assert.Equal(t, 4, lb.OffsetY)
}

func TestLetterboxRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		frame  *models.Frame
		tw, th int
	}{
		{"nil frame", nil, 10, 10},
		{"zero width", &models.Frame{Width: 0, Height: 4}, 10, 10},
		{"negative height", &models.Frame{Width: 4, Height: -1}, 10, 10},
		{"short buffer", &models.Frame{Width: 2, Height: 2, Pix: make([]uint8, 11)}, 10, 10},
		{"zero target", solidFrame(2, 2, 0, 0, 0), 0, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lb, err := Letterbox(tt.frame, tt.tw, tt.th)
			assert.Nil(t, lb)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

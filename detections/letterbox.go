package detections

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/Tutortoise/frame-detection-service/models"
)

// Letterbox resizes frame onto a targetW x targetH canvas, preserving the aspect
// ratio and centering the result. Padding is zero-filled.
func Letterbox(frame *models.Frame, targetW, targetH int) (*models.LetterboxResult, error) {
	if targetW <= 0 || targetH <= 0 {
		return nil, newError(ErrInvalidInput, nil, "letterbox target %dx%d", targetW, targetH)
	}
	if err := frame.Validate(); err != nil {
		return nil, newError(ErrInvalidInput, err, "letterbox source")
	}

	w, h := frame.Width, frame.Height
	scale := math.Min(float64(targetW)/float64(w), float64(targetH)/float64(h))
	nw := clampInt(int(math.Round(float64(w)*scale)), 1, targetW)
	nh := clampInt(int(math.Round(float64(h)*scale)), 1, targetH)

	src := frameToNRGBA(frame)
	var resized *image.NRGBA
	if nw == w && nh == h {
		resized = src
	} else {
		resized = imaging.Resize(src, nw, nh, imaging.Linear)
	}

	offX := (targetW - nw) / 2
	offY := (targetH - nh) / 2
	canvas := imaging.New(targetW, targetH, color.NRGBA{A: 0xff})
	canvas = imaging.Paste(canvas, resized, image.Pt(offX, offY))

	return &models.LetterboxResult{
		Canvas:        nrgbaToRGB(canvas),
		Width:         targetW,
		Height:        targetH,
		Scale:         scale,
		OffsetX:       offX,
		OffsetY:       offY,
		ResizedWidth:  nw,
		ResizedHeight: nh,
	}, nil
}

func frameToNRGBA(f *models.Frame) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, j := 0, 0; i < len(f.Pix); i, j = i+3, j+4 {
		img.Pix[j] = f.Pix[i]
		img.Pix[j+1] = f.Pix[i+1]
		img.Pix[j+2] = f.Pix[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}

func nrgbaToRGB(img *image.NRGBA) []uint8 {
	b := img.Bounds()
	out := make([]uint8, b.Dx()*b.Dy()*models.Channels)
	o := 0
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		for x := 0; x < len(row); x += 4 {
			out[o] = row[x]
			out[o+1] = row[x+1]
			out[o+2] = row[x+2]
			o += 3
		}
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package models

import (
	"fmt"
	"time"
)

// Channels is the number of color samples per pixel in a Frame.
const Channels = 3

// Frame is one captured RGB image. Pix is row-major, 3 bytes per pixel.
type Frame struct {
	Width      int
	Height     int
	Pix        []uint8
	Seq        uint64
	CapturedAt time.Time
}

// Validate reports whether the frame geometry matches its buffer.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("nil frame")
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("frame dimensions %dx%d", f.Width, f.Height)
	}
	if len(f.Pix) != f.Width*f.Height*Channels {
		return fmt.Errorf("frame buffer has %d bytes, want %d", len(f.Pix), f.Width*f.Height*Channels)
	}
	return nil
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	c := *f
	c.Pix = make([]uint8, len(f.Pix))
	copy(c.Pix, f.Pix)
	return &c
}

// Box is a rectangle in frame pixel coordinates.
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func (b Box) Width() int  { return b.X2 - b.X1 }
func (b Box) Height() int { return b.Y2 - b.Y1 }

// Detection is a post-processed detector result in frame space.
type Detection struct {
	Box   Box     `json:"box"`
	Label string  `json:"label"`
	Score float32 `json:"score"`
}

// LetterboxResult holds an aspect-preserving resize of a frame onto a fixed canvas
// together with the parameters needed to map canvas points back to the frame.
type LetterboxResult struct {
	Canvas        []uint8
	Width         int
	Height        int
	Scale         float64
	OffsetX       int
	OffsetY       int
	ResizedWidth  int
	ResizedHeight int
}

// Invert maps a canvas point back into source-frame coordinates.
func (l *LetterboxResult) Invert(x, y float64) (float64, float64) {
	return (x - float64(l.OffsetX)) / l.Scale, (y - float64(l.OffsetY)) / l.Scale
}

// DType is the element type of a detector input tensor.
type DType string

const (
	Float32 DType = "float32"
	UInt8   DType = "uint8"
	Int8    DType = "int8"
)

// ParseDType converts a config string to a DType.
func ParseDType(s string) (DType, error) {
	switch DType(s) {
	case Float32, UInt8, Int8:
		return DType(s), nil
	}
	return "", fmt.Errorf("unsupported tensor dtype %q", s)
}

// Tensor is a detector input of shape (1, H, W, 3). Exactly one of the data slices
// is populated, the one matching DType.
type Tensor struct {
	DType DType
	Shape [4]int
	F32   []float32
	U8    []uint8
	I8    []int8
}

// Len returns the number of elements held by the populated buffer.
func (t *Tensor) Len() int {
	switch t.DType {
	case Float32:
		return len(t.F32)
	case UInt8:
		return len(t.U8)
	case Int8:
		return len(t.I8)
	}
	return 0
}

// RawOutput is the detection head output of one inference call.
// Boxes are normalized (ymin, xmin, ymax, xmax).
type RawOutput struct {
	Boxes   [][4]float32
	Classes []int
	Scores  []float32
	Count   int
}

// ProcessingTimings records where one inference cycle spent its time.
type ProcessingTimings struct {
	CycleID     string
	Letterbox   time.Duration
	Quantize    time.Duration
	Inference   time.Duration
	Postprocess time.Duration
	Total       time.Duration
}

// Snapshot is the read-only view handed to rendering and telemetry consumers.
type Snapshot struct {
	RunID                string      `json:"run_id"`
	State                string      `json:"state"`
	Detections           []Detection `json:"detections"`
	FPS                  float64     `json:"fps"`
	FrameSeq             uint64      `json:"frame_seq"`
	UpdatedAt            time.Time   `json:"updated_at"`
	Cycles               int64       `json:"cycles"`
	Failures             int64       `json:"failures"`
	ConsecutiveFailures  int64       `json:"consecutive_failures"`
	LastError            string      `json:"last_error,omitempty"`
	QuantizationFallback bool        `json:"quantization_fallback"`
}

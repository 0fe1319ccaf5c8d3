package detections

import (
	"math"

	"go.uber.org/zap"

	"github.com/Tutortoise/frame-detection-service/models"
)

type quantMode int

const (
	modeNormalize quantMode = iota
	modePassthrough
	modeAffine
	modeInt8Fallback
)

func (m quantMode) String() string {
	switch m {
	case modeNormalize:
		return "normalize"
	case modePassthrough:
		return "passthrough"
	case modeAffine:
		return "affine"
	case modeInt8Fallback:
		return "int8_fallback"
	}
	return "unknown"
}

// Quantizer converts letterboxed canvases into the detector's input tensor.
// Since every input sample is a byte, the mapping is resolved once into a
// 256-entry table per dtype.
type Quantizer struct {
	spec InputSpec
	mode quantMode

	f32 [256]float32
	u8  [256]uint8
	i8  [256]int8
}

// NewQuantizer resolves the quantization mode for spec. Parameters that cannot be
// honored, even through the int8 fallback, are configuration errors.
func NewQuantizer(spec InputSpec, logger *zap.SugaredLogger) (*Quantizer, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, newError(ErrConfiguration, nil, "detector input %dx%d", spec.Width, spec.Height)
	}
	scale := spec.Quant.Scale
	if scale < 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return nil, newError(ErrConfiguration, nil, "quantization scale %v", scale)
	}

	q := &Quantizer{spec: spec}
	zp := spec.Quant.ZeroPoint
	switch spec.DType {
	case models.Float32:
		q.mode = modeNormalize
		for v := 0; v < 256; v++ {
			q.f32[v] = float32(v) / 255.0
		}
	case models.UInt8:
		if scale == 0 {
			q.mode = modePassthrough
			for v := 0; v < 256; v++ {
				q.u8[v] = uint8(v)
			}
			break
		}
		if zp < 0 || zp > math.MaxUint8 {
			return nil, newError(ErrConfiguration, nil, "uint8 zero point %d", zp)
		}
		q.mode = modeAffine
		for v := 0; v < 256; v++ {
			q.u8[v] = uint8(affine(uint8(v), scale, zp, 0, math.MaxUint8))
		}
	case models.Int8:
		if scale == 0 {
			q.mode = modeInt8Fallback
			for v := 0; v < 256; v++ {
				q.i8[v] = int8Fallback(uint8(v))
			}
			logger.Warnw("detector publishes no int8 input quantization, using approximate fallback",
				"scale", Int8FallbackScale,
				"center", Int8FallbackCenter)
			break
		}
		if zp < math.MinInt8 || zp > math.MaxInt8 {
			return nil, newError(ErrConfiguration, nil, "int8 zero point %d", zp)
		}
		q.mode = modeAffine
		for v := 0; v < 256; v++ {
			q.i8[v] = int8(affine(uint8(v), scale, zp, math.MinInt8, math.MaxInt8))
		}
	default:
		return nil, newError(ErrConfiguration, nil, "unsupported input dtype %q", spec.DType)
	}

	logger.Debugw("input quantization resolved", "dtype", spec.DType, "mode", q.mode)
	return q, nil
}

// affine normalizes v to [0, 1], divides by scale, adds the zero point, rounds half
// to even and clips to [lo, hi].
func affine(v uint8, scale float64, zp int, lo, hi float64) float64 {
	q := math.RoundToEven(float64(v)/255.0/scale + float64(zp))
	return math.Max(lo, math.Min(hi, q))
}

// int8Fallback maps v to [-1, 1] around Int8FallbackCenter and quantizes it with
// Int8FallbackScale. It approximates detectors that omit their parameters.
func int8Fallback(v uint8) int8 {
	c := (float64(v) - Int8FallbackCenter) / Int8FallbackCenter
	c = math.Max(-1, math.Min(1, c))
	q := math.RoundToEven(c / Int8FallbackScale)
	return int8(math.Max(math.MinInt8, math.Min(math.MaxInt8, q)))
}

// Spec returns the input contract the quantizer produces tensors for.
func (q *Quantizer) Spec() InputSpec { return q.spec }

// Fallback reports whether the int8 approximation is in use.
func (q *Quantizer) Fallback() bool { return q.mode == modeInt8Fallback }

// Quantize converts lb's canvas into a tensor matching the detector input exactly.
func (q *Quantizer) Quantize(lb *models.LetterboxResult) (*models.Tensor, error) {
	if lb == nil {
		return nil, newError(ErrShapeMismatch, nil, "nil canvas")
	}
	if lb.Width != q.spec.Width || lb.Height != q.spec.Height {
		return nil, newError(ErrShapeMismatch, nil, "canvas %dx%d, detector expects %dx%d",
			lb.Width, lb.Height, q.spec.Width, q.spec.Height)
	}
	n := q.spec.elements()
	if len(lb.Canvas) != n {
		return nil, newError(ErrShapeMismatch, nil, "canvas holds %d samples, want %d", len(lb.Canvas), n)
	}

	t := &models.Tensor{DType: q.spec.DType, Shape: q.spec.Shape()}
	rowLen := q.spec.Width * models.Channels
	src := lb.Canvas

	switch q.spec.DType {
	case models.Float32:
		t.F32 = make([]float32, n)
		splitRows(q.spec.Height, func(start, end int) {
			for i := start * rowLen; i < end*rowLen; i++ {
				t.F32[i] = q.f32[src[i]]
			}
		})
	case models.UInt8:
		t.U8 = make([]uint8, n)
		if q.mode == modePassthrough {
			copy(t.U8, src)
			break
		}
		splitRows(q.spec.Height, func(start, end int) {
			for i := start * rowLen; i < end*rowLen; i++ {
				t.U8[i] = q.u8[src[i]]
			}
		})
	case models.Int8:
		t.I8 = make([]int8, n)
		splitRows(q.spec.Height, func(start, end int) {
			for i := start * rowLen; i < end*rowLen; i++ {
				t.I8[i] = q.i8[src[i]]
			}
		})
	}
	return t, nil
}

package detections

import (
	"math"

	"go.uber.org/zap"

	"github.com/Tutortoise/frame-detection-service/models"
)

// QuantParams is the affine input quantization published by a detector.
// A zero Scale means the detector did not publish one.
type QuantParams struct {
	Scale     float64
	ZeroPoint int
}

// InputSpec is the input contract a detector declares.
type InputSpec struct {
	Width  int
	Height int
	DType  models.DType
	Quant  QuantParams
}

// Shape returns the NHWC tensor shape of the input.
func (s InputSpec) Shape() [4]int {
	return [4]int{1, s.Height, s.Width, models.Channels}
}

func (s InputSpec) elements() int {
	return s.Width * s.Height * models.Channels
}

// Detector runs one synchronous inference on a preprocessed tensor and returns the
// four parallel output arrays of the detection head.
type Detector interface {
	InputSpec() InputSpec
	Detect(t *models.Tensor) (*models.RawOutput, error)
	Close() error
}

// ValidateTensor checks t against the declared input contract.
func ValidateTensor(spec InputSpec, t *models.Tensor) error {
	if t == nil {
		return newError(ErrShapeMismatch, nil, "nil tensor")
	}
	if t.DType != spec.DType {
		return newError(ErrShapeMismatch, nil, "tensor dtype %s, detector expects %s", t.DType, spec.DType)
	}
	if t.Shape != spec.Shape() {
		return newError(ErrShapeMismatch, nil, "tensor shape %v, detector expects %v", t.Shape, spec.Shape())
	}
	if t.Len() != spec.elements() {
		return newError(ErrShapeMismatch, nil, "tensor holds %d elements, detector expects %d", t.Len(), spec.elements())
	}
	return nil
}

// BackendConfig selects and parameterizes a detector backend.
type BackendConfig struct {
	Kind          string
	ModelPath     string
	InputName     string
	OutputNames   [4]string
	Width         int
	Height        int
	DType         string
	QuantScale    float64
	QuantZero     int
	MaxDetections int
	Threads       int
}

// Open resolves the configured backend once. Unknown kinds are configuration errors.
func Open(cfg BackendConfig, logger *zap.SugaredLogger) (Detector, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.QuantScale < 0 || math.IsNaN(cfg.QuantScale) || math.IsInf(cfg.QuantScale, 0) {
		return nil, newError(ErrConfiguration, nil, "quantization scale %v", cfg.QuantScale)
	}
	if cfg.MaxDetections <= 0 {
		cfg.MaxDetections = DefaultMaxDetections
	}

	var (
		det Detector
		err error
	)
	switch cfg.Kind {
	case "", "onnx":
		det, err = NewONNXDetector(cfg)
	case "tflite":
		det, err = NewTFLiteDetector(cfg)
	default:
		return nil, newError(ErrConfiguration, nil, "unknown detector backend %q", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}

	spec := det.InputSpec()
	logger.Infow("detector ready",
		"backend", cfg.Kind,
		"model", cfg.ModelPath,
		"input", spec.Shape(),
		"dtype", spec.DType,
		"scale", spec.Quant.Scale,
		"zero_point", spec.Quant.ZeroPoint)
	return det, nil
}

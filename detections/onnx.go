package detections

import (
	"fmt"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"

	"github.com/Tutortoise/frame-detection-service/models"
)

// DefaultOutputNames are the detection-head outputs of TF object detection exports.
var DefaultOutputNames = [4]string{"detection_boxes", "detection_classes", "detection_scores", "num_detections"}

// ModelSession is an ONNX Runtime session bound to preallocated input and output
// tensors. Run is not reentrant, so calls are serialized.
type ModelSession struct {
	mu sync.Mutex

	Session *ort.AdvancedSession
	spec    InputSpec
	maxDet  int

	inF32 *ort.Tensor[float32]
	inU8  *ort.Tensor[uint8]
	inI8  *ort.Tensor[int8]

	boxes   *ort.Tensor[float32]
	classes *ort.Tensor[float32]
	scores  *ort.Tensor[float32]
	count   *ort.Tensor[float32]
}

// NewONNXDetector opens cfg.ModelPath with ONNX Runtime. The runtime environment
// must already be initialized. Input geometry and dtype missing from cfg are read
// from the model.
func NewONNXDetector(cfg BackendConfig) (*ModelSession, error) {
	if cfg.ModelPath == "" {
		return nil, newError(ErrConfiguration, nil, "onnx backend needs a model path")
	}
	if cfg.InputName == "" {
		cfg.InputName = "images"
	}
	for i, name := range cfg.OutputNames {
		if name == "" {
			cfg.OutputNames[i] = DefaultOutputNames[i]
		}
	}
	if cfg.MaxDetections <= 0 {
		cfg.MaxDetections = DefaultMaxDetections
	}

	spec, err := resolveONNXInput(cfg)
	if err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, newError(ErrConfiguration, err, "creating session options")
	}
	defer options.Destroy()

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if err := options.SetIntraOpNumThreads(threads); err != nil {
		return nil, newError(ErrConfiguration, err, "setting intra-op threads")
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		return nil, newError(ErrConfiguration, err, "setting inter-op threads")
	}

	m := &ModelSession{spec: spec, maxDet: cfg.MaxDetections}
	inputShape := ort.NewShape(1, int64(spec.Height), int64(spec.Width), models.Channels)

	var input ort.ArbitraryTensor
	switch spec.DType {
	case models.Float32:
		m.inF32, err = ort.NewEmptyTensor[float32](inputShape)
		input = m.inF32
	case models.UInt8:
		m.inU8, err = ort.NewEmptyTensor[uint8](inputShape)
		input = m.inU8
	case models.Int8:
		m.inI8, err = ort.NewEmptyTensor[int8](inputShape)
		input = m.inI8
	default:
		return nil, newError(ErrConfiguration, nil, "unsupported input dtype %q", spec.DType)
	}
	if err != nil {
		return nil, newError(ErrConfiguration, err, "creating input tensor")
	}

	n := int64(cfg.MaxDetections)
	if m.boxes, err = ort.NewEmptyTensor[float32](ort.NewShape(1, n, 4)); err == nil {
		if m.classes, err = ort.NewEmptyTensor[float32](ort.NewShape(1, n)); err == nil {
			if m.scores, err = ort.NewEmptyTensor[float32](ort.NewShape(1, n)); err == nil {
				m.count, err = ort.NewEmptyTensor[float32](ort.NewShape(1))
			}
		}
	}
	if err != nil {
		m.Close()
		return nil, newError(ErrConfiguration, err, "creating output tensors")
	}

	m.Session, err = ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		cfg.OutputNames[:],
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{m.boxes, m.classes, m.scores, m.count},
		options,
	)
	if err != nil {
		m.Close()
		return nil, newError(ErrConfiguration, err, "creating session for %s", cfg.ModelPath)
	}
	return m, nil
}

// resolveONNXInput fills the parts of the input contract cfg leaves open from the
// model's declared input.
func resolveONNXInput(cfg BackendConfig) (InputSpec, error) {
	spec := InputSpec{
		Width:  cfg.Width,
		Height: cfg.Height,
		Quant:  QuantParams{Scale: cfg.QuantScale, ZeroPoint: cfg.QuantZero},
	}
	if cfg.DType != "" {
		dt, err := models.ParseDType(cfg.DType)
		if err != nil {
			return spec, newError(ErrConfiguration, err, "detector input dtype")
		}
		spec.DType = dt
	}
	if spec.Width > 0 && spec.Height > 0 && spec.DType != "" {
		return spec, nil
	}

	inputs, _, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return spec, newError(ErrConfiguration, err, "reading inputs of %s", cfg.ModelPath)
	}
	var info *ort.InputOutputInfo
	for i := range inputs {
		if inputs[i].Name == cfg.InputName {
			info = &inputs[i]
			break
		}
	}
	if info == nil {
		return spec, newError(ErrConfiguration, nil, "model %s has no input %q", cfg.ModelPath, cfg.InputName)
	}

	dims := info.Dimensions
	if len(dims) != 4 || dims[3] != models.Channels {
		return spec, newError(ErrConfiguration, nil, "input %q has shape %v, want [1 H W 3]", info.Name, dims)
	}
	if spec.Height <= 0 {
		spec.Height = int(dims[1])
	}
	if spec.Width <= 0 {
		spec.Width = int(dims[2])
	}
	if spec.Width <= 0 || spec.Height <= 0 {
		return spec, newError(ErrConfiguration, nil, "input %q has dynamic spatial dims %v; set them in config", info.Name, dims)
	}

	if spec.DType == "" {
		switch info.DataType {
		case ort.TensorElementDataTypeFloat:
			spec.DType = models.Float32
		case ort.TensorElementDataTypeUint8:
			spec.DType = models.UInt8
		case ort.TensorElementDataTypeInt8:
			spec.DType = models.Int8
		default:
			return spec, newError(ErrConfiguration, nil, "input %q has unsupported element type %v", info.Name, info.DataType)
		}
	}
	return spec, nil
}

func (m *ModelSession) InputSpec() InputSpec { return m.spec }

// Detect copies t into the bound input, runs the session and copies the four
// outputs out of the runtime's buffers.
func (m *ModelSession) Detect(t *models.Tensor) (*models.RawOutput, error) {
	if err := ValidateTensor(m.spec, t); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Session == nil {
		return nil, newError(ErrInferenceFailure, nil, "session closed")
	}
	switch t.DType {
	case models.Float32:
		copy(m.inF32.GetData(), t.F32)
	case models.UInt8:
		copy(m.inU8.GetData(), t.U8)
	case models.Int8:
		copy(m.inI8.GetData(), t.I8)
	}

	if err := m.Session.Run(); err != nil {
		return nil, newError(ErrInferenceFailure, err, "model inference")
	}
	return unpackOutputs(m.boxes.GetData(), m.classes.GetData(), m.scores.GetData(), m.count.GetData(), m.maxDet)
}

// unpackOutputs converts flat detection-head buffers into a RawOutput.
func unpackOutputs(boxes, classes, scores, count []float32, maxDet int) (*models.RawOutput, error) {
	if len(count) == 0 {
		return nil, newError(ErrInferenceFailure, nil, "detector returned no count")
	}
	n := min(maxDet, len(boxes)/4, len(classes), len(scores))
	out := &models.RawOutput{
		Boxes:   make([][4]float32, n),
		Classes: make([]int, n),
		Scores:  make([]float32, n),
		Count:   min(int(count[0]), n),
	}
	for i := 0; i < n; i++ {
		copy(out.Boxes[i][:], boxes[4*i:4*i+4])
		out.Classes[i] = int(classes[i])
	}
	copy(out.Scores, scores[:n])
	if out.Count < 0 {
		return nil, newError(ErrInferenceFailure, nil, "detector returned count %v", count[0])
	}
	return out, nil
}

// Close releases the session and its tensors.
func (m *ModelSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var err error
	if m.Session != nil {
		err = multierr.Append(err, m.Session.Destroy())
		m.Session = nil
	}
	err = multierr.Combine(err,
		destroyTensor(m.inF32), destroyTensor(m.inU8), destroyTensor(m.inI8),
		destroyTensor(m.boxes), destroyTensor(m.classes), destroyTensor(m.scores), destroyTensor(m.count))
	m.inF32, m.inU8, m.inI8 = nil, nil, nil
	m.boxes, m.classes, m.scores, m.count = nil, nil, nil, nil
	if err != nil {
		return fmt.Errorf("destroying onnx session: %w", err)
	}
	return nil
}

func destroyTensor[T ort.TensorData](t *ort.Tensor[T]) error {
	if t == nil {
		return nil
	}
	return t.Destroy()
}

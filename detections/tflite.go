//go:build tflite

package detections

import (
	"runtime"
	"sync"

	tflite "github.com/mattn/go-tflite"

	"github.com/Tutortoise/frame-detection-service/models"
)

// TFLiteDetector runs a TensorFlow Lite detection model through the C API.
type TFLiteDetector struct {
	mu sync.Mutex

	model       *tflite.Model
	options     *tflite.InterpreterOptions
	interpreter *tflite.Interpreter
	spec        InputSpec
	maxDet      int
}

// NewTFLiteDetector loads cfg.ModelPath and reads the input contract from the
// interpreter. Config values override what the model declares.
func NewTFLiteDetector(cfg BackendConfig) (*TFLiteDetector, error) {
	if cfg.ModelPath == "" {
		return nil, newError(ErrConfiguration, nil, "tflite backend needs a model path")
	}

	d := &TFLiteDetector{maxDet: cfg.MaxDetections}
	if d.maxDet <= 0 {
		d.maxDet = DefaultMaxDetections
	}

	d.model = tflite.NewModelFromFile(cfg.ModelPath)
	if d.model == nil {
		return nil, newError(ErrConfiguration, nil, "cannot load model %s", cfg.ModelPath)
	}

	d.options = tflite.NewInterpreterOptions()
	if d.options == nil {
		d.Close()
		return nil, newError(ErrConfiguration, nil, "cannot create interpreter options")
	}
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	d.options.SetNumThread(threads)

	d.interpreter = tflite.NewInterpreter(d.model, d.options)
	if d.interpreter == nil {
		d.Close()
		return nil, newError(ErrConfiguration, nil, "cannot create interpreter for %s", cfg.ModelPath)
	}
	if status := d.interpreter.AllocateTensors(); status != tflite.OK {
		d.Close()
		return nil, newError(ErrConfiguration, nil, "allocating tensors: status %v", status)
	}
	if n := d.interpreter.GetOutputTensorCount(); n < 4 {
		d.Close()
		return nil, newError(ErrConfiguration, nil, "model has %d outputs, want boxes, classes, scores and count", n)
	}

	spec, err := tfliteInputSpec(d.interpreter.GetInputTensor(0), cfg)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.spec = spec
	return d, nil
}

func tfliteInputSpec(in *tflite.Tensor, cfg BackendConfig) (InputSpec, error) {
	if in == nil || in.NumDims() != 4 || in.Dim(3) != models.Channels {
		return InputSpec{}, newError(ErrConfiguration, nil, "model input is not a [1 H W 3] tensor")
	}
	spec := InputSpec{Height: in.Dim(1), Width: in.Dim(2)}
	if cfg.Width > 0 && cfg.Width != spec.Width || cfg.Height > 0 && cfg.Height != spec.Height {
		return spec, newError(ErrConfiguration, nil, "configured input %dx%d, model declares %dx%d",
			cfg.Width, cfg.Height, spec.Width, spec.Height)
	}

	switch in.Type() {
	case tflite.Float32:
		spec.DType = models.Float32
	case tflite.UInt8:
		spec.DType = models.UInt8
	case tflite.Int8:
		spec.DType = models.Int8
	default:
		return spec, newError(ErrConfiguration, nil, "unsupported input element type %v", in.Type())
	}
	if cfg.DType != "" {
		dt, err := models.ParseDType(cfg.DType)
		if err != nil {
			return spec, newError(ErrConfiguration, err, "detector input dtype")
		}
		if dt != spec.DType {
			return spec, newError(ErrConfiguration, nil, "configured dtype %s, model declares %s", dt, spec.DType)
		}
	}

	qp := in.QuantizationParams()
	spec.Quant = QuantParams{Scale: qp.Scale, ZeroPoint: qp.ZeroPoint}
	if cfg.QuantScale > 0 {
		spec.Quant = QuantParams{Scale: cfg.QuantScale, ZeroPoint: cfg.QuantZero}
	}
	return spec, nil
}

func (d *TFLiteDetector) InputSpec() InputSpec { return d.spec }

func (d *TFLiteDetector) Detect(t *models.Tensor) (*models.RawOutput, error) {
	if err := ValidateTensor(d.spec, t); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.interpreter == nil {
		return nil, newError(ErrInferenceFailure, nil, "interpreter closed")
	}

	input := d.interpreter.GetInputTensor(0)
	var status tflite.Status
	switch t.DType {
	case models.Float32:
		status = input.CopyFromBuffer(t.F32)
	case models.UInt8:
		status = input.CopyFromBuffer(t.U8)
	case models.Int8:
		status = input.CopyFromBuffer(t.I8)
	}
	if status != tflite.OK {
		return nil, newError(ErrInferenceFailure, nil, "copying input: status %v", status)
	}
	if status := d.interpreter.Invoke(); status != tflite.OK {
		return nil, newError(ErrInferenceFailure, nil, "invoke: status %v", status)
	}

	return unpackOutputs(
		d.interpreter.GetOutputTensor(0).Float32s(),
		d.interpreter.GetOutputTensor(1).Float32s(),
		d.interpreter.GetOutputTensor(2).Float32s(),
		d.interpreter.GetOutputTensor(3).Float32s(),
		d.maxDet,
	)
}

// Close deletes the interpreter, its options and the model, in that order.
func (d *TFLiteDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.interpreter != nil {
		d.interpreter.Delete()
		d.interpreter = nil
	}
	if d.options != nil {
		d.options.Delete()
		d.options = nil
	}
	if d.model != nil {
		d.model.Delete()
		d.model = nil
	}
	return nil
}

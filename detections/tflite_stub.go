//go:build !tflite

package detections

// TFLiteDetector is unavailable without the tflite build tag.
type TFLiteDetector struct{ Detector }

// NewTFLiteDetector reports that the binary was built without TensorFlow Lite.
func NewTFLiteDetector(cfg BackendConfig) (*TFLiteDetector, error) {
	return nil, newError(ErrConfiguration, nil, "tflite backend not compiled in; rebuild with -tags tflite")
}

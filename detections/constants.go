package detections

const (
	DefaultScoreThreshold = 0.5
	DefaultMaxDetections  = 25

	// Int8FallbackScale and Int8FallbackCenter approximate the input quantization
	// of int8 detectors that publish no parameters. Inputs are mapped to [-1, 1]
	// around the center and then divided by the scale.
	Int8FallbackScale  = 0.0078125
	Int8FallbackCenter = 127.5

	// minParallelRows is the canvas height below which quantization stays on one goroutine.
	minParallelRows = 64
)

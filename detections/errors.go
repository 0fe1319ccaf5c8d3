package detections

import (
	"errors"
	"fmt"
)

// Error kinds. Every error produced by this package matches exactly one of them
// through errors.Is.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrInferenceFailure = errors.New("inference failure")
	ErrConfiguration    = errors.New("configuration error")
)

// ProcessingError carries the kind of a pipeline failure next to its cause.
type ProcessingError struct {
	Kind    error
	Message string
	Cause   error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *ProcessingError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func newError(kind error, cause error, format string, args ...any) error {
	return &ProcessingError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf names the kind of err for logs and metrics.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrShapeMismatch):
		return "shape_mismatch"
	case errors.Is(err, ErrInferenceFailure):
		return "inference_failure"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	}
	return "unknown"
}

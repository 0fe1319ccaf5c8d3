package detections

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcessingErrorMatchesKindAndCause(t *testing.T) {
	cause := errors.New("engine fault")
	err := newError(ErrInferenceFailure, cause, "run %d", 3)

	assert.ErrorIs(t, err, ErrInferenceFailure)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrShapeMismatch)
	assert.Equal(t, "inference failure: run 3: engine fault", err.Error())

	var pe *ProcessingError
	assert.ErrorAs(t, fmt.Errorf("cycle: %w", err), &pe)
	assert.Equal(t, "run 3", pe.Message)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{newError(ErrInvalidInput, nil, "x"), "invalid_input"},
		{newError(ErrShapeMismatch, nil, "x"), "shape_mismatch"},
		{fmt.Errorf("wrapped: %w", newError(ErrInferenceFailure, nil, "x")), "inference_failure"},
		{fmt.Errorf("%w: bad", ErrConfiguration), "configuration"},
		{errors.New("other"), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err))
	}
}

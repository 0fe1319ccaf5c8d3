package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameValidate(t *testing.T) {
	assert.NoError(t, (&Frame{Width: 2, Height: 1, Pix: make([]uint8, 6)}).Validate())

	var nilFrame *Frame
	assert.Error(t, nilFrame.Validate())
	assert.Error(t, (&Frame{Width: 0, Height: 1}).Validate())
	assert.Error(t, (&Frame{Width: 2, Height: 1, Pix: make([]uint8, 5)}).Validate())
}

func TestFrameClone(t *testing.T) {
	f := &Frame{Width: 1, Height: 1, Pix: []uint8{1, 2, 3}, Seq: 7}
	c := f.Clone()
	require.NotNil(t, c)
	c.Pix[0] = 9
	assert.Equal(t, uint8(1), f.Pix[0])
	assert.Equal(t, uint64(7), c.Seq)

	var nilFrame *Frame
	assert.Nil(t, nilFrame.Clone())
}

func TestParseDType(t *testing.T) {
	for _, s := range []string{"float32", "uint8", "int8"} {
		dt, err := ParseDType(s)
		require.NoError(t, err)
		assert.Equal(t, DType(s), dt)
	}
	_, err := ParseDType("int16")
	assert.Error(t, err)
}

func TestTensorLen(t *testing.T) {
	assert.Equal(t, 3, (&Tensor{DType: Float32, F32: make([]float32, 3)}).Len())
	assert.Equal(t, 0, (&Tensor{DType: UInt8, F32: make([]float32, 3)}).Len())
	assert.Equal(t, 2, (&Tensor{DType: Int8, I8: make([]int8, 2)}).Len())
}

func TestBoxSize(t *testing.T) {
	b := Box{X1: 10, Y1: 20, X2: 40, Y2: 25}
	assert.Equal(t, 30, b.Width())
	assert.Equal(t, 5, b.Height())
}

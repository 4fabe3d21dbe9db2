package deeprl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func screen(v uint8, size int) []uint8 {
	retVal := make([]uint8, size)
	for i := range retVal {
		retVal[i] = v
	}
	return retVal
}

func TestFrameStack(t *testing.T) {
	assert := assert.New(t)
	fs := NewFrameStack(2, 3, 3)

	_, err := fs.Observation()
	assert.Error(err)
	assert.Error(fs.Push(screen(0, 5)))

	// a single screen is repeated
	require.NoError(t, fs.Push(screen(255, 6)))
	obs, err := fs.Observation()
	require.NoError(t, err)
	assert.Len(obs, 18)
	for _, v := range obs {
		assert.Equal(float32(1), v)
	}

	require.NoError(t, fs.Push(screen(51, 6)))
	require.NoError(t, fs.Push(screen(102, 6)))
	require.NoError(t, fs.Push(screen(0, 6))) // evicts 255
	assert.Equal(3, fs.Len())

	obs, err = fs.Observation()
	require.NoError(t, err)
	// every pixel holds the frames oldest first
	for p := 0; p < 6; p++ {
		assert.InDeltaSlice([]float32{0.2, 0.4, 0}, obs[p*3:(p+1)*3], 1e-6)
	}

	dense, err := fs.Tensor()
	require.NoError(t, err)
	assert.Equal(tensor.Shape{1, 2, 3, 3}, dense.Shape())

	fs.Reset()
	assert.Equal(0, fs.Len())
	_, err = fs.Tensor()
	assert.Error(err)
}

func TestFrameStack_PixelLayout(t *testing.T) {
	fs := NewFrameStack(2, 2, 2)
	require.NoError(t, fs.Push([]uint8{0, 51, 102, 153}))
	require.NoError(t, fs.Push([]uint8{255, 204, 153, 102}))

	obs, err := fs.Observation()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{
		0, 1, // (0, 0)
		0.2, 0.8, // (0, 1)
		0.4, 0.6, // (1, 0)
		0.6, 0.4, // (1, 1)
	}, obs, 1e-6)
}

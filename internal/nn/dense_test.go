package nn

import (
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathom-ml/fathom/internal/optim"
)

func TestDenseLayer_Forward(t *testing.T) {
	d := newDenseLayer(2, 1)
	d.weights.Set(0, 0, 0.5)
	d.weights.Set(0, 1, 0.5)

	out, err := d.Forward([]float64{1, 2})
	require.NoError(t, err)
	assert.InDelta(t, 1.5, out[0], 1e-12)

	d.bias[0] = 0.25
	out, err = d.Forward([]float64{1, 2})
	require.NoError(t, err)
	assert.InDelta(t, 1.75, out[0], 1e-12)
}

func TestDenseLayer_ForwardErrors(t *testing.T) {
	d := newDenseLayer(2, 1)

	_, err := d.Forward([]float64{1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = d.Forward([]float64{1, math.NaN()})
	assert.ErrorIs(t, err, ErrNotFinite)
}

// TestDenseLayer_Backward walks the single-node regression example by hand:
// input [1, 2], weights [0.5, 0.5], output 1.5, target 2 under MSE.
func TestDenseLayer_Backward(t *testing.T) {
	d := newDenseLayer(2, 1)
	d.weights.Set(0, 0, 0.5)
	d.weights.Set(0, 1, 0.5)

	input := []float64{1, 2}
	out, err := d.Forward(input)
	require.NoError(t, err)

	costGrad, err := MeanSquaredError.Derivative(out, []float64{2})
	require.NoError(t, err)
	require.InDelta(t, -1, costGrad[0], 1e-12)

	inputGrad, err := d.Backward(costGrad, input)
	require.NoError(t, err)

	assert.InDelta(t, -1, d.weightsGrad.At(0, 0), 1e-12)
	assert.InDelta(t, -2, d.weightsGrad.At(0, 1), 1e-12)
	assert.InDelta(t, -1, d.biasGrad[0], 1e-12)
	assert.InDelta(t, -0.5, inputGrad[0], 1e-12)
	assert.InDelta(t, -0.5, inputGrad[1], 1e-12)
}

// TestDenseLayer_ConcurrentBackward accumulates the same example from many
// goroutines and expects exactly the single-call gradient times the worker
// count: no update may be lost.
func TestDenseLayer_ConcurrentBackward(t *testing.T) {
	const workers = 64
	d := newDenseLayer(2, 3)
	d.initialize(func() float64 { return 0.5 })

	grad := []float64{1, -2, 3}
	input := []float64{0.25, -1}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Backward(grad, input)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			assert.InDelta(t, workers*grad[i]*input[j], d.weightsGrad.At(i, j), 1e-9)
		}
		assert.InDelta(t, workers*grad[i], d.biasGrad[i], 1e-9)
	}
}

func TestDenseLayer_ApplyGradient(t *testing.T) {
	d := newDenseLayer(1, 1)
	d.weights.Set(0, 0, 1)
	d.bias[0] = 0.5
	d.weightsGrad.Set(0, 0, 2)
	d.biasGrad[0] = 1

	require.NoError(t, d.ApplyGradient(optim.SGD, optim.Config{LR: 0.1}))

	assert.InDelta(t, 0.8, d.weights.At(0, 0), 1e-12)
	assert.InDelta(t, 0.4, d.bias[0], 1e-12)
	// The step counter only advances for Adam.
	assert.Equal(t, 1, d.step)

	require.NoError(t, d.ApplyGradient(optim.Adam, optim.Config{LR: 0.1}.WithDefaults()))
	assert.Equal(t, 2, d.step)
}

func TestDenseLayer_ClearGradient(t *testing.T) {
	d := newDenseLayer(2, 1)
	d.weights.Set(0, 0, 1)
	d.weights.Set(0, 1, -1)

	_, err := d.Backward([]float64{3}, []float64{1, 1})
	require.NoError(t, err)
	d.ClearGradient()

	// A cleared apply is a no-op.
	before := d.Clone()
	require.NoError(t, d.ApplyGradient(optim.SGD, optim.Config{LR: 0.5}))
	assert.True(t, d.Equal(before))
}

func TestDenseLayer_CloneEqual(t *testing.T) {
	d := newDenseLayer(3, 2)
	d.initialize(initializerFor(Tanh, 3, 2))
	require.NoError(t, d.ApplyGradient(optim.Adam, optim.Config{LR: 0.01}.WithDefaults()))

	c := d.Clone()
	assert.True(t, d.Equal(c))
	assert.Equal(t, d.NumParameters(), c.NumParameters())

	c.(*DenseLayer).weights.Set(0, 0, 99)
	assert.False(t, d.Equal(c))
	// The original is untouched by the clone mutation.
	assert.NotEqual(t, 99.0, d.weights.At(0, 0))
}

func TestDenseLayer_NumParameters(t *testing.T) {
	assert.Equal(t, 12+4, newDenseLayer(3, 4).NumParameters())
}

func TestDenseLayer_String(t *testing.T) {
	d := newDenseLayer(2, 1)
	s := d.String()
	assert.True(t, strings.Contains(s, "Dense(2 -> 1"))
	assert.True(t, strings.Contains(s, "Weights"))
	assert.True(t, strings.Contains(s, "Biases"))
}

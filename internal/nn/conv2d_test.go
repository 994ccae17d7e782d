package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/fathom-ml/fathom/internal/optim"
)

func convTestConfig() ConvConfig {
	return ConvConfig{
		InputWidth: 3, InputHeight: 3, Channels: 1,
		KernelWidth: 3, KernelHeight: 3, Kernels: 1,
		StrideWidth: 1, StrideHeight: 1,
	}
}

func TestNewConvLayer_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ConvConfig)
	}{
		{"zero input width", func(c *ConvConfig) { c.InputWidth = 0 }},
		{"zero channels", func(c *ConvConfig) { c.Channels = 0 }},
		{"zero kernels", func(c *ConvConfig) { c.Kernels = 0 }},
		{"zero stride", func(c *ConvConfig) { c.StrideWidth = 0 }},
		{"kernel wider than input", func(c *ConvConfig) { c.KernelWidth = 4 }},
		{"kernel taller than input", func(c *ConvConfig) { c.KernelHeight = 4 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := convTestConfig()
			tt.mutate(&cfg)
			_, err := newConvLayer(cfg)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

// TestConvLayer_FullKernelIsDotProduct covers the degenerate geometry where
// the kernel spans the whole input: the single output is the dot product of
// kernel and input plus the bias.
func TestConvLayer_FullKernelIsDotProduct(t *testing.T) {
	c, err := newConvLayer(convTestConfig())
	require.NoError(t, err)
	require.Equal(t, 1, c.Nodes())

	for i := range c.kernels[0] {
		c.kernels[0][i] = 1
	}
	c.bias[0] = 0.5

	input := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	out, err := c.Forward(input)
	require.NoError(t, err)
	assert.InDelta(t, floats.Sum(input)+0.5, out[0], 1e-12)
}

func TestConvLayer_ForwardKnownValues(t *testing.T) {
	c, err := newConvLayer(ConvConfig{
		InputWidth: 2, InputHeight: 2, Channels: 1,
		KernelWidth: 2, KernelHeight: 2, Kernels: 1,
		StrideWidth: 1, StrideHeight: 1,
	})
	require.NoError(t, err)
	require.Equal(t, 1, c.Nodes())

	// Kernel flattened column-major as x·kernelHeight + y, input row-major
	// as y·inputWidth + x.
	copy(c.kernels[0], []float64{1, 2, 3, 4})
	c.bias[0] = 0.5

	out, err := c.Forward([]float64{1, 2, 3, 4})
	require.NoError(t, err)
	// 1·in(0,0) + 2·in(0,1) + 3·in(1,0) + 4·in(1,1)
	assert.InDelta(t, 1*1+2*3+3*2+4*4+0.5, out[0], 1e-12)
}

func TestConvLayer_OutputGeometry(t *testing.T) {
	tests := []struct {
		name       string
		cfg        ConvConfig
		outW, outH int
	}{
		{
			"stride one no padding",
			ConvConfig{InputWidth: 5, InputHeight: 4, Channels: 1,
				KernelWidth: 3, KernelHeight: 2, Kernels: 2,
				StrideWidth: 1, StrideHeight: 1},
			3, 3,
		},
		{
			"stride two no padding",
			ConvConfig{InputWidth: 5, InputHeight: 5, Channels: 1,
				KernelWidth: 2, KernelHeight: 2, Kernels: 1,
				StrideWidth: 2, StrideHeight: 2},
			2, 2,
		},
		{
			"padding preserves size",
			ConvConfig{InputWidth: 4, InputHeight: 4, Channels: 1,
				KernelWidth: 3, KernelHeight: 3, Kernels: 3,
				StrideWidth: 1, StrideHeight: 1, Padding: true},
			4, 4,
		},
		{
			"padding preserves size across strides",
			ConvConfig{InputWidth: 4, InputHeight: 4, Channels: 2,
				KernelWidth: 3, KernelHeight: 3, Kernels: 1,
				StrideWidth: 2, StrideHeight: 3, Padding: true},
			4, 4,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := newConvLayer(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.outW, c.outW)
			assert.Equal(t, tt.outH, c.outH)
			assert.Equal(t, tt.outW*tt.outH*tt.cfg.Kernels, c.Nodes())
		})
	}
}

// TestConvLayer_ReflectionPadding feeds a constant plane through a padded
// layer: reflection reproduces the constant, so with an all-ones kernel
// every output is the kernel area times the constant.
func TestConvLayer_ReflectionPadding(t *testing.T) {
	c, err := newConvLayer(ConvConfig{
		InputWidth: 2, InputHeight: 2, Channels: 1,
		KernelWidth: 2, KernelHeight: 2, Kernels: 1,
		StrideWidth: 1, StrideHeight: 1, Padding: true,
	})
	require.NoError(t, err)
	require.Equal(t, 4, c.Nodes())

	for i := range c.kernels[0] {
		c.kernels[0][i] = 1
	}
	out, err := c.Forward([]float64{2, 2, 2, 2})
	require.NoError(t, err)
	for _, v := range out {
		assert.InDelta(t, 8, v, 1e-12)
	}
}

// TestConvLayer_ChannelsSum checks that a multi-channel input contributes
// every channel to the same output plane.
func TestConvLayer_ChannelsSum(t *testing.T) {
	c, err := newConvLayer(ConvConfig{
		InputWidth: 2, InputHeight: 2, Channels: 2,
		KernelWidth: 2, KernelHeight: 2, Kernels: 1,
		StrideWidth: 1, StrideHeight: 1,
	})
	require.NoError(t, err)

	for i := range c.kernels[0] {
		c.kernels[0][i] = 1
	}
	// Channel 0 sums to 10, channel 1 sums to 2.
	out, err := c.Forward([]float64{1, 2, 3, 4, 0.5, 0.5, 0.5, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, 12, out[0], 1e-12)
}

func TestConvLayer_Backward(t *testing.T) {
	c, err := newConvLayer(convTestConfig())
	require.NoError(t, err)
	for i := range c.kernels[0] {
		c.kernels[0][i] = 1
	}

	input := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	inputGrad, err := c.Backward([]float64{2}, input)
	require.NoError(t, err)

	// With an all-ones kernel the input gradient is the output gradient at
	// every covered position.
	for _, v := range inputGrad {
		assert.InDelta(t, 2, v, 1e-12)
	}
	// Kernel gradient is outputGrad·input, transposed between the kernel's
	// column-major layout and the input's row-major one.
	assert.InDelta(t, 2*floats.Sum(input), floats.Sum(c.kernelsGrad[0]), 1e-12)
	assert.InDelta(t, 2*input[0], c.kernelsGrad[0][0], 1e-12)
	assert.InDelta(t, 2*input[3], c.kernelsGrad[0][1], 1e-12)
	assert.InDelta(t, 2, c.biasGrad[0], 1e-12)
}

func TestConvLayer_BackwardAccumulates(t *testing.T) {
	c, err := newConvLayer(convTestConfig())
	require.NoError(t, err)
	input := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1}

	_, err = c.Backward([]float64{1}, input)
	require.NoError(t, err)
	_, err = c.Backward([]float64{1}, input)
	require.NoError(t, err)

	assert.InDelta(t, 2, c.kernelsGrad[0][0], 1e-12)
	assert.InDelta(t, 2, c.biasGrad[0], 1e-12)

	c.ClearGradient()
	assert.Equal(t, 0.0, c.kernelsGrad[0][0])
	assert.Equal(t, 0.0, c.biasGrad[0])
}

func TestConvLayer_ApplyGradient(t *testing.T) {
	c, err := newConvLayer(convTestConfig())
	require.NoError(t, err)
	c.kernels[0][4] = 1
	c.kernelsGrad[0][4] = 2
	c.biasGrad[0] = 1

	require.NoError(t, c.ApplyGradient(optim.SGD, optim.Config{LR: 0.1}))

	assert.InDelta(t, 0.8, c.kernels[0][4], 1e-12)
	assert.InDelta(t, -0.1, c.bias[0], 1e-12)
	assert.Equal(t, 1, c.step)

	require.NoError(t, c.ApplyGradient(optim.Adam, optim.Config{LR: 0.1}.WithDefaults()))
	assert.Equal(t, 2, c.step)
	assert.NotNil(t, c.kernelsState[0].Velocity)
	assert.NotNil(t, c.kernelsState[0].VelocitySquared)
}

func TestConvLayer_CloneEqual(t *testing.T) {
	c, err := newConvLayer(ConvConfig{
		InputWidth: 4, InputHeight: 4, Channels: 2,
		KernelWidth: 3, KernelHeight: 3, Kernels: 2,
		StrideWidth: 1, StrideHeight: 1, Padding: true,
	})
	require.NoError(t, err)
	c.initialize(initializerFor(ReLU, 32, 32))
	require.NoError(t, c.ApplyGradient(optim.Adam, optim.Config{LR: 0.01}.WithDefaults()))

	o := c.Clone()
	assert.True(t, c.Equal(o))

	o.(*ConvLayer).kernels[1][0] = 42
	assert.False(t, c.Equal(o))
	assert.NotEqual(t, 42.0, c.kernels[1][0])
}

func TestConvLayer_NumParameters(t *testing.T) {
	c, err := newConvLayer(ConvConfig{
		InputWidth: 5, InputHeight: 5, Channels: 1,
		KernelWidth: 3, KernelHeight: 3, Kernels: 2,
		StrideWidth: 1, StrideHeight: 1,
	})
	require.NoError(t, err)
	// 2 kernels of 9 weights plus one bias per output value.
	assert.Equal(t, 18+2*3*3, c.NumParameters())
}

func TestReflect(t *testing.T) {
	assert.Equal(t, 1, reflect(-1, 4))
	assert.Equal(t, 0, reflect(0, 4))
	assert.Equal(t, 3, reflect(3, 4))
	assert.Equal(t, 2, reflect(4, 4))
	assert.Equal(t, 1, reflect(5, 4))
	// Folds repeatedly for pads wider than the extent.
	assert.Equal(t, 1, reflect(-7, 4))
	assert.Equal(t, 0, reflect(-1, 1))
	assert.Equal(t, 0, reflect(5, 1))
}

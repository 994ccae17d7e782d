package nn

import (
	"fmt"
	"strings"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/fathom-ml/fathom/internal/optim"
)

// ConvConfig describes a convolutional stage.
//
// The layer consumes a flattened [InputWidth × InputHeight × Channels]
// vector and produces one output plane per kernel. With Padding the output
// planes keep the input's spatial dimensions for any stride; without it
// each plane is ceilDiv(input − kernel + 1, stride) per axis.
type ConvConfig struct {
	InputWidth  int
	InputHeight int
	Channels    int

	KernelWidth  int
	KernelHeight int
	Kernels      int

	StrideWidth  int
	StrideHeight int

	// Padding preserves the input's spatial size using edge reflection:
	// out-of-bounds positions mirror the nearest in-bounds index.
	Padding bool
}

// ConvLayer is a bank of kernels sliding over a 2-D input. Each kernel is a
// small weight matrix producing one output plane; multi-channel inputs are
// scanned per channel and summed into that plane.
//
// Forward, Backward, and ApplyGradient parallelize across kernels. Every
// kernel owns disjoint slices of the kernel and output buffers, so that
// axis of parallelism needs no locking; only the merge of per-call gradient
// partials into the shared accumulators takes the layer mutex.
type ConvLayer struct {
	layerBase
	cfg        ConvConfig
	outW, outH int

	// kernels[k] is kernel k flattened as x*KernelHeight + y, matching
	// kernelsGrad and kernelsState.
	kernels      [][]float64
	kernelsGrad  [][]float64
	kernelsState []optim.State

	// indexMap translates a padded (x, y, channel) position, flattened as
	// (x·paddedH + y)·Channels + channel, to the corresponding offset in
	// the unpadded input vector. Built once at construction and shared by
	// the forward and backward scans.
	indexMap         []int
	paddedW, paddedH int
}

func newConvLayer(cfg ConvConfig) (*ConvLayer, error) {
	switch {
	case cfg.InputWidth <= 0 || cfg.InputHeight <= 0 || cfg.Channels <= 0:
		return nil, fmt.Errorf("%w: conv input dimensions %dx%dx%d must be positive",
			ErrConfiguration, cfg.InputWidth, cfg.InputHeight, cfg.Channels)
	case cfg.KernelWidth <= 0 || cfg.KernelHeight <= 0 || cfg.Kernels <= 0:
		return nil, fmt.Errorf("%w: conv kernel bank %d of %dx%d must be positive",
			ErrConfiguration, cfg.Kernels, cfg.KernelWidth, cfg.KernelHeight)
	case cfg.StrideWidth <= 0 || cfg.StrideHeight <= 0:
		return nil, fmt.Errorf("%w: conv stride %dx%d must be positive",
			ErrConfiguration, cfg.StrideWidth, cfg.StrideHeight)
	case cfg.KernelWidth > cfg.InputWidth || cfg.KernelHeight > cfg.InputHeight:
		return nil, fmt.Errorf("%w: conv kernel %dx%d exceeds input %dx%d",
			ErrConfiguration, cfg.KernelWidth, cfg.KernelHeight, cfg.InputWidth, cfg.InputHeight)
	}

	var outW, outH, padW, padH, padLeft, padUp int
	if cfg.Padding {
		// Pad so the scan emits exactly one output per input position for
		// any stride: the padded extent is in·stride − stride + kernel.
		outW, outH = cfg.InputWidth, cfg.InputHeight
		padW = cfg.InputWidth*cfg.StrideWidth - cfg.StrideWidth - cfg.InputWidth + cfg.KernelWidth
		padH = cfg.InputHeight*cfg.StrideHeight - cfg.StrideHeight - cfg.InputHeight + cfg.KernelHeight
		padLeft = ceilDiv(padW, 2)
		padUp = ceilDiv(padH, 2)
	} else {
		outW = ceilDiv(cfg.InputWidth-cfg.KernelWidth+1, cfg.StrideWidth)
		outH = ceilDiv(cfg.InputHeight-cfg.KernelHeight+1, cfg.StrideHeight)
		// The last window always fits: (outW−1)·stride + kernel ≤ input
		// follows from the ceiling division, so the unpadded scan needs
		// no extra columns.
	}

	c := &ConvLayer{
		layerBase:    newLayerBase(outW * outH * cfg.Kernels),
		cfg:          cfg,
		outW:         outW,
		outH:         outH,
		kernels:      make([][]float64, cfg.Kernels),
		kernelsGrad:  make([][]float64, cfg.Kernels),
		kernelsState: make([]optim.State, cfg.Kernels),
		paddedW:      cfg.InputWidth + padW,
		paddedH:      cfg.InputHeight + padH,
	}
	for k := range c.kernels {
		c.kernels[k] = make([]float64, cfg.KernelWidth*cfg.KernelHeight)
		c.kernelsGrad[k] = make([]float64, cfg.KernelWidth*cfg.KernelHeight)
	}

	c.indexMap = make([]int, c.paddedW*c.paddedH*cfg.Channels)
	for x := 0; x < c.paddedW; x++ {
		i := reflect(x-padLeft, cfg.InputWidth)
		for y := 0; y < c.paddedH; y++ {
			j := reflect(y-padUp, cfg.InputHeight)
			for ch := 0; ch < cfg.Channels; ch++ {
				c.indexMap[(x*c.paddedH+y)*cfg.Channels+ch] =
					cfg.InputWidth*cfg.InputHeight*ch + j*cfg.InputWidth + i
			}
		}
	}
	return c, nil
}

// reflect mirrors an out-of-bounds coordinate back into [0, n), folding
// repeatedly so even pads wider than the input stay in range.
func reflect(u, n int) int {
	if n == 1 {
		return 0
	}
	for u < 0 || u >= n {
		if u < 0 {
			u = -u
		}
		if u >= n {
			u = 2*(n-1) - u
		}
	}
	return u
}

func (c *ConvLayer) inputSize() int {
	return c.cfg.InputWidth * c.cfg.InputHeight * c.cfg.Channels
}

func (c *ConvLayer) initialize(init func() float64) {
	for _, kern := range c.kernels {
		for i := range kern {
			kern[i] = init()
		}
	}
	for i := range c.bias {
		c.bias[i] = init()
	}
}

// at returns the unpadded input offset for padded position (x, y, ch).
func (c *ConvLayer) at(x, y, ch int) int {
	return c.indexMap[(x*c.paddedH+y)*c.cfg.Channels+ch]
}

// Forward slides every kernel over the input and returns the stacked
// output planes, one goroutine per kernel.
func (c *ConvLayer) Forward(input []float64) ([]float64, error) {
	if len(input) != c.inputSize() {
		return nil, fmt.Errorf("%w: conv layer expects %d inputs, got %d",
			ErrDimensionMismatch, c.inputSize(), len(input))
	}
	if err := checkFinite("conv forward input", input); err != nil {
		return nil, err
	}

	output := make([]float64, c.nodes)
	var wg sync.WaitGroup
	for k := range c.kernels {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			kern := c.kernels[k]
			base := k * c.outW * c.outH
			copy(output[base:base+c.outW*c.outH], c.bias[base:base+c.outW*c.outH])
			for ch := 0; ch < c.cfg.Channels; ch++ {
				for x := 0; x < c.outW; x++ {
					for y := 0; y < c.outH; y++ {
						var sum float64
						for sx := 0; sx < c.cfg.KernelWidth; sx++ {
							for sy := 0; sy < c.cfg.KernelHeight; sy++ {
								sum += kern[sx*c.cfg.KernelHeight+sy] *
									input[c.at(x*c.cfg.StrideWidth+sx, y*c.cfg.StrideHeight+sy, ch)]
							}
						}
						output[base+y*c.outW+x] += sum
					}
				}
			}
		}(k)
	}
	wg.Wait()

	if err := checkFinite("conv forward output", output); err != nil {
		return nil, err
	}
	return output, nil
}

// Backward accumulates the kernel and bias gradients from outputGrad and
// the cached forward input, and returns the gradient with respect to that
// input. Per-kernel goroutines write into private partial buffers; the
// partials are reduced after the join and merged into the shared
// accumulators under the layer mutex.
func (c *ConvLayer) Backward(outputGrad, input []float64) ([]float64, error) {
	if len(outputGrad) != c.nodes || len(input) != c.inputSize() {
		return nil, fmt.Errorf("%w: conv backward got gradient length %d (want %d) and input length %d (want %d)",
			ErrDimensionMismatch, len(outputGrad), c.nodes, len(input), c.inputSize())
	}
	if err := checkFinite("conv backward input", outputGrad, input); err != nil {
		return nil, err
	}

	kernelPartials := make([][]float64, c.cfg.Kernels)
	inputPartials := make([][]float64, c.cfg.Kernels)
	var wg sync.WaitGroup
	for k := range c.kernels {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			kern := c.kernels[k]
			kg := make([]float64, c.cfg.KernelWidth*c.cfg.KernelHeight)
			ig := make([]float64, len(input))
			base := k * c.outW * c.outH
			for ch := 0; ch < c.cfg.Channels; ch++ {
				for x := 0; x < c.outW; x++ {
					for y := 0; y < c.outH; y++ {
						og := outputGrad[base+y*c.outW+x]
						for sx := 0; sx < c.cfg.KernelWidth; sx++ {
							for sy := 0; sy < c.cfg.KernelHeight; sy++ {
								off := c.at(x*c.cfg.StrideWidth+sx, y*c.cfg.StrideHeight+sy, ch)
								kg[sx*c.cfg.KernelHeight+sy] += og * input[off]
								ig[off] += og * kern[sx*c.cfg.KernelHeight+sy]
							}
						}
					}
				}
			}
			kernelPartials[k] = kg
			inputPartials[k] = ig
		}(k)
	}
	wg.Wait()

	inputGrad := make([]float64, len(input))
	for _, ig := range inputPartials {
		floats.Add(inputGrad, ig)
	}

	c.mu.Lock()
	for k, kg := range kernelPartials {
		floats.Add(c.kernelsGrad[k], kg)
	}
	floats.Add(c.biasGrad, outputGrad)
	c.mu.Unlock()

	if err := checkFinite("conv backward output", inputGrad); err != nil {
		return nil, err
	}
	return inputGrad, nil
}

// ApplyGradient updates every kernel in parallel, then the bias, from the
// accumulated gradients. Each kernel owns its gradient and optimizer state
// slices, so the per-kernel updates are independent.
func (c *ConvLayer) ApplyGradient(alg optim.Algorithm, cfg optim.Config) error {
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for k := range c.kernels {
		wg.Add(1)
		go func(k int) {
			defer wg.Done()
			err := checkFinite("conv kernel gradient", c.kernelsGrad[k])
			if err == nil {
				err = optim.Step(alg, cfg, c.step, c.kernels[k], c.kernelsGrad[k], &c.kernelsState[k])
			}
			if err == nil {
				err = checkFinite("conv kernel update", c.kernels[k])
			}
			if err != nil {
				errOnce.Do(func() { firstErr = err })
			}
		}(k)
	}
	wg.Wait()
	if firstErr != nil {
		return firstErr
	}
	if err := c.applyBias(alg, cfg); err != nil {
		return err
	}
	c.finishApply(alg)
	return nil
}

// ClearGradient zeroes the kernel and bias gradient accumulators.
func (c *ConvLayer) ClearGradient() {
	for _, kg := range c.kernelsGrad {
		for i := range kg {
			kg[i] = 0
		}
	}
	c.clearBiasGradient()
}

// NumParameters returns the number of learnable parameters.
func (c *ConvLayer) NumParameters() int {
	return c.cfg.Kernels*c.cfg.KernelWidth*c.cfg.KernelHeight + c.nodes
}

// Clone returns a deep copy, including optimizer state.
func (c *ConvLayer) Clone() Layer {
	n, err := newConvLayer(c.cfg)
	if err != nil {
		// The source layer was already validated.
		panic(err)
	}
	c.cloneBase(&n.layerBase)
	for k := range c.kernels {
		copy(n.kernels[k], c.kernels[k])
		copy(n.kernelsGrad[k], c.kernelsGrad[k])
		n.kernelsState[k] = c.kernelsState[k].Clone()
	}
	return n
}

// Equal reports exact value equality with another convolutional layer.
func (c *ConvLayer) Equal(other Layer) bool {
	o, ok := other.(*ConvLayer)
	if !ok || c.cfg != o.cfg || !c.equalBase(&o.layerBase) {
		return false
	}
	for k := range c.kernels {
		if !equalSlices(c.kernels[k], o.kernels[k]) ||
			!equalSlices(c.kernelsGrad[k], o.kernelsGrad[k]) ||
			!equalSlices(c.kernelsState[k].Velocity, o.kernelsState[k].Velocity) ||
			!equalSlices(c.kernelsState[k].VelocitySquared, o.kernelsState[k].VelocitySquared) {
			return false
		}
	}
	return true
}

// String returns a summary with kernel weights truncated to two decimals.
func (c *ConvLayer) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Conv(%dx%dx%d -> %dx%dx%d, kernel %dx%d, stride %dx%d, padding %v, %d parameters)\n",
		c.cfg.InputWidth, c.cfg.InputHeight, c.cfg.Channels,
		c.outW, c.outH, c.cfg.Kernels,
		c.cfg.KernelWidth, c.cfg.KernelHeight,
		c.cfg.StrideWidth, c.cfg.StrideHeight,
		c.cfg.Padding, c.NumParameters())
	for k, kern := range c.kernels {
		fmt.Fprintf(&sb, "Kernel %d:\n", k)
		for x := 0; x < c.cfg.KernelWidth; x++ {
			sb.WriteString(formatVec(kern[x*c.cfg.KernelHeight : (x+1)*c.cfg.KernelHeight]))
			sb.WriteString("\n")
		}
	}
	fmt.Fprintf(&sb, "Biases:\n%v\n", formatVec(c.bias))
	return sb.String()
}

package nn

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"

	"github.com/fathom-ml/fathom/internal/optim"
)

// Config holds the mandatory network-wide choices. Every field except
// Temperature must be set; construction fails with ErrConfiguration
// otherwise.
type Config struct {
	// InputSize is the length of every input vector.
	InputSize int

	// HiddenActivation is applied between every pair of layers and also
	// selects the parameter initializer.
	HiddenActivation Activation

	// OutputActivation is applied after the last layer.
	OutputActivation Activation

	// Cost is the loss driving backpropagation.
	Cost Cost

	// Temperature divides the pre-activation logits before a Softmax
	// output activation, controlling output-distribution sharpness. Zero
	// means the default of 1. It is the single scaling point for
	// exploration control and is ignored for other output activations.
	Temperature float64
}

// LayerSpec describes one stage of the stack for New. Use Dense or Conv to
// construct one.
type LayerSpec struct {
	build func(in int) (Layer, error)
}

// Dense specifies a fully connected stage with the given output width. Its
// input width is inferred from the preceding stage.
func Dense(nodes int) LayerSpec {
	return LayerSpec{build: func(in int) (Layer, error) {
		if nodes <= 0 {
			return nil, fmt.Errorf("%w: dense layer must have at least one node, got %d", ErrConfiguration, nodes)
		}
		if in <= 0 {
			return nil, fmt.Errorf("%w: dense layer input width %d", ErrConfiguration, in)
		}
		return newDenseLayer(in, nodes), nil
	}}
}

// Conv specifies a convolutional stage. Its flattened input size
// (width × height × channels) must match the preceding stage's output.
func Conv(cfg ConvConfig) LayerSpec {
	return LayerSpec{build: func(in int) (Layer, error) {
		layer, err := newConvLayer(cfg)
		if err != nil {
			return nil, err
		}
		if layer.inputSize() != in {
			return nil, fmt.Errorf("%w: conv layer expects %d inputs (%dx%dx%d) but previous stage produces %d",
				ErrConfiguration, layer.inputSize(),
				cfg.InputWidth, cfg.InputHeight, cfg.Channels, in)
		}
		return layer, nil
	}}
}

// Network is an ordered, fixed-shape stack of layers with its activation,
// cost, and temperature configuration. The shape is immutable after
// construction; parameter values change only through Learn.
type Network struct {
	inputSize  int
	outputSize int
	layers     []Layer

	hiddenAF Activation
	outputAF Activation
	cost     Cost

	// temperature stores math.Float64bits so SetTemperature during
	// inference does not race Forward.
	temperature atomic.Uint64

	// learnMu makes Learn mutually exclusive with other Learn calls on
	// this instance: exactly one in-flight batch per network.
	learnMu sync.Mutex
}

// New builds a network from the configuration and one LayerSpec per stage,
// validates every shape, and initializes all parameters with the
// initializer selected by the hidden activation.
func New(cfg Config, specs ...LayerSpec) (*Network, error) {
	switch {
	case cfg.InputSize <= 0:
		return nil, fmt.Errorf("%w: input size is mandatory", ErrConfiguration)
	case !cfg.HiddenActivation.Valid():
		return nil, fmt.Errorf("%w: hidden activation is mandatory", ErrConfiguration)
	case !cfg.OutputActivation.Valid():
		return nil, fmt.Errorf("%w: output activation is mandatory", ErrConfiguration)
	case !cfg.Cost.Valid():
		return nil, fmt.Errorf("%w: cost function is mandatory", ErrConfiguration)
	case len(specs) == 0:
		return nil, fmt.Errorf("%w: at least one layer is mandatory", ErrConfiguration)
	case cfg.Temperature < 0:
		return nil, fmt.Errorf("%w: temperature %v must be positive", ErrConfiguration, cfg.Temperature)
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 1
	}

	layers := make([]Layer, len(specs))
	in := cfg.InputSize
	for i, spec := range specs {
		layer, err := spec.build(in)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		layers[i] = layer
		in = layer.Nodes()
	}

	n := &Network{
		inputSize:  cfg.InputSize,
		outputSize: in,
		layers:     layers,
		hiddenAF:   cfg.HiddenActivation,
		outputAF:   cfg.OutputActivation,
		cost:       cfg.Cost,
	}
	n.temperature.Store(math.Float64bits(cfg.Temperature))

	init := initializerFor(cfg.HiddenActivation, cfg.InputSize, n.outputSize)
	for _, layer := range layers {
		layer.initialize(init)
	}
	return n, nil
}

// InputSize returns the expected input vector length.
func (n *Network) InputSize() int { return n.inputSize }

// OutputSize returns the produced output vector length.
func (n *Network) OutputSize() int { return n.outputSize }

// Temperature returns the current softmax temperature.
func (n *Network) Temperature() float64 {
	return math.Float64frombits(n.temperature.Load())
}

// SetTemperature changes the softmax temperature at runtime, for
// exploration control. It only affects networks with a Softmax output
// activation. The value must be positive.
func (n *Network) SetTemperature(v float64) {
	if !(v > 0) {
		panic(fmt.Sprintf("nn: temperature must be positive, got %v", v))
	}
	n.temperature.Store(math.Float64bits(v))
}

// Forward transforms input through the layer stack: each layer's weighted
// output, the hidden activation between layers, and the output activation
// (with temperature scaling for Softmax) after the last layer.
func (n *Network) Forward(input []float64) ([]float64, error) {
	_, _, output, err := n.forwardCached(input)
	return output, err
}

// forwardCached runs a forward pass keeping every layer's input and
// pre-activation, which Backpropagate replays in reverse. The final
// pre-activation is returned already divided by the temperature when the
// output activation is Softmax — the sole scaling point.
func (n *Network) forwardCached(input []float64) (inputs, preActs [][]float64, output []float64, err error) {
	if len(input) != n.inputSize {
		return nil, nil, nil, fmt.Errorf("%w: network expects %d inputs, got %d",
			ErrDimensionMismatch, n.inputSize, len(input))
	}

	inputs = make([][]float64, len(n.layers))
	preActs = make([][]float64, len(n.layers))
	inputs[0] = input
	last := len(n.layers) - 1
	for i, layer := range n.layers[:last] {
		if preActs[i], err = layer.Forward(inputs[i]); err != nil {
			return nil, nil, nil, err
		}
		if inputs[i+1], err = n.hiddenAF.Calculate(preActs[i]); err != nil {
			return nil, nil, nil, err
		}
	}
	if preActs[last], err = n.layers[last].Forward(inputs[last]); err != nil {
		return nil, nil, nil, err
	}
	if n.outputAF == Softmax {
		floats.Scale(1/n.Temperature(), preActs[last])
	}
	if output, err = n.outputAF.Calculate(preActs[last]); err != nil {
		return nil, nil, nil, err
	}
	return inputs, preActs, output, nil
}

// Loss returns the summed cost of the network's output against target.
func (n *Network) Loss(input, target []float64) (float64, error) {
	if len(target) != n.outputSize {
		return 0, fmt.Errorf("%w: network produces %d outputs, target has %d",
			ErrDimensionMismatch, n.outputSize, len(target))
	}
	output, err := n.Forward(input)
	if err != nil {
		return 0, err
	}
	costs, err := n.cost.Calculate(output, target)
	if err != nil {
		return 0, err
	}
	return floats.Sum(costs), nil
}

// Backpropagate runs one forward pass caching intermediate vectors, then
// walks the stack in reverse accumulating every layer's gradients for the
// given example. It is safe to call concurrently from batch workers; Learn
// is the batched entry point.
func (n *Network) Backpropagate(input, target []float64) error {
	if len(target) != n.outputSize {
		return fmt.Errorf("%w: network produces %d outputs, target has %d",
			ErrDimensionMismatch, n.outputSize, len(target))
	}
	inputs, preActs, output, err := n.forwardCached(input)
	if err != nil {
		return err
	}

	last := len(n.layers) - 1
	costGrad, err := n.cost.Derivative(output, target)
	if err != nil {
		return err
	}
	grad, err := n.outputAF.Derivative(preActs[last], costGrad)
	if err != nil {
		return err
	}
	if grad, err = n.layers[last].Backward(grad, inputs[last]); err != nil {
		return err
	}
	for i := last - 1; i >= 0; i-- {
		if grad, err = n.hiddenAF.Derivative(preActs[i], grad); err != nil {
			return err
		}
		if grad, err = n.layers[i].Backward(grad, inputs[i]); err != nil {
			return err
		}
	}
	return nil
}

// Learn runs one mini-batch update: it clears all gradients, accumulates
// every example's backpropagated gradient concurrently (one worker per
// example, joined before anything is applied), and applies the result
// scaled by cfg.LR/batchSize to every layer under the selected algorithm.
//
// If any worker fails the batch applies nothing: parameters are exactly as
// before the call. Learn calls on the same network are mutually exclusive;
// concurrent callers block until the in-flight batch finishes.
func (n *Network) Learn(alg optim.Algorithm, cfg optim.Config, inputs, targets [][]float64) error {
	if !alg.Valid() {
		return fmt.Errorf("%w: %v", optim.ErrUnsupportedAlgorithm, alg)
	}
	if len(inputs) != len(targets) {
		return fmt.Errorf("%w: batch has %d inputs and %d targets",
			ErrDimensionMismatch, len(inputs), len(targets))
	}
	if len(inputs) == 0 {
		return fmt.Errorf("%w: empty batch", ErrDimensionMismatch)
	}
	for i := range inputs {
		if len(inputs[i]) != n.inputSize || len(targets[i]) != n.outputSize {
			return fmt.Errorf("%w: example %d has input length %d (want %d) and target length %d (want %d)",
				ErrDimensionMismatch, i, len(inputs[i]), n.inputSize, len(targets[i]), n.outputSize)
		}
	}

	n.learnMu.Lock()
	defer n.learnMu.Unlock()

	for _, layer := range n.layers {
		layer.ClearGradient()
	}

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	for i := range inputs {
		wg.Add(1)
		go func(input, target []float64) {
			defer wg.Done()
			if err := n.Backpropagate(input, target); err != nil {
				errOnce.Do(func() { firstErr = err })
			}
		}(inputs[i], targets[i])
	}
	wg.Wait()
	if firstErr != nil {
		return firstErr
	}

	adjusted := cfg
	adjusted.LR = cfg.LR / float64(len(inputs))
	for _, layer := range n.layers {
		if err := layer.ApplyGradient(alg, adjusted); err != nil {
			return err
		}
	}
	return nil
}

// NumParameters returns the total learnable parameter count.
func (n *Network) NumParameters() int {
	var total int
	for _, layer := range n.layers {
		total += layer.NumParameters()
	}
	return total
}

// Clone returns a deep copy sharing no state with the original.
func (n *Network) Clone() *Network {
	c := &Network{
		inputSize:  n.inputSize,
		outputSize: n.outputSize,
		layers:     make([]Layer, len(n.layers)),
		hiddenAF:   n.hiddenAF,
		outputAF:   n.outputAF,
		cost:       n.cost,
	}
	c.temperature.Store(n.temperature.Load())
	for i, layer := range n.layers {
		c.layers[i] = layer.Clone()
	}
	return c
}

// Equal reports exact value equality of configuration and every layer.
func (n *Network) Equal(o *Network) bool {
	if n.inputSize != o.inputSize || n.outputSize != o.outputSize ||
		n.hiddenAF != o.hiddenAF || n.outputAF != o.outputAF ||
		n.cost != o.cost || n.Temperature() != o.Temperature() ||
		len(n.layers) != len(o.layers) {
		return false
	}
	for i, layer := range n.layers {
		if !layer.Equal(o.layers[i]) {
			return false
		}
	}
	return true
}

// String returns a layer-by-layer parameter summary.
func (n *Network) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Network with %d parameters\n", n.NumParameters())
	for i, layer := range n.layers {
		fmt.Fprintf(&sb, "Layer %d\n%s", i, layer)
	}
	return sb.String()
}

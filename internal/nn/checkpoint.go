package nn

import (
	"encoding/gob"
	"fmt"
	"math"
	"os"

	"github.com/fathom-ml/fathom/internal/optim"
)

// A checkpoint is a complete snapshot of a network: configuration, every
// parameter, the gradient accumulators, and the optimizer state with its
// step counters, so training resumes exactly where it stopped.

// checkpointLayer is the serialized form of one layer. Kind selects which
// field group is populated.
type checkpointLayer struct {
	Kind string // "dense" or "conv"

	// shared
	Bias                []float64
	BiasGrad            []float64
	BiasVelocity        []float64
	BiasVelocitySquared []float64
	Step                int

	// dense
	In, Nodes              int
	Weights                []float64
	WeightsGrad            []float64
	WeightsVelocity        []float64
	WeightsVelocitySquared []float64

	// conv
	Conv                   ConvConfig
	Kernels                [][]float64
	KernelsGrad            [][]float64
	KernelsVelocity        [][]float64
	KernelsVelocitySquared [][]float64
}

// checkpointFile is the serialized form of a whole network.
type checkpointFile struct {
	InputSize   int
	Hidden      Activation
	Output      Activation
	Cost        Cost
	Temperature float64
	Layers      []checkpointLayer
}

// SaveCheckpoint writes a snapshot of the network to path.
func SaveCheckpoint(n *Network, path string) error {
	file := checkpointFile{
		InputSize:   n.inputSize,
		Hidden:      n.hiddenAF,
		Output:      n.outputAF,
		Cost:        n.cost,
		Temperature: n.Temperature(),
		Layers:      make([]checkpointLayer, len(n.layers)),
	}
	for i, layer := range n.layers {
		switch l := layer.(type) {
		case *DenseLayer:
			file.Layers[i] = checkpointLayer{
				Kind:                   "dense",
				In:                     l.in,
				Nodes:                  l.nodes,
				Weights:                append([]float64(nil), l.weights.RawMatrix().Data...),
				WeightsGrad:            append([]float64(nil), l.weightsGrad.RawMatrix().Data...),
				WeightsVelocity:        append([]float64(nil), l.weightsState.Velocity...),
				WeightsVelocitySquared: append([]float64(nil), l.weightsState.VelocitySquared...),
			}
		case *ConvLayer:
			file.Layers[i] = checkpointLayer{
				Kind:                   "conv",
				Conv:                   l.cfg,
				Kernels:                copyBank(l.kernels),
				KernelsGrad:            copyBank(l.kernelsGrad),
				KernelsVelocity:        bankVelocity(l.kernelsState, false),
				KernelsVelocitySquared: bankVelocity(l.kernelsState, true),
			}
		default:
			return fmt.Errorf("checkpoint: unknown layer kind %T", layer)
		}
		base := baseOf(layer)
		cl := &file.Layers[i]
		cl.Bias = append([]float64(nil), base.bias...)
		cl.BiasGrad = append([]float64(nil), base.biasGrad...)
		cl.BiasVelocity = append([]float64(nil), base.biasState.Velocity...)
		cl.BiasVelocitySquared = append([]float64(nil), base.biasState.VelocitySquared...)
		cl.Step = base.step
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(file); err != nil {
		return fmt.Errorf("checkpoint: encode: %w", err)
	}
	return f.Close()
}

// LoadCheckpoint reads a snapshot from path and rebuilds the network it
// describes, including optimizer state, so the result is Equal to the
// network that was saved.
func LoadCheckpoint(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}
	defer f.Close()

	var file checkpointFile
	if err := gob.NewDecoder(f).Decode(&file); err != nil {
		return nil, fmt.Errorf("checkpoint: decode: %w", err)
	}
	if len(file.Layers) == 0 {
		return nil, fmt.Errorf("checkpoint: %w: no layers", ErrConfiguration)
	}

	n := &Network{
		inputSize: file.InputSize,
		hiddenAF:  file.Hidden,
		outputAF:  file.Output,
		cost:      file.Cost,
		layers:    make([]Layer, len(file.Layers)),
	}
	n.temperature.Store(math.Float64bits(file.Temperature))

	in := file.InputSize
	for i, cl := range file.Layers {
		layer, err := restoreLayer(cl, in)
		if err != nil {
			return nil, fmt.Errorf("checkpoint: layer %d: %w", i, err)
		}
		n.layers[i] = layer
		in = layer.Nodes()
	}
	n.outputSize = in
	return n, nil
}

func restoreLayer(cl checkpointLayer, in int) (Layer, error) {
	var layer Layer
	switch cl.Kind {
	case "dense":
		if cl.In != in {
			return nil, fmt.Errorf("%w: dense layer input %d does not chain from %d", ErrConfiguration, cl.In, in)
		}
		d := newDenseLayer(cl.In, cl.Nodes)
		if len(cl.Weights) != cl.In*cl.Nodes {
			return nil, fmt.Errorf("%w: dense weights length %d, want %d", ErrConfiguration, len(cl.Weights), cl.In*cl.Nodes)
		}
		copy(d.weights.RawMatrix().Data, cl.Weights)
		copy(d.weightsGrad.RawMatrix().Data, cl.WeightsGrad)
		d.weightsState = optim.State{
			Velocity:        restoreSlice(cl.WeightsVelocity),
			VelocitySquared: restoreSlice(cl.WeightsVelocitySquared),
		}
		layer = d
	case "conv":
		c, err := newConvLayer(cl.Conv)
		if err != nil {
			return nil, err
		}
		if c.inputSize() != in {
			return nil, fmt.Errorf("%w: conv layer input %d does not chain from %d", ErrConfiguration, c.inputSize(), in)
		}
		if len(cl.Kernels) != cl.Conv.Kernels {
			return nil, fmt.Errorf("%w: kernel bank size %d, want %d", ErrConfiguration, len(cl.Kernels), cl.Conv.Kernels)
		}
		for k := range c.kernels {
			copy(c.kernels[k], cl.Kernels[k])
			copy(c.kernelsGrad[k], cl.KernelsGrad[k])
			c.kernelsState[k] = optim.State{
				Velocity:        restoreBankRow(cl.KernelsVelocity, k),
				VelocitySquared: restoreBankRow(cl.KernelsVelocitySquared, k),
			}
		}
		layer = c
	default:
		return nil, fmt.Errorf("%w: unknown layer kind %q", ErrConfiguration, cl.Kind)
	}

	base := baseOf(layer)
	if len(cl.Bias) != base.nodes {
		return nil, fmt.Errorf("%w: bias length %d, want %d", ErrConfiguration, len(cl.Bias), base.nodes)
	}
	copy(base.bias, cl.Bias)
	copy(base.biasGrad, cl.BiasGrad)
	base.biasState = optim.State{
		Velocity:        restoreSlice(cl.BiasVelocity),
		VelocitySquared: restoreSlice(cl.BiasVelocitySquared),
	}
	base.step = cl.Step

	// The underlying matrices were restored verbatim; the finite-value
	// contract still holds at this trust boundary.
	if err := checkFinite("checkpoint restore", cl.Weights, cl.Bias); err != nil {
		return nil, err
	}
	return layer, nil
}

func baseOf(layer Layer) *layerBase {
	switch l := layer.(type) {
	case *DenseLayer:
		return &l.layerBase
	case *ConvLayer:
		return &l.layerBase
	default:
		panic(fmt.Sprintf("nn: unknown layer kind %T", layer))
	}
}

func copyBank(bank [][]float64) [][]float64 {
	out := make([][]float64, len(bank))
	for i, row := range bank {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// bankVelocity extracts one moment slice per kernel; nil rows mark state
// the optimizer never allocated.
func bankVelocity(states []optim.State, squared bool) [][]float64 {
	out := make([][]float64, len(states))
	for i, s := range states {
		src := s.Velocity
		if squared {
			src = s.VelocitySquared
		}
		if src != nil {
			out[i] = append([]float64(nil), src...)
		}
	}
	return out
}

// restoreSlice maps gob's empty-decodes back to nil so lazily-unallocated
// optimizer state stays unallocated.
func restoreSlice(s []float64) []float64 {
	if len(s) == 0 {
		return nil
	}
	return append([]float64(nil), s...)
}

func restoreBankRow(bank [][]float64, k int) []float64 {
	if k >= len(bank) {
		return nil
	}
	return restoreSlice(bank[k])
}

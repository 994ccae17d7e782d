package nn

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/fathom-ml/fathom/internal/optim"
)

// DenseLayer is a fully connected layer: every output node carries a weight
// to every input value plus a bias.
//
// Forward computes output[i] = Σ_j weight[i][j]·input[j] + bias[i], i.e.
// y = W·x + b with W of shape [nodes × in].
type DenseLayer struct {
	layerBase
	in int

	weights      *mat.Dense // [nodes × in]
	weightsGrad  *mat.Dense // same shape, accumulated over one batch
	weightsState optim.State
}

func newDenseLayer(in, nodes int) *DenseLayer {
	return &DenseLayer{
		layerBase:   newLayerBase(nodes),
		in:          in,
		weights:     mat.NewDense(nodes, in, nil),
		weightsGrad: mat.NewDense(nodes, in, nil),
	}
}

func (d *DenseLayer) inputSize() int {
	return d.in
}

func (d *DenseLayer) initialize(init func() float64) {
	w := d.weights.RawMatrix().Data
	for i := range w {
		w[i] = init()
	}
	for i := range d.bias {
		d.bias[i] = init()
	}
}

// Forward applies the weights and bias to input and returns a new vector.
func (d *DenseLayer) Forward(input []float64) ([]float64, error) {
	if len(input) != d.in {
		return nil, fmt.Errorf("%w: dense layer expects %d inputs, got %d",
			ErrDimensionMismatch, d.in, len(input))
	}
	if err := checkFinite("dense forward input", input); err != nil {
		return nil, err
	}

	out := mat.NewVecDense(d.nodes, nil)
	out.MulVec(d.weights, mat.NewVecDense(d.in, input))
	out.AddVec(out, mat.NewVecDense(d.nodes, d.bias))

	output := out.RawVector().Data
	if err := checkFinite("dense forward output", output); err != nil {
		return nil, err
	}
	return output, nil
}

// Backward accumulates the weight and bias gradients from outputGrad and
// the cached forward input, and returns the gradient with respect to that
// input. The accumulation runs under the layer mutex so concurrent batch
// workers never lose updates; the returned input gradient is local to this
// call and needs no locking.
func (d *DenseLayer) Backward(outputGrad, input []float64) ([]float64, error) {
	if len(outputGrad) != d.nodes || len(input) != d.in {
		return nil, fmt.Errorf("%w: dense backward got gradient length %d (want %d) and input length %d (want %d)",
			ErrDimensionMismatch, len(outputGrad), d.nodes, len(input), d.in)
	}
	if err := checkFinite("dense backward input", outputGrad, input); err != nil {
		return nil, err
	}

	inputGrad := make([]float64, d.in)
	w := d.weights.RawMatrix()
	g := d.weightsGrad.RawMatrix()

	d.mu.Lock()
	for i := 0; i < d.nodes; i++ {
		wRow := w.Data[i*w.Stride : i*w.Stride+d.in]
		gRow := g.Data[i*g.Stride : i*g.Stride+d.in]
		og := outputGrad[i]
		for j, x := range input {
			gRow[j] += og * x
			inputGrad[j] += og * wRow[j]
		}
		d.biasGrad[i] += og
	}
	d.mu.Unlock()

	if err := checkFinite("dense backward output", inputGrad); err != nil {
		return nil, err
	}
	return inputGrad, nil
}

// ApplyGradient updates the weights and bias in place from the accumulated
// gradients under the selected rule.
func (d *DenseLayer) ApplyGradient(alg optim.Algorithm, cfg optim.Config) error {
	wData := d.weights.RawMatrix().Data
	gData := d.weightsGrad.RawMatrix().Data
	if err := checkFinite("dense weight gradient", gData); err != nil {
		return err
	}
	if err := optim.Step(alg, cfg, d.step, wData, gData, &d.weightsState); err != nil {
		return err
	}
	if err := checkFinite("dense weight update", wData); err != nil {
		return err
	}
	if err := d.applyBias(alg, cfg); err != nil {
		return err
	}
	d.finishApply(alg)
	return nil
}

// ClearGradient zeroes the weight and bias gradient accumulators.
func (d *DenseLayer) ClearGradient() {
	g := d.weightsGrad.RawMatrix().Data
	for i := range g {
		g[i] = 0
	}
	d.clearBiasGradient()
}

// NumParameters returns the number of learnable parameters.
func (d *DenseLayer) NumParameters() int {
	return d.nodes*d.in + d.nodes
}

// Clone returns a deep copy, including optimizer state.
func (d *DenseLayer) Clone() Layer {
	c := newDenseLayer(d.in, d.nodes)
	d.cloneBase(&c.layerBase)
	c.weights.Copy(d.weights)
	c.weightsGrad.Copy(d.weightsGrad)
	c.weightsState = d.weightsState.Clone()
	return c
}

// Equal reports exact value equality with another dense layer.
func (d *DenseLayer) Equal(other Layer) bool {
	o, ok := other.(*DenseLayer)
	if !ok {
		return false
	}
	return d.in == o.in &&
		d.equalBase(&o.layerBase) &&
		mat.Equal(d.weights, o.weights) &&
		mat.Equal(d.weightsGrad, o.weightsGrad) &&
		equalSlices(d.weightsState.Velocity, o.weightsState.Velocity) &&
		equalSlices(d.weightsState.VelocitySquared, o.weightsState.VelocitySquared)
}

// String returns a summary with weights truncated to two decimals.
func (d *DenseLayer) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Dense(%d -> %d, %d parameters)\n", d.in, d.nodes, d.NumParameters())
	sb.WriteString("Weights:\n")
	for i := 0; i < d.nodes; i++ {
		sb.WriteString("[")
		for j := 0; j < d.in; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%.2f", d.weights.At(i, j))
		}
		sb.WriteString("]\n")
	}
	fmt.Fprintf(&sb, "Biases:\n%v\n", formatVec(d.bias))
	return sb.String()
}

// formatVec renders a vector with two-decimal elements.
func formatVec(v []float64) string {
	var sb strings.Builder
	sb.WriteString("[")
	for i, x := range v {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%.2f", x)
	}
	sb.WriteString("]")
	return sb.String()
}

// Package nn implements a small neural-network training engine: a linear
// stack of learnable layers driven by forward evaluation, reverse-mode
// backpropagation, and concurrent mini-batch gradient accumulation.
//
// This package provides:
//   - Layer interface: the contract shared by all layer kinds
//   - DenseLayer: fully connected weight matrix + bias
//   - ConvLayer: kernel bank with stride and reflection padding
//   - Activation / Cost: closed catalogs of pure function pairs
//   - Network: the orchestrator built from a validated Config
//
// The engine knows nothing about what its vectors mean. Callers compute
// feature vectors and target vectors themselves and push them through the
// generic Forward/Learn surface.
package nn

import "github.com/fathom-ml/fathom/internal/optim"

// Layer is a stage in the linear stack transforming one vector into
// another, owning learnable parameters and their gradient accumulators.
//
// A layer moves through a fixed cycle per training step: gradients are
// cleared, accumulated by zero or more Backward calls during one batch,
// applied by exactly one ApplyGradient call, and cleared again. Backward
// must be safe under concurrent invocation from multiple batch workers;
// Forward and ApplyGradient are called from a single goroutine.
type Layer interface {
	// Nodes returns the number of output values this layer produces.
	Nodes() int

	// Forward passes input through the layer's current parameters and
	// returns a freshly allocated output vector. It has no side effects.
	Forward(input []float64) ([]float64, error)

	// Backward accumulates this layer's parameter gradients from the
	// gradient of the loss with respect to its pre-activation output,
	// given the cached forward input, and returns the gradient to
	// propagate to the previous layer. Accumulation is additive and
	// concurrency-safe.
	Backward(outputGrad, input []float64) ([]float64, error)

	// ApplyGradient mutates the parameters in place from the accumulated
	// gradient under the selected update rule. The caller clears
	// gradients separately.
	ApplyGradient(alg optim.Algorithm, cfg optim.Config) error

	// ClearGradient zeroes all gradient accumulators.
	ClearGradient()

	// NumParameters returns the number of learnable parameters.
	NumParameters() int

	// Clone returns a deep copy, including optimizer state and the
	// update-step counter.
	Clone() Layer

	// Equal reports exact value equality of parameters, gradients, and
	// optimizer state. Used by tests and checkpoint verification.
	Equal(other Layer) bool

	// String returns a human-readable parameter summary.
	String() string

	// inputSize returns the vector length Forward expects, so the network
	// constructor can validate consecutive layer shapes.
	inputSize() int

	// initialize fills the parameters from the initializer chosen by the
	// network's hidden activation.
	initialize(init func() float64)
}

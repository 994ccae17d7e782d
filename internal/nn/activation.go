package nn

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Activation is one of the closed set of activation functions. Each tag
// pairs a forward function with its derivative; there is no runtime
// registration mechanism.
//
// The zero value is invalid so that an unset configuration field is
// detectable at construction time.
type Activation int

const (
	// Identity passes values through unchanged.
	Identity Activation = iota + 1
	// ReLU is the rectified linear unit max(0, x).
	ReLU
	// Sigmoid is the logistic function 1/(1+exp(-x)).
	Sigmoid
	// Tanh is the hyperbolic tangent.
	Tanh
	// LeakyReLU is ReLU with slope 0.1 for negative inputs.
	LeakyReLU
	// Softmax normalizes the whole vector onto the probability simplex.
	// Unlike the other variants it is not element-wise.
	Softmax
)

// leakySlope is the negative-side slope of LeakyReLU.
const leakySlope = 0.1

// String returns the activation name.
func (a Activation) String() string {
	switch a {
	case Identity:
		return "identity"
	case ReLU:
		return "relu"
	case Sigmoid:
		return "sigmoid"
	case Tanh:
		return "tanh"
	case LeakyReLU:
		return "leakyrelu"
	case Softmax:
		return "softmax"
	default:
		return fmt.Sprintf("Activation(%d)", int(a))
	}
}

// Valid reports whether a is a known activation tag.
func (a Activation) Valid() bool {
	return a >= Identity && a <= Softmax
}

// Calculate applies the activation to input and returns a new vector.
// Every input and output element must be finite; a violation fails with
// ErrNotFinite.
func (a Activation) Calculate(input []float64) ([]float64, error) {
	if err := checkFinite(a.String()+" input", input); err != nil {
		return nil, err
	}

	output := make([]float64, len(input))
	switch a {
	case Identity:
		copy(output, input)
	case ReLU:
		for i, v := range input {
			if v > 0 {
				output[i] = v
			}
		}
	case Sigmoid:
		for i, v := range input {
			output[i] = 1 / (1 + math.Exp(-v))
		}
	case Tanh:
		for i, v := range input {
			output[i] = math.Tanh(v)
		}
	case LeakyReLU:
		for i, v := range input {
			if v > 0 {
				output[i] = v
			} else {
				output[i] = leakySlope * v
			}
		}
	case Softmax:
		softmax(input, output)
	default:
		return nil, fmt.Errorf("%w: unknown activation %v", ErrConfiguration, a)
	}

	if err := checkFinite(a.String()+" output", output); err != nil {
		return nil, err
	}
	return output, nil
}

// Derivative chains the upstream gradient through the activation evaluated
// at the cached pre-activation input z, returning the downstream gradient.
//
// For the element-wise variants this is grad[i]·f'(z[i]). Softmax needs the
// full vector-Jacobian product, computed as s·(grad − dot(s, grad)) where
// s = softmax(z).
func (a Activation) Derivative(z, grad []float64) ([]float64, error) {
	if len(z) != len(grad) {
		return nil, fmt.Errorf("%w: activation derivative got %d pre-activations and %d gradients",
			ErrDimensionMismatch, len(z), len(grad))
	}
	if err := checkFinite(a.String()+" derivative input", z, grad); err != nil {
		return nil, err
	}

	output := make([]float64, len(z))
	switch a {
	case Identity:
		copy(output, grad)
	case ReLU:
		for i, v := range z {
			if v > 0 {
				output[i] = grad[i]
			}
		}
	case Sigmoid:
		for i, v := range z {
			s := 1 / (1 + math.Exp(-v))
			output[i] = grad[i] * s * (1 - s)
		}
	case Tanh:
		for i, v := range z {
			t := math.Tanh(v)
			output[i] = grad[i] * (1 - t*t)
		}
	case LeakyReLU:
		for i, v := range z {
			if v > 0 {
				output[i] = grad[i]
			} else {
				output[i] = grad[i] * leakySlope
			}
		}
	case Softmax:
		s := make([]float64, len(z))
		softmax(z, s)
		dot := floats.Dot(s, grad)
		for i := range s {
			output[i] = s[i] * (grad[i] - dot)
		}
	default:
		return nil, fmt.Errorf("%w: unknown activation %v", ErrConfiguration, a)
	}

	if err := checkFinite(a.String()+" derivative output", output); err != nil {
		return nil, err
	}
	return output, nil
}

// softmax writes the normalized exponentials of input into output. The
// maximum is subtracted before exponentiation so large logits cannot
// overflow; the result is invariant to adding a constant to every element.
func softmax(input, output []float64) {
	max := floats.Max(input)
	var sum float64
	for i, v := range input {
		output[i] = math.Exp(v - max)
		sum += output[i]
	}
	floats.Scale(1/sum, output)
}

// initializerFor returns the weight initializer best matched to the given
// hidden activation: a He-style Gaussian for the rectifying activations,
// which halve their input distribution, and a Xavier-style Gaussian for
// everything else.
func initializerFor(a Activation, fanIn, fanOut int) func() float64 {
	var sigma float64
	if a == ReLU || a == LeakyReLU {
		sigma = math.Sqrt(2 / float64(fanIn+fanOut))
	} else {
		sigma = math.Sqrt(1 / math.Sqrt(float64(fanIn+fanOut)))
	}
	dist := distuv.Normal{Mu: 0, Sigma: sigma}
	return dist.Rand
}

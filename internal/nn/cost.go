package nn

import (
	"fmt"
	"math"
)

// Cost is one of the closed set of loss functions. Each tag pairs a
// per-element loss with its derivative with respect to the output.
//
// The zero value is invalid so that an unset configuration field is
// detectable at construction time.
type Cost int

const (
	// MeanSquaredError is the squared difference averaged over the output
	// vector, in both the loss and its derivative.
	MeanSquaredError Cost = iota + 1
	// CrossEntropy is the negative log likelihood against a one-hot
	// target: every target element must be exactly 0 or 1.
	CrossEntropy
)

// String returns the cost function name.
func (c Cost) String() string {
	switch c {
	case MeanSquaredError:
		return "mse"
	case CrossEntropy:
		return "crossentropy"
	default:
		return fmt.Sprintf("Cost(%d)", int(c))
	}
}

// Valid reports whether c is a known cost tag.
func (c Cost) Valid() bool {
	return c == MeanSquaredError || c == CrossEntropy
}

// Calculate returns the per-element loss between output and target.
func (c Cost) Calculate(output, target []float64) ([]float64, error) {
	if len(output) != len(target) {
		return nil, fmt.Errorf("%w: cost got output length %d and target length %d",
			ErrDimensionMismatch, len(output), len(target))
	}
	if err := checkFinite(c.String()+" input", output, target); err != nil {
		return nil, err
	}

	n := float64(len(output))
	loss := make([]float64, len(output))
	switch c {
	case MeanSquaredError:
		for i, o := range output {
			d := o - target[i]
			loss[i] = d * d / n
		}
	case CrossEntropy:
		for i, o := range output {
			if target[i] == 1 {
				loss[i] = -math.Log(o)
			} else {
				loss[i] = -math.Log(1 - o)
			}
		}
	default:
		return nil, fmt.Errorf("%w: unknown cost %v", ErrConfiguration, c)
	}

	if err := checkFinite(c.String()+" output", loss); err != nil {
		return nil, err
	}
	return loss, nil
}

// Derivative returns the per-element gradient of the loss with respect to
// the output vector.
//
// For cross-entropy the terms at output exactly 0 or 1 are dropped rather
// than divided through, so a saturated output yields a zero contribution
// instead of an infinity that would trip the finite check.
func (c Cost) Derivative(output, target []float64) ([]float64, error) {
	if len(output) != len(target) {
		return nil, fmt.Errorf("%w: cost derivative got output length %d and target length %d",
			ErrDimensionMismatch, len(output), len(target))
	}
	if err := checkFinite(c.String()+" derivative input", output, target); err != nil {
		return nil, err
	}

	n := float64(len(output))
	grad := make([]float64, len(output))
	switch c {
	case MeanSquaredError:
		for i, o := range output {
			grad[i] = 2 * (o - target[i]) / n
		}
	case CrossEntropy:
		for i, o := range output {
			var hit, miss float64
			if o != 0 {
				hit = target[i] / o
			}
			if o != 1 {
				miss = (1 - target[i]) / (1 - o)
			}
			grad[i] = -hit + miss
		}
	default:
		return nil, fmt.Errorf("%w: unknown cost %v", ErrConfiguration, c)
	}

	if err := checkFinite(c.String()+" derivative output", grad); err != nil {
		return nil, err
	}
	return grad, nil
}

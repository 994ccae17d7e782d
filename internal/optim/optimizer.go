// Package optim implements the parameter-update rules used to train
// networks built from accumulated mini-batch gradients.
//
// This package provides:
//   - Algorithm: the closed set of four gradient-descent variants
//   - Config: the shared hyper-parameter bundle (learning rate, momentum,
//     second-moment coefficient, stabilizer)
//   - State: the persistent per-buffer velocity estimates, allocated lazily
//   - Step: one in-place update of a flat parameter slice
//
// Layers own their parameter and gradient buffers as flat []float64 slices
// and call Step once per buffer after a batch has been accumulated. The
// velocity and squared-velocity slices in State are exponential moving
// averages that persist across training calls for the lifetime of the
// network; they are never reset.
//
// Example usage:
//
//	var state optim.State
//	cfg := optim.Config{LR: 0.001, Momentum: 0.9, Beta: 0.999, Eps: 1e-8}
//
//	// After accumulating a batch gradient into grad:
//	err := optim.Step(optim.Adam, cfg, step, params, grad, &state)
package optim

import (
	"errors"
	"fmt"
)

// ErrUnsupportedAlgorithm reports an algorithm tag outside the closed set
// reaching Step. There is no registration mechanism: the four variants are
// the whole catalog.
var ErrUnsupportedAlgorithm = errors.New("optim: unsupported algorithm")

// Algorithm selects one of the four parameter-update rules.
//
// The variants share a common gradient-descent contract but differ in the
// persistent state they maintain:
//
//	SGD       x -= lr·g                          (no state)
//	Momentum  v = β₁·v + (1-β₁)·g; x -= lr·v     (velocity)
//	RMSProp   s = β₂·s + (1-β₂)·g²;              (squared velocity)
//	          x -= lr·g / sqrt(s+ε)
//	Adam      both moments with bias correction  (velocity + squared velocity)
type Algorithm int

const (
	// SGD is plain stochastic gradient descent.
	SGD Algorithm = iota + 1
	// Momentum is gradient descent with an exponential moving average of
	// the gradient as the update direction.
	Momentum
	// RMSProp scales the raw gradient by the root of an exponential moving
	// average of its square.
	RMSProp
	// Adam combines both moment estimates with per-step bias correction.
	Adam
)

// String returns the algorithm name.
func (a Algorithm) String() string {
	switch a {
	case SGD:
		return "sgd"
	case Momentum:
		return "momentum"
	case RMSProp:
		return "rmsprop"
	case Adam:
		return "adam"
	default:
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
}

// Valid reports whether a is one of the four known variants.
func (a Algorithm) Valid() bool {
	return a >= SGD && a <= Adam
}

// needsVelocity reports whether the variant maintains a first-moment
// (velocity) estimate.
func (a Algorithm) needsVelocity() bool {
	return a == Momentum || a == Adam
}

// needsSquared reports whether the variant maintains a second-moment
// (squared velocity) estimate.
func (a Algorithm) needsSquared() bool {
	return a == RMSProp || a == Adam
}

// Config holds the hyper-parameters shared by all four update rules.
// Fields not used by the selected Algorithm are ignored.
type Config struct {
	LR       float64 // learning rate; callers pre-scale by 1/batchSize
	Momentum float64 // first-moment coefficient β₁ (Momentum, Adam)
	Beta     float64 // second-moment coefficient β₂ (RMSProp, Adam)
	Eps      float64 // stabilizer ε added under the square root (RMSProp, Adam)
}

// WithDefaults fills zero hyper-parameters with the conventional values:
// Momentum 0.9, Beta 0.999, Eps 1e-8. LR is left untouched; a zero learning
// rate is a deliberate no-op, not a missing field.
func (c Config) WithDefaults() Config {
	if c.Momentum == 0 {
		c.Momentum = 0.9
	}
	if c.Beta == 0 {
		c.Beta = 0.999
	}
	if c.Eps == 0 {
		c.Eps = 1e-8
	}
	return c
}

// State holds the persistent moment estimates for one parameter buffer.
//
// Both slices are nil until the first Step with a variant that needs them,
// so plain SGD training never pays their memory cost. Once allocated they
// persist for the lifetime of the owning layer.
type State struct {
	Velocity        []float64 // first moment v (Momentum, Adam)
	VelocitySquared []float64 // second moment s (RMSProp, Adam)
}

// ensure allocates the state slices the given algorithm requires.
func (s *State) ensure(a Algorithm, n int) {
	if a.needsVelocity() && s.Velocity == nil {
		s.Velocity = make([]float64, n)
	}
	if a.needsSquared() && s.VelocitySquared == nil {
		s.VelocitySquared = make([]float64, n)
	}
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	var out State
	if s.Velocity != nil {
		out.Velocity = append([]float64(nil), s.Velocity...)
	}
	if s.VelocitySquared != nil {
		out.VelocitySquared = append([]float64(nil), s.VelocitySquared...)
	}
	return out
}

// Step applies one update of params in place from the accumulated gradient
// grad under the selected algorithm. t is the caller's update-step counter
// (starting at 1) and is only consulted by Adam for bias correction; the
// caller advances it separately, once per apply.
//
// params and grad must have identical length; this is the shape invariant
// the layers maintain, so a mismatch is a programming error and panics.
func Step(a Algorithm, cfg Config, t int, params, grad []float64, state *State) error {
	if len(params) != len(grad) {
		panic(fmt.Sprintf("optim: gradient length %d does not match parameter length %d", len(grad), len(params)))
	}
	state.ensure(a, len(params))

	switch a {
	case SGD:
		stepSGD(cfg, params, grad)
	case Momentum:
		stepMomentum(cfg, params, grad, state.Velocity)
	case RMSProp:
		stepRMSProp(cfg, params, grad, state.VelocitySquared)
	case Adam:
		stepAdam(cfg, t, params, grad, state.Velocity, state.VelocitySquared)
	default:
		return fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, a)
	}
	return nil
}

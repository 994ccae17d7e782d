package optim

import "math"

// stepRMSProp applies root-mean-square gradient scaling:
//
//	s = β₂·s + (1-β₂)·g²
//	x -= lr·g / sqrt(s+ε)
//
// The accumulated squared velocity, not the raw gradient, sits under the
// square root: dividing by the instantaneous g² would collapse every update
// to ±lr regardless of gradient magnitude.
func stepRMSProp(cfg Config, params, grad, squared []float64) {
	for i, g := range grad {
		squared[i] = cfg.Beta*squared[i] + (1-cfg.Beta)*g*g
		params[i] -= cfg.LR * g / math.Sqrt(squared[i]+cfg.Eps)
	}
}

// stepAdam applies adaptive moment estimation:
//
//	v = β₁·v + (1-β₁)·g
//	s = β₂·s + (1-β₂)·g²
//	v̂ = v / (1-β₁ᵗ)
//	ŝ = s / (1-β₂ᵗ)
//	x -= lr·v̂ / sqrt(ŝ+ε)
//
// Both moments start at zero, so early estimates are biased toward zero;
// the 1/(1-βᵗ) corrections compensate and converge to 1 as t grows.
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014).
func stepAdam(cfg Config, t int, params, grad, velocity, squared []float64) {
	correction1 := 1 - math.Pow(cfg.Momentum, float64(t))
	correction2 := 1 - math.Pow(cfg.Beta, float64(t))

	for i, g := range grad {
		velocity[i] = cfg.Momentum*velocity[i] + (1-cfg.Momentum)*g
		squared[i] = cfg.Beta*squared[i] + (1-cfg.Beta)*g*g

		vHat := velocity[i] / correction1
		sHat := squared[i] / correction2
		params[i] -= cfg.LR * vHat / math.Sqrt(sHat+cfg.Eps)
	}
}

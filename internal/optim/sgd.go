package optim

// stepSGD applies the plain gradient-descent rule:
//
//	x -= lr·g
func stepSGD(cfg Config, params, grad []float64) {
	for i, g := range grad {
		params[i] -= cfg.LR * g
	}
}

// stepMomentum applies gradient descent with momentum:
//
//	v = β₁·v + (1-β₁)·g
//	x -= lr·v
//
// The velocity is an exponential moving average of past gradients, so the
// update direction smooths out oscillations across batches.
func stepMomentum(cfg Config, params, grad, velocity []float64) {
	for i, g := range grad {
		velocity[i] = cfg.Momentum*velocity[i] + (1-cfg.Momentum)*g
		params[i] -= cfg.LR * velocity[i]
	}
}

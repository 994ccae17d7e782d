package nn

import (
	"sync"

	"github.com/fathom-ml/fathom/internal/optim"
)

// layerBase carries the state every layer kind shares: the bias vector and
// its gradient accumulator, the lazily allocated optimizer state, the
// update-step counter consulted by Adam's bias correction, and the mutex
// serializing gradient accumulation across batch workers.
//
// Concrete layers embed layerBase and extend the apply/clear/clone/equal
// operations with their own weight buffers.
type layerBase struct {
	nodes     int
	bias      []float64
	biasGrad  []float64
	biasState optim.State
	step      int // update counter, starts at 1

	// mu guards the gradient accumulators during the batch accumulation
	// phase. Apply and clear run single-threaded after the join barrier.
	mu sync.Mutex
}

func newLayerBase(nodes int) layerBase {
	return layerBase{
		nodes:    nodes,
		bias:     make([]float64, nodes),
		biasGrad: make([]float64, nodes),
		step:     1,
	}
}

// Nodes returns the number of output values this layer produces.
func (l *layerBase) Nodes() int {
	return l.nodes
}

// applyBias updates the bias vector from its accumulated gradient. Callers
// apply their weight buffers with the same step count first, then call
// finishApply to advance the counter.
func (l *layerBase) applyBias(alg optim.Algorithm, cfg optim.Config) error {
	if err := checkFinite("bias gradient", l.biasGrad); err != nil {
		return err
	}
	if err := optim.Step(alg, cfg, l.step, l.bias, l.biasGrad, &l.biasState); err != nil {
		return err
	}
	return checkFinite("bias update", l.bias)
}

// finishApply advances the update-step counter. Only the adaptive-moment
// rule consumes it, so only that rule advances it (matching the counter's
// role as a bias-correction exponent).
func (l *layerBase) finishApply(alg optim.Algorithm) {
	if alg == optim.Adam {
		l.step++
	}
}

func (l *layerBase) clearBiasGradient() {
	for i := range l.biasGrad {
		l.biasGrad[i] = 0
	}
}

// cloneBase deep-copies the shared state into dst.
func (l *layerBase) cloneBase(dst *layerBase) {
	dst.nodes = l.nodes
	dst.bias = append([]float64(nil), l.bias...)
	dst.biasGrad = append([]float64(nil), l.biasGrad...)
	dst.biasState = l.biasState.Clone()
	dst.step = l.step
}

// equalBase reports exact equality of the shared state.
func (l *layerBase) equalBase(o *layerBase) bool {
	return l.nodes == o.nodes &&
		l.step == o.step &&
		equalSlices(l.bias, o.bias) &&
		equalSlices(l.biasGrad, o.biasGrad) &&
		equalSlices(l.biasState.Velocity, o.biasState.Velocity) &&
		equalSlices(l.biasState.VelocitySquared, o.biasState.VelocitySquared)
}

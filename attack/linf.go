package attack

import (
	"manifold_lib/nn"
	"manifold_lib/tensor"

	"gonum.org/v1/gonum/stat/distuv"
)

// LinfGradientDescent searches inside an L∞ ball of radius Epsilon
// with signed gradient steps. C0, C1 and MaxProjections are ignored; the
// optional bound is enforced by clipping after every step.
type LinfGradientDescent struct {
	*search
}

// NewLinfGradientDescent is the Factory of the L∞ variant.
func NewLinfGradientDescent(model nn.Differentiable, inputs *tensor.Tensor, labels []int, cfg Config) (Attack, error) {
	s, err := newSearch(model, inputs, labels, cfg)
	if err != nil {
		return nil, err
	}
	return &LinfGradientDescent{search: s}, nil
}

func (a *LinfGradientDescent) InitializeRandom() error {
	u := distuv.Uniform{Min: -a.cfg.Epsilon, Max: a.cfg.Epsilon, Src: a.cfg.Src}
	for i := 0; i < a.delta.Rows(); i++ {
		row := a.delta.Row(i)
		for j := range row {
			row[j] = u.Rand()
		}
		a.project(i)
	}
	a.initialized = true
	return nil
}

func (a *LinfGradientDescent) Run(obj Objective, verbose bool) (*Result, error) {
	return a.run(obj, verbose, func(i int, grad []float64) {
		delta := a.delta.Row(i)
		for j, g := range grad {
			switch {
			case g > 0:
				delta[j] -= a.cfg.BaseLR
			case g < 0:
				delta[j] += a.cfg.BaseLR
			}
		}
		a.project(i)
	})
}

func (a *LinfGradientDescent) project(i int) {
	delta := a.delta.Row(i)
	eps := a.cfg.Epsilon
	for j, d := range delta {
		if d > eps {
			delta[j] = eps
		} else if d < -eps {
			delta[j] = -eps
		}
	}
	if a.cfg.Bound != nil {
		a.cfg.Bound.clip(a.inputs.Row(i), delta)
	}
}

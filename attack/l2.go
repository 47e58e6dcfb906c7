package attack

import (
	"manifold_lib/nn"
	"manifold_lib/tensor"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// L2ClippedGradientDescent searches inside an L2 ball of radius Epsilon
// using normalized gradient steps. The optional bound is enforced by
// alternating projections, or penalized through C1 when MaxProjections is 0.
type L2ClippedGradientDescent struct {
	*search
	c0, c1      float64
	projections int
}

// NewL2ClippedGradientDescent is the Factory of the L2 variant.
func NewL2ClippedGradientDescent(model nn.Differentiable, inputs *tensor.Tensor, labels []int, cfg Config) (Attack, error) {
	s, err := newSearch(model, inputs, labels, cfg)
	if err != nil {
		return nil, err
	}
	projections := 1
	if cfg.MaxProjections != nil {
		projections = *cfg.MaxProjections
	}
	return &L2ClippedGradientDescent{
		search:      s,
		c0:          valueOr(cfg.C0, 0),
		c1:          valueOr(cfg.C1, 0),
		projections: projections,
	}, nil
}

// InitializeRandom draws a uniformly oriented direction per row with a
// radius uniform in [0, Epsilon], then projects it onto the feasible set.
func (a *L2ClippedGradientDescent) InitializeRandom() error {
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: a.cfg.Src}
	radius := distuv.Uniform{Min: 0, Max: a.cfg.Epsilon, Src: a.cfg.Src}
	for i := 0; i < a.delta.Rows(); i++ {
		row := a.delta.Row(i)
		for j := range row {
			row[j] = normal.Rand()
		}
		if norm := floats.Norm(row, 2); norm > 0 {
			floats.Scale(radius.Rand()/norm, row)
		}
		a.project(i)
	}
	a.initialized = true
	return nil
}

func (a *L2ClippedGradientDescent) Run(obj Objective, verbose bool) (*Result, error) {
	return a.run(obj, verbose, a.step)
}

func (a *L2ClippedGradientDescent) step(i int, grad []float64) {
	delta := a.delta.Row(i)
	if a.c0 != 0 {
		if norm := floats.Norm(delta, 2); norm > 0 {
			floats.AddScaled(grad, a.c0/norm, delta)
		}
	}
	if a.c1 != 0 && a.cfg.Bound != nil {
		x := a.inputs.Row(i)
		for j := range grad {
			v := x[j] + delta[j]
			if v > a.cfg.Bound.Max[j] {
				grad[j] += a.c1
			} else if v < a.cfg.Bound.Min[j] {
				grad[j] -= a.c1
			}
		}
	}
	if norm := floats.Norm(grad, 2); norm > 0 {
		floats.AddScaled(delta, -a.cfg.BaseLR/norm, grad)
	}
	a.project(i)
}

// project alternates between the epsilon ball and the bound box. Without
// projections only the ball is enforced.
func (a *L2ClippedGradientDescent) project(i int) {
	delta := a.delta.Row(i)
	if a.cfg.Bound == nil || a.projections == 0 {
		clipL2(delta, a.cfg.Epsilon)
		return
	}
	x := a.inputs.Row(i)
	for p := 0; p < a.projections; p++ {
		clipL2(delta, a.cfg.Epsilon)
		a.cfg.Bound.clip(x, delta)
		if floats.Norm(delta, 2) <= a.cfg.Epsilon*(1+1e-12) {
			break
		}
	}
}

func clipL2(delta []float64, eps float64) {
	if norm := floats.Norm(delta, 2); norm > eps {
		floats.Scale(eps/norm, delta)
	}
}

package nn

import "math"

// SGD is stochastic gradient descent with momentum and L2 weight decay.
type SGD struct {
	LR          float64
	Momentum    float64
	WeightDecay float64

	velocity map[*Param][]float64
}

// NewSGD creates an optimizer with the given base learning rate.
func NewSGD(lr, momentum, weightDecay float64) *SGD {
	return &SGD{LR: lr, Momentum: momentum, WeightDecay: weightDecay, velocity: map[*Param][]float64{}}
}

// Step applies one update to every parameter from its accumulated gradient.
func (o *SGD) Step(params []*Param) {
	for _, p := range params {
		v, ok := o.velocity[p]
		if !ok {
			v = make([]float64, len(p.Value.Data))
			o.velocity[p] = v
		}
		for i := range p.Value.Data {
			g := p.Grad.Data[i] + o.WeightDecay*p.Value.Data[i]
			v[i] = o.Momentum*v[i] + g
			p.Value.Data[i] -= o.LR * v[i]
		}
	}
}

// ExponentialScheduler decays the optimizer's learning rate continuously
// over epochs: lr = base * decay^(epoch + fraction).
type ExponentialScheduler struct {
	Optimizer *SGD
	BaseLR    float64
	Decay     float64
}

// NewExponentialScheduler binds a scheduler to o, using o.LR as base rate.
func NewExponentialScheduler(o *SGD, decay float64) *ExponentialScheduler {
	return &ExponentialScheduler{Optimizer: o, BaseLR: o.LR, Decay: decay}
}

// Update sets the learning rate for the given position inside an epoch.
func (s *ExponentialScheduler) Update(epoch int, fraction float64) {
	s.Optimizer.LR = s.BaseLR * math.Pow(s.Decay, float64(epoch)+fraction)
}

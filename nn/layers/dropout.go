package layers

import (
	"fmt"

	"manifold_lib/nn"
	"manifold_lib/tensor"

	"golang.org/x/exp/rand"
)

// Dropout zeroes inputs with probability Rate in training mode and scales
// the survivors by 1/(1-Rate). In evaluation mode it is the identity.
type Dropout struct {
	Rate float64

	rng  *rand.Rand
	mask []float64
}

// NewDropout creates a dropout layer drawing masks from src.
func NewDropout(rate float64, src rand.Source) (*Dropout, error) {
	if rate < 0 || rate >= 1 {
		return nil, fmt.Errorf("dropout rate must be in [0, 1), got %g", rate)
	}
	return &Dropout{Rate: rate, rng: rand.New(src)}, nil
}

func (d *Dropout) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if !training || d.Rate == 0 {
		d.mask = nil
		return x, nil
	}
	keep := 1 - d.Rate
	d.mask = make([]float64, len(x.Data))
	out := tensor.New(x.Shape...)
	for i, v := range x.Data {
		if d.rng.Float64() < keep {
			d.mask[i] = 1 / keep
		}
		out.Data[i] = v * d.mask[i]
	}
	return out, nil
}

func (d *Dropout) Backward(gradOut *tensor.Tensor, accumulate bool) (*tensor.Tensor, error) {
	if d.mask == nil {
		return gradOut, nil
	}
	if len(gradOut.Data) != len(d.mask) {
		return nil, fmt.Errorf("%w: dropout gradient %v", nn.ErrShape, gradOut.Shape)
	}
	gradIn := tensor.New(gradOut.Shape...)
	for i, g := range gradOut.Data {
		gradIn.Data[i] = g * d.mask[i]
	}
	return gradIn, nil
}

func (d *Dropout) Params() []*nn.Param { return nil }

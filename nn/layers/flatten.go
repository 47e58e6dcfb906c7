package layers

import (
	"manifold_lib/nn"
	"manifold_lib/tensor"
)

// Flatten reshapes a [N, ...] batch to [N, D].
type Flatten struct {
	lastShape []int
}

func NewFlatten() *Flatten { return &Flatten{} }

func (f *Flatten) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	f.lastShape = append([]int(nil), x.Shape...)
	y := tensor.New(x.Rows(), x.RowSize())
	copy(y.Data, x.Data)
	return y, nil
}

func (f *Flatten) Backward(g *tensor.Tensor, accumulate bool) (*tensor.Tensor, error) {
	if f.lastShape == nil {
		return g, nil
	}
	return g.Reshape(f.lastShape...)
}

func (f *Flatten) Params() []*nn.Param { return nil }

package nn

import (
	"errors"

	"manifold_lib/tensor"
)

// ErrShape is returned when a tensor does not have the shape a module expects.
var ErrShape = errors.New("nn: shape mismatch")

// Param is a trainable tensor together with its accumulated gradient.
type Param struct {
	Name  string
	Value *tensor.Tensor
	Grad  *tensor.Tensor
}

// NewParam allocates a parameter and a zero gradient of the same shape.
func NewParam(name string, shape ...int) *Param {
	return &Param{Name: name, Value: tensor.New(shape...), Grad: tensor.New(shape...)}
}

// Module defines a single layer/unit in the network.
type Module interface {
	// Forward computes the output for a batch. training selects
	// mode-dependent behaviour such as dropout.
	Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error)
	// Backward takes the gradient of the loss with respect to the module's
	// output and returns the gradient with respect to its last input.
	// Parameter gradients are accumulated only when accumulate is set.
	Backward(gradOut *tensor.Tensor, accumulate bool) (*tensor.Tensor, error)
	Params() []*Param
}

// Differentiable is a read-only model an attack can query: a forward pass
// and the gradient of a scalar function of the output w.r.t. the input.
type Differentiable interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
	Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error)
}

// Sequential chains multiple Modules in order.
type Sequential struct {
	Layers []Module
}

// Forward applies each layer in sequence.
func (s *Sequential) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	var err error
	out := x
	for _, layer := range s.Layers {
		out, err = layer.Forward(out, training)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Backward applies Backward in reverse order.
func (s *Sequential) Backward(grad *tensor.Tensor, accumulate bool) (*tensor.Tensor, error) {
	var err error
	out := grad
	for i := len(s.Layers) - 1; i >= 0; i-- {
		out, err = s.Layers[i].Backward(out, accumulate)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Params concatenates the parameters of all layers, first layer first.
func (s *Sequential) Params() []*Param {
	var params []*Param
	for _, layer := range s.Layers {
		params = append(params, layer.Params()...)
	}
	return params
}

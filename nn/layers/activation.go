package layers

import (
	"fmt"
	"math"

	"manifold_lib/nn"
	"manifold_lib/tensor"
)

// Func holds an element-wise nonlinearity and its derivative in terms of
// the pre-activation input.
type Func struct {
	Name  string
	F     func(x float64) float64
	Deriv func(x float64) float64
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// SupportedActivations lists the nonlinearities NewActivation accepts.
var SupportedActivations = map[string]Func{
	"relu": {
		Name: "relu",
		F:    func(x float64) float64 { return math.Max(x, 0) },
		Deriv: func(x float64) float64 {
			if x > 0 {
				return 1
			}
			return 0
		},
	},
	"tanh": {
		Name: "tanh",
		F:    math.Tanh,
		Deriv: func(x float64) float64 {
			t := math.Tanh(x)
			return 1 - t*t
		},
	},
	"sigmoid": {
		Name: "sigmoid",
		F:    sigmoid,
		Deriv: func(x float64) float64 {
			s := sigmoid(x)
			return s * (1 - s)
		},
	},
	"softplus": {
		Name:  "softplus",
		F:     func(x float64) float64 { return math.Log1p(math.Exp(x)) },
		Deriv: sigmoid,
	},
}

// Activation is a layer that applies a nonlinearity element-wise.
type Activation struct {
	fn        Func
	lastInput *tensor.Tensor
}

// NewActivation creates a new activation layer.
func NewActivation(name string) (*Activation, error) {
	fn, ok := SupportedActivations[name]
	if !ok {
		return nil, fmt.Errorf("unsupported activation: %s", name)
	}
	return &Activation{fn: fn}, nil
}

func (a *Activation) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	a.lastInput = x
	out := tensor.New(x.Shape...)
	for i, v := range x.Data {
		out.Data[i] = a.fn.F(v)
	}
	return out, nil
}

func (a *Activation) Backward(gradOut *tensor.Tensor, accumulate bool) (*tensor.Tensor, error) {
	if a.lastInput == nil {
		return nil, fmt.Errorf("%s: backward before forward", a.fn.Name)
	}
	if len(gradOut.Data) != len(a.lastInput.Data) {
		return nil, fmt.Errorf("%w: %s gradient %v for input %v", nn.ErrShape, a.fn.Name, gradOut.Shape, a.lastInput.Shape)
	}
	gradIn := tensor.New(a.lastInput.Shape...)
	for i, v := range a.lastInput.Data {
		gradIn.Data[i] = gradOut.Data[i] * a.fn.Deriv(v)
	}
	return gradIn, nil
}

func (a *Activation) Params() []*nn.Param { return nil }

package layers

import (
	"fmt"
	"math"

	"manifold_lib/nn"
	"manifold_lib/tensor"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Linear is a fully-connected layer y = x·Wᵀ + B over batch rows.
type Linear struct {
	W, B *nn.Param

	lastInput *tensor.Tensor
}

// NewLinear(inDim→outDim) allocates zero weights; call Init to randomise.
func NewLinear(inDim, outDim int) *Linear {
	return &Linear{
		W: nn.NewParam("weight", outDim, inDim),
		B: nn.NewParam("bias", outDim),
	}
}

// Init draws W from a Glorot normal distribution and zeroes B.
func (l *Linear) Init(src rand.Source) {
	outDim, inDim := l.W.Value.Shape[0], l.W.Value.Shape[1]
	dist := distuv.Normal{Mu: 0, Sigma: math.Sqrt(2.0 / float64(inDim+outDim)), Src: src}
	for i := range l.W.Value.Data {
		l.W.Value.Data[i] = dist.Rand()
	}
	for i := range l.B.Value.Data {
		l.B.Value.Data[i] = 0
	}
}

// Forward computes y = xWᵀ + B; x may have any trailing shape whose size
// equals the input dimension.
func (l *Linear) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	outDim, inDim := l.W.Value.Shape[0], l.W.Value.Shape[1]
	if x.RowSize() != inDim {
		return nil, fmt.Errorf("%w: linear expects rows of %d, got %v", nn.ErrShape, inDim, x.Shape)
	}
	l.lastInput = x
	out := tensor.New(x.Rows(), outDim)
	out.Dense().Mul(x.Dense(), l.W.Value.Dense().T())
	for i := 0; i < out.Rows(); i++ {
		row := out.Row(i)
		for j := range row {
			row[j] += l.B.Value.Data[j]
		}
	}
	return out, nil
}

// Backward returns dL/dx and, when accumulate is set, adds dL/dW and dL/dB.
func (l *Linear) Backward(gradOut *tensor.Tensor, accumulate bool) (*tensor.Tensor, error) {
	if l.lastInput == nil {
		return nil, fmt.Errorf("linear: backward before forward")
	}
	outDim := l.W.Value.Shape[0]
	if gradOut.Rows() != l.lastInput.Rows() || gradOut.RowSize() != outDim {
		return nil, fmt.Errorf("%w: linear gradient %v for %d outputs", nn.ErrShape, gradOut.Shape, outDim)
	}
	gradIn := tensor.New(l.lastInput.Shape...)
	gradIn.Dense().Mul(gradOut.Dense(), l.W.Value.Dense())

	if accumulate {
		var dW mat.Dense
		dW.Mul(gradOut.Dense().T(), l.lastInput.Dense())
		raw := dW.RawMatrix()
		for i := 0; i < raw.Rows; i++ {
			for j := 0; j < raw.Cols; j++ {
				l.W.Grad.Data[i*raw.Cols+j] += raw.Data[i*raw.Stride+j]
			}
		}
		for i := 0; i < gradOut.Rows(); i++ {
			for j, g := range gradOut.Row(i) {
				l.B.Grad.Data[j] += g
			}
		}
	}
	return gradIn, nil
}

// Params returns weight then bias.
func (l *Linear) Params() []*nn.Param { return []*nn.Param{l.W, l.B} }

// Package decoder holds the conditional generator whose latent
// transformation parameters (theta) the decoder-space attack perturbs.
package decoder

import (
	"fmt"

	"manifold_lib/nn"
	"manifold_lib/tensor"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Decoder maps theta batches to images, conditioned on a per-sample code
// set beforehand with SetCode.
type Decoder interface {
	SetCode(code *tensor.Tensor) error
	Forward(theta *tensor.Tensor) (*tensor.Tensor, error)
	// Backward returns the gradient w.r.t. theta of the last Forward.
	Backward(gradImages *tensor.Tensor) (*tensor.Tensor, error)
}

// Affine is a linear conditional decoder:
//
//	image = code·Wcᵀ + theta·Wtᵀ + b
//
// reshaped to the image shape.
type Affine struct {
	Wc, Wt *mat.Dense
	B      []float64

	shape []int
	code  *tensor.Tensor
}

// NewAffine allocates a zero decoder for codes of codeDim and theta of
// latentDim producing images of shape.
func NewAffine(codeDim, latentDim int, shape ...int) *Affine {
	size := 1
	for _, d := range shape {
		size *= d
	}
	return &Affine{
		Wc:    mat.NewDense(size, codeDim, nil),
		Wt:    mat.NewDense(size, latentDim, nil),
		B:     make([]float64, size),
		shape: append([]int(nil), shape...),
	}
}

// Init draws all weights from N(0, sigma²).
func (a *Affine) Init(sigma float64, src rand.Source) {
	normal := distuv.Normal{Mu: 0, Sigma: sigma, Src: src}
	for _, m := range []*mat.Dense{a.Wc, a.Wt} {
		raw := m.RawMatrix()
		for i := range raw.Data {
			raw.Data[i] = normal.Rand()
		}
	}
	for i := range a.B {
		a.B[i] = normal.Rand()
	}
}

// LatentDim is the theta dimension.
func (a *Affine) LatentDim() int {
	_, c := a.Wt.Dims()
	return c
}

// CodeDim is the code dimension.
func (a *Affine) CodeDim() int {
	_, c := a.Wc.Dims()
	return c
}

func (a *Affine) SetCode(code *tensor.Tensor) error {
	if code.RowSize() != a.CodeDim() {
		return fmt.Errorf("decoder: code has %d columns, want %d: %w", code.RowSize(), a.CodeDim(), nn.ErrShape)
	}
	a.code = code
	return nil
}

func (a *Affine) Forward(theta *tensor.Tensor) (*tensor.Tensor, error) {
	if a.code == nil {
		return nil, fmt.Errorf("decoder: SetCode must be called before Forward")
	}
	n := theta.Rows()
	if theta.RowSize() != a.LatentDim() || a.code.Rows() != n {
		return nil, fmt.Errorf("decoder: theta %v with %d codes, want %d columns: %w",
			theta.Shape, a.code.Rows(), a.LatentDim(), nn.ErrShape)
	}
	size, _ := a.Wt.Dims()
	out := tensor.New(append([]int{n}, a.shape...)...)
	dst := mat.NewDense(n, size, out.Data)
	dst.Mul(theta.Dense(), a.Wt.T())

	var fromCode mat.Dense
	fromCode.Mul(a.code.Dense(), a.Wc.T())
	dst.Add(dst, &fromCode)
	for i := 0; i < n; i++ {
		row := out.Row(i)
		for j := range row {
			row[j] += a.B[j]
		}
	}
	return out, nil
}

func (a *Affine) Backward(gradImages *tensor.Tensor) (*tensor.Tensor, error) {
	size, latent := a.Wt.Dims()
	if gradImages.RowSize() != size {
		return nil, fmt.Errorf("decoder: image gradient %v: %w", gradImages.Shape, nn.ErrShape)
	}
	n := gradImages.Rows()
	out := tensor.New(n, latent)
	g := mat.NewDense(n, size, gradImages.Data)
	out.Dense().Mul(g, a.Wt)
	return out, nil
}

package decoder

import (
	"testing"

	"manifold_lib/nn"
	"manifold_lib/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func TestAffineForward(t *testing.T) {
	d := NewAffine(2, 1, 1, 2)
	d.Wc = mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	d.Wt = mat.NewDense(2, 1, []float64{2, -1})
	d.B = []float64{0.5, 0}

	code := &tensor.Tensor{Data: []float64{1, 0, 0, 1}, Shape: []int{2, 2}}
	require.NoError(t, d.SetCode(code))
	theta := &tensor.Tensor{Data: []float64{1, 3}, Shape: []int{2, 1}}
	img, err := d.Forward(theta)
	require.NoError(t, err)
	require.Equal(t, []int{2, 1, 2}, img.Shape)
	// row 0: code [1,0] -> [1,0], theta 1 -> [2,-1], b -> [3.5,-1]
	// row 1: code [0,1] -> [0,1], theta 3 -> [6,-3], b -> [6.5,-2]
	assert.Equal(t, []float64{3.5, -1, 6.5, -2}, img.Data)

	g, err := d.Backward(&tensor.Tensor{Data: []float64{1, 1, 1, 0}, Shape: []int{2, 1, 2}})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, g.Data)
}

func TestAffineRequiresCode(t *testing.T) {
	d := NewAffine(2, 1, 2)
	_, err := d.Forward(tensor.New(1, 1))
	require.Error(t, err)

	err = d.SetCode(tensor.New(1, 3))
	require.ErrorIs(t, err, nn.ErrShape)

	require.NoError(t, d.SetCode(tensor.New(2, 2)))
	_, err = d.Forward(tensor.New(3, 1))
	require.ErrorIs(t, err, nn.ErrShape)
}

type sumModel struct{}

func (sumModel) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out := tensor.New(x.Rows(), 1)
	for i := 0; i < x.Rows(); i++ {
		for _, v := range x.Row(i) {
			out.Data[i] += v
		}
	}
	return out, nil
}

func (sumModel) Backward(g *tensor.Tensor) (*tensor.Tensor, error) {
	out := tensor.New(g.Rows(), 3)
	for i := 0; i < g.Rows(); i++ {
		for j := range out.Row(i) {
			out.Row(i)[j] = g.Data[i]
		}
	}
	return out, nil
}

func TestClassifierComposite(t *testing.T) {
	d := NewAffine(1, 2, 3)
	d.Init(1, rand.NewSource(1))
	require.NoError(t, d.SetCode(tensor.New(1, 1)))
	c := &Classifier{Decoder: d, Model: sumModel{}}

	theta := tensor.New(1, 2)
	theta.Data[0], theta.Data[1] = 0.3, -0.2
	out, err := c.Forward(theta)
	require.NoError(t, err)
	require.Equal(t, []int{1, 1}, out.Shape)

	g, err := c.Backward(&tensor.Tensor{Data: []float64{1}, Shape: []int{1, 1}})
	require.NoError(t, err)
	// d(sum image)/d(theta_k) = sum_j Wt[j,k]
	for k := 0; k < 2; k++ {
		assert.InDelta(t, mat.Sum(d.Wt.ColView(k)), g.Data[k], 1e-12)
	}
}

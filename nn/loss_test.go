package nn

import (
	"math"
	"testing"

	"manifold_lib/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftmax(t *testing.T) {
	p := Softmax(tensor.NewWithData([]float64{1, 1, 1, 1}))
	for _, v := range p.Data {
		assert.InDelta(t, 0.25, v, 1e-12)
	}
}

func TestCrossEntropy(t *testing.T) {
	logits := &tensor.Tensor{Data: []float64{0, 0, math.Log(3), 0}, Shape: []int{2, 2}}
	loss, grad, err := CrossEntropy([]int{0, 0}, logits)
	require.NoError(t, err)

	// row 0: p=0.5, row 1: p=0.75
	want := (-math.Log(0.5) - math.Log(0.75)) / 2
	assert.InDelta(t, want, loss, 1e-12)

	// gradient is (softmax - onehot) / N
	assert.InDelta(t, (0.5-1)/2, grad.At(0, 0), 1e-12)
	assert.InDelta(t, 0.5/2, grad.At(0, 1), 1e-12)
	assert.InDelta(t, (0.75-1)/2, grad.At(1, 0), 1e-12)
	assert.InDelta(t, 0.25/2, grad.At(1, 1), 1e-12)
}

func TestCrossEntropyShapeMismatch(t *testing.T) {
	_, _, err := CrossEntropy([]int{0}, tensor.New(2, 3))
	require.ErrorIs(t, err, ErrShape)

	_, _, err = CrossEntropy([]int{0, 3}, tensor.New(2, 3))
	require.Error(t, err)
}

func TestClassificationError(t *testing.T) {
	logits := &tensor.Tensor{Data: []float64{
		2, 1, 0,
		0, 1, 2,
		0, 3, 1,
		1, 0, 0,
	}, Shape: []int{4, 3}}
	e, err := ClassificationError([]int{0, 2, 0, 1}, logits)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, e, 1e-12)
}

func TestArgMaxTiesGoToFirstIndex(t *testing.T) {
	assert.Equal(t, 0, ArgMax([]float64{1, 1}))
	assert.Equal(t, 1, ArgMax([]float64{0, 2, 2}))

	// a tied row counts as a mistake unless the label is the first tied class
	logits := &tensor.Tensor{Data: []float64{1, 1, 1, 1}, Shape: []int{2, 2}}
	e, err := ClassificationError([]int{0, 1}, logits)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, e, 1e-12)
}

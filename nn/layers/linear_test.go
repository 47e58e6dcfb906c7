package layers

import (
	"testing"

	"manifold_lib/tensor"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestLinear_Forward(t *testing.T) {
	lin := NewLinear(3, 2)
	copy(lin.W.Value.Data, []float64{
		1, 2, 3,
		0, 1, 0,
	})
	copy(lin.B.Value.Data, []float64{10, 20})

	x := &tensor.Tensor{Data: []float64{1, 1, 1, 1, 2, 3}, Shape: []int{2, 3}}
	out, err := lin.Forward(x, false)
	require.NoError(t, err)
	require.Equal(t, []int{2, 2}, out.Shape)
	require.Equal(t, []float64{16, 21, 24, 22}, out.Data)
}

func TestLinear_ShapeMismatch(t *testing.T) {
	lin := NewLinear(3, 2)
	_, err := lin.Forward(tensor.New(2, 4), false)
	require.Error(t, err)
}

func TestLinear_BackwardMatchesFiniteDifferences(t *testing.T) {
	lin := NewLinear(4, 3)
	lin.Init(rand.NewSource(7))
	for i := range lin.B.Value.Data {
		lin.B.Value.Data[i] = 0.1 * float64(i)
	}
	x := tensor.New(2, 4)
	for i := range x.Data {
		x.Data[i] = float64(i%5) - 2
	}
	// L = sum(y * c) for a fixed c gives dL/dy = c.
	c := tensor.New(2, 3)
	for i := range c.Data {
		c.Data[i] = float64(i) - 2.5
	}
	loss := func() float64 {
		y, err := lin.Forward(x, false)
		require.NoError(t, err)
		s := 0.0
		for i := range y.Data {
			s += y.Data[i] * c.Data[i]
		}
		return s
	}

	loss()
	gradIn, err := lin.Backward(c, true)
	require.NoError(t, err)

	const h = 1e-6
	for i := range x.Data {
		orig := x.Data[i]
		x.Data[i] = orig + h
		up := loss()
		x.Data[i] = orig - h
		down := loss()
		x.Data[i] = orig
		require.InDelta(t, (up-down)/(2*h), gradIn.Data[i], 1e-6, "input %d", i)
	}
	for i := range lin.W.Value.Data {
		orig := lin.W.Value.Data[i]
		lin.W.Value.Data[i] = orig + h
		up := loss()
		lin.W.Value.Data[i] = orig - h
		down := loss()
		lin.W.Value.Data[i] = orig
		require.InDelta(t, (up-down)/(2*h), lin.W.Grad.Data[i], 1e-6, "weight %d", i)
	}
	require.InDelta(t, c.Data[0]+c.Data[3], lin.B.Grad.Data[0], 1e-12)
}

func TestLinear_BackwardWithoutAccumulate(t *testing.T) {
	lin := NewLinear(2, 2)
	lin.Init(rand.NewSource(1))
	_, err := lin.Forward(tensor.New(1, 2), false)
	require.NoError(t, err)
	g := tensor.New(1, 2)
	g.Data[0] = 1
	_, err = lin.Backward(g, false)
	require.NoError(t, err)
	for _, v := range lin.W.Grad.Data {
		require.Zero(t, v)
	}
	for _, v := range lin.B.Grad.Data {
		require.Zero(t, v)
	}
}

// Package data provides indexed access to image, theta and code arrays
// and the index helpers used to draw batches from them.
package data

import (
	"fmt"
	"sort"

	"manifold_lib/tensor"

	"golang.org/x/exp/rand"
)

// Dataset is read by integer position. Codes rows carry at least the font
// in column 1 and the class in the configured label column.
type Dataset interface {
	Len() int
	Images(indices []int) *tensor.Tensor
	Theta(indices []int) *tensor.Tensor
	Codes(indices []int, column int) []int
}

// Memory keeps the whole dataset in memory.
type Memory struct {
	images *tensor.Tensor
	theta  *tensor.Tensor
	codes  [][]int
}

// NewMemory checks that all arrays agree on the number of samples.
func NewMemory(images, theta *tensor.Tensor, codes [][]int) (*Memory, error) {
	n := images.Rows()
	if theta.Rows() != n || len(codes) != n {
		return nil, fmt.Errorf("data: %d images, %d theta rows and %d codes", n, theta.Rows(), len(codes))
	}
	return &Memory{images: images, theta: theta, codes: codes}, nil
}

func (m *Memory) Len() int { return m.images.Rows() }

func (m *Memory) Images(indices []int) *tensor.Tensor { return m.images.Take(indices) }

func (m *Memory) Theta(indices []int) *tensor.Tensor { return m.theta.Take(indices) }

func (m *Memory) Codes(indices []int, column int) []int {
	out := make([]int, len(indices))
	for i, idx := range indices {
		out[i] = m.codes[idx][column]
	}
	return out
}

// view restricts a dataset to a fixed list of positions.
type view struct {
	base    Dataset
	indices []int
}

func (v *view) Len() int { return len(v.indices) }

func (v *view) remap(indices []int) []int {
	out := make([]int, len(indices))
	for i, idx := range indices {
		out[i] = v.indices[idx]
	}
	return out
}

func (v *view) Images(indices []int) *tensor.Tensor { return v.base.Images(v.remap(indices)) }

func (v *view) Theta(indices []int) *tensor.Tensor { return v.base.Theta(v.remap(indices)) }

func (v *view) Codes(indices []int, column int) []int {
	return v.base.Codes(v.remap(indices), column)
}

// Subset keeps the first n samples, or n random samples in ascending order
// when rng is non-nil. A negative n keeps everything.
func Subset(ds Dataset, n int, rng *rand.Rand) (Dataset, error) {
	if n < 0 || n == ds.Len() && rng == nil {
		return ds, nil
	}
	if n > ds.Len() {
		return nil, fmt.Errorf("data: requested %d samples from %d", n, ds.Len())
	}
	var indices []int
	if rng != nil {
		indices = append(indices, Permutation(ds.Len(), rng)[:n]...)
		sort.Ints(indices)
	} else {
		indices = make([]int, n)
		for i := range indices {
			indices[i] = i
		}
	}
	return &view{base: ds, indices: indices}, nil
}

package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Tensor is a simple n-D array backed by a flat []float64.
// The first dimension is the batch dimension for every batched helper below.
type Tensor struct {
	Data  []float64
	Shape []int
}

// New allocates a Tensor of given shape (product of dims = len(Data)).
func New(shape ...int) *Tensor {
	total := 1
	for _, d := range shape {
		total *= d
	}
	return &Tensor{
		Data:  make([]float64, total),
		Shape: append([]int(nil), shape...),
	}
}

// NewWithData creates a 1-D tensor from existing data slice.
func NewWithData(data []float64) *Tensor {
	return &Tensor{
		Data:  append([]float64(nil), data...),
		Shape: []int{len(data)},
	}
}

// SameShape reports whether a and b have identical shapes.
func SameShape(a, b *Tensor) bool {
	if len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return true
}

// Add returns a+b (same shape), or error if shapes differ.
func Add(a, b *Tensor) (*Tensor, error) {
	if !SameShape(a, b) {
		return nil, fmt.Errorf("shape mismatch: %v vs %v", a.Shape, b.Shape)
	}
	out := New(a.Shape...)
	for i := range a.Data {
		out.Data[i] = a.Data[i] + b.Data[i]
	}
	return out, nil
}

// Sub returns a-b (same shape), or error if shapes differ.
func Sub(a, b *Tensor) (*Tensor, error) {
	if !SameShape(a, b) {
		return nil, fmt.Errorf("shape mismatch: %v vs %v", a.Shape, b.Shape)
	}
	out := New(a.Shape...)
	for i := range a.Data {
		out.Data[i] = a.Data[i] - b.Data[i]
	}
	return out, nil
}

// Scale multiplies every element by s in place and returns t.
func (t *Tensor) Scale(s float64) *Tensor {
	for i := range t.Data {
		t.Data[i] *= s
	}
	return t
}

// MatMul returns a×b (2-D only), or error if dims mismatch.
func MatMul(a, b *Tensor) (*Tensor, error) {
	if len(a.Shape) != 2 || len(b.Shape) != 2 {
		return nil, fmt.Errorf("MatMul requires 2-D tensors, got %v and %v", a.Shape, b.Shape)
	}
	r, k := a.Shape[0], a.Shape[1]
	k2, c := b.Shape[0], b.Shape[1]
	if k != k2 {
		return nil, fmt.Errorf("inner dimensions must match: %d vs %d", k, k2)
	}
	out := New(r, c)
	out.Dense().Mul(a.Dense(), b.Dense())
	return out, nil
}

// Rows returns the size of the batch dimension.
func (t *Tensor) Rows() int {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}

// RowSize returns the number of elements in one batch row.
func (t *Tensor) RowSize() int {
	size := 1
	for _, d := range t.Shape[1:] {
		size *= d
	}
	return size
}

// Row returns the i-th batch row as a slice sharing storage with t.
func (t *Tensor) Row(i int) []float64 {
	n := t.RowSize()
	return t.Data[i*n : (i+1)*n]
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		Data:  append([]float64(nil), t.Data...),
		Shape: append([]int(nil), t.Shape...),
	}
}

// Reshape returns a tensor sharing t's data with a new shape.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	total := 1
	for _, d := range shape {
		total *= d
	}
	if total != len(t.Data) {
		return nil, fmt.Errorf("cannot reshape %v into %v", t.Shape, shape)
	}
	return &Tensor{Data: t.Data, Shape: append([]int(nil), shape...)}, nil
}

// Slice copies batch rows [lo, hi).
func (t *Tensor) Slice(lo, hi int) *Tensor {
	if lo < 0 || hi > t.Rows() || lo > hi {
		panic(fmt.Sprintf("Slice: range [%d, %d) out of bounds for %d rows", lo, hi, t.Rows()))
	}
	n := t.RowSize()
	shape := append([]int{hi - lo}, t.Shape[1:]...)
	out := New(shape...)
	copy(out.Data, t.Data[lo*n:hi*n])
	return out
}

// Take gathers the given batch rows in order; indices may repeat.
func (t *Tensor) Take(indices []int) *Tensor {
	n := t.RowSize()
	shape := append([]int{len(indices)}, t.Shape[1:]...)
	out := New(shape...)
	for i, idx := range indices {
		copy(out.Data[i*n:(i+1)*n], t.Row(idx))
	}
	return out
}

// Concat stacks tensors along the batch dimension. Row sizes must agree;
// the trailing shape of the first tensor is kept.
func Concat(ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("Concat: no tensors")
	}
	rowSize := ts[0].RowSize()
	rows := 0
	for _, t := range ts {
		if t.RowSize() != rowSize {
			return nil, fmt.Errorf("Concat: row size mismatch: %v vs %v", ts[0].Shape, t.Shape)
		}
		rows += t.Rows()
	}
	shape := append([]int{rows}, ts[0].Shape[1:]...)
	out := New(shape...)
	offset := 0
	for _, t := range ts {
		offset += copy(out.Data[offset:], t.Data)
	}
	return out, nil
}

// Dense returns a rows×rowSize matrix view sharing storage with t.
// 1-D tensors are viewed as a single column.
func (t *Tensor) Dense() *mat.Dense {
	if len(t.Shape) == 1 {
		return mat.NewDense(t.Shape[0], 1, t.Data)
	}
	return mat.NewDense(t.Rows(), t.RowSize(), t.Data)
}

// At returns the element at the given indices.
// For a 4D tensor [a, b, c, d], At(i, j, k, l) returns the element at position [i][j][k][l].
func (t *Tensor) At(indices ...int) float64 {
	return t.Data[t.offset("At", indices)]
}

// Set sets the element at the given indices to the given value.
func (t *Tensor) Set(value float64, indices ...int) {
	t.Data[t.offset("Set", indices)] = value
}

func (t *Tensor) offset(op string, indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("%s: expected %d indices, got %d", op, len(t.Shape), len(indices)))
	}
	idx := 0
	stride := 1
	for i := len(indices) - 1; i >= 0; i-- {
		if indices[i] < 0 || indices[i] >= t.Shape[i] {
			panic(fmt.Sprintf("%s: index %d out of bounds for dimension %d (shape: %v)", op, indices[i], i, t.Shape))
		}
		idx += indices[i] * stride
		stride *= t.Shape[i]
	}
	return idx
}

package tensor

import "testing"

func TestNewShape(t *testing.T) {
	t1 := New(2, 3)
	if len(t1.Data) != 6 {
		t.Fatalf("expected 6 elements, got %d", len(t1.Data))
	}
	if len(t1.Shape) != 2 || t1.Shape[0] != 2 || t1.Shape[1] != 3 {
		t.Fatalf("unexpected shape: %v", t1.Shape)
	}
}

func TestAdd(t *testing.T) {
	a := &Tensor{Data: []float64{1, 2, 3}, Shape: []int{3}}
	b := &Tensor{Data: []float64{4, 5, 6}, Shape: []int{3}}
	c, err := Add(a, b)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{5, 7, 9}
	for i := range want {
		if c.Data[i] != want[i] {
			t.Errorf("at %d, got %f, want %f", i, c.Data[i], want[i])
		}
	}
	if _, err := Add(a, New(2)); err == nil {
		t.Fatalf("expected shape mismatch error")
	}
}

func TestMatMul(t *testing.T) {
	a := &Tensor{Data: []float64{1, 2, 3, 4}, Shape: []int{2, 2}}
	b := &Tensor{Data: []float64{5, 6, 7, 8}, Shape: []int{2, 2}}
	c, err := MatMul(a, b)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{19, 22, 43, 50}
	for i := range want {
		if c.Data[i] != want[i] {
			t.Errorf("at %d, got %f, want %f", i, c.Data[i], want[i])
		}
	}
}

func TestSliceTakeConcat(t *testing.T) {
	a := New(4, 2)
	for i := range a.Data {
		a.Data[i] = float64(i)
	}

	s := a.Slice(1, 3)
	if s.Rows() != 2 || s.Data[0] != 2 || s.Data[3] != 5 {
		t.Fatalf("unexpected slice: %v %v", s.Shape, s.Data)
	}
	s.Data[0] = 100
	if a.Data[2] != 2 {
		t.Fatalf("slice must copy, source changed to %f", a.Data[2])
	}

	tk := a.Take([]int{3, 3, 0})
	want := []float64{6, 7, 6, 7, 0, 1}
	for i := range want {
		if tk.Data[i] != want[i] {
			t.Errorf("take at %d, got %f, want %f", i, tk.Data[i], want[i])
		}
	}

	c, err := Concat(a.Slice(0, 1), tk)
	if err != nil {
		t.Fatal(err)
	}
	if c.Rows() != 4 || c.Shape[1] != 2 {
		t.Fatalf("unexpected concat shape: %v", c.Shape)
	}
	if _, err := Concat(a, New(1, 3)); err == nil {
		t.Fatalf("expected row size mismatch error")
	}
}

func TestDenseView(t *testing.T) {
	a := New(2, 2, 3)
	m := a.Dense()
	r, c := m.Dims()
	if r != 2 || c != 6 {
		t.Fatalf("expected 2x6 view, got %dx%d", r, c)
	}
	m.Set(1, 4, 9)
	if a.At(1, 1, 1) != 9 {
		t.Fatalf("dense view must share storage")
	}
}

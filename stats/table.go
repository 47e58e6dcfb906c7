package stats

import (
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Table is an append-only growable matrix of fixed width. Rows are never
// modified after Append.
type Table struct {
	width int
	data  []float64
}

// NewTable allocates an empty table of width columns.
func NewTable(width int) *Table {
	return &Table{width: width}
}

func (t *Table) Width() int { return t.width }

func (t *Table) Len() int { return len(t.data) / t.width }

// Append adds one row; values must have exactly Width entries.
func (t *Table) Append(values []float64) error {
	if len(values) != t.width {
		return fmt.Errorf("stats: row has %d values, table has %d columns", len(values), t.width)
	}
	t.data = append(t.data, values...)
	return nil
}

// Row returns a copy of row i.
func (t *Table) Row(i int) []float64 {
	return append([]float64(nil), t.data[i*t.width:(i+1)*t.width]...)
}

// Column returns a copy of column c over all rows.
func (t *Table) Column(c Column) []float64 {
	n := t.Len()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = t.data[i*t.width+int(c)]
	}
	return out
}

// Last returns a copy of the most recent row, or nil.
func (t *Table) Last() []float64 {
	if t.Len() == 0 {
		return nil
	}
	return t.Row(t.Len() - 1)
}

// WindowedMean is the mean of column c over the last window rows. A
// shorter history is used as is; an empty table yields NaN.
func (t *Table) WindowedMean(c Column, window int) float64 {
	n := t.Len()
	lo := n - window
	if lo < 0 {
		lo = 0
	}
	if lo >= n {
		return math.NaN()
	}
	return stat.Mean(t.Column(c)[lo:], nil)
}

// Dense returns a copy of the table as a matrix; nil when empty.
func (t *Table) Dense() *mat.Dense {
	if t.Len() == 0 {
		return nil
	}
	return mat.NewDense(t.Len(), t.width, append([]float64(nil), t.data...))
}

// WriteTo stores the table in gonum's binary matrix format. An empty
// table writes nothing.
func (t *Table) WriteTo(w io.Writer) (int64, error) {
	if t.Len() == 0 {
		return 0, nil
	}
	n, err := t.Dense().MarshalBinaryTo(w)
	return int64(n), err
}

// ReadTable loads a table written by WriteTo. Empty input yields an empty
// table of width columns; otherwise the stored width must match.
func ReadTable(r io.Reader, width int) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("stats: read table: %w", err)
	}
	t := NewTable(width)
	if len(raw) == 0 {
		return t, nil
	}
	var m mat.Dense
	if err := m.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("stats: decode table: %w", err)
	}
	rows, cols := m.Dims()
	if cols != width {
		return nil, fmt.Errorf("stats: stored table has %d columns, want %d", cols, width)
	}
	for i := 0; i < rows; i++ {
		if err := t.Append(m.RawRowView(i)); err != nil {
			return nil, err
		}
	}
	return t, nil
}

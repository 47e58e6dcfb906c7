package data

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// ThetaBounds returns the per-dimension minimum and maximum of theta over
// all samples of ds.
func ThetaBounds(ds Dataset) (lo, hi []float64, err error) {
	if ds.Len() == 0 {
		return nil, nil, fmt.Errorf("data: bounds of an empty dataset")
	}
	all := make([]int, ds.Len())
	for i := range all {
		all[i] = i
	}
	theta := ds.Theta(all)
	d := theta.RowSize()
	lo = make([]float64, d)
	hi = make([]float64, d)
	col := make([]float64, theta.Rows())
	for j := 0; j < d; j++ {
		for i := range col {
			col[i] = theta.Data[i*d+j]
		}
		lo[j] = floats.Min(col)
		hi[j] = floats.Max(col)
	}
	return lo, hi, nil
}

package stats

import (
	"manifold_lib/tensor"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// CensoredMean summarises attack success sentinels: the mean iteration of
// first success over successful samples (-1 if none succeeded) and the
// fraction of successful samples.
func CensoredMean(success []int) (iterations, rate float64) {
	if len(success) == 0 {
		return -1, 0
	}
	var hits []float64
	for _, s := range success {
		if s >= 0 {
			hits = append(hits, float64(s))
		}
	}
	rate = float64(len(hits)) / float64(len(success))
	if len(hits) == 0 {
		return -1, rate
	}
	return stat.Mean(hits, nil), rate
}

// MeanNorm is the mean over rows of the order-norm of each flattened
// perturbation.
func MeanNorm(perturbations *tensor.Tensor, order float64) float64 {
	n := perturbations.Rows()
	if n == 0 {
		return 0
	}
	norms := make([]float64, n)
	for i := range norms {
		norms[i] = floats.Norm(perturbations.Row(i), order)
	}
	return stat.Mean(norms, nil)
}

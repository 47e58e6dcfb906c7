package nn

import (
	"fmt"
	"math"

	"manifold_lib/tensor"
)

// Softmax applies the softmax function to a 1-D tensor.
func Softmax(logits *tensor.Tensor) *tensor.Tensor {
	out := tensor.New(len(logits.Data))
	softmaxInto(out.Data, logits.Data)
	return out
}

// SoftmaxRows applies softmax to every batch row of logits.
func SoftmaxRows(logits *tensor.Tensor) *tensor.Tensor {
	out := tensor.New(logits.Shape...)
	for i := 0; i < logits.Rows(); i++ {
		softmaxInto(out.Row(i), logits.Row(i))
	}
	return out
}

func softmaxInto(dst, src []float64) {
	maxLogit := src[0]
	for _, v := range src {
		if v > maxLogit {
			maxLogit = v
		}
	}
	expSum := 0.0
	for i, v := range src {
		dst[i] = math.Exp(v - maxLogit)
		expSum += dst[i]
	}
	for i := range dst {
		dst[i] /= expSum
	}
}

func checkLabels(labels []int, logits *tensor.Tensor) error {
	if len(logits.Shape) != 2 || logits.Rows() != len(labels) {
		return fmt.Errorf("%w: %d labels for logits %v", ErrShape, len(labels), logits.Shape)
	}
	for _, y := range labels {
		if y < 0 || y >= logits.Shape[1] {
			return fmt.Errorf("label %d out of range for %d classes", y, logits.Shape[1])
		}
	}
	return nil
}

// CrossEntropy returns the mean softmax cross-entropy of logits against the
// true labels together with its gradient w.r.t. the logits.
func CrossEntropy(labels []int, logits *tensor.Tensor) (float64, *tensor.Tensor, error) {
	if err := checkLabels(labels, logits); err != nil {
		return 0, nil, err
	}
	n := float64(len(labels))
	grad := SoftmaxRows(logits)
	loss := 0.0
	for i, y := range labels {
		row := grad.Row(i)
		p := row[y]
		if p < 1e-12 {
			p = 1e-12
		}
		loss -= math.Log(p)
		row[y] -= 1
		for j := range row {
			row[j] /= n
		}
	}
	return loss / n, grad, nil
}

// ClassificationError returns the fraction of rows whose arg-max differs
// from the true label.
func ClassificationError(labels []int, logits *tensor.Tensor) (float64, error) {
	if err := checkLabels(labels, logits); err != nil {
		return 0, err
	}
	wrong := 0
	for i, y := range labels {
		if ArgMax(logits.Row(i)) != y {
			wrong++
		}
	}
	return float64(wrong) / float64(len(labels)), nil
}

// ArgMax returns the index of the largest value (first on ties).
func ArgMax(v []float64) int {
	best := 0
	for i := range v {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

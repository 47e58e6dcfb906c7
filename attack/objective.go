package attack

import (
	"fmt"
	"math"

	"manifold_lib/nn"
	"manifold_lib/tensor"
)

// Objective scores logits for an untargeted search. Lower values are more
// adversarial; flipped marks rows already misclassified.
type Objective interface {
	Evaluate(logits *tensor.Tensor, labels []int) (values []float64, grad *tensor.Tensor, flipped []bool)
}

// NewObjective returns the objective registered under name.
func NewObjective(name string) (Objective, error) {
	switch name {
	case "UntargetedF0":
		return UntargetedF0{}, nil
	case "UntargetedF6":
		return UntargetedF6{}, nil
	}
	return nil, fmt.Errorf("attack: unknown objective %q", name)
}

// UntargetedF0 is the negative cross-entropy of the true label.
type UntargetedF0 struct{}

func (UntargetedF0) Evaluate(logits *tensor.Tensor, labels []int) ([]float64, *tensor.Tensor, []bool) {
	grad := nn.SoftmaxRows(logits)
	values := make([]float64, len(labels))
	flipped := make([]bool, len(labels))
	for i, y := range labels {
		row := grad.Row(i)
		values[i] = math.Log(math.Max(row[y], 1e-12))
		flipped[i] = nn.ArgMax(logits.Row(i)) != y
		row[y] -= 1
		for j := range row {
			row[j] = -row[j]
		}
	}
	return values, grad, flipped
}

// UntargetedF6 is the logit margin max(Z_y - max_{j≠y} Z_j, -Kappa).
type UntargetedF6 struct {
	Kappa float64
}

func (o UntargetedF6) Evaluate(logits *tensor.Tensor, labels []int) ([]float64, *tensor.Tensor, []bool) {
	grad := tensor.New(logits.Shape...)
	values := make([]float64, len(labels))
	flipped := make([]bool, len(labels))
	for i, y := range labels {
		row := logits.Row(i)
		other := -1
		for j := range row {
			if j != y && (other < 0 || row[j] > row[other]) {
				other = j
			}
		}
		margin := row[y] - row[other]
		flipped[i] = margin < 0
		values[i] = math.Max(margin, -o.Kappa)
		if margin > -o.Kappa {
			g := grad.Row(i)
			g[y] = 1
			g[other] = -1
		}
	}
	return values, grad, flipped
}

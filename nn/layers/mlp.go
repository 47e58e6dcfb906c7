package layers

import (
	"fmt"

	"manifold_lib/nn"

	"golang.org/x/exp/rand"
)

// NewMLP builds Flatten → [Linear → Activation → Dropout?]* → Linear with
// Glorot-initialised weights drawn from src.
func NewMLP(inDim int, units []int, classes int, activation string, dropout float64, src rand.Source) (*nn.Sequential, error) {
	if inDim <= 0 || classes <= 0 {
		return nil, fmt.Errorf("mlp: invalid dimensions %d→%d", inDim, classes)
	}
	seq := &nn.Sequential{Layers: []nn.Module{NewFlatten()}}
	prev := inDim
	for _, u := range units {
		if u <= 0 {
			return nil, fmt.Errorf("mlp: invalid hidden units %d", u)
		}
		lin := NewLinear(prev, u)
		lin.Init(src)
		act, err := NewActivation(activation)
		if err != nil {
			return nil, err
		}
		seq.Layers = append(seq.Layers, lin, act)
		if dropout > 0 {
			drop, err := NewDropout(dropout, src)
			if err != nil {
				return nil, err
			}
			seq.Layers = append(seq.Layers, drop)
		}
		prev = u
	}
	out := NewLinear(prev, classes)
	out.Init(src)
	seq.Layers = append(seq.Layers, out)
	return seq, nil
}

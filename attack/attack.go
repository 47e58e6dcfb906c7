// Package attack defines the contract of batch adversarial searches and
// provides gradient-descent implementations over a differentiable model.
package attack

import (
	"errors"
	"fmt"
	"sort"

	"manifold_lib/nn"
	"manifold_lib/tensor"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat"
)

// ErrNotInitialized is returned by Run when InitializeRandom was not called.
var ErrNotInitialized = errors.New("attack: InitializeRandom must be called before Run")

// Failed is the success sentinel of a sample the search never flipped.
const Failed = -1

// Bound is a per-dimension box on attacked inputs (input + perturbation).
type Bound struct {
	Min, Max []float64
}

// Validate checks that the bound matches dim and is not inverted.
func (b *Bound) Validate(dim int) error {
	if len(b.Min) != dim || len(b.Max) != dim {
		return fmt.Errorf("attack: bound has %d/%d dimensions, inputs have %d", len(b.Min), len(b.Max), dim)
	}
	for j := range b.Min {
		if b.Min[j] > b.Max[j] {
			return fmt.Errorf("attack: bound dimension %d inverted: %g > %g", j, b.Min[j], b.Max[j])
		}
	}
	return nil
}

// clip moves delta so that x+delta lies inside the box.
func (b *Bound) clip(x, delta []float64) {
	for j := range delta {
		v := x[j] + delta[j]
		if v < b.Min[j] {
			v = b.Min[j]
		} else if v > b.Max[j] {
			v = b.Max[j]
		}
		delta[j] = v - x[j]
	}
}

// Config configures one attack instance. Pointer fields are optional: a
// variant that does not support an option ignores it.
type Config struct {
	Epsilon       float64
	MaxIterations int
	BaseLR        float64
	TrainingMode  bool

	// C0 weighs the perturbation norm, C1 the bound violation (when the
	// bound is not enforced by projection) and C2 the objective.
	C0, C1, C2     *float64
	MaxProjections *int
	Bound          *Bound

	// Src seeds InitializeRandom; nil uses a fixed seed.
	Src    rand.Source
	Logger logrus.FieldLogger
}

// Float returns a pointer to v for optional Config fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v for optional Config fields.
func Int(v int) *int { return &v }

func valueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// Result holds, per input row and in input order, the iteration of first
// success (Failed if none) and the perturbation found.
type Result struct {
	Success       []int
	Perturbations *tensor.Tensor
}

// Attack is a bounded-iteration adversarial search over one batch.
// Implementations read the model but never change its parameters.
type Attack interface {
	// InitializeRandom draws a random feasible starting perturbation.
	InitializeRandom() error
	// Run executes the search. In training mode it always spends the whole
	// iteration budget; otherwise successful samples stop moving.
	Run(obj Objective, verbose bool) (*Result, error)
	TrainingMode() bool
}

// Factory constructs an attack on inputs with true labels.
type Factory func(model nn.Differentiable, inputs *tensor.Tensor, labels []int, cfg Config) (Attack, error)

var registry = map[string]Factory{
	"UntargetedBatchL2ClippedGradientDescent": NewL2ClippedGradientDescent,
	"UntargetedBatchLinfGradientDescent":      NewLinfGradientDescent,
}

// Register makes an attack available by name, replacing any previous entry.
func Register(name string, f Factory) {
	registry[name] = f
}

// Names lists the registered attacks in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New constructs the attack registered under name.
func New(name string, model nn.Differentiable, inputs *tensor.Tensor, labels []int, cfg Config) (Attack, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("attack: unknown attack %q", name)
	}
	return f(model, inputs, labels, cfg)
}

// search holds the state shared by the gradient-descent variants.
type search struct {
	model  nn.Differentiable
	inputs *tensor.Tensor
	labels []int
	cfg    Config
	log    logrus.FieldLogger

	delta       *tensor.Tensor
	initialized bool
}

func newSearch(model nn.Differentiable, inputs *tensor.Tensor, labels []int, cfg Config) (*search, error) {
	if inputs.Rows() != len(labels) {
		return nil, fmt.Errorf("attack: %d inputs but %d labels", inputs.Rows(), len(labels))
	}
	if cfg.Epsilon <= 0 {
		return nil, fmt.Errorf("attack: epsilon must be positive, got %g", cfg.Epsilon)
	}
	if cfg.MaxIterations < 0 {
		return nil, fmt.Errorf("attack: negative iteration budget %d", cfg.MaxIterations)
	}
	if cfg.Bound != nil {
		if err := cfg.Bound.Validate(inputs.RowSize()); err != nil {
			return nil, err
		}
	}
	if cfg.Src == nil {
		cfg.Src = rand.NewSource(1)
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &search{
		model:  model,
		inputs: inputs,
		labels: labels,
		cfg:    cfg,
		log:    log,
		delta:  tensor.New(inputs.Shape...),
	}, nil
}

func (s *search) TrainingMode() bool { return s.cfg.TrainingMode }

// run drives the shared loop; step updates the perturbation of row i from
// its input gradient.
func (s *search) run(obj Objective, verbose bool, step func(i int, grad []float64)) (*Result, error) {
	if !s.initialized {
		return nil, ErrNotInitialized
	}
	n := s.inputs.Rows()
	success := make([]int, n)
	active := make([]bool, n)
	for i := range success {
		success[i] = Failed
		active[i] = true
	}
	c2 := valueOr(s.cfg.C2, 1)

	for it := 0; it <= s.cfg.MaxIterations; it++ {
		x, err := tensor.Add(s.inputs, s.delta)
		if err != nil {
			return nil, err
		}
		logits, err := s.model.Forward(x)
		if err != nil {
			return nil, fmt.Errorf("attack: forward at iteration %d: %w", it, err)
		}
		values, gradLogits, flipped := obj.Evaluate(logits, s.labels)

		remaining := 0
		for i := range success {
			if flipped[i] && success[i] == Failed {
				success[i] = it
			}
			if !s.cfg.TrainingMode && success[i] != Failed {
				active[i] = false
			}
			if active[i] {
				remaining++
			}
		}
		if verbose {
			s.log.WithFields(logrus.Fields{
				"iteration": it,
				"objective": mean(values),
				"success":   successRate(success),
				"active":    remaining,
			}).Debug("attack iteration")
		}
		if it == s.cfg.MaxIterations || remaining == 0 {
			break
		}

		gradLogits.Scale(c2)
		gradInput, err := s.model.Backward(gradLogits)
		if err != nil {
			return nil, fmt.Errorf("attack: backward at iteration %d: %w", it, err)
		}
		for i := 0; i < n; i++ {
			if active[i] {
				step(i, gradInput.Row(i))
			}
		}
	}
	return &Result{Success: success, Perturbations: s.delta.Clone()}, nil
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return stat.Mean(v, nil)
}

func successRate(success []int) float64 {
	if len(success) == 0 {
		return 0
	}
	k := 0
	for _, s := range success {
		if s >= 0 {
			k++
		}
	}
	return float64(k) / float64(len(success))
}

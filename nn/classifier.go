package nn

import (
	"fmt"

	"manifold_lib/tensor"
)

// Mode is the evaluation/training flag of a Classifier.
type Mode int

const (
	ModeEval Mode = iota
	ModeTrain
)

func (m Mode) String() string {
	if m == ModeTrain {
		return "train"
	}
	return "eval"
}

// ModeError is the panic value raised when a model is used through a token
// whose mode no longer matches the model's flag.
type ModeError struct {
	Want, Got Mode
}

func (e ModeError) Error() string {
	return fmt.Sprintf("nn: model is in %s mode, expected %s", e.Got, e.Want)
}

// Classifier maps image batches to class logits and carries the
// evaluation/training flag. Access goes through the tokens returned by
// Eval and Train.
type Classifier struct {
	net  Module
	mode Mode
}

// NewClassifier wraps net. A new classifier starts in training mode.
func NewClassifier(net Module) *Classifier {
	return &Classifier{net: net, mode: ModeTrain}
}

// Mode reports the current flag.
func (c *Classifier) Mode() Mode { return c.mode }

// Training reports whether the flag reads training.
func (c *Classifier) Training() bool { return c.mode == ModeTrain }

// Params exposes the parameters, first layer first.
func (c *Classifier) Params() []*Param { return c.net.Params() }

// MustBe panics with a ModeError unless the flag equals want.
func (c *Classifier) MustBe(want Mode) {
	if c.mode != want {
		panic(ModeError{Want: want, Got: c.mode})
	}
}

// Eval flips the model into evaluation mode and returns the read-only token.
func (c *Classifier) Eval() *Evaluating {
	c.mode = ModeEval
	return &Evaluating{c: c}
}

// Train flips the model into training mode and returns the update token.
func (c *Classifier) Train() *Trainable {
	c.mode = ModeTrain
	return &Trainable{c: c}
}

// Evaluating is the read-only view handed to attacks and evaluation. It
// never touches parameter gradients.
type Evaluating struct {
	c *Classifier
}

// Forward runs the network in evaluation mode.
func (e *Evaluating) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	e.c.MustBe(ModeEval)
	return e.c.net.Forward(x, false)
}

// Backward returns the input gradient of the last Forward.
func (e *Evaluating) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	e.c.MustBe(ModeEval)
	return e.c.net.Backward(gradOut, false)
}

// Trainable is the update view used by the training step.
type Trainable struct {
	c *Classifier
}

// Forward runs the network in training mode.
func (t *Trainable) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	t.c.MustBe(ModeTrain)
	return t.c.net.Forward(x, true)
}

// Backward accumulates parameter gradients for the last Forward.
func (t *Trainable) Backward(gradOut *tensor.Tensor) error {
	t.c.MustBe(ModeTrain)
	_, err := t.c.net.Backward(gradOut, true)
	return err
}

// ZeroGrad clears all accumulated parameter gradients.
func (t *Trainable) ZeroGrad() {
	t.c.MustBe(ModeTrain)
	for _, p := range t.c.net.Params() {
		for i := range p.Grad.Data {
			p.Grad.Data[i] = 0
		}
	}
}

// Params returns the parameters to update.
func (t *Trainable) Params() []*Param {
	t.c.MustBe(ModeTrain)
	return t.c.net.Params()
}

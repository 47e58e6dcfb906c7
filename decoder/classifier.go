package decoder

import (
	"manifold_lib/nn"
	"manifold_lib/tensor"
)

// Classifier chains a decoder and a read-only classifier so that an
// attack can search over theta directly.
type Classifier struct {
	Decoder Decoder
	Model   nn.Differentiable
}

// Forward decodes theta and classifies the images.
func (c *Classifier) Forward(theta *tensor.Tensor) (*tensor.Tensor, error) {
	images, err := c.Decoder.Forward(theta)
	if err != nil {
		return nil, err
	}
	return c.Model.Forward(images)
}

// Backward propagates a logit gradient through classifier and decoder.
func (c *Classifier) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	g, err := c.Model.Backward(gradOut)
	if err != nil {
		return nil, err
	}
	return c.Decoder.Backward(g)
}

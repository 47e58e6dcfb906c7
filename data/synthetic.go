package data

import (
	"fmt"

	"manifold_lib/decoder"
	"manifold_lib/tensor"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// SyntheticConfig sizes a generated dataset.
type SyntheticConfig struct {
	Samples     int
	Fonts       int
	Classes     int
	LabelColumn int
	// ThetaScale is the half-width of the uniform theta distribution.
	ThetaScale float64
}

// Synthetic renders a dataset with dec from uniformly drawn theta and
// random font/class codes. Codes rows are [index, font, ..., class] with the
// class stored in LabelColumn.
func Synthetic(cfg SyntheticConfig, dec *decoder.Affine, rng *rand.Rand) (*Memory, error) {
	if cfg.LabelColumn <= FontColumn {
		return nil, fmt.Errorf("data: label column %d must come after the font column", cfg.LabelColumn)
	}
	if cfg.Samples <= 0 || cfg.Fonts <= 0 || cfg.Classes <= 0 {
		return nil, fmt.Errorf("data: invalid synthetic sizes %+v", cfg)
	}
	if dec.CodeDim() != cfg.Fonts+cfg.Classes {
		return nil, fmt.Errorf("data: decoder code dimension %d, want %d", dec.CodeDim(), cfg.Fonts+cfg.Classes)
	}

	u := distuv.Uniform{Min: -cfg.ThetaScale, Max: cfg.ThetaScale, Src: rng}
	theta := tensor.New(cfg.Samples, dec.LatentDim())
	for i := range theta.Data {
		theta.Data[i] = u.Rand()
	}
	codes := make([][]int, cfg.Samples)
	fonts := make([]int, cfg.Samples)
	classes := make([]int, cfg.Samples)
	for i := range codes {
		fonts[i] = rng.Intn(cfg.Fonts)
		classes[i] = rng.Intn(cfg.Classes)
		row := make([]int, cfg.LabelColumn+1)
		row[0] = i
		row[FontColumn] = fonts[i]
		row[cfg.LabelColumn] = classes[i]
		codes[i] = row
	}

	code, err := OneHotCodes(fonts, classes, cfg.Fonts, cfg.Classes)
	if err != nil {
		return nil, err
	}
	if err := dec.SetCode(code); err != nil {
		return nil, err
	}
	images, err := dec.Forward(theta)
	if err != nil {
		return nil, fmt.Errorf("data: render synthetic images: %w", err)
	}
	return NewMemory(images, theta, codes)
}

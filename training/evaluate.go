package training

import (
	"context"
	"fmt"
	"time"

	"manifold_lib/data"
	"manifold_lib/nn"
	"manifold_lib/stats"
	"manifold_lib/tensor"
)

// passStats accumulates per-batch means of one evaluation pass.
type passStats struct {
	loss, err float64

	success, iterations, norm float64
}

func (p *passStats) divide(n int) {
	d := float64(n)
	p.loss /= d
	p.err /= d
	p.success /= d
	p.iterations /= d
	p.norm /= d
}

// Test evaluates the model on clean, pixel-attacked and decoder-attacked
// test samples without touching its parameters, and records a test row.
// Batches clip at the end of the sample range.
func (t *Trainer) Test(ctx context.Context) (stats.Row, error) {
	var row stats.Row
	if err := checkAttackSamples(t.cfg.AttackSamples, t.test.Len()); err != nil {
		return row, err
	}
	start := time.Now()
	defer func() { t.timing.TestTime += time.Since(start) }()

	eval := t.model.Eval()
	t.model.MustBe(nn.ModeEval)

	clean, err := t.testClean(ctx, eval)
	if err != nil {
		return row, err
	}
	pixel, err := t.testPixel(ctx, eval)
	if err != nil {
		return row, err
	}
	dec, err := t.testDecoder(ctx, eval)
	if err != nil {
		return row, err
	}
	t.model.MustBe(nn.ModeEval)

	row.Loss, row.Error = clean.loss, clean.err
	row.PerturbationLoss, row.PerturbationError = pixel.loss, pixel.err
	row.Success, row.Iterations, row.Norm = pixel.success, pixel.iterations, pixel.norm
	row.DecoderPerturbationLoss, row.DecoderPerturbationError = dec.loss, dec.err
	row.DecoderSuccess, row.DecoderIterations, row.DecoderNorm = dec.success, dec.iterations, dec.norm

	numBatches := t.numTrainBatches()
	row.Progress(t.epoch*numBatches, numBatches, t.cfg.BatchSize, t.cfg.Pixel.MaxIterations)
	if err := t.agg.RecordTest(row); err != nil {
		return row, err
	}
	if t.metrics != nil {
		t.metrics.ObserveRow("test", t.agg.Test.Last())
	}

	log := t.log.WithField("epoch", t.epoch)
	log.Infof("test %g (%g) %g (%g) %g (%g)",
		row.Loss, row.Error, row.PerturbationLoss, row.PerturbationError, row.DecoderPerturbationLoss, row.DecoderPerturbationError)
	log.Infof("test %g (%g, %g) %g (%g, %g)",
		row.Success, row.Iterations, row.Norm, row.DecoderSuccess, row.DecoderIterations, row.DecoderNorm)
	return row, nil
}

func (t *Trainer) testClean(ctx context.Context, eval *nn.Evaluating) (passStats, error) {
	var p passStats
	n, bs := t.test.Len(), t.cfg.BatchSize
	numBatches := data.NumBatches(n, bs)
	for b := 0; b < numBatches; b++ {
		if err := ctx.Err(); err != nil {
			return p, err
		}
		indices := data.TakeClip(n, b*bs, (b+1)*bs)
		if err := t.accumulate(&p, eval, t.test.Images(indices), t.test.Codes(indices, t.cfg.LabelIndex)); err != nil {
			return p, fmt.Errorf("test batch %d: %w", b, err)
		}
	}
	p.divide(numBatches)
	return p, nil
}

func (t *Trainer) testPixel(ctx context.Context, eval *nn.Evaluating) (passStats, error) {
	var p passStats
	n, bs := t.cfg.AttackSamples, t.cfg.BatchSize
	numBatches := data.NumBatches(n, bs)
	for b := 0; b < numBatches; b++ {
		if err := ctx.Err(); err != nil {
			return p, err
		}
		indices := data.TakeClip(n, b*bs, (b+1)*bs)
		images := t.test.Images(indices)
		labels := t.test.Codes(indices, t.cfg.LabelIndex)

		res, err := t.runAttack("pixel", t.cfg.Pixel, eval, images, labels, nil, false)
		if err != nil {
			return p, fmt.Errorf("test attack batch %d: %w", b, err)
		}
		perturbed, err := tensor.Add(images, res.Perturbations)
		if err != nil {
			return p, err
		}
		if err := t.accumulate(&p, eval, perturbed, labels); err != nil {
			return p, fmt.Errorf("test attack batch %d: %w", b, err)
		}
		iterations, rate := stats.CensoredMean(res.Success)
		p.iterations += iterations
		p.success += rate
		p.norm += stats.MeanNorm(res.Perturbations, t.cfg.Norm)
	}
	p.divide(numBatches)
	return p, nil
}

// testDecoder mirrors testPixel in theta space. Unless
// AccumulateDecoderStats is set, the attack statistics of each batch
// replace those of the previous one before the final division.
func (t *Trainer) testDecoder(ctx context.Context, eval *nn.Evaluating) (passStats, error) {
	var p passStats
	n, bs := t.cfg.AttackSamples, t.cfg.BatchSize
	numBatches := data.NumBatches(n, bs)
	for b := 0; b < numBatches; b++ {
		if err := ctx.Err(); err != nil {
			return p, err
		}
		indices := data.TakeClip(n, b*bs, (b+1)*bs)
		labels := t.test.Codes(indices, t.cfg.LabelIndex)
		code, err := data.BatchCodes(t.test, indices, t.cfg.LabelIndex, t.fonts, t.classes)
		if err != nil {
			return p, err
		}

		res, images, err := t.decoderAttack(eval, code, t.test.Theta(indices), labels, false)
		if err != nil {
			return p, fmt.Errorf("test decoder attack batch %d: %w", b, err)
		}
		if err := t.accumulate(&p, eval, images, labels); err != nil {
			return p, fmt.Errorf("test decoder attack batch %d: %w", b, err)
		}
		iterations, rate := stats.CensoredMean(res.Success)
		norm := stats.MeanNorm(res.Perturbations, t.cfg.Norm)
		if t.cfg.AccumulateDecoderStats {
			p.iterations += iterations
			p.success += rate
			p.norm += norm
		} else {
			p.iterations, p.success, p.norm = iterations, rate, norm
		}
	}
	p.divide(numBatches)
	return p, nil
}

// accumulate adds the loss and error of one evaluated batch.
func (t *Trainer) accumulate(p *passStats, eval *nn.Evaluating, images *tensor.Tensor, labels []int) error {
	start := time.Now()
	logits, err := eval.Forward(images)
	if err != nil {
		return err
	}
	t.timing.ForwardPassTime += time.Since(start)
	loss, _, err := nn.CrossEntropy(labels, logits)
	if err != nil {
		return err
	}
	e, err := nn.ClassificationError(labels, logits)
	if err != nil {
		return err
	}
	p.loss += loss
	p.err += e
	return nil
}

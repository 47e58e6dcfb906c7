package training

import (
	"context"
	"fmt"
	"time"

	"manifold_lib/data"
	"manifold_lib/nn"
	"manifold_lib/stats"
	"manifold_lib/tensor"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// term is the loss and error of one partition of the merged batch.
type term struct {
	loss, err float64
}

// TrainEpoch runs one pass over a fresh permutation of the training set.
// Batches wrap around the end of the permutation. ctx is checked between
// batches only.
func (t *Trainer) TrainEpoch(ctx context.Context) error {
	bs := t.cfg.BatchSize
	numBatches := t.numTrainBatches()
	perm := data.Permutation(t.train.Len(), t.rng)

	for b := 0; b < numBatches; b++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.scheduler.Update(t.epoch, float64(b)/float64(numBatches))

		indices := data.TakeWrap(perm, b*bs, (b+1)*bs)
		row, err := t.trainBatch(indices)
		if err != nil {
			return fmt.Errorf("epoch %d batch %d: %w", t.epoch, b, err)
		}
		row.Progress(t.epoch*numBatches+b+1, numBatches, bs, t.cfg.Pixel.MaxIterations)
		if err := t.agg.RecordTrain(row); err != nil {
			return err
		}
		t.batches++
		if t.metrics != nil {
			t.metrics.ObserveRow("train", t.agg.Train.Last())
			t.metrics.BatchDone()
		}
		if b%t.cfg.Skip == t.cfg.Skip/2 {
			t.logTraining(b)
		}
	}
	return nil
}

// trainBatch runs Eval → Compose → Train → Record on one batch.
func (t *Trainer) trainBatch(indices []int) (stats.Row, error) {
	var row stats.Row
	start := time.Now()
	images := t.train.Images(indices)
	theta := t.train.Theta(indices)
	labels := t.train.Codes(indices, t.cfg.LabelIndex)
	code, err := data.BatchCodes(t.train, indices, t.cfg.LabelIndex, t.fonts, t.classes)
	if err != nil {
		return row, err
	}
	t.timing.DataLoadingTime += time.Since(start)
	l := t.layout

	// Eval
	eval := t.model.Eval()
	t.model.MustBe(nn.ModeEval)

	pixelIn := images.Slice(l.Pixel.Lo, l.Pixel.Hi)
	pixelRes, err := t.runAttack("pixel", t.cfg.Pixel, eval, pixelIn, labels[l.Pixel.Lo:l.Pixel.Hi], nil, t.cfg.Verbose)
	if err != nil {
		return row, err
	}
	pixelImages, err := tensor.Add(pixelIn, pixelRes.Perturbations)
	if err != nil {
		return row, err
	}
	decoderRes, decoderImages, err := t.decoderAttack(eval,
		code.Slice(l.Decoder.Lo, l.Decoder.Hi),
		theta.Slice(l.Decoder.Lo, l.Decoder.Hi),
		labels[l.Decoder.Lo:l.Decoder.Hi], t.cfg.Verbose)
	if err != nil {
		return row, err
	}
	t.model.MustBe(nn.ModeEval)

	// Compose
	var clean *tensor.Tensor
	if l.Clean.Len() > 0 {
		clean = images.Slice(l.Clean.Lo, l.Clean.Hi)
	}
	merged, err := l.Merge(pixelImages, decoderImages, clean)
	if err != nil {
		return row, err
	}

	// Train
	train := t.model.Train()
	t.model.MustBe(nn.ModeTrain)

	start = time.Now()
	logits, err := train.Forward(merged)
	if err != nil {
		return row, fmt.Errorf("forward: %w", err)
	}
	terms, grad, err := partitionLosses(labels, logits, l.Partitions())
	if err != nil {
		return row, err
	}
	t.timing.ForwardPassTime += time.Since(start)

	start = time.Now()
	train.ZeroGrad()
	if err := train.Backward(grad); err != nil {
		return row, fmt.Errorf("backward: %w", err)
	}
	t.timing.BackwardPassTime += time.Since(start)

	start = time.Now()
	params := train.Params()
	t.optimizer.Step(params)
	t.timing.UpdateTime += time.Since(start)

	// Record
	pixel, dec := terms[0], terms[1]
	row.PerturbationLoss, row.PerturbationError = pixel.loss, pixel.err
	row.DecoderPerturbationLoss, row.DecoderPerturbationError = dec.loss, dec.err
	if l.Full {
		row.Loss = CombineLosses(pixel.loss, dec.loss)
		row.Error = CombineLosses(pixel.err, dec.err)
	} else {
		row.Loss, row.Error = terms[2].loss, terms[2].err
	}
	row.Iterations, row.Success = stats.CensoredMean(pixelRes.Success)
	row.Norm = stats.MeanNorm(pixelRes.Perturbations, t.cfg.Norm)
	row.DecoderIterations, row.DecoderSuccess = stats.CensoredMean(decoderRes.Success)
	row.DecoderNorm = stats.MeanNorm(decoderRes.Perturbations, t.cfg.Norm)
	if len(params) > 0 {
		row.Gradient = meanAbs(params[0].Grad.Data)
	}
	return row, nil
}

// partitionLosses computes cross entropy and error per partition and the
// logit gradient of their mean.
func partitionLosses(labels []int, logits *tensor.Tensor, parts []Range) ([]term, *tensor.Tensor, error) {
	grad := tensor.New(logits.Shape...)
	width := logits.RowSize()
	terms := make([]term, len(parts))
	weight := 1 / float64(len(parts))
	for i, r := range parts {
		part := logits.Slice(r.Lo, r.Hi)
		lab := labels[r.Lo:r.Hi]
		loss, g, err := nn.CrossEntropy(lab, part)
		if err != nil {
			return nil, nil, err
		}
		e, err := nn.ClassificationError(lab, part)
		if err != nil {
			return nil, nil, err
		}
		terms[i] = term{loss: loss, err: e}
		copy(grad.Data[r.Lo*width:r.Hi*width], g.Scale(weight).Data)
	}
	return terms, grad, nil
}

func meanAbs(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, 1) / float64(len(v))
}

func (t *Trainer) logTraining(b int) {
	tb, w := t.agg.Train, t.cfg.Skip
	log := t.log.WithFields(logrus.Fields{"epoch": t.epoch, "batch": b})
	log.Infof("%g (%g) %g (%g) %g (%g) [%g]",
		tb.WindowedMean(stats.ColLoss, w), tb.WindowedMean(stats.ColError, w),
		tb.WindowedMean(stats.ColPerturbationLoss, w), tb.WindowedMean(stats.ColPerturbationError, w),
		tb.WindowedMean(stats.ColDecoderPerturbationLoss, w), tb.WindowedMean(stats.ColDecoderPerturbationError, w),
		tb.WindowedMean(stats.ColGradient, w))
	log.Infof("%g (%g, %g) %g (%g, %g)",
		tb.WindowedMean(stats.ColSuccess, w), tb.WindowedMean(stats.ColIterations, w), tb.WindowedMean(stats.ColNorm, w),
		tb.WindowedMean(stats.ColDecoderSuccess, w), tb.WindowedMean(stats.ColDecoderIterations, w), tb.WindowedMean(stats.ColDecoderNorm, w))
}

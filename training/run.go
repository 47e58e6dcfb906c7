package training

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"manifold_lib/report"
	"manifold_lib/utils"
)

// Run trains until the configured number of epochs is reached, testing,
// persisting and plotting after every epoch. A snapshot in the state file
// resumes an interrupted run.
func (t *Trainer) Run(ctx context.Context) error {
	start := time.Now()
	if err := t.resume(); err != nil {
		return err
	}

	for t.epoch < t.cfg.Epochs {
		if err := t.TrainEpoch(ctx); err != nil {
			return err
		}
		t.epoch++
		row, err := t.Test(ctx)
		if err != nil {
			return fmt.Errorf("test after epoch %d: %w", t.epoch, err)
		}
		if t.metrics != nil {
			t.metrics.EpochDone(t.epoch)
		}
		if t.cfg.EarlyStopping && (t.bestParams == nil || row.Error < t.bestError) {
			t.bestError = row.Error
			t.bestEpoch = t.epoch
			t.bestParams = utils.ParamsToWeights(t.model.Params())
		}
		if err := t.persist(); err != nil {
			return err
		}
	}

	if t.cfg.EarlyStopping && t.bestParams != nil {
		if err := utils.RestoreParams(t.model.Params(), t.bestParams); err != nil {
			return fmt.Errorf("restore best parameters: %w", err)
		}
		t.log.WithField("epoch", t.bestEpoch).Infof("early stopping: restored parameters with test error %g", t.bestError)
		if err := t.saveSnapshot(); err != nil {
			return err
		}
	}

	t.timing.TotalTime += time.Since(start)
	utils.PrintTimingStats(t.timing, t.batches)
	return nil
}

// persist writes the statistics tables, the plots and the snapshot.
func (t *Trainer) persist() error {
	if err := t.agg.Save(t.cfg.TrainingFile, t.cfg.TestingFile); err != nil {
		return err
	}
	files := report.Files{
		Loss:     t.cfg.LossFile,
		Error:    t.cfg.ErrorFile,
		Success:  t.cfg.SuccessFile,
		Gradient: t.cfg.GradientFile,
	}
	if err := report.Plot(files, t.agg.Train, t.agg.Test); err != nil {
		return err
	}
	return t.saveSnapshot()
}

func (t *Trainer) saveSnapshot() error {
	if t.cfg.StateFile == "" {
		return nil
	}
	return utils.SaveSnapshot(t.cfg.StateFile, &utils.Snapshot{
		Version:    utils.SnapshotVersion,
		RunID:      t.runID,
		Epoch:      t.epoch,
		LR:         t.optimizer.LR,
		Params:     utils.ParamsToWeights(t.model.Params()),
		BestError:  t.bestError,
		BestEpoch:  t.bestEpoch,
		BestParams: t.bestParams,
	})
}

// resume restores parameters, epoch counter and tables from a previous run.
func (t *Trainer) resume() error {
	if t.cfg.StateFile == "" {
		return nil
	}
	if _, err := os.Stat(t.cfg.StateFile); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if t.cfg.TrainingFile == "" || t.cfg.TestingFile == "" {
		return fmt.Errorf("resume from %s: %w", t.cfg.StateFile, ErrMissingStatistics)
	}
	snap, err := utils.LoadSnapshot(t.cfg.StateFile)
	if err != nil {
		return err
	}
	if err := utils.RestoreParams(t.model.Params(), snap.Params); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	if err := t.agg.Load(t.cfg.TrainingFile, t.cfg.TestingFile); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	t.epoch = snap.Epoch
	t.optimizer.LR = snap.LR
	t.bestError, t.bestEpoch, t.bestParams = snap.BestError, snap.BestEpoch, snap.BestParams
	t.log.WithField("previous_run", snap.RunID).Infof("resumed after epoch %d", snap.Epoch)
	return nil
}

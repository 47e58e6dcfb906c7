// manifold-train: adversarial training of a classifier against pixel-space
// and decoder-space attacks on a synthetic manifold dataset.
//
// Usage:
//
//	manifold-train --epochs=10 --batch_size=64 --full_variant --metrics_addr=:9090
//
// Every flag can also be set in a YAML/JSON file passed with --config or
// through MANIFOLD_* environment variables (MANIFOLD_PIXEL_EPSILON=0.5).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"manifold_lib/data"
	"manifold_lib/decoder"
	"manifold_lib/metrics"
	"manifold_lib/nn"
	"manifold_lib/nn/layers"
	"manifold_lib/training"
	"manifold_lib/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/exp/rand"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:          "manifold-train",
		Short:        "Train a classifier robust to pixel and decoder perturbations",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				v.SetConfigFile(configFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config: %w", err)
				}
			}
			var cfg utils.Config
			if err := v.Unmarshal(&cfg); err != nil {
				return fmt.Errorf("decode config: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "YAML or JSON configuration file.")
	keys := registerFlags(f, utils.DefaultConfig())
	for name, key := range keys {
		if err := v.BindPFlag(key, f.Lookup(name)); err != nil {
			panic(err)
		}
	}
	v.SetEnvPrefix("MANIFOLD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return cmd
}

// registerFlags declares every option and returns the flag → config key map.
func registerFlags(f *pflag.FlagSet, d utils.Config) map[string]string {
	keys := map[string]string{}
	plain := func(name string) { keys[name] = name }

	f.Int("batch_size", d.BatchSize, "Batch size.")
	f.Int("epochs", d.Epochs, "Number of epochs.")
	f.Float64("lr", d.LR, "Base learning rate.")
	f.Float64("lr_decay", d.LRDecay, "Learning rate decay.")
	f.Float64("weight_decay", d.WeightDecay, "Weight decay importance.")
	f.Float64("momentum", d.Momentum, "SGD momentum.")
	f.Int("training_samples", d.TrainingSamples, "Number of samples used for training (-1 for all).")
	f.Int("test_samples", d.TestSamples, "Number of samples for testing (-1 for all).")
	f.Int("attack_samples", d.AttackSamples, "Samples to attack.")
	f.Bool("random_samples", d.RandomSamples, "Randomize the subsampling of the training set.")
	f.Int("label_index", d.LabelIndex, "Column index in the codes holding the class.")
	f.Int("skip", d.Skip, "Verbosity in iterations.")
	f.Uint64("seed", d.Seed, "Random seed.")
	f.Float64("norm", d.Norm, "Norm order used for perturbation statistics.")
	f.String("objective", d.Objective, "Objective to use.")
	f.Bool("verbose", d.Verbose, "Verbose attacks and debug logging.")
	f.Bool("full_variant", d.FullVariant, "Attack every sample of a batch.")
	f.Bool("training_mode", d.TrainingMode, "Run attacks for their whole iteration budget.")
	f.Bool("early_stopping", d.EarlyStopping, "Keep the parameters with the lowest clean test error.")
	f.Bool("accumulate_decoder_stats", d.AccumulateDecoderStats, "Average decoder attack statistics over all test batches.")
	f.String("network_units", d.NetworkUnits, "Units for MLP.")
	f.String("network_activation", d.NetworkActivation, "Activation function to use.")
	f.Float64("network_dropout", d.NetworkDropout, "Dropout rate, 0 disables dropout.")
	f.String("state_file", d.StateFile, "Snapshot state file.")
	f.String("log_file", d.LogFile, "Log file.")
	f.String("training_file", d.TrainingFile, "Training statistics file.")
	f.String("testing_file", d.TestingFile, "Testing statistics file.")
	f.String("loss_file", d.LossFile, "Loss plot file.")
	f.String("error_file", d.ErrorFile, "Error plot file.")
	f.String("success_file", d.SuccessFile, "Success rate plot file.")
	f.String("gradient_file", d.GradientFile, "Gradient plot file.")
	f.String("metrics_addr", d.MetricsAddr, "Address serving /metrics, empty disables it.")
	f.VisitAll(func(fl *pflag.Flag) {
		if fl.Name != "config" {
			plain(fl.Name)
		}
	})

	attackFlags(f, "", "pixel", d.Pixel, keys)
	attackFlags(f, "decoder_", "decoder", d.Decoder, keys)

	f.Int("train_size", d.Data.TrainSize, "Synthetic training samples.")
	f.Int("test_size", d.Data.TestSize, "Synthetic test samples.")
	f.Int("fonts", d.Data.Fonts, "Number of fonts.")
	f.Int("classes", d.Data.Classes, "Number of classes.")
	f.Int("latent_dim", d.Data.LatentDim, "Theta dimension.")
	f.Int("image_height", d.Data.ImageHeight, "Image height.")
	f.Int("image_width", d.Data.ImageWidth, "Image width.")
	f.Float64("theta_scale", d.Data.ThetaScale, "Half-width of the theta distribution.")
	f.Float64("decoder_scale", d.Data.DecoderScale, "Standard deviation of the decoder weights.")
	for _, name := range []string{"train_size", "test_size", "fonts", "classes", "latent_dim", "image_height", "image_width", "theta_scale", "decoder_scale"} {
		keys[name] = "data." + name
	}
	return keys
}

func attackFlags(f *pflag.FlagSet, prefix, section string, d utils.AttackConfig, keys map[string]string) {
	f.String(prefix+"attack", d.Attack, "Attack to try.")
	f.Float64(prefix+"epsilon", d.Epsilon, "Epsilon allowed for attacks.")
	f.Float64(prefix+"c_0", d.C0, "Weight of norm.")
	f.Float64(prefix+"c_1", d.C1, "Weight of bound, if not enforced through clipping.")
	f.Float64(prefix+"c_2", d.C2, "Weight of objective.")
	f.Int(prefix+"max_iterations", d.MaxIterations, "Number of iterations for attack.")
	f.Int(prefix+"max_projections", d.MaxProjections, "Number of projections for alternating projection.")
	f.Float64(prefix+"base_lr", d.BaseLR, "Learning rate for attack.")
	for _, name := range []string{"attack", "epsilon", "c_0", "c_1", "c_2", "max_iterations", "max_projections", "base_lr"} {
		keys[prefix+name] = section + "." + name
	}
}

func run(ctx context.Context, cfg utils.Config) error {
	if err := utils.ValidateConfig(&cfg); err != nil {
		return err
	}
	utils.Verbose = cfg.Verbose
	log, closer, err := utils.NewLogger(cfg.LogFile, cfg.Verbose)
	if err != nil {
		return err
	}
	defer closer.Close()

	runID := uuid.NewString()
	entry := log.WithField("run", runID)
	timing := &utils.TimingStats{}
	rng := rand.New(rand.NewSource(cfg.Seed))

	start := time.Now()
	dc := cfg.Data
	dec := decoder.NewAffine(dc.Fonts+dc.Classes, dc.LatentDim, dc.ImageHeight, dc.ImageWidth)
	dec.Init(dc.DecoderScale, rng)
	synth := data.SyntheticConfig{Fonts: dc.Fonts, Classes: dc.Classes, LabelColumn: cfg.LabelIndex, ThetaScale: dc.ThetaScale}
	synth.Samples = dc.TrainSize
	train, err := data.Synthetic(synth, dec, rng)
	if err != nil {
		return err
	}
	synth.Samples = dc.TestSize
	test, err := data.Synthetic(synth, dec, rng)
	if err != nil {
		return err
	}
	var subsample *rand.Rand
	if cfg.RandomSamples {
		subsample = rng
	}
	trainSet, err := data.Subset(train, cfg.TrainingSamples, subsample)
	if err != nil {
		return err
	}
	testSet, err := data.Subset(test, cfg.TestSamples, nil)
	if err != nil {
		return err
	}
	timing.DataLoadingTime += time.Since(start)

	start = time.Now()
	units, err := utils.ParseUnits(cfg.NetworkUnits)
	if err != nil {
		return err
	}
	net, err := layers.NewMLP(dc.ImageHeight*dc.ImageWidth, units, dc.Classes, cfg.NetworkActivation, cfg.NetworkDropout, rng)
	if err != nil {
		return err
	}
	model := nn.NewClassifier(net)
	timing.ModelInitTime += time.Since(start)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	collector := metrics.New()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := collector.Serve(ctx, cfg.MetricsAddr, entry); err != nil {
				entry.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	trainer, err := training.New(training.Options{
		Config:  cfg,
		Model:   model,
		Decoder: dec,
		Train:   trainSet,
		Test:    testSet,
		Fonts:   dc.Fonts,
		Classes: dc.Classes,
		Metrics: collector,
		Logger:  log,
		Timing:  timing,
		RunID:   runID,
	})
	if err != nil {
		return err
	}
	entry.WithFields(logrus.Fields{
		"train":         trainSet.Len(),
		"test":          testSet.Len(),
		"batch_size":    cfg.BatchSize,
		"epochs":        cfg.Epochs,
		"full_variant":  cfg.FullVariant,
		"training_mode": cfg.TrainingMode,
	}).Info("starting training")
	if err := trainer.Run(ctx); err != nil {
		entry.WithError(err).Error("training failed")
		return err
	}
	entry.Info("training done")
	return nil
}

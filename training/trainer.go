// Package training runs adversarial training of a classifier against a
// pixel-space attack and a decoder-space attack, and evaluates it.
package training

import (
	"errors"
	"fmt"
	"time"

	"manifold_lib/attack"
	"manifold_lib/data"
	"manifold_lib/decoder"
	"manifold_lib/metrics"
	"manifold_lib/nn"
	"manifold_lib/stats"
	"manifold_lib/tensor"
	"manifold_lib/utils"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
)

// ErrAttackSamples is returned when the configured number of attacked
// test samples is not in [1, test set size].
var ErrAttackSamples = errors.New("training: attack samples out of range")

// ErrMissingStatistics is returned when a snapshot would be resumed without
// both statistics files to reload.
var ErrMissingStatistics = errors.New("training: snapshot needs training and testing files")

// Options wires a Trainer to its collaborators.
type Options struct {
	Config  utils.Config
	Model   *nn.Classifier
	Decoder decoder.Decoder
	Train   data.Dataset
	Test    data.Dataset
	// Zero derives the count from the training codes.
	Fonts   int
	Classes int

	// Optional.
	Metrics *metrics.Collector
	Logger  logrus.FieldLogger
	Timing  *utils.TimingStats
	RunID   string
}

// Trainer owns the classifier, the decoder and the statistics of one run.
type Trainer struct {
	cfg     utils.Config
	model   *nn.Classifier
	decoder decoder.Decoder
	train   data.Dataset
	test    data.Dataset
	fonts   int
	classes int

	layout    Layout
	bound     *attack.Bound
	objective attack.Objective
	optimizer *nn.SGD
	scheduler *nn.ExponentialScheduler
	rng       *rand.Rand

	agg     *stats.Aggregator
	metrics *metrics.Collector
	log     logrus.FieldLogger
	timing  *utils.TimingStats
	runID   string

	// epoch counts completed training epochs.
	epoch      int
	batches    int
	bestError  float64
	bestEpoch  int
	bestParams []*utils.WeightData
}

// New validates the configuration and prepares a run.
func New(opts Options) (*Trainer, error) {
	cfg := opts.Config
	if err := utils.ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	if opts.Model == nil || opts.Decoder == nil || opts.Train == nil || opts.Test == nil {
		return nil, fmt.Errorf("%w: model, decoder and datasets are required", utils.ErrInvalidConfig)
	}
	for _, name := range []string{cfg.Pixel.Attack, cfg.Decoder.Attack} {
		if !known(name) {
			return nil, fmt.Errorf("%w: unknown attack %q", utils.ErrInvalidConfig, name)
		}
	}
	objective, err := attack.NewObjective(cfg.Objective)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrInvalidConfig, err)
	}
	layout, err := NewLayout(cfg.BatchSize, cfg.FullVariant)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrInvalidConfig, err)
	}
	if err := checkAttackSamples(cfg.AttackSamples, opts.Test.Len()); err != nil {
		return nil, err
	}
	fonts, err := codeCardinality("fonts", opts.Fonts, opts.Train, data.FontColumn)
	if err != nil {
		return nil, err
	}
	classes, err := codeCardinality("classes", opts.Classes, opts.Train, cfg.LabelIndex)
	if err != nil {
		return nil, err
	}
	lo, hi, err := data.ThetaBounds(opts.Train)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	timing := opts.Timing
	if timing == nil {
		timing = &utils.TimingStats{}
	}
	optimizer := nn.NewSGD(cfg.LR, cfg.Momentum, cfg.WeightDecay)
	return &Trainer{
		cfg:       cfg,
		model:     opts.Model,
		decoder:   opts.Decoder,
		train:     opts.Train,
		test:      opts.Test,
		fonts:     fonts,
		classes:   classes,
		layout:    layout,
		bound:     &attack.Bound{Min: lo, Max: hi},
		objective: objective,
		optimizer: optimizer,
		scheduler: nn.NewExponentialScheduler(optimizer, cfg.LRDecay),
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		agg:       stats.NewAggregator(),
		metrics:   opts.Metrics,
		log:       log.WithField("run", opts.RunID),
		timing:    timing,
		runID:     opts.RunID,
		bestError: 1,
		bestEpoch: -1,
	}, nil
}

func known(name string) bool {
	for _, n := range attack.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// codeCardinality derives a code count from the training data when n is
// zero; otherwise n must cover every code present.
func codeCardinality(name string, n int, ds data.Dataset, column int) (int, error) {
	seen := data.Cardinality(ds, column)
	if n == 0 {
		return seen, nil
	}
	if n < seen {
		return 0, fmt.Errorf("%w: %d %s configured, training data uses %d", utils.ErrInvalidConfig, n, name, seen)
	}
	return n, nil
}

func checkAttackSamples(samples, available int) error {
	if samples <= 0 || samples > available {
		return fmt.Errorf("%w: %d requested, %d test samples", ErrAttackSamples, samples, available)
	}
	return nil
}

// Statistics exposes the run's tables.
func (t *Trainer) Statistics() *stats.Aggregator { return t.agg }

// Layout exposes the batch partitioning in use.
func (t *Trainer) Layout() Layout { return t.layout }

// Epoch is the number of completed epochs.
func (t *Trainer) Epoch() int { return t.epoch }

// numTrainBatches is the number of batches of one training epoch.
func (t *Trainer) numTrainBatches() int {
	return data.NumBatches(t.train.Len(), t.cfg.BatchSize)
}

func (t *Trainer) attackConfig(ac utils.AttackConfig, bound *attack.Bound) attack.Config {
	return attack.Config{
		Epsilon:        ac.Epsilon,
		MaxIterations:  ac.MaxIterations,
		BaseLR:         ac.BaseLR,
		TrainingMode:   t.cfg.TrainingMode,
		C0:             attack.Float(ac.C0),
		C1:             attack.Float(ac.C1),
		C2:             attack.Float(ac.C2),
		MaxProjections: attack.Int(ac.MaxProjections),
		Bound:          bound,
		Src:            rand.NewSource(t.rng.Uint64()),
		Logger:         t.log,
	}
}

// runAttack sets up, randomly initialises and runs one attack. kind is
// "pixel" or "decoder".
func (t *Trainer) runAttack(kind string, ac utils.AttackConfig, model nn.Differentiable, inputs *tensor.Tensor, labels []int, bound *attack.Bound, verbose bool) (*attack.Result, error) {
	start := time.Now()
	a, err := attack.New(ac.Attack, model, inputs, labels, t.attackConfig(ac, bound))
	if err != nil {
		return nil, fmt.Errorf("%s attack: %w", kind, err)
	}
	if a.TrainingMode() != t.cfg.TrainingMode {
		return nil, fmt.Errorf("%s attack %s ignores training mode", kind, ac.Attack)
	}
	if err := a.InitializeRandom(); err != nil {
		return nil, fmt.Errorf("%s attack: %w", kind, err)
	}
	res, err := a.Run(t.objective, verbose)
	if err != nil {
		return nil, fmt.Errorf("%s attack: %w", kind, err)
	}
	if len(res.Success) != inputs.Rows() || !tensor.SameShape(res.Perturbations, inputs) {
		return nil, fmt.Errorf("%s attack returned %d results with shape %v for inputs %v",
			kind, len(res.Success), res.Perturbations.Shape, inputs.Shape)
	}

	elapsed := time.Since(start)
	if kind == "decoder" {
		t.timing.DecoderAttackTime += elapsed
	} else {
		t.timing.AttackTime += elapsed
	}
	if t.metrics != nil {
		t.metrics.ObserveAttack(kind, elapsed)
	}
	return res, nil
}

// decode renders theta+perturbation with the decoder conditioned on code.
func (t *Trainer) decode(theta, perturbation *tensor.Tensor) (*tensor.Tensor, error) {
	perturbed, err := tensor.Add(theta, perturbation)
	if err != nil {
		return nil, err
	}
	return t.decoder.Forward(perturbed)
}

// decoderAttack conditions the decoder on code, attacks theta within the
// theta bound and returns the result with the regenerated images.
func (t *Trainer) decoderAttack(eval *nn.Evaluating, code, theta *tensor.Tensor, labels []int, verbose bool) (*attack.Result, *tensor.Tensor, error) {
	if err := t.decoder.SetCode(code); err != nil {
		return nil, nil, err
	}
	composite := &decoder.Classifier{Decoder: t.decoder, Model: eval}
	res, err := t.runAttack("decoder", t.cfg.Decoder, composite, theta, labels, t.bound, verbose)
	if err != nil {
		return nil, nil, err
	}
	images, err := t.decode(theta, res.Perturbations)
	if err != nil {
		return nil, nil, fmt.Errorf("decode perturbed theta: %w", err)
	}
	return res, images, nil
}

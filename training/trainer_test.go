package training

import (
	"context"
	"path/filepath"
	"testing"

	"manifold_lib/attack"
	"manifold_lib/data"
	"manifold_lib/decoder"
	"manifold_lib/metrics"
	"manifold_lib/nn"
	"manifold_lib/nn/layers"
	"manifold_lib/stats"
	"manifold_lib/tensor"
	"manifold_lib/utils"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

const (
	testFonts   = 2
	testClasses = 3
)

// probe wraps the L2 attack and records the model mode seen by Run.
type probe struct {
	attack.Attack
	rows int
}

var (
	probeModel *nn.Classifier
	probeModes []nn.Mode
	probeRows  []int

	// scripted success arrays returned in order by the "scripted" attack
	script [][]int
)

func (p *probe) Run(obj attack.Objective, verbose bool) (*attack.Result, error) {
	probeModes = append(probeModes, probeModel.Mode())
	probeRows = append(probeRows, p.rows)
	return p.Attack.Run(obj, verbose)
}

type scripted struct {
	inputs *tensor.Tensor
}

func (s *scripted) InitializeRandom() error { return nil }
func (s *scripted) TrainingMode() bool      { return false }
func (s *scripted) Run(attack.Objective, bool) (*attack.Result, error) {
	success := script[0]
	script = script[1:]
	return &attack.Result{Success: success, Perturbations: tensor.New(s.inputs.Shape...)}, nil
}

func init() {
	attack.Register("probe", func(m nn.Differentiable, x *tensor.Tensor, labels []int, cfg attack.Config) (attack.Attack, error) {
		a, err := attack.NewL2ClippedGradientDescent(m, x, labels, cfg)
		if err != nil {
			return nil, err
		}
		return &probe{Attack: a, rows: x.Rows()}, nil
	})
	attack.Register("scripted", func(m nn.Differentiable, x *tensor.Tensor, labels []int, cfg attack.Config) (attack.Attack, error) {
		return &scripted{inputs: x}, nil
	})
}

func testConfig() utils.Config {
	cfg := utils.DefaultConfig()
	cfg.BatchSize = 8
	cfg.Epochs = 1
	cfg.LR = 0.05
	cfg.AttackSamples = 10
	cfg.Skip = 2
	cfg.NetworkUnits = "8"
	cfg.Pixel.MaxIterations = 2
	cfg.Decoder.MaxIterations = 2
	cfg.Pixel.BaseLR = 0.1
	cfg.Decoder.BaseLR = 0.1
	cfg.StateFile, cfg.LogFile = "", ""
	cfg.TrainingFile, cfg.TestingFile = "", ""
	cfg.LossFile, cfg.ErrorFile, cfg.SuccessFile, cfg.GradientFile = "", "", "", ""
	return cfg
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	return log
}

func newTestTrainer(t *testing.T, cfg utils.Config, m *metrics.Collector) (*Trainer, *nn.Classifier) {
	t.Helper()
	dec := decoder.NewAffine(testFonts+testClasses, 2, 4, 4)
	dec.Init(0.5, rand.NewSource(1))
	rng := rand.New(rand.NewSource(2))
	train, err := data.Synthetic(data.SyntheticConfig{Samples: 20, Fonts: testFonts, Classes: testClasses, LabelColumn: 2, ThetaScale: 1}, dec, rng)
	require.NoError(t, err)
	test, err := data.Synthetic(data.SyntheticConfig{Samples: 12, Fonts: testFonts, Classes: testClasses, LabelColumn: 2, ThetaScale: 1}, dec, rng)
	require.NoError(t, err)

	net, err := layers.NewMLP(16, []int{8}, testClasses, "relu", 0, rand.NewSource(3))
	require.NoError(t, err)
	model := nn.NewClassifier(net)
	tr, err := New(Options{
		Config:  cfg,
		Model:   model,
		Decoder: dec,
		Train:   train,
		Test:    test,
		Fonts:   testFonts,
		Classes: testClasses,
		Metrics: m,
		Logger:  quietLogger(),
		RunID:   "test-run",
	})
	require.NoError(t, err)
	return tr, model
}

func TestNewRejectsAttackSamples(t *testing.T) {
	for _, n := range []int{0, 13} {
		cfg := testConfig()
		cfg.AttackSamples = n
		dec := decoder.NewAffine(testFonts+testClasses, 2, 4, 4)
		ds, err := data.Synthetic(data.SyntheticConfig{Samples: 12, Fonts: testFonts, Classes: testClasses, LabelColumn: 2, ThetaScale: 1}, dec, rand.New(rand.NewSource(1)))
		require.NoError(t, err)
		net, err := layers.NewMLP(16, nil, testClasses, "relu", 0, rand.NewSource(1))
		require.NoError(t, err)
		_, err = New(Options{Config: cfg, Model: nn.NewClassifier(net), Decoder: dec, Train: ds, Test: ds, Fonts: testFonts, Classes: testClasses})
		require.ErrorIs(t, err, ErrAttackSamples)
	}
}

func TestNewRejectsUnknownAttack(t *testing.T) {
	cfg := testConfig()
	cfg.Decoder.Attack = "UntargetedBatchMagic"
	dec := decoder.NewAffine(testFonts+testClasses, 2, 4, 4)
	ds, err := data.Synthetic(data.SyntheticConfig{Samples: 12, Fonts: testFonts, Classes: testClasses, LabelColumn: 2, ThetaScale: 1}, dec, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	net, err := layers.NewMLP(16, nil, testClasses, "relu", 0, rand.NewSource(1))
	require.NoError(t, err)
	_, err = New(Options{Config: cfg, Model: nn.NewClassifier(net), Decoder: dec, Train: ds, Test: ds, Fonts: testFonts, Classes: testClasses})
	require.ErrorIs(t, err, utils.ErrInvalidConfig)
}

func TestTestChecksAttackSamples(t *testing.T) {
	tr, _ := newTestTrainer(t, testConfig(), nil)
	tr.cfg.AttackSamples = 100
	_, err := tr.Test(context.Background())
	require.ErrorIs(t, err, ErrAttackSamples)
	require.Zero(t, tr.Statistics().Test.Len())
}

func TestAttacksSeeEvaluationMode(t *testing.T) {
	cfg := testConfig()
	cfg.Pixel.Attack = "probe"
	cfg.Decoder.Attack = "probe"
	tr, model := newTestTrainer(t, cfg, nil)
	probeModel, probeModes, probeRows = model, nil, nil

	require.NoError(t, tr.TrainEpoch(context.Background()))
	// 20 samples, batch 8: 3 batches, two attacks each on 2 rows
	require.Len(t, probeModes, 6)
	for _, m := range probeModes {
		assert.Equal(t, nn.ModeEval, m)
	}
	assert.Equal(t, []int{2, 2, 2, 2, 2, 2}, probeRows)
	assert.Equal(t, nn.ModeTrain, model.Mode())

	probeModes, probeRows = nil, nil
	_, err := tr.Test(context.Background())
	require.NoError(t, err)
	// 10 attacked samples, batch 8: 2 clipped batches per pass
	assert.Equal(t, []int{8, 8, 8, 8}, probeRows)
	for _, m := range probeModes {
		assert.Equal(t, nn.ModeEval, m)
	}
	assert.Equal(t, nn.ModeEval, model.Mode())
}

func TestTrainEpochRecordsRows(t *testing.T) {
	m := metrics.New()
	tr, model := newTestTrainer(t, testConfig(), m)
	before := utils.ParamsToWeights(model.Params())

	require.NoError(t, tr.TrainEpoch(context.Background()))
	tb := tr.Statistics().Train
	require.Equal(t, 3, tb.Len())
	assert.Equal(t, []float64{1, 2, 3}, tb.Column(stats.ColIteration))
	assert.Equal(t, float64(3*(1+2)*8), tb.Row(2)[stats.ColSamples])
	for i := 0; i < tb.Len(); i++ {
		row := tb.Row(i)
		assert.GreaterOrEqual(t, row[stats.ColSuccess], 0.0)
		assert.LessOrEqual(t, row[stats.ColSuccess], 1.0)
		assert.GreaterOrEqual(t, row[stats.ColDecoderSuccess], 0.0)
		assert.LessOrEqual(t, row[stats.ColDecoderSuccess], 1.0)
		assert.Positive(t, row[stats.ColLoss])
		assert.Positive(t, row[stats.ColGradient])
	}
	after := model.Params()
	assert.NotEqual(t, before[0].Data, after[0].Value.Data)
	assert.Equal(t, 3.0, counterValue(t, m, "manifold_training_batches_total"))
}

func counterValue(t *testing.T, m *metrics.Collector, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestTrainEpochHonoursCancellation(t *testing.T) {
	tr, _ := newTestTrainer(t, testConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, tr.TrainEpoch(ctx), context.Canceled)
	require.Zero(t, tr.Statistics().Train.Len())
}

func TestFullVariantLoss(t *testing.T) {
	cfg := testConfig()
	cfg.FullVariant = true
	tr, _ := newTestTrainer(t, cfg, nil)
	require.Equal(t, Range{0, 4}, tr.Layout().Pixel)
	require.Equal(t, Range{4, 8}, tr.Layout().Decoder)

	require.NoError(t, tr.TrainEpoch(context.Background()))
	row := tr.Statistics().Train.Row(0)
	assert.InDelta(t, (row[stats.ColPerturbationLoss]+row[stats.ColDecoderPerturbationLoss])/2, row[stats.ColLoss], 1e-12)
	assert.InDelta(t, (row[stats.ColPerturbationError]+row[stats.ColDecoderPerturbationError])/2, row[stats.ColError], 1e-12)
}

func TestDecoderStatisticsOverwrite(t *testing.T) {
	cases := []struct {
		accumulate       bool
		iterations, rate float64
	}{
		// last batch only, divided by the number of batches
		{accumulate: false, iterations: -0.5, rate: 0},
		{accumulate: true, iterations: 0, rate: 0.5},
	}
	for _, c := range cases {
		cfg := testConfig()
		cfg.Decoder.Attack = "scripted"
		cfg.AccumulateDecoderStats = c.accumulate
		tr, _ := newTestTrainer(t, cfg, nil)

		hit := []int{1, 1, 1, 1, 1, 1, 1, 1}
		miss := []int{-1, -1, -1, -1, -1, -1, -1, -1}
		script = [][]int{hit, miss}

		row, err := tr.Test(context.Background())
		require.NoError(t, err)
		require.Empty(t, script)
		assert.InDelta(t, c.iterations, row.DecoderIterations, 1e-12, "accumulate=%v", c.accumulate)
		assert.InDelta(t, c.rate, row.DecoderSuccess, 1e-12, "accumulate=%v", c.accumulate)
		assert.Zero(t, row.DecoderNorm)
		assert.Equal(t, 0.0, row.Iteration)
	}
}

func TestRunPersistsAndResumes(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Epochs = 2
	cfg.EarlyStopping = true
	cfg.StateFile = filepath.Join(dir, "state.json")
	cfg.TrainingFile = filepath.Join(dir, "training.bin")
	cfg.TestingFile = filepath.Join(dir, "testing.bin")
	cfg.LossFile = filepath.Join(dir, "loss.png")
	cfg.GradientFile = filepath.Join(dir, "gradient.png")

	old := utils.Verbose
	utils.Verbose = false
	defer func() { utils.Verbose = old }()

	m := metrics.New()
	tr, _ := newTestTrainer(t, cfg, m)
	require.NoError(t, tr.Run(context.Background()))
	require.Equal(t, 2, tr.Epoch())
	require.Equal(t, 6, tr.Statistics().Train.Len())
	require.Equal(t, 2, tr.Statistics().Test.Len())
	// test rows are stamped with the last training iteration of their epoch
	assert.Equal(t, []float64{3, 6}, tr.Statistics().Test.Column(stats.ColIteration))

	snap, err := utils.LoadSnapshot(cfg.StateFile)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Epoch)
	assert.Equal(t, "test-run", snap.RunID)
	assert.NotEmpty(t, snap.BestParams)
	for _, f := range []string{cfg.TrainingFile, cfg.TestingFile, cfg.LossFile, cfg.GradientFile} {
		assert.FileExists(t, f)
	}

	cfg.Epochs = 3
	resumed, _ := newTestTrainer(t, cfg, nil)
	require.NoError(t, resumed.Run(context.Background()))
	assert.Equal(t, 3, resumed.Epoch())
	assert.Equal(t, 9, resumed.Statistics().Train.Len())
	assert.Equal(t, 3, resumed.Statistics().Test.Len())
}

func TestResumeNeedsStatisticsFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.StateFile = filepath.Join(dir, "state.json")
	cfg.TrainingFile = filepath.Join(dir, "training.bin")

	old := utils.Verbose
	utils.Verbose = false
	defer func() { utils.Verbose = old }()

	tr, _ := newTestTrainer(t, cfg, nil)
	require.NoError(t, tr.Run(context.Background()))
	require.FileExists(t, cfg.StateFile)

	cfg.Epochs = 2
	resumed, _ := newTestTrainer(t, cfg, nil)
	err := resumed.Run(context.Background())
	require.ErrorIs(t, err, ErrMissingStatistics)
	assert.Zero(t, resumed.Epoch())
	assert.Zero(t, resumed.Statistics().Train.Len())

	// a configured file that was never written fails as well
	cfg.TestingFile = filepath.Join(dir, "testing.bin")
	resumed, _ = newTestTrainer(t, cfg, nil)
	require.Error(t, resumed.Run(context.Background()))
	assert.Zero(t, resumed.Epoch())
}

func TestCodeCountsFromTrainingData(t *testing.T) {
	tr, _ := newTestTrainer(t, testConfig(), nil)
	require.Equal(t, testFonts, tr.fonts)
	require.Equal(t, testClasses, tr.classes)

	train := tr.train
	n, err := codeCardinality("fonts", 0, train, data.FontColumn)
	require.NoError(t, err)
	assert.LessOrEqual(t, n, testFonts)
	assert.Positive(t, n)

	_, err = codeCardinality("classes", 1, train, 2)
	require.ErrorIs(t, err, utils.ErrInvalidConfig)
}

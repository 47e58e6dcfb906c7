package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidConfig wraps every configuration precondition failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// AttackConfig configures one of the two attacks run per batch.
type AttackConfig struct {
	Attack         string  `mapstructure:"attack"`
	Epsilon        float64 `mapstructure:"epsilon"`
	C0             float64 `mapstructure:"c_0"`
	C1             float64 `mapstructure:"c_1"`
	C2             float64 `mapstructure:"c_2"`
	MaxIterations  int     `mapstructure:"max_iterations"`
	MaxProjections int     `mapstructure:"max_projections"`
	BaseLR         float64 `mapstructure:"base_lr"`
}

// DataConfig sizes the synthetic datasets and the reference decoder.
type DataConfig struct {
	TrainSize    int     `mapstructure:"train_size"`
	TestSize     int     `mapstructure:"test_size"`
	Fonts        int     `mapstructure:"fonts"`
	Classes      int     `mapstructure:"classes"`
	LatentDim    int     `mapstructure:"latent_dim"`
	ImageHeight  int     `mapstructure:"image_height"`
	ImageWidth   int     `mapstructure:"image_width"`
	ThetaScale   float64 `mapstructure:"theta_scale"`
	DecoderScale float64 `mapstructure:"decoder_scale"`
}

// Config holds training configuration
type Config struct {
	BatchSize   int     `mapstructure:"batch_size"`
	Epochs      int     `mapstructure:"epochs"`
	LR          float64 `mapstructure:"lr"`
	LRDecay     float64 `mapstructure:"lr_decay"`
	WeightDecay float64 `mapstructure:"weight_decay"`
	Momentum    float64 `mapstructure:"momentum"`

	// -1 keeps every sample.
	TrainingSamples int  `mapstructure:"training_samples"`
	TestSamples     int  `mapstructure:"test_samples"`
	AttackSamples   int  `mapstructure:"attack_samples"`
	RandomSamples   bool `mapstructure:"random_samples"`
	LabelIndex      int  `mapstructure:"label_index"`

	Skip      int     `mapstructure:"skip"`
	Seed      uint64  `mapstructure:"seed"`
	Norm      float64 `mapstructure:"norm"`
	Objective string  `mapstructure:"objective"`
	Verbose   bool    `mapstructure:"verbose"`

	FullVariant            bool `mapstructure:"full_variant"`
	TrainingMode           bool `mapstructure:"training_mode"`
	EarlyStopping          bool `mapstructure:"early_stopping"`
	AccumulateDecoderStats bool `mapstructure:"accumulate_decoder_stats"`

	NetworkUnits      string  `mapstructure:"network_units"`
	NetworkActivation string  `mapstructure:"network_activation"`
	NetworkDropout    float64 `mapstructure:"network_dropout"`

	Pixel   AttackConfig `mapstructure:"pixel"`
	Decoder AttackConfig `mapstructure:"decoder"`
	Data    DataConfig   `mapstructure:"data"`

	StateFile    string `mapstructure:"state_file"`
	LogFile      string `mapstructure:"log_file"`
	TrainingFile string `mapstructure:"training_file"`
	TestingFile  string `mapstructure:"testing_file"`
	LossFile     string `mapstructure:"loss_file"`
	ErrorFile    string `mapstructure:"error_file"`
	SuccessFile  string `mapstructure:"success_file"`
	GradientFile string `mapstructure:"gradient_file"`
	MetricsAddr  string `mapstructure:"metrics_addr"`
}

func defaultAttack() AttackConfig {
	return AttackConfig{
		Attack:         "UntargetedBatchL2ClippedGradientDescent",
		Epsilon:        1,
		C0:             0,
		C1:             0.1,
		C2:             0.5,
		MaxIterations:  10,
		MaxProjections: 5,
		BaseLR:         0.005,
	}
}

// DefaultConfig returns the reference defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:         64,
		Epochs:            10,
		LR:                0.005,
		LRDecay:           0.9,
		WeightDecay:       0.0001,
		Momentum:          0.9,
		TrainingSamples:   -1,
		TestSamples:       -1,
		AttackSamples:     1000,
		LabelIndex:        2,
		Skip:              5,
		Seed:              1,
		Norm:              2,
		Objective:         "UntargetedF6",
		NetworkUnits:      "1024,1024,1024,1024",
		NetworkActivation: "relu",
		Pixel:             defaultAttack(),
		Decoder:           defaultAttack(),
		Data: DataConfig{
			TrainSize:    2000,
			TestSize:     1000,
			Fonts:        10,
			Classes:      10,
			LatentDim:    6,
			ImageHeight:  8,
			ImageWidth:   8,
			ThetaScale:   1,
			DecoderScale: 0.5,
		},
		StateFile:    "robust_manifold_classifier.json",
		LogFile:      "robust_manifold_classifier.log",
		TrainingFile: "robust_manifold_training.bin",
		TestingFile:  "robust_manifold_testing.bin",
		LossFile:     "loss.png",
		ErrorFile:    "error.png",
		SuccessFile:  "robust_manifold_success.png",
	}
}

// ParseUnits parses a comma or space separated list of layer widths.
func ParseUnits(units string) ([]int, error) {
	parts := strings.FieldsFunc(units, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]int, len(parts))
	for i, s := range parts {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%w: network units %q: %v", ErrInvalidConfig, units, err)
		}
		if n <= 0 {
			return nil, fmt.Errorf("%w: network units must be positive, got %d", ErrInvalidConfig, n)
		}
		out[i] = n
	}
	return out, nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func validateAttack(name string, a AttackConfig) error {
	if a.Attack == "" {
		return invalid("%s attack name is empty", name)
	}
	if a.Epsilon <= 0 {
		return invalid("%s epsilon must be positive", name)
	}
	if a.MaxIterations < 0 || a.MaxProjections < 0 {
		return invalid("%s iteration and projection budgets must be non-negative", name)
	}
	if a.BaseLR <= 0 {
		return invalid("%s base learning rate must be positive", name)
	}
	return nil
}

// ValidateConfig validates training configuration
func ValidateConfig(config *Config) error {
	minBatch := 4
	if config.FullVariant {
		minBatch = 2
	}
	if config.BatchSize < minBatch {
		return invalid("batch size must be at least %d", minBatch)
	}
	if config.Epochs <= 0 {
		return invalid("epochs must be positive")
	}
	if config.LR <= 0 {
		return invalid("learning rate must be positive")
	}
	if config.Skip <= 0 {
		return invalid("skip must be positive")
	}
	if config.Norm <= 0 {
		return invalid("norm order must be positive")
	}
	if config.LabelIndex < 2 {
		return invalid("label index must come after the font column")
	}
	if config.NetworkDropout < 0 || config.NetworkDropout >= 1 {
		return invalid("dropout must be in [0, 1)")
	}
	if _, err := ParseUnits(config.NetworkUnits); err != nil {
		return err
	}
	if err := validateAttack("pixel", config.Pixel); err != nil {
		return err
	}
	return validateAttack("decoder", config.Decoder)
}

// Package stats keeps the per-step training and per-epoch test statistics
// of a run in append-only tables with fixed column semantics.
package stats

// Column indexes a statistics table.
type Column int

const (
	ColIteration Column = iota
	ColSamples
	ColUniqueSamples
	ColLoss
	ColError
	ColPerturbationLoss
	ColPerturbationError
	ColDecoderPerturbationLoss
	ColDecoderPerturbationError
	ColSuccess
	ColIterations
	ColNorm
	ColDecoderSuccess
	ColDecoderIterations
	ColDecoderNorm
	// ColGradient only exists in the training table.
	ColGradient

	numColumns
)

const (
	// TestColumns is the width of the test table.
	TestColumns = int(ColGradient)
	// TrainColumns is the width of the training table.
	TrainColumns = int(numColumns)
)

var columnNames = [numColumns]string{
	"iteration",
	"samples",
	"unique_samples",
	"loss",
	"error",
	"perturbation_loss",
	"perturbation_error",
	"decoder_perturbation_loss",
	"decoder_perturbation_error",
	"success",
	"iterations",
	"norm",
	"decoder_success",
	"decoder_iterations",
	"decoder_norm",
	"gradient",
}

func (c Column) String() string {
	if c < 0 || c >= numColumns {
		return "unknown"
	}
	return columnNames[c]
}

// Columns returns the first width columns in table order.
func Columns(width int) []Column {
	cols := make([]Column, width)
	for i := range cols {
		cols[i] = Column(i)
	}
	return cols
}

// Row is one logged step or epoch.
type Row struct {
	Iteration     float64
	Samples       float64
	UniqueSamples float64

	Loss                     float64
	Error                    float64
	PerturbationLoss         float64
	PerturbationError        float64
	DecoderPerturbationLoss  float64
	DecoderPerturbationError float64

	Success           float64
	Iterations        float64
	Norm              float64
	DecoderSuccess    float64
	DecoderIterations float64
	DecoderNorm       float64

	Gradient float64
}

// Values lays the row out in column order, truncated to width.
func (r Row) Values(width int) []float64 {
	all := [numColumns]float64{
		r.Iteration, r.Samples, r.UniqueSamples,
		r.Loss, r.Error,
		r.PerturbationLoss, r.PerturbationError,
		r.DecoderPerturbationLoss, r.DecoderPerturbationError,
		r.Success, r.Iterations, r.Norm,
		r.DecoderSuccess, r.DecoderIterations, r.DecoderNorm,
		r.Gradient,
	}
	return append([]float64(nil), all[:width]...)
}

// Progress fills the sample counters of a row logged at iteration, for an
// epoch of numBatches batches of batchSize where every batch is attacked
// for maxIterations iterations.
func (r *Row) Progress(iteration, numBatches, batchSize, maxIterations int) {
	r.Iteration = float64(iteration)
	r.Samples = float64(iteration * (1 + maxIterations) * batchSize)
	seen := iteration
	if numBatches < seen {
		seen = numBatches
	}
	r.UniqueSamples = float64(seen*batchSize + iteration*maxIterations*batchSize)
}

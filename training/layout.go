package training

import (
	"fmt"

	"manifold_lib/tensor"

	"gonum.org/v1/gonum/stat"
)

// Range is a half-open row interval [Lo, Hi) of a batch.
type Range struct {
	Lo, Hi int
}

// Len is the number of rows in r.
func (r Range) Len() int { return r.Hi - r.Lo }

// Layout partitions a batch into pixel-attacked, decoder-attacked and clean
// rows. The partitions are contiguous, disjoint and ordered, so a row keeps
// its position in the merged classifier input.
type Layout struct {
	BatchSize int
	Split     int
	Full      bool

	Pixel, Decoder, Clean Range
}

// NewLayout splits at batchSize/2. The default variant attacks the first
// half (pixel then decoder, split/2 rows for the pixel attack) and keeps the
// second half clean; the full variant attacks every row.
func NewLayout(batchSize int, full bool) (Layout, error) {
	split := batchSize / 2
	l := Layout{BatchSize: batchSize, Split: split, Full: full}
	if full {
		if split < 1 {
			return Layout{}, fmt.Errorf("training: batch size %d too small for the full variant", batchSize)
		}
		l.Pixel = Range{0, split}
		l.Decoder = Range{split, batchSize}
		l.Clean = Range{batchSize, batchSize}
		return l, nil
	}
	if split/2 < 1 {
		return Layout{}, fmt.Errorf("training: batch size %d too small", batchSize)
	}
	l.Pixel = Range{0, split / 2}
	l.Decoder = Range{split / 2, split}
	l.Clean = Range{split, batchSize}
	return l, nil
}

// Partitions returns the non-empty partitions in merged order.
func (l Layout) Partitions() []Range {
	out := []Range{l.Pixel, l.Decoder}
	if l.Clean.Len() > 0 {
		out = append(out, l.Clean)
	}
	return out
}

// Merge stacks the partition images as [pixel, decoder, clean]. clean must
// be nil in the full variant.
func (l Layout) Merge(pixel, decoder, clean *tensor.Tensor) (*tensor.Tensor, error) {
	if pixel.Rows() != l.Pixel.Len() || decoder.Rows() != l.Decoder.Len() {
		return nil, fmt.Errorf("training: merge got %d pixel and %d decoder rows, want %d and %d",
			pixel.Rows(), decoder.Rows(), l.Pixel.Len(), l.Decoder.Len())
	}
	parts := []*tensor.Tensor{pixel, decoder}
	if l.Clean.Len() > 0 {
		if clean == nil || clean.Rows() != l.Clean.Len() {
			return nil, fmt.Errorf("training: merge needs %d clean rows", l.Clean.Len())
		}
		parts = append(parts, clean)
	} else if clean != nil && clean.Rows() > 0 {
		return nil, fmt.Errorf("training: full variant takes no clean rows")
	}
	return tensor.Concat(parts...)
}

// CombineLosses is the mean of the loss terms.
func CombineLosses(terms ...float64) float64 {
	if len(terms) == 0 {
		return 0
	}
	return stat.Mean(terms, nil)
}

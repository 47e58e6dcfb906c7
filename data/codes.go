package data

import (
	"fmt"

	"manifold_lib/tensor"
)

// FontColumn is the codes column holding the font index.
const FontColumn = 1

// OneHotCodes builds the decoder conditioning code: the one-hot font
// followed by the one-hot class.
func OneHotCodes(fonts, classes []int, nFont, nClass int) (*tensor.Tensor, error) {
	if len(fonts) != len(classes) {
		return nil, fmt.Errorf("data: %d fonts but %d classes", len(fonts), len(classes))
	}
	out := tensor.New(len(fonts), nFont+nClass)
	for i := range fonts {
		if fonts[i] < 0 || fonts[i] >= nFont {
			return nil, fmt.Errorf("data: font %d out of range [0, %d)", fonts[i], nFont)
		}
		if classes[i] < 0 || classes[i] >= nClass {
			return nil, fmt.Errorf("data: class %d out of range [0, %d)", classes[i], nClass)
		}
		row := out.Row(i)
		row[fonts[i]] = 1
		row[nFont+classes[i]] = 1
	}
	return out, nil
}

// BatchCodes reads fonts and classes of indices and one-hot encodes them.
func BatchCodes(ds Dataset, indices []int, labelColumn, nFont, nClass int) (*tensor.Tensor, error) {
	return OneHotCodes(ds.Codes(indices, FontColumn), ds.Codes(indices, labelColumn), nFont, nClass)
}

// Cardinality returns 1 + the largest value of column over the dataset.
func Cardinality(ds Dataset, column int) int {
	all := make([]int, ds.Len())
	for i := range all {
		all[i] = i
	}
	largest := -1
	for _, c := range ds.Codes(all, column) {
		if c > largest {
			largest = c
		}
	}
	return largest + 1
}

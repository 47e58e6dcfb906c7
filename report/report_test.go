package report

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"manifold_lib/stats"

	"github.com/stretchr/testify/require"
)

func TestLineWritesPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loss.png")
	err := Line(path,
		[][]float64{{1, 2, 3}, {1, 3}},
		[][]float64{{0.9, math.NaN(), 0.5}, {0.8, 0.6}},
		[]string{"Train Loss", "Test Loss"}, "Loss", "Iteration", "Loss")
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestLineValidation(t *testing.T) {
	require.NoError(t, Line("", nil, nil, nil, "", "", ""))
	err := Line(filepath.Join(t.TempDir(), "x.png"), [][]float64{{1}}, [][]float64{{1, 2}}, []string{"a"}, "", "", "")
	require.Error(t, err)
}

func TestPlotSkipsEmptyNames(t *testing.T) {
	dir := t.TempDir()
	agg := stats.NewAggregator()
	for k := 1; k <= 4; k++ {
		require.NoError(t, agg.RecordTrain(stats.Row{Iteration: float64(k), Loss: 1 / float64(k), Gradient: 0.1}))
	}
	require.NoError(t, agg.RecordTest(stats.Row{Iteration: 4, Loss: 0.3, DecoderIterations: -1}))

	files := Files{Loss: filepath.Join(dir, "loss.png"), Gradient: filepath.Join(dir, "gradient.png")}
	require.NoError(t, Plot(files, agg.Train, agg.Test))

	_, err := os.Stat(files.Loss)
	require.NoError(t, err)
	_, err = os.Stat(files.Gradient)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "error.png"))
	require.True(t, os.IsNotExist(err))
}

package train

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfrederiksen/drf-pp/internal/dataset"
	"github.com/pfrederiksen/drf-pp/internal/metrics"
	"github.com/pfrederiksen/drf-pp/internal/nn"
)

func writeCSV(t *testing.T, rows int, withLabel bool) string {
	t.Helper()
	var b strings.Builder
	if withLabel {
		b.WriteString("speed,odds,winner\n")
	} else {
		b.WriteString("speed,odds\n")
	}
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "%d,%d.5", 80+i*3%17, 2+i%5)
		if withLabel {
			fmt.Fprintf(&b, ",%d", i%2)
		}
		b.WriteString("\n")
	}
	path := filepath.Join(t.TempDir(), "races.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

func smallLayers() []nn.LayerSpec {
	return []nn.LayerSpec{
		{Kind: nn.KindLSTM, Units: 4, ReturnSequences: true},
		{Kind: nn.KindDropout, Rate: 0.2},
		{Kind: nn.KindLSTM, Units: 3},
		{Kind: nn.KindDense, Units: 2, Activation: nn.ActivationReLU},
		{Kind: nn.KindDense, Units: 1, Activation: nn.ActivationSigmoid},
	}
}

func TestRun(t *testing.T) {
	csvPath := writeCSV(t, 16, true)
	modelPath := filepath.Join(t.TempDir(), "model.msgpack")

	params := DefaultHyperparams()
	params.Epochs = 3
	params.BatchSize = 4

	m := metrics.New()
	tr := New(modelPath, params)
	tr.Layers = smallLayers()
	tr.Metrics = m

	res, err := tr.Run(context.Background(), csvPath)
	require.NoError(t, err)

	assert.Equal(t, 15, res.Samples)
	assert.Equal(t, 15, res.SeqLen)
	assert.Equal(t, 2, res.Features)
	assert.Equal(t, 3, res.TestSamples)
	assert.Equal(t, 12, res.TrainSamples)
	assert.Len(t, res.History.Epochs, 3)
	assert.GreaterOrEqual(t, res.TestAccuracy, 0.0)
	assert.LessOrEqual(t, res.TestAccuracy, 1.0)
	assert.Equal(t, modelPath, res.ModelPath)

	loaded, err := nn.Load(modelPath)
	require.NoError(t, err)
	seqLen, features := loaded.InputShape()
	assert.Equal(t, 15, seqLen)
	assert.Equal(t, 2, features)

	expected := `
# HELP drfpp_train_samples Number of prepared training sequences
# TYPE drfpp_train_samples gauge
drfpp_train_samples 15
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "drfpp_train_samples"))
}

func TestRunDefaultArchitecture(t *testing.T) {
	csvPath := writeCSV(t, 5, true)
	modelPath := filepath.Join(t.TempDir(), "model.msgpack")

	params := DefaultHyperparams()
	params.Epochs = 1

	res, err := New(modelPath, params).Run(context.Background(), csvPath)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Samples)
	assert.Equal(t, 4, res.SeqLen)
	assert.Equal(t, 1, res.TestSamples)
	assert.FileExists(t, modelPath)
}

func TestRunMissingLabel(t *testing.T) {
	csvPath := writeCSV(t, 6, false)
	modelPath := filepath.Join(t.TempDir(), "model.msgpack")

	_, err := New(modelPath, DefaultHyperparams()).Run(context.Background(), csvPath)
	assert.ErrorIs(t, err, dataset.ErrMissingLabel)
	assert.NoFileExists(t, modelPath)
}

func TestRunMissingFile(t *testing.T) {
	modelPath := filepath.Join(t.TempDir(), "model.msgpack")
	_, err := New(modelPath, DefaultHyperparams()).Run(context.Background(), filepath.Join(t.TempDir(), "none.csv"))
	assert.Error(t, err)
	assert.NoFileExists(t, modelPath)
}

func TestRunCancelled(t *testing.T) {
	csvPath := writeCSV(t, 10, true)
	modelPath := filepath.Join(t.TempDir(), "model.msgpack")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := New(modelPath, DefaultHyperparams())
	tr.Layers = smallLayers()
	_, err := tr.Run(ctx, csvPath)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, modelPath)
}

func TestDefaultHyperparams(t *testing.T) {
	p := DefaultHyperparams()
	assert.Equal(t, 50, p.Epochs)
	assert.Equal(t, 32, p.BatchSize)
	assert.Equal(t, 0.2, p.ValidationSplit)
	assert.Equal(t, 0.2, p.TestFraction)
	assert.Equal(t, int64(42), p.Seed)
}

package nn

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tinySpecs() []LayerSpec {
	return []LayerSpec{
		{Kind: KindLSTM, Units: 3, ReturnSequences: true},
		{Kind: KindDropout, Rate: 0},
		{Kind: KindLSTM, Units: 2},
		{Kind: KindDense, Units: 2, Activation: ActivationLinear},
		{Kind: KindDense, Units: 1, Activation: ActivationSigmoid},
	}
}

// separable builds sequences whose label is decided by their level
func separable(n, seqLen int) ([][][]float64, []float64) {
	X := make([][][]float64, n)
	y := make([]float64, n)
	for i := range X {
		level := 0.1
		if i%2 == 0 {
			level = 0.9
			y[i] = 1
		}
		seq := make([][]float64, seqLen)
		for t := range seq {
			seq[t] = []float64{level + 0.01*float64(t), 1 - level}
		}
		X[i] = seq
	}
	return X, y
}

func TestGradientsMatchFiniteDifferences(t *testing.T) {
	m, err := New(3, 2, tinySpecs(), 7)
	require.NoError(t, err)

	x := [][]float64{{0.2, 0.7}, {0.5, 0.1}, {0.9, 0.4}}
	const label = 1.0

	lossAt := func() float64 {
		p, _ := m.forward(x, false)
		return BinaryCrossEntropy(p, label)
	}

	m.zeroGrad()
	p, steps := m.forward(x, true)
	m.backward(p, label, steps)

	const h = 1e-5
	for _, param := range m.Params() {
		analytic := append([]float64(nil), param.Grad...)
		for i := range param.Value {
			orig := param.Value[i]
			param.Value[i] = orig + h
			plus := lossAt()
			param.Value[i] = orig - h
			minus := lossAt()
			param.Value[i] = orig

			numeric := (plus - minus) / (2 * h)
			diff := math.Abs(numeric - analytic[i])
			scale := math.Max(1, math.Abs(numeric)+math.Abs(analytic[i]))
			assert.Less(t, diff/scale, 1e-4, "%s[%d]: analytic %v numeric %v", param.Name, i, analytic[i], numeric)
		}
	}
}

func TestFitReducesLoss(t *testing.T) {
	X, y := separable(40, 3)
	m, err := New(3, 2, []LayerSpec{
		{Kind: KindLSTM, Units: 8},
		{Kind: KindDense, Units: 1, Activation: ActivationSigmoid},
	}, 42)
	require.NoError(t, err)

	var seen []int
	hist, err := m.Fit(context.Background(), X, y, FitConfig{
		Epochs:          30,
		BatchSize:       4,
		ValidationSplit: 0.2,
		OnEpoch:         func(s EpochStats) { seen = append(seen, s.Epoch) },
	})
	require.NoError(t, err)
	require.Len(t, hist.Epochs, 30)
	assert.Equal(t, 1, seen[0])
	assert.Equal(t, 30, seen[len(seen)-1])

	first, last := hist.Epochs[0], hist.Last()
	assert.Less(t, last.Loss, first.Loss)
	assert.True(t, last.Validated)
	assert.Less(t, last.ValLoss, first.ValLoss)
}

func TestFitValidation(t *testing.T) {
	X, y := separable(4, 2)
	m, err := New(2, 2, tinySpecs(), 1)
	require.NoError(t, err)

	tests := []struct {
		name string
		cfg  FitConfig
	}{
		{"zero epochs", FitConfig{Epochs: 0, BatchSize: 2}},
		{"zero batch", FitConfig{Epochs: 1, BatchSize: 0}},
		{"split too large", FitConfig{Epochs: 1, BatchSize: 2, ValidationSplit: 1}},
		{"negative split", FitConfig{Epochs: 1, BatchSize: 2, ValidationSplit: -0.1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Fit(context.Background(), X, y, tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestFitNoTrainingSamplesAfterSplit(t *testing.T) {
	X, y := separable(1, 2)
	m, err := New(2, 2, tinySpecs(), 1)
	require.NoError(t, err)

	_, err = m.Fit(context.Background(), X, y, FitConfig{Epochs: 1, BatchSize: 1, ValidationSplit: 0.5})
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestFitStopsOnCancelledContext(t *testing.T) {
	X, y := separable(8, 2)
	m, err := New(2, 2, tinySpecs(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = m.Fit(ctx, X, y, FitConfig{Epochs: 5, BatchSize: 2})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestShapeErrors(t *testing.T) {
	m, err := New(2, 2, tinySpecs(), 1)
	require.NoError(t, err)

	_, err = m.Predict(nil)
	assert.ErrorIs(t, err, ErrNoSamples)

	_, err = m.Predict([][][]float64{{{1, 2}}})
	assert.ErrorIs(t, err, ErrShape)

	_, err = m.Predict([][][]float64{{{1, 2}, {3}}})
	assert.ErrorIs(t, err, ErrShape)

	_, _, err = m.Evaluate([][][]float64{{{1, 2}, {3, 4}}}, []float64{1, 0})
	assert.ErrorIs(t, err, ErrShape)
}

func TestNewRejectsBadSpecs(t *testing.T) {
	tests := []struct {
		name  string
		specs []LayerSpec
	}{
		{"empty", nil},
		{"unknown kind", []LayerSpec{{Kind: "conv"}}},
		{"lstm without units", []LayerSpec{{Kind: KindLSTM}, {Kind: KindDense, Units: 1}}},
		{"dropout rate", []LayerSpec{{Kind: KindDropout, Rate: 1}, {Kind: KindDense, Units: 1}}},
		{"activation", []LayerSpec{{Kind: KindDense, Units: 1, Activation: "tanh"}}},
		{"output width", []LayerSpec{{Kind: KindDense, Units: 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(2, 2, tt.specs, 1)
			assert.Error(t, err)
		})
	}

	_, err := New(0, 2, tinySpecs(), 1)
	assert.ErrorIs(t, err, ErrShape)
}

func TestClassifierArchitecture(t *testing.T) {
	m, err := BuildClassifier(4, 3, 42)
	require.NoError(t, err)

	seqLen, features := m.InputShape()
	assert.Equal(t, 4, seqLen)
	assert.Equal(t, 3, features)

	// 4*128*(3+128+1) + 4*64*(128+64+1) + (64*32+32) + (32+1)
	assert.Equal(t, 67584+49408+2080+33, m.NumParams())
	assert.Contains(t, m.Summary(), "total params 119105")

	probs, err := m.Predict([][][]float64{{{0, 0, 0}, {0, 0, 0}, {0.1, 0.2, 0.3}, {1, 1, 1}}})
	require.NoError(t, err)
	require.Len(t, probs, 1)
	assert.Greater(t, probs[0], 0.0)
	assert.Less(t, probs[0], 1.0)
}

func TestSameSeedSameModel(t *testing.T) {
	X, _ := separable(3, 2)
	a, err := New(2, 2, tinySpecs(), 9)
	require.NoError(t, err)
	b, err := New(2, 2, tinySpecs(), 9)
	require.NoError(t, err)

	pa, err := a.Predict(X)
	require.NoError(t, err)
	pb, err := b.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	X, y := separable(10, 3)
	m, err := New(3, 2, tinySpecs(), 3)
	require.NoError(t, err)
	_, err = m.Fit(context.Background(), X, y, FitConfig{Epochs: 2, BatchSize: 4})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "model.msgpack")
	require.NoError(t, m.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)

	want, err := m.Predict(X)
	require.NoError(t, err)
	got, err := loaded.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, m.Summary(), loaded.Summary())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("not a model")))
	assert.ErrorIs(t, err, ErrBadModelFile)

	m, err := New(2, 2, tinySpecs(), 3)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, m.Encode(&buf))

	truncated := buf.Bytes()[:buf.Len()/2]
	_, err = Decode(bytes.NewReader(truncated))
	assert.ErrorIs(t, err, ErrBadModelFile)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.msgpack"))
	assert.Error(t, err)
}

func TestDropoutIsIdentityAtInference(t *testing.T) {
	m, err := New(2, 2, []LayerSpec{
		{Kind: KindDropout, Rate: 0.5},
		{Kind: KindLSTM, Units: 2},
		{Kind: KindDense, Units: 1, Activation: ActivationSigmoid},
	}, 5)
	require.NoError(t, err)

	X, _ := separable(2, 2)
	first, err := m.Predict(X)
	require.NoError(t, err)
	second, err := m.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBinaryCrossEntropy(t *testing.T) {
	assert.InDelta(t, -math.Log(0.8), BinaryCrossEntropy(0.8, 1), 1e-12)
	assert.InDelta(t, -math.Log(0.2), BinaryCrossEntropy(0.8, 0), 1e-12)
	assert.False(t, math.IsInf(BinaryCrossEntropy(0, 1), 0))
	assert.False(t, math.IsInf(BinaryCrossEntropy(1, 0), 0))
}

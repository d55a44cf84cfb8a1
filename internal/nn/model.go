package nn

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

const (
	KindLSTM    = "lstm"
	KindDropout = "dropout"
	KindDense   = "dense"
)

var (
	// ErrShape is returned when a sample does not match the model input shape
	ErrShape = errors.New("input shape mismatch")
	// ErrNoSamples is returned when there is nothing to train on or evaluate
	ErrNoSamples = errors.New("no samples")
)

// Layer maps a sequence of vectors to a sequence of vectors
type Layer interface {
	Forward(xs [][]float64, training bool) [][]float64
	Backward(dys [][]float64) [][]float64
	Params() []*Param
	Spec() LayerSpec
	OutputWidth() int
}

// LayerSpec describes one layer of a Model
type LayerSpec struct {
	Kind            string  `msgpack:"kind"`
	Units           int     `msgpack:"units,omitempty"`
	ReturnSequences bool    `msgpack:"return_sequences,omitempty"`
	Rate            float64 `msgpack:"rate,omitempty"`
	Activation      string  `msgpack:"activation,omitempty"`
}

// ClassifierSpecs is the stacked LSTM win/lose classifier:
// LSTM(128) -> Dropout(0.2) -> LSTM(64) -> Dropout(0.2) -> Dense(32, relu) -> Dense(1, sigmoid)
func ClassifierSpecs() []LayerSpec {
	return []LayerSpec{
		{Kind: KindLSTM, Units: 128, ReturnSequences: true},
		{Kind: KindDropout, Rate: 0.2},
		{Kind: KindLSTM, Units: 64},
		{Kind: KindDropout, Rate: 0.2},
		{Kind: KindDense, Units: 32, Activation: ActivationReLU},
		{Kind: KindDense, Units: 1, Activation: ActivationSigmoid},
	}
}

// Model is a sequential binary classifier trained with Adam on binary cross-entropy
type Model struct {
	seqLen   int
	features int
	seed     int64
	layers   []Layer
	opt      *Adam
	rng      *rand.Rand
}

// BuildClassifier builds the default classifier for inputs of shape (seqLen, features)
func BuildClassifier(seqLen, features int, seed int64) (*Model, error) {
	return New(seqLen, features, ClassifierSpecs(), seed)
}

// New builds a model from layer specs. The last layer must produce one value.
func New(seqLen, features int, specs []LayerSpec, seed int64) (*Model, error) {
	if seqLen <= 0 || features <= 0 {
		return nil, fmt.Errorf("%w: input shape (%d, %d)", ErrShape, seqLen, features)
	}
	if len(specs) == 0 {
		return nil, errors.New("model needs at least one layer")
	}

	rng := rand.New(rand.NewSource(seed))
	m := &Model{
		seqLen:   seqLen,
		features: features,
		seed:     seed,
		opt:      NewAdam(),
		rng:      rng,
	}

	width := features
	for i, s := range specs {
		var layer Layer
		switch s.Kind {
		case KindLSTM:
			if s.Units <= 0 {
				return nil, fmt.Errorf("layer %d: lstm needs units", i)
			}
			layer = NewLSTM(width, s.Units, s.ReturnSequences, rng)
		case KindDropout:
			if s.Rate < 0 || s.Rate >= 1 {
				return nil, fmt.Errorf("layer %d: dropout rate %v out of range", i, s.Rate)
			}
			layer = NewDropout(width, s.Rate, rng)
		case KindDense:
			if s.Units <= 0 {
				return nil, fmt.Errorf("layer %d: dense needs units", i)
			}
			d, err := NewDense(width, s.Units, s.Activation, rng)
			if err != nil {
				return nil, fmt.Errorf("layer %d: %w", i, err)
			}
			layer = d
		default:
			return nil, fmt.Errorf("layer %d: unknown kind %q", i, s.Kind)
		}
		m.layers = append(m.layers, layer)
		width = layer.OutputWidth()
	}

	if width != 1 {
		return nil, fmt.Errorf("final layer must have 1 unit, has %d", width)
	}
	return m, nil
}

// InputShape returns (sequence length, features)
func (m *Model) InputShape() (int, int) {
	return m.seqLen, m.features
}

// Params returns every trainable parameter in layer order
func (m *Model) Params() []*Param {
	var params []*Param
	for _, l := range m.layers {
		params = append(params, l.Params()...)
	}
	return params
}

// NumParams counts trainable scalars
func (m *Model) NumParams() int {
	n := 0
	for _, p := range m.Params() {
		n += len(p.Value)
	}
	return n
}

// Summary lists the layers with their output widths and parameter counts
func (m *Model) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "input (%d, %d)\n", m.seqLen, m.features)
	for _, l := range m.layers {
		s := l.Spec()
		n := 0
		for _, p := range l.Params() {
			n += len(p.Value)
		}
		switch s.Kind {
		case KindDropout:
			fmt.Fprintf(&b, "%-8s rate=%.2f\n", s.Kind, s.Rate)
		case KindDense:
			fmt.Fprintf(&b, "%-8s units=%d activation=%s params=%d\n", s.Kind, s.Units, s.Activation, n)
		default:
			fmt.Fprintf(&b, "%-8s units=%d return_sequences=%t params=%d\n", s.Kind, s.Units, s.ReturnSequences, n)
		}
	}
	fmt.Fprintf(&b, "total params %d", m.NumParams())
	return b.String()
}

func (m *Model) checkInput(X [][][]float64, y []float64) error {
	if len(X) == 0 {
		return ErrNoSamples
	}
	if y != nil && len(y) != len(X) {
		return fmt.Errorf("%w: %d sequences, %d labels", ErrShape, len(X), len(y))
	}
	for i, seq := range X {
		if len(seq) != m.seqLen {
			return fmt.Errorf("%w: sample %d has %d steps, want %d", ErrShape, i, len(seq), m.seqLen)
		}
		for _, row := range seq {
			if len(row) != m.features {
				return fmt.Errorf("%w: sample %d has %d features, want %d", ErrShape, i, len(row), m.features)
			}
		}
	}
	return nil
}

// forward returns the probability at the last output step and the number of output steps
func (m *Model) forward(x [][]float64, training bool) (float64, int) {
	out := x
	for _, l := range m.layers {
		out = l.Forward(out, training)
	}
	return out[len(out)-1][0], len(out)
}

// backward propagates the loss gradient; only the last output step carries loss
func (m *Model) backward(p, y float64, steps int) {
	grad := make([][]float64, steps)
	for t := range grad {
		grad[t] = []float64{0}
	}
	grad[steps-1][0] = binaryCrossEntropyGrad(p, y)
	for i := len(m.layers) - 1; i >= 0; i-- {
		grad = m.layers[i].Backward(grad)
	}
}

func (m *Model) zeroGrad() {
	for _, p := range m.Params() {
		p.ZeroGrad()
	}
}

// Predict returns the win probability for each sequence
func (m *Model) Predict(X [][][]float64) ([]float64, error) {
	if err := m.checkInput(X, nil); err != nil {
		return nil, err
	}
	out := make([]float64, len(X))
	for i, x := range X {
		out[i], _ = m.forward(x, false)
	}
	return out, nil
}

// Evaluate returns mean binary cross-entropy and accuracy
func (m *Model) Evaluate(X [][][]float64, y []float64) (loss, accuracy float64, err error) {
	if err := m.checkInput(X, y); err != nil {
		return 0, 0, err
	}
	for i, x := range X {
		p, _ := m.forward(x, false)
		loss += BinaryCrossEntropy(p, y[i])
		if predictedClass(p) == y[i] {
			accuracy++
		}
	}
	n := float64(len(X))
	return loss / n, accuracy / n, nil
}

package nn

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pfrederiksen/drf-pp/internal/storage"
)

const (
	modelFormat  = "drf-pp/sequential"
	modelVersion = 1
)

// ErrBadModelFile is returned when a saved model cannot be decoded or does
// not match its own architecture
var ErrBadModelFile = errors.New("invalid model file")

type savedParam struct {
	Name  string    `msgpack:"name"`
	Rows  int       `msgpack:"rows"`
	Cols  int       `msgpack:"cols"`
	Value []float64 `msgpack:"value"`
}

type savedModel struct {
	Format   string       `msgpack:"format"`
	Version  int          `msgpack:"version"`
	SeqLen   int          `msgpack:"seq_len"`
	Features int          `msgpack:"features"`
	Seed     int64        `msgpack:"seed"`
	Layers   []LayerSpec  `msgpack:"layers"`
	Weights  []savedParam `msgpack:"weights"`
}

// Encode writes the architecture and weights as msgpack
func (m *Model) Encode(w io.Writer) error {
	sm := savedModel{
		Format:   modelFormat,
		Version:  modelVersion,
		SeqLen:   m.seqLen,
		Features: m.features,
		Seed:     m.seed,
	}
	for _, l := range m.layers {
		sm.Layers = append(sm.Layers, l.Spec())
	}
	for _, p := range m.Params() {
		sm.Weights = append(sm.Weights, savedParam{Name: p.Name, Rows: p.Rows, Cols: p.Cols, Value: p.Value})
	}
	return msgpack.NewEncoder(w).Encode(&sm)
}

// Save writes the model to path, replacing any existing file
func (m *Model) Save(path string) error {
	var buf bytes.Buffer
	if err := m.Encode(&buf); err != nil {
		return fmt.Errorf("encoding model: %w", err)
	}
	if err := storage.WriteArtifact(path, buf.Bytes()); err != nil {
		return fmt.Errorf("saving model: %w", err)
	}
	return nil
}

// Decode reads a model written by Encode
func Decode(r io.Reader) (*Model, error) {
	var sm savedModel
	if err := msgpack.NewDecoder(r).Decode(&sm); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadModelFile, err)
	}
	if sm.Format != modelFormat {
		return nil, fmt.Errorf("%w: format %q", ErrBadModelFile, sm.Format)
	}
	if sm.Version != modelVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadModelFile, sm.Version)
	}

	m, err := New(sm.SeqLen, sm.Features, sm.Layers, sm.Seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadModelFile, err)
	}

	params := m.Params()
	if len(params) != len(sm.Weights) {
		return nil, fmt.Errorf("%w: %d weight tensors, architecture has %d", ErrBadModelFile, len(sm.Weights), len(params))
	}
	for i, p := range params {
		w := sm.Weights[i]
		if w.Rows != p.Rows || w.Cols != p.Cols || len(w.Value) != len(p.Value) {
			return nil, fmt.Errorf("%w: tensor %d (%s) is %dx%d, want %dx%d", ErrBadModelFile, i, w.Name, w.Rows, w.Cols, p.Rows, p.Cols)
		}
		copy(p.Value, w.Value)
	}
	return m, nil
}

// Load reads a model file written by Save
func Load(path string) (*Model, error) {
	path, err := storage.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening model: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

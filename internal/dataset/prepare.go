package dataset

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// LabelColumn is the binary outcome column every dataset must carry
const LabelColumn = "winner"

var (
	ErrMissingLabel     = errors.New("'winner' column is required in the dataset")
	ErrNonBinaryLabel   = errors.New("'winner' column must contain only 0 or 1")
	ErrInsufficientRows = errors.New("dataset needs at least 2 rows to build sequences")
	ErrNoFeatures       = errors.New("dataset has no feature columns")
	ErrEmptyDataset     = errors.New("dataset is empty")
)

// Prepared holds model-ready sequences.
//
// X[i] is the expanding window of scaled feature rows 0..i, left-padded with
// zero rows to SeqLen. Y[i] is the winner value of row i+1. Rows are shared
// between windows and must not be modified.
type Prepared struct {
	X        [][][]float64
	Y        []float64
	Features []string
	SeqLen   int
	Scaler   *MinMaxScaler
}

// Samples returns the number of sequences
func (p *Prepared) Samples() int {
	return len(p.Y)
}

// NumFeatures returns the per-step feature width
func (p *Prepared) NumFeatures() int {
	return len(p.Features)
}

// Prepare loads a CSV file and builds training sequences from it
func Prepare(path string) (*Prepared, error) {
	table, err := LoadCSV(path)
	if err != nil {
		return nil, err
	}
	return PrepareTable(table)
}

// PrepareTable builds training sequences from a table.
//
// The scaler is fit on every row before any train/test split, so test rows
// contribute to the scaling bounds.
func PrepareTable(t *Table) (*Prepared, error) {
	labelIdx := t.ColumnIndex(LabelColumn)
	if labelIdx < 0 {
		return nil, ErrMissingLabel
	}

	features := make([]string, 0, len(t.Columns)-1)
	for i, c := range t.Columns {
		if i != labelIdx {
			features = append(features, c)
		}
	}
	if len(features) == 0 {
		return nil, ErrNoFeatures
	}

	n := t.Len()
	if n < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientRows, n)
	}

	raw := mat.NewDense(n, len(features), nil)
	labels := make([]float64, n)
	for r, rec := range t.Records {
		col := 0
		for c, cell := range rec {
			if c == labelIdx {
				v, err := parseLabel(cell)
				if err != nil {
					return nil, fmt.Errorf("row %d: %w", r+1, err)
				}
				labels[r] = v
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("row %d column %q: not numeric: %q", r+1, t.Columns[c], cell)
			}
			raw.Set(r, col, v)
			col++
		}
	}

	scaler := &MinMaxScaler{}
	scaled, err := scaler.FitTransform(raw)
	if err != nil {
		return nil, err
	}

	rows := make([][]float64, n)
	for r := 0; r < n; r++ {
		rows[r] = scaled.RawRowView(r)
	}

	X := ExpandingWindows(rows[:n-1])
	seqLen := MaxLen(X)

	return &Prepared{
		X:        PadLeft(X, seqLen, len(features)),
		Y:        append([]float64(nil), labels[1:]...),
		Features: features,
		SeqLen:   seqLen,
		Scaler:   scaler,
	}, nil
}

func parseLabel(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if v, err := strconv.ParseFloat(cell, 64); err == nil {
		if v != 0 && v != 1 {
			return 0, fmt.Errorf("%w: got %q", ErrNonBinaryLabel, cell)
		}
		return v, nil
	}
	if b, err := strconv.ParseBool(cell); err == nil {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("%w: got %q", ErrNonBinaryLabel, cell)
}

// ExpandingWindows returns, for each i, the prefix rows[0..i]
func ExpandingWindows(rows [][]float64) [][][]float64 {
	out := make([][][]float64, len(rows))
	for i := range rows {
		out[i] = rows[:i+1]
	}
	return out
}

// PadLeft pads every sequence at the front with zero rows of width features
// so that all sequences have length seqLen. Sequences are never truncated;
// a longer sequence is returned as is.
func PadLeft(seqs [][][]float64, seqLen, features int) [][][]float64 {
	zero := make([]float64, features)
	out := make([][][]float64, len(seqs))
	for i, seq := range seqs {
		pad := seqLen - len(seq)
		if pad <= 0 {
			out[i] = seq
			continue
		}
		padded := make([][]float64, 0, seqLen)
		for j := 0; j < pad; j++ {
			padded = append(padded, zero)
		}
		out[i] = append(padded, seq...)
	}
	return out
}

// MaxLen returns the length of the longest sequence
func MaxLen(seqs [][][]float64) int {
	m := 0
	for _, s := range seqs {
		if len(s) > m {
			m = len(s)
		}
	}
	return m
}

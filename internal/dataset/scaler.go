package dataset

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// MinMaxScaler maps each column independently onto [0, 1] using the
// column minimum and maximum seen during Fit. Constant columns map to 0.
type MinMaxScaler struct {
	Min []float64
	Max []float64
}

// Fit records per-column minimum and maximum of x
func (s *MinMaxScaler) Fit(x mat.Matrix) error {
	r, c := x.Dims()
	if r == 0 || c == 0 {
		return fmt.Errorf("fitting scaler: %w", ErrEmptyDataset)
	}

	s.Min = make([]float64, c)
	s.Max = make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		for _, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("fitting scaler: column %d has non-finite value %v", j, v)
			}
		}
		s.Min[j] = floats.Min(col)
		s.Max[j] = floats.Max(col)
	}
	return nil
}

// Transform returns a scaled copy of x
func (s *MinMaxScaler) Transform(x mat.Matrix) (*mat.Dense, error) {
	r, c := x.Dims()
	if c != len(s.Min) {
		return nil, fmt.Errorf("scaler fit on %d columns, got %d", len(s.Min), c)
	}

	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, v float64) float64 {
		span := s.Max[j] - s.Min[j]
		if span == 0 {
			span = 1
		}
		return (v - s.Min[j]) / span
	}, x)
	return out, nil
}

// FitTransform fits the scaler on x and returns x scaled
func (s *MinMaxScaler) FitTransform(x mat.Matrix) (*mat.Dense, error) {
	if err := s.Fit(x); err != nil {
		return nil, err
	}
	return s.Transform(x)
}

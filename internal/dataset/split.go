package dataset

import (
	"fmt"
	"math"
	"math/rand"
)

// Split is a shuffled train/test partition of prepared samples
type Split struct {
	TrainX [][][]float64
	TrainY []float64
	TestX  [][][]float64
	TestY  []float64
}

// TrainTestSplit shuffles samples with a fixed seed and holds out
// ceil(n*testFraction) of them for testing.
func TrainTestSplit(X [][][]float64, y []float64, testFraction float64, seed int64) (*Split, error) {
	n := len(y)
	if len(X) != n {
		return nil, fmt.Errorf("inconsistent sample counts: %d sequences, %d labels", len(X), n)
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, fmt.Errorf("test fraction must be in (0, 1), got %v", testFraction)
	}

	nTest := int(math.Ceil(testFraction * float64(n)))
	nTrain := n - nTest
	if nTest < 1 || nTrain < 1 {
		return nil, fmt.Errorf("%d samples cannot be split with test fraction %v", n, testFraction)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)

	s := &Split{
		TrainX: make([][][]float64, 0, nTrain),
		TrainY: make([]float64, 0, nTrain),
		TestX:  make([][][]float64, 0, nTest),
		TestY:  make([]float64, 0, nTest),
	}
	for i, idx := range perm {
		if i < nTest {
			s.TestX = append(s.TestX, X[idx])
			s.TestY = append(s.TestY, y[idx])
			continue
		}
		s.TrainX = append(s.TrainX, X[idx])
		s.TrainY = append(s.TrainY, y[idx])
	}

	return s, nil
}

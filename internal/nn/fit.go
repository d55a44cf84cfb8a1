package nn

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// FitConfig controls a training run
type FitConfig struct {
	Epochs    int
	BatchSize int
	// ValidationSplit is the fraction of samples, taken from the end, held out
	// for per-epoch validation. Zero disables validation.
	ValidationSplit float64
	// OnEpoch, if set, is called after every epoch
	OnEpoch func(EpochStats)
}

// EpochStats reports one epoch. Validation fields are zero when no
// validation split is configured.
type EpochStats struct {
	Epoch       int     `json:"epoch"`
	Loss        float64 `json:"loss"`
	Accuracy    float64 `json:"accuracy"`
	ValLoss     float64 `json:"val_loss,omitempty"`
	ValAccuracy float64 `json:"val_accuracy,omitempty"`
	Validated   bool    `json:"-"`
}

// History is the list of epoch stats in order
type History struct {
	Epochs []EpochStats `json:"epochs"`
}

// Last returns the final epoch, or the zero value if none ran
func (h *History) Last() EpochStats {
	if h == nil || len(h.Epochs) == 0 {
		return EpochStats{}
	}
	return h.Epochs[len(h.Epochs)-1]
}

// Fit trains the model with mini-batch Adam. Samples are shuffled each epoch.
// Training stops early with ctx.Err() if ctx is cancelled between batches.
func (m *Model) Fit(ctx context.Context, X [][][]float64, y []float64, cfg FitConfig) (*History, error) {
	if err := m.checkInput(X, y); err != nil {
		return nil, err
	}
	if cfg.Epochs <= 0 {
		return nil, fmt.Errorf("epochs must be positive, got %d", cfg.Epochs)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.ValidationSplit < 0 || cfg.ValidationSplit >= 1 {
		return nil, fmt.Errorf("validation split %v out of range [0, 1)", cfg.ValidationSplit)
	}

	trainX, trainY := X, y
	var valX [][][]float64
	var valY []float64
	if cfg.ValidationSplit > 0 {
		splitAt := int(float64(len(X)) * (1 - cfg.ValidationSplit))
		if splitAt < len(X) {
			trainX, valX = X[:splitAt], X[splitAt:]
			trainY, valY = y[:splitAt], y[splitAt:]
		}
	}
	if len(trainX) == 0 {
		return nil, errors.Join(ErrNoSamples, fmt.Errorf("validation split %v leaves no training samples", cfg.ValidationSplit))
	}

	history := &History{}
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		stats, err := m.runEpoch(ctx, trainX, trainY, cfg.BatchSize)
		if err != nil {
			return history, err
		}
		stats.Epoch = epoch

		if len(valX) > 0 {
			vl, va, err := m.Evaluate(valX, valY)
			if err != nil {
				return history, err
			}
			stats.ValLoss, stats.ValAccuracy, stats.Validated = vl, va, true
		}

		history.Epochs = append(history.Epochs, stats)
		if cfg.OnEpoch != nil {
			cfg.OnEpoch(stats)
		}
	}
	return history, nil
}

func (m *Model) runEpoch(ctx context.Context, X [][][]float64, y []float64, batchSize int) (EpochStats, error) {
	order := m.rng.Perm(len(X))
	params := m.Params()

	var loss, correct float64
	for start := 0; start < len(order); start += batchSize {
		if err := ctx.Err(); err != nil {
			return EpochStats{}, err
		}

		end := min(start+batchSize, len(order))
		batch := order[start:end]

		m.zeroGrad()
		for _, idx := range batch {
			p, steps := m.forward(X[idx], true)
			m.backward(p, y[idx], steps)

			loss += BinaryCrossEntropy(p, y[idx])
			if predictedClass(p) == y[idx] {
				correct++
			}
		}

		scale := 1 / float64(len(batch))
		for _, p := range params {
			floats.Scale(scale, p.Grad)
		}
		m.opt.Step(params)
	}

	n := float64(len(X))
	return EpochStats{Loss: loss / n, Accuracy: correct / n}, nil
}

// Package train runs the end-to-end model training pipeline: prepare the
// dataset, split it, fit the classifier, evaluate it and save it.
package train

import (
	"context"
	"fmt"
	"time"

	"github.com/pfrederiksen/drf-pp/internal/dataset"
	"github.com/pfrederiksen/drf-pp/internal/logger"
	"github.com/pfrederiksen/drf-pp/internal/metrics"
	"github.com/pfrederiksen/drf-pp/internal/nn"
)

// Hyperparams controls a training run
type Hyperparams struct {
	Epochs          int
	BatchSize       int
	ValidationSplit float64
	TestFraction    float64
	Seed            int64
}

// DefaultHyperparams returns 50 epochs, batch 32, 20% validation, 20% test, seed 42
func DefaultHyperparams() Hyperparams {
	return Hyperparams{
		Epochs:          50,
		BatchSize:       32,
		ValidationSplit: 0.2,
		TestFraction:    0.2,
		Seed:            42,
	}
}

// Result summarizes a finished run
type Result struct {
	Samples      int         `json:"samples"`
	SeqLen       int         `json:"seq_len"`
	Features     int         `json:"features"`
	TrainSamples int         `json:"train_samples"`
	TestSamples  int         `json:"test_samples"`
	TestLoss     float64     `json:"test_loss"`
	TestAccuracy float64     `json:"test_accuracy"`
	ModelPath    string      `json:"model_path"`
	History      *nn.History `json:"history"`
	Duration     string      `json:"duration"`
}

// Trainer trains and saves the win/lose classifier
type Trainer struct {
	params    Hyperparams
	modelPath string

	// Layers overrides the default classifier architecture
	Layers []nn.LayerSpec
	// Metrics, if set, receives sample counts, epoch losses and test results
	Metrics *metrics.Metrics
}

// New creates a Trainer that saves to modelPath
func New(modelPath string, params Hyperparams) *Trainer {
	return &Trainer{
		params:    params,
		modelPath: modelPath,
		Layers:    nn.ClassifierSpecs(),
	}
}

// Run trains on csvPath. Errors from any stage are logged and returned, and
// no model file is written.
func (t *Trainer) Run(ctx context.Context, csvPath string) (*Result, error) {
	res, err := t.run(ctx, csvPath)
	if err != nil {
		logger.Error("Training failed", logger.Fields{"csv": csvPath}, err)
		return nil, err
	}
	return res, nil
}

func (t *Trainer) run(ctx context.Context, csvPath string) (*Result, error) {
	start := time.Now()

	prepared, err := dataset.Prepare(csvPath)
	if err != nil {
		return nil, fmt.Errorf("preparing dataset: %w", err)
	}
	t.Metrics.SetSamples(prepared.Samples())
	logger.Info("Dataset prepared", logger.Fields{
		"samples":  prepared.Samples(),
		"seq_len":  prepared.SeqLen,
		"features": prepared.NumFeatures(),
	})

	split, err := dataset.TrainTestSplit(prepared.X, prepared.Y, t.params.TestFraction, t.params.Seed)
	if err != nil {
		return nil, fmt.Errorf("splitting dataset: %w", err)
	}

	model, err := nn.New(prepared.SeqLen, prepared.NumFeatures(), t.Layers, t.params.Seed)
	if err != nil {
		return nil, fmt.Errorf("building model: %w", err)
	}
	logger.Debug("Model built", logger.Fields{"params": model.NumParams()})

	history, err := model.Fit(ctx, split.TrainX, split.TrainY, nn.FitConfig{
		Epochs:          t.params.Epochs,
		BatchSize:       t.params.BatchSize,
		ValidationSplit: t.params.ValidationSplit,
		OnEpoch: func(s nn.EpochStats) {
			t.Metrics.ObserveEpoch(s.Loss, s.ValLoss)
			logger.Debug("Epoch finished", logger.Fields{
				"epoch":        s.Epoch,
				"loss":         s.Loss,
				"accuracy":     s.Accuracy,
				"val_loss":     s.ValLoss,
				"val_accuracy": s.ValAccuracy,
			})
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fitting model: %w", err)
	}

	loss, accuracy, err := model.Evaluate(split.TestX, split.TestY)
	if err != nil {
		return nil, fmt.Errorf("evaluating model: %w", err)
	}
	t.Metrics.SetEvaluation(loss, accuracy)
	logger.Info(fmt.Sprintf("Test Accuracy: %.2f%%", accuracy*100), logger.Fields{
		"test_loss":     loss,
		"test_samples":  len(split.TestY),
		"train_samples": len(split.TrainY),
	})

	if err := model.Save(t.modelPath); err != nil {
		return nil, err
	}
	logger.Info("Model saved", logger.Fields{"path": t.modelPath})

	return &Result{
		Samples:      prepared.Samples(),
		SeqLen:       prepared.SeqLen,
		Features:     prepared.NumFeatures(),
		TrainSamples: len(split.TrainY),
		TestSamples:  len(split.TestY),
		TestLoss:     loss,
		TestAccuracy: accuracy,
		ModelPath:    t.modelPath,
		History:      history,
		Duration:     time.Since(start).Round(time.Millisecond).String(),
	}, nil
}

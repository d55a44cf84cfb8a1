// Package nn is a small sequential neural network for binary classification
// of fixed-length sequences.
//
// Layers (LSTM, Dropout, Dense) are stacked by Model and trained with Adam on
// binary cross-entropy. Gradients are computed by backpropagation through time
// on gonum matrices. Models round-trip through a msgpack file holding the
// layer specs and weights.
//
// Example:
//
//	m, err := nn.BuildClassifier(seqLen, features, 42)
//	if err != nil {
//	    return err
//	}
//	hist, err := m.Fit(ctx, X, y, nn.FitConfig{Epochs: 50, BatchSize: 32, ValidationSplit: 0.2})
//	if err != nil {
//	    return err
//	}
//	loss, acc, err := m.Evaluate(testX, testY)
//	if err := m.Save("model.msgpack"); err != nil {
//	    return err
//	}
package nn

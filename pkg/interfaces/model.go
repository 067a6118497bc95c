package interfaces

import "context"

// SequenceModel predicts the next scaled target from a window of scaled
// feature rows. The window is ordered oldest first.
type SequenceModel interface {
	// Predict runs one forward pass and returns the scaled prediction
	Predict(ctx context.Context, window [][]float64) (float64, error)

	// WindowSize returns the number of rows the model consumes
	WindowSize() int

	// InputSize returns the number of features per row
	InputSize() int
}

// FeatureScaler maps feature rows into and out of model space.
type FeatureScaler interface {
	// Transform scales one row
	Transform(row []float64) ([]float64, error)

	// InverseColumn maps a scaled value of column idx back to raw units
	InverseColumn(idx int, value float64) (float64, error)

	// Width returns the number of columns the scaler was fitted on
	Width() int
}

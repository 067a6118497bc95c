package testutil

import (
	"context"
	"sync"
)

// FakeModel is an in-memory interfaces.SequenceModel.
type FakeModel struct {
	Window   int
	Features int
	Fn       func(window [][]float64) (float64, error)

	mu      sync.Mutex
	windows [][][]float64
}

// Predict implements interfaces.SequenceModel
func (m *FakeModel) Predict(ctx context.Context, window [][]float64) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	copied := make([][]float64, len(window))
	for i, row := range window {
		copied[i] = append([]float64(nil), row...)
	}
	m.mu.Lock()
	m.windows = append(m.windows, copied)
	m.mu.Unlock()

	if m.Fn == nil {
		return 0, nil
	}
	return m.Fn(window)
}

// WindowSize implements interfaces.SequenceModel
func (m *FakeModel) WindowSize() int {
	if m.Window == 0 {
		return 1
	}
	return m.Window
}

// InputSize implements interfaces.SequenceModel
func (m *FakeModel) InputSize() int {
	return m.Features
}

// Windows returns every window the model was called with.
func (m *FakeModel) Windows() [][][]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][][]float64(nil), m.windows...)
}

// Calls returns the number of Predict calls.
func (m *FakeModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.windows)
}

// IdentityScaler is an interfaces.FeatureScaler that leaves values as is.
type IdentityScaler struct {
	Columns int
}

// Transform implements interfaces.FeatureScaler
func (s IdentityScaler) Transform(row []float64) ([]float64, error) {
	return append([]float64(nil), row...), nil
}

// InverseColumn implements interfaces.FeatureScaler
func (s IdentityScaler) InverseColumn(idx int, value float64) (float64, error) {
	return value, nil
}

// Width implements interfaces.FeatureScaler
func (s IdentityScaler) Width() int {
	return s.Columns
}

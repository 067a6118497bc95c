package artifacts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinMaxScaler(t *testing.T) {
	s, err := NewMinMaxScaler([]float64{0, 10}, []float64{20, 10}, [2]float64{0, 1})
	require.NoError(t, err)
	assert.Equal(t, ScalerMinMax, s.Kind())
	assert.Equal(t, 2, s.Width())

	out, err := s.Transform([]float64{5, 12})
	require.NoError(t, err)
	// constant column divides by one
	assert.InDeltaSlice(t, []float64{0.25, 2}, out, 1e-12)

	back, err := s.InverseColumn(0, 0.25)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, back, 1e-12)
}

func TestMinMaxScalerCustomRange(t *testing.T) {
	s, err := NewMinMaxScaler([]float64{0}, []float64{10}, [2]float64{-1, 1})
	require.NoError(t, err)

	out, err := s.Transform([]float64{5})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, out[0], 1e-12)

	back, err := s.InverseColumn(0, 1)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, back, 1e-12)
}

func TestStandardScaler(t *testing.T) {
	s, err := NewStandardScaler([]float64{10, 0}, []float64{2, 0})
	require.NoError(t, err)

	out, err := s.Transform([]float64{14, 3})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2, 3}, out, 1e-12)

	back, err := s.InverseColumn(0, -1)
	require.NoError(t, err)
	assert.InDelta(t, 8.0, back, 1e-12)
}

func TestScalerErrors(t *testing.T) {
	_, err := NewMinMaxScaler([]float64{0}, []float64{1, 2}, [2]float64{0, 1})
	assert.Error(t, err)
	_, err = NewMinMaxScaler([]float64{0}, []float64{1}, [2]float64{1, 1})
	assert.Error(t, err)
	_, err = NewStandardScaler(nil, nil)
	assert.Error(t, err)

	s, err := NewStandardScaler([]float64{0, 0}, []float64{1, 1})
	require.NoError(t, err)
	_, err = s.Transform([]float64{1})
	assert.Error(t, err)
	_, err = s.InverseColumn(2, 1)
	assert.Error(t, err)

	_, err = s.TransformRows([][]float64{{1, 2}, {3}})
	assert.ErrorContains(t, err, "row 1")
}

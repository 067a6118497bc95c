package artifacts

import (
	"fmt"
)

// ScalerKind names a fitted column scaler.
type ScalerKind string

const (
	ScalerMinMax   ScalerKind = "minmax"
	ScalerStandard ScalerKind = "standard"
)

// Scaler is a fitted per-column affine transform. Parameters are set once at
// load time and never change.
type Scaler struct {
	kind     ScalerKind
	dataMin  []float64
	dataMax  []float64
	rangeMin float64
	rangeMax float64
	mean     []float64
	scale    []float64
}

// NewMinMaxScaler builds a min-max scaler from fitted bounds.
func NewMinMaxScaler(dataMin, dataMax []float64, featureRange [2]float64) (*Scaler, error) {
	if len(dataMin) == 0 || len(dataMin) != len(dataMax) {
		return nil, fmt.Errorf("minmax scaler needs equal non-empty data_min/data_max, got %d and %d",
			len(dataMin), len(dataMax))
	}
	if featureRange[0] >= featureRange[1] {
		return nil, fmt.Errorf("invalid feature_range %v", featureRange)
	}
	return &Scaler{
		kind:     ScalerMinMax,
		dataMin:  append([]float64(nil), dataMin...),
		dataMax:  append([]float64(nil), dataMax...),
		rangeMin: featureRange[0],
		rangeMax: featureRange[1],
	}, nil
}

// NewStandardScaler builds a z-score scaler from fitted moments.
func NewStandardScaler(mean, scale []float64) (*Scaler, error) {
	if len(mean) == 0 || len(mean) != len(scale) {
		return nil, fmt.Errorf("standard scaler needs equal non-empty mean/scale, got %d and %d",
			len(mean), len(scale))
	}
	return &Scaler{
		kind:  ScalerStandard,
		mean:  append([]float64(nil), mean...),
		scale: append([]float64(nil), scale...),
	}, nil
}

// Kind returns the scaler kind.
func (s *Scaler) Kind() ScalerKind {
	return s.kind
}

// Width implements interfaces.FeatureScaler
func (s *Scaler) Width() int {
	if s.kind == ScalerMinMax {
		return len(s.dataMin)
	}
	return len(s.mean)
}

// Transform implements interfaces.FeatureScaler
func (s *Scaler) Transform(row []float64) ([]float64, error) {
	if len(row) != s.Width() {
		return nil, fmt.Errorf("scaler expects %d columns, got %d", s.Width(), len(row))
	}

	result := make([]float64, len(row))
	for i, val := range row {
		offset, factor := s.column(i)
		result[i] = (val-offset)/factor*s.span() + s.floor()
	}
	return result, nil
}

// TransformRows scales every row of a frame.
func (s *Scaler) TransformRows(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		scaled, err := s.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = scaled
	}
	return out, nil
}

// InverseColumn implements interfaces.FeatureScaler
func (s *Scaler) InverseColumn(idx int, value float64) (float64, error) {
	if idx < 0 || idx >= s.Width() {
		return 0, fmt.Errorf("column %d outside scaler width %d", idx, s.Width())
	}
	offset, factor := s.column(idx)
	return (value-s.floor())/s.span()*factor + offset, nil
}

// column returns the offset and divisor of column i. Constant columns
// divide by one, as the fitting library does.
func (s *Scaler) column(i int) (offset, factor float64) {
	switch s.kind {
	case ScalerMinMax:
		offset = s.dataMin[i]
		factor = s.dataMax[i] - s.dataMin[i]
	default:
		offset = s.mean[i]
		factor = s.scale[i]
	}
	if factor == 0 {
		factor = 1
	}
	return offset, factor
}

func (s *Scaler) span() float64 {
	if s.kind == ScalerMinMax {
		return s.rangeMax - s.rangeMin
	}
	return 1
}

func (s *Scaler) floor() float64 {
	if s.kind == ScalerMinMax {
		return s.rangeMin
	}
	return 0
}

package artifacts

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"

	"github.com/inferloop/salesforecast/pkg/constants"
	"github.com/inferloop/salesforecast/pkg/interfaces"
)

// ScalerBundle is the decoded scaler file: either a bare scaler or a
// structured bundle carrying feature metadata.
type ScalerBundle interface {
	FeatureScaler() *Scaler
	isScalerBundle()
}

// PlainBundle is a scaler file that holds only the transform.
type PlainBundle struct {
	Scaler *Scaler
}

// StructuredBundle is a scaler file with feature order, lag depth and
// target transform metadata.
type StructuredBundle struct {
	Scaler      *Scaler
	FeatureCols []string
	NSteps      int
	YLog        bool
	YMu         float64
	YSd         float64
}

func (b *PlainBundle) FeatureScaler() *Scaler      { return b.Scaler }
func (b *StructuredBundle) FeatureScaler() *Scaler { return b.Scaler }
func (*PlainBundle) isScalerBundle()               {}
func (*StructuredBundle) isScalerBundle()          {}

// scalerSpec is the JSON form of a fitted scaler.
type scalerSpec struct {
	Kind         string    `json:"kind"`
	DataMin      []float64 `json:"data_min,omitempty"`
	DataMax      []float64 `json:"data_max,omitempty"`
	FeatureRange []float64 `json:"feature_range,omitempty"`
	Mean         []float64 `json:"mean,omitempty"`
	Scale        []float64 `json:"scale,omitempty"`
}

// structuredSpec is the JSON form of a structured bundle.
type structuredSpec struct {
	XScaler       *scalerSpec `json:"x_scaler"`
	Scaler        *scalerSpec `json:"scaler"`
	FeatureScaler *scalerSpec `json:"feature_scaler"`
	FeatureCols   []string    `json:"feature_cols"`
	NSteps        *int        `json:"n_steps"`
	YLog          bool        `json:"y_log"`
	YMu           *float64    `json:"y_mu"`
	YSd           *float64    `json:"y_sd"`
}

// DecodeScalerBundle recognizes a plain or structured scaler file.
func DecodeScalerBundle(data []byte) (ScalerBundle, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode scaler: %w", err)
	}

	if _, ok := fields["kind"]; ok {
		var spec scalerSpec
		if err := json.Unmarshal(data, &spec); err != nil {
			return nil, fmt.Errorf("decode scaler: %w", err)
		}
		scaler, err := spec.build()
		if err != nil {
			return nil, err
		}
		return &PlainBundle{Scaler: scaler}, nil
	}

	var spec structuredSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("decode scaler bundle: %w", err)
	}
	inner := spec.XScaler
	if inner == nil {
		inner = spec.Scaler
	}
	if inner == nil {
		inner = spec.FeatureScaler
	}
	if inner == nil {
		return nil, fmt.Errorf("scaler bundle has no x_scaler, scaler or feature_scaler")
	}
	scaler, err := inner.build()
	if err != nil {
		return nil, err
	}

	bundle := &StructuredBundle{
		Scaler:      scaler,
		FeatureCols: spec.FeatureCols,
		YLog:        spec.YLog,
		YSd:         1,
	}
	if spec.NSteps != nil {
		if *spec.NSteps < 1 {
			return nil, fmt.Errorf("n_steps must be positive, got %d", *spec.NSteps)
		}
		bundle.NSteps = *spec.NSteps
	}
	if spec.YMu != nil {
		bundle.YMu = *spec.YMu
	}
	if spec.YSd != nil {
		bundle.YSd = *spec.YSd
	}
	if len(bundle.FeatureCols) > 0 && len(bundle.FeatureCols) != scaler.Width() {
		return nil, fmt.Errorf("feature_cols lists %d columns but scaler has %d",
			len(bundle.FeatureCols), scaler.Width())
	}
	return bundle, nil
}

func (s *scalerSpec) build() (*Scaler, error) {
	switch ScalerKind(s.Kind) {
	case ScalerMinMax:
		featureRange := [2]float64{0, 1}
		if len(s.FeatureRange) == 2 {
			featureRange = [2]float64{s.FeatureRange[0], s.FeatureRange[1]}
		} else if len(s.FeatureRange) != 0 {
			return nil, fmt.Errorf("feature_range must have two values")
		}
		return NewMinMaxScaler(s.DataMin, s.DataMax, featureRange)
	case ScalerStandard:
		return NewStandardScaler(s.Mean, s.Scale)
	default:
		return nil, fmt.Errorf("unknown scaler kind %q", s.Kind)
	}
}

// Lag depth sources, reported in logs.
const (
	LagFromNSteps      = "n_steps"
	LagFromFeatureCols = "feature_cols"
	LagFromScalerWidth = "scaler_width"
	LagFromDefault     = "default"
)

// Bundle is the resolved, immutable artifact set used for inference.
type Bundle struct {
	Model       interfaces.SequenceModel
	Scaler      interfaces.FeatureScaler
	FeatureCols []string
	LagDepth    int
	LagSource   string
	TargetLog   bool
	TargetMean  float64
	TargetStd   float64
}

var lagColumn = regexp.MustCompile(`^lag_?\d+$`)

// Resolve normalizes a model and decoded scaler file into a Bundle. Lag depth
// comes from n_steps, then the lag columns of feature_cols, then the monthly
// scaler width, and only then defaultLag.
func Resolve(model interfaces.SequenceModel, sb ScalerBundle, defaultLag int) (*Bundle, error) {
	if model == nil || sb == nil || sb.FeatureScaler() == nil {
		return nil, fmt.Errorf("model and scaler are both required")
	}
	scaler := sb.FeatureScaler()
	bundle := &Bundle{
		Model:     model,
		Scaler:    scaler,
		TargetStd: 1,
	}

	var nSteps int
	if structured, ok := sb.(*StructuredBundle); ok {
		bundle.FeatureCols = append([]string(nil), structured.FeatureCols...)
		bundle.TargetLog = structured.YLog
		bundle.TargetMean = structured.YMu
		bundle.TargetStd = structured.YSd
		nSteps = structured.NSteps
	}

	switch {
	case nSteps > 0:
		bundle.LagDepth, bundle.LagSource = nSteps, LagFromNSteps
	case countLagColumns(bundle.FeatureCols) > 0:
		bundle.LagDepth, bundle.LagSource = countLagColumns(bundle.FeatureCols), LagFromFeatureCols
	case len(bundle.FeatureCols) == 0 && scaler.Width() > constants.MonthlyNonLagColumns:
		bundle.LagDepth, bundle.LagSource = scaler.Width()-constants.MonthlyNonLagColumns, LagFromScalerWidth
	default:
		if defaultLag < 1 {
			return nil, fmt.Errorf("no lag depth in artifacts and no usable default")
		}
		bundle.LagDepth, bundle.LagSource = defaultLag, LagFromDefault
	}
	return bundle, nil
}

func countLagColumns(cols []string) int {
	n := 0
	for _, c := range cols {
		if lagColumn.MatchString(c) {
			n++
		}
	}
	return n
}

// InvertTarget maps a raw model output back to units.
func (b *Bundle) InvertTarget(pred float64) float64 {
	if !b.TargetLog {
		return pred
	}
	return math.Expm1(pred*b.TargetStd + b.TargetMean)
}

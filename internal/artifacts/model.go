package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/inferloop/salesforecast/pkg/constants"
)

// layerSpec is one layer of an exported model file.
type layerSpec struct {
	Type            string      `json:"type"`
	Units           int         `json:"units"`
	Activation      string      `json:"activation,omitempty"`
	Kernel          [][]float64 `json:"kernel"`
	RecurrentKernel [][]float64 `json:"recurrent_kernel,omitempty"`
	Bias            []float64   `json:"bias"`
}

// modelFile is the on-disk model format.
type modelFile struct {
	Format   string      `json:"format"`
	Window   int         `json:"window"`
	Features int         `json:"features"`
	Layers   []layerSpec `json:"layers"`
}

// LSTMLayer is a trained LSTM layer. Weights use the Keras layout: kernel is
// inputSize×4U, recurrent is U×4U, gates ordered input, forget, cell, output.
type LSTMLayer struct {
	inputSize  int
	hiddenSize int
	kernel     *mat.Dense
	recurrent  *mat.Dense
	bias       *mat.VecDense
}

// DenseLayer is a trained fully connected layer.
type DenseLayer struct {
	inputSize  int
	units      int
	kernel     *mat.Dense
	bias       *mat.VecDense
	activation string
}

// SequenceRegressor is a stack of LSTM layers followed by dense layers that
// maps a window of feature rows to one scalar.
type SequenceRegressor struct {
	window   int
	features int
	lstm     []*LSTMLayer
	dense    []*DenseLayer
}

// DecodeModel reads a model in the sequence-regressor JSON format.
func DecodeModel(r io.Reader) (*SequenceRegressor, error) {
	var file modelFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	return buildModel(&file)
}

func buildModel(file *modelFile) (*SequenceRegressor, error) {
	if file.Format != constants.ModelFormat {
		return nil, fmt.Errorf("unsupported model format %q", file.Format)
	}
	if file.Window < 1 {
		return nil, fmt.Errorf("model window must be positive, got %d", file.Window)
	}
	if file.Features < 1 {
		return nil, fmt.Errorf("model features must be positive, got %d", file.Features)
	}
	if len(file.Layers) == 0 {
		return nil, fmt.Errorf("model has no layers")
	}

	m := &SequenceRegressor{window: file.Window, features: file.Features}
	inputSize := file.Features
	for i, spec := range file.Layers {
		switch spec.Type {
		case "lstm":
			if len(m.dense) > 0 {
				return nil, fmt.Errorf("layer %d: lstm after dense layer", i)
			}
			layer, err := newLSTMLayer(inputSize, spec)
			if err != nil {
				return nil, fmt.Errorf("layer %d: %w", i, err)
			}
			m.lstm = append(m.lstm, layer)
			inputSize = layer.hiddenSize
		case "dense":
			layer, err := newDenseLayer(inputSize, spec)
			if err != nil {
				return nil, fmt.Errorf("layer %d: %w", i, err)
			}
			m.dense = append(m.dense, layer)
			inputSize = layer.units
		default:
			return nil, fmt.Errorf("layer %d: unsupported type %q", i, spec.Type)
		}
	}
	if inputSize != 1 {
		return nil, fmt.Errorf("model output has %d units, want 1", inputSize)
	}
	return m, nil
}

func newLSTMLayer(inputSize int, spec layerSpec) (*LSTMLayer, error) {
	units := spec.Units
	if units < 1 {
		return nil, fmt.Errorf("lstm units must be positive")
	}
	kernel, err := denseFrom(spec.Kernel, inputSize, 4*units, "kernel")
	if err != nil {
		return nil, err
	}
	recurrent, err := denseFrom(spec.RecurrentKernel, units, 4*units, "recurrent_kernel")
	if err != nil {
		return nil, err
	}
	if len(spec.Bias) != 4*units {
		return nil, fmt.Errorf("lstm bias has %d values, want %d", len(spec.Bias), 4*units)
	}
	return &LSTMLayer{
		inputSize:  inputSize,
		hiddenSize: units,
		kernel:     kernel,
		recurrent:  recurrent,
		bias:       mat.NewVecDense(len(spec.Bias), append([]float64(nil), spec.Bias...)),
	}, nil
}

func newDenseLayer(inputSize int, spec layerSpec) (*DenseLayer, error) {
	if spec.Units < 1 {
		return nil, fmt.Errorf("dense units must be positive")
	}
	switch spec.Activation {
	case "", "linear", "relu", "sigmoid", "tanh":
	default:
		return nil, fmt.Errorf("unsupported activation %q", spec.Activation)
	}
	kernel, err := denseFrom(spec.Kernel, inputSize, spec.Units, "kernel")
	if err != nil {
		return nil, err
	}
	if len(spec.Bias) != spec.Units {
		return nil, fmt.Errorf("dense bias has %d values, want %d", len(spec.Bias), spec.Units)
	}
	return &DenseLayer{
		inputSize:  inputSize,
		units:      spec.Units,
		kernel:     kernel,
		bias:       mat.NewVecDense(spec.Units, append([]float64(nil), spec.Bias...)),
		activation: spec.Activation,
	}, nil
}

func denseFrom(rows [][]float64, r, c int, name string) (*mat.Dense, error) {
	if len(rows) != r {
		return nil, fmt.Errorf("%s has %d rows, want %d", name, len(rows), r)
	}
	data := make([]float64, 0, r*c)
	for i, row := range rows {
		if len(row) != c {
			return nil, fmt.Errorf("%s row %d has %d columns, want %d", name, i, len(row), c)
		}
		data = append(data, row...)
	}
	return mat.NewDense(r, c, data), nil
}

// WindowSize implements interfaces.SequenceModel
func (m *SequenceRegressor) WindowSize() int {
	return m.window
}

// InputSize implements interfaces.SequenceModel
func (m *SequenceRegressor) InputSize() int {
	return m.features
}

// Predict implements interfaces.SequenceModel
func (m *SequenceRegressor) Predict(ctx context.Context, window [][]float64) (float64, error) {
	if len(window) != m.window {
		return 0, fmt.Errorf("model expects window of %d rows, got %d", m.window, len(window))
	}
	sequence := make([]*mat.VecDense, len(window))
	for t, row := range window {
		if len(row) != m.features {
			return 0, fmt.Errorf("model expects %d features, got %d at row %d", m.features, len(row), t)
		}
		sequence[t] = mat.NewVecDense(len(row), append([]float64(nil), row...))
	}

	for _, layer := range m.lstm {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		sequence = layer.forward(sequence)
	}

	out := sequence[len(sequence)-1]
	for _, layer := range m.dense {
		out = layer.forward(out)
	}

	pred := out.AtVec(0)
	if math.IsNaN(pred) || math.IsInf(pred, 0) {
		return 0, fmt.Errorf("model produced non-finite output")
	}
	return pred, nil
}

// forward runs the layer over a sequence and returns every hidden state.
func (l *LSTMLayer) forward(sequence []*mat.VecDense) []*mat.VecDense {
	u := l.hiddenSize
	hidden := mat.NewVecDense(u, nil)
	cell := mat.NewVecDense(u, nil)
	gates := mat.NewVecDense(4*u, nil)
	recur := mat.NewVecDense(4*u, nil)

	outputs := make([]*mat.VecDense, len(sequence))
	for t, x := range sequence {
		gates.MulVec(l.kernel.T(), x)
		recur.MulVec(l.recurrent.T(), hidden)
		gates.AddVec(gates, recur)
		gates.AddVec(gates, l.bias)

		next := mat.NewVecDense(u, nil)
		for j := 0; j < u; j++ {
			in := sigmoid(gates.AtVec(j))
			forget := sigmoid(gates.AtVec(u + j))
			candidate := math.Tanh(gates.AtVec(2*u + j))
			output := sigmoid(gates.AtVec(3*u + j))

			c := forget*cell.AtVec(j) + in*candidate
			cell.SetVec(j, c)
			next.SetVec(j, output*math.Tanh(c))
		}
		hidden = next
		outputs[t] = next
	}
	return outputs
}

func (l *DenseLayer) forward(x *mat.VecDense) *mat.VecDense {
	out := mat.NewVecDense(l.units, nil)
	out.MulVec(l.kernel.T(), x)
	out.AddVec(out, l.bias)
	for i := 0; i < l.units; i++ {
		out.SetVec(i, activate(l.activation, out.AtVec(i)))
	}
	return out
}

func activate(name string, v float64) float64 {
	switch name {
	case "relu":
		return math.Max(0, v)
	case "sigmoid":
		return sigmoid(v)
	case "tanh":
		return math.Tanh(v)
	default:
		return v
	}
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

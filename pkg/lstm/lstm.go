// Package lstm is a single layer LSTM with a softmax head, evaluated with
// gonum. Gate rows are stacked input, forget, cell, output.
package lstm

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"os"

	"github.com/mikesmitty/gesture-predictor/pkg/inference"
	"github.com/mikesmitty/gesture-predictor/pkg/motion"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// Weights is the on-disk model description.
type Weights struct {
	Labels           []string    `yaml:"labels"`
	HiddenSize       int         `yaml:"hidden_size"`
	InputWeights     [][]float64 `yaml:"input_weights"`
	RecurrentWeights [][]float64 `yaml:"recurrent_weights"`
	Bias             []float64   `yaml:"bias"`
	OutputWeights    [][]float64 `yaml:"output_weights"`
	OutputBias       []float64   `yaml:"output_bias"`
}

type Model struct {
	labels []string
	hidden int
	wx     *mat.Dense
	wh     *mat.Dense
	b      *mat.VecDense
	wo     *mat.Dense
	bo     *mat.VecDense
}

func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lstm: %w", err)
	}
	var w Weights
	if err := yaml.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("lstm: %s: %w", path, err)
	}
	return New(w)
}

func New(w Weights) (*Model, error) {
	h := w.HiddenSize
	if h <= 0 {
		return nil, fmt.Errorf("%w: hidden size %d", inference.ErrShape, h)
	}
	if len(w.Labels) == 0 {
		return nil, fmt.Errorf("lstm: %w", inference.ErrEmpty)
	}
	wx, err := dense("input_weights", w.InputWeights, 4*h, motion.NumFeatures)
	if err != nil {
		return nil, err
	}
	wh, err := dense("recurrent_weights", w.RecurrentWeights, 4*h, h)
	if err != nil {
		return nil, err
	}
	wo, err := dense("output_weights", w.OutputWeights, len(w.Labels), h)
	if err != nil {
		return nil, err
	}
	if len(w.Bias) != 4*h {
		return nil, fmt.Errorf("%w: bias has %d values, want %d", inference.ErrShape, len(w.Bias), 4*h)
	}
	if len(w.OutputBias) != len(w.Labels) {
		return nil, fmt.Errorf("%w: output_bias has %d values, want %d", inference.ErrShape, len(w.OutputBias), len(w.Labels))
	}
	return &Model{
		labels: append([]string(nil), w.Labels...),
		hidden: h,
		wx:     wx,
		wh:     wh,
		b:      mat.NewVecDense(4*h, append([]float64(nil), w.Bias...)),
		wo:     wo,
		bo:     mat.NewVecDense(len(w.Labels), append([]float64(nil), w.OutputBias...)),
	}, nil
}

// NewRandom builds an untrained model with small uniform weights. It is only
// useful for exercising the pipeline.
func NewRandom(labels []string, hidden int, seed uint64) (*Model, error) {
	if hidden <= 0 {
		return nil, fmt.Errorf("%w: hidden size %d", inference.ErrShape, hidden)
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	scale := 1 / math.Sqrt(float64(hidden))
	fill := func(rows, cols int) [][]float64 {
		m := make([][]float64, rows)
		for i := range m {
			m[i] = make([]float64, cols)
			for j := range m[i] {
				m[i][j] = (rng.Float64()*2 - 1) * scale
			}
		}
		return m
	}
	bias := make([]float64, 4*hidden)
	for i := hidden; i < 2*hidden; i++ {
		bias[i] = 1 // forget gate
	}
	return New(Weights{
		Labels:           labels,
		HiddenSize:       hidden,
		InputWeights:     fill(4*hidden, motion.NumFeatures),
		RecurrentWeights: fill(4*hidden, hidden),
		Bias:             bias,
		OutputWeights:    fill(len(labels), hidden),
		OutputBias:       make([]float64, len(labels)),
	})
}

func (m *Model) Labels() []string {
	return m.labels
}

func (m *Model) HiddenSize() int {
	return m.hidden
}

// Classify runs the window through the LSTM starting from prior, or from zero
// state when prior is nil.
func (m *Model) Classify(ctx context.Context, window []motion.Vector, prior *inference.State) (inference.Distribution, *inference.State, error) {
	if err := ctx.Err(); err != nil {
		return inference.Distribution{}, nil, err
	}
	if len(window) == 0 {
		return inference.Distribution{}, nil, fmt.Errorf("%w: empty window", inference.ErrShape)
	}

	h := mat.NewVecDense(m.hidden, nil)
	c := mat.NewVecDense(m.hidden, nil)
	if prior != nil {
		if len(prior.Hidden) != m.hidden || len(prior.Cell) != m.hidden {
			return inference.Distribution{}, nil, fmt.Errorf("%w: prior state %d/%d, want %d", inference.ErrShape, len(prior.Hidden), len(prior.Cell), m.hidden)
		}
		h.CopyVec(mat.NewVecDense(m.hidden, prior.Hidden))
		c.CopyVec(mat.NewVecDense(m.hidden, prior.Cell))
	}

	z := mat.NewVecDense(4*m.hidden, nil)
	var rec mat.VecDense
	for _, v := range window {
		x := mat.NewVecDense(motion.NumFeatures, v[:])
		z.MulVec(m.wx, x)
		rec.MulVec(m.wh, h)
		z.AddVec(z, &rec)
		z.AddVec(z, m.b)
		m.step(z.RawVector().Data, h.RawVector().Data, c.RawVector().Data)
	}

	var logits mat.VecDense
	logits.MulVec(m.wo, h)
	logits.AddVec(&logits, m.bo)
	probs := softmax(logits.RawVector().Data)

	next := &inference.State{
		Hidden: mat.Col(nil, 0, h),
		Cell:   mat.Col(nil, 0, c),
	}
	return inference.Distribution{Labels: m.labels, Probabilities: probs}, next, nil
}

func (m *Model) step(z, h, c []float64) {
	n := m.hidden
	for k := 0; k < n; k++ {
		i := sigmoid(z[k])
		f := sigmoid(z[n+k])
		g := math.Tanh(z[2*n+k])
		o := sigmoid(z[3*n+k])
		c[k] = f*c[k] + i*g
		h[k] = o * math.Tanh(c[k])
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	peak := floats.Max(logits)
	for i, l := range logits {
		out[i] = math.Exp(l - peak)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}

func dense(name string, rows [][]float64, r, c int) (*mat.Dense, error) {
	if len(rows) != r {
		return nil, fmt.Errorf("%w: %s has %d rows, want %d", inference.ErrShape, name, len(rows), r)
	}
	data := make([]float64, 0, r*c)
	for i, row := range rows {
		if len(row) != c {
			return nil, fmt.Errorf("%w: %s row %d has %d columns, want %d", inference.ErrShape, name, i, len(row), c)
		}
		data = append(data, row...)
	}
	return mat.NewDense(r, c, data), nil
}

package lstm

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/mikesmitty/gesture-predictor/pkg/inference"
	"github.com/mikesmitty/gesture-predictor/pkg/motion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

const zeroModel = `
labels: [idle, shake]
hidden_size: 1
input_weights: [[0,0,0,0,0,0],[0,0,0,0,0,0],[0,0,0,0,0,0],[0,0,0,0,0,0]]
recurrent_weights: [[0],[0],[0],[0]]
bias: [0, 0, 0, 0]
output_weights: [[0],[0]]
output_bias: [0, 1.0986122886681098]
`

func window(n int, f func(i int) motion.Vector) []motion.Vector {
	w := make([]motion.Vector, n)
	for i := range w {
		w[i] = f(i)
	}
	return w
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(zeroModel), 0o644))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"idle", "shake"}, m.Labels())
	assert.Equal(t, 1, m.HiddenSize())

	dist, next, err := m.Classify(context.Background(), window(20, func(int) motion.Vector { return motion.Vector{1, 2, 3, 4, 5, 6} }), nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.25, 0.75}, dist.Probabilities, 1e-9)
	assert.Equal(t, []float64{0}, next.Hidden)
	assert.Equal(t, []float64{0}, next.Cell)

	label, err := dist.Argmax()
	require.NoError(t, err)
	assert.Equal(t, "shake", label)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("labels: [a\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestNewShapeErrors(t *testing.T) {
	good, err := NewRandom([]string{"a", "b"}, 3, 1)
	require.NoError(t, err)
	require.NotNil(t, good)

	tests := []struct {
		name   string
		mutate func(w *Weights)
	}{
		{"hidden size", func(w *Weights) { w.HiddenSize = 0 }},
		{"input rows", func(w *Weights) { w.InputWeights = w.InputWeights[:1] }},
		{"input cols", func(w *Weights) { w.InputWeights[0] = w.InputWeights[0][:5] }},
		{"recurrent rows", func(w *Weights) { w.RecurrentWeights = nil }},
		{"bias", func(w *Weights) { w.Bias = w.Bias[:2] }},
		{"output rows", func(w *Weights) { w.OutputWeights = w.OutputWeights[:1] }},
		{"output bias", func(w *Weights) { w.OutputBias = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Weights{
				Labels:           []string{"a", "b"},
				HiddenSize:       2,
				InputWeights:     make([][]float64, 8),
				RecurrentWeights: make([][]float64, 8),
				Bias:             make([]float64, 8),
				OutputWeights:    [][]float64{{0, 0}, {0, 0}},
				OutputBias:       []float64{0, 0},
			}
			for i := range w.InputWeights {
				w.InputWeights[i] = make([]float64, motion.NumFeatures)
				w.RecurrentWeights[i] = make([]float64, 2)
			}
			_, err := New(w)
			require.NoError(t, err)

			tt.mutate(&w)
			_, err = New(w)
			assert.ErrorIs(t, err, inference.ErrShape)
		})
	}

	_, err = New(Weights{HiddenSize: 2})
	assert.ErrorIs(t, err, inference.ErrEmpty)
}

func TestClassifyRandom(t *testing.T) {
	labels := []string{"idle", "shake", "circle", "swipe"}
	m, err := NewRandom(labels, 8, 42)
	require.NoError(t, err)
	ctx := context.Background()
	w := window(20, func(i int) motion.Vector {
		x := math.Sin(float64(i))
		return motion.Vector{x, -x, x / 2, 1, 0, x}
	})

	cold, state, err := m.Classify(ctx, w, nil)
	require.NoError(t, err)
	require.Len(t, cold.Probabilities, len(labels))
	assert.InDelta(t, 1.0, floats.Sum(cold.Probabilities), 1e-9)
	require.Len(t, state.Hidden, 8)
	require.Len(t, state.Cell, 8)

	again, _, err := m.Classify(ctx, w, nil)
	require.NoError(t, err)
	assert.Equal(t, cold.Probabilities, again.Probabilities, "cold runs are deterministic")

	warm, _, err := m.Classify(ctx, w, state)
	require.NoError(t, err)
	assert.NotEqual(t, cold.Probabilities, warm.Probabilities, "prior state changes the output")

	same, err := NewRandom(labels, 8, 42)
	require.NoError(t, err)
	replay, _, err := same.Classify(ctx, w, nil)
	require.NoError(t, err)
	assert.Equal(t, cold.Probabilities, replay.Probabilities, "seeded models are reproducible")
}

func TestClassifyErrors(t *testing.T) {
	m, err := NewRandom([]string{"a"}, 4, 1)
	require.NoError(t, err)

	_, _, err = m.Classify(context.Background(), nil, nil)
	assert.ErrorIs(t, err, inference.ErrShape)

	_, _, err = m.Classify(context.Background(), []motion.Vector{{}}, &inference.State{Hidden: []float64{0}, Cell: []float64{0}})
	assert.ErrorIs(t, err, inference.ErrShape)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = m.Classify(ctx, []motion.Vector{{}}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassifyDoesNotAliasPrior(t *testing.T) {
	m, err := NewRandom([]string{"a", "b"}, 4, 7)
	require.NoError(t, err)
	prior := &inference.State{Hidden: []float64{0.1, 0.2, 0.3, 0.4}, Cell: []float64{0.5, 0.6, 0.7, 0.8}}
	before := *prior
	before.Hidden = append([]float64(nil), prior.Hidden...)
	before.Cell = append([]float64(nil), prior.Cell...)

	_, _, err = m.Classify(context.Background(), []motion.Vector{{1, 1, 1, 1, 1, 1}}, prior)
	require.NoError(t, err)
	assert.Equal(t, before, *prior)
}

func TestNewRandomRejectsBadHiddenSize(t *testing.T) {
	for _, hidden := range []int{0, -1} {
		_, err := NewRandom([]string{"idle"}, hidden, 1)
		assert.ErrorIs(t, err, inference.ErrShape, "hidden=%d", hidden)
	}
}

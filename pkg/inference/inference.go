package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikesmitty/gesture-predictor/pkg/motion"
	"gonum.org/v1/gonum/floats"
)

var (
	ErrShape = errors.New("inference: shape mismatch")
	ErrEmpty = errors.New("inference: empty distribution")
)

// State is the recurrent hidden and cell state carried from one window to the
// next. A nil *State means the classifier runs cold.
type State struct {
	Hidden []float64
	Cell   []float64
}

// Distribution is a probability per label, index aligned.
type Distribution struct {
	Labels        []string
	Probabilities []float64
}

func (d Distribution) Validate() error {
	if len(d.Labels) == 0 {
		return ErrEmpty
	}
	if len(d.Labels) != len(d.Probabilities) {
		return fmt.Errorf("%w: %d labels, %d probabilities", ErrShape, len(d.Labels), len(d.Probabilities))
	}
	return nil
}

// Argmax returns the most probable label.
func (d Distribution) Argmax() (string, error) {
	if err := d.Validate(); err != nil {
		return "", err
	}
	return d.Labels[floats.MaxIdx(d.Probabilities)], nil
}

func (d Distribution) Probability(label string) (float64, bool) {
	for i, l := range d.Labels {
		if l == label && i < len(d.Probabilities) {
			return d.Probabilities[i], true
		}
	}
	return 0, false
}

// Classifier is a stateful sequence model over a window of motion vectors.
type Classifier interface {
	Classify(ctx context.Context, window []motion.Vector, prior *State) (Distribution, *State, error)
}

// ClassifierFunc adapts a function to the Classifier interface.
type ClassifierFunc func(ctx context.Context, window []motion.Vector, prior *State) (Distribution, *State, error)

func (f ClassifierFunc) Classify(ctx context.Context, window []motion.Vector, prior *State) (Distribution, *State, error) {
	return f(ctx, window, prior)
}

// Result is the outcome of one completed window.
type Result struct {
	Label       string    `json:"label"`
	Probability float64   `json:"confidence"`
	Window      uint64    `json:"window"`
	At          time.Time `json:"at"`
}

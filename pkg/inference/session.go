package inference

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mikesmitty/gesture-predictor/pkg/motion"
)

// Session threads recurrent state through successive calls to a classifier.
// It is owned by a single goroutine and is not safe for concurrent use.
type Session struct {
	classifier Classifier
	state      *State
	windows    uint64
	now        func() time.Time
}

func NewSession(c Classifier) *Session {
	return &Session{classifier: c, now: time.Now}
}

// State returns the state the next prediction will be given, or nil if the
// next prediction runs cold.
func (s *Session) State() *State {
	return s.state
}

// Predict classifies window. The classifier's new state replaces the stored
// one as soon as the classifier succeeds; a classifier error leaves it as it was.
func (s *Session) Predict(ctx context.Context, window []motion.Vector) (Result, error) {
	cold := s.state == nil
	dist, next, err := s.classifier.Classify(ctx, window, s.state)
	if err != nil {
		return Result{}, fmt.Errorf("inference: classify: %w", err)
	}
	s.state = next
	s.windows++

	label, err := dist.Argmax()
	if err != nil {
		return Result{}, fmt.Errorf("inference: %w", err)
	}
	prob, _ := dist.Probability(label)
	slog.Debug("window classified", "label", label, "probability", prob, "cold", cold, "window", s.windows, "module", "inference")
	return Result{
		Label:       label,
		Probability: prob,
		Window:      s.windows,
		At:          s.now(),
	}, nil
}

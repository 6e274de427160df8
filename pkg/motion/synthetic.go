package motion

import (
	"math"
	"sync"
)

// Synthetic generates a repeating sequence of idealised gestures. Each gesture
// lasts Period samples and cycles through rest, shake, circle and swipe.
type Synthetic struct {
	Period int
	mu     sync.Mutex
	n      int
}

func NewSynthetic(period int) *Synthetic {
	if period <= 0 {
		period = 50
	}
	return &Synthetic{Period: period}
}

func (s *Synthetic) Read() (Vector, error) {
	s.mu.Lock()
	n := s.n
	s.n++
	s.mu.Unlock()

	phase := 2 * math.Pi * float64(n%s.Period) / float64(s.Period)
	switch (n / s.Period) % 4 {
	case 1:
		// shake: fast oscillation along x
		return Vector{0, 0, 0.2 * math.Sin(phase*8), 1.5 * math.Sin(phase*8), 0, 0}, nil
	case 2:
		// circle: rotation about z with a circular acceleration trace
		return Vector{0, 0, 2, math.Cos(phase), math.Sin(phase), 0}, nil
	case 3:
		// swipe: a single pulse along y
		pulse := math.Exp(-math.Pow(phase-math.Pi, 2))
		return Vector{0, 0.5 * pulse, 0, 0, 2 * pulse, 0}, nil
	default:
		return Vector{}, nil
	}
}

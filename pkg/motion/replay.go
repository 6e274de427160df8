package motion

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Replay plays back a recorded CSV capture in a loop. Blank lines and lines
// starting with '#' are skipped when loading.
type Replay struct {
	mu      sync.Mutex
	samples []Vector
	next    int
}

func LoadReplay(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	defer f.Close()

	var samples []Vector
	scan := bufio.NewScanner(f)
	line := 0
	for scan.Scan() {
		line++
		text := strings.TrimSpace(scan.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		v, err := ParseVector(text)
		if err != nil {
			return nil, fmt.Errorf("replay: %s:%d: %w", path, line, err)
		}
		samples = append(samples, v)
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	return NewReplay(samples)
}

func NewReplay(samples []Vector) (*Replay, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("replay: no samples")
	}
	return &Replay{samples: samples}, nil
}

func (r *Replay) Read() (Vector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := r.samples[r.next]
	r.next = (r.next + 1) % len(r.samples)
	return v, nil
}

func (r *Replay) Len() int {
	return len(r.samples)
}

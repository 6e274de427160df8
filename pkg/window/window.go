// Package window buffers motion samples so that overlapping fixed-length
// windows can be read out without copying history on every sample.
//
// Every sample is written to its cursor slot and, when it fits, again
// WindowSize slots further on. With that layout each window that should contain
// a sample finds it at the right offset, and every ready window is a contiguous
// run of slots that never crosses the end of the buffer.
package window

import (
	"fmt"

	"github.com/mikesmitty/gesture-predictor/pkg/motion"
)

const (
	DefaultWindowSize   = 20
	DefaultWindowOffset = 5
)

// Geometry fixes the window length and stride of a buffer.
type Geometry struct {
	WindowSize   int
	WindowOffset int
}

func NewGeometry(windowSize, windowOffset int) (Geometry, error) {
	g := Geometry{WindowSize: windowSize, WindowOffset: windowOffset}
	if windowSize <= 0 || windowOffset <= 0 {
		return g, fmt.Errorf("window: size %d and offset %d must be positive", windowSize, windowOffset)
	}
	if windowOffset > windowSize || windowSize%windowOffset != 0 {
		return g, fmt.Errorf("window: offset %d must divide size %d", windowOffset, windowSize)
	}
	return g, nil
}

func DefaultGeometry() Geometry {
	return Geometry{WindowSize: DefaultWindowSize, WindowOffset: DefaultWindowOffset}
}

// NumWindows is the number of overlapping windows started per cursor cycle.
func (g Geometry) NumWindows() int {
	return g.WindowSize / g.WindowOffset
}

// Capacity is the number of slots needed to hold every overlapping window.
func (g Geometry) Capacity() int {
	return g.WindowSize + g.WindowOffset*(g.NumWindows()-1)
}

// Buffer is a fixed-capacity store of motion vectors. It is not safe for
// concurrent use.
type Buffer struct {
	slots []motion.Vector
}

func NewBuffer(g Geometry) *Buffer {
	return &Buffer{slots: make([]motion.Vector, g.Capacity())}
}

func (b *Buffer) Capacity() int {
	return len(b.slots)
}

// Write stores v at an absolute slot. Out of range positions panic.
func (b *Buffer) Write(position int, v motion.Vector) {
	if position < 0 || position >= len(b.slots) {
		panic(fmt.Sprintf("window: write position %d outside buffer of %d", position, len(b.slots)))
	}
	b.slots[position] = v
}

// Window returns a copy of length vectors starting at start. The range must lie
// inside the buffer; reads never wrap.
func (b *Buffer) Window(start, length int) []motion.Vector {
	if start < 0 || length < 0 || start+length > len(b.slots) {
		panic(fmt.Sprintf("window: read [%d, %d) outside buffer of %d", start, start+length, len(b.slots)))
	}
	out := make([]motion.Vector, length)
	copy(out, b.slots[start:start+length])
	return out
}

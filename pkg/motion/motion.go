package motion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// NumFeatures is the number of scalars captured per sample.
const NumFeatures = 6

// Vector is one device-motion sample: rotation rate x/y/z followed by user
// acceleration x/y/z.
type Vector [NumFeatures]float64

func NewVector(rotation, acceleration [3]float64) Vector {
	return Vector{
		rotation[0], rotation[1], rotation[2],
		acceleration[0], acceleration[1], acceleration[2],
	}
}

func (v Vector) Rotation() [3]float64 {
	return [3]float64{v[0], v[1], v[2]}
}

func (v Vector) Acceleration() [3]float64 {
	return [3]float64{v[3], v[4], v[5]}
}

// Reading is what a sensor delivers on each tick: either a vector or the error
// that prevented reading one.
type Reading struct {
	Vector Vector
	At     time.Time
	Err    error
}

func (r Reading) OK() bool {
	return r.Err == nil
}

// Source is a device that produces motion samples on demand. Read returns an
// error wrapping io.EOF once no more samples will ever arrive.
type Source interface {
	Read() (Vector, error)
}

var ErrParse = errors.New("motion: malformed sample")

// ParseVector parses a comma separated line of six numbers.
func ParseVector(line string) (Vector, error) {
	var v Vector
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) != NumFeatures {
		return v, fmt.Errorf("%w: want %d fields, got %d", ErrParse, NumFeatures, len(fields))
	}
	for i, f := range fields {
		x, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return v, fmt.Errorf("%w: field %d: %v", ErrParse, i, err)
		}
		v[i] = x
	}
	return v, nil
}

// Interval converts a sampling rate in samples per second to a tick interval.
func Interval(samplesPerSecond float64) time.Duration {
	return time.Duration(float64(time.Second) / samplesPerSecond)
}

// SampleChannel polls src every interval. Up to depth readings are held for a
// consumer that falls behind, for example while a window is being classified;
// a reading that does not fit is dropped with a warning. Read errors are
// delivered as readings, except io.EOF which ends the stream. The channel is
// closed when the stream ends or ctx is done.
func SampleChannel(ctx context.Context, src Source, interval time.Duration, depth int) (<-chan Reading, func() error) {
	c := make(chan Reading, max(depth, 1))
	ctx, cancelFunc := context.WithCancel(ctx)
	return c, func() error {
		defer cancelFunc()
		defer close(c)
		done := ctx.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return nil
			case now := <-ticker.C:
				v, err := src.Read()
				if errors.Is(err, io.EOF) {
					slog.Info("motion source exhausted", "error", err, "module", "motion")
					return nil
				}
				deliver(c, Reading{Vector: v, At: now, Err: err})
			}
		}
	}
}

// DeviceChannel reads src back to back, so a device that pushes samples at
// its own rate sets the pace. Read is expected to block until the next sample;
// stop is called when ctx is done to unblock it. Buffering, errors and the end
// of the stream are handled as in SampleChannel.
func DeviceChannel(ctx context.Context, src Source, depth int, stop func() error) (<-chan Reading, func() error) {
	c := make(chan Reading, max(depth, 1))
	return c, func() error {
		defer close(c)
		ctx, cancelFunc := context.WithCancel(ctx)
		defer cancelFunc()
		unblock := context.AfterFunc(ctx, func() {
			if err := stop(); err != nil {
				slog.Debug("stopping motion device", "error", err, "module", "motion")
			}
		})
		defer unblock()
		for {
			v, err := src.Read()
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				slog.Info("motion device stream ended", "error", err, "module", "motion")
				return nil
			}
			deliver(c, Reading{Vector: v, At: time.Now(), Err: err})
		}
	}
}

func deliver(c chan<- Reading, r Reading) {
	if r.Err != nil {
		r.Vector = Vector{}
	} else {
		slog.Debug("publishing reading", "vector", r.Vector, "module", "motion")
	}
	select {
	case c <- r:
	default:
		slog.Warn("sample queue full, dropping reading", "at", r.At, "module", "motion")
	}
}

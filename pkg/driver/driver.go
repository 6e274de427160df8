package driver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mikesmitty/gesture-predictor/pkg/inference"
	"github.com/mikesmitty/gesture-predictor/pkg/motion"
	"github.com/mikesmitty/gesture-predictor/pkg/window"
)

// Observer is notified of every decision the driver makes. Implementations
// must not block.
type Observer interface {
	SampleAccepted()
	SampleDropped(err error)
	WindowReady(start int)
	InferenceDone(elapsed time.Duration, err error)
	ResultDropped()
}

type Options struct {
	// SkipFailedWindows keeps the stream running when the classifier fails.
	// The failed window is skipped and the last good state is kept.
	SkipFailedWindows bool
	// ResultQueue is the depth of the results channel. Results that do not
	// fit are dropped rather than stalling the sampling path.
	ResultQueue int
	Observers   []Observer
}

// Driver owns the sampling path: buffer writes, scheduling and inference all
// happen on the goroutine calling Handle or running Stream.
type Driver struct {
	buffer     *window.Buffer
	scheduler  *window.Scheduler
	session    *inference.Session
	results    chan inference.Result
	skipFailed bool
	observers  []Observer
}

func New(buffer *window.Buffer, scheduler *window.Scheduler, session *inference.Session, opts Options) *Driver {
	if opts.ResultQueue <= 0 {
		opts.ResultQueue = 1
	}
	return &Driver{
		buffer:     buffer,
		scheduler:  scheduler,
		session:    session,
		results:    make(chan inference.Result, opts.ResultQueue),
		skipFailed: opts.SkipFailedWindows,
		observers:  opts.Observers,
	}
}

// Results delivers classification results. It is closed when Stream returns.
func (d *Driver) Results() <-chan inference.Result {
	return d.results
}

// Handle processes one reading. The only error it returns is a classifier
// failure when failed windows are not being skipped.
func (d *Driver) Handle(ctx context.Context, r motion.Reading) error {
	if !r.OK() {
		slog.Warn("device motion update error", "error", r.Err, "module", "driver")
		for _, o := range d.observers {
			o.SampleDropped(r.Err)
		}
		return nil
	}

	primary, secondary, ok := d.scheduler.Slots()
	d.buffer.Write(primary, r.Vector)
	if ok {
		d.buffer.Write(secondary, r.Vector)
	}
	for _, o := range d.observers {
		o.SampleAccepted()
	}

	start, ready := d.scheduler.Advance()
	if !ready {
		return nil
	}
	for _, o := range d.observers {
		o.WindowReady(start)
	}

	w := d.buffer.Window(start, d.scheduler.Geometry().WindowSize)
	began := time.Now()
	res, err := d.session.Predict(ctx, w)
	elapsed := time.Since(began)
	for _, o := range d.observers {
		o.InferenceDone(elapsed, err)
	}
	if err != nil {
		if d.skipFailed {
			slog.Error("inference failed, skipping window", "error", err, "start", start, "module", "driver")
			return nil
		}
		return fmt.Errorf("driver: %w", err)
	}

	select {
	case d.results <- res:
	default:
		slog.Warn("result queue full, dropping result", "label", res.Label, "window", res.Window, "module", "driver")
		for _, o := range d.observers {
			o.ResultDropped()
		}
	}
	return nil
}

// Stream handles readings until input is closed or ctx is done.
func (d *Driver) Stream(ctx context.Context, input <-chan motion.Reading) func() error {
	return func() error {
		defer close(d.results)
		done := ctx.Done()
		slog.Info("starting stream driver",
			"windowSize", d.scheduler.Geometry().WindowSize,
			"windowOffset", d.scheduler.Geometry().WindowOffset,
			"capacity", d.buffer.Capacity(),
			"module", "driver")
		for {
			select {
			case <-done:
				return nil
			case r, ok := <-input:
				if !ok {
					return nil
				}
				if err := d.Handle(ctx, r); err != nil {
					return err
				}
			}
		}
	}
}

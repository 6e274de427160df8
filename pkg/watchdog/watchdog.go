package watchdog

import (
	"context"
	"log/slog"
	"time"
)

// NewWatchdog calls stalled whenever a full interval passes without a healthy
// value arriving on input. It keeps watching after a stall and logs when the
// input recovers.
func NewWatchdog[T any](ctx context.Context, interval time.Duration, input <-chan T, healthy func(T) bool, stalled func(time.Duration)) func() error {
	return func() error {
		t := time.NewTicker(interval)
		defer t.Stop()
		awake := true
		down := false
		slog.Debug("watchdog started", "timeout", interval, "module", "watchdog")
		for {
			select {
			case <-ctx.Done():
				return nil
			case v, ok := <-input:
				if !ok {
					return nil
				}
				if !healthy(v) {
					continue
				}
				awake = true
				if down {
					slog.Info("sensor samples resumed", "module", "watchdog")
					down = false
				}
			case <-t.C:
				if !awake {
					slog.Warn("no motion samples received", "timeout", interval, "module", "watchdog")
					down = true
					stalled(interval)
				}
				awake = false
			}
		}
	}
}

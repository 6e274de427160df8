package stats

import (
	"log/slog"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Report summarises one full window of inference latencies, in seconds.
type Report struct {
	Count  int
	Mean   float64
	StdDev float64
	P95    float64
	Max    float64
}

// Latency keeps the most recent inference latencies and reports on them every
// size inferences. A p95 above budget means inference is not finishing within
// one sampling interval.
type Latency struct {
	budget   time.Duration
	size     int
	values   []float64
	sorted   []float64
	failures int
}

func NewLatency(size int, budget time.Duration) *Latency {
	if size < 2 {
		size = 2
	}
	return &Latency{
		budget: budget,
		size:   size,
		values: make([]float64, 0, size),
		sorted: make([]float64, size),
	}
}

// Add records one latency and returns a report once the window is full.
func (l *Latency) Add(d time.Duration) (Report, bool) {
	l.values = append(l.values, d.Seconds())
	if len(l.values) < l.size {
		return Report{}, false
	}
	r := l.report()
	l.values = l.values[:0]
	return r, true
}

func (l *Latency) report() Report {
	sorted := l.sorted[:len(l.values)]
	copy(sorted, l.values)
	sort.Float64s(sorted)
	return Report{
		Count:  len(sorted),
		Mean:   stat.Mean(sorted, nil),
		StdDev: stat.StdDev(sorted, nil),
		P95:    stat.Quantile(0.95, stat.Empirical, sorted, nil),
		Max:    sorted[len(sorted)-1],
	}
}

func (l *Latency) OverBudget(r Report) bool {
	return l.budget > 0 && r.P95 > l.budget.Seconds()
}

func (l *Latency) InferenceDone(elapsed time.Duration, err error) {
	if err != nil {
		l.failures++
		return
	}
	r, ok := l.Add(elapsed)
	if !ok {
		return
	}
	attrs := []any{"count", r.Count, "mean", r.Mean, "stddev", r.StdDev, "p95", r.P95, "max", r.Max, "failures", l.failures, "module", "stats"}
	if l.OverBudget(r) {
		slog.Warn("inference p95 exceeds sampling interval", append(attrs, "budget", l.budget.Seconds())...)
	} else {
		slog.Info("inference latency", attrs...)
	}
	l.failures = 0
}

func (l *Latency) SampleAccepted() {}
func (l *Latency) SampleDropped(error) {}
func (l *Latency) WindowReady(int) {}
func (l *Latency) ResultDropped() {}

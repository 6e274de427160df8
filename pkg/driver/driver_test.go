package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mikesmitty/gesture-predictor/pkg/inference"
	"github.com/mikesmitty/gesture-predictor/pkg/motion"
	"github.com/mikesmitty/gesture-predictor/pkg/window"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClassifier struct {
	windows [][]motion.Vector
	priors  []*inference.State
	failAt  map[int]bool
}

func (f *fakeClassifier) Classify(_ context.Context, w []motion.Vector, prior *inference.State) (inference.Distribution, *inference.State, error) {
	n := len(f.windows)
	f.windows = append(f.windows, w)
	f.priors = append(f.priors, prior)
	if f.failAt[n] {
		return inference.Distribution{}, nil, errors.New("classifier exploded")
	}
	return inference.Distribution{
		Labels:        []string{"idle", "shake"},
		Probabilities: []float64{0.4, 0.6},
	}, &inference.State{Hidden: []float64{float64(n)}, Cell: []float64{float64(n)}}, nil
}

type counter struct {
	accepted, dropped, ready, inferences, failures, lost int
	starts                                              []int
}

func (c *counter) SampleAccepted() { c.accepted++ }
func (c *counter) SampleDropped(error) { c.dropped++ }
func (c *counter) WindowReady(start int) { c.ready++; c.starts = append(c.starts, start) }
func (c *counter) ResultDropped() { c.lost++ }
func (c *counter) InferenceDone(_ time.Duration, err error) {
	c.inferences++
	if err != nil {
		c.failures++
	}
}

func newDriver(t *testing.T, clf inference.Classifier, opts Options) (*Driver, *window.Scheduler) {
	t.Helper()
	g := window.DefaultGeometry()
	s := window.NewScheduler(g)
	return New(window.NewBuffer(g), s, inference.NewSession(clf), opts), s
}

func reading(i int) motion.Reading {
	x := float64(i)
	return motion.Reading{Vector: motion.Vector{x, x, x, x, x, x}, At: time.Now()}
}

func TestDriverOneSecond(t *testing.T) {
	clf := &fakeClassifier{}
	obs := &counter{}
	d, _ := newDriver(t, clf, Options{ResultQueue: 10, Observers: []Observer{obs}})
	ctx := context.Background()

	for i := 1; i <= 25; i++ {
		require.NoError(t, d.Handle(ctx, reading(i)))
		if i < 20 {
			assert.Empty(t, clf.windows, "no inference before sample 20")
		}
	}

	require.Len(t, clf.windows, 2)
	for j, v := range clf.windows[0] {
		assert.Equal(t, float64(j+1), v[0])
	}
	for j, v := range clf.windows[1] {
		assert.Equal(t, float64(j+6), v[0])
	}
	assert.Nil(t, clf.priors[0])
	require.NotNil(t, clf.priors[1])
	assert.Equal(t, []float64{0}, clf.priors[1].Hidden)

	assert.Equal(t, 25, obs.accepted)
	assert.Equal(t, []int{0, 5}, obs.starts)

	res := <-d.Results()
	assert.Equal(t, "shake", res.Label)
	assert.Equal(t, 0.6, res.Probability)
	assert.Equal(t, uint64(1), res.Window)
	res = <-d.Results()
	assert.Equal(t, uint64(2), res.Window)
}

func TestDriverSensorErrorIsANoop(t *testing.T) {
	clf := &fakeClassifier{}
	obs := &counter{}
	d, s := newDriver(t, clf, Options{ResultQueue: 10, Observers: []Observer{obs}})
	ctx := context.Background()

	for i := 1; i <= 19; i++ {
		require.NoError(t, d.Handle(ctx, reading(i)))
	}
	cursor := s.Cursor()
	snapshot := d.buffer.Window(0, d.buffer.Capacity())

	require.NoError(t, d.Handle(ctx, motion.Reading{Err: errors.New("no motion data")}))
	assert.Equal(t, cursor, s.Cursor())
	assert.Equal(t, snapshot, d.buffer.Window(0, d.buffer.Capacity()))
	assert.False(t, s.WarmedUp())
	assert.Empty(t, clf.windows)
	assert.Equal(t, 1, obs.dropped)

	require.NoError(t, d.Handle(ctx, reading(20)))
	require.Len(t, clf.windows, 1)
	assert.Equal(t, 20.0, clf.windows[0][19][0])
}

func TestDriverInferenceFailureIsFatal(t *testing.T) {
	clf := &fakeClassifier{failAt: map[int]bool{0: true}}
	d, _ := newDriver(t, clf, Options{})
	ctx := context.Background()

	var err error
	for i := 1; i <= 20 && err == nil; i++ {
		err = d.Handle(ctx, reading(i))
	}
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classifier exploded")
}

func TestDriverSkipFailedWindows(t *testing.T) {
	clf := &fakeClassifier{failAt: map[int]bool{1: true}}
	obs := &counter{}
	d, _ := newDriver(t, clf, Options{SkipFailedWindows: true, ResultQueue: 10, Observers: []Observer{obs}})
	ctx := context.Background()

	for i := 1; i <= 30; i++ {
		require.NoError(t, d.Handle(ctx, reading(i)))
	}
	require.Len(t, clf.priors, 3)
	assert.Equal(t, []float64{0}, clf.priors[1].Hidden)
	assert.Equal(t, []float64{0}, clf.priors[2].Hidden, "failed window keeps the last good state")
	assert.Equal(t, 1, obs.failures)
	assert.Len(t, d.Results(), 2)
}

func TestDriverDropsResultsWhenQueueIsFull(t *testing.T) {
	obs := &counter{}
	d, _ := newDriver(t, &fakeClassifier{}, Options{ResultQueue: 1, Observers: []Observer{obs}})
	ctx := context.Background()

	for i := 1; i <= 30; i++ {
		require.NoError(t, d.Handle(ctx, reading(i)))
	}
	assert.Equal(t, 3, obs.inferences)
	assert.Equal(t, 2, obs.lost)
	assert.Equal(t, uint64(1), (<-d.Results()).Window)
}

func TestDriverStream(t *testing.T) {
	d, _ := newDriver(t, &fakeClassifier{}, Options{ResultQueue: 10})
	input := make(chan motion.Reading)
	done := make(chan error, 1)
	go func() { done <- d.Stream(context.Background(), input)() }()

	for i := 1; i <= 20; i++ {
		input <- reading(i)
	}
	close(input)
	require.NoError(t, <-done)

	var got []inference.Result
	for r := range d.Results() {
		got = append(got, r)
	}
	assert.Len(t, got, 1)
}

func TestDriverStreamStopsOnFailure(t *testing.T) {
	d, _ := newDriver(t, &fakeClassifier{failAt: map[int]bool{0: true}}, Options{})
	input := make(chan motion.Reading, 20)
	for i := 1; i <= 20; i++ {
		input <- reading(i)
	}
	err := d.Stream(context.Background(), input)()
	assert.Error(t, err)
	_, open := <-d.Results()
	assert.False(t, open)
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline counters and implements driver.Observer.
type Metrics struct {
	SamplesAccepted   prometheus.Counter
	SamplesDropped    prometheus.Counter
	WindowsReady      prometheus.Counter
	Inferences        prometheus.Counter
	InferenceFailures prometheus.Counter
	ResultsDropped    prometheus.Counter
	SensorStalls      prometheus.Counter
	InferenceLatency  prometheus.Histogram
	Predictions       *prometheus.CounterVec

	registry *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SamplesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gesture_samples_accepted_total",
			Help: "Motion samples written to the window buffer",
		}),
		SamplesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gesture_samples_dropped_total",
			Help: "Motion samples dropped because the sensor reported an error",
		}),
		WindowsReady: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gesture_windows_ready_total",
			Help: "Completed windows handed to the classifier",
		}),
		Inferences: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gesture_inferences_total",
			Help: "Classifier invocations",
		}),
		InferenceFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gesture_inference_failures_total",
			Help: "Classifier invocations that returned an error",
		}),
		ResultsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gesture_results_dropped_total",
			Help: "Results discarded because the presentation queue was full",
		}),
		SensorStalls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gesture_sensor_stalls_total",
			Help: "Watchdog intervals that passed without a valid motion sample",
		}),
		InferenceLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gesture_inference_seconds",
			Help:    "Classifier latency per window",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gesture_predictions_total",
			Help: "Results delivered per label",
		}, []string{"label"}),
	}
	m.registry.MustRegister(
		m.SamplesAccepted,
		m.SamplesDropped,
		m.WindowsReady,
		m.Inferences,
		m.InferenceFailures,
		m.ResultsDropped,
		m.SensorStalls,
		m.InferenceLatency,
		m.Predictions,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SampleAccepted() { m.SamplesAccepted.Inc() }
func (m *Metrics) SampleDropped(error) { m.SamplesDropped.Inc() }
func (m *Metrics) WindowReady(start int) { m.WindowsReady.Inc() }
func (m *Metrics) ResultDropped() { m.ResultsDropped.Inc() }

func (m *Metrics) InferenceDone(elapsed time.Duration, err error) {
	m.Inferences.Inc()
	m.InferenceLatency.Observe(elapsed.Seconds())
	if err != nil {
		m.InferenceFailures.Inc()
	}
}

// Prediction counts a result delivered to presentation.
func (m *Metrics) Prediction(label string) {
	m.Predictions.WithLabelValues(label).Inc()
}

// Stalled counts a watchdog timeout.
func (m *Metrics) Stalled(time.Duration) {
	m.SensorStalls.Inc()
}

// WatchSubscriber exports how many results a presentation subscriber has
// missed. dropped is read at scrape time.
func (m *Metrics) WatchSubscriber(name string, dropped func() uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name:        "gesture_subscriber_drops_total",
		Help:        "Results a presentation subscriber missed because it fell behind",
		ConstLabels: prometheus.Labels{"subscriber": name},
	}, func() float64 {
		return float64(dropped())
	}))
}

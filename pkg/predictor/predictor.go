package predictor

import (
	"fmt"
	"strings"
	"time"

	"github.com/mikesmitty/gesture-predictor/pkg/driver"
	"github.com/mikesmitty/gesture-predictor/pkg/inference"
	"github.com/mikesmitty/gesture-predictor/pkg/lstm"
	"github.com/mikesmitty/gesture-predictor/pkg/motion"
	"github.com/mikesmitty/gesture-predictor/pkg/window"
	"github.com/spf13/viper"
)

type Config struct {
	SampleRate        float64
	WindowSize        int
	WindowOffset      int
	Source            string
	SerialPort        string
	SerialBaud        int
	ReplayFile        string
	Model             string
	Labels            []string
	HiddenSize        int
	ModelSeed         uint64
	SkipFailedWindows bool
	ResultQueue       int
	SampleQueue       int
	MQTTBroker        string
	MQTTEvery         int
	WSAddr            string
	WatchdogTimeout   time.Duration
	StatsWindow       int
}

func ConfigFromViper(v *viper.Viper) Config {
	labels := v.GetStringSlice("labels")
	for i := range labels {
		labels[i] = strings.TrimSpace(labels[i])
	}
	return Config{
		SampleRate:        v.GetFloat64("sample-rate"),
		WindowSize:        v.GetInt("window-size"),
		WindowOffset:      v.GetInt("window-offset"),
		Source:            v.GetString("source"),
		SerialPort:        v.GetString("serial-port"),
		SerialBaud:        v.GetInt("serial-baud"),
		ReplayFile:        v.GetString("replay-file"),
		Model:             v.GetString("model"),
		Labels:            labels,
		HiddenSize:        v.GetInt("hidden-size"),
		ModelSeed:         v.GetUint64("model-seed"),
		SkipFailedWindows: v.GetBool("skip-failed-windows"),
		ResultQueue:       v.GetInt("result-queue"),
		SampleQueue:       v.GetInt("sample-queue"),
		MQTTBroker:        v.GetString("mqtt-broker"),
		MQTTEvery:         v.GetInt("mqtt-sample-interval"),
		WSAddr:            v.GetString("ws-addr"),
		WatchdogTimeout:   v.GetDuration("watchdog-timeout"),
		StatsWindow:       v.GetInt("stats-window"),
	}
}

func (c Config) Interval() time.Duration {
	return motion.Interval(c.SampleRate)
}

func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %v", c.SampleRate)
	}
	if _, err := window.NewGeometry(c.WindowSize, c.WindowOffset); err != nil {
		return err
	}
	if c.Model == "" && (len(c.Labels) == 0 || c.HiddenSize <= 0) {
		return fmt.Errorf("demo model needs labels and a positive hidden size")
	}
	return nil
}

// Pipeline owns the sampling-path state: buffer, scheduler and session. It is
// built once at startup and handed to the driver.
type Pipeline struct {
	Geometry  window.Geometry
	Buffer    *window.Buffer
	Scheduler *window.Scheduler
	Session   *inference.Session
	Driver    *driver.Driver
}

func NewPipeline(g window.Geometry, c inference.Classifier, opts driver.Options) *Pipeline {
	p := &Pipeline{
		Geometry:  g,
		Buffer:    window.NewBuffer(g),
		Scheduler: window.NewScheduler(g),
		Session:   inference.NewSession(c),
	}
	p.Driver = driver.New(p.Buffer, p.Scheduler, p.Session, opts)
	return p
}

// LoadClassifier loads the configured model, or builds the seeded demo model
// when no model file is given.
func LoadClassifier(c Config) (*lstm.Model, error) {
	if c.Model != "" {
		return lstm.Load(c.Model)
	}
	return lstm.NewRandom(c.Labels, c.HiddenSize, c.ModelSeed)
}

// OpenSource opens the configured motion source. The returned close function
// is never nil.
func OpenSource(c Config) (motion.Source, func() error, error) {
	nop := func() error { return nil }
	switch c.Source {
	case "", "synthetic":
		return motion.NewSynthetic(int(2 * c.SampleRate)), nop, nil
	case "serial":
		if c.SerialPort == "" {
			return nil, nop, fmt.Errorf("serial source needs --serial-port")
		}
		s, err := motion.OpenSerial(c.SerialPort, c.SerialBaud)
		if err != nil {
			return nil, nop, err
		}
		return s, s.Close, nil
	case "replay":
		r, err := motion.LoadReplay(c.ReplayFile)
		if err != nil {
			return nil, nop, err
		}
		return r, nop, nil
	default:
		return nil, nop, fmt.Errorf("unknown motion source: %s", c.Source)
	}
}

// heartbeat reports sample health to the watchdog without ever blocking the
// sampling path.
type heartbeat chan bool

func (h heartbeat) beat(ok bool) {
	select {
	case h <- ok:
	default:
	}
}

func (h heartbeat) SampleAccepted() { h.beat(true) }
func (h heartbeat) SampleDropped(error) { h.beat(false) }
func (h heartbeat) WindowReady(int) {}
func (h heartbeat) InferenceDone(time.Duration, error) {}
func (h heartbeat) ResultDropped() {}

package predictor

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mikesmitty/gesture-predictor/pkg/driver"
	"github.com/mikesmitty/gesture-predictor/pkg/inference"
	"github.com/mikesmitty/gesture-predictor/pkg/metrics"
	"github.com/mikesmitty/gesture-predictor/pkg/motion"
	"github.com/mikesmitty/gesture-predictor/pkg/mqtt"
	"github.com/mikesmitty/gesture-predictor/pkg/presenter"
	"github.com/mikesmitty/gesture-predictor/pkg/router"
	"github.com/mikesmitty/gesture-predictor/pkg/stats"
	"github.com/mikesmitty/gesture-predictor/pkg/watchdog"
	"github.com/mikesmitty/gesture-predictor/pkg/window"
	"github.com/mikesmitty/gesture-predictor/pkg/wsfeed"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func Root() func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		slogOpts := slog.HandlerOptions{
			Level: slog.LevelInfo,
		}
		if viper.GetBool("debug") {
			slogOpts.Level = slog.LevelDebug
		}
		log := slog.New(slog.NewTextHandler(os.Stderr, &slogOpts))
		slog.SetDefault(log)

		cfg := ConfigFromViper(viper.GetViper())
		errChk(cfg.Validate())
		errChk(Run(context.Background(), cfg))
	}
}

// Run wires the pipeline and blocks until a signal arrives, the source ends or
// a task fails.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	g, ctx := errgroup.WithContext(ctx)

	geom, err := window.NewGeometry(cfg.WindowSize, cfg.WindowOffset)
	if err != nil {
		return err
	}
	interval := cfg.Interval()

	// Classifier
	model, err := LoadClassifier(cfg)
	if err != nil {
		return err
	}
	slog.Info("classifier ready", "labels", model.Labels(), "hidden", model.HiddenSize(), "file", cfg.Model)

	// Motion source
	src, closeSrc, err := OpenSource(cfg)
	if err != nil {
		return err
	}
	defer closeSrc()

	m := metrics.New()
	latency := stats.NewLatency(cfg.StatsWindow, interval)
	beats := make(heartbeat, 1)

	p := NewPipeline(geom, model, driver.Options{
		SkipFailedWindows: cfg.SkipFailedWindows,
		ResultQueue:       cfg.ResultQueue,
		Observers:         []driver.Observer{m, latency, beats},
	})

	// Presentation subscribers are all registered before anything is sampled.
	resultFan := router.NewFan[inference.Result]("results", p.Driver.Results())
	subscribe := func(client string) <-chan inference.Result {
		ch := resultFan.Subscribe(client, cfg.ResultQueue)
		m.WatchSubscriber(client, func() uint64 { return resultFan.Dropped(client) })
		return ch
	}
	console := subscribe("console")

	// MQTT
	if cfg.MQTTBroker != "" {
		mqttUrl, err := url.Parse(cfg.MQTTBroker)
		if err != nil {
			return err
		}
		mc := mqtt.NewClient(mqttUrl, cfg.MQTTEvery)
		if err := mc.Connect(); err != nil {
			return err
		}
		defer mc.Disconnect()
		publish := mc.GetPublisher(subscribe("mqtt"))
		if err := mc.HomeAssistant(); err != nil {
			return err
		}
		g.Go(publish)
	}

	// Websocket feed and metrics
	if cfg.WSAddr != "" {
		hub := wsfeed.NewHub(0)
		g.Go(func() error { return hub.Run(ctx) })
		g.Go(hub.Feed(subscribe("ws")))

		mux := http.NewServeMux()
		mux.Handle("/ws", hub.Handler(ctx))
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: cfg.WSAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			slog.Info("serving websocket feed and metrics", "addr", cfg.WSAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(resultFan.Run)
	g.Go(presenter.Console(console, func(r inference.Result) {
		m.Prediction(r.Label)
	}))

	// Watchdog
	if cfg.WatchdogTimeout > 0 {
		g.Go(watchdog.NewWatchdog(ctx, cfg.WatchdogTimeout, (<-chan bool)(beats), func(ok bool) bool { return ok }, m.Stalled))
	}

	// Sampling
	depth := cfg.SampleQueue
	if depth <= 0 {
		depth = geom.WindowSize
	}
	var samples <-chan motion.Reading
	var sampleFn func() error
	if cfg.Source == "serial" {
		samples, sampleFn = motion.DeviceChannel(ctx, src, depth, closeSrc)
	} else {
		samples, sampleFn = motion.SampleChannel(ctx, src, interval, depth)
	}
	slog.Debug("starting motion sampling", "source", cfg.Source, "interval", interval, "queue", depth)
	g.Go(sampleFn)
	g.Go(func() error {
		// The end of the motion stream ends the run.
		defer cancelFunc()
		return p.Driver.Stream(ctx, samples)()
	})

	// Signal handling
	chanSignal := make(chan os.Signal, 1)
	signal.Notify(chanSignal, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT)
	defer signal.Stop(chanSignal)
	g.Go(func() error {
		defer cancelFunc()
		select {
		case <-ctx.Done():
		case <-chanSignal:
			slog.Info("shutting down...")
		}
		return nil
	})

	slog.Debug("waiting for goroutines to finish")
	return g.Wait()
}

func errChk(err error) {
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

// Command pulse-trigger drives trigger outputs (solenoids, gates) with
// delayed fixed-length pulses scheduled on a fixed-frequency tick.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/pulse-trigger/internal/config"
	"github.com/sweeney/pulse-trigger/internal/gpio"
	"github.com/sweeney/pulse-trigger/internal/metrics"
	"github.com/sweeney/pulse-trigger/internal/mqtt"
	"github.com/sweeney/pulse-trigger/internal/status"
	"github.com/sweeney/pulse-trigger/internal/timer"
	"github.com/sweeney/pulse-trigger/internal/trigger"
	"github.com/sweeney/pulse-trigger/internal/web"
)

var projectVersion = "dev"

const (
	transitionBacklog = 256
	statusInterval    = time.Second
)

type options struct {
	configPath  string
	level       string
	backend     string
	chip        string
	freq        int
	broker      string
	httpAddr    string
	heartbeat   time.Duration
	printConfig bool
}

func parseFlags(args []string) (options, *pflag.FlagSet, error) {
	var o options
	def := config.Default()

	fs := pflag.NewFlagSet("pulse-trigger", pflag.ContinueOnError)
	fs.StringVarP(&o.configPath, "config", "c", "", "YAML config file (defaults built in)")
	fs.StringVarP(&o.level, "level", "l", "info", "Log level")
	fs.StringVarP(&o.backend, "backend", "b", def.Backend, "Output backend (pins|shift|fake)")
	fs.StringVar(&o.chip, "chip", def.Chip, "GPIO character device")
	fs.IntVar(&o.freq, "freq", def.FrequencyHz, "Tick frequency in Hz")
	fs.StringVar(&o.broker, "broker", def.MQTT.Broker, "MQTT broker address (empty to disable)")
	fs.StringVar(&o.httpAddr, "http", def.HTTP, "HTTP status address (empty to disable)")
	fs.DurationVar(&o.heartbeat, "heartbeat", def.Heartbeat, "Heartbeat interval (0 to disable)")
	fs.BoolVar(&o.printConfig, "print-config", false, "Print the effective config and exit")

	if err := fs.Parse(args); err != nil {
		return o, fs, err
	}
	return o, fs, nil
}

// loadConfig reads the config file, if any, and applies explicitly set
// flags on top of it.
func loadConfig(o options, fs *pflag.FlagSet) (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return cfg, err
		}
	}

	if fs.Changed("backend") {
		cfg.Backend = o.backend
	}
	if fs.Changed("chip") {
		cfg.Chip = o.chip
	}
	if fs.Changed("freq") {
		cfg.FrequencyHz = o.freq
	}
	if fs.Changed("broker") {
		cfg.MQTT.Broker = o.broker
	}
	if fs.Changed("http") {
		cfg.HTTP = o.httpAddr
	}
	if fs.Changed("heartbeat") {
		cfg.Heartbeat = o.heartbeat
	}

	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

func main() {
	o, fs, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		Exitf("%v\n", err)
	}

	level, err := zerolog.ParseLevel(o.level)
	if err != nil {
		Exitf("invalid log level %q\n", o.level)
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(level)

	cfg, err := loadConfig(o, fs)
	if err != nil {
		Exitf("%v\n", err)
	}

	if o.printConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			Exitf("marshal config: %v\n", err)
		}
		os.Stdout.Write(out)
		return
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("fatal")
	}
}

// Exitf prints the given error message and exits with code 1.
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}

func newBackend(cfg config.Config) (gpio.Backend, error) {
	switch cfg.Backend {
	case config.BackendPins:
		return gpio.NewRealPins(cfg.Chip, cfg.Pins())
	case config.BackendShift:
		s := cfg.Shift
		return gpio.NewRealChain(cfg.Chip, s.Data, s.Clock, s.Latch, s.Registers)
	case config.BackendFake:
		return gpio.NewFakePins(), nil
	}
	return nil, errors.Errorf("unknown backend %q", cfg.Backend)
}

func run(cfg config.Config, log zerolog.Logger) error {
	src, err := timer.New(cfg.FrequencyHz)
	if err != nil {
		return errors.Wrap(err, "init tick source")
	}
	if cfg.FrequencyHz > timer.PracticalMaxHz {
		log.Warn().Int("freq_hz", cfg.FrequencyHz).Msgf("tick frequency above %d Hz may overrun", timer.PracticalMaxHz)
	}

	backend, err := newBackend(cfg)
	if err != nil {
		return errors.Wrapf(err, "init %s backend", cfg.Backend)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Warn().Err(err).Msg("close backend")
		}
	}()

	sched := trigger.New(backend)
	transitions := make(chan trigger.Transition, transitionBacklog)
	if cfg.PublishTransitions {
		sched.Notify(transitions)
	}
	if err := sched.Configure(len(cfg.Channels), cfg.PreDelays(), cfg.HoldTimes()); err != nil {
		return errors.Wrap(err, "configure scheduler")
	}

	var client mqtt.Client
	if cfg.MQTT.Broker != "" {
		c, err := mqtt.NewRealClient(mqtt.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, log)
		if err != nil {
			return errors.Wrap(err, "init mqtt")
		}
		defer c.Close()
		client = c
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		Backend:     cfg.Backend,
		Channels:    len(cfg.Channels),
		FrequencyHz: src.Hz(),
		Divider:     int(src.Divider()),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		HTTPAddr:    cfg.HTTP,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	tracker.Update(sched.Channels(), sched.Stats(), src.Stats())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(reg, sched, src); err != nil {
		return errors.Wrap(err, "register metrics")
	}

	// Publish startup event with full status snapshot
	if client != nil {
		snap := tracker.Snapshot()
		err := client.PublishSystem(mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		})
		if err != nil {
			log.Warn().Err(err).Msg("failed to publish startup event")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sched.Run(ctx, src)
	})

	if cfg.HTTP != "" {
		srv := web.New(cfg.HTTP, tracker, sched, reg, log)
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return errors.Wrap(err, "http server")
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			return srv.Shutdown(context.Background())
		})
		log.Info().Str("addr", cfg.HTTP).Msg("http status server listening")
	}

	log.Info().
		Str("version", projectVersion).
		Str("backend", cfg.Backend).
		Int("channels", len(cfg.Channels)).
		Float64("freq_hz", src.Hz()).
		Str("broker", cfg.MQTT.Broker).
		Dur("heartbeat", cfg.Heartbeat).
		Msg("started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	statusTicker := time.NewTicker(statusInterval)
	defer statusTicker.Stop()

	l := &loop{
		sched:       sched,
		timer:       src,
		client:      client,
		tracker:     tracker,
		transitions: transitions,
		heartbeat:   status.NewHeartbeat(cfg.Heartbeat, time.Now()),
		now:         time.Now,
		log:         log,
	}
	g.Go(func() error {
		defer cancel()
		return l.run(ctx, statusTicker.C, sigCh)
	})

	return g.Wait()
}
